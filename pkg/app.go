package pkg

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/vulnscope/vulnscope/pkg/config"
	"github.com/vulnscope/vulnscope/pkg/log"
)

type AppConfig struct {
	Context context.Context
	Stdout  io.Writer
	Stderr  io.Writer
}

func (ac AppConfig) NewApp(version string) *cli.App {
	if ac.Context == nil {
		ac.Context = context.Background()
	}
	if ac.Stdout == nil {
		ac.Stdout = os.Stdout
	}
	if ac.Stderr == nil {
		ac.Stderr = os.Stderr
	}

	app := cli.NewApp()
	app.Name = "vulnscope"
	app.Version = version
	app.Usage = "Find vulnerable npm dependencies that your code actually uses"
	app.Writer = ac.Stdout
	app.ErrWriter = ac.Stderr

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:   "debug, d",
			Usage:  "debug mode",
			EnvVar: "VULNSCOPE_DEBUG",
		},
		cli.BoolFlag{
			Name:   "quiet, q",
			Usage:  "suppress progress and log output",
			EnvVar: "VULNSCOPE_QUIET",
		},
		cli.StringFlag{
			Name:   "config, c",
			Usage:  "config file path (default: .vulnscope.toml or .vulnscope.yaml in the scanned directory)",
			EnvVar: "VULNSCOPE_CONFIG",
		},
	}
	app.Before = func(c *cli.Context) error {
		log.SetOutput(ac.Stderr)
		switch {
		case c.GlobalBool("debug"):
			log.SetLevel(slog.LevelDebug)
		case c.GlobalBool("quiet"):
			log.SetLevel(slog.LevelError)
		}
		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:      "scan",
			Usage:     "check dependencies, ask the model about their usage and run the static detector",
			ArgsUsage: "[dir]",
			Action:    ac.scan(scanAll),
			Flags:     append(append(outputFlags(), lookupFlags()...), aiFlags()...),
		},
		{
			Name:      "deps",
			Usage:     "check dependencies against OSV only",
			ArgsUsage: "[dir]",
			Action:    ac.scan(scanDeps),
			Flags:     append(outputFlags(), lookupFlags()...),
		},
		{
			Name:      "static",
			Usage:     "run the static pattern detector only",
			ArgsUsage: "[dir]",
			Action:    ac.scan(scanStatic),
			Flags:     outputFlags(),
		},
		{
			Name:   "models",
			Usage:  "list the models installed on the Ollama server",
			Action: ac.models,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:   "ollama-url",
					Usage:  "Ollama server URL",
					EnvVar: "VULNSCOPE_OLLAMA_URL",
				},
			},
		},
		{
			Name:  "cache",
			Usage: "manage the OSV lookup cache",
			Subcommands: []cli.Command{
				{
					Name:   "clean",
					Usage:  "remove the cache database",
					Action: ac.cleanCache,
					Flags: []cli.Flag{
						cli.StringFlag{
							Name:   "cache-dir",
							Usage:  "cache directory path",
							Value:  config.CacheDir(),
							EnvVar: "VULNSCOPE_CACHE_DIR",
						},
					},
				},
			},
		},
	}

	return app
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:   "format, f",
			Usage:  "report format (table, json)",
			EnvVar: "VULNSCOPE_FORMAT",
		},
		cli.StringFlag{
			Name:   "output, o",
			Usage:  "write the report to a file instead of stdout",
			EnvVar: "VULNSCOPE_OUTPUT",
		},
		cli.IntFlag{
			Name:   "exit-code",
			Usage:  "exit code when issues at or above the severity threshold are found",
			EnvVar: "VULNSCOPE_EXIT_CODE",
		},
		cli.StringFlag{
			Name:   "severity-threshold",
			Usage:  "lowest severity that counts as an issue (LOW, MEDIUM, HIGH, CRITICAL)",
			EnvVar: "VULNSCOPE_SEVERITY_THRESHOLD",
		},
		cli.IntFlag{
			Name:   "batch-size",
			Usage:  "number of items processed concurrently",
			EnvVar: "VULNSCOPE_BATCH_SIZE",
		},
	}
}

func lookupFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:   "manifest",
			Usage:  "manifest path relative to the scanned directory",
			EnvVar: "VULNSCOPE_MANIFEST",
		},
		cli.StringFlag{
			Name:   "osv-url",
			Usage:  "OSV query endpoint",
			EnvVar: "VULNSCOPE_OSV_URL",
		},
		cli.Float64Flag{
			Name:   "osv-rate-limit",
			Usage:  "maximum OSV requests per second (0 disables the limit)",
			EnvVar: "VULNSCOPE_OSV_RATE_LIMIT",
		},
		cli.StringFlag{
			Name:   "cache-dir",
			Usage:  "cache directory path",
			EnvVar: "VULNSCOPE_CACHE_DIR",
		},
		cli.DurationFlag{
			Name:   "cache-ttl",
			Usage:  "how long OSV answers are reused",
			EnvVar: "VULNSCOPE_CACHE_TTL",
		},
		cli.BoolFlag{
			Name:   "no-cache",
			Usage:  "query OSV for every dependency",
			EnvVar: "VULNSCOPE_NO_CACHE",
		},
	}
}

func aiFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:   "ai-backend",
			Usage:  "AI backend (ollama, none)",
			EnvVar: "VULNSCOPE_AI_BACKEND",
		},
		cli.StringFlag{
			Name:   "ollama-url",
			Usage:  "Ollama server URL",
			EnvVar: "VULNSCOPE_OLLAMA_URL",
		},
		cli.StringFlag{
			Name:   "model, m",
			Usage:  "model name",
			EnvVar: "VULNSCOPE_MODEL",
		},
		cli.DurationFlag{
			Name:   "ai-timeout",
			Usage:  "timeout of a single model call",
			EnvVar: "VULNSCOPE_AI_TIMEOUT",
		},
		cli.StringFlag{
			Name:   "ai-mode",
			Usage:  "prompt per source file (file) or per advisory (advisory)",
			EnvVar: "VULNSCOPE_AI_MODE",
		},
		cli.BoolFlag{
			Name:   "review-code",
			Usage:  "also ask the model to review every source file",
			EnvVar: "VULNSCOPE_REVIEW_CODE",
		},
		cli.BoolFlag{
			Name:   "no-static",
			Usage:  "skip the static pattern detector",
			EnvVar: "VULNSCOPE_NO_STATIC",
		},
	}
}
