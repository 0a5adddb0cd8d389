package pkg

import (
	"io"
	"os"

	"github.com/urfave/cli"
	"golang.org/x/xerrors"

	"github.com/vulnscope/vulnscope/pkg/ai/ollama"
	"github.com/vulnscope/vulnscope/pkg/config"
	"github.com/vulnscope/vulnscope/pkg/db"
	"github.com/vulnscope/vulnscope/pkg/log"
	"github.com/vulnscope/vulnscope/pkg/osv"
	"github.com/vulnscope/vulnscope/pkg/pipeline"
	"github.com/vulnscope/vulnscope/pkg/progress"
	"github.com/vulnscope/vulnscope/pkg/report"
	"github.com/vulnscope/vulnscope/pkg/types"
	"github.com/vulnscope/vulnscope/pkg/workspace"
)

type scanKind int

const (
	scanAll scanKind = iota
	scanDeps
	scanStatic
)

func (ac AppConfig) scan(kind scanKind) func(c *cli.Context) error {
	return func(c *cli.Context) error {
		dir := c.Args().First()
		if dir == "" {
			dir = "."
		}
		ws, err := workspace.Open(dir)
		if err != nil {
			return xerrors.Errorf("workspace error: %w", err)
		}

		cfg, err := loadConfig(c, ws.Root())
		if err != nil {
			return err
		}
		switch kind {
		case scanDeps:
			cfg.Static = false
			cfg.Backend = config.BackendNone
		case scanStatic:
			cfg.Dependencies = false
			cfg.Backend = config.BackendNone
			cfg.NoCache = true
		}

		lookup, closeCache := newLookup(cfg)
		defer closeCache()

		opts := []pipeline.Option{
			pipeline.WithOptions(pipeline.Options{
				Target:          ws.Root(),
				Manifest:        cfg.Manifest,
				Dependencies:    cfg.Dependencies,
				Static:          cfg.Static,
				Mode:            pipeline.AIMode(cfg.AIMode),
				ReviewCode:      cfg.ReviewCode,
				LookupBatchSize: cfg.BatchSize,
				ScanBatchSize:   cfg.BatchSize,
				AIBatchSize:     cfg.BatchSize,
			}),
		}
		if cfg.Backend == config.BackendOllama {
			opts = append(opts, pipeline.WithConnector(ollama.New(
				ollama.WithURL(cfg.OllamaURL),
				ollama.WithModel(cfg.Model),
				ollama.WithTimeout(cfg.AITimeout),
			)))
		}
		if !c.GlobalBool("quiet") {
			opts = append(opts, pipeline.WithNotifier(progress.New(ac.Stderr, cfg.SeverityThreshold)))
		}

		res, err := pipeline.New(ws, lookup, opts...).Run(ac.Context)
		if err != nil {
			return xerrors.Errorf("scan error: %w", err)
		}

		if err = ac.writeReport(c.String("output"), cfg.Format, res); err != nil {
			return err
		}

		if code := c.Int("exit-code"); code != 0 && res.Tally().AtLeast(cfg.SeverityThreshold) > 0 {
			return cli.NewExitError("", code)
		}
		return nil
	}
}

// newLookup returns the OSV client, behind the bolt cache unless it is
// disabled or cannot be opened.
func newLookup(cfg config.Config) (osv.Lookup, func()) {
	opts := []osv.Option{
		osv.WithURL(cfg.OSVURL),
		osv.WithTimeout(cfg.OSVTimeout),
	}
	if cfg.OSVRateLimit > 0 {
		opts = append(opts, osv.WithRateLimit(cfg.OSVRateLimit))
	}
	client := osv.NewClient(opts...)
	if cfg.NoCache {
		return client, func() {}
	}

	cache, err := db.Open(cfg.CacheDir, db.WithTTL(cfg.CacheTTL))
	if err != nil {
		log.Warn("OSV cache unavailable, querying without it", log.DirPath(cfg.CacheDir), log.Err(err))
		return client, func() {}
	}
	if n, err := cache.Purge(); err != nil {
		log.Warn("Failed to purge expired lookups", log.Err(err))
	} else if n > 0 {
		log.Debug("Purged expired lookups", log.Int("count", n))
	}
	return osv.NewCachedLookup(client, cache), func() {
		if err := cache.Close(); err != nil {
			log.Warn("Failed to close the OSV cache", log.Err(err))
		}
	}
}

func (ac AppConfig) writeReport(output, format string, res types.ScanReport) error {
	w, err := report.NewWriter(format)
	if err != nil {
		return err
	}

	var out io.Writer = ac.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return xerrors.Errorf("failed to create %s: %w", output, err)
		}
		defer f.Close()
		out = f
	}
	return w.Write(out, res)
}

// loadConfig layers defaults, the config file and the command line flags, in
// that order.
func loadConfig(c *cli.Context, dir string) (config.Config, error) {
	cfg := config.Default()

	var (
		file config.File
		path = c.GlobalString("config")
		err  error
	)
	if path != "" {
		file, err = config.LoadFile(path)
	} else {
		file, path, err = config.LoadLocal(dir)
		if xerrors.Is(err, config.ErrNotFound) {
			err = nil
		}
	}
	if err != nil {
		return cfg, xerrors.Errorf("config error: %w", err)
	}
	if path != "" {
		log.Debug("Loaded config file", log.FilePath(path))
	}
	if err = cfg.Apply(file); err != nil {
		return cfg, xerrors.Errorf("config error (%s): %w", path, err)
	}

	for name, dst := range map[string]*string{
		"format":     &cfg.Format,
		"manifest":   &cfg.Manifest,
		"osv-url":    &cfg.OSVURL,
		"cache-dir":  &cfg.CacheDir,
		"ai-backend": &cfg.Backend,
		"ollama-url": &cfg.OllamaURL,
		"model":      &cfg.Model,
		"ai-mode":    &cfg.AIMode,
	} {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	if c.IsSet("batch-size") {
		cfg.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("osv-rate-limit") {
		cfg.OSVRateLimit = c.Float64("osv-rate-limit")
	}
	if c.IsSet("cache-ttl") {
		cfg.CacheTTL = c.Duration("cache-ttl")
	}
	if c.IsSet("ai-timeout") {
		cfg.AITimeout = c.Duration("ai-timeout")
	}
	if c.Bool("no-cache") {
		cfg.NoCache = true
	}
	if c.Bool("review-code") {
		cfg.ReviewCode = true
	}
	if c.Bool("no-static") {
		cfg.Static = false
	}
	if c.IsSet("severity-threshold") {
		sev, err := types.NewSeverity(c.String("severity-threshold"))
		if err != nil {
			return cfg, xerrors.Errorf("invalid --severity-threshold: %w", err)
		}
		cfg.SeverityThreshold = sev
	}

	if err = cfg.Validate(); err != nil {
		return cfg, xerrors.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}
