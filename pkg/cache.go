package pkg

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
	"golang.org/x/xerrors"

	"github.com/vulnscope/vulnscope/pkg/ai/ollama"
	"github.com/vulnscope/vulnscope/pkg/config"
	"github.com/vulnscope/vulnscope/pkg/db"
)

func (ac AppConfig) cleanCache(c *cli.Context) error {
	cacheDir := c.String("cache-dir")

	if _, err := os.Stat(db.Path(cacheDir)); os.IsNotExist(err) {
		_, _ = fmt.Fprintln(ac.Stdout, "Cache is already empty")
		return nil
	}

	var total int
	if cache, err := db.Open(cacheDir); err == nil {
		counts, err := cache.Count()
		if err == nil {
			for _, n := range counts {
				total += n
			}
		}
		_ = cache.Close()
	}

	if err := db.Remove(cacheDir); err != nil {
		return xerrors.Errorf("cache clean error: %w", err)
	}
	_, _ = fmt.Fprintf(ac.Stdout, "Removed %d cached lookups from %s\n", total, cacheDir)
	return nil
}

func (ac AppConfig) models(c *cli.Context) error {
	url := ollama.DefaultURL
	var (
		f   config.File
		err error
	)
	if path := c.GlobalString("config"); path != "" {
		f, err = config.LoadFile(path)
	} else {
		f, _, err = config.LoadLocal(".")
	}
	if err == nil && f.OllamaURL != nil {
		url = *f.OllamaURL
	}
	if c.IsSet("ollama-url") {
		url = c.String("ollama-url")
	}

	models, err := ollama.New(ollama.WithURL(url)).Models(ac.Context)
	if err != nil {
		return xerrors.Errorf("unable to list models: %w", err)
	}
	if len(models) == 0 {
		_, _ = fmt.Fprintf(ac.Stdout, "No models installed on %s\n", url)
		return nil
	}
	for _, m := range models {
		_, _ = fmt.Fprintf(ac.Stdout, "%s\t%s\t%d MB\n", m.Name, m.ModifiedAt.Format("2006-01-02"), m.Size/(1<<20))
	}
	return nil
}
