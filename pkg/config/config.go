// Package config holds scan settings and loads them from .vulnscope.toml or
// .vulnscope.yaml files.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/samber/oops"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/vulnscope/vulnscope/pkg/ai"
	"github.com/vulnscope/vulnscope/pkg/ai/ollama"
	"github.com/vulnscope/vulnscope/pkg/batch"
	"github.com/vulnscope/vulnscope/pkg/db"
	"github.com/vulnscope/vulnscope/pkg/manifest"
	"github.com/vulnscope/vulnscope/pkg/osv"
	"github.com/vulnscope/vulnscope/pkg/pipeline"
	"github.com/vulnscope/vulnscope/pkg/types"
)

const (
	BackendOllama = "ollama"
	BackendNone   = "none"

	FormatTable = "table"
	FormatJSON  = "json"
)

// LocalFiles are tried in order when no config file is given explicitly.
var LocalFiles = []string{".vulnscope.toml", ".vulnscope.yaml", ".vulnscope.yml"}

var ErrNotFound = xerrors.New("no config file found")

type Config struct {
	Manifest     string
	Dependencies bool
	Static       bool
	BatchSize    int

	Backend    string
	OllamaURL  string
	Model      string
	AITimeout  time.Duration
	AIMode     string
	ReviewCode bool

	OSVURL       string
	OSVTimeout   time.Duration
	OSVRateLimit float64

	CacheDir string
	CacheTTL time.Duration
	NoCache  bool

	Format            string
	SeverityThreshold types.Severity
}

func Default() Config {
	return Config{
		Manifest:          manifest.FileName,
		Dependencies:      true,
		Static:            true,
		BatchSize:         batch.DefaultSize,
		Backend:           BackendOllama,
		OllamaURL:         ollama.DefaultURL,
		Model:             ollama.DefaultModel,
		AITimeout:         ai.DefaultTimeout,
		AIMode:            string(pipeline.ModeFile),
		OSVURL:            osv.DefaultURL,
		OSVTimeout:        osv.DefaultTimeout,
		CacheDir:          CacheDir(),
		CacheTTL:          db.DefaultTTL,
		Format:            FormatTable,
		SeverityThreshold: types.SeverityLow,
	}
}

func CacheDir() string {
	tmpDir, err := os.UserCacheDir()
	if err != nil {
		tmpDir = os.TempDir()
	}
	return filepath.Join(tmpDir, "vulnscope")
}

// File mirrors the config file. Unset keys stay nil and leave the defaults
// alone.
type File struct {
	Manifest     *string `toml:"manifest" yaml:"manifest"`
	Dependencies *bool   `toml:"dependencies" yaml:"dependencies"`
	Static       *bool   `toml:"static" yaml:"static"`
	BatchSize    *int    `toml:"batch_size" yaml:"batch_size"`

	Backend    *string `toml:"ai_backend" yaml:"ai_backend"`
	OllamaURL  *string `toml:"ollama_url" yaml:"ollama_url"`
	Model      *string `toml:"model" yaml:"model"`
	AITimeout  *string `toml:"ai_timeout" yaml:"ai_timeout"`
	AIMode     *string `toml:"ai_mode" yaml:"ai_mode"`
	ReviewCode *bool   `toml:"review_code" yaml:"review_code"`

	OSVURL       *string  `toml:"osv_url" yaml:"osv_url"`
	OSVTimeout   *string  `toml:"osv_timeout" yaml:"osv_timeout"`
	OSVRateLimit *float64 `toml:"osv_rate_limit" yaml:"osv_rate_limit"`

	CacheDir *string `toml:"cache_dir" yaml:"cache_dir"`
	CacheTTL *string `toml:"cache_ttl" yaml:"cache_ttl"`
	NoCache  *bool   `toml:"no_cache" yaml:"no_cache"`

	Format            *string `toml:"format" yaml:"format"`
	SeverityThreshold *string `toml:"severity_threshold" yaml:"severity_threshold"`
}

// LoadFile decodes path as TOML or YAML depending on its extension.
func LoadFile(path string) (File, error) {
	eb := oops.In("config").With("path", path)

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &f); err != nil {
			return File{}, eb.Wrapf(err, "toml decode error")
		}
	case ".yaml", ".yml":
		b, err := os.ReadFile(path)
		if err != nil {
			return File{}, eb.Wrapf(err, "failed to read file")
		}
		if err = yaml.UnmarshalStrict(b, &f); err != nil {
			return File{}, eb.Wrapf(err, "yaml decode error")
		}
	default:
		return File{}, eb.Errorf("unsupported config file extension")
	}
	return f, nil
}

// LoadLocal loads the first of LocalFiles present in dir. It returns
// ErrNotFound when there is none.
func LoadLocal(dir string) (File, string, error) {
	for _, name := range LocalFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		f, err := LoadFile(path)
		return f, path, err
	}
	return File{}, "", ErrNotFound
}

// Apply overlays the keys set in f.
func (c *Config) Apply(f File) error {
	setString(&c.Manifest, f.Manifest)
	setBool(&c.Dependencies, f.Dependencies)
	setBool(&c.Static, f.Static)
	if f.BatchSize != nil {
		c.BatchSize = *f.BatchSize
	}

	setString(&c.Backend, f.Backend)
	setString(&c.OllamaURL, f.OllamaURL)
	setString(&c.Model, f.Model)
	setString(&c.AIMode, f.AIMode)
	setBool(&c.ReviewCode, f.ReviewCode)

	setString(&c.OSVURL, f.OSVURL)
	if f.OSVRateLimit != nil {
		c.OSVRateLimit = *f.OSVRateLimit
	}

	setString(&c.CacheDir, f.CacheDir)
	setBool(&c.NoCache, f.NoCache)
	setString(&c.Format, f.Format)

	for _, d := range []struct {
		key string
		raw *string
		dst *time.Duration
	}{
		{"ai_timeout", f.AITimeout, &c.AITimeout},
		{"osv_timeout", f.OSVTimeout, &c.OSVTimeout},
		{"cache_ttl", f.CacheTTL, &c.CacheTTL},
	} {
		if d.raw == nil {
			continue
		}
		v, err := time.ParseDuration(*d.raw)
		if err != nil {
			return xerrors.Errorf("invalid %s %q: %w", d.key, *d.raw, err)
		}
		*d.dst = v
	}

	if f.SeverityThreshold != nil {
		sev, err := types.NewSeverity(*f.SeverityThreshold)
		if err != nil {
			return xerrors.Errorf("invalid severity_threshold: %w", err)
		}
		c.SeverityThreshold = sev
	}
	return c.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.Backend != BackendOllama && c.Backend != BackendNone:
		return xerrors.Errorf("unknown AI backend %q", c.Backend)
	case c.AIMode != string(pipeline.ModeFile) && c.AIMode != string(pipeline.ModeAdvisory):
		return xerrors.Errorf("unknown AI mode %q", c.AIMode)
	case c.Format != FormatTable && c.Format != FormatJSON:
		return xerrors.Errorf("unknown output format %q", c.Format)
	case c.BatchSize < 0:
		return xerrors.Errorf("batch size must not be negative: %d", c.BatchSize)
	case c.OSVRateLimit < 0:
		return xerrors.Errorf("OSV rate limit must not be negative: %v", c.OSVRateLimit)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
