// Package workspace enumerates and reads source files under a project root.
package workspace

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/samber/lo"
	"github.com/samber/oops"

	"github.com/vulnscope/vulnscope/pkg/log"
)

// Filter selects files by extension and prunes directories by name.
type Filter struct {
	Extensions      []string
	ExcludeDirs     []string
	ExcludeSuffixes []string
}

var (
	// ImportScanFilter selects the JavaScript/TypeScript sources searched for
	// package references. Test code is left out.
	ImportScanFilter = Filter{
		Extensions:      []string{".ts", ".js", ".tsx", ".jsx"},
		ExcludeDirs:     []string{"node_modules", "spec", "test"},
		ExcludeSuffixes: []string{".spec.ts", ".spec.js"},
	}

	// StaticScanFilter selects every language the pattern detector knows.
	StaticScanFilter = Filter{
		Extensions:  []string{".ts", ".js", ".tsx", ".jsx", ".py", ".java", ".cs", ".php", ".rb", ".go"},
		ExcludeDirs: []string{"node_modules"},
	}
)

func (f Filter) matchDir(name string) bool {
	return lo.Contains(f.ExcludeDirs, name)
}

func (f Filter) matchFile(name string) bool {
	for _, s := range f.ExcludeSuffixes {
		if strings.HasSuffix(name, s) {
			return false
		}
	}
	return lo.Contains(f.Extensions, filepath.Ext(name))
}

// Workspace is a project directory on the local file system. File references
// are slash-separated paths relative to the root.
type Workspace struct {
	root   string
	ignore gitignore.Matcher
	logger *log.Logger
}

type Option func(*Workspace)

// WithoutGitignore disables .gitignore handling.
func WithoutGitignore() Option {
	return func(w *Workspace) {
		w.ignore = nil
	}
}

func Open(root string, opts ...Option) (*Workspace, error) {
	eb := oops.In("workspace").With("root_dir", root)

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, eb.Wrapf(err, "absolute path error")
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, eb.Wrapf(err, "no workspace")
	} else if !info.IsDir() {
		return nil, eb.Errorf("workspace is not a directory")
	}

	w := &Workspace{
		root:   abs,
		logger: log.WithPrefix("workspace"),
	}

	ps, err := gitignore.ReadPatterns(osfs.New(abs), nil)
	if err != nil {
		w.logger.Warn("Unable to read .gitignore files", log.DirPath(abs), log.Err(err))
	} else if len(ps) > 0 {
		w.ignore = gitignore.NewMatcher(ps)
	}

	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Workspace) Root() string {
	return w.root
}

// FindFiles walks the workspace and returns the files selected by filter in
// lexical order. Hidden directories are skipped.
func (w *Workspace) FindFiles(ctx context.Context, filter Filter) ([]string, error) {
	eb := oops.In("workspace").With("root_dir", w.root)

	var files []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		eb := eb.With("path", path)
		if err != nil {
			return eb.Wrapf(err, "walk dir error")
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		if path == w.root {
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return eb.Wrapf(err, "relative path error")
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || filter.matchDir(d.Name()) || w.ignored(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !filter.matchFile(d.Name()) || w.ignored(rel, false) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, eb.Wrapf(err, "file walk error")
	}
	w.logger.Debug("Files found", log.Int("count", len(files)))
	return files, nil
}

func (w *Workspace) ignored(rel string, isDir bool) bool {
	if w.ignore == nil {
		return false
	}
	return w.ignore.Match(strings.Split(rel, "/"), isDir)
}

// ReadFile returns the contents of a file found by FindFiles.
func (w *Workspace) ReadFile(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(w.root, filepath.FromSlash(ref))
	b, err := os.ReadFile(path)
	if err != nil {
		return "", oops.In("workspace").With("path", path).Wrapf(err, "file read error")
	}
	return string(b), nil
}
