// Package occurrence finds the source lines that import or require a package.
package occurrence

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/xerrors"

	"github.com/vulnscope/vulnscope/pkg/batch"
	"github.com/vulnscope/vulnscope/pkg/log"
	"github.com/vulnscope/vulnscope/pkg/set"
	"github.com/vulnscope/vulnscope/pkg/types"
	"github.com/vulnscope/vulnscope/pkg/workspace"
)

// FileSource is the part of the workspace the scanner reads from.
type FileSource interface {
	FindFiles(ctx context.Context, filter workspace.Filter) ([]string, error)
	ReadFile(ctx context.Context, ref string) (string, error)
}

// Reference forms, in order: named import, bare import, require call,
// subpath import and subpath require. %s is the quoted package name.
var referenceForms = []string{
	`import\s+.*from\s+['"]%s['"]`,
	`import\s+['"]%s['"]`,
	`require\s*\(\s*['"]%s['"]\s*\)`,
	`import\s+.*from\s+['"]%s/`,
	`require\s*\(\s*['"]%s/`,
}

// Matcher recognises references to a single package.
type Matcher struct {
	pkg      string
	patterns []*regexp.Regexp
}

func NewMatcher(pkg string) *Matcher {
	quoted := regexp.QuoteMeta(pkg)
	m := &Matcher{pkg: pkg}
	for _, form := range referenceForms {
		m.patterns = append(m.patterns, regexp.MustCompile(`(?i)`+strings.ReplaceAll(form, "%s", quoted)))
	}
	return m
}

// Lines returns the 1-indexed lines of source that reference the package.
func (m *Matcher) Lines(source string) []int {
	var lines []int
	for i, line := range strings.Split(source, "\n") {
		for _, p := range m.patterns {
			if p.MatchString(line) {
				lines = append(lines, i+1)
				break
			}
		}
	}
	return lines
}

// Occurrences maps a package name to the files referencing it.
type Occurrences map[string][]types.Occurrence

// Files returns the distinct files with at least one occurrence, in the
// order they were scanned.
func (o Occurrences) Files(order []string) []string {
	hit := set.New[string]()
	for _, occs := range o {
		for _, occ := range occs {
			hit.Append(occ.File)
		}
	}
	var files []string
	for _, f := range order {
		if hit.Contains(f) {
			files = append(files, f)
		}
	}
	return files
}

// ByFile groups the occurrences per file, ordered by package name within a
// file.
func (o Occurrences) ByFile() map[string][]types.Occurrence {
	pkgs := set.NewOrdered[string]()
	for pkg := range o {
		pkgs.Append(pkg)
	}

	byFile := map[string][]types.Occurrence{}
	for _, pkg := range pkgs.Values() {
		for _, occ := range o[pkg] {
			byFile[occ.File] = append(byFile[occ.File], occ)
		}
	}
	return byFile
}

type Scanner struct {
	files     FileSource
	batchSize int
	progress  func(done, total int)
	logger    *log.Logger
}

type Option func(*Scanner)

func WithBatchSize(size int) Option {
	return func(s *Scanner) {
		s.batchSize = size
	}
}

func WithProgress(fn func(done, total int)) Option {
	return func(s *Scanner) {
		s.progress = fn
	}
}

func NewScanner(files FileSource, opts ...Option) *Scanner {
	s := &Scanner{
		files:     files,
		batchSize: batch.DefaultSize,
		progress:  func(int, int) {},
		logger:    log.WithPrefix("occurrence"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type fileHits struct {
	file   string
	source string
	hits   map[string][]int
}

// Scan searches the JavaScript/TypeScript sources of the workspace for
// references to pkgs. A file that cannot be read fails the scan. The scanned
// file list is returned alongside the occurrences.
func (s *Scanner) Scan(ctx context.Context, pkgs []types.Package) (Occurrences, []string, error) {
	files, err := s.files.FindFiles(ctx, workspace.ImportScanFilter)
	if err != nil {
		return nil, nil, xerrors.Errorf("unable to list source files: %w", err)
	}

	matchers := make([]*Matcher, 0, len(pkgs))
	for _, p := range pkgs {
		matchers = append(matchers, NewMatcher(p.Name))
	}

	scanned, err := batch.Run(ctx, files, s.batchSize, func(ctx context.Context, file string) (fileHits, error) {
		return s.scanFile(ctx, file, matchers)
	}, batch.WithGroupDone(s.progress))
	if err != nil {
		return nil, nil, xerrors.Errorf("occurrence scan failed: %w", err)
	}

	// merged once every group settled, in file order
	occs := Occurrences{}
	for _, fh := range scanned {
		for _, m := range matchers {
			lines, ok := fh.hits[m.pkg]
			if !ok {
				continue
			}
			occs[m.pkg] = append(occs[m.pkg], types.Occurrence{
				File:    fh.file,
				Source:  fh.source,
				Lines:   lines,
				Package: m.pkg,
			})
		}
	}

	s.logger.Info("Occurrence scan finished",
		log.Int("files", len(files)),
		log.Int("packages_referenced", len(occs)))
	return occs, files, nil
}

func (s *Scanner) scanFile(ctx context.Context, file string, matchers []*Matcher) (fileHits, error) {
	source, err := s.files.ReadFile(ctx, file)
	if err != nil {
		return fileHits{}, err
	}

	fh := fileHits{file: file, source: source, hits: map[string][]int{}}
	for _, m := range matchers {
		if lines := m.Lines(source); len(lines) > 0 {
			fh.hits[m.pkg] = lines
		}
	}
	return fh, nil
}
