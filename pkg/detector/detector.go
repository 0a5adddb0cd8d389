// Package detector flags common insecure coding idioms with line-level
// regular expressions.
package detector

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/xerrors"
	"k8s.io/utils/clock"

	"github.com/vulnscope/vulnscope/pkg/log"
	"github.com/vulnscope/vulnscope/pkg/set"
	"github.com/vulnscope/vulnscope/pkg/types"
	"github.com/vulnscope/vulnscope/pkg/workspace"
)

const maxSnippet = 200

type FileSource interface {
	FindFiles(ctx context.Context, filter workspace.Filter) ([]string, error)
	ReadFile(ctx context.Context, ref string) (string, error)
}

type Detector struct {
	files    FileSource
	rules    []Rule
	clock    clock.Clock
	progress func(done, total int)
	logger   *log.Logger
}

type Option func(*Detector)

func WithClock(clock clock.Clock) Option {
	return func(d *Detector) {
		d.clock = clock
	}
}

func WithRules(rules []Rule) Option {
	return func(d *Detector) {
		d.rules = rules
	}
}

func WithProgress(fn func(done, total int)) Option {
	return func(d *Detector) {
		d.progress = fn
	}
}

func New(files FileSource, opts ...Option) *Detector {
	d := &Detector{
		files:    files,
		rules:    DefaultRules,
		clock:    clock.RealClock{},
		progress: func(int, int) {},
		logger:   log.WithPrefix("detector"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Analyze runs every rule over every matching file in the workspace. Files
// that cannot be read are logged and skipped.
func (d *Detector) Analyze(ctx context.Context) (types.StaticAnalysis, error) {
	start := d.clock.Now()

	files, err := d.files.FindFiles(ctx, workspace.StaticScanFilter)
	if err != nil {
		return types.StaticAnalysis{}, xerrors.Errorf("unable to list source files: %w", err)
	}

	var findings []types.StaticFinding
	for i, file := range files {
		source, err := d.files.ReadFile(ctx, file)
		if err != nil {
			if ctx.Err() != nil {
				return types.StaticAnalysis{}, xerrors.Errorf("static analysis interrupted: %w", ctx.Err())
			}
			d.logger.Warn("Skipping unreadable file", log.FilePath(file), log.Err(err))
			d.progress(i+1, len(files))
			continue
		}
		for _, f := range d.Scan(file, source) {
			d.logger.Debug("Finding", log.FilePath(file), log.Category(string(f.Category)), log.Int("line", f.Line))
			findings = append(findings, f)
		}
		d.progress(i+1, len(files))
	}

	res := types.StaticAnalysis{
		Findings:      findings,
		FilesAnalyzed: len(files),
		Elapsed:       d.clock.Since(start),
	}
	d.logger.Info("Static analysis finished",
		log.Int("files", res.FilesAnalyzed),
		log.Int("findings", len(res.Findings)),
		log.Duration("elapsed", res.Elapsed))
	return res, nil
}

type findingKey struct {
	line     int
	category types.Category
}

// Scan applies the rules to a single source text. At most one finding is
// reported per line and category; the first matching rule wins.
func (d *Detector) Scan(file, source string) []types.StaticFinding {
	idx := newLineIndex(source)
	seen := set.New[findingKey]()

	var findings []types.StaticFinding
	for _, r := range d.rules {
		for _, loc := range r.Pattern.FindAllStringIndex(source, -1) {
			line, col := idx.position(loc[0])
			key := findingKey{line: line, category: r.Category}
			if !seen.Add(key) {
				continue
			}

			findings = append(findings, types.StaticFinding{
				Category:       r.Category,
				Severity:       r.Severity,
				File:           file,
				Line:           line,
				Column:         col,
				Snippet:        idx.snippet(line),
				Message:        r.Message,
				Recommendation: r.Recommendation,
			})
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Line != findings[j].Line {
			return findings[i].Line < findings[j].Line
		}
		return findings[i].Column < findings[j].Column
	})
	return findings
}

// lineIndex maps byte offsets to 1-indexed line and column numbers.
type lineIndex struct {
	source string
	starts []int
}

func newLineIndex(source string) lineIndex {
	starts := []int{0}
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return lineIndex{source: source, starts: starts}
}

func (l lineIndex) position(offset int) (line, col int) {
	// first line start beyond offset
	i := sort.SearchInts(l.starts, offset+1)
	lineStart := l.starts[i-1]
	return i, utf8.RuneCountInString(l.source[lineStart:offset]) + 1
}

func (l lineIndex) snippet(line int) string {
	start := l.starts[line-1]
	end := len(l.source)
	if line < len(l.starts) {
		end = l.starts[line] - 1
	}
	s := strings.TrimSpace(l.source[start:end])
	if len(s) > maxSnippet {
		s = s[:maxSnippet]
		for !utf8.ValidString(s) {
			s = s[:len(s)-1]
		}
	}
	return s
}
