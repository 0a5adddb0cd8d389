// Package pipeline sequences dependency resolution, occurrence scanning, AI
// verification and static detection into one scan.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/xerrors"
	"k8s.io/utils/clock"

	"github.com/vulnscope/vulnscope/pkg/ai"
	"github.com/vulnscope/vulnscope/pkg/batch"
	"github.com/vulnscope/vulnscope/pkg/detector"
	"github.com/vulnscope/vulnscope/pkg/formatter"
	"github.com/vulnscope/vulnscope/pkg/log"
	"github.com/vulnscope/vulnscope/pkg/manifest"
	"github.com/vulnscope/vulnscope/pkg/occurrence"
	"github.com/vulnscope/vulnscope/pkg/osv"
	"github.com/vulnscope/vulnscope/pkg/prompt"
	"github.com/vulnscope/vulnscope/pkg/resolver"
	"github.com/vulnscope/vulnscope/pkg/types"
	"github.com/vulnscope/vulnscope/pkg/workspace"
)

// AIMode selects how vulnerable packages are presented to the model.
type AIMode string

const (
	// ModeFile sends one prompt per source file with every vulnerable
	// package it references.
	ModeFile AIMode = "file"
	// ModeAdvisory sends one prompt per package vulnerability with every
	// file referencing the package.
	ModeAdvisory AIMode = "advisory"
)

type Options struct {
	Target       string
	Manifest     string
	Dependencies bool
	Static       bool
	Mode         AIMode
	ReviewCode   bool

	LookupBatchSize int
	ScanBatchSize   int
	AIBatchSize     int
}

func DefaultOptions() Options {
	return Options{
		Manifest:        manifest.FileName,
		Dependencies:    true,
		Static:          true,
		Mode:            ModeFile,
		LookupBatchSize: batch.DefaultSize,
		ScanBatchSize:   batch.DefaultSize,
		AIBatchSize:     batch.DefaultSize,
	}
}

type Coordinator struct {
	ws        Workspace
	lookup    osv.Lookup
	connector ai.Connector
	notifier  Notifier
	clock     clock.Clock
	opts      Options
	state     State
	logger    *log.Logger
}

type Option func(*Coordinator)

func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

// WithConnector enables the AI stage.
func WithConnector(conn ai.Connector) Option {
	return func(c *Coordinator) {
		c.connector = conn
	}
}

func WithClock(clock clock.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

func WithOptions(opts Options) Option {
	return func(c *Coordinator) {
		c.opts = opts
	}
}

func New(ws Workspace, lookup osv.Lookup, opts ...Option) *Coordinator {
	c := &Coordinator{
		ws:       ws,
		lookup:   lookup,
		notifier: NopNotifier{},
		clock:    clock.RealClock{},
		opts:     DefaultOptions(),
		logger:   log.WithPrefix("pipeline"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.opts.Manifest == "" {
		c.opts.Manifest = manifest.FileName
	}
	if c.opts.Mode == "" {
		c.opts.Mode = ModeFile
	}
	return c
}

func (c *Coordinator) State() State {
	return c.state
}

func (c *Coordinator) enter(s State, msg string) {
	c.state = s
	c.logger.Debug("Stage", log.String("state", s.String()))
	c.notifier.Stage(s, msg)
}

func (c *Coordinator) stepper(s State) func(done, total int) {
	return func(done, total int) {
		c.notifier.Step(s, done, total)
	}
}

// Run executes one scan. Manifest problems, an unreachable vulnerability
// database and occurrence scan failures abort the run; failures of single AI
// calls or unreadable files for the static detector do not.
func (c *Coordinator) Run(ctx context.Context) (types.ScanReport, error) {
	start := c.clock.Now()
	report := types.ScanReport{Target: c.opts.Target}
	c.state = StateIdle

	var (
		occs    occurrence.Occurrences
		scanned []string
	)
	if c.opts.Dependencies {
		res, err := c.resolve(ctx)
		if err != nil {
			return report, err
		}
		report.Vulnerable = res.Vulnerable
		report.NotFound = res.NotFound
		report.Errored = res.Errored

		if len(res.Vulnerable) > 0 {
			c.enter(StateScanningOccurrences,
				fmt.Sprintf("Searching code for %d vulnerable packages", len(res.Vulnerable)))
			occs, scanned, err = occurrence.NewScanner(c.ws,
				occurrence.WithBatchSize(c.opts.ScanBatchSize),
				occurrence.WithProgress(c.stepper(StateScanningOccurrences)),
			).Scan(ctx, res.Vulnerable)
			if err != nil {
				return report, err
			}
		}
	}

	tasks, err := c.aiTasks(ctx, report.Vulnerable, occs, scanned)
	if err != nil {
		return report, err
	}
	if len(tasks) > 0 && c.connector != nil {
		c.enter(StateAnalyzingWithAI, fmt.Sprintf("Asking the model about %d targets", len(tasks)))
		analysis, err := c.analyze(ctx, tasks)
		if err != nil {
			return report, err
		}
		report.AIAnalysis = &analysis
	}

	if c.opts.Static {
		c.enter(StateRunningStaticDetector, "Running static pattern detector")
		sa, err := detector.New(c.ws,
			detector.WithClock(c.clock),
			detector.WithProgress(c.stepper(StateRunningStaticDetector)),
		).Analyze(ctx)
		if err != nil {
			return report, err
		}
		report.StaticAnalysis = &sa
	}

	c.enter(StateReporting, "Building report")
	c.notifier.Summary(report, report.Tally())

	c.enter(StateDone, "Scan finished")
	c.logger.Info("Scan finished", log.Duration("elapsed", c.clock.Since(start)))
	return report, nil
}

func (c *Coordinator) resolve(ctx context.Context) (resolver.Result, error) {
	c.enter(StateResolvingDependencies, "Checking dependencies against OSV")

	src, err := c.ws.ReadFile(ctx, c.opts.Manifest)
	if err != nil {
		return resolver.Result{}, &types.ManifestError{Path: c.opts.Manifest, Msg: "unable to read manifest", Err: err}
	}
	pkgs, err := manifest.Parse(strings.NewReader(src))
	if err != nil {
		var me *types.ManifestError
		if xerrors.As(err, &me) {
			me.Path = c.opts.Manifest
		}
		return resolver.Result{}, err
	}

	return resolver.New(c.lookup,
		resolver.WithBatchSize(c.opts.LookupBatchSize),
		resolver.WithProgress(c.stepper(StateResolvingDependencies)),
	).Resolve(ctx, pkgs)
}

// task is one prompt plus how to read and attribute its answer.
type task struct {
	label           string
	prompt          string
	decode          func(string) ([]types.AnalysisResult, error)
	pkg             string
	pkgs            []string
	file            string
	vulnerabilityID string
}

func decodeList(raw string) ([]types.AnalysisResult, error) {
	return formatter.DecodeList(raw)
}

func decodeFlat(raw string) ([]types.AnalysisResult, error) {
	res, err := formatter.DecodeFlat(raw)
	if err != nil {
		return nil, err
	}
	return []types.AnalysisResult{res}, nil
}

func (c *Coordinator) aiTasks(ctx context.Context, vulnerable []types.Package, occs occurrence.Occurrences,
	scanned []string) ([]task, error) {
	if c.connector == nil {
		return nil, nil
	}

	var tasks []task
	switch c.opts.Mode {
	case ModeAdvisory:
		for _, pkg := range vulnerable {
			pkgOccs := occs[pkg.Name]
			if len(pkgOccs) == 0 {
				continue
			}
			for _, vuln := range pkg.Vulnerabilities {
				p, err := prompt.Advisory(pkg, vuln, pkgOccs)
				if err != nil {
					return nil, err
				}
				tasks = append(tasks, task{
					label:           pkg.Name + " " + vuln.ID,
					prompt:          p,
					decode:          decodeFlat,
					pkg:             pkg.Name,
					vulnerabilityID: vuln.ID,
				})
			}
		}
	default:
		byFile := occs.ByFile()
		vulnByName := lo.KeyBy(vulnerable, func(p types.Package) string { return p.Name })
		for _, file := range occs.Files(scanned) {
			fileOccs := byFile[file]
			pkgs := lo.FilterMap(fileOccs, func(o types.Occurrence, _ int) (types.Package, bool) {
				p, ok := vulnByName[o.Package]
				return p, ok
			})
			p, err := prompt.PackageOccurrence(file, fileOccs[0].Source, pkgs)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task{
				label:  file,
				prompt: p,
				decode: decodeList,
				pkgs:   lo.Map(pkgs, func(p types.Package, _ int) string { return p.Name }),
				file:   file,
			})
		}
	}

	if c.opts.ReviewCode {
		files, err := c.ws.FindFiles(ctx, workspace.StaticScanFilter)
		if err != nil {
			return nil, xerrors.Errorf("unable to list files for code review: %w", err)
		}
		for _, file := range files {
			tasks = append(tasks, task{label: file, file: file, decode: decodeList})
		}
	}
	return tasks, nil
}

// analyze runs every task through the model. A failing task is recorded and
// the others go on; results are merged after each group settles.
func (c *Coordinator) analyze(ctx context.Context, tasks []task) (types.AggregatedAnalysis, error) {
	var analysis types.AggregatedAnalysis

	if !c.connector.IsAvailable(ctx) {
		err := &types.ConnectorError{Service: "ai", Msg: "backend unavailable, AI analysis skipped"}
		c.logger.Warn("AI backend unavailable", log.Err(err))
		analysis.Errors = append(analysis.Errors, err)
		return analysis, nil
	}

	outcomes, err := batch.Settle(ctx, tasks, c.opts.AIBatchSize, c.runTask,
		batch.WithGroupDone(c.stepper(StateAnalyzingWithAI)))
	if err != nil {
		return analysis, xerrors.Errorf("AI analysis interrupted: %w", err)
	}
	for i, o := range outcomes {
		if o.Err != nil {
			t := tasks[i]
			c.logger.Warn("AI analysis failed", log.String("target", t.label), log.Err(o.Err))
			analysis.Errors = append(analysis.Errors, xerrors.Errorf("%s: %w", t.label, o.Err))
			continue
		}
		analysis.Results = append(analysis.Results, o.Value...)
	}
	return analysis, nil
}

func (c *Coordinator) runTask(ctx context.Context, t task) ([]types.AnalysisResult, error) {
	p := t.prompt
	if p == "" {
		// code review prompts are rendered lazily to avoid holding every file
		src, err := c.ws.ReadFile(ctx, t.file)
		if err != nil {
			return nil, err
		}
		if p, err = prompt.PureCode(t.file, src); err != nil {
			return nil, err
		}
	}

	raw, err := c.connector.Prompt(ctx, p)
	if err != nil {
		return nil, err
	}
	results, err := t.decode(raw)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Package = t.pkg
		results[i].Packages = t.pkgs
		results[i].File = t.file
		results[i].VulnerabilityID = t.vulnerabilityID
	}
	return results, nil
}
