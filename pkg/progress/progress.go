// Package progress renders pipeline notifications on a terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"gopkg.in/cheggaaa/pb.v1"

	"github.com/vulnscope/vulnscope/pkg/pipeline"
	"github.com/vulnscope/vulnscope/pkg/types"
)

// Terminal shows a spinner while a stage runs and switches to a progress bar
// once the stage reports item counts. Both stay silent unless out is a
// terminal. Summary prints the pass/fail verdict.
type Terminal struct {
	out         io.Writer
	interactive bool
	threshold   types.Severity

	spinner  *spinner.Spinner
	message  string
	bar      *pb.ProgressBar
	barState pipeline.State
}

var _ pipeline.Notifier = (*Terminal)(nil)

// New writes to out. Severities at or above threshold fail the summary.
func New(out io.Writer, threshold types.Severity) *Terminal {
	var interactive bool
	if f, ok := out.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Terminal{
		out:         out,
		interactive: interactive,
		threshold:   threshold,
		spinner:     spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out)),
	}
}

func (t *Terminal) Stage(state pipeline.State, message string) {
	t.finishBar()
	t.spinner.Stop()
	t.message = message
	if !t.interactive || state == pipeline.StateDone || state == pipeline.StateReporting {
		return
	}
	t.spinner.Suffix = " " + message
	t.spinner.Start()
}

func (t *Terminal) Step(state pipeline.State, done, total int) {
	if !t.interactive {
		return
	}
	if t.bar == nil || t.barState != state {
		t.finishBar()
		t.spinner.Stop()

		t.bar = pb.New(total)
		t.bar.Output = t.out
		t.bar.ShowSpeed = false
		t.bar.SetMaxWidth(80)
		t.bar.Prefix(t.message + " ")
		t.bar.Start()
		t.barState = state
	}
	t.bar.SetTotal(total)
	t.bar.Set(done)
}

func (t *Terminal) finishBar() {
	if t.bar == nil {
		return
	}
	t.bar.Finish()
	t.bar = nil
}

func (t *Terminal) Summary(report types.ScanReport, tally types.Tally) {
	t.finishBar()
	t.spinner.Stop()

	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(t.out, "\nSummary for %s\n", report.Target)
	_, _ = fmt.Fprintf(t.out, "Dependencies: %d vulnerable, %d clean, %d not checked\n",
		len(report.Vulnerable), len(report.NotFound), len(report.Errored))
	if report.AIAnalysis != nil {
		_, _ = fmt.Fprintf(t.out, "AI analysis: %d verdicts, %d failed calls\n",
			len(report.AIAnalysis.Results), len(report.AIAnalysis.Errors))
	}
	if report.StaticAnalysis != nil {
		_, _ = fmt.Fprintf(t.out, "Static analysis: %d findings in %d files (%s)\n",
			len(report.StaticAnalysis.Findings), report.StaticAnalysis.FilesAnalyzed,
			report.StaticAnalysis.Elapsed.Round(time.Millisecond))
	}

	_, _ = fmt.Fprintf(t.out, "Total: %d (%s: %d, %s: %d, %s: %d, %s: %d, %s: %d)\n", tally.Total(),
		types.ColorizeSeverity("CRITICAL"), tally.Critical,
		types.ColorizeSeverity("HIGH"), tally.High,
		types.ColorizeSeverity("MEDIUM"), tally.Medium,
		types.ColorizeSeverity("LOW"), tally.Low,
		types.ColorizeSeverity("UNKNOWN"), tally.Unknown)

	if n := tally.AtLeast(t.threshold); n > 0 {
		_, _ = color.New(color.FgRed, color.Bold).Fprintf(t.out, "FAIL: %d issues at or above %s\n", n, t.threshold)
		return
	}
	_, _ = color.New(color.FgGreen, color.Bold).Fprintf(t.out, "PASS: no issues at or above %s\n", t.threshold)
}
