package progress_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/vulnscope/vulnscope/pkg/pipeline"
	"github.com/vulnscope/vulnscope/pkg/progress"
	"github.com/vulnscope/vulnscope/pkg/types"
)

func TestTerminal_Summary(t *testing.T) {
	color.NoColor = true

	report := types.ScanReport{
		Target:     "/src/app",
		Vulnerable: []types.Package{{Name: "left-pad", Version: "1.3.0"}},
		NotFound:   []types.Package{{Name: "react", Version: "18.2.0"}, {Name: "vue", Version: "3.4.0"}},
		AIAnalysis: &types.AggregatedAnalysis{
			Results: []types.AnalysisResult{{Present: true, Risk: "alto"}},
		},
		StaticAnalysis: &types.StaticAnalysis{
			Findings:      []types.StaticFinding{{Severity: types.SeverityCritical}},
			FilesAnalyzed: 4,
			Elapsed:       1500 * time.Millisecond,
		},
	}

	tests := []struct {
		name      string
		report    types.ScanReport
		threshold types.Severity
		want      []string
	}{
		{
			name:      "issues above threshold fail",
			report:    report,
			threshold: types.SeverityHigh,
			want: []string{
				"Summary for /src/app",
				"Dependencies: 1 vulnerable, 2 clean, 0 not checked",
				"AI analysis: 1 verdicts, 0 failed calls",
				"Static analysis: 1 findings in 4 files (1.5s)",
				"Total: 2 (CRITICAL: 1, HIGH: 1, MEDIUM: 0, LOW: 0, UNKNOWN: 0)",
				"FAIL: 2 issues at or above HIGH",
			},
		},
		{
			name: "low findings under a high threshold pass",
			report: types.ScanReport{
				Target: "/src/app",
				StaticAnalysis: &types.StaticAnalysis{
					Findings: []types.StaticFinding{{Severity: types.SeverityLow}},
				},
			},
			threshold: types.SeverityHigh,
			want: []string{
				"Total: 1 (CRITICAL: 0, HIGH: 0, MEDIUM: 0, LOW: 1, UNKNOWN: 0)",
				"PASS: no issues at or above HIGH",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			term := progress.New(&buf, tt.threshold)

			term.Stage(pipeline.StateReporting, "Building report")
			term.Summary(tt.report, tt.report.Tally())

			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestTerminal_NotATerminal(t *testing.T) {
	var buf bytes.Buffer
	term := progress.New(&buf, types.SeverityLow)

	term.Stage(pipeline.StateResolvingDependencies, "Checking dependencies against OSV")
	term.Step(pipeline.StateResolvingDependencies, 15, 40)
	term.Step(pipeline.StateResolvingDependencies, 40, 40)
	term.Stage(pipeline.StateDone, "Scan finished")

	assert.Empty(t, buf.String())
}
