// Package report writes scan reports as a table or as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/vulnscope/vulnscope/pkg/types"
)

type Writer interface {
	Write(w io.Writer, report types.ScanReport) error
}

func NewWriter(format string) (Writer, error) {
	switch format {
	case "table", "":
		return TableWriter{}, nil
	case "json":
		return JSONWriter{}, nil
	}
	return nil, xerrors.Errorf("unknown report format: %s", format)
}

type JSONWriter struct{}

func (JSONWriter) Write(w io.Writer, report types.ScanReport) error {
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return xerrors.Errorf("json marshal error: %w", err)
	}
	if _, err = fmt.Fprintln(w, string(b)); err != nil {
		return xerrors.Errorf("failed to write report: %w", err)
	}
	return nil
}

// TableWriter prints one table per section. Empty sections are skipped.
type TableWriter struct{}

func (TableWriter) Write(w io.Writer, report types.ScanReport) error {
	var tables []table
	if len(report.Vulnerable) > 0 {
		tables = append(tables, dependencyTable(report.Vulnerable))
	}
	if len(report.Errored) > 0 {
		t := table{title: "Dependencies not checked", header: []string{"PACKAGE", "VERSION"}}
		for _, p := range report.Errored {
			t.rows = append(t.rows, []string{p.Name, p.Version})
		}
		tables = append(tables, t)
	}
	if report.AIAnalysis != nil {
		tables = append(tables, aiTable(*report.AIAnalysis))
	}
	if report.StaticAnalysis != nil && len(report.StaticAnalysis.Findings) > 0 {
		tables = append(tables, staticTable(report.StaticAnalysis.Findings))
	}

	for _, t := range tables {
		if _, err := io.WriteString(w, t.render()); err != nil {
			return xerrors.Errorf("failed to write report: %w", err)
		}
	}
	return nil
}

func dependencyTable(pkgs []types.Package) table {
	t := table{
		title:       "Vulnerable dependencies",
		header:      []string{"PACKAGE", "VERSION", "VULNERABILITY", "SEVERITY", "FIXED IN", "PURL"},
		severityCol: 3,
	}
	// worst packages first
	pkgs = slices.Clone(pkgs)
	sort.SliceStable(pkgs, func(i, j int) bool {
		return pkgs[i].MaxSeverity() > pkgs[j].MaxSeverity()
	})
	for _, p := range pkgs {
		for _, v := range p.Vulnerabilities {
			sev, _ := v.Rating()
			t.rows = append(t.rows, []string{
				p.Name, p.Version, v.ID, sev.String(),
				strings.Join(v.FixedVersions(p.Name), ", "), p.PURL(),
			})
		}
	}
	return t
}

func aiTable(a types.AggregatedAnalysis) table {
	t := table{
		title:       "AI verdicts",
		header:      []string{"TARGET", "PACKAGE", "RISK", "LINES", "PROBLEM"},
		severityCol: 2,
	}
	for _, r := range a.Results {
		if !r.Present {
			continue
		}
		target := r.File
		if r.VulnerabilityID != "" {
			target = r.VulnerabilityID
		}
		pkg := r.Package
		if pkg == "" {
			pkg = strings.Join(r.Packages, ", ")
		}
		t.rows = append(t.rows, []string{
			target, pkg, r.Risk.Severity().String(), lineSpans(r), r.Problem,
		})
	}
	for _, err := range a.Errors {
		t.notes = append(t.notes, "error: "+err.Error())
	}
	return t
}

func staticTable(findings []types.StaticFinding) table {
	t := table{
		title:       "Static findings",
		header:      []string{"LOCATION", "CATEGORY", "SEVERITY", "MESSAGE"},
		severityCol: 2,
	}
	for _, f := range findings {
		t.rows = append(t.rows, []string{
			fmt.Sprintf("%s:%d:%d", f.File, f.Line, f.Column),
			string(f.Category), f.Severity.String(), f.Message,
		})
	}
	return t
}

func lineSpans(r types.AnalysisResult) string {
	span := func(lr types.LineRange) string {
		if lr.Start == lr.End {
			return strconv.Itoa(lr.Start)
		}
		return fmt.Sprintf("%d-%d", lr.Start, lr.End)
	}
	spans := lo.Map(r.VulnerableCode, func(lr types.LineRange, _ int) string { return span(lr) })
	for _, fl := range r.LinesByFile {
		for _, lr := range fl.Ranges {
			spans = append(spans, fl.File+":"+span(lr))
		}
	}
	return strings.Join(spans, ", ")
}

type table struct {
	title  string
	header []string
	rows   [][]string
	notes  []string
	// column holding a severity name, coloured after padding; 0 disables
	severityCol int
}

const maxCellWidth = 60

func (t table) render() string {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], min(runewidth.StringWidth(cell), maxCellWidth))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%s\n", t.title)
	line := func(cells []string, colour bool) {
		for i, cell := range cells {
			cell = runewidth.FillRight(runewidth.Truncate(cell, maxCellWidth, "..."), widths[i])
			if colour && t.severityCol > 0 && i == t.severityCol {
				cell = types.ColorizeSeverity(strings.TrimSpace(cell)) + strings.Repeat(" ", widths[i]-len(strings.TrimSpace(cell)))
			}
			if i > 0 {
				sb.WriteString(" | ")
			}
			sb.WriteString(cell)
		}
		sb.WriteString("\n")
	}
	line(t.header, false)
	sep := lo.Map(widths, func(w, _ int) string { return strings.Repeat("-", w) })
	sb.WriteString(strings.Join(sep, "-+-") + "\n")
	for _, row := range t.rows {
		line(row, true)
	}
	if len(t.rows) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, n := range t.notes {
		sb.WriteString(n + "\n")
	}
	return sb.String()
}
