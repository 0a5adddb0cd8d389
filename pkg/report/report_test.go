package report_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/vulnscope/vulnscope/pkg/report"
	"github.com/vulnscope/vulnscope/pkg/types"
)

var scanReport = types.ScanReport{
	Target: "/src/app",
	Vulnerable: []types.Package{
		{
			Name:      "lodash",
			Version:   "4.17.20",
			Ecosystem: types.EcosystemNpm,
			Vulnerabilities: []types.Vulnerability{
				{
					ID:               "GHSA-35jh-r3h4-6jhm",
					DatabaseSpecific: types.DatabaseSpecific{Severity: "HIGH"},
					Affected: []types.Affected{
						{
							Package: types.AffectedPackage{Ecosystem: "npm", Name: "lodash"},
							Ranges:  []types.Range{{Type: "SEMVER", Events: []types.Event{{Introduced: "0"}, {Fixed: "4.17.21"}}}},
						},
					},
				},
			},
		},
	},
	Errored: []types.Package{{Name: "private-pkg", Version: "0.1.0"}},
	AIAnalysis: &types.AggregatedAnalysis{
		Errors: []error{xerrors.New("b.js: AI response in invalid format")},
		Results: []types.AnalysisResult{
			{
				Present:        true,
				Risk:           "high",
				Problem:        "Template compiled from user input",
				VulnerableCode: []types.LineRange{{Start: 3, End: 3}, {Start: 7, End: 9}},
				Package:        "lodash",
				File:           "a.js",
			},
			{
				Present:  true,
				Risk:     "medium",
				Problem:  "Unbounded padding",
				Packages: []string{"left-pad", "lodash"},
				File:     "d.js",
			},
			{Present: false, File: "c.js"},
		},
	},
	StaticAnalysis: &types.StaticAnalysis{
		Findings: []types.StaticFinding{
			{
				Category: types.CategoryDynamicCode,
				Severity: types.SeverityCritical,
				File:     "a.js",
				Line:     12,
				Column:   5,
				Message:  "eval executes arbitrary code",
			},
		},
		FilesAnalyzed: 3,
	},
}

func TestTableWriter_Write(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	require.NoError(t, report.TableWriter{}.Write(&buf, scanReport))
	got := buf.String()

	for _, want := range []string{
		"Vulnerable dependencies",
		"GHSA-35jh-r3h4-6jhm",
		"HIGH",
		"4.17.21",
		"pkg:npm/lodash@4.17.20",
		"Dependencies not checked",
		"private-pkg",
		"AI verdicts",
		"3, 7-9",
		"left-pad, lodash",
		"error: b.js: AI response in invalid format",
		"Static findings",
		"a.js:12:5",
		"dynamic-code-execution",
		"CRITICAL",
	} {
		assert.Contains(t, got, want)
	}
	assert.NotContains(t, got, "c.js")
}

func TestJSONWriter_Write(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.JSONWriter{}.Write(&buf, scanReport))

	var got struct {
		Target     string `json:"target"`
		Vulnerable []struct {
			Name string `json:"name"`
		} `json:"vulnerablePackages"`
		AIAnalysis struct {
			Errors  []string `json:"errors"`
			Results []struct {
				Present bool   `json:"vulnerabilityPresent"`
				Risk    string `json:"risk"`
			} `json:"results"`
		} `json:"aiAnalysis"`
		StaticAnalysis struct {
			Findings []struct {
				Severity string `json:"severity"`
			} `json:"findings"`
		} `json:"staticAnalysis"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	assert.Equal(t, "/src/app", got.Target)
	require.Len(t, got.Vulnerable, 1)
	assert.Equal(t, "lodash", got.Vulnerable[0].Name)
	assert.Equal(t, []string{"b.js: AI response in invalid format"}, got.AIAnalysis.Errors)
	require.Len(t, got.AIAnalysis.Results, 3)
	assert.Equal(t, "high", got.AIAnalysis.Results[0].Risk)
	require.Len(t, got.StaticAnalysis.Findings, 1)
	assert.Equal(t, "CRITICAL", got.StaticAnalysis.Findings[0].Severity)
}

func TestNewWriter(t *testing.T) {
	w, err := report.NewWriter("json")
	require.NoError(t, err)
	assert.IsType(t, report.JSONWriter{}, w)

	_, err = report.NewWriter("xml")
	assert.ErrorContains(t, err, "unknown report format")
}
