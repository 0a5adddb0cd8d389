package types_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnscope/vulnscope/pkg/types"
)

func TestVulnerability_Rating(t *testing.T) {
	tests := []struct {
		name      string
		vuln      types.Vulnerability
		want      types.Severity
		wantScore float64
	}{
		{
			name: "cvss v3 vector",
			vuln: types.Vulnerability{
				Severity: []types.SeverityScore{
					{Type: "CVSS_V3", Score: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H"},
				},
			},
			want:      types.SeverityCritical,
			wantScore: 9.8,
		},
		{
			name: "database severity fallback",
			vuln: types.Vulnerability{
				Severity:         []types.SeverityScore{{Type: "CVSS_V4", Score: "CVSS:4.0/AV:N"}},
				DatabaseSpecific: types.DatabaseSpecific{Severity: "MODERATE"},
			},
			want: types.SeverityMedium,
		},
		{
			name: "database severity name",
			vuln: types.Vulnerability{DatabaseSpecific: types.DatabaseSpecific{Severity: "HIGH"}},
			want: types.SeverityHigh,
		},
		{
			name: "nothing to go on",
			vuln: types.Vulnerability{ID: "GHSA-1"},
			want: types.SeverityUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, score := tt.vuln.Rating()
			assert.Equal(t, tt.want, got)
			assert.InDelta(t, tt.wantScore, score, 0.01)
		})
	}
}

func TestVulnerability_FixedVersions(t *testing.T) {
	v := types.Vulnerability{
		Affected: []types.Affected{
			{
				Package: types.AffectedPackage{Name: "minimist", Ecosystem: "npm"},
				Ranges: []types.Range{
					{Type: "SEMVER", Events: []types.Event{{Introduced: "0"}, {Fixed: "0.2.1"}}},
					{Type: "SEMVER", Events: []types.Event{{Introduced: "1.0.0"}, {Fixed: "1.2.3"}}},
				},
			},
			{
				Package: types.AffectedPackage{Name: "other", Ecosystem: "npm"},
				Ranges:  []types.Range{{Events: []types.Event{{Fixed: "9.9.9"}}}},
			},
		},
	}
	assert.Equal(t, []string{"0.2.1", "1.2.3"}, v.FixedVersions("minimist"))
}

func TestPackage_PURL(t *testing.T) {
	pkg := types.Package{Name: "left-pad", Version: "1.3.0", Ecosystem: "npm"}
	assert.Equal(t, "pkg:npm/left-pad@1.3.0", pkg.PURL())

	// the scope becomes the namespace
	scoped := types.Package{Name: "@babel/core", Version: "7.0.0", Ecosystem: "npm"}
	got := scoped.PURL()
	assert.True(t, strings.HasPrefix(got, "pkg:npm/"), got)
	assert.True(t, strings.HasSuffix(got, "babel/core@7.0.0"), got)
}

func TestRiskTier_Severity(t *testing.T) {
	tests := []struct {
		raw  string
		want types.Severity
	}{
		{raw: "ALTO", want: types.SeverityHigh},
		{raw: "Critical", want: types.SeverityCritical},
		{raw: " medium ", want: types.SeverityMedium},
		{raw: "baixo", want: types.SeverityLow},
		{raw: "severe-ish", want: types.SeverityUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, types.NewRiskTier(tt.raw).Severity())
		})
	}
	assert.Equal(t, types.RiskTier("alto"), types.NewRiskTier("ALTO"))
}

func TestScanReport_Tally(t *testing.T) {
	report := types.ScanReport{
		AIAnalysis: &types.AggregatedAnalysis{
			Results: []types.AnalysisResult{
				{Present: true, Risk: "alto"},
				{Present: true, Risk: "critical"},
				{Present: false},
				{Present: true, Risk: "whatever"},
			},
		},
		StaticAnalysis: &types.StaticAnalysis{
			Findings: []types.StaticFinding{
				{Severity: types.SeverityCritical},
				{Severity: types.SeverityMedium},
			},
		},
	}

	got := report.Tally()
	assert.Equal(t, types.Tally{Critical: 2, High: 1, Medium: 1, Unknown: 1}, got)
	assert.Equal(t, 5, got.Total())
	assert.Equal(t, 3, got.AtLeast(types.SeverityHigh))
	assert.Equal(t, 5, got.AtLeast(types.SeverityUnknown))
}

func TestAggregatedAnalysis_MarshalJSON(t *testing.T) {
	a := types.AggregatedAnalysis{
		Errors: []error{&types.FormatError{Err: errors.New("unexpected end of JSON input")}},
	}
	b, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"errors": ["AI response in invalid format: unexpected end of JSON input"],
		"results": []
	}`, string(b))
}

func TestSeverity_Text(t *testing.T) {
	b, err := json.Marshal(types.SeverityHigh)
	require.NoError(t, err)
	assert.Equal(t, `"HIGH"`, string(b))

	var s types.Severity
	require.NoError(t, json.Unmarshal([]byte(`"critical"`), &s))
	assert.Equal(t, types.SeverityCritical, s)
}
