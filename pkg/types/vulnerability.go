package types

import (
	"strings"

	"github.com/goark/go-cvss/v3/metric"
	"github.com/samber/lo"
)

// Vulnerability is a single OSV record as returned by the database. It is
// carried through the pipeline untouched.
type Vulnerability struct {
	ID               string           `json:"id,omitempty"`
	Modified         string           `json:"modified,omitempty"`
	Published        string           `json:"published,omitempty"`
	Aliases          []string         `json:"aliases,omitempty"`
	Summary          string           `json:"summary,omitempty"`
	Details          string           `json:"details,omitempty"`
	Severity         []SeverityScore  `json:"severity,omitempty"`
	Affected         []Affected       `json:"affected,omitempty"`
	References       []Reference      `json:"references,omitempty"`
	DatabaseSpecific DatabaseSpecific `json:"database_specific,omitempty"`
}

type SeverityScore struct {
	Type  string `json:"type,omitempty"`
	Score string `json:"score,omitempty"`
}

type Affected struct {
	Package  AffectedPackage `json:"package,omitempty"`
	Ranges   []Range         `json:"ranges,omitempty"`
	Versions []string        `json:"versions,omitempty"`
}

type AffectedPackage struct {
	Ecosystem string `json:"ecosystem,omitempty"`
	Name      string `json:"name,omitempty"`
	Purl      string `json:"purl,omitempty"`
}

type Range struct {
	Type   string  `json:"type,omitempty"`
	Repo   string  `json:"repo,omitempty"`
	Events []Event `json:"events,omitempty"`
}

type Event struct {
	Introduced   string `json:"introduced,omitempty"`
	Fixed        string `json:"fixed,omitempty"`
	LastAffected string `json:"last_affected,omitempty"`
}

type Reference struct {
	Type string `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
}

type DatabaseSpecific struct {
	Severity string   `json:"severity,omitempty"`
	CWEIDs   []string `json:"cwe_ids,omitempty"`
}

// Rating derives a severity tier for the record. CVSS v3 vectors win over
// the free-form severity published by the advisory database.
func (v Vulnerability) Rating() (Severity, float64) {
	for _, s := range v.Severity {
		if s.Type != "CVSS_V3" {
			continue
		}
		bm, err := metric.NewBase().Decode(s.Score)
		if err != nil {
			continue
		}
		score := bm.Score()
		return SeverityFromScore(score), score
	}

	sev := v.DatabaseSpecific.Severity
	if strings.EqualFold(sev, "moderate") {
		return SeverityMedium, 0
	}
	if s, err := NewSeverity(sev); err == nil {
		return s, 0
	}
	return SeverityUnknown, 0
}

// FixedVersions lists the versions in which the record is fixed for the
// named package.
func (v Vulnerability) FixedVersions(pkgName string) []string {
	var fixed []string
	for _, a := range v.Affected {
		if a.Package.Name != "" && a.Package.Name != pkgName {
			continue
		}
		for _, r := range a.Ranges {
			for _, e := range r.Events {
				if e.Fixed != "" {
					fixed = append(fixed, e.Fixed)
				}
			}
		}
	}
	return lo.Uniq(fixed)
}
