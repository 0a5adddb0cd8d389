package types

import (
	"encoding/json"
	"strings"
	"time"
)

// RiskTier is the risk label returned by the language model, lower-cased.
type RiskTier string

const (
	RiskLow      RiskTier = "low"
	RiskMedium   RiskTier = "medium"
	RiskHigh     RiskTier = "high"
	RiskCritical RiskTier = "critical"
)

var riskSeverities = map[string]Severity{
	"low":      SeverityLow,
	"baixo":    SeverityLow,
	"baixa":    SeverityLow,
	"medium":   SeverityMedium,
	"moderate": SeverityMedium,
	"medio":    SeverityMedium,
	"médio":    SeverityMedium,
	"media":    SeverityMedium,
	"média":    SeverityMedium,
	"high":     SeverityHigh,
	"alto":     SeverityHigh,
	"alta":     SeverityHigh,
	"critical": SeverityCritical,
	"critico":  SeverityCritical,
	"crítico":  SeverityCritical,
	"critica":  SeverityCritical,
	"crítica":  SeverityCritical,
}

func NewRiskTier(s string) RiskTier {
	return RiskTier(strings.ToLower(strings.TrimSpace(s)))
}

// Severity maps the tier onto the severity scale. Tiers the model made up
// are Unknown.
func (r RiskTier) Severity() Severity {
	if sev, ok := riskSeverities[strings.ToLower(string(r))]; ok {
		return sev
	}
	return SeverityUnknown
}

type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// FileLines holds the vulnerable ranges reported for one file.
type FileLines struct {
	File   string      `json:"file"`
	Ranges []LineRange `json:"ranges"`
}

// AnalysisResult is the model's verdict for one prompt. Package, Packages,
// File and VulnerabilityID are attributed by the pipeline, never by the
// model. Package is set when the prompt was about a single package; a
// per-file prompt lists every vulnerable package the file references in
// Packages instead.
type AnalysisResult struct {
	Present        bool        `json:"vulnerabilityPresent"`
	Risk           RiskTier    `json:"risk,omitempty"`
	Problem        string      `json:"detectedProblem,omitempty"`
	Impact         string      `json:"impact,omitempty"`
	FixSuggestion  string      `json:"fixSuggestion,omitempty"`
	VulnerableCode []LineRange `json:"vulnerableCode,omitempty"`
	LinesByFile    []FileLines `json:"vulnerableLinesByFile,omitempty"`

	Package         string   `json:"package,omitempty"`
	Packages        []string `json:"packages,omitempty"`
	File            string   `json:"file,omitempty"`
	VulnerabilityID string   `json:"vulnerabilityId,omitempty"`
}

// AggregatedAnalysis collects per-call outcomes of the AI stage. A failed
// call shows up in Errors and never aborts the others.
type AggregatedAnalysis struct {
	Errors  []error          `json:"-"`
	Results []AnalysisResult `json:"results"`
}

func (a AggregatedAnalysis) MarshalJSON() ([]byte, error) {
	errs := make([]string, 0, len(a.Errors))
	for _, err := range a.Errors {
		errs = append(errs, err.Error())
	}
	results := a.Results
	if results == nil {
		results = []AnalysisResult{}
	}
	return json.Marshal(struct {
		Errors  []string         `json:"errors"`
		Results []AnalysisResult `json:"results"`
	}{
		Errors:  errs,
		Results: results,
	})
}

type Category string

const (
	CategorySQLInjection     Category = "sql-injection"
	CategoryXSS              Category = "xss"
	CategoryCommandInjection Category = "command-injection"
	CategoryPathTraversal    Category = "path-traversal"
	CategoryHardcodedSecret  Category = "hardcoded-secret"
	CategoryWeakCrypto       Category = "weak-crypto"
	CategoryInsecureRandom   Category = "insecure-random"
	CategoryDynamicCode      Category = "dynamic-code-execution"
	CategoryUnsafeRegex      Category = "unsafe-regex"
	CategoryOpenRedirect     Category = "open-redirect"
)

type StaticFinding struct {
	Category       Category `json:"category"`
	Severity       Severity `json:"severity"`
	File           string   `json:"file"`
	Line           int      `json:"line"`
	Column         int      `json:"column"`
	Snippet        string   `json:"snippet"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type StaticAnalysis struct {
	Findings      []StaticFinding `json:"findings"`
	FilesAnalyzed int             `json:"filesAnalyzed"`
	Elapsed       time.Duration   `json:"elapsed"`
}

// ScanReport is the outcome of one pipeline run. Errored holds packages
// whose lookup failed; they are in neither of the other two lists.
type ScanReport struct {
	Target         string              `json:"target"`
	Vulnerable     []Package           `json:"vulnerablePackages"`
	NotFound       []Package           `json:"notFoundPackages"`
	Errored        []Package           `json:"erroredPackages"`
	AIAnalysis     *AggregatedAnalysis `json:"aiAnalysis,omitempty"`
	StaticAnalysis *StaticAnalysis     `json:"staticAnalysis,omitempty"`
}

// Tally counts issues per severity.
type Tally struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Unknown  int `json:"unknown"`
}

func (t Tally) Add(sev Severity) Tally {
	switch sev {
	case SeverityCritical:
		t.Critical++
	case SeverityHigh:
		t.High++
	case SeverityMedium:
		t.Medium++
	case SeverityLow:
		t.Low++
	default:
		t.Unknown++
	}
	return t
}

func (t Tally) Total() int {
	return t.Critical + t.High + t.Medium + t.Low + t.Unknown
}

// AtLeast counts issues rated sev or above. Unknown is counted only when sev
// is Unknown.
func (t Tally) AtLeast(sev Severity) int {
	counts := []int{t.Unknown, t.Low, t.Medium, t.High, t.Critical}
	var n int
	for i := int(sev); i < len(counts); i++ {
		n += counts[i]
	}
	return n
}

// Tally folds confirmed AI verdicts and static findings into counts.
func (r ScanReport) Tally() Tally {
	var t Tally
	if r.AIAnalysis != nil {
		for _, res := range r.AIAnalysis.Results {
			if res.Present {
				t = t.Add(res.Risk.Severity())
			}
		}
	}
	if r.StaticAnalysis != nil {
		for _, f := range r.StaticAnalysis.Findings {
			t = t.Add(f.Severity)
		}
	}
	return t
}
