// Package formatter turns model answers into analysis results.
//
// Two JSON contracts are understood. The list contract wraps records in a
// "vulnerabilities" array and reports line ranges for a single file. The flat
// contract is one record whose line ranges are grouped per file.
package formatter

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/xerrors"

	"github.com/vulnscope/vulnscope/pkg/types"
)

const containerKey = "vulnerabilities"

var (
	openFence  = regexp.MustCompile("(?i)```json")
	closeFence = "```"
)

// Extract returns the payload of the first ```json fence, or the whole text
// when there is none.
func Extract(raw string) string {
	loc := openFence.FindStringIndex(raw)
	if loc == nil {
		return strings.TrimSpace(raw)
	}
	rest := raw[loc[1]:]
	if end := strings.Index(rest, closeFence); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

type wireRange struct {
	Start *int `json:"start"`
	End   *int `json:"end"`
}

type wireFileLines struct {
	File   string      `json:"file"`
	Ranges []wireRange `json:"ranges"`
}

type wireRecord struct {
	Present        *bool           `json:"vulnerabilityPresent"`
	Risk           *string         `json:"risk"`
	Problem        string          `json:"detectedProblem"`
	Impact         string          `json:"impact"`
	FixSuggestion  string          `json:"fixSuggestion"`
	VulnerableCode []wireRange     `json:"vulnerableCode"`
	LinesByFile    []wireFileLines `json:"vulnerableLinesByFile"`
}

// DecodeList parses an answer following the list contract. A bare top-level
// array of records is accepted as well.
func DecodeList(raw string) ([]types.AnalysisResult, error) {
	payload := []byte(Extract(raw))

	var records []wireRecord
	if bytes.HasPrefix(payload, []byte("[")) {
		if err := unmarshal(payload, &records); err != nil {
			return nil, &types.FormatError{Err: err}
		}
	} else {
		var container map[string]json.RawMessage
		if err := unmarshal(payload, &container); err != nil {
			return nil, &types.FormatError{Err: err}
		}
		list, ok := container[containerKey]
		if !ok {
			return nil, &types.FormatError{Err: xerrors.Errorf("missing %q", containerKey)}
		}
		if err := unmarshal(list, &records); err != nil {
			return nil, &types.FormatError{Err: xerrors.Errorf("%q: %w", containerKey, err)}
		}
	}

	results := make([]types.AnalysisResult, 0, len(records))
	for i, rec := range records {
		res, err := rec.result()
		if err != nil {
			return nil, &types.FormatError{Err: xerrors.Errorf("record %d: %w", i, err)}
		}
		results = append(results, res)
	}
	return results, nil
}

// DecodeFlat parses an answer following the flat contract.
func DecodeFlat(raw string) (types.AnalysisResult, error) {
	var rec wireRecord
	if err := unmarshal([]byte(Extract(raw)), &rec); err != nil {
		return types.AnalysisResult{}, &types.FormatError{Err: err}
	}
	res, err := rec.result()
	if err != nil {
		return types.AnalysisResult{}, &types.FormatError{Err: err}
	}
	return res, nil
}

func unmarshal(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return xerrors.New("empty payload")
	}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return xerrors.New("null payload")
	}
	return json.Unmarshal(data, v)
}

func (r wireRecord) result() (types.AnalysisResult, error) {
	if r.Present == nil {
		return types.AnalysisResult{}, xerrors.New(`missing "vulnerabilityPresent"`)
	}
	// absence clears everything the model may have added anyway
	if !*r.Present {
		return types.AnalysisResult{}, nil
	}
	if r.Risk == nil || strings.TrimSpace(*r.Risk) == "" {
		return types.AnalysisResult{}, xerrors.New(`missing "risk"`)
	}

	code, err := lineRanges(r.VulnerableCode)
	if err != nil {
		return types.AnalysisResult{}, xerrors.Errorf(`"vulnerableCode": %w`, err)
	}

	var byFile []types.FileLines
	for _, fl := range r.LinesByFile {
		ranges, err := lineRanges(fl.Ranges)
		if err != nil {
			return types.AnalysisResult{}, xerrors.Errorf(`"vulnerableLinesByFile" %s: %w`, fl.File, err)
		}
		byFile = append(byFile, types.FileLines{File: fl.File, Ranges: ranges})
	}

	return types.AnalysisResult{
		Present:        true,
		Risk:           types.NewRiskTier(*r.Risk),
		Problem:        r.Problem,
		Impact:         r.Impact,
		FixSuggestion:  r.FixSuggestion,
		VulnerableCode: code,
		LinesByFile:    byFile,
	}, nil
}

func lineRanges(in []wireRange) ([]types.LineRange, error) {
	var out []types.LineRange
	for _, r := range in {
		if r.Start == nil || r.End == nil {
			return nil, xerrors.New("range without start or end")
		}
		if *r.Start < 1 || *r.End < *r.Start {
			return nil, xerrors.Errorf("invalid range %d-%d", *r.Start, *r.End)
		}
		out = append(out, types.LineRange{Start: *r.Start, End: *r.End})
	}
	return out, nil
}
