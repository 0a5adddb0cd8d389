// Package prompt renders the instructions sent to the language model.
package prompt

import (
	"bytes"
	"strconv"
	"strings"
	"text/template"

	"golang.org/x/xerrors"

	"github.com/vulnscope/vulnscope/pkg/types"
)

const listContract = `Respond ONLY with JSON in exactly this format:
{
  "vulnerabilities": [
    {
      "vulnerabilityPresent": true,
      "fixSuggestion": "how to fix the problem",
      "detectedProblem": "what is wrong",
      "impact": "what an attacker can achieve",
      "risk": "low | medium | high | critical",
      "vulnerableCode": [{"start": 1, "end": 1}]
    }
  ]
}

Always follow this schema, with no variations and no extra fields.
If nothing is found, answer with a single entry whose "vulnerabilityPresent" is false, with empty strings for the text fields and an empty "vulnerableCode" list.`

const flatContract = `Respond ONLY with JSON in exactly this format:
{
  "vulnerabilityPresent": true,
  "fixSuggestion": "how to fix the problem",
  "detectedProblem": "what is wrong",
  "impact": "what an attacker can achieve",
  "risk": "low | medium | high | critical",
  "vulnerableLinesByFile": [{"file": "path/to/file", "ranges": [{"start": 1, "end": 1}]}]
}

Always follow this schema, with no variations and no extra fields.
If the vulnerability is not exploited, set "vulnerabilityPresent" to false, use empty strings for the text fields and an empty "vulnerableLinesByFile" list.`

var funcs = template.FuncMap{
	"fence": fence,
	"lines": func(lines []int) string {
		s := make([]string, len(lines))
		for i, l := range lines {
			s[i] = strconv.Itoa(l)
		}
		return strings.Join(s, ", ")
	},
}

var packageTmpl = template.Must(template.New("package").Funcs(funcs).Parse(`You are a security auditor reviewing JavaScript/TypeScript code.

The file below imports packages with known vulnerabilities.
{{range .Packages}}
Package: {{.Name}}
Version: {{.Version}}
Ecosystem: {{.Ecosystem}}
Vulnerabilities:
{{- range .Vulnerabilities}}
- ID: {{.ID}}
  Summary: {{.Summary}}
  Details: {{.Details}}
{{- end}}
{{end}}
File: {{.File}}
{{fence .Source}}

Task: decide whether the code actually exploits or exposes any of the vulnerabilities above.
Report the affected line ranges, the risk level, the impact and how to fix it.

` + listContract + `
`))

var advisoryTmpl = template.Must(template.New("advisory").Funcs(funcs).Parse(`You are a security auditor reviewing JavaScript/TypeScript code.

Package: {{.Package.Name}}
Version: {{.Package.Version}}
Ecosystem: {{.Package.Ecosystem}}

Vulnerability:
- ID: {{.Vulnerability.ID}}
  Summary: {{.Vulnerability.Summary}}
  Details: {{.Vulnerability.Details}}

The package is referenced by these files:
{{range .Occurrences}}
File: {{.File}} (referenced on lines {{lines .Lines}})
{{fence .Source}}
{{end}}
Task: decide whether this vulnerability is exploitable through the way the files use the package.
Report the affected lines per file, the risk level, the impact and how to fix it.

` + flatContract + `
`))

var codeTmpl = template.Must(template.New("code").Funcs(funcs).Parse(`You are a security auditor reviewing source code.

File: {{.File}}
{{fence .Source}}

Task: find security vulnerabilities in this code (injection, unsafe deserialization, broken access control, secrets, weak cryptography and similar).
Ignore problems caused solely by vulnerable third-party packages; they are analysed separately.
Report the affected line ranges, the risk level, the impact and how to fix it.

` + listContract + `
`))

// PackageOccurrence asks whether one file exploits the vulnerabilities of the
// packages it references. The answer follows the list contract.
func PackageOccurrence(file, source string, pkgs []types.Package) (string, error) {
	return render(packageTmpl, struct {
		File     string
		Source   string
		Packages []types.Package
	}{file, source, pkgs})
}

// Advisory asks whether a single vulnerability is exploitable through the
// package's occurrences. The answer follows the flat contract.
func Advisory(pkg types.Package, vuln types.Vulnerability, occs []types.Occurrence) (string, error) {
	return render(advisoryTmpl, struct {
		Package       types.Package
		Vulnerability types.Vulnerability
		Occurrences   []types.Occurrence
	}{pkg, vuln, occs})
}

// PureCode asks for a review of one file without any vulnerability anchor.
// The answer follows the list contract.
func PureCode(file, source string) (string, error) {
	return render(codeTmpl, struct {
		File   string
		Source string
	}{file, source})
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", xerrors.Errorf("%s prompt error: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// fence wraps source in a code fence longer than any backtick run inside it.
func fence(source string) string {
	n := 3
	run := 0
	for _, r := range source {
		if r == '`' {
			run++
			if run >= n {
				n = run + 1
			}
			continue
		}
		run = 0
	}
	f := strings.Repeat("`", n)
	return f + "\n" + strings.TrimRight(source, "\n") + "\n" + f
}
