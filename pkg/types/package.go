package types

import (
	"strings"

	"github.com/package-url/packageurl-go"
)

// EcosystemNpm is the OSV ecosystem name for packages declared in package.json.
const EcosystemNpm = "npm"

// Package is a declared dependency. Name and Ecosystem identify it within a
// scan; Vulnerabilities is filled in once by the resolver.
type Package struct {
	Name            string          `json:"name"`
	Version         string          `json:"version"`
	Ecosystem       string          `json:"ecosystem"`
	Dev             bool            `json:"dev,omitempty"`
	ExactVersion    bool            `json:"exactVersion"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities,omitempty"`
}

// PURL renders the package as a package URL, e.g. pkg:npm/%40babel/core@7.0.0.
func (p Package) PURL() string {
	var namespace string
	name := p.Name
	if strings.HasPrefix(name, "@") {
		if ns, n, ok := strings.Cut(name, "/"); ok {
			namespace, name = ns, n
		}
	}
	purlType := strings.ToLower(p.Ecosystem)
	if purlType == EcosystemNpm {
		purlType = packageurl.TypeNPM
	}
	return packageurl.NewPackageURL(purlType, namespace, name, p.Version, nil, "").ToString()
}

// MaxSeverity is the highest rating among the package's vulnerabilities.
func (p Package) MaxSeverity() Severity {
	maxSev := SeverityUnknown
	for _, v := range p.Vulnerabilities {
		if sev, _ := v.Rating(); sev > maxSev {
			maxSev = sev
		}
	}
	return maxSev
}

// Occurrence lists the lines of one source file that reference a package.
type Occurrence struct {
	File    string `json:"file"`
	Source  string `json:"-"`
	Lines   []int  `json:"lines"`
	Package string `json:"package"`
}
