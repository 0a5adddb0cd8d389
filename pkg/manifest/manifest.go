// Package manifest reads declared dependencies from package.json.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/hashicorp/go-version"
	"golang.org/x/xerrors"

	"github.com/vulnscope/vulnscope/pkg/log"
	"github.com/vulnscope/vulnscope/pkg/types"
)

const FileName = "package.json"

var sections = []struct {
	key string
	dev bool
}{
	{key: "dependencies"},
	{key: "devDependencies", dev: true},
}

// Load parses the manifest at path.
func Load(path string) ([]types.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &types.ManifestError{Path: path, Msg: "unable to open manifest", Err: err}
	}
	defer f.Close()

	pkgs, err := Parse(f)
	if err != nil {
		if me, ok := err.(*types.ManifestError); ok && me.Path == "" {
			me.Path = path
		}
		return nil, err
	}
	return pkgs, nil
}

// Parse extracts runtime and development dependencies. Versions are kept
// verbatim; a name declared in both sections keeps its runtime entry.
func Parse(r io.Reader) ([]types.Package, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &types.ManifestError{Msg: "read error", Err: err}
	}

	var doc map[string]json.RawMessage
	if err = json.Unmarshal(data, &doc); err != nil {
		return nil, &types.ManifestError{Msg: "invalid JSON document", Err: err}
	}

	var pkgs []types.Package
	seen := map[string]struct{}{}
	for _, s := range sections {
		raw, ok := doc[s.key]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}

		var deps map[string]json.RawMessage
		if err = json.Unmarshal(raw, &deps); err != nil {
			return nil, &types.ManifestError{Msg: fmt.Sprintf("%q is not an object", s.key), Err: err}
		}

		names := make([]string, 0, len(deps))
		for name := range deps {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			v, err := versionString(deps[name])
			if err != nil {
				return nil, &types.ManifestError{
					Msg: fmt.Sprintf("version of %q in %q is not a string", name, s.key),
					Err: err,
				}
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			pkgs = append(pkgs, newPackage(name, v, s.dev))
		}
	}

	if len(pkgs) == 0 {
		return nil, &types.ManifestError{Msg: "no packages found"}
	}
	return pkgs, nil
}

// versionString decodes a version value. json.Unmarshal leaves a string
// untouched on null, so null is rejected explicitly.
func versionString(raw json.RawMessage) (string, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", xerrors.New("null version")
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	return v, nil
}

func newPackage(name, ver string, dev bool) types.Package {
	_, err := version.NewVersion(ver)
	exact := err == nil
	if !exact {
		log.Debug("Declared version is not exact, looking it up verbatim",
			log.Package(name, ver))
	}
	return types.Package{
		Name:         name,
		Version:      ver,
		Ecosystem:    types.EcosystemNpm,
		Dev:          dev,
		ExactVersion: exact,
	}
}
