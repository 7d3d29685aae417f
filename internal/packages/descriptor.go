package packages

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dependency is an edge to another package together with its dependency kinds
// (DEPEND, RDEPEND, ...).
type Dependency struct {
	Name  string   `json:"name" yaml:"name"`
	Types []string `json:"types" yaml:"types"`
}

// Descriptor is what package discovery reports about one package.
type Descriptor struct {
	Name           string       `json:"name" yaml:"name"`
	Ebuild         string       `json:"ebuild,omitempty" yaml:"ebuild,omitempty"`
	SrcDirs        []string     `json:"src_dirs" yaml:"src_dirs"`
	DestDirs       []string     `json:"dest_dirs,omitempty" yaml:"dest_dirs,omitempty"`
	OutOfTreeBuild bool         `json:"out_of_tree_build,omitempty" yaml:"out_of_tree_build,omitempty"`
	HighlyVolatile bool         `json:"highly_volatile,omitempty" yaml:"highly_volatile,omitempty"`
	Subtrees       []string     `json:"subtrees,omitempty" yaml:"subtrees,omitempty"`
	RustSubdir     string       `json:"rust_subdir,omitempty" yaml:"rust_subdir,omitempty"`
	Deps           []Dependency `json:"deps,omitempty" yaml:"deps,omitempty"`
}

// SimpleName returns the package name without its category.
func (d Descriptor) SimpleName() string {
	if i := strings.LastIndex(d.Name, "/"); i >= 0 {
		return d.Name[i+1:]
	}
	return d.Name
}

// Validate checks the fields every later stage relies on.
func (d Descriptor) Validate() error {
	parts := strings.Split(d.Name, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("package name %q is not of the form category/name", d.Name)
	}
	for _, dep := range d.Deps {
		if dep.Name == d.Name {
			return fmt.Errorf("package %s depends on itself", d.Name)
		}
	}
	return nil
}

// LoadDescriptors reads a package list written by discovery. Files ending in
// .yaml or .yml are decoded as YAML, anything else as JSON.
func LoadDescriptors(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read package list: %w", err)
	}

	var descs []Descriptor
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &descs)
	default:
		err = json.Unmarshal(data, &descs)
	}
	if err != nil {
		return nil, fmt.Errorf("parse package list %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(descs))
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("package %s listed twice in %s", d.Name, path)
		}
		seen[d.Name] = struct{}{}
	}
	return descs, nil
}

type serialized struct {
	Ebuild string       `json:"ebuild"`
	Deps   []Dependency `json:"deps"`
}

// Serialize encodes the ebuild path and dependencies of p, the part of a
// package that is cached between runs.
func Serialize(p *Package) ([]byte, error) {
	deps := p.Dependencies
	if deps == nil {
		deps = []Dependency{}
	}
	return json.Marshal(serialized{Ebuild: p.Descriptor.Ebuild, Deps: deps})
}

// Deserialize restores the cached part of a package on top of base, which
// supplies the facts that are not cached (name, source dirs, ...).
func Deserialize(data []byte, base Descriptor) (Descriptor, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Descriptor{}, fmt.Errorf("decode package: %w", err)
	}
	for _, key := range []string{"ebuild", "deps"} {
		if _, ok := raw[key]; !ok {
			return Descriptor{}, fmt.Errorf("decode package: missing %q", key)
		}
	}
	var s serialized
	if err := json.Unmarshal(data, &s); err != nil {
		return Descriptor{}, fmt.Errorf("decode package: %w", err)
	}
	base.Ebuild = s.Ebuild
	base.Deps = s.Deps
	return base, nil
}
