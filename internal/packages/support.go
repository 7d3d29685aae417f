package packages

import (
	"strings"

	"github.com/gobwas/glob"
)

// Support tells whether a package can be indexed.
type Support int

const (
	Supported Support = iota
	// NoLocalSource packages are downloaded rather than built from a checkout.
	NoLocalSource
	// NoGnBuild packages are not built with GN.
	NoGnBuild
	// SkippedByConfig packages match a configured skip pattern.
	SkippedByConfig
)

func (s Support) String() string {
	switch s {
	case Supported:
		return "SUPPORTED"
	case NoLocalSource:
		return "NO_LOCAL_SOURCE"
	case NoGnBuild:
		return "NO_GN_BUILD"
	case SkippedByConfig:
		return "SKIPPED_BY_CONFIG"
	default:
		return "UNKNOWN"
	}
}

// SkipList matches package names against glob patterns such as
// "chromeos-base/*-test".
type SkipList struct {
	patterns []string
	globs    []glob.Glob
}

// NewSkipList compiles the given patterns. '/' separates the category from
// the package name, so '*' never crosses it.
func NewSkipList(patterns []string) (*SkipList, error) {
	s := &SkipList{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		s.patterns = append(s.patterns, p)
		s.globs = append(s.globs, g)
	}
	return s, nil
}

// Match returns the first pattern matching name.
func (s *SkipList) Match(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	for i, g := range s.globs {
		if g.Match(name) {
			return s.patterns[i], true
		}
	}
	return "", false
}

// CheckSupport decides whether a described package can be processed.
func CheckSupport(d Descriptor, skip *SkipList) Support {
	if !hasLocalSource(d) {
		return NoLocalSource
	}
	if !builtWithGn(d) {
		return NoGnBuild
	}
	if _, ok := skip.Match(d.Name); ok {
		return SkippedByConfig
	}
	return Supported
}

func hasLocalSource(d Descriptor) bool {
	if len(d.SrcDirs) == 0 {
		return false
	}
	if len(d.SrcDirs) == 1 && strings.HasSuffix(d.SrcDirs[0], "empty-project") {
		return false
	}
	return true
}

func builtWithGn(d Descriptor) bool {
	if d.RustSubdir != "" {
		return false
	}
	for _, st := range d.Subtrees {
		if strings.HasSuffix(st, ".gn") {
			return true
		}
	}
	return false
}

// Selection is the outcome of filtering a package list.
type Selection struct {
	Kept    []Descriptor
	Dropped map[string]Support
}

// Select keeps the supported packages and removes dependency edges that point
// at dropped ones, so the remaining graph only references kept packages.
func Select(descs []Descriptor, skip *SkipList) Selection {
	sel := Selection{Dropped: make(map[string]Support)}
	for _, d := range descs {
		if s := CheckSupport(d, skip); s != Supported {
			sel.Dropped[d.Name] = s
			continue
		}
		sel.Kept = append(sel.Kept, d)
	}
	for i, d := range sel.Kept {
		var deps []Dependency
		for _, dep := range d.Deps {
			if _, gone := sel.Dropped[dep.Name]; !gone {
				deps = append(deps, dep)
			}
		}
		sel.Kept[i].Deps = deps
	}
	return sel
}

// FromDescriptors creates uninitialized packages for descs.
func FromDescriptors(descs []Descriptor, boardDir string) ([]*Package, error) {
	pkgs := make([]*Package, 0, len(descs))
	for _, d := range descs {
		p, err := New(d, boardDir)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, nil
}

// Failure records a package dropped from a stage because keepGoing was set.
type Failure struct {
	Package string
	Stage   string
	Err     error
}
