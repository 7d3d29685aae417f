package conductor

import (
	"fmt"
	"slices"
	"strings"

	ferrors "git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
)

// CycleError reports packages that depend on each other. Cycle starts and
// ends with the same package.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Cycle, " -> ")
}

// Category classifies the error as a dependency graph failure.
func (e *CycleError) Category() ferrors.ErrorCategory { return ferrors.CategoryGraph }

// MissingDependencyError reports a dependency on a package outside the set.
type MissingDependencyError struct {
	Package    string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("%s: dependency %s is not among the packages", e.Package, e.Dependency)
}

// Category classifies the error as a dependency graph failure.
func (e *MissingDependencyError) Category() ferrors.ErrorCategory { return ferrors.CategoryGraph }

// OrderPackages returns pkgs ordered so that every package comes after all
// of its dependencies. Among packages that are ready at the same time the
// input order is kept.
func OrderPackages(pkgs []*packages.Package) ([]*packages.Package, error) {
	index := make(map[string]int, len(pkgs))
	for i, p := range pkgs {
		if _, dup := index[p.Name]; dup {
			return nil, ferrors.ValidationError("duplicate package").WithContext("package", p.Name).Build()
		}
		index[p.Name] = i
	}

	inDegree := make([]int, len(pkgs))
	dependents := make([][]int, len(pkgs))
	for i, p := range pkgs {
		seen := map[string]bool{}
		for _, dep := range p.Dependencies {
			if seen[dep.Name] {
				continue
			}
			seen[dep.Name] = true
			if dep.Name == p.Name {
				return nil, &CycleError{Cycle: []string{p.Name, p.Name}}
			}
			j, ok := index[dep.Name]
			if !ok {
				return nil, &MissingDependencyError{Package: p.Name, Dependency: dep.Name}
			}
			inDegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var ready []int
	for i := range pkgs {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	ordered := make([]*packages.Package, 0, len(pkgs))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		ordered = append(ordered, pkgs[i])
		for _, d := range dependents[i] {
			inDegree[d]--
			if inDegree[d] == 0 {
				pos, _ := slices.BinarySearch(ready, d)
				ready = slices.Insert(ready, pos, d)
			}
		}
	}

	if len(ordered) != len(pkgs) {
		return nil, &CycleError{Cycle: findCycle(pkgs, index, inDegree)}
	}
	return ordered, nil
}

// findCycle follows unresolved dependency edges until a package repeats.
// Every package left with a positive in-degree has an unresolved dependency,
// so the walk cannot dead-end.
func findCycle(pkgs []*packages.Package, index map[string]int, inDegree []int) []string {
	start := slices.IndexFunc(inDegree, func(d int) bool { return d > 0 })
	pos := map[int]int{}
	var path []string
	for i := start; ; {
		if at, seen := pos[i]; seen {
			return append(path[at:], pkgs[i].Name)
		}
		pos[i] = len(path)
		path = append(path, pkgs[i].Name)
		for _, dep := range pkgs[i].Dependencies {
			if j := index[dep.Name]; inDegree[j] > 0 {
				i = j
				break
			}
		}
	}
}
