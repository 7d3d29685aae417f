package conductor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
)

func pkg(name string, deps ...string) *packages.Package {
	p := &packages.Package{Name: name}
	for _, d := range deps {
		p.Dependencies = append(p.Dependencies, packages.Dependency{Name: d})
	}
	return p
}

func names(pkgs []*packages.Package) []string {
	out := make([]string, len(pkgs))
	for i, p := range pkgs {
		out[i] = p.Name
	}
	return out
}

func TestOrderPackagesChain(t *testing.T) {
	got, err := OrderPackages([]*packages.Package{pkg("a/A", "a/B"), pkg("a/B", "a/C"), pkg("a/C")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/C", "a/B", "a/A"}, names(got))
}

func TestOrderPackagesKeepsInputOrderWhenFree(t *testing.T) {
	got, err := OrderPackages([]*packages.Package{
		pkg("x/top", "x/left", "x/right"),
		pkg("x/left", "x/base"),
		pkg("x/right", "x/base"),
		pkg("x/base"),
		pkg("x/alone"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x/base", "x/left", "x/right", "x/top", "x/alone"}, names(got))
}

func TestOrderPackagesRejectsCycle(t *testing.T) {
	_, err := OrderPackages([]*packages.Package{
		pkg("a/A", "a/B"),
		pkg("a/B", "a/C"),
		pkg("a/C", "a/A"),
		pkg("a/D"),
	})
	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	require.GreaterOrEqual(t, len(ce.Cycle), 2)
	assert.Equal(t, ce.Cycle[0], ce.Cycle[len(ce.Cycle)-1])
	assert.Len(t, ce.Cycle, 4)
	assert.Equal(t, ferrors.CategoryGraph, ferrors.GetCategory(err))
}

func TestOrderPackagesRejectsSelfDependency(t *testing.T) {
	_, err := OrderPackages([]*packages.Package{pkg("a/A", "a/A")})
	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"a/A", "a/A"}, ce.Cycle)
}

func TestOrderPackagesRejectsMissingDependency(t *testing.T) {
	_, err := OrderPackages([]*packages.Package{pkg("a/A", "a/Z")})
	var me *MissingDependencyError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "a/A", me.Package)
	assert.Equal(t, "a/Z", me.Dependency)
}

func TestOrderPackagesRejectsDuplicates(t *testing.T) {
	_, err := OrderPackages([]*packages.Package{pkg("a/A"), pkg("a/A")})
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryValidation, ferrors.GetCategory(err))
}
