package gntargets_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgindex/internal/gntargets"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
	"git.home.luguber.info/inful/pkgindex/internal/pathfix"
	itesting "git.home.luguber.info/inful/pkgindex/internal/testing"
)

type env struct {
	f      *itesting.Fixture
	l      itesting.PackageLayout
	pkg    *packages.Package
	h      *pathfix.Handler
	result string
	opts   gntargets.Options
}

func newEnv(t *testing.T) *env {
	t.Helper()
	f := itesting.NewFixture(t)
	l := f.AddPackage("chromeos-base/foo", map[string]string{
		".gn":        "buildconfig = \"//build/config/BUILDCONFIG.gn\"\n",
		"foo/bar.cc": "int main() {}\n",
		"foo/gen.py": "print('hi')\n",
	})
	result := filepath.Join(f.CrosDir, "out", "Default")
	return &env{
		f:      f,
		l:      l,
		pkg:    f.Package(l),
		h:      pathfix.NewHandler(f.Translator),
		result: result,
		opts:   gntargets.Options{ResultBuildDir: result, Conflicts: pathfix.ConflictMap{}},
	}
}

func (e *env) targets() gntargets.Targets {
	build := e.f.ChrootPath(e.l.BuildDir)
	return gntargets.Targets{
		"//foo:bar": {
			"type":            "action",
			"deps":            []any{"//foo:lib"},
			"sources":         []any{"//foo/bar.cc"},
			"include_dirs":    []any{"//foo/", "$SYSROOT/usr/include"},
			"args":            []any{"--out=" + build + "/gen/x.h", "-v"},
			"script":          "//foo/gen.py",
			"output_patterns": []any{build + "/gen/{{source_name_part}}.h"},
		},
	}
}

func TestFix(t *testing.T) {
	e := newEnv(t)
	got, err := gntargets.New(e.targets(), e.pkg, e.h, e.opts).Fix(context.Background())
	require.NoError(t, err)

	want := gntargets.Targets{
		"//foo:bar": {
			"type":            "action",
			"deps":            []any{"//foo:lib"},
			"sources":         []any{filepath.Join(e.l.SrcDir, "foo", "bar.cc")},
			"include_dirs":    []any{filepath.Join(e.l.SrcDir, "foo"), "$SYSROOT/usr/include"},
			"args":            []any{"--out=" + filepath.Join(e.result, "gen", "x.h"), "-v"},
			"script":          filepath.Join(e.l.SrcDir, "foo", "gen.py"),
			"output_patterns": []any{filepath.Join(e.result, "gen", "{{source_name_part}}.h")},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("fixed targets mismatch (-want +got):\n%s", diff)
	}
}

func TestFixSplitsArguments(t *testing.T) {
	e := newEnv(t)
	build := e.f.ChrootPath(e.l.BuildDir)
	got, err := gntargets.New(gntargets.Targets{
		"//foo:bar": {"ldflags": []any{"-Wl,-rpath-link=" + build + "/lib:" + build + "/lib64"}},
	}, e.pkg, e.h, e.opts).Fix(context.Background())
	require.NoError(t, err)

	lib, lib64 := filepath.Join(e.result, "lib"), filepath.Join(e.result, "lib64")
	assert.Equal(t, []any{"-Wl,-rpath-link=" + lib + ":" + lib64}, got["//foo:bar"]["ldflags"])
}

func TestFixPlainPathListIsStrict(t *testing.T) {
	e := newEnv(t)
	_, err := gntargets.New(gntargets.Targets{
		"//foo:bar": {"include_dirs": []any{e.f.ChrootPath(e.l.BuildDir) + "/gen/missing"}},
	}, e.pkg, e.h, e.opts).Fix(context.Background())

	var pe *packages.PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, packages.KindTarget, pe.Kind)
	assert.Contains(t, pe.Message, "include_dirs")
}

func TestFixScriptDrift(t *testing.T) {
	e := newEnv(t)
	e.f.WriteFile(filepath.Join(e.l.TempSrcDir, "foo", "gen.py"), "print('patched')\n")
	targets := gntargets.Targets{"//foo:bar": {"script": "//foo/gen.py"}}

	_, err := gntargets.New(targets, e.pkg, e.h, e.opts).Fix(context.Background())
	var pe *packages.PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, packages.KindTarget, pe.Kind)

	e.pkg.IsHighlyVolatile = true
	got, err := gntargets.New(targets, e.pkg, e.h, e.opts).Fix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.l.SrcDir, "foo", "gen.py"), got["//foo:bar"]["script"])
}

func TestParseTrimsNoise(t *testing.T) {
	got, err := gntargets.Parse([]byte("Done. Made 3 targets\n{\"//a:b\": {\"type\": \"group\"}}\ntrailing"))
	require.NoError(t, err)
	assert.Equal(t, gntargets.Targets{"//a:b": {"type": "group"}}, got)

	_, err = gntargets.Parse([]byte("no json here"))
	require.Error(t, err)
}

func TestFindRootDir(t *testing.T) {
	e := newEnv(t)
	root, err := gntargets.FindRootDir(e.pkg)
	require.NoError(t, err)
	assert.Equal(t, e.l.TempSrcDir, root)

	l := e.f.AddPackage("chromeos-base/nogn", nil)
	_, err = gntargets.FindRootDir(e.f.Package(l))
	require.Error(t, err)
}

func TestGenerator(t *testing.T) {
	e := newEnv(t)
	l2 := e.f.AddPackage("chromeos-base/other", map[string]string{".gn": ""})
	other := e.f.Package(l2)

	first, err := json.Marshal(e.targets())
	require.NoError(t, err)
	tc := itesting.StaticToolchain{Gn: map[string][]byte{
		e.pkg.Name: first,
		other.Name: []byte(`{"//foo:bar": {"script": "//other.py"}}`),
	}}
	pkgs := []*packages.Package{e.pkg, other}

	_, _, err = gntargets.NewGenerator(tc, e.h, e.opts, false).Generate(context.Background(), pkgs)
	require.Error(t, err)

	got, failures, err := gntargets.NewGenerator(tc, e.h, e.opts, true).Generate(context.Background(), pkgs)
	require.NoError(t, err)
	require.Contains(t, got, "//foo:bar")
	require.Len(t, failures, 1)
	assert.Equal(t, other.Name, failures[0].Package)
	assert.Equal(t, gntargets.Stage, failures[0].Stage)
}
