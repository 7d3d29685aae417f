package pathfix_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgindex/internal/packages"
	"git.home.luguber.info/inful/pkgindex/internal/pathfix"
	itesting "git.home.luguber.info/inful/pkgindex/internal/testing"
)

func setup(t *testing.T) (*itesting.Fixture, itesting.PackageLayout, *packages.Package, *pathfix.Handler) {
	t.Helper()
	f := itesting.NewFixture(t)
	l := f.AddPackage("chromeos-base/foo", map[string]string{
		"foo/bar.cc": "int main() {}\n",
		"foo/bar.h":  "#pragma once\n",
	})
	return f, l, f.Package(l), pathfix.NewHandler(f.Translator)
}

func TestFixPathKeepsBuildDirPaths(t *testing.T) {
	f, l, pkg, h := setup(t)
	gen := filepath.Join(l.BuildDir, "gen", "foo.pb.h")
	f.WriteFile(gen, "// generated\n")

	for _, in := range []string{f.ChrootPath(gen), "gen/foo.pb.h"} {
		fp, err := h.FixPath(in, pkg, nil)
		require.NoError(t, err, in)
		assert.Equal(t, gen, fp.Original)
		assert.Equal(t, gen, fp.Actual)
	}
}

func TestFixPathMapsTempSourcesToCheckout(t *testing.T) {
	f, l, pkg, h := setup(t)
	want := filepath.Join(l.SrcDir, "foo", "bar.cc")

	fp, err := h.FixPath("//foo/bar.cc", pkg, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(l.TempSrcDir, "foo", "bar.cc"), fp.Original)
	assert.Equal(t, want, fp.Actual)

	fp, err = h.FixPath(f.ChrootPath(filepath.Join(l.TempSrcDir, "foo", "bar.cc")), pkg, nil)
	require.NoError(t, err)
	assert.Equal(t, want, fp.Actual)
}

func TestFixPathPrefersMostSpecificMatch(t *testing.T) {
	f := itesting.NewFixture(t)
	l := f.AddPackage("chromeos-base/foo", nil)
	tmp := filepath.Join(l.TempDir, "a")
	f.WriteFile(filepath.Join(tmp, "sub", "x.cc"), "x")
	f.WriteFile(filepath.Join(f.SrcDir, "one", "sub", "x.cc"), "x")
	f.WriteFile(filepath.Join(f.SrcDir, "two", "x.cc"), "x")

	pkg := &packages.Package{
		Name:     "chromeos-base/foo",
		TempDir:  l.TempDir,
		BuildDir: l.BuildDir,
		SrcDirMatches: []packages.DirMatch{
			{Temp: filepath.Join(tmp, "sub"), Actual: filepath.Join(f.SrcDir, "two")},
			{Temp: tmp, Actual: filepath.Join(f.SrcDir, "one")},
		},
	}
	h := pathfix.NewHandler(f.Translator)

	fp, err := h.FixPath(f.ChrootPath(filepath.Join(tmp, "sub", "x.cc")), pkg, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.SrcDir, "two", "x.cc"), fp.Actual)
}

func TestFixPathUsesConflicts(t *testing.T) {
	f, l, pkg, h := setup(t)
	lib := filepath.Join(l.BuildDir, "libcommon.so")
	renamed := filepath.Join(f.CrosDir, "out", "foo_libcommon.so")
	f.WriteFile(lib, "a")
	f.WriteFile(renamed, "a")

	fp, err := h.FixPath("libcommon.so", pkg, pathfix.ConflictMap{lib: renamed})
	require.NoError(t, err)
	assert.Equal(t, lib, fp.Original)
	assert.Equal(t, renamed, fp.Actual)
}

func TestFixPathMissing(t *testing.T) {
	_, _, pkg, h := setup(t)

	_, err := h.FixPath("//foo/missing.cc", pkg, nil)
	var pe *packages.PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, packages.KindNotFixed, pe.Kind)
	assert.Equal(t, pkg.Name, pe.Package)
}

func TestFixPathMissingInCheckout(t *testing.T) {
	f, l, pkg, h := setup(t)
	f.WriteFile(filepath.Join(l.TempSrcDir, "foo", "patched.cc"), "x")

	_, err := h.FixPath("//foo/patched.cc", pkg, nil)
	var pe *packages.PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, packages.KindNotFixed, pe.Kind)
	assert.Equal(t, filepath.Join(l.SrcDir, "foo", "patched.cc"), pe.Second)
}

func TestNormalizePathRelative(t *testing.T) {
	f, l, _, h := setup(t)
	got, err := h.NormalizePath("../gen/x.h", l.BuildDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(l.BuildDir), "gen", "x.h"), got)

	got, err = h.NormalizePath("/usr/include/stdio.h", l.BuildDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.ChrootDir, "usr", "include", "stdio.h"), got)
}

func TestMovePath(t *testing.T) {
	got, err := pathfix.MovePath("/tmp/a/b/c.cc", "/tmp/a", "/src/a")
	require.NoError(t, err)
	assert.Equal(t, "/src/a/b/c.cc", got)

	_, err = pathfix.MovePath("/tmp/ab/c.cc", "/tmp/a", "/src/a")
	require.Error(t, err)
}

func TestFixPathWithIgnoresGenerated(t *testing.T) {
	f, l, pkg, h := setup(t)
	result := filepath.Join(f.CrosDir, "out", "Default")

	res, err := h.FixPathWithIgnores("gen/missing.pb.cc", pkg, pathfix.Options{
		IgnoreGenerated: true,
		ResultBuildDir:  result,
	})
	require.NoError(t, err)
	assert.Equal(t, pathfix.GeneratedMiss, res.Outcome)
	assert.Equal(t, filepath.Join(l.BuildDir, "gen", "missing.pb.cc"), res.Original)
	assert.Equal(t, filepath.Join(result, "gen", "missing.pb.cc"), res.Actual)

	_, err = h.FixPathWithIgnores("gen/missing.pb.cc", pkg, pathfix.Options{})
	require.Error(t, err)
}

func TestFixPathWithIgnoresRelocatesExisting(t *testing.T) {
	f, l, pkg, h := setup(t)
	f.WriteFile(filepath.Join(l.BuildDir, "obj", "bar.o"), "o")
	result := filepath.Join(f.CrosDir, "out", "Default")

	res, err := h.FixPathWithIgnores("obj/bar.o", pkg, pathfix.Options{ResultBuildDir: result})
	require.NoError(t, err)
	assert.Equal(t, pathfix.Resolved, res.Outcome)
	assert.Equal(t, filepath.Join(result, "obj", "bar.o"), res.Actual)
}

func TestFixPathWithIgnoresExtensionUsesParent(t *testing.T) {
	_, l, pkg, h := setup(t)

	res, err := h.FixPathWithIgnores("//foo/gone.typemap", pkg, pathfix.Options{
		IgnorableExtensions: []string{".typemap"},
	})
	require.NoError(t, err)
	assert.Equal(t, pathfix.AncestorMiss, res.Outcome)
	assert.Equal(t, filepath.Join(l.SrcDir, "foo", "gone.typemap"), res.Actual)

	// Only the direct parent is tried outside ignorable dirs.
	_, err = h.FixPathWithIgnores("//foo/deep/gone.typemap", pkg, pathfix.Options{
		IgnorableExtensions: []string{".typemap"},
	})
	require.Error(t, err)
}

func TestFixPathWithIgnoresWalksIgnorableDir(t *testing.T) {
	_, l, pkg, h := setup(t)

	res, err := h.FixPathWithIgnores("//foo/a/b/c.h", pkg, pathfix.Options{
		IgnorableDirs: []string{l.TempSrcDir},
	})
	require.NoError(t, err)
	assert.Equal(t, pathfix.AncestorMiss, res.Outcome)
	assert.Equal(t, filepath.Join(l.SrcDir, "foo", "a", "b", "c.h"), res.Actual)
}

func TestFixPathWithIgnoresVolatile(t *testing.T) {
	_, l, pkg, h := setup(t)
	pkg.IsHighlyVolatile = true

	_, err := h.FixPathWithIgnores("//foo/patch.h", pkg, pathfix.Options{})
	require.Error(t, err)

	res, err := h.FixPathWithIgnores("//foo/patch.h", pkg, pathfix.Options{IgnoreHighlyVolatile: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(l.SrcDir, "foo", "patch.h"), res.Actual)
}

func TestFixPathInArgument(t *testing.T) {
	fx := func(p string) (string, error) { return "/fixed/" + p, nil }

	tests := []struct {
		arg        string
		wantPrefix string
		wantFixed  string
	}{
		{arg: "-Ifoo/bar/", wantPrefix: "-I", wantFixed: "/fixed/foo/bar/"},
		{arg: "-O2", wantPrefix: "-O2"},
		{arg: "-DFOO=1", wantPrefix: "-DFOO=1"},
		{arg: "--sysroot=/build/board", wantPrefix: "--sysroot=", wantFixed: "/fixed//build/board"},
		{arg: `-I\"gen/include\"`, wantPrefix: `-I\"`, wantFixed: `/fixed/gen/include\"`},
		{arg: "../../platform/foo.cc", wantFixed: "/fixed/../../platform/foo.cc"},
		{arg: "--plugin=protoc-gen-go=out/bin", wantPrefix: "--plugin=protoc-gen-go=", wantFixed: "/fixed/out/bin"},
		{arg: "Mfoo.proto=go/foo", wantPrefix: "Mfoo.proto=", wantFixed: "/fixed/go/foo"},
		{arg: "$SYSROOT/usr/include", wantPrefix: "$SYSROOT/usr/include"},
		{arg: "{{source_dir}}/x", wantPrefix: "{{source_dir}}/x"},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			prefix, fixed, err := pathfix.FixPathInArgument(tt.arg, fx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrefix, prefix)
			assert.Equal(t, tt.wantFixed, fixed)
		})
	}
}

func TestFixPathInArgumentErrors(t *testing.T) {
	fx := func(p string) (string, error) { return p, nil }
	_, _, err := pathfix.FixPathInArgument("-Wl,--rpath=/a/b", fx)
	require.ErrorIs(t, err, pathfix.ErrUnparseableArgument)

	boom := errors.New("boom")
	_, _, err = pathfix.FixPathInArgument("-Ia/b", func(string) (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)
}

func TestSameContent(t *testing.T) {
	f, l, _, h := setup(t)
	a := filepath.Join(l.SrcDir, "foo", "bar.cc")
	b := filepath.Join(l.TempSrcDir, "foo", "bar.cc")

	same, err := h.SameContent(a, b)
	require.NoError(t, err)
	assert.True(t, same)

	// Cached per pair.
	f.WriteFile(b, "changed")
	same, err = h.SameContent(a, b)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = h.SameContent(b, a)
	require.NoError(t, err)
	assert.False(t, same)

	_, err = h.SameContent(a, filepath.Join(l.SrcDir, "nope"))
	require.True(t, errors.Is(err, os.ErrNotExist))
}
