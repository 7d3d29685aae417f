package fsutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsWithin(t *testing.T) {
	cases := []struct {
		path, dir string
		want      bool
	}{
		{"/a/b/c", "/a/b", true},
		{"/a/b", "/a/b", true},
		{"/a/b/", "/a/b", true},
		{"/a/bc", "/a/b", false},
		{"/a", "/a/b", false},
		{"/anything", "/", true},
		{"/a/b", "", false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, IsWithin(tc.path, tc.dir), "IsWithin(%q, %q)", tc.path, tc.dir)
	}
}

func TestSameContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	c := filepath.Join(dir, "c")
	require.NoError(t, os.WriteFile(a, []byte("hello world"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("hello world"), 0o644))
	require.NoError(t, os.WriteFile(c, []byte("hello there"), 0o644))

	same, err := SameContent(a, b)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = SameContent(a, c)
	require.NoError(t, err)
	assert.False(t, same)

	_, err = SameContent(a, filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestSameContentLargeFiles(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 3*compareChunk+17)
	for i := range data {
		data[i] = byte(i % 251)
	}
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(a, data, 0o644))
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(b, data, 0o644))

	same, err := SameContent(a, b)
	require.NoError(t, err)
	assert.False(t, same)
}

func TestCopyFilePreservesModeAndMtime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.sh")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\n"), 0o750))
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	dst := filepath.Join(dir, "nested", "dst.sh")
	require.NoError(t, CopyFile(src, dst))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(mtime), "mtime = %v", info.ModTime())

	same, err := SameContent(src, dst)
	require.NoError(t, err)
	assert.True(t, same)
}

func TestRealPathFallsBackForMissingPaths(t *testing.T) {
	assert.Equal(t, "/does/not/exist", RealPath("/does/not/../not/exist"))

	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))
	assert.Equal(t, RealPath(target), RealPath(link))
}
