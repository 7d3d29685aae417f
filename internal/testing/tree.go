package testing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Tree checks the files of a produced directory, such as a merged build dir.
// Paths are slash separated and relative to the tree root.
type Tree struct {
	t    *testing.T
	root string
}

// AssertTree returns checks rooted at root.
func AssertTree(t *testing.T, root string) *Tree {
	return &Tree{t: t, root: root}
}

func (tr *Tree) path(rel string) string {
	return filepath.Join(tr.root, filepath.FromSlash(rel))
}

// Regular asserts rel exists and is a regular file, not a link.
func (tr *Tree) Regular(rel string) *Tree {
	tr.t.Helper()
	info, err := os.Lstat(tr.path(rel))
	if assert.NoError(tr.t, err, "expected %s in %s", rel, tr.root) {
		assert.True(tr.t, info.Mode().IsRegular(), "%s is %s, want a regular file", rel, info.Mode())
	}
	return tr
}

// Lacks asserts nothing exists at rel.
func (tr *Tree) Lacks(rel string) *Tree {
	tr.t.Helper()
	_, err := os.Lstat(tr.path(rel))
	assert.True(tr.t, os.IsNotExist(err), "unexpected %s in %s", rel, tr.root)
	return tr
}

// Content asserts rel holds exactly want.
func (tr *Tree) Content(rel, want string) *Tree {
	tr.t.Helper()
	data, err := os.ReadFile(tr.path(rel))
	if assert.NoError(tr.t, err) {
		assert.Equal(tr.t, want, string(data), "content of %s", rel)
	}
	return tr
}
