package packages

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDescriptorsJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "packages.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[
	  {"name": "chromeos-base/a", "src_dirs": ["/src/a"], "deps": [{"name": "chromeos-base/b", "types": ["buildtime"]}]},
	  {"name": "chromeos-base/b", "src_dirs": ["/src/b"]}
	]`), 0o644))
	yamlPath := filepath.Join(dir, "packages.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
- name: chromeos-base/a
  src_dirs: [/src/a]
  deps:
    - name: chromeos-base/b
      types: [buildtime]
- name: chromeos-base/b
  src_dirs: [/src/b]
`), 0o644))

	fromJSON, err := LoadDescriptors(jsonPath)
	require.NoError(t, err)
	fromYAML, err := LoadDescriptors(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, fromJSON, fromYAML)
	require.Len(t, fromJSON, 2)
	assert.Equal(t, "chromeos-base/b", fromJSON[0].Deps[0].Name)
}

func TestLoadDescriptorsRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packages.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name": "a/b"}, {"name": "a/b"}]`), 0o644))
	_, err := LoadDescriptors(path)
	assert.ErrorContains(t, err, "listed twice")
}

func TestSerializeRoundTrip(t *testing.T) {
	p, err := New(Descriptor{
		Name:   "chromeos-base/a",
		Ebuild: "/overlay/chromeos-base/a/a-9999.ebuild",
		Deps:   []Dependency{{Name: "chromeos-base/b", Types: []string{"buildtime", "runtime"}}},
	}, "/b")
	require.NoError(t, err)

	data, err := Serialize(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ebuild": "/overlay/chromeos-base/a/a-9999.ebuild", "deps": [{"name": "chromeos-base/b", "types": ["buildtime", "runtime"]}]}`, string(data))

	d, err := Deserialize(data, Descriptor{Name: "chromeos-base/a"})
	require.NoError(t, err)
	assert.Equal(t, p.Descriptor.Ebuild, d.Ebuild)
	assert.Equal(t, p.Dependencies, d.Deps)

	_, err = Deserialize([]byte(`{"ebuild": "x"}`), Descriptor{})
	assert.ErrorContains(t, err, `missing "deps"`)
}

func TestSelectDropsUnsupportedAndPrunesEdges(t *testing.T) {
	skip, err := NewSkipList([]string{"chromeos-base/*-test"})
	require.NoError(t, err)

	descs := []Descriptor{
		{Name: "chromeos-base/a", SrcDirs: []string{"/s/a"}, Subtrees: []string{".gn"}, Deps: []Dependency{
			{Name: "chromeos-base/b"}, {Name: "chromeos-base/c"}, {Name: "chromeos-base/a-test"}, {Name: "dev-rust/r"},
		}},
		{Name: "chromeos-base/b", SrcDirs: []string{"/s/b"}, Subtrees: []string{".gn"}},
		{Name: "chromeos-base/c", SrcDirs: []string{"/s/empty-project"}, Subtrees: []string{".gn"}},
		{Name: "chromeos-base/a-test", SrcDirs: []string{"/s/t"}, Subtrees: []string{".gn"}},
		{Name: "dev-rust/r", SrcDirs: []string{"/s/r"}, Subtrees: []string{".gn"}, RustSubdir: "r"},
		{Name: "media-libs/m", SrcDirs: []string{"/s/m"}, Subtrees: []string{"Makefile"}},
	}

	sel := Select(descs, skip)
	require.Len(t, sel.Kept, 2)
	assert.Equal(t, "chromeos-base/a", sel.Kept[0].Name)
	assert.Equal(t, []Dependency{{Name: "chromeos-base/b"}}, sel.Kept[0].Deps)
	assert.Equal(t, map[string]Support{
		"chromeos-base/c":      NoLocalSource,
		"chromeos-base/a-test": SkippedByConfig,
		"dev-rust/r":           NoGnBuild,
		"media-libs/m":         NoGnBuild,
	}, sel.Dropped)
	// The input is left untouched.
	assert.Len(t, descs[0].Deps, 4)
}

func TestSkipListDoesNotCrossCategory(t *testing.T) {
	skip, err := NewSkipList([]string{"*"})
	require.NoError(t, err)
	_, ok := skip.Match("chromeos-base/foo")
	assert.False(t, ok)

	var none *SkipList
	_, ok = none.Match("chromeos-base/foo")
	assert.False(t, ok)
}
