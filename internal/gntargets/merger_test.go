package gntargets

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
)

func TestMergerUnionsMergeableLists(t *testing.T) {
	m := NewMerger()
	require.NoError(t, m.Append("a/one", Targets{"//x:y": {"include_dirs": []any{"a", "b"}, "type": "static_library"}}))
	require.NoError(t, m.Append("a/two", Targets{"//x:y": {"include_dirs": []any{"b", "c"}, "type": "static_library"}}))

	want := Targets{"//x:y": {"include_dirs": []any{"a", "b", "c"}, "type": "static_library"}}
	if diff := cmp.Diff(want, m.Targets()); diff != "" {
		t.Fatalf("merged targets mismatch (-want +got):\n%s", diff)
	}
}

func TestMergerRejectsConflictingScalar(t *testing.T) {
	m := NewMerger()
	require.NoError(t, m.Append("a/one", Targets{"//x:y": {"script": "s1"}}))

	err := m.Append("a/two", Targets{
		"//x:y":   {"script": "s2"},
		"//x:new": {"type": "group"},
	})
	var mce *MergeConflictError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, "a/two", mce.Package)
	assert.Equal(t, "//x:y", mce.Target)
	assert.Equal(t, "script", mce.Field)
	assert.Equal(t, "s1", mce.Existing)
	assert.Equal(t, "s2", mce.Incoming)
	assert.Equal(t, ferrors.CategoryMerge, ferrors.GetCategory(err))

	// A rejected package leaves no trace.
	assert.NotContains(t, m.Targets(), "//x:new")
	assert.Equal(t, "s1", m.Targets()["//x:y"]["script"])
}

func TestMergerRejectsDifferingUnmergeableList(t *testing.T) {
	m := NewMerger()
	require.NoError(t, m.Append("a/one", Targets{"//x:y": {"sources": []any{"a.cc"}}}))
	err := m.Append("a/two", Targets{"//x:y": {"sources": []any{"b.cc"}}})
	var mce *MergeConflictError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, "sources", mce.Field)
}

func TestMergerTakesNewTargetsAndFields(t *testing.T) {
	m := NewMerger()
	require.NoError(t, m.Append("a/one", Targets{"//x:y": {"type": "executable"}}))
	require.NoError(t, m.Append("a/two", Targets{
		"//x:y": {"type": "executable", "testonly": false},
		"//z:w": {"type": "group"},
	}))

	want := Targets{
		"//x:y": {"type": "executable", "testonly": false},
		"//z:w": {"type": "group"},
	}
	if diff := cmp.Diff(want, m.Targets()); diff != "" {
		t.Fatalf("merged targets mismatch (-want +got):\n%s", diff)
	}
}

func TestKindOf(t *testing.T) {
	tests := map[string]fieldKind{
		"args":                   fieldArgList,
		"cflags_cc":              fieldArgList,
		"ldflags":                fieldArgList,
		"include_dirs":           fieldPathList,
		"response_file_contents": fieldPathList,
		"sources":                fieldGeneratedPathList,
		"outputs":                fieldGeneratedPathList,
		"output_patterns":        fieldOutputPatterns,
		"script":                 fieldScript,
		"deps":                   fieldPassThrough,
		"defines":                fieldPassThrough,
	}
	for field, want := range tests {
		assert.Equal(t, want, kindOf(field), field)
	}
}

func TestPathDir(t *testing.T) {
	assert.Equal(t, "//foo", pathDir("//foo/bar.cc"))
	assert.Equal(t, "//", pathDir("//bar.cc"))
	assert.Equal(t, "/", pathDir("/bar.cc"))
	assert.Equal(t, "", pathDir("bar.cc"))
	assert.Equal(t, "out/gen", pathDir("out/gen/{{source_name_part}}.h"))
}
