package merge

import (
	"testing"

	resolvererrors "github.com/isseis/go-catalog-resolver/internal/resolver/errors"
	"github.com/isseis/go-catalog-resolver/internal/resolver/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_Scalars(t *testing.T) {
	base := tree.Tree{"a": 1, "b": "x"}
	incoming := tree.Tree{"a": 2, "c": true}

	got, err := Merge(base, incoming, true)
	require.NoError(t, err)
	assert.Equal(t, tree.Tree{"a": 2, "b": "x", "c": true}, got)

	got, err = Merge(base, incoming, false)
	require.NoError(t, err)
	assert.Equal(t, tree.Tree{"a": 1, "b": "x", "c": true}, got)
}

func TestMerge_NestedMaps(t *testing.T) {
	base := tree.Tree{"duckdb": map[string]any{"database": "base.duckdb", "threads": 4}}
	incoming := tree.Tree{"duckdb": map[string]any{"database": "main.duckdb", "memory_limit": "2GB"}}

	got, err := Merge(base, incoming, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"database":     "main.duckdb",
		"threads":      4,
		"memory_limit": "2GB",
	}, got["duckdb"])

	got, err = Merge(base, incoming, false)
	require.NoError(t, err)
	assert.Equal(t, "base.duckdb", got["duckdb"].(map[string]any)["database"])
	assert.Equal(t, "2GB", got["duckdb"].(map[string]any)["memory_limit"])
}

func TestMerge_ListsConcatenate(t *testing.T) {
	base := tree.Tree{"views": []any{"a", "b"}}
	incoming := tree.Tree{"views": []any{"b", "c"}}

	for _, override := range []bool{true, false} {
		got, err := Merge(base, incoming, override)
		require.NoError(t, err)
		assert.Equal(t, []any{"a", "b", "b", "c"}, got["views"], "override=%v", override)
	}
}

func TestMerge_Null(t *testing.T) {
	tests := []struct {
		name     string
		base     tree.Tree
		incoming tree.Tree
		override bool
		want     tree.Tree
	}{
		{"null base takes container", tree.Tree{"a": nil}, tree.Tree{"a": []any{1}}, true, tree.Tree{"a": []any{1}}},
		{"null incoming keeps container", tree.Tree{"a": map[string]any{"x": 1}}, tree.Tree{"a": nil}, true, tree.Tree{"a": map[string]any{"x": 1}}},
		{"null incoming replaces scalar with override", tree.Tree{"a": "v"}, tree.Tree{"a": nil}, true, tree.Tree{"a": nil}},
		{"null incoming ignored without override", tree.Tree{"a": "v"}, tree.Tree{"a": nil}, false, tree.Tree{"a": "v"}},
		{"null base kept without override", tree.Tree{"a": nil}, tree.Tree{"a": "v"}, false, tree.Tree{"a": nil}},
		{"null base replaced with override", tree.Tree{"a": nil}, tree.Tree{"a": "v"}, true, tree.Tree{"a": "v"}},
		{"null base takes container without override", tree.Tree{"a": nil}, tree.Tree{"a": map[string]any{"x": 1}}, false, tree.Tree{"a": map[string]any{"x": 1}}},
		{"null incoming keeps list", tree.Tree{"a": []any{1}}, tree.Tree{"a": nil}, true, tree.Tree{"a": []any{1}}},
		{"null only in incoming", tree.Tree{}, tree.Tree{"a": nil}, true, tree.Tree{"a": nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Merge(tt.base, tt.incoming, tt.override)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMerge_KindConflict(t *testing.T) {
	tests := []struct {
		name         string
		base         tree.Tree
		incoming     tree.Tree
		path         string
		baseKind     string
		incomingKind string
	}{
		{"map vs list", tree.Tree{"views": map[string]any{}}, tree.Tree{"views": []any{}}, "$.views", "map", "list"},
		{"list vs scalar", tree.Tree{"a": []any{1}}, tree.Tree{"a": "x"}, "$.a", "list", "scalar"},
		{"nested scalar vs map", tree.Tree{"a": map[string]any{"b": 1}}, tree.Tree{"a": map[string]any{"b": map[string]any{}}}, "$.a.b", "scalar", "map"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, override := range []bool{true, false} {
				_, err := Merge(tt.base, tt.incoming, override)
				require.Error(t, err)

				var conflict *resolvererrors.MergeConflictError
				require.ErrorAs(t, err, &conflict)
				assert.Equal(t, tt.path, conflict.Path)
				assert.Equal(t, tt.baseKind, conflict.BaseKind)
				assert.Equal(t, tt.incomingKind, conflict.IncomingKind)
			}
		})
	}
}

func TestMerge_FirstConflictIsDeterministic(t *testing.T) {
	base := tree.Tree{"a": 1, "b": 1, "c": 1}
	incoming := tree.Tree{"c": []any{}, "b": []any{}, "a": []any{}}

	for range 20 {
		_, err := Merge(base, incoming, true)
		var conflict *resolvererrors.MergeConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "$.a", conflict.Path)
	}
}

func TestMerge_InputsNotMutated(t *testing.T) {
	base := tree.Tree{"m": map[string]any{"x": 1}, "l": []any{1}}
	incoming := tree.Tree{"m": map[string]any{"y": 2}, "l": []any{2}, "n": map[string]any{"z": 3}}

	got, err := Merge(base, incoming, true)
	require.NoError(t, err)

	assert.Equal(t, tree.Tree{"m": map[string]any{"x": 1}, "l": []any{1}}, base)
	assert.Equal(t, map[string]any{"y": 2}, incoming["m"])

	got["n"].(map[string]any)["z"] = 99
	assert.Equal(t, 3, incoming["n"].(map[string]any)["z"], "result must not alias incoming")
}

func TestMerge_NilBase(t *testing.T) {
	got, err := Merge(nil, tree.Tree{"a": 1}, false)
	require.NoError(t, err)
	assert.Equal(t, tree.Tree{"a": 1}, got)
}

func TestMergeAt(t *testing.T) {
	base := tree.Tree{"views": []any{"root_view"}, "duckdb": map[string]any{"database": "main.duckdb"}}

	got, err := MergeAt(base, "views", []any{"imported_view"}, true)
	require.NoError(t, err)
	assert.Equal(t, []any{"root_view", "imported_view"}, got["views"])
	assert.Equal(t, base["duckdb"], got["duckdb"])

	got, err = MergeAt(tree.Tree{}, "semantic_models", []any{"m"}, true)
	require.NoError(t, err)
	assert.Equal(t, []any{"m"}, got["semantic_models"])

	_, err = MergeAt(base, "views", map[string]any{"x": 1}, true)
	assert.ErrorIs(t, err, resolvererrors.ErrMergeConflict)
}
