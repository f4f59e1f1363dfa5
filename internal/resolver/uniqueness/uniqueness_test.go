package uniqueness

import (
	"testing"

	resolvererrors "github.com/isseis/go-catalog-resolver/internal/resolver/errors"
	"github.com/isseis/go-catalog-resolver/internal/resolver/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func view(name, schema string) map[string]any {
	m := map[string]any{"name": name}
	if schema != "" {
		m["schema"] = schema
	}
	return m
}

func TestCheck_Views(t *testing.T) {
	tests := []struct {
		name    string
		views   []any
		wantErr bool
		dupName string
		scope   string
	}{
		{"distinct", []any{view("users", ""), view("orders", "")}, false, "", ""},
		{"same name different schema", []any{view("users", "main"), view("users", "staging")}, false, "", ""},
		{"duplicate default schema", []any{view("users", ""), view("users", "")}, true, "users", "main"},
		{"explicit main equals default", []any{view("users", "main"), view("users", "")}, true, "users", "main"},
		{"duplicate custom schema", []any{view("a", "s"), view("a", "s")}, true, "a", "s"},
		{"entries without name ignored", []any{map[string]any{"sql": "select 1"}, map[string]any{"sql": "select 2"}, "scalar"}, false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tree.Tree{"views": tt.views})
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var dup *resolvererrors.DuplicateNameError
			require.ErrorAs(t, err, &dup)
			assert.Equal(t, KindView, dup.Kind)
			assert.Equal(t, tt.dupName, dup.Name)
			assert.Equal(t, tt.scope, dup.Scope)
		})
	}
}

func TestCheck_OtherCollections(t *testing.T) {
	err := Check(tree.Tree{"semantic_models": []any{map[string]any{"name": "sales"}, map[string]any{"name": "sales"}}})
	var dup *resolvererrors.DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, KindSemanticModel, dup.Kind)

	err = Check(tree.Tree{"iceberg_catalogs": []any{map[string]any{"name": "lake"}, map[string]any{"name": "lake"}}})
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, KindIcebergCatalog, dup.Kind)
	assert.Equal(t, "lake", dup.Name)
}

func TestCheck_Attachments(t *testing.T) {
	ok := tree.Tree{"attachments": map[string]any{
		"duckdb": []any{map[string]any{"alias": "ref"}},
		"sqlite": []any{map[string]any{"alias": "ref"}},
	}}
	assert.NoError(t, Check(ok), "aliases are scoped per attachment kind")

	bad := tree.Tree{"attachments": map[string]any{
		"sqlite":   []any{map[string]any{"alias": "a"}, map[string]any{"alias": "a"}},
		"postgres": []any{map[string]any{"alias": "b"}, map[string]any{"alias": "b"}},
	}}
	err := Check(bad)
	var dup *resolvererrors.DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, KindAttachment, dup.Kind)
	assert.Equal(t, "postgres", dup.Scope, "kinds are visited in sorted order")

	err = Check(tree.Tree{"attachments": []any{map[string]any{"alias": "x"}, map[string]any{"alias": "x"}}})
	assert.ErrorIs(t, err, resolvererrors.ErrDuplicateName)
}

func TestCheck_OrderAcrossCollections(t *testing.T) {
	err := Check(tree.Tree{
		"views":           []any{view("users", ""), view("users", "")},
		"semantic_models": []any{map[string]any{"name": "m"}, map[string]any{"name": "m"}},
	})
	var dup *resolvererrors.DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, KindView, dup.Kind)
}

func TestCheck_Empty(t *testing.T) {
	assert.NoError(t, Check(tree.Tree{}))
	assert.NoError(t, Check(tree.Tree{"views": "not a list"}))
}
