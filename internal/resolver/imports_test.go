package resolver

import (
	"testing"

	resolvererrors "github.com/isseis/go-catalog-resolver/internal/resolver/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseImports(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  []importList
	}{
		{
			name:  "absent",
			value: nil,
			want:  nil,
		},
		{
			name:  "single string",
			value: "base.yaml",
			want: []importList{{
				entries: []ImportEntry{{Target: "base.yaml", Override: true}},
			}},
		},
		{
			name:  "empty list",
			value: []any{},
			want:  []importList{{}},
		},
		{
			name: "strings, objects and excludes",
			value: []any{
				"views/*.yaml",
				"!views/legacy.yaml",
				map[string]any{"path": "local.yaml", "override": false, "optional": true},
				map[string]any{"path": "tuning.yaml", "section": "duckdb"},
			},
			want: []importList{{
				entries: []ImportEntry{
					{Target: "views/*.yaml", Override: true},
					{Target: "local.yaml", Override: false, Optional: true},
					{Target: "tuning.yaml", Override: true, Section: "duckdb"},
				},
				excludes: []string{"views/legacy.yaml"},
			}},
		},
		{
			name: "mapping form is ordered by section",
			value: map[string]any{
				"views":  []any{"views/*.yaml"},
				"duckdb": []any{map[string]any{"path": "db.yaml", "override": false}},
			},
			want: []importList{
				{entries: []ImportEntry{{Target: "db.yaml", Section: "duckdb"}}},
				{entries: []ImportEntry{{Target: "views/*.yaml", Override: true, Section: "views"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseImports(tt.value, "catalog.yaml")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseImports_Errors(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		reason string
	}{
		{name: "scalar", value: 42, reason: "must be a list or a mapping"},
		{name: "only excludes", value: []any{"!legacy.yaml"}, reason: "exclude patterns without any import"},
		{name: "empty exclude", value: []any{"a.yaml", "!"}, reason: "empty exclude pattern"},
		{name: "nested list", value: []any{[]any{"a.yaml"}}, reason: "must be a string or a mapping"},
		{name: "unknown field", value: []any{map[string]any{"path": "a.yaml", "merge": true}}, reason: "unknown field 'merge'"},
		{name: "missing path", value: []any{map[string]any{"override": true}}, reason: "'path' must be a string"},
		{name: "empty path", value: []any{map[string]any{"path": ""}}, reason: "entry 0"},
		{name: "override not bool", value: []any{map[string]any{"path": "a.yaml", "override": "no"}}, reason: "'override' must be a boolean"},
		{name: "exclude object", value: []any{map[string]any{"path": "!a.yaml"}}, reason: "plain strings"},
		{
			name:   "conflicting section",
			value:  map[string]any{"views": []any{map[string]any{"path": "a.yaml", "section": "duckdb"}}},
			reason: "does not match enclosing section",
		},
		{name: "section not a list", value: map[string]any{"views": 3}, reason: "must be a list"},
		{name: "section with separator", value: []any{map[string]any{"path": "a.yaml", "section": "a/b"}}, reason: "entry 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseImports(tt.value, "catalog.yaml")
			require.Error(t, err)

			var declErr *resolvererrors.ImportDeclarationError
			require.ErrorAs(t, err, &declErr)
			assert.Equal(t, "catalog.yaml", declErr.File)
			assert.Contains(t, declErr.Reason, tt.reason)
		})
	}
}
