// Package uniqueness checks the fully merged tree for named entities that
// were defined more than once across the imported documents.
package uniqueness

import (
	"fmt"

	resolvererrors "github.com/isseis/go-catalog-resolver/internal/resolver/errors"
	"github.com/isseis/go-catalog-resolver/internal/resolver/tree"
)

// DefaultSchema is the schema assumed for views that do not declare one
const DefaultSchema = "main"

// Entity kinds reported in DuplicateNameError
const (
	KindView           = "view"
	KindSemanticModel  = "semantic_model"
	KindIcebergCatalog = "iceberg_catalog"
	KindAttachment     = "attachment"
)

// Check returns the first duplicate found, visiting views, semantic models,
// iceberg catalogs and then attachments by sorted kind. Entries that are not
// mappings or carry no name are ignored; shape validation happens elsewhere.
func Check(t tree.Tree) error {
	if err := checkViews(t["views"]); err != nil {
		return err
	}
	if err := checkNamed(t["semantic_models"], KindSemanticModel, "name"); err != nil {
		return err
	}
	if err := checkNamed(t["iceberg_catalogs"], KindIcebergCatalog, "name"); err != nil {
		return err
	}
	return checkAttachments(t["attachments"])
}

func checkViews(v any) error {
	type key struct{ schema, name string }
	seen := make(map[key]struct{})

	for _, entry := range entries(v) {
		name, ok := stringField(entry, "name")
		if !ok {
			continue
		}
		schema, ok := stringField(entry, "schema")
		if !ok || schema == "" {
			schema = DefaultSchema
		}

		k := key{schema, name}
		if _, dup := seen[k]; dup {
			return &resolvererrors.DuplicateNameError{Kind: KindView, Name: name, Scope: schema}
		}
		seen[k] = struct{}{}
	}
	return nil
}

func checkNamed(v any, kind, field string) error {
	return checkScoped(v, kind, field, "")
}

func checkScoped(v any, kind, field, scope string) error {
	seen := make(map[string]struct{})
	for _, entry := range entries(v) {
		name, ok := stringField(entry, field)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			return &resolvererrors.DuplicateNameError{Kind: kind, Name: name, Scope: scope}
		}
		seen[name] = struct{}{}
	}
	return nil
}

// checkAttachments accepts both the per-kind mapping form
// (attachments.<kind>[].alias) and a plain list of attachments.
func checkAttachments(v any) error {
	switch a := v.(type) {
	case map[string]any:
		for _, kind := range tree.SortedKeys(a) {
			if err := checkScoped(a[kind], KindAttachment, "alias", kind); err != nil {
				return err
			}
		}
	case []any:
		return checkScoped(a, KindAttachment, "alias", "")
	}
	return nil
}

func entries(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// stringField returns a name-like field. Non-string scalars (e.g. a numeric
// name written without quotes) are compared by their text form.
func stringField(m map[string]any, field string) (string, bool) {
	v, ok := m[field]
	if !ok || v == nil || tree.IsContainer(v) {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}
