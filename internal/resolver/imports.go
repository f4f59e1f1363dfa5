package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	resolvererrors "github.com/isseis/go-catalog-resolver/internal/resolver/errors"
	"github.com/isseis/go-catalog-resolver/internal/resolver/tree"
)

// ImportsKey is the document key holding import directives
const ImportsKey = "imports"

const excludePrefix = "!"

// ImportEntry is one positive import directive
type ImportEntry struct {
	// Target is a path, glob pattern or remote URI
	Target string `validate:"required"`
	// Override lets the imported values replace values already present
	Override bool
	// Section restricts the import to one top-level key
	Section string `validate:"omitempty,excludesall=/\\"`
	// Optional tolerates a missing target
	Optional bool
}

// importList is one list of directives; excludes apply to every entry of the list
type importList struct {
	entries  []ImportEntry
	excludes []string
}

var entryFields = map[string]struct{}{
	"path":     {},
	"override": {},
	"section":  {},
	"optional": {},
}

var validate = validator.New()

// parseImports decodes the imports value of a document. A list yields one
// unscoped importList; the mapping form yields one importList per section,
// ordered by section name.
func parseImports(value any, file string) ([]importList, error) {
	declErr := func(format string, args ...any) error {
		return &resolvererrors.ImportDeclarationError{File: file, Reason: fmt.Sprintf(format, args...)}
	}

	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		list, err := parseList([]any{v}, "", file)
		if err != nil {
			return nil, err
		}
		return []importList{list}, nil
	case []any:
		list, err := parseList(v, "", file)
		if err != nil {
			return nil, err
		}
		return []importList{list}, nil
	case map[string]any:
		sections := make([]string, 0, len(v))
		for section := range v {
			sections = append(sections, section)
		}
		sort.Strings(sections)

		lists := make([]importList, 0, len(sections))
		for _, section := range sections {
			if section == "" {
				return nil, declErr("empty section name")
			}
			items, ok := v[section].([]any)
			if !ok {
				s, isString := v[section].(string)
				if !isString {
					return nil, declErr("section '%s' must be a list, got %s", section, tree.KindOf(v[section]))
				}
				items = []any{s}
			}
			list, err := parseList(items, section, file)
			if err != nil {
				return nil, err
			}
			lists = append(lists, list)
		}
		return lists, nil
	default:
		return nil, declErr("imports must be a list or a mapping, got %s", tree.KindOf(value))
	}
}

func parseList(items []any, section, file string) (importList, error) {
	var list importList
	for i, item := range items {
		switch v := item.(type) {
		case string:
			if strings.HasPrefix(v, excludePrefix) {
				pattern := strings.TrimPrefix(v, excludePrefix)
				if pattern == "" {
					return importList{}, &resolvererrors.ImportDeclarationError{File: file, Reason: fmt.Sprintf("entry %d: empty exclude pattern", i)}
				}
				list.excludes = append(list.excludes, pattern)
				continue
			}
			entry := ImportEntry{Target: v, Override: true, Section: section}
			if err := validateEntry(entry, i, file); err != nil {
				return importList{}, err
			}
			list.entries = append(list.entries, entry)
		case map[string]any:
			entry, err := parseEntryObject(v, i, section, file)
			if err != nil {
				return importList{}, err
			}
			list.entries = append(list.entries, entry)
		default:
			return importList{}, &resolvererrors.ImportDeclarationError{
				File:   file,
				Reason: fmt.Sprintf("entry %d must be a string or a mapping, got %s", i, tree.KindOf(item)),
			}
		}
	}

	if len(list.entries) == 0 && len(list.excludes) > 0 {
		return importList{}, &resolvererrors.ImportDeclarationError{File: file, Reason: "exclude patterns without any import"}
	}
	return list, nil
}

func parseEntryObject(obj map[string]any, index int, section, file string) (ImportEntry, error) {
	declErr := func(format string, args ...any) error {
		return &resolvererrors.ImportDeclarationError{
			File:   file,
			Reason: fmt.Sprintf("entry %d: ", index) + fmt.Sprintf(format, args...),
		}
	}

	for _, key := range tree.SortedKeys(obj) {
		if _, ok := entryFields[key]; !ok {
			return ImportEntry{}, declErr("unknown field '%s'", key)
		}
	}

	entry := ImportEntry{Override: true, Section: section}

	target, ok := obj["path"].(string)
	if !ok {
		return ImportEntry{}, declErr("'path' must be a string")
	}
	if strings.HasPrefix(target, excludePrefix) {
		return ImportEntry{}, declErr("exclude patterns must be written as plain strings")
	}
	entry.Target = target

	if v, exists := obj["override"]; exists {
		b, ok := v.(bool)
		if !ok {
			return ImportEntry{}, declErr("'override' must be a boolean")
		}
		entry.Override = b
	}
	if v, exists := obj["optional"]; exists {
		b, ok := v.(bool)
		if !ok {
			return ImportEntry{}, declErr("'optional' must be a boolean")
		}
		entry.Optional = b
	}
	if v, exists := obj["section"]; exists {
		s, ok := v.(string)
		if !ok {
			return ImportEntry{}, declErr("'section' must be a string")
		}
		if section != "" && s != section {
			return ImportEntry{}, declErr("section '%s' does not match enclosing section '%s'", s, section)
		}
		entry.Section = s
	}

	if err := validateEntry(entry, index, file); err != nil {
		return ImportEntry{}, err
	}
	return entry, nil
}

func validateEntry(entry ImportEntry, index int, file string) error {
	if err := validate.Struct(entry); err != nil {
		return &resolvererrors.ImportDeclarationError{
			File:   file,
			Reason: fmt.Sprintf("entry %d: %v", index, err),
		}
	}
	return nil
}
