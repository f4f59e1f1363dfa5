// Package tree provides helpers for the generic value trees produced by the
// document loaders: maps with string keys, lists and scalars.
package tree

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Tree is a decoded configuration document
type Tree = map[string]any

// Kind classifies a value for merge purposes
type Kind int

const (
	// KindNull is an explicit null (YAML ~, JSON null)
	KindNull Kind = iota
	// KindScalar is any string, number, boolean or timestamp
	KindScalar
	// KindMap is a mapping with string keys
	KindMap
	// KindList is a sequence
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "scalar"
	}
}

// KindOf returns the kind of a normalised value
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case map[string]any:
		return KindMap
	case []any:
		return KindList
	default:
		return KindScalar
	}
}

// IsContainer reports whether v is a map or a list
func IsContainer(v any) bool {
	k := KindOf(v)
	return k == KindMap || k == KindList
}

// Normalize converts decoder output into the canonical representation used
// by the merge engine: map[any]any and typed maps become map[string]any and
// typed slices become []any. Non-string map keys are rendered with fmt.
func Normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	default:
		return v
	}
}

// Clone returns a deep copy of v. Scalars are immutable and shared.
func Clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Clone(item)
		}
		return out
	default:
		return v
	}
}

// CloneTree is Clone for a whole document. A nil tree clones to an empty one.
func CloneTree(t Tree) Tree {
	if t == nil {
		return Tree{}
	}
	return Clone(t).(map[string]any)
}

// SortedKeys returns the keys of m in lexicographic order
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RootPath is the path of the document root in error messages
const RootPath = "$"

// Child returns the path of key below parent, e.g. "$.duckdb.database".
// Keys that are not plain identifiers are quoted: $["my key"].
func Child(parent, key string) string {
	if isPlainKey(key) {
		return parent + "." + key
	}
	return parent + "[" + strconv.Quote(key) + "]"
}

// Index returns the path of element i below parent, e.g. "$.views[2]".
func Index(parent string, i int) string {
	return parent + "[" + strconv.Itoa(i) + "]"
}

func isPlainKey(key string) bool {
	if key == "" {
		return false
	}
	return !strings.ContainsAny(key, ".[]\"' \t")
}

// Lookup returns the value at the dotted path in t, e.g. "duckdb.database".
func Lookup(t Tree, dotted string) (any, bool) {
	var cur any = t
	for _, part := range strings.Split(dotted, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
