// Package merge implements the deterministic deep merge applied when an
// imported document contributes to its importer.
//
// Rules:
//   - map + map: merged key by key with the same override flag
//   - list + list: concatenated, base elements first, never deduplicated
//   - scalar + scalar: incoming wins when override is set, base is kept otherwise
//   - null is a scalar against scalars and null; against a container it is
//     treated as an absent value, so the container is kept
//   - any other combination is a MergeConflictError
//
// Inputs are never mutated. Keys are visited in sorted order so the first
// conflict reported for a given pair of trees is always the same one.
package merge

import (
	resolvererrors "github.com/isseis/go-catalog-resolver/internal/resolver/errors"
	"github.com/isseis/go-catalog-resolver/internal/resolver/tree"
)

// Merge merges incoming into base and returns a new tree.
func Merge(base, incoming tree.Tree, override bool) (tree.Tree, error) {
	if base == nil {
		base = tree.Tree{}
	}
	return mergeMap(base, incoming, tree.RootPath, override)
}

// MergeAt merges incoming into base[section], creating the section when it is
// absent. It is used for selective imports, where only one subtree of the
// imported document contributes.
func MergeAt(base tree.Tree, section string, incoming any, override bool) (tree.Tree, error) {
	return Merge(base, tree.Tree{section: incoming}, override)
}

func mergeMap(base, incoming map[string]any, path string, override bool) (map[string]any, error) {
	out := make(map[string]any, len(base)+len(incoming))
	for k, v := range base {
		out[k] = v
	}

	for _, k := range tree.SortedKeys(incoming) {
		iv := incoming[k]
		bv, exists := out[k]
		if !exists {
			out[k] = tree.Clone(iv)
			continue
		}

		merged, err := mergeValue(bv, iv, tree.Child(path, k), override)
		if err != nil {
			return nil, err
		}
		out[k] = merged
	}

	return out, nil
}

func mergeValue(base, incoming any, path string, override bool) (any, error) {
	baseKind := tree.KindOf(base)
	incomingKind := tree.KindOf(incoming)

	switch {
	case incomingKind == tree.KindNull && isContainerKind(baseKind):
		return base, nil
	case baseKind == tree.KindNull && isContainerKind(incomingKind):
		return tree.Clone(incoming), nil
	case baseKind == tree.KindMap && incomingKind == tree.KindMap:
		return mergeMap(base.(map[string]any), incoming.(map[string]any), path, override)
	case baseKind == tree.KindList && incomingKind == tree.KindList:
		return concat(base.([]any), incoming.([]any)), nil
	case isScalarKind(baseKind) && isScalarKind(incomingKind):
		if override {
			return incoming, nil
		}
		return base, nil
	default:
		return nil, &resolvererrors.MergeConflictError{
			Path:         path,
			BaseKind:     baseKind.String(),
			IncomingKind: incomingKind.String(),
		}
	}
}

func isContainerKind(k tree.Kind) bool {
	return k == tree.KindMap || k == tree.KindList
}

func isScalarKind(k tree.Kind) bool {
	return k == tree.KindScalar || k == tree.KindNull
}

func concat(base, incoming []any) []any {
	out := make([]any, 0, len(base)+len(incoming))
	out = append(out, base...)
	for _, v := range incoming {
		out = append(out, tree.Clone(v))
	}
	return out
}
