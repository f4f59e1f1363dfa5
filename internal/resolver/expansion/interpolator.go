// Package expansion substitutes ${env:NAME} and ${env:NAME:default}
// placeholders inside the string values of a document tree.
package expansion

import (
	"regexp"
	"strings"

	resolvererrors "github.com/isseis/go-catalog-resolver/internal/resolver/errors"
)

const placeholderPrefix = "${env:"

var (
	// Matches an optional escaping '$', the variable name and an optional default.
	placeholderPattern = regexp.MustCompile(`(\$?)\$\{env:([A-Za-z_][A-Za-z0-9_]*)(?::([^}]*))?\}`)

	escapeGroupIndex  = 1
	nameGroupIndex    = 2
	defaultGroupIndex = 3
)

// VariableLookup resolves a variable as seen from a document directory
type VariableLookup interface {
	Lookup(name, dir string) (string, bool, error)
}

// Interpolator replaces environment placeholders. Substituted values are not
// expanded again, so a variable whose value contains "${env:...}" is inserted
// literally.
type Interpolator struct {
	vars VariableLookup
}

// NewInterpolator creates an Interpolator backed by vars
func NewInterpolator(vars VariableLookup) *Interpolator {
	return &Interpolator{vars: vars}
}

// Interpolate returns a copy of value with every placeholder in every string
// replaced. Map keys are left untouched. file names the originating document
// in errors and dir is where .env discovery starts (empty for remote documents).
func (i *Interpolator) Interpolate(value any, file, dir string) (any, error) {
	switch v := value.(type) {
	case string:
		return i.InterpolateString(v, file, dir)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			expanded, err := i.Interpolate(item, file, dir)
			if err != nil {
				return nil, err
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for idx, item := range v {
			expanded, err := i.Interpolate(item, file, dir)
			if err != nil {
				return nil, err
			}
			out[idx] = expanded
		}
		return out, nil
	default:
		return value, nil
	}
}

// InterpolateString replaces the placeholders of a single string.
// "$${env:NAME}" is an escape for the literal text "${env:NAME}".
func (i *Interpolator) InterpolateString(text, file, dir string) (string, error) {
	if !strings.Contains(text, placeholderPrefix) {
		return text, nil
	}

	matches := placeholderPattern.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return text, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		last = m[1]

		if m[2*escapeGroupIndex+1] > m[2*escapeGroupIndex] {
			// Drop the escaping '$' and keep the placeholder text.
			b.WriteString(text[m[0]+1 : m[1]])
			continue
		}

		name := text[m[2*nameGroupIndex]:m[2*nameGroupIndex+1]]
		value, found, err := i.vars.Lookup(name, dir)
		if err != nil {
			return "", err
		}
		if !found {
			if m[2*defaultGroupIndex] < 0 {
				return "", &resolvererrors.EnvVarMissingError{Name: name, File: file}
			}
			value = text[m[2*defaultGroupIndex]:m[2*defaultGroupIndex+1]]
		}
		b.WriteString(value)
	}
	b.WriteString(text[last:])

	return b.String(), nil
}
