// Package errors defines the typed errors produced while resolving an import
// graph and classifies them into categories and CLI exit codes.
//
//nolint:revive // package name conflicts with standard library
package errors

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Resolution errors. Every typed error below wraps one of these sentinels so
// callers can use errors.Is without depending on the detail types.
var (
	// ErrCircularImport is returned when a file is imported while it is already being resolved
	ErrCircularImport = errors.New("circular import detected")

	// ErrImportNotFound is returned when an import target does not exist
	ErrImportNotFound = errors.New("import not found")

	// ErrPathSecurity is returned when a path escapes the allowed boundary
	ErrPathSecurity = errors.New("path security violation")

	// ErrMergeConflict is returned when the same key holds incompatible kinds
	ErrMergeConflict = errors.New("merge conflict")

	// ErrEnvVarMissing is returned when a placeholder names an undefined variable without default
	ErrEnvVarMissing = errors.New("environment variable not defined")

	// ErrDuplicateName is returned when a named entity is defined more than once after merging
	ErrDuplicateName = errors.New("duplicate name")

	// ErrImportDeclaration is returned when an imports directive is malformed
	ErrImportDeclaration = errors.New("invalid import declaration")

	// ErrDocumentParse is returned when a document cannot be decoded
	ErrDocumentParse = errors.New("failed to parse document")
)

// formatChain renders an import chain using file base names, e.g. "a.yaml -> b.yaml -> a.yaml".
func formatChain(chain []string) string {
	names := make([]string, len(chain))
	for i, p := range chain {
		names[i] = filepath.Base(p)
	}
	return strings.Join(names, " -> ")
}

// CircularImportError reports an import cycle. Chain holds the canonical paths
// of the active branch, ending with the file that closes the cycle.
type CircularImportError struct {
	Chain []string
}

func (e *CircularImportError) Error() string {
	return fmt.Sprintf("circular import detected: %s", formatChain(e.Chain))
}

func (e *CircularImportError) Unwrap() error {
	return ErrCircularImport
}

// ChainString returns the cycle rendered with file base names.
func (e *CircularImportError) ChainString() string {
	return formatChain(e.Chain)
}

// ImportNotFoundError reports a missing import target.
type ImportNotFoundError struct {
	Target         string
	ResolvedPath   string
	ReferencedFrom string
	Chain          []string
}

func (e *ImportNotFoundError) Error() string {
	msg := fmt.Sprintf("import not found: '%s'", e.Target)
	if e.ResolvedPath != "" && e.ResolvedPath != e.Target {
		msg += fmt.Sprintf(" (resolved to '%s')", e.ResolvedPath)
	}
	if e.ReferencedFrom != "" {
		msg += fmt.Sprintf(", referenced from '%s'", e.ReferencedFrom)
	}
	if len(e.Chain) > 1 {
		msg += fmt.Sprintf(" [chain: %s]", formatChain(e.Chain))
	}
	return msg
}

func (e *ImportNotFoundError) Unwrap() error {
	return ErrImportNotFound
}

// Path security rules.
const (
	RuleParentTraversal = "parent-traversal"
	RuleSystemDirectory = "system-directory"
	RuleInvalidPath     = "invalid-path"
	RuleRemoteDisabled  = "remote-disabled"
)

// PathSecurityError reports a path that failed boundary validation. Canonical
// is empty when the rule fired before canonicalisation.
type PathSecurityError struct {
	Input          string
	Canonical      string
	Rule           string
	ReferencedFrom string
}

func (e *PathSecurityError) Error() string {
	msg := fmt.Sprintf("path security violation (%s): '%s'", e.Rule, e.Input)
	if e.Canonical != "" && e.Canonical != e.Input {
		msg += fmt.Sprintf(" resolves to '%s'", e.Canonical)
	}
	if e.ReferencedFrom != "" {
		msg += fmt.Sprintf(", referenced from '%s'", e.ReferencedFrom)
	}
	return msg
}

func (e *PathSecurityError) Unwrap() error {
	return ErrPathSecurity
}

// MergeConflictError reports a key whose base and incoming values have
// incompatible kinds. Path uses "$.a.b[2]" notation.
type MergeConflictError struct {
	Path         string
	BaseKind     string
	IncomingKind string
	File         string
}

func (e *MergeConflictError) Error() string {
	msg := fmt.Sprintf("merge conflict at %s: cannot merge %s into %s", e.Path, e.IncomingKind, e.BaseKind)
	if e.File != "" {
		msg += fmt.Sprintf(" (from '%s')", e.File)
	}
	return msg
}

func (e *MergeConflictError) Unwrap() error {
	return ErrMergeConflict
}

// EnvVarMissingError reports a ${env:NAME} placeholder with no value and no default.
type EnvVarMissingError struct {
	Name string
	File string
}

func (e *EnvVarMissingError) Error() string {
	return fmt.Sprintf("environment variable '%s' is not defined (referenced in '%s')", e.Name, e.File)
}

func (e *EnvVarMissingError) Unwrap() error {
	return ErrEnvVarMissing
}

// DuplicateNameError reports a named entity defined twice in the merged tree.
// Scope qualifies the name, e.g. the view schema or the attachment kind.
type DuplicateNameError struct {
	Kind  string
	Name  string
	Scope string
}

func (e *DuplicateNameError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("duplicate %s name '%s' in '%s'", e.Kind, e.Name, e.Scope)
	}
	return fmt.Sprintf("duplicate %s name '%s'", e.Kind, e.Name)
}

func (e *DuplicateNameError) Unwrap() error {
	return ErrDuplicateName
}

// ImportDeclarationError reports a malformed imports directive.
type ImportDeclarationError struct {
	File   string
	Reason string
}

func (e *ImportDeclarationError) Error() string {
	return fmt.Sprintf("invalid import declaration in '%s': %s", e.File, e.Reason)
}

func (e *ImportDeclarationError) Unwrap() error {
	return ErrImportDeclaration
}

// DocumentParseError reports a document that could not be decoded.
type DocumentParseError struct {
	Source string
	Format string
	Cause  error
}

func (e *DocumentParseError) Error() string {
	return fmt.Sprintf("failed to parse %s document '%s': %v", e.Format, e.Source, e.Cause)
}

// Unwrap exposes both the sentinel and the decoder error.
func (e *DocumentParseError) Unwrap() []error {
	return []error{ErrDocumentParse, e.Cause}
}
