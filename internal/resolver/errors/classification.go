package errors

import (
	"context"
	"errors"
)

// Category groups resolution errors by the kind of problem they report
type Category int

const (
	// CategoryOther is any error not produced by the resolver itself (I/O, remote access)
	CategoryOther Category = iota
	// CategoryStructural indicates a malformed document or an incompatible merge
	CategoryStructural
	// CategoryGraph indicates a cycle or a missing import
	CategoryGraph
	// CategorySecurity indicates a path boundary violation
	CategorySecurity
	// CategoryEnvironment indicates an unresolved environment placeholder
	CategoryEnvironment
	// CategoryValidation indicates a post-merge uniqueness violation
	CategoryValidation
	// CategoryCancelled indicates the resolution was cancelled or timed out
	CategoryCancelled
)

// Exit codes returned by the CLI for each category
const (
	ExitOK          = 0
	ExitOther       = 1
	ExitStructural  = 3
	ExitGraph       = 4
	ExitSecurity    = 5
	ExitEnvironment = 6
	ExitValidation  = 7
	ExitCancelled   = 130
)

func (c Category) String() string {
	switch c {
	case CategoryStructural:
		return "structural"
	case CategoryGraph:
		return "graph"
	case CategorySecurity:
		return "security"
	case CategoryEnvironment:
		return "environment"
	case CategoryValidation:
		return "validation"
	case CategoryCancelled:
		return "cancelled"
	default:
		return "other"
	}
}

// ExitCode returns the process exit code for the category
func (c Category) ExitCode() int {
	switch c {
	case CategoryStructural:
		return ExitStructural
	case CategoryGraph:
		return ExitGraph
	case CategorySecurity:
		return ExitSecurity
	case CategoryEnvironment:
		return ExitEnvironment
	case CategoryValidation:
		return ExitValidation
	case CategoryCancelled:
		return ExitCancelled
	default:
		return ExitOther
	}
}

// Classification is the outcome of Classify
type Classification struct {
	Category  Category
	ExitCode  int
	Component string
}

// Classify maps err to its category, exit code and the resolver component
// that produced it. A nil error classifies as ExitOK.
func Classify(err error) Classification {
	if err == nil {
		return Classification{ExitCode: ExitOK}
	}

	category, component := classify(err)
	return Classification{
		Category:  category,
		ExitCode:  category.ExitCode(),
		Component: component,
	}
}

func classify(err error) (Category, string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CategoryCancelled, "resolver"
	case errors.Is(err, ErrImportDeclaration):
		return CategoryStructural, "resolver"
	case errors.Is(err, ErrDocumentParse):
		return CategoryStructural, "loader"
	case errors.Is(err, ErrMergeConflict):
		return CategoryStructural, "merge"
	case errors.Is(err, ErrCircularImport), errors.Is(err, ErrImportNotFound):
		return CategoryGraph, "resolver"
	case errors.Is(err, ErrPathSecurity):
		return CategorySecurity, "security"
	case errors.Is(err, ErrEnvVarMissing):
		return CategoryEnvironment, "expansion"
	case errors.Is(err, ErrDuplicateName):
		return CategoryValidation, "uniqueness"
	default:
		return CategoryOther, ""
	}
}
