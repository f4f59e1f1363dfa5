package errors

import (
	"errors"
	"log/slog"
)

// LogClassified logs a resolution failure with its classification and, where
// available, the structured fields of the typed error.
func LogClassified(logger *slog.Logger, err error) {
	if err == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := Classify(err)
	attrs := []any{
		"category", c.Category.String(),
		"exit_code", c.ExitCode,
		"component", c.Component,
		"error", err.Error(),
	}

	var (
		cycle     *CircularImportError
		notFound  *ImportNotFoundError
		security  *PathSecurityError
		conflict  *MergeConflictError
		missing   *EnvVarMissingError
		duplicate *DuplicateNameError
	)
	switch {
	case errors.As(err, &cycle):
		attrs = append(attrs, "chain", cycle.ChainString())
	case errors.As(err, &notFound):
		attrs = append(attrs, "target", notFound.Target, "referenced_from", notFound.ReferencedFrom)
	case errors.As(err, &security):
		attrs = append(attrs, "input", security.Input, "canonical", security.Canonical, "rule", security.Rule)
	case errors.As(err, &conflict):
		attrs = append(attrs, "path", conflict.Path, "base_kind", conflict.BaseKind, "incoming_kind", conflict.IncomingKind)
	case errors.As(err, &missing):
		attrs = append(attrs, "variable", missing.Name, "file", missing.File)
	case errors.As(err, &duplicate):
		attrs = append(attrs, "kind", duplicate.Kind, "name", duplicate.Name, "scope", duplicate.Scope)
	}

	if c.Category == CategoryCancelled {
		logger.Warn("Resolution cancelled", attrs...)
		return
	}
	logger.Error("Resolution failed", attrs...)
}
