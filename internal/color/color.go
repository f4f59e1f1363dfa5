// Package color wraps text in ANSI escape sequences for terminal output.
//
//nolint:revive // package name conflicts with standard library
package color

import "log/slog"

const (
	resetCode  = "\033[0m"
	boldCode   = "\033[1m"
	grayCode   = "\033[90m"
	redCode    = "\033[31m"
	greenCode  = "\033[32m"
	yellowCode = "\033[33m"
	cyanCode   = "\033[36m"
)

// Color wraps text with an escape sequence and a reset
type Color func(text string) string

// NewColor creates a Color for the given ANSI code
func NewColor(ansiCode string) Color {
	return func(text string) string {
		return ansiCode + text + resetCode
	}
}

// None returns text unchanged
func None(text string) string { return text }

var (
	Bold   = NewColor(boldCode)
	Gray   = NewColor(grayCode)
	Red    = NewColor(redCode)
	Green  = NewColor(greenCode)
	Yellow = NewColor(yellowCode)
	Cyan   = NewColor(cyanCode)
)

// ForLevel returns the color used for a log level
func ForLevel(level slog.Level) Color {
	switch {
	case level >= slog.LevelError:
		return Red
	case level >= slog.LevelWarn:
		return Yellow
	case level >= slog.LevelInfo:
		return Green
	default:
		return Gray
	}
}

// Palette selects between colored and plain output
type Palette struct {
	Path    Color
	Muted   Color
	Warning Color
	Error   Color
}

// NewPalette returns a colored palette when enabled and a plain one otherwise
func NewPalette(enabled bool) Palette {
	if !enabled {
		return Palette{Path: None, Muted: None, Warning: None, Error: None}
	}
	return Palette{Path: Cyan, Muted: Gray, Warning: Yellow, Error: Red}
}
