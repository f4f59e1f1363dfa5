package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/isseis/go-catalog-resolver/internal/safefileio"
	"github.com/isseis/go-catalog-resolver/internal/terminal"
)

// Output formats for the diagnostic stream
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

const logFilePerm os.FileMode = 0o600

var (
	// ErrInvalidLogLevel is returned for an unknown level name
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat is returned for an unknown format name
	ErrInvalidLogFormat = errors.New("invalid log format")
)

// Options configures Setup
type Options struct {
	Level slog.Level
	// Format is FormatAuto (interactive lines on a terminal, text otherwise),
	// FormatText or FormatJSON
	Format string
	// Writer receives diagnostics, usually os.Stderr
	Writer io.Writer
	// LogFile, when set, receives every record at debug level as JSON
	LogFile      string
	Capabilities terminal.Capabilities
	Redaction    *RedactionConfig
}

// ParseLevel converts a level name ("debug", "info", "warn", "error")
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, name)
	}
	return level, nil
}

// Setup builds the logger described by opts. The returned function closes
// the log file, if any, and must be called before the process exits.
func Setup(opts Options) (*slog.Logger, func() error, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	var stream slog.Handler
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	switch opts.Format {
	case FormatJSON:
		stream = slog.NewJSONHandler(writer, handlerOpts)
	case FormatText:
		stream = slog.NewTextHandler(writer, handlerOpts)
	case "", FormatAuto:
		if opts.Capabilities != nil && opts.Capabilities.IsInteractive() {
			h, err := NewInteractiveHandler(InteractiveHandlerOptions{
				Level:        opts.Level,
				Writer:       writer,
				Capabilities: opts.Capabilities,
			})
			if err != nil {
				return nil, nil, err
			}
			stream = h
		} else {
			stream = slog.NewTextHandler(writer, handlerOpts)
		}
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidLogFormat, opts.Format)
	}

	closer := func() error { return nil }
	var file slog.Handler
	if opts.LogFile != "" {
		f, err := safefileio.SafeOpenForAppend(opts.LogFile, logFilePerm)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
		closer = f.Close
	}

	handler := NewRedactingHandler(NewMultiHandler(stream, file), opts.Redaction)
	return slog.New(handler), closer, nil
}
