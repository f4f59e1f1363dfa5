package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/isseis/go-catalog-resolver/internal/color"
	"github.com/isseis/go-catalog-resolver/internal/terminal"
)

// ErrInteractiveHandlerWriterRequired is returned when no writer is configured
var ErrInteractiveHandlerWriterRequired = errors.New("InteractiveHandler: Writer is required")

// quietKeys are attributes that matter in log files but clutter a terminal
var quietKeys = map[string]struct{}{
	"request_id": {},
	"max_depth":  {},
	"cache_hits": {},
	"format":     {},
	"bytes":      {},
}

// InteractiveHandler writes short, optionally colored lines for a person
// watching a terminal: "! WARN  Path traversal limit exceeded input=../..".
type InteractiveHandler struct {
	mu       *sync.Mutex
	writer   io.Writer
	level    slog.Leveler
	useColor bool
	attrs    []slog.Attr
	groups   []string
}

// InteractiveHandlerOptions configures an InteractiveHandler
type InteractiveHandlerOptions struct {
	Level        slog.Leveler
	Writer       io.Writer
	Capabilities terminal.Capabilities
}

// NewInteractiveHandler creates an InteractiveHandler. Colors are used when
// the capabilities allow them.
func NewInteractiveHandler(opts InteractiveHandlerOptions) (*InteractiveHandler, error) {
	if opts.Writer == nil {
		return nil, ErrInteractiveHandlerWriterRequired
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	return &InteractiveHandler{
		mu:       &sync.Mutex{},
		writer:   opts.Writer,
		level:    level,
		useColor: opts.Capabilities != nil && opts.Capabilities.SupportsColor(),
	}, nil
}

// Enabled implements slog.Handler
func (h *InteractiveHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler
func (h *InteractiveHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(h.formatLevel(r.Level))
	sb.WriteString(" ")
	sb.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	for _, attr := range h.attrs {
		h.appendAttr(&sb, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		attr.Key = prefix + attr.Key
		h.appendAttr(&sb, attr)
		return true
	})
	sb.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, sb.String())
	return err
}

// WithAttrs implements slog.Handler
func (h *InteractiveHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), prefixed(attrs, prefix)...)
	return &clone
}

// WithGroup implements slog.Handler
func (h *InteractiveHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	return &clone
}

func prefixed(attrs []slog.Attr, prefix string) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		out[i] = slog.Attr{Key: prefix + attr.Key, Value: attr.Value}
	}
	return out
}

func (h *InteractiveHandler) formatLevel(level slog.Level) string {
	var label string
	switch {
	case level >= slog.LevelError:
		label = "X ERROR"
	case level >= slog.LevelWarn:
		label = "! WARN "
	case level >= slog.LevelInfo:
		label = "+ INFO "
	default:
		label = "* DEBUG"
	}
	if !h.useColor {
		return label
	}
	return color.ForLevel(level)(label)
}

func (h *InteractiveHandler) appendAttr(sb *strings.Builder, attr slog.Attr) {
	if _, quiet := quietKeys[attr.Key]; quiet {
		return
	}
	sb.WriteString(" ")
	key := attr.Key + "="
	if h.useColor {
		key = color.Gray(key)
	}
	sb.WriteString(key)
	sb.WriteString(formatValue(attr.Value))
}

func formatValue(value slog.Value) string {
	value = value.Resolve()
	switch value.Kind() {
	case slog.KindTime:
		return value.Time().Format(time.RFC3339)
	case slog.KindGroup:
		parts := make([]string, 0, len(value.Group()))
		for _, attr := range value.Group() {
			parts = append(parts, attr.Key+"="+formatValue(attr.Value))
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return value.String()
	}
}
