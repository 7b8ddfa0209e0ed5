// Package logging configures the structured logger shared by every
// orchestrator subsystem. Unlike the package-global logger, each
// subsystem here receives a *slog.Logger explicitly; this package only
// builds one.
package logging

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const modulePrefix = "github.com/wittyreference/feature-factory"

// ParseLevel converts a string log level to slog.Level. Unknown values fall
// back to warn so a typo in config never silences error-level output.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// Config controls logger construction.
type Config struct {
	// Level is the minimum level emitted.
	Level slog.Level
	// Output is the destination; defaults to os.Stderr when nil.
	Output *os.File
	// JSON selects structured JSON output instead of text. Useful when the
	// CLI is driven by automation that parses log lines.
	JSON bool
}

// New builds a *slog.Logger per cfg. Third-party library logs (anything
// whose call site isn't under modulePrefix) are suppressed below debug, so
// a default run isn't drowned out by chatty dependencies like mcp-go.
func New(cfg Config) *slog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}
	var base slog.Handler
	if cfg.JSON {
		base = slog.NewJSONHandler(output, opts)
	} else {
		base = slog.NewTextHandler(output, opts)
	}
	return slog.New(&filteringHandler{handler: base, minLevel: cfg.Level})
}

// filteringHandler wraps a slog handler and hides logs originating outside
// this module unless the configured level is debug or lower.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || h.fromModule(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) fromModule(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), modulePrefix) || strings.Contains(file, "feature-factory/")
}

// Nop returns a logger that discards everything, for tests and callers that
// don't want to configure logging.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
