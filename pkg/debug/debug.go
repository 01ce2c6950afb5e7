// Package debug provides category-based debug logging for routeway.
//
// Two orthogonal controls:
//   - Categories (WHAT to debug): ROUTEWAY_DEBUG env or config
//   - Levels (HOW MUCH detail): ROUTEWAY_LOG_LEVEL env or config
//
// Usage:
//
//	debug.Log("transport", "request", "method", "POST", "url", url)
//	if debug.Enabled("streaming") { /* expensive formatting */ }
//
// Categories: transport, streaming, retry, auth, config, storage, mcp, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// LevelTrace is below slog.LevelDebug for maximum verbosity.
// At TRACE, full request and response bodies are written raw.
const LevelTrace = slog.LevelDebug - 4

// Environment variables read by Init.
const (
	EnvDebug     = "ROUTEWAY_DEBUG"
	EnvLogLevel  = "ROUTEWAY_LOG_LEVEL"
	EnvLogFormat = "ROUTEWAY_LOG_FORMAT"
)

// categories holds the set of enabled debug categories. It is swapped
// atomically so Init may run while streams are logging.
var categories atomic.Pointer[map[string]bool]

// rawOut receives Raw output.
var rawOut io.Writer = os.Stderr

func init() {
	setCategories(os.Getenv(EnvDebug))
}

// Init configures the debug system from config values. Environment
// overrides config. Logs go to w (stderr when nil) as text, or as JSON when
// format is "json".
func Init(w io.Writer, configCategories, configLevel, format string) {
	if w == nil {
		w = os.Stderr
	}
	rawOut = w

	cats := os.Getenv(EnvDebug)
	if cats == "" {
		cats = configCategories
	}
	setCategories(cats)

	level := os.Getenv(EnvLogLevel)
	if level == "" {
		level = configLevel
	}
	if f := os.Getenv(EnvLogFormat); f != "" {
		format = f
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(level), ReplaceAttr: renameTrace}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// renameTrace prints LevelTrace as "TRACE" instead of "DEBUG-4".
func renameTrace(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	m := *categories.Load()
	return m["all"] || m[category]
}

// Log emits a debug message for the given category.
// If the category is not enabled, this is a no-op.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
// Only visible when ROUTEWAY_LOG_LEVEL=TRACE.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE level is active for the given category.
func TraceIsEnabled(category string) bool {
	if !Enabled(category) {
		return false
	}
	return slog.Default().Enabled(context.Background(), LevelTrace)
}

// Raw writes plain text without slog formatting, for copy-paste-ready
// HTTP bodies. Only emitted when category is enabled AND level is TRACE.
func Raw(category string, text string) {
	if !TraceIsEnabled(category) {
		return
	}
	fmt.Fprintln(rawOut, text)
}

// ParseLevel converts a level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the list of enabled categories.
func Categories() []string {
	var result []string
	for k := range *categories.Load() {
		result = append(result, k)
	}
	return result
}

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func setCategories(s string) {
	m := parseCategories(s)
	categories.Store(&m)
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	if s == "" {
		return m
	}
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
