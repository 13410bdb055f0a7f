// Package logging - Module-scoped structured loggers built on log/slog.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config controls the process-wide log handler.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`
	// Format is either text or json.
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// DefaultConfig returns info-level text logging.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}

var (
	mu   sync.RWMutex
	root = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
)

// Setup replaces the process-wide handler.
//
// Arguments:
//   - cfg: The level and format to use.
//   - w: The destination; os.Stderr when nil.
//
// Returns:
//   - error: An error if the level or format is not recognized.
func Setup(cfg Config, w io.Writer) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("unsupported log format: %q", cfg.Format)
	}

	mu.Lock()
	root = slog.New(handler)
	mu.Unlock()
	return nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level: %q", s)
	}
}

// Module returns a logger tagged with module=name.
//
// The logger captures the handler installed at call time; components obtain it
// once at construction.
func Module(name string) *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With(slog.String("module", name))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
