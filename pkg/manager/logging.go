package manager

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"yap-switch-manager/pkg/registry"
)

const defaultLogFilename = "yap-switch-manager.log"

// DefaultLogPath returns <config dir>/yap-switch-manager.log.
func DefaultLogPath() (string, error) {
	dir, err := registry.DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultLogFilename), nil
}

// OpenLog opens (appending) the log file at path and returns a logger writing
// to it. The TUI owns the terminal, so nothing is logged to stderr while it runs.
// Close the returned closer on exit.
func OpenLog(path, level string) (*log.Logger, io.Closer, error) {
	lvl, err := parseLogLevel(level)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return NewLogger(f, lvl), f, nil
}

// NewLogger returns a timestamped logger at lvl.
func NewLogger(w io.Writer, lvl log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           lvl,
	})
}

func parseLogLevel(s string) (log.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return log.InfoLevel, nil
	}
	switch s {
	case "debug", "info", "warn", "error":
		return log.ParseLevel(s)
	}
	return log.InfoLevel, fmt.Errorf("invalid level %q (expected: debug|info|warn|error)", s)
}
