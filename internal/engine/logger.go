package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kestrelworks/ticketsmith/internal/sanitize"
)

// DebugLogger writes timestamped engine diagnostics to a file. Everything
// logged passes through the sanitizer first; agent output and command
// results routinely carry tokens.
type DebugLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewDebugLogger creates a logger writing to the given path, creating
// parent directories as needed. An empty path returns a no-op logger.
func NewDebugLogger(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return &DebugLogger{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &DebugLogger{file: f}
	l.Log("=== Engine debug log started at %s ===", time.Now().Format(time.RFC3339))
	return l, nil
}

// NewDebugLoggerForWorkspace creates a logger under the workspace's
// .ticketsmith/logs directory, degrading to a no-op logger on error.
func NewDebugLoggerForWorkspace(workspaceRoot string) *DebugLogger {
	l, err := NewDebugLogger(filepath.Join(workspaceRoot, ".ticketsmith", "logs", "engine-debug.log"))
	if err != nil {
		return &DebugLogger{}
	}
	return l
}

// NopLogger returns a no-op logger.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// Log writes one sanitized, timestamped line. No-op on a nil logger or a
// logger without a file.
func (l *DebugLogger) Log(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := sanitize.Sanitize(fmt.Sprintf(format, args...))
	fmt.Fprintf(l.file, "[%s] %s\n", time.Now().Format("15:04:05.000"), msg)
	l.file.Sync()
}

// Close closes the log file. Safe on nil and no-op loggers.
func (l *DebugLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
