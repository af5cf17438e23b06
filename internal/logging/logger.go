package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileName is the client log inside the .role2/logs directory.
const FileName = "role2.log"

// Logger appends timestamped lines to .role2/logs/role2.log so users can
// inspect request failures after the terminal session has ended.
type Logger struct {
	mu  sync.Mutex
	out io.WriteCloser
}

// New creates (or reuses) the log file inside logsDir.
func New(logsDir string) (*Logger, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logsDir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{out: f}, nil
}

// NewWriter wraps an arbitrary writer, e.g. stderr for serve-stub.
func NewWriter(w io.Writer) *Logger {
	return &Logger{out: nopCloser{w}}
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.out == nil {
		return nil
	}
	return l.out.Close()
}

// Printf writes a single timestamped line.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.out == nil {
		return
	}
	line := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	timestamp := time.Now().Format(time.RFC3339)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "[%s] %s\n", timestamp, line)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
