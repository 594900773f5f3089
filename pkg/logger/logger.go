// Package logger provides the application's slog-based structured logger.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/fx"
)

// Module provides the shared *slog.Logger and the HTTP access logger.
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
	fx.Provide(NewHTTPLogger),
)

// NewLogger creates the application logger.
// Level is controlled by LOG_LEVEL (debug|info|warn|error); GO_ENV=development
// switches to a human-readable text handler.
func NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if os.Getenv("GO_ENV") == "development" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// Scope returns a scope attribute used to tag log lines with their subsystem.
func Scope(scope string) slog.Attr {
	return slog.String("scope", scope)
}

// Error returns an error attribute.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// HTTPLogger appends one line per request to a rotating-ish access log file.
// It is deliberately simple: a single file under HTTP_LOG_DIR (default ./logs),
// opened lazily, shared by all requests. When the directory cannot be created
// the logger degrades to a no-op rather than failing startup.
type HTTPLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewHTTPLogger opens the access log file.
func NewHTTPLogger(lc fx.Lifecycle) *HTTPLogger {
	dir := os.Getenv("HTTP_LOG_DIR")
	if dir == "" {
		dir = "logs"
	}

	l := &HTTPLogger{}

	if err := os.MkdirAll(dir, 0o755); err == nil {
		path := filepath.Join(dir, "http.log")
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			l.file = f
		}
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return l.Close()
		},
	})

	return l
}

// LogRequest writes a single access-log line.
func (l *HTTPLogger) LogRequest(ip, method, uri string, status int, latency time.Duration, userAgent, requestID string) {
	if l == nil || l.file == nil {
		return
	}

	line := fmt.Sprintf("%s %s %s %s %d %s %q %s\n",
		time.Now().UTC().Format(time.RFC3339), ip, method, uri, status, latency, userAgent, requestID)

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.file.WriteString(line)
}

// Close closes the underlying log file.
func (l *HTTPLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
