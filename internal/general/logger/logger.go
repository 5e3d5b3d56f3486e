package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// ----- Public wire types -----

// ErrorObject is emitted only for error logs.
type ErrorObject struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack,omitempty"`
}

// LogEntry is the single-line JSON format written to the sink.
type LogEntry struct {
	Timestamp string       `json:"timestamp"`            // ISO 8601, UTC, milliseconds
	Level     string       `json:"level"`                // DEBUG | INFO | WARN | ERROR
	Service   string       `json:"service"`              // e.g. realtime-service
	Action    string       `json:"action"`               // e.g. chat_message_sent
	Message   string       `json:"message"`              // human-readable description
	Hostname  string       `json:"hostname"`             // service hostname
	RequestID string       `json:"request_id,omitempty"` // correlation ID for HTTP requests
	ConnID    string       `json:"conn_id,omitempty"`    // websocket connection (when applicable)
	UserID    string       `json:"user_id,omitempty"`    // acting user (when applicable)
	Details   any          `json:"details,omitempty"`    // optional: extra fields (map or struct)
	Error     *ErrorObject `json:"error,omitempty"`      // optional: error details
}

// ----- Logger -----

type Logger struct {
	service  string
	hostname string
	mu       sync.Mutex
	out      io.Writer
	stacks   bool
}

// Option tweaks a Logger at construction time.
type Option func(*Logger)

// WithWriter redirects output, mostly for tests.
func WithWriter(w io.Writer) Option {
	return func(l *Logger) {
		if w != nil {
			l.out = w
		}
	}
}

// WithoutStacks drops stack traces from error lines.
func WithoutStacks() Option {
	return func(l *Logger) { l.stacks = false }
}

// New creates a structured logger for the given service.
func New(service string, opts ...Option) *Logger {
	hn, err := os.Hostname()
	if err != nil || strings.TrimSpace(hn) == "" {
		hn = "unknown-hostname"
	}

	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}

	l := &Logger{service: service, hostname: hn, out: os.Stdout, stacks: true}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Discard returns a logger that writes nowhere.
func Discard() *Logger {
	return New("discard", WithWriter(io.Discard), WithoutStacks())
}

// emit marshals and writes a single JSON line.
func (l *Logger) emit(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := json.Marshal(e)
	if err == nil {
		l.writeLine(b)
		return
	}

	// retry once without Details (common source of marshal errors)
	e.Details = nil
	if b, err := json.Marshal(e); err == nil {
		l.writeLine(b)
		return
	}

	fallback := map[string]any{
		"timestamp": nowISO(),
		"level":     "ERROR",
		"service":   l.service,
		"action":    "logger_marshal_failed",
		"message":   "failed to encode log entry",
		"hostname":  l.hostname,
		"error":     ErrorObject{Msg: strings.TrimSpace(err.Error())},
	}

	if fb, err := json.Marshal(fallback); err == nil {
		l.writeLine(fb)
	} else {
		fmt.Fprintf(os.Stderr, "log marshal failed: %v\n", err)
	}
}

func (l *Logger) writeLine(b []byte) {
	b = append(b, '\n')
	_, _ = l.out.Write(b)
}

func (l *Logger) entry(ctx context.Context, level, action, msg string, details any) LogEntry {
	return LogEntry{
		Timestamp: nowISO(),
		Level:     level,
		Service:   l.service,
		Action:    safeAction(action),
		Message:   strings.TrimSpace(msg),
		Hostname:  l.hostname,
		RequestID: fromCtx(ctx, ctxKeyRequestID),
		ConnID:    fromCtx(ctx, ctxKeyConnID),
		UserID:    fromCtx(ctx, ctxKeyUserID),
		Details:   details,
	}
}

// Debug writes a DEBUG line with optional details.
func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.emit(l.entry(ctx, "DEBUG", action, msg, details))
}

// Info writes an INFO line with optional details.
func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.emit(l.entry(ctx, "INFO", action, msg, details))
}

// Warn writes a WARN line. Used for dropped frames and degraded modes.
func (l *Logger) Warn(ctx context.Context, action, msg string, details any) {
	l.emit(l.entry(ctx, "WARN", action, msg, details))
}

// Error writes an ERROR line and attaches an error stack trace.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}

	e := l.entry(ctx, "ERROR", action, msg, details)
	e.Error = &ErrorObject{Msg: strings.TrimSpace(err.Error())}
	if l.stacks {
		e.Error.Stack = string(debug.Stack())
	}
	l.emit(e)
}

// ------------ Context helpers -------------

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "fleet_request_id"
	ctxKeyConnID    ctxKey = "fleet_conn_id"
	ctxKeyUserID    ctxKey = "fleet_user_id"
)

// WithRequestID returns a new context carrying request_id.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	return withValue(ctx, ctxKeyRequestID, reqID)
}

// WithConnID returns a new context carrying conn_id.
func WithConnID(ctx context.Context, connID string) context.Context {
	return withValue(ctx, ctxKeyConnID, connID)
}

// WithUserID returns a new context carrying user_id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withValue(ctx, ctxKeyUserID, userID)
}

// RequestID extracts request_id from ctx (if any).
func RequestID(ctx context.Context) string {
	return fromCtx(ctx, ctxKeyRequestID)
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if strings.TrimSpace(v) == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func fromCtx(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

// ----- Small utilities -----

func nowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func safeAction(a string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return "unspecified"
	}
	return a
}
