package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ifiokjr/verily/internal/shared"
)

// Options defines parameters for logger creation.
type Options struct {
	Env          string
	ConsoleLevel string // default: info
	FileLevel    string // default: debug
	File         string
	App          string
	// Console receives human readable output; os.Stdout when nil.
	Console io.Writer
}

// SensitiveKeys are attribute keys whose values are always masked.
var SensitiveKeys = []string{
	"token", "access_token", "refresh_token", "secret", "jwt_secret",
	"password", "password_hash", "encryption_key", "authorization", "dsn", "api_key",
}

const redacted = "[REDACTED]"

var closers sync.Map

// New creates a configured slog.Logger.
func New(o Options) *slog.Logger {
	consoleLvl := levelFromString(o.ConsoleLevel, slog.LevelInfo)
	fileLvl := levelFromString(o.FileLevel, slog.LevelDebug)

	out := o.Console
	if out == nil {
		out = os.Stdout
	}
	timeFormat := time.RFC3339
	if o.Env == "dev" {
		timeFormat = time.Kitchen
	}
	console := NewRedactingHandler(
		tint.NewHandler(out, &tint.Options{Level: consoleLvl, TimeFormat: timeFormat, NoColor: o.Console != nil}),
		SensitiveKeys,
	)

	handlers := []slog.Handler{console}
	var closer func() error

	if o.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    5,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		closer = fileWriter.Close
		handlers = append(handlers, NewRedactingHandler(
			slog.NewJSONHandler(fileWriter, &slog.HandlerOptions{Level: fileLvl}),
			SensitiveKeys,
		))
	}

	var h slog.Handler = console
	if len(handlers) > 1 {
		h = NewMultiHandler(handlers...)
	}

	l := slog.New(h).With(
		slog.String("app", o.App),
		slog.String("env", o.Env),
	)
	if closer != nil {
		closers.Store(l, closer)
	}
	return l
}

// Close releases the log file opened by New, if any. Call it on shutdown.
func Close(logger *slog.Logger) error {
	if c, ok := closers.LoadAndDelete(logger); ok {
		return c.(func() error)()
	}
	return nil
}

func levelFromString(s string, def slog.Level) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return def
	}
}

// ErrorAttr renders err as an "error" group carrying the wire discriminant,
// the full message and whether a retry may help. Timeouts are flagged and
// a wrapped error also reports its innermost cause. Logs are a trusted sink,
// so nothing is hidden here; redaction happens only on client responses.
func ErrorAttr(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	appErr := shared.Policy{Trusted: true}.Classify(err)
	attrs := []any{
		slog.String("type", appErr.Kind.String()),
		slog.String("message", err.Error()),
		slog.Bool("retryable", appErr.IsRetryable()),
	}
	if appErr.Kind == shared.KindDb && appErr.Db != nil {
		attrs = append(attrs, slog.String("db", appErr.Db.Kind.String()))
	}
	if shared.IsTimeout(err) {
		attrs = append(attrs, slog.Bool("timeout", true))
	}
	if cause := shared.Cause(err); cause.Error() != err.Error() {
		attrs = append(attrs, slog.String("cause", cause.Error()))
	}
	return slog.Group("error", attrs...)
}

// RedactingHandler masks sensitive attributes before they reach inner.
// Keys listed at construction are masked wholesale; URLs carrying a
// password keep everything but the password; bearer tokens are masked.
type RedactingHandler struct {
	inner slog.Handler
	keys  map[string]struct{}
}

// NewRedactingHandler wraps inner.
func NewRedactingHandler(inner slog.Handler, sensitive []string) *RedactingHandler {
	m := make(map[string]struct{}, len(sensitive))
	for _, k := range sensitive {
		m[strings.ToLower(k)] = struct{}{}
	}
	return &RedactingHandler{inner: inner, keys: m}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.inner.Enabled(ctx, l)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		nr.AddAttrs(h.sanitize(a))
		return true
	})
	return h.inner.Handle(ctx, nr)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.sanitize(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(clean), keys: h.keys}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), keys: h.keys}
}

func (h *RedactingHandler) sanitize(a slog.Attr) slog.Attr {
	if _, ok := h.keys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		group := v.Group()
		clean := make([]any, len(group))
		for i, ga := range group {
			clean[i] = h.sanitize(ga)
		}
		return slog.Group(a.Key, clean...)
	case slog.KindString:
		if s, ok := redactString(v.String()); ok {
			return slog.String(a.Key, s)
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// redactString masks bearer tokens and URL passwords inside s.
func redactString(s string) (string, bool) {
	if strings.HasPrefix(strings.ToLower(s), "bearer ") {
		return redacted, true
	}
	if strings.Contains(s, "://") && strings.Contains(s, "@") {
		if u, err := url.Parse(s); err == nil && u.User != nil {
			if _, hasPassword := u.User.Password(); hasPassword {
				return u.Redacted(), true
			}
		}
	}
	return s, false
}

// MultiHandler fans records out to several handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler creates a handler that writes to every handler given.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Enabled implements slog.Handler.
func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler. Every enabled handler sees the record
// even if an earlier one fails.
func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			errs = append(errs, handler.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

// WithAttrs implements slog.Handler.
func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: handlers}
}

// WithGroup implements slog.Handler.
func (h *MultiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &MultiHandler{handlers: handlers}
}
