package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// Logger is the logging surface used across the engine. Sessions carry one
// through context; nothing logs through package globals except the fallback
// default.
type Logger interface {
	Debug(msg string, tags ...any)
	Info(msg string, tags ...any)
	Warn(msg string, tags ...any)
	Error(msg string, tags ...any)
	Fatal(msg string, tags ...any)

	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
	Fatalf(format string, v ...any)

	With(attrs ...any) Logger
	WithGroup(name string) Logger

	// Write emits a free-form line, bypassing structured formatting.
	// Job-state notices use this so they look like shell output.
	Write(string)
}

var _ Logger = (*appLogger)(nil)

type appLogger struct {
	logger  *slog.Logger
	guarded *guardedHandler
	quiet   bool
}

type Config struct {
	debug  bool
	format string
	writer io.Writer
	quiet  bool
}

type Option func(*Config)

// WithDebug sets the level of the logger to debug.
func WithDebug() Option {
	return func(o *Config) {
		o.debug = true
	}
}

// WithFormat sets the format of the logger (text or json).
func WithFormat(format string) Option {
	return func(o *Config) {
		o.format = format
	}
}

// WithWriter adds a secondary sink, typically a session trace file.
func WithWriter(w io.Writer) Option {
	return func(o *Config) {
		o.writer = w
	}
}

// WithQuiet suppresses output to stderr.
func WithQuiet() Option {
	return func(o *Config) {
		o.quiet = true
	}
}

var defaultLogger = NewLogger(WithFormat("text"))

func NewLogger(opts ...Option) Logger {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}

	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.debug,
	}

	var (
		handlers []slog.Handler
		guarded  *guardedHandler
	)
	if !cfg.quiet {
		handlers = append(handlers, newHandler(os.Stderr, cfg.format, handlerOpts))
	}
	if cfg.writer != nil {
		guarded = newGuardedHandler(newHandler(cfg.writer, cfg.format, handlerOpts), cfg.writer)
		handlers = append(handlers, guarded)
	}

	return &appLogger{
		logger:  slog.New(slogmulti.Fanout(handlers...)),
		guarded: guarded,
		quiet:   cfg.quiet,
	}
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

var _ slog.Handler = (*guardedHandler)(nil)

// guardedHandler serializes writes to a shared sink so structured records and
// free-form Write lines never interleave mid-line.
type guardedHandler struct {
	handler slog.Handler
	writer  io.Writer
	mu      sync.Mutex
}

func newGuardedHandler(handler slog.Handler, writer io.Writer) *guardedHandler {
	return &guardedHandler{handler: handler, writer: writer}
}

// Enabled implements slog.Handler.
func (g *guardedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return g.handler.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (g *guardedHandler) Handle(ctx context.Context, record slog.Record) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handler.Handle(ctx, record)
}

// WithAttrs implements slog.Handler.
func (g *guardedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	g.mu.Lock()
	defer g.mu.Unlock()
	return &guardedHandler{handler: g.handler.WithAttrs(attrs), writer: g.writer}
}

// WithGroup implements slog.Handler.
func (g *guardedHandler) WithGroup(name string) slog.Handler {
	g.mu.Lock()
	defer g.mu.Unlock()
	return &guardedHandler{handler: g.handler.WithGroup(name), writer: g.writer}
}

// Debug implements logger.Logger.
func (a *appLogger) Debug(msg string, tags ...any) { a.logger.Debug(msg, tags...) }

// Info implements logger.Logger.
func (a *appLogger) Info(msg string, tags ...any) { a.logger.Info(msg, tags...) }

// Warn implements logger.Logger.
func (a *appLogger) Warn(msg string, tags ...any) { a.logger.Warn(msg, tags...) }

// Error implements logger.Logger.
func (a *appLogger) Error(msg string, tags ...any) { a.logger.Error(msg, tags...) }

// Fatal implements logger.Logger.
func (a *appLogger) Fatal(msg string, tags ...any) {
	a.logger.Error(msg, tags...)
	os.Exit(1)
}

// Debugf implements logger.Logger.
func (a *appLogger) Debugf(format string, v ...any) { a.logger.Debug(fmt.Sprintf(format, v...)) }

// Infof implements logger.Logger.
func (a *appLogger) Infof(format string, v ...any) { a.logger.Info(fmt.Sprintf(format, v...)) }

// Warnf implements logger.Logger.
func (a *appLogger) Warnf(format string, v ...any) { a.logger.Warn(fmt.Sprintf(format, v...)) }

// Errorf implements logger.Logger.
func (a *appLogger) Errorf(format string, v ...any) { a.logger.Error(fmt.Sprintf(format, v...)) }

// Fatalf implements logger.Logger.
func (a *appLogger) Fatalf(format string, v ...any) {
	a.logger.Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}

// With implements logger.Logger.
func (a *appLogger) With(attrs ...any) Logger {
	return &appLogger{logger: a.logger.With(attrs...), guarded: a.guarded, quiet: a.quiet}
}

// WithGroup implements logger.Logger.
func (a *appLogger) WithGroup(name string) Logger {
	return &appLogger{logger: a.logger.WithGroup(name), guarded: a.guarded, quiet: a.quiet}
}

func (a *appLogger) Write(msg string) {
	if !a.quiet {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", msg)
	}
	if a.guarded != nil {
		a.guarded.mu.Lock()
		defer a.guarded.mu.Unlock()
		_, _ = a.guarded.writer.Write([]byte(msg + "\n"))
	}
}
