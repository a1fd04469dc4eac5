package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger and binds a component name to every record
type Logger struct {
	*slog.Logger
	component string
}

// Config holds logger configuration
type Config struct {
	Level     slog.Level
	Component string
	Output    io.Writer
	Handler   slog.Handler
}

// DefaultConfig returns sensible defaults for logging
func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Component: ComponentApp,
		Output:    os.Stdout,
	}
}

// ParseLevel maps LOG_LEVEL values to slog levels. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a new logger with the given configuration
func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		out := config.Output
		if out == nil {
			out = os.Stdout
		}
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{
			Level: config.Level,
		})
	}

	component := config.Component
	if component == "" {
		component = ComponentApp
	}

	return withHandler(handler, component)
}

// Wrap adopts an existing slog logger under the given component.
func Wrap(l *slog.Logger, component string) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return withHandler(l.Handler(), component)
}

func withHandler(h slog.Handler, component string) *Logger {
	if ch, ok := h.(componentHandler); ok {
		h = ch.Handler
	}
	return &Logger{
		Logger:    slog.New(componentHandler{Handler: h, component: component}),
		component: component,
	}
}

// componentHandler adds the component attribute when a record is emitted,
// so renaming a logger replaces the component instead of repeating it. A
// record that sets the component itself keeps its own value.
type componentHandler struct {
	slog.Handler
	component string
}

func (h componentHandler) Handle(ctx context.Context, r slog.Record) error {
	own := false
	r.Attrs(func(a slog.Attr) bool {
		own = a.Key == FieldComponent
		return !own
	})
	if !own {
		r = r.Clone()
		r.AddAttrs(slog.String(FieldComponent, h.component))
	}
	return h.Handler.Handle(ctx, r)
}

func (h componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return componentHandler{Handler: h.Handler.WithAttrs(attrs), component: h.component}
}

func (h componentHandler) WithGroup(name string) slog.Handler {
	return componentHandler{Handler: h.Handler.WithGroup(name), component: h.component}
}

// With returns a new logger with the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		component: l.component,
	}
}

// WithComponent returns a logger reporting under another component name.
// The underlying handler and its attributes are shared.
func (l *Logger) WithComponent(component string) *Logger {
	return withHandler(l.Logger.Handler(), component)
}

// LogError logs err at error level together with its category.
func (l *Logger) LogError(ctx context.Context, msg string, err error, errorType string, args ...any) {
	fields := append([]any{FieldError, err, "error_type", errorType}, args...)
	l.Logger.ErrorContext(ctx, msg, fields...)
}

// SetDefault sets the default logger for the application
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}

// Component returns the logger's component name
func (l *Logger) Component() string {
	return l.component
}
