package doorstep

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the logging contract shared by every doorstep package.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Fatal(msg string, args ...any)
	WithContext(ctx context.Context) Logger
}

// FieldsLogger is implemented by loggers that carry structured fields.
type FieldsLogger interface {
	WithFields(map[string]any) Logger
}

// FmtLogger writes one plain line per entry. It is the fallback used by
// packages built without a logger and by tests.
type FmtLogger struct {
	mu     *sync.Mutex
	out    io.Writer
	ctx    context.Context
	fields map[string]any
}

// NewFmtLogger writes to out, stdout when nil.
func NewFmtLogger(out io.Writer) *FmtLogger {
	if out == nil {
		out = os.Stdout
	}
	return &FmtLogger{mu: &sync.Mutex{}, out: out, ctx: context.Background()}
}

func (l *FmtLogger) Trace(msg string, args ...any) { l.write("TRACE", msg, args) }
func (l *FmtLogger) Debug(msg string, args ...any) { l.write("DEBUG", msg, args) }
func (l *FmtLogger) Info(msg string, args ...any)  { l.write("INFO", msg, args) }
func (l *FmtLogger) Warn(msg string, args ...any)  { l.write("WARN", msg, args) }
func (l *FmtLogger) Error(msg string, args ...any) { l.write("ERROR", msg, args) }

// Fatal logs at fatal level. It does not exit.
func (l *FmtLogger) Fatal(msg string, args ...any) { l.write("FATAL", msg, args) }

func (l *FmtLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	cp := l.copy()
	cp.ctx = ctx
	return cp
}

func (l *FmtLogger) WithFields(fields map[string]any) Logger {
	cp := l.copy()
	if len(fields) == 0 {
		return cp
	}
	merged := make(map[string]any, len(cp.fields)+len(fields))
	for k, v := range cp.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	cp.fields = merged
	return cp
}

func (l *FmtLogger) copy() *FmtLogger {
	if l == nil {
		return NewFmtLogger(nil)
	}
	cp := *l
	return &cp
}

func (l *FmtLogger) write(level, msg string, args []any) {
	if l == nil {
		l = NewFmtLogger(nil)
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	var b strings.Builder
	b.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, " %-5s %s", level, strings.TrimSpace(msg))

	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, l.fields[k])
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.out, b.String())
}

// GlogLogger adapts a go-logger glog.Logger.
type GlogLogger struct {
	logger glog.Logger
}

func NewGlogLogger(logger glog.Logger) Logger {
	if logger == nil {
		return NewFmtLogger(nil)
	}
	return &GlogLogger{logger: logger}
}

func (l *GlogLogger) Trace(msg string, args ...any) { l.logger.Trace(msg, args...) }
func (l *GlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *GlogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *GlogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *GlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l *GlogLogger) Fatal(msg string, args ...any) { l.logger.Fatal(msg, args...) }

func (l *GlogLogger) WithContext(ctx context.Context) Logger {
	return &GlogLogger{logger: l.logger.WithContext(ctx)}
}

func (l *GlogLogger) WithFields(fields map[string]any) Logger {
	if fl, ok := l.logger.(glog.FieldsLogger); ok {
		return &GlogLogger{logger: fl.WithFields(fields)}
	}
	return l
}

// NormalizeLogger never returns nil.
func NormalizeLogger(logger Logger) Logger {
	if logger == nil {
		return NewFmtLogger(nil)
	}
	return logger
}

// WithLoggerFields attaches fields when logger supports them and returns it
// unchanged otherwise.
func WithLoggerFields(logger Logger, fields map[string]any) Logger {
	logger = NormalizeLogger(logger)
	if fl, ok := logger.(FieldsLogger); ok && len(fields) > 0 {
		return fl.WithFields(fields)
	}
	return logger
}
