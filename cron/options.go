package cron

import (
	"fmt"
	"strings"
	"time"

	doorstep "github.com/goliatone/go-doorstep"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelDebug
)

// LogLevelFor maps a logging level name onto the cron log level. Cron
// chatter is only useful while debugging.
func LogLevelFor(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	default:
		return LogLevelError
	}
}

// Parser represents a cron expression parser type
type Parser int

const (
	// StandardParser reads five fields plus descriptors like "@every 10s".
	StandardParser Parser = iota
	// SecondsParser expects a leading seconds field.
	SecondsParser
)

// ParseParser resolves a parser by name. An empty name is the standard parser.
func ParseParser(name string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard":
		return StandardParser, nil
	case "seconds":
		return SecondsParser, nil
	default:
		return StandardParser, fmt.Errorf("unknown cron parser %q", name)
	}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation sets the timezone location for the scheduler
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.location = loc
	}
}

// WithLogger sets a custom logger for the scheduler
func WithLogger(logger doorstep.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithLogLevel sets the logging level
func WithLogLevel(level LogLevel) Option {
	return func(s *Scheduler) {
		s.logLevel = level
	}
}

// WithErrorHandler sets a custom error handler for the scheduler
func WithErrorHandler(handler func(error)) Option {
	return func(s *Scheduler) {
		s.errorHandler = handler
	}
}

// WithParser sets the type of cron expression parser to use
func WithParser(p Parser) Option {
	return func(s *Scheduler) {
		s.parser = p
	}
}

// loggerAdapter routes robfig/cron logging into a doorstep.Logger. cron
// passes key/value pairs, not format arguments, so they become fields.
type loggerAdapter struct {
	logger doorstep.Logger
	level  LogLevel
}

func (l *loggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	if l.level >= LogLevelInfo {
		doorstep.WithLoggerFields(l.logger, kvFields(keysAndValues)).Debug("cron: %s", msg)
	}
}

func (l *loggerAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	if l.level >= LogLevelError {
		doorstep.WithLoggerFields(l.logger, kvFields(keysAndValues)).Error("cron: %s: %v", msg, err)
	}
}

func kvFields(keysAndValues []interface{}) map[string]any {
	if len(keysAndValues) == 0 {
		return nil
	}
	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

// errorHandlerAdapter feeds panics recovered by cron into the error handler.
type errorHandlerAdapter struct {
	handler func(error)
}

func (e *errorHandlerAdapter) Info(string, ...interface{}) {}

func (e *errorHandlerAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	if e.handler == nil {
		return
	}
	if err == nil {
		err = fmt.Errorf("%s", msg)
	}
	e.handler(err)
}
