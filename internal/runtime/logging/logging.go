// Package logging defines the logger every flowguard component writes to and
// adapters for slog, Watermill and entry-style loggers such as logrus.
package logging

import (
	"log/slog"
	"maps"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields represents structured logging key/value pairs.
type LogFields map[string]any

// ServiceLogger is the logging contract shared by the service and every
// interceptor. It mirrors Watermill's LoggerAdapter so one logger serves the
// router and the interceptors alike.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// EntryLogger is the self-referential entry constraint, satisfied by loggers
// whose WithField/WithError return the EntryLogger interface itself.
type EntryLogger interface {
	EntryLoggerAdapter[EntryLogger]
}

// EntryLoggerAdapter is what NewEntryServiceLogger needs from an entry logger.
// *logrus.Entry satisfies EntryLoggerAdapter[*logrus.Entry].
type EntryLoggerAdapter[T any] interface {
	Error(args ...any)
	Info(args ...any)
	Debug(args ...any)
	Trace(args ...any)
	WithError(err error) T
	WithField(key string, value any) T
}

var slogLevels = map[slog.Level]slog.Level{
	slog.LevelDebug: slog.LevelDebug,
	slog.LevelInfo:  slog.LevelInfo,
	slog.LevelWarn:  slog.LevelWarn,
	slog.LevelError: slog.LevelError,
}

// NewSlogServiceLogger wraps a slog.Logger.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("flowguard: slog logger cannot be nil")
	}
	return NewWatermillServiceLogger(watermill.NewSlogLoggerWithLevelMapping(log, slogLevels))
}

// NewWatermillServiceLogger wraps a Watermill LoggerAdapter.
func NewWatermillServiceLogger(logger watermill.LoggerAdapter) ServiceLogger {
	if logger == nil {
		panic("flowguard: watermill logger cannot be nil")
	}
	return watermillLogger{inner: logger}
}

// NewEntryServiceLogger wraps an entry-style logger.
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	if any(entry) == nil {
		panic("flowguard: entry logger cannot be nil")
	}
	return entryLogger[T]{entry: entry}
}

// NewNopServiceLogger returns a logger that discards everything.
func NewNopServiceLogger() ServiceLogger {
	return watermillLogger{inner: watermill.NopLogger{}}
}

// OrNop returns log, or a discarding logger when log is nil.
func OrNop(log ServiceLogger) ServiceLogger {
	if log == nil {
		return NewNopServiceLogger()
	}
	return log
}

// ForComponent returns log scoped to one interceptor: every line carries
// "interceptor" = component plus the given fields. A nil log discards.
func ForComponent(log ServiceLogger, component string, fields LogFields) ServiceLogger {
	scoped := make(LogFields, len(fields)+1)
	maps.Copy(scoped, fields)
	scoped["interceptor"] = component
	return OrNop(log).With(scoped)
}

type watermillLogger struct {
	inner watermill.LoggerAdapter
}

func (w watermillLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return w
	}
	return watermillLogger{inner: w.inner.With(watermill.LogFields(fields))}
}

func (w watermillLogger) Debug(msg string, fields LogFields) {
	w.inner.Debug(msg, toWatermill(fields))
}

func (w watermillLogger) Info(msg string, fields LogFields) {
	w.inner.Info(msg, toWatermill(fields))
}

func (w watermillLogger) Error(msg string, err error, fields LogFields) {
	w.inner.Error(msg, err, toWatermill(fields))
}

func (w watermillLogger) Trace(msg string, fields LogFields) {
	w.inner.Trace(msg, toWatermill(fields))
}

type entryLogger[T EntryLoggerAdapter[T]] struct {
	entry T
}

func (e entryLogger[T]) with(fields LogFields) T {
	enriched := e.entry
	for key, value := range fields {
		enriched = enriched.WithField(key, value)
	}
	return enriched
}

func (e entryLogger[T]) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return e
	}
	return entryLogger[T]{entry: e.with(fields)}
}

func (e entryLogger[T]) Debug(msg string, fields LogFields) { e.with(fields).Debug(msg) }
func (e entryLogger[T]) Info(msg string, fields LogFields)  { e.with(fields).Info(msg) }
func (e entryLogger[T]) Trace(msg string, fields LogFields) { e.with(fields).Trace(msg) }

func (e entryLogger[T]) Error(msg string, err error, fields LogFields) {
	entry := e.with(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
}

// NewWatermillAdapter exposes a ServiceLogger to Watermill, so the router and
// the transports log through the same logger as the interceptors.
func NewWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("flowguard: ServiceLogger cannot be nil")
	}
	if w, ok := log.(watermillLogger); ok {
		return w.inner
	}
	return routerLogger{base: log}
}

type routerLogger struct {
	base ServiceLogger
}

func (r routerLogger) Error(msg string, err error, fields watermill.LogFields) {
	r.base.Error(msg, err, LogFields(fields))
}

func (r routerLogger) Info(msg string, fields watermill.LogFields) {
	r.base.Info(msg, LogFields(fields))
}

func (r routerLogger) Debug(msg string, fields watermill.LogFields) {
	r.base.Debug(msg, LogFields(fields))
}

func (r routerLogger) Trace(msg string, fields watermill.LogFields) {
	r.base.Trace(msg, LogFields(fields))
}

func (r routerLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return routerLogger{base: r.base.With(LogFields(fields))}
}

func toWatermill(fields LogFields) watermill.LogFields {
	if len(fields) == 0 {
		return nil
	}
	return watermill.LogFields(fields)
}
