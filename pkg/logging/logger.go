// Package logging структурированное логирование зонда поверх logrus.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger интерфейс структурированного логирования
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// LogError пишет ошибку на уровне error с полем "error"
	LogError(ctx context.Context, err error, msg string, fields ...Field)

	WithComponent(component string) Logger
	WithFields(fields ...Field) Logger
}

// Field поле записи лога
type Field struct {
	Key   string
	Value interface{}
}

// Helpers для создания полей
func String(key, value string) Field                 { return Field{key, value} }
func Int(key string, value int) Field                { return Field{key, value} }
func Int64(key string, value int64) Field            { return Field{key, value} }
func Float64(key string, value float64) Field        { return Field{key, value} }
func Bool(key string, value bool) Field              { return Field{key, value} }
func Duration(key string, value time.Duration) Field { return Field{key, value} }
func Any(key string, value interface{}) Field        { return Field{key, value} }
func Err(err error) Field                            { return Field{logrus.ErrorKey, err} }

// Options параметры корневого логгера
type Options struct {
	// Level trace, debug, info, warn, error
	Level string
	// Format text или json
	Format string
	Output io.Writer
}

// New создает корневой логгер
func New(opts Options) (Logger, error) {
	base := logrus.New()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	base.SetOutput(out)

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}
	base.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "", "text":
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	default:
		return nil, fmt.Errorf("неизвестный формат логов %q", opts.Format)
	}

	return &logrusLogger{entry: logrus.NewEntry(base)}, nil
}

// Nop логгер, отбрасывающий все записи. Удобен в тестах.
func Nop() Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &logrusLogger{entry: logrus.NewEntry(base)}
}

type logrusLogger struct {
	entry *logrus.Entry
}

func (l *logrusLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.with(ctx, fields).Debug(msg)
}

func (l *logrusLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.with(ctx, fields).Info(msg)
}

func (l *logrusLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.with(ctx, fields).Warn(msg)
}

func (l *logrusLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.with(ctx, fields).Error(msg)
}

func (l *logrusLogger) LogError(ctx context.Context, err error, msg string, fields ...Field) {
	l.with(ctx, fields).WithError(err).Error(msg)
}

func (l *logrusLogger) WithComponent(component string) Logger {
	return &logrusLogger{entry: l.entry.WithField("component", component)}
}

func (l *logrusLogger) WithFields(fields ...Field) Logger {
	return &logrusLogger{entry: l.entry.WithFields(toLogrus(fields))}
}

func (l *logrusLogger) with(ctx context.Context, fields []Field) *logrus.Entry {
	e := l.entry
	if ctx != nil {
		e = e.WithContext(ctx)
		if id, ok := ctx.Value(callIDKey{}).(string); ok && id != "" {
			e = e.WithField("call_id", id)
		}
		if n, ok := ctx.Value(attemptKey{}).(int); ok {
			e = e.WithField("attempt", n)
		}
	}
	if len(fields) > 0 {
		e = e.WithFields(toLogrus(fields))
	}
	return e
}

func toLogrus(fields []Field) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

type callIDKey struct{}
type attemptKey struct{}

// WithCallID добавляет идентификатор звонка во все записи, сделанные с ctx
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, callIDKey{}, callID)
}

// WithAttempt добавляет номер попытки во все записи, сделанные с ctx
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}
