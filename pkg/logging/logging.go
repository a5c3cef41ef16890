// Package logging defines the small structured logging surface used by the
// conversion packages, with a zap-backed implementation for binaries.
package logging

import "go.uber.org/zap"

// Logger defines a simple logging interface so library packages do not depend on a backend.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// F is shorthand for building a Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// NoOpLogger is a logger that does nothing (used when no logger is provided).
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, fields ...Field) {}
func (n *NoOpLogger) Info(msg string, fields ...Field)  {}
func (n *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (n *NoOpLogger) Error(msg string, fields ...Field) {}

// OrNoOp returns logger, or a NoOpLogger when logger is nil.
func OrNoOp(logger Logger) Logger {
	if logger == nil {
		return &NoOpLogger{}
	}
	return logger
}

// ZapLogger adapts a *zap.Logger to Logger.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps logger. A nil logger yields zap.NewNop.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

// Zap returns the underlying zap logger.
func (z *ZapLogger) Zap() *zap.Logger {
	return z.logger
}

func (z *ZapLogger) Debug(msg string, fields ...Field) { z.logger.Debug(msg, toZap(fields)...) }
func (z *ZapLogger) Info(msg string, fields ...Field)  { z.logger.Info(msg, toZap(fields)...) }
func (z *ZapLogger) Warn(msg string, fields ...Field)  { z.logger.Warn(msg, toZap(fields)...) }
func (z *ZapLogger) Error(msg string, fields ...Field) { z.logger.Error(msg, toZap(fields)...) }

func toZap(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
