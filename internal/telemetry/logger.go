// Package telemetry provides BashKit's structured, category-scoped logger.
// A Session holds exactly one Logger; every subsystem asks for a scoped
// child via With(category) rather than importing a package-level global,
// so an embedding host can run many Sessions with independent log sinks.
package telemetry

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names the subsystem a log line came from, mirroring the
// teacher's internal/logging category constants but scoped to BashKit's
// own module map instead of the teacher's agent-shard taxonomy.
type Category string

const (
	CategorySession    Category = "session"
	CategoryParser     Category = "parser"
	CategoryEval       Category = "eval"
	CategoryBuiltins   Category = "builtins"
	CategoryCapability Category = "capability"
	CategoryVFS        Category = "vfs"
	CategoryLimits     Category = "limits"
)

// Logger wraps a *zap.Logger. The zero value is not usable; construct one
// with NewNop or New.
type Logger struct {
	base *zap.Logger
}

// NewNop returns a Logger that discards everything, the default a Session
// gets when the embedding host doesn't configure logging (spec.md's
// zero-configuration requirement: a Session must never write anywhere
// unless asked to).
func NewNop() *Logger {
	return &Logger{base: zap.NewNop()}
}

// New wraps an existing *zap.Logger, substituting a no-op logger if base
// is nil so callers never need a nil check.
func New(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{base: base}
}

// Level mirrors the subset of zapcore levels the session config exposes.
type Level int8

const (
	LevelDebug Level = Level(zapcore.DebugLevel)
	LevelInfo  Level = Level(zapcore.InfoLevel)
	LevelWarn  Level = Level(zapcore.WarnLevel)
	LevelError Level = Level(zapcore.ErrorLevel)
)

// NewAtLevel builds a JSON-encoded logger writing to stderr at the given
// level — the shape a host typically wants when it turns logging on at
// all, per the teacher's debug_mode toggle generalized to a level instead
// of a single bool.
func NewAtLevel(level Level) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{base: base}, nil
}

// With returns a child SugaredLogger tagged with category, the unit every
// subsystem actually logs through.
func (l *Logger) With(category Category) *zap.SugaredLogger {
	if l == nil || l.base == nil {
		return zap.NewNop().Sugar()
	}
	return l.base.With(zap.String("category", string(category))).Sugar()
}

// Sync flushes any buffered log entries; a Session calls this on Close.
func (l *Logger) Sync() error {
	if l == nil || l.base == nil {
		return nil
	}
	return l.base.Sync()
}
