package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopLoggerNeverPanics(t *testing.T) {
	l := NewNop()
	sugar := l.With(CategoryEval)
	require.NotNil(t, sugar)
	sugar.Debugw("test", "key", "value")
	assert.NoError(t, l.Sync())
}

func TestNewWithNilSubstitutesNop(t *testing.T) {
	l := New(nil)
	require.NotNil(t, l)
	assert.NotPanics(t, func() { l.With(CategoryParser).Infow("hi") })
}

func TestNewAtLevelBuilds(t *testing.T) {
	l, err := NewAtLevel(LevelWarn)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.NotPanics(t, func() { l.With(CategoryBuiltins).Warnw("careful") })
}

func TestNilLoggerWithIsSafe(t *testing.T) {
	var l *Logger
	assert.NotNil(t, l.With(CategoryVFS))
	assert.NoError(t, l.Sync())
}
