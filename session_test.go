package bashkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	sess, err := NewBuilder().Build()
	require.NoError(t, err)
	return sess
}

func TestBuildSeedsDefaultFilesystemAndCwd(t *testing.T) {
	sess := newTestSession(t)
	assert.Equal(t, "/home/user", sess.Cwd())
	home, ok := sess.Var("HOME")
	assert.True(t, ok)
	assert.Equal(t, "/home/user", home)
}

func TestExecReturnsStdoutAndExitCode(t *testing.T) {
	sess := newTestSession(t)
	res, err := sess.Exec(context.Background(), "echo hi")
	require.NoError(t, err)
	assert.Equal(t, "hi\n", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExecSurvivesAcrossCalls(t *testing.T) {
	sess := newTestSession(t)
	_, err := sess.Exec(context.Background(), "x=42")
	require.NoError(t, err)
	res, err := sess.Exec(context.Background(), "echo $x")
	require.NoError(t, err)
	assert.Equal(t, "42\n", res.Stdout)
}

func TestExecReturnsParseErrorKind(t *testing.T) {
	sess := newTestSession(t)
	_, err := sess.Exec(context.Background(), "if then fi")
	require.Error(t, err)
	var bke *Error
	require.ErrorAs(t, err, &bke)
	assert.Equal(t, ErrParse, bke.Kind)
}

func TestExecReturnsLimitErrorKind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExecutionLimits.MaxCommands = 2
	sess, err := NewBuilder().WithConfig(cfg).Build()
	require.NoError(t, err)

	_, execErr := sess.Exec(context.Background(), "true; true; true")
	require.Error(t, execErr)
	var bke *Error
	require.ErrorAs(t, execErr, &bke)
	assert.Equal(t, ErrLimit, bke.Kind)
}

func TestDevNullDiscardsWritesAndReadsEmpty(t *testing.T) {
	sess := newTestSession(t)
	res, err := sess.Exec(context.Background(), "echo hello > /dev/null; cat /dev/null")
	require.NoError(t, err)
	assert.Equal(t, "", res.Stdout)
}

func TestConfigValidateRejectsBadLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FsLimits.MaxTotalBytes = 0
	assert.Error(t, cfg.Validate())
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExecutionLimits.MaxCommands = 0
	_, err := NewBuilder().WithConfig(cfg).Build()
	assert.Error(t, err)
}

func TestWithEnvSeedsVariable(t *testing.T) {
	sess, err := NewBuilder().WithEnv("GREETING", "hi").Build()
	require.NoError(t, err)
	res, execErr := sess.Exec(context.Background(), "echo $GREETING")
	require.NoError(t, execErr)
	assert.Equal(t, "hi\n", res.Stdout)
}
