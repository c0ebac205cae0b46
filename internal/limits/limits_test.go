package limits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCommands = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxTotalLoopIterations = 5
	cfg.MaxLoopIterations = 10
	assert.Error(t, cfg.Validate())
}

func TestTickCommandTripsMaxCommands(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCommands = 3
	c := New(cfg)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.TickCommand())
	}
	err := c.TickCommand()
	require.Error(t, err)
	var exceeded *Exceeded
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, MaxCommands, exceeded.Kind)
}

func TestResetIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCommands = 2
	c := New(cfg)

	require.NoError(t, c.TickCommand())
	require.NoError(t, c.TickCommand())
	require.Error(t, c.TickCommand())

	c.Reset()
	assert.Equal(t, 0, c.CommandsConsumed())
	require.NoError(t, c.TickCommand())

	c.Reset()
	c.Reset()
	assert.Equal(t, 0, c.CommandsConsumed())
}

func TestNestedLoopsShareGlobalCounter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLoopIterations = 1000
	cfg.MaxTotalLoopIterations = 50
	c := New(cfg)

	// Outer loop of 10 iterations, each running an inner loop of 10:
	// 100 total iterations, each under the per-loop cap of 1000 but over
	// the global cap of 50 — this is exactly the nested-multiplier attack
	// spec.md §4.1 calls out.
	var tripped error
	c.PushLoop()
outer:
	for i := 0; i < 10; i++ {
		if err := c.TickLoop(); err != nil {
			tripped = err
			break outer
		}
		c.PushLoop()
		for j := 0; j < 10; j++ {
			if err := c.TickLoop(); err != nil {
				tripped = err
				break outer
			}
		}
		c.PopLoop()
	}
	c.PopLoop()

	require.Error(t, tripped)
	var exceeded *Exceeded
	require.ErrorAs(t, tripped, &exceeded)
	assert.Equal(t, MaxTotalLoopIterations, exceeded.Kind)
}

func TestSingleLoopAtCapSucceeds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLoopIterations = 100
	c := New(cfg)

	c.PushLoop()
	for i := 0; i < 100; i++ {
		require.NoError(t, c.TickLoop())
	}
	require.Error(t, c.TickLoop())
	c.PopLoop()
}

func TestFunctionDepthPushPop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFunctionDepth = 2
	c := New(cfg)

	require.NoError(t, c.PushFunction())
	require.NoError(t, c.PushFunction())
	require.Error(t, c.PushFunction())
	c.PopFunction()
	c.PopFunction()
	assert.Equal(t, 0, c.FunctionDepth())
}

func TestDeadlineExpiry(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	clock := func() time.Time { return now }

	cfg := DefaultConfig()
	cfg.Timeout = 10 * time.Millisecond
	c := NewWithClock(cfg, clock)

	require.NoError(t, c.TickCommand())
	now = base.Add(20 * time.Millisecond)
	err := c.TickCommand()
	require.Error(t, err)
	var exceeded *Exceeded
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, Timeout, exceeded.Kind)
}

func TestParserFuelExhaustion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxParserOperations = 5
	f := NewParserFuel(cfg)

	for i := 0; i < 5; i++ {
		require.NoError(t, f.Consume())
	}
	err := f.Consume()
	require.Error(t, err)
	var exceeded *Exceeded
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, ParserExhausted, exceeded.Kind)
}

func TestParserFuelDepth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxASTDepth = 3
	f := NewParserFuel(cfg)

	require.NoError(t, f.CheckDepth(3))
	err := f.CheckDepth(4)
	require.Error(t, err)
	var exceeded *Exceeded
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, AstTooDeep, exceeded.Kind)
}

func TestInputTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInputBytes = 10
	require.NoError(t, cfg.CheckInputSize(10))
	err := cfg.CheckInputSize(11)
	require.Error(t, err)
	var exceeded *Exceeded
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, InputTooLarge, exceeded.Kind)
}
