package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualTimers_FireInDeadlineOrder(t *testing.T) {
	m := NewManualTimers()
	var fired []string

	m.AfterFunc(3*time.Second, func() { fired = append(fired, "c") })
	m.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	m.AfterFunc(1*time.Second, func() { fired = append(fired, "b") })

	m.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 1, m.Armed())

	m.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 3*time.Second, m.Now())
}

func TestManualTimers_Stop(t *testing.T) {
	m := NewManualTimers()
	fired := false
	h := m.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, h.Stop())
	assert.False(t, h.Stop())
	m.Advance(time.Minute)
	assert.False(t, fired)
}

func TestLoop_AfterRunsOnLoop(t *testing.T) {
	timers := NewManualTimers()
	l := New(WithTimers(timers))
	var ran bool

	l.After("timeout", time.Second, func() {
		assert.True(t, l.Dispatching())
		ran = true
	})

	timers.Advance(time.Second)
	assert.False(t, ran, "expiry must be posted, not run inline")
	require.NoError(t, l.RunUntilIdle())
	assert.True(t, ran)
}

func TestLoop_TimerStoppedAfterExpiryStillQueued(t *testing.T) {
	timers := NewManualTimers()
	l := New(WithTimers(timers))
	ran := false

	tm := l.After("timeout", time.Second, func() { ran = true })
	timers.Advance(time.Second)
	require.Equal(t, 1, l.Pending())

	assert.True(t, tm.Stop())
	require.NoError(t, l.RunUntilIdle())
	assert.False(t, ran)
}

func TestTimer_StopNil(t *testing.T) {
	var tm *Timer
	assert.False(t, tm.Stop())
}
