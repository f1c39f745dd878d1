package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_New(t *testing.T) {
	l := New()

	assert.NotNil(t, l.queue)
	assert.Equal(t, DefaultMaxSteps, l.maxSteps)
	assert.Equal(t, int64(0), l.seq)
}

func TestLoop_RunUntilIdle_FIFO(t *testing.T) {
	l := New()
	var order []string

	l.Post("a", func() {
		order = append(order, "a")
		l.Post("c", func() { order = append(order, "c") })
	})
	l.Post("b", func() { order = append(order, "b") })

	require.NoError(t, l.RunUntilIdle())
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, int64(3), l.seq, "each dispatched task takes one seq")
	assert.Equal(t, 0, l.Pending())
}

func TestLoop_RunUntilIdle_Quota(t *testing.T) {
	l := New(WithMaxSteps(5))

	var spin func()
	spin = func() { l.Post("spin", spin) }
	l.Post("spin", spin)

	err := l.RunUntilIdle()
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))
}

func TestLoop_RunUntilIdle_RejectsReentry(t *testing.T) {
	l := New()
	var inner error

	l.Post("outer", func() { inner = l.RunUntilIdle() })
	require.NoError(t, l.RunUntilIdle())

	var re *RuntimeError
	require.True(t, errors.As(inner, &re))
	assert.Equal(t, ErrCodeReentrant, re.Code)
}

func TestLoop_PostAfterStop(t *testing.T) {
	l := New()
	l.Stop()

	assert.False(t, l.Post("late", func() {}))
}

func TestLoop_Run_ContextCancel(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	l.Post("signal", func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task not dispatched")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLoop_Run_Stop(t *testing.T) {
	l := New()
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	l.Stop()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestLoop_WallTimer(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	fired := make(chan struct{})
	l.Post("arm", func() {
		l.After("wall", 5*time.Millisecond, func() { close(fired) })
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("wall timer never fired")
	}
}
