package procedure_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/duet/internal/engine"
	"github.com/roach88/duet/internal/procedure"
	"github.com/roach88/duet/internal/testutil"
)

type outcome struct {
	results   []procedure.Result
	cancelled int
}

func (o *outcome) handlers() procedure.Handlers {
	return procedure.Handlers{
		OnComplete:  func(r procedure.Result) { o.results = append(o.results, r) },
		OnCancelled: func() { o.cancelled++ },
	}
}

func TestInvocation_CompleteIsDeferred(t *testing.T) {
	loop := engine.New()
	var out outcome
	inv := procedure.NewInvocation(loop, "flag", 1, nil, out.handlers())

	procedure.Immediate(procedure.Success).Start(inv)

	assert.Empty(t, out.results, "completion must not run inside Start")
	assert.True(t, inv.Done())
	require.NoError(t, loop.RunUntilIdle())
	assert.Equal(t, []procedure.Result{procedure.Success}, out.results)
}

func TestInvocation_SingleTerminalReport(t *testing.T) {
	loop := engine.New()
	var out outcome
	inv := procedure.NewInvocation(loop, "p", 1, nil, out.handlers())

	inv.Complete(procedure.Failure)
	inv.Complete(procedure.Success)
	inv.ConfirmCancel()
	require.NoError(t, loop.RunUntilIdle())

	assert.Equal(t, []procedure.Result{procedure.Failure}, out.results)
	assert.Equal(t, 0, out.cancelled)
}

func TestInvocation_RequestCancelOnce(t *testing.T) {
	loop := engine.New()
	var out outcome
	p := testutil.NewProc("p", nil)
	p.HoldCancel = true
	inv := procedure.NewInvocation(loop, "p", 1, nil, out.handlers())
	p.Start(inv)

	assert.True(t, inv.RequestCancel(p))
	assert.False(t, inv.RequestCancel(p), "second cancel while in flight")
	assert.Equal(t, 1, p.Cancels)
	assert.True(t, inv.CancelRequested())

	p.ConfirmCancel()
	require.NoError(t, loop.RunUntilIdle())
	assert.Equal(t, 1, out.cancelled)
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "success", procedure.Success.String())
	assert.Equal(t, "failure", procedure.Failure.String())
	assert.Equal(t, "timeout", procedure.Timeout.String())
	assert.Equal(t, "unknown", procedure.Result(0).String())
}

func TestDelay(t *testing.T) {
	timers := engine.NewManualTimers()
	loop := engine.New(engine.WithTimers(timers))

	t.Run("completes after duration", func(t *testing.T) {
		var out outcome
		inv := procedure.NewInvocation(loop, "d", 1, nil, out.handlers())
		procedure.Delay(time.Second).Start(inv)

		timers.Advance(999 * time.Millisecond)
		require.NoError(t, loop.RunUntilIdle())
		assert.Empty(t, out.results)

		timers.Advance(time.Millisecond)
		require.NoError(t, loop.RunUntilIdle())
		assert.Equal(t, []procedure.Result{procedure.Success}, out.results)
	})

	t.Run("cancel stops timer", func(t *testing.T) {
		var out outcome
		d := procedure.Delay(time.Second)
		inv := procedure.NewInvocation(loop, "d", 1, nil, out.handlers())
		d.Start(inv)
		inv.RequestCancel(d)

		timers.Advance(time.Hour)
		require.NoError(t, loop.RunUntilIdle())
		assert.Empty(t, out.results)
		assert.Equal(t, 1, out.cancelled)
	})
}
