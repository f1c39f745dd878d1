package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueue_FIFO(t *testing.T) {
	q := newTaskQueue()

	for _, name := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(Task{Name: name}))
	}

	for _, want := range []string{"A", "B", "C"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.Name)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestTaskQueue_EnqueueAfterClose(t *testing.T) {
	q := newTaskQueue()
	q.Close()

	assert.False(t, q.Enqueue(Task{Name: "late"}))
	assert.True(t, q.Closed())

	// Closing twice is harmless.
	q.Close()
}

func TestTaskQueue_WaitSignals(t *testing.T) {
	q := newTaskQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(Task{Name: "x"})
	}()

	select {
	case <-q.Wait():
		assert.Equal(t, 1, q.Len())
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for signal")
	}
}

func TestTaskQueue_SignalCoalesces(t *testing.T) {
	q := newTaskQueue()
	q.Enqueue(Task{Name: "1"})
	q.Enqueue(Task{Name: "2"})

	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("expected a single coalesced signal")
	default:
	}
	assert.Equal(t, 2, q.Len())
}
