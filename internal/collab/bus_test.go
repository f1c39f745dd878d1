package collab_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/duet/internal/collab"
	"github.com/roach88/duet/internal/engine"
)

func TestBus_DeliversOnLoopInOrder(t *testing.T) {
	loop := engine.New()
	bus := collab.NewBus(loop, nil)

	var got []string
	bus.Subscribe(func(n collab.Notification) { got = append(got, "first:"+n.Kind()) })
	bus.Subscribe(func(n collab.Notification) { got = append(got, "second:"+n.Kind()) })

	bus.Publish(collab.PeerConnected{})
	assert.Empty(t, got, "delivery waits for the loop")

	require.NoError(t, loop.RunUntilIdle())
	assert.Equal(t, []string{"first:peer_connected", "second:peer_connected"}, got)
}

func TestBus_UnsubscribeDuringDelivery(t *testing.T) {
	loop := engine.New()
	bus := collab.NewBus(loop, nil)

	var got []string
	var cancelSecond func()
	bus.Subscribe(func(n collab.Notification) {
		got = append(got, "first")
		cancelSecond()
	})
	cancelSecond = bus.Subscribe(func(n collab.Notification) { got = append(got, "second") })

	bus.Publish(collab.PeerDisconnected{})
	require.NoError(t, loop.RunUntilIdle())

	assert.Equal(t, []string{"first"}, got)
	assert.Equal(t, 1, bus.Subscribers())

	cancelSecond()
	assert.Equal(t, 1, bus.Subscribers(), "cancel is idempotent")
}
