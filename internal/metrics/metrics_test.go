package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/duet/internal/goals"
	"github.com/roach88/duet/internal/procedure"
	"github.com/roach88/duet/internal/topology"
)

func TestCollector_GoalLifecycle(t *testing.T) {
	now := time.Unix(0, 0)
	c, err := NewCollector(prometheus.NewRegistry(), WithNow(func() time.Time { return now }))
	require.NoError(t, err)

	pair := goals.Activation{ID: "act-0001", Name: "pair_peer"}
	role := goals.Activation{ID: "act-0002", Name: "find_role"}

	c.GoalActivated(pair)
	c.GoalQueued(role, "conflicts with pair_peer")
	c.GoalDropped(goals.Activation{ID: "act-0003", Name: "find_role"}, "already queued")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pending))

	now = now.Add(2 * time.Second)
	c.GoalCompleted(pair, procedure.Success)
	c.GoalActivated(role)
	c.GoalCancelled(role)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.activations.WithLabelValues("pair_peer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.activations.WithLabelValues("find_role")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dropped.WithLabelValues("find_role")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.completions.WithLabelValues("pair_peer", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cancellations.WithLabelValues("find_role")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.duration))
	assert.Empty(t, c.started)
}

func TestCollector_Transitions(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	c.StateChanged(topology.Stopped, topology.Starting)
	c.StateChanged(topology.Stopped, topology.Starting)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.transitions.WithLabelValues("stopped", "starting")))
}

func TestNewCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)

	_, err = NewCollector(reg)
	assert.Error(t, err)
}
