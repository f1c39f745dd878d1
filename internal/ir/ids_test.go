package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_Membership(t *testing.T) {
	s := EventsOf(1, 5, 63)

	assert.True(t, s.Has(1))
	assert.True(t, s.Has(5))
	assert.True(t, s.Has(63))
	assert.False(t, s.Has(0))
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []EventID{1, 5, 63}, s.Members())
}

func TestSet_Algebra(t *testing.T) {
	a := GoalsOf(1, 2, 3)
	b := GoalsOf(3, 4)

	assert.Equal(t, GoalsOf(1, 2, 3, 4), a.Union(b))
	assert.Equal(t, GoalsOf(3), a.Intersect(b))
	assert.Equal(t, GoalsOf(1, 2), a.Without(b))
	assert.True(t, a.Intersects(b))
	assert.False(t, GoalsOf(1).Intersects(GoalsOf(2)))
	assert.True(t, GoalSet(0).IsEmpty())
	assert.Equal(t, GoalsOf(1, 9), GoalsOf(1).Add(9))
}

func TestSet_OutOfBoundsPanics(t *testing.T) {
	assert.Panics(t, func() { EventsOf(MaxMembers) })
	assert.Panics(t, func() { GoalSet(0).Has(200) })
}

func TestCatalog_Names(t *testing.T) {
	c := NewCatalog()
	start := c.Event(0, "start")
	stop := c.Event(1, "stop")
	pair := c.Goal(2, "pair_peer")

	assert.Equal(t, "start", c.EventName(start))
	assert.Equal(t, "event#9", c.EventName(9))
	assert.Equal(t, "pair_peer", c.GoalName(pair))
	assert.Equal(t, []string{"start", "stop"}, c.EventNames(EventsOf(start, stop)))

	id, ok := c.LookupEvent("stop")
	require.True(t, ok)
	assert.Equal(t, stop, id)

	_, ok = c.LookupGoal("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"pair_peer"}, c.GoalNames())
}

func TestCatalog_NilIsUsable(t *testing.T) {
	var c *Catalog
	assert.Equal(t, "goal#4", c.GoalName(4))
	_, ok := c.LookupEvent("x")
	assert.False(t, ok)
}
