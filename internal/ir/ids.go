package ir

import (
	"fmt"
	"math/bits"
	"slices"
)

// MaxMembers is the number of distinct ids a Set can hold.
const MaxMembers = 64

// ID is the constraint satisfied by EventID and GoalID.
type ID interface {
	~uint8
}

// EventID names one condition the rule engine reacts to.
type EventID uint8

// GoalID names one goal in a goal table.
type GoalID uint8

// Set is a bounded set of ids. The zero value is the empty set.
type Set[T ID] uint64

// EventSet is a set of asserted conditions.
type EventSet = Set[EventID]

// GoalSet is a set of goals, used for concurrency policies.
type GoalSet = Set[GoalID]

// SetOf builds a set from ids. It panics if an id is outside [0, MaxMembers).
func SetOf[T ID](ids ...T) Set[T] {
	var s Set[T]
	for _, id := range ids {
		s |= bit(id)
	}
	return s
}

// EventsOf is SetOf for event ids.
func EventsOf(ids ...EventID) EventSet { return SetOf(ids...) }

// GoalsOf is SetOf for goal ids.
func GoalsOf(ids ...GoalID) GoalSet { return SetOf(ids...) }

func bit[T ID](id T) Set[T] {
	if int(id) >= MaxMembers {
		panic(fmt.Sprintf("ir: id %d outside set bounds (max %d)", id, MaxMembers-1))
	}
	return Set[T](1) << uint(id)
}

// Has reports whether id is a member.
func (s Set[T]) Has(id T) bool { return s&bit(id) != 0 }

// Add returns s with ids added.
func (s Set[T]) Add(ids ...T) Set[T] { return s | SetOf(ids...) }

// Union returns s ∪ o.
func (s Set[T]) Union(o Set[T]) Set[T] { return s | o }

// Without returns s with every member of o removed.
func (s Set[T]) Without(o Set[T]) Set[T] { return s &^ o }

// Intersect returns s ∩ o.
func (s Set[T]) Intersect(o Set[T]) Set[T] { return s & o }

// Intersects reports whether s and o share a member.
func (s Set[T]) Intersects(o Set[T]) bool { return s&o != 0 }

// IsEmpty reports whether s has no members.
func (s Set[T]) IsEmpty() bool { return s == 0 }

// Len returns the number of members.
func (s Set[T]) Len() int { return bits.OnesCount64(uint64(s)) }

// Members returns the ids in ascending order.
func (s Set[T]) Members() []T {
	out := make([]T, 0, s.Len())
	for v := uint64(s); v != 0; v &= v - 1 {
		out = append(out, T(bits.TrailingZeros64(v)))
	}
	return out
}

// Catalog maps ids to human readable names for logs, traces and scenario
// files. A nil *Catalog is valid and formats ids numerically.
type Catalog struct {
	events map[EventID]string
	goals  map[GoalID]string
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		events: make(map[EventID]string),
		goals:  make(map[GoalID]string),
	}
}

// Event registers a name for id and returns id, so declarations read
// `EventStart = cat.Event(0, "start")`.
func (c *Catalog) Event(id EventID, name string) EventID {
	bit(id)
	c.events[id] = name
	return id
}

// Goal registers a name for id and returns id.
func (c *Catalog) Goal(id GoalID, name string) GoalID {
	bit(id)
	c.goals[id] = name
	return id
}

// EventName returns the registered name or "event#N".
func (c *Catalog) EventName(id EventID) string {
	if c != nil {
		if n, ok := c.events[id]; ok {
			return n
		}
	}
	return fmt.Sprintf("event#%d", id)
}

// GoalName returns the registered name or "goal#N".
func (c *Catalog) GoalName(id GoalID) string {
	if c != nil {
		if n, ok := c.goals[id]; ok {
			return n
		}
	}
	return fmt.Sprintf("goal#%d", id)
}

// EventNames formats every member of s.
func (c *Catalog) EventNames(s EventSet) []string {
	ids := s.Members()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = c.EventName(id)
	}
	return names
}

// LookupEvent finds an event id by registered name.
func (c *Catalog) LookupEvent(name string) (EventID, bool) {
	if c == nil {
		return 0, false
	}
	for id, n := range c.events {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// LookupGoal finds a goal id by registered name.
func (c *Catalog) LookupGoal(name string) (GoalID, bool) {
	if c == nil {
		return 0, false
	}
	for id, n := range c.goals {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// GoalNames returns every registered goal name, sorted.
func (c *Catalog) GoalNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.goals))
	for _, n := range c.goals {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
