package rules

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/duet/internal/ir"
)

const (
	evStart ir.EventID = iota
	evStop
	evPeer
	evOther
)

const (
	goalA ir.GoalID = iota + 1
	goalB
	goalC
)

type collector struct {
	reqs []Request
}

func (c *collector) sink(r Request) { c.reqs = append(c.reqs, r) }

func (c *collector) goals() []ir.GoalID {
	out := make([]ir.GoalID, len(c.reqs))
	for i, r := range c.reqs {
		out[i] = r.Goal
	}
	return out
}

func TestEngine_TableOrder(t *testing.T) {
	var c collector
	e := New([]Rule{
		{Name: "b", Events: ir.EventsOf(evStart), Predicate: Always, Goal: goalB},
		{Name: "a", Events: ir.EventsOf(evStart, evPeer), Predicate: Always, Goal: goalA},
		{Name: "c", Events: ir.EventsOf(evStop), Predicate: Always, Goal: goalC},
	}, c.sink)

	e.SetEvent(ir.EventsOf(evStart))

	assert.Equal(t, []ir.GoalID{goalB, goalA}, c.goals())
	assert.Equal(t, ir.EventsOf(evStart), e.Events())
}

func TestEngine_IgnoreConsumesRule(t *testing.T) {
	var c collector
	calls := 0
	e := New([]Rule{
		{Name: "noop", Events: ir.EventsOf(evStart), Goal: goalA, Predicate: func() Decision {
			calls++
			return Ignore()
		}},
	}, c.sink)

	e.SetEvent(ir.EventsOf(evStart))
	e.SetEvent(ir.EventsOf(evOther))

	assert.Empty(t, c.reqs)
	assert.Equal(t, 1, calls)
	assert.True(t, e.IsComplete("noop"))
}

func TestEngine_RunWithParamCopies(t *testing.T) {
	var c collector
	scratch := ir.Object(ir.O("profiles", ir.Strings("a2dp")))
	e := New([]Rule{
		{Name: "p", Events: ir.EventsOf(evPeer), Goal: goalA, Predicate: func() Decision {
			return RunWithParam(scratch)
		}},
	}, c.sink)

	e.SetEvent(ir.EventsOf(evPeer))
	scratch["profiles"] = ir.Strings("hfp")

	require.Len(t, c.reqs, 1)
	assert.Equal(t, []string{"a2dp"}, c.reqs[0].Param.StringList("profiles"))
	assert.Equal(t, "p", c.reqs[0].Rule)
}

func TestEngine_RuleCompleteUntilReset(t *testing.T) {
	var c collector
	e := New([]Rule{
		{Name: "a", Events: ir.EventsOf(evStart, evOther), Predicate: Always, Goal: goalA},
	}, c.sink)

	e.SetEvent(ir.EventsOf(evStart))
	require.Len(t, c.reqs, 1)
	e.SetRuleComplete(goalA)

	// An unrelated bit in the same mask does not re-fire a complete rule.
	e.SetEvent(ir.EventsOf(evOther))
	assert.Len(t, c.reqs, 1)

	// Reset and set again re-arms it.
	e.ResetEvent(ir.EventsOf(evStart))
	assert.False(t, e.IsComplete("a"))
	e.SetEvent(ir.EventsOf(evStart))
	assert.Len(t, c.reqs, 2)
}

func TestEngine_ResetOnlyRearmsOwningRules(t *testing.T) {
	var c collector
	e := New([]Rule{
		{Name: "a", Events: ir.EventsOf(evStart), Predicate: Always, Goal: goalA},
		{Name: "b", Events: ir.EventsOf(evStop), Predicate: Always, Goal: goalB},
	}, c.sink)

	e.SetEvent(ir.EventsOf(evStart, evStop))
	e.SetRuleComplete(goalA)
	e.SetRuleComplete(goalB)

	e.ResetEvent(ir.EventsOf(evStop))
	assert.True(t, e.IsComplete("a"))
	assert.False(t, e.IsComplete("b"))
	assert.Equal(t, ir.EventsOf(evStart), e.Events())
}

func TestEngine_PredicateMayNotMutate(t *testing.T) {
	var e *Engine
	e = New([]Rule{
		{Name: "bad", Events: ir.EventsOf(evStart), Goal: goalA, Predicate: func() Decision {
			e.SetEvent(ir.EventsOf(evStop))
			return Run()
		}},
	}, func(Request) {})

	assert.PanicsWithError(t,
		"INVARIANT_VIOLATION: SetEvent called from a predicate (rules)",
		func() { e.SetEvent(ir.EventsOf(evStart)) },
	)
}

func TestEngine_TableCopied(t *testing.T) {
	var c collector
	table := []Rule{
		{Name: "a", Events: ir.EventsOf(evStart), Predicate: Always, Goal: goalA},
		{Name: "b", Events: ir.EventsOf(evStart), Predicate: Always, Goal: goalB},
	}
	e := New(table, c.sink)
	table[0], table[1] = table[1], table[0]

	e.SetEvent(ir.EventsOf(evStart))
	assert.Equal(t, []ir.GoalID{goalA, goalB}, c.goals())
}

// Evaluating the same event set twice with pure predicates and no
// completions in between yields the same requests.
func TestEngine_EvaluateIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for iter := 0; iter < 200; iter++ {
		var table []Rule
		for i := 0; i < 8; i++ {
			mask := ir.EventSet(rng.Uint64() & 0xff)
			if mask.IsEmpty() {
				mask = ir.EventsOf(evStart)
			}
			verdict := rng.Intn(3)
			param := ir.Object(ir.O("i", ir.IRInt(int64(i))))
			table = append(table, Rule{
				Name:   string(rune('a' + i)),
				Events: mask,
				Goal:   ir.GoalID(i + 1),
				Predicate: func() Decision {
					switch verdict {
					case 0:
						return Ignore()
					case 1:
						return Run()
					default:
						return RunWithParam(param)
					}
				},
			})
		}

		e := New(table, func(Request) {})
		e.events = ir.EventSet(rng.Uint64() & 0xff)

		first := e.Evaluate()
		second := e.Evaluate()
		require.Equal(t, first, second, "iteration %d", iter)
	}
}

func TestValidate(t *testing.T) {
	err := Validate([]Rule{
		{Name: "ok", Events: ir.EventsOf(evStart), Predicate: Always, Goal: goalA},
		{Name: "ok", Events: ir.EventsOf(evStart), Predicate: Always, Goal: goalA},
		{Name: "", Events: ir.EventsOf(evStart), Predicate: Always},
		{Name: "nomask", Predicate: Always},
		{Name: "nopred", Events: ir.EventsOf(evStart)},
	})
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `rule "ok": duplicate name`)
	assert.Contains(t, msg, "rule 2: missing name")
	assert.Contains(t, msg, `rule "nomask": empty event mask`)
	assert.Contains(t, msg, `rule "nopred": nil predicate`)

	assert.NoError(t, Validate(nil))
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "ignore", ActionIgnore.String())
	assert.Equal(t, "run_with_param", ActionRunWithParam.String())
}
