package goals

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/duet/internal/ir"
	"github.com/roach88/duet/internal/procedure"
)

// NoGoal is the reserved zero GoalID meaning "no goal".
const NoGoal ir.GoalID = 0

// Definition is the static description of one goal.
type Definition struct {
	ID   ir.GoalID
	Name string

	// Procedure runs the goal. Scripts are procedures too.
	Procedure procedure.Procedure

	// Exclusive names the goal that must be cancelled before this one may
	// start, or NoGoal.
	Exclusive ir.GoalID

	// Concurrent lists goals allowed to be active alongside this one.
	Concurrent ir.GoalSet

	// Completion events raised per result. Empty means none.
	OnSuccess ir.EventSet
	OnFailure ir.EventSet
	OnTimeout ir.EventSet

	// Timeout bounds the goal; zero disables the goal-local timer.
	Timeout time.Duration
}

// eventsFor returns the completion events for r.
func (d *Definition) eventsFor(r procedure.Result) ir.EventSet {
	switch r {
	case procedure.Success:
		return d.OnSuccess
	case procedure.Failure:
		return d.OnFailure
	case procedure.Timeout:
		return d.OnTimeout
	default:
		return 0
	}
}

// Table is an immutable, validated set of goal definitions.
type Table struct {
	defs  map[ir.GoalID]*Definition
	order []ir.GoalID
}

// NewTable validates defs and builds a table. All problems are reported
// together.
func NewTable(defs ...Definition) (*Table, error) {
	t := &Table{defs: make(map[ir.GoalID]*Definition, len(defs))}
	var result *multierror.Error

	for i := range defs {
		d := defs[i]
		switch {
		case d.ID == NoGoal:
			result = multierror.Append(result, fmt.Errorf("goal %q: id 0 is reserved", d.Name))
			continue
		case t.defs[d.ID] != nil:
			result = multierror.Append(result, fmt.Errorf("goal %q: duplicate id %d", d.Name, d.ID))
			continue
		}
		if d.Name == "" {
			d.Name = fmt.Sprintf("goal#%d", d.ID)
		}
		if d.Procedure == nil {
			result = multierror.Append(result, fmt.Errorf("goal %q: nil procedure", d.Name))
		}
		if d.Timeout < 0 {
			result = multierror.Append(result, fmt.Errorf("goal %q: negative timeout", d.Name))
		}
		t.defs[d.ID] = &d
		t.order = append(t.order, d.ID)
	}

	for _, id := range t.order {
		d := t.defs[id]
		if d.Exclusive == d.ID {
			result = multierror.Append(result, fmt.Errorf("goal %q: exclusive with itself", d.Name))
		} else if d.Exclusive != NoGoal && t.defs[d.Exclusive] == nil {
			result = multierror.Append(result, fmt.Errorf("goal %q: exclusive goal %d undefined", d.Name, d.Exclusive))
		}
		for _, c := range d.Concurrent.Members() {
			if t.defs[c] == nil {
				result = multierror.Append(result, fmt.Errorf("goal %q: concurrent goal %d undefined", d.Name, c))
			}
		}
		if d.Exclusive != NoGoal && d.Concurrent.Has(d.Exclusive) {
			result = multierror.Append(result, fmt.Errorf("goal %q: exclusive goal also listed as concurrent", d.Name))
		}
		for _, c := range d.Concurrent.Members() {
			if other := t.defs[c]; other != nil && other.Exclusive == d.ID {
				result = multierror.Append(result, fmt.Errorf("goal %q: concurrent goal %q is exclusive with it", d.Name, other.Name))
			}
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return t, nil
}

// Lookup returns the definition for id.
func (t *Table) Lookup(id ir.GoalID) (*Definition, bool) {
	d, ok := t.defs[id]
	return d, ok
}

// Definitions returns copies of every definition in declaration order.
func (t *Table) Definitions() []Definition {
	out := make([]Definition, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.defs[id])
	}
	return out
}
