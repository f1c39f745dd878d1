// Package rules maps asserted events to goal-activation requests.
//
// Rules are evaluated in table order. Table order is significant: when two
// rules could raise mutually exclusive goals, the earlier rule's request is
// admitted first.
package rules

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/duet/internal/ir"
)

// Action is a predicate's verdict.
type Action int

const (
	// ActionIgnore consumes the rule without raising a goal, typically
	// because its precondition is already satisfied.
	ActionIgnore Action = iota
	// ActionRun raises the rule's goal with no payload.
	ActionRun
	// ActionRunWithParam raises the goal with Decision.Param.
	ActionRunWithParam
)

func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionRun:
		return "run"
	case ActionRunWithParam:
		return "run_with_param"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision is returned by a Predicate.
type Decision struct {
	Action Action
	Param  ir.IRObject
}

// Ignore is the ActionIgnore decision.
func Ignore() Decision { return Decision{Action: ActionIgnore} }

// Run is the ActionRun decision.
func Run() Decision { return Decision{Action: ActionRun} }

// RunWithParam raises the goal with param. The engine copies param before
// building the request, so the predicate may reuse its storage.
func RunWithParam(param ir.IRObject) Decision {
	return Decision{Action: ActionRunWithParam, Param: param}
}

// Predicate inspects external state and decides whether the rule's goal
// should run. It must not change the event set or the goal set.
type Predicate func() Decision

// Always is a predicate that always runs.
func Always() Decision { return Run() }

// Rule guards a predicate with an event mask.
type Rule struct {
	Name      string
	Events    ir.EventSet
	Predicate Predicate
	Goal      ir.GoalID
}

// Request is a goal-activation request produced by a firing rule.
type Request struct {
	Rule  string
	Goal  ir.GoalID
	Param ir.IRObject
}

// Validate checks a rule table: names present and unique, masks
// non-empty, predicates set.
func Validate(table []Rule) error {
	var result *multierror.Error
	seen := make(map[string]bool, len(table))
	for i, r := range table {
		if r.Name == "" {
			result = multierror.Append(result, fmt.Errorf("rule %d: missing name", i))
		} else if seen[r.Name] {
			result = multierror.Append(result, fmt.Errorf("rule %q: duplicate name", r.Name))
		}
		seen[r.Name] = true
		if r.Events.IsEmpty() {
			result = multierror.Append(result, fmt.Errorf("rule %q: empty event mask", r.Name))
		}
		if r.Predicate == nil {
			result = multierror.Append(result, fmt.Errorf("rule %q: nil predicate", r.Name))
		}
	}
	return result.ErrorOrNil()
}
