package rules

import (
	"log/slog"

	"github.com/roach88/duet/internal/engine"
	"github.com/roach88/duet/internal/ir"
)

// Sink receives the requests produced by one evaluation, in table order.
// The topology posts each one to the loop as a goal decision.
type Sink func(Request)

// Engine holds the event set and per-rule completion state.
//
// INVARIANTS:
//   - rule order NEVER changes after construction
//   - predicates never re-enter the engine during evaluation
type Engine struct {
	rules    []Rule
	complete []bool
	events   ir.EventSet
	sink     Sink
	logger   *slog.Logger
	catalog  *ir.Catalog

	evaluating bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCatalog names events and goals in logs.
func WithCatalog(c *ir.Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// New creates an engine over table. The table is copied so later changes
// by the caller cannot reorder evaluation.
func New(table []Rule, sink Sink, opts ...Option) *Engine {
	rules := make([]Rule, len(table))
	copy(rules, table)

	e := &Engine{
		rules:    rules,
		complete: make([]bool, len(rules)),
		sink:     sink,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetEvent asserts every member of s and evaluates the table. All requests
// are produced before the first is handed to the sink.
func (e *Engine) SetEvent(s ir.EventSet) {
	e.guard("SetEvent")
	e.events = e.events.Union(s)
	e.logger.Debug("events set",
		"set", e.catalog.EventNames(s),
		"events", e.catalog.EventNames(e.events),
	)
	for _, req := range e.Evaluate() {
		e.sink(req)
	}
}

// ResetEvent clears every member of s. Rules whose mask includes a cleared
// event become eligible to fire again.
func (e *Engine) ResetEvent(s ir.EventSet) {
	e.guard("ResetEvent")
	e.events = e.events.Without(s)
	for i, r := range e.rules {
		if r.Events.Intersects(s) {
			e.complete[i] = false
		}
	}
	e.logger.Debug("events reset",
		"reset", e.catalog.EventNames(s),
		"events", e.catalog.EventNames(e.events),
	)
}

// Events returns the current event set.
func (e *Engine) Events() ir.EventSet {
	return e.events
}

// SetRuleComplete marks every rule raising goal as satisfied for the
// current occurrence of its events.
func (e *Engine) SetRuleComplete(goal ir.GoalID) {
	e.guard("SetRuleComplete")
	for i, r := range e.rules {
		if r.Goal == goal {
			e.complete[i] = true
		}
	}
}

// IsComplete reports whether the named rule is currently complete.
func (e *Engine) IsComplete(name string) bool {
	for i, r := range e.rules {
		if r.Name == name {
			return e.complete[i]
		}
	}
	return false
}

// Evaluate runs every eligible predicate against the current event set
// and returns the resulting requests without delivering them. Rules that
// answer ActionIgnore are marked complete.
//
// With pure predicates and no intervening completions, calling Evaluate
// twice yields the same requests.
func (e *Engine) Evaluate() []Request {
	e.evaluating = true
	defer func() { e.evaluating = false }()

	var out []Request
	for i, r := range e.rules {
		if e.complete[i] || !r.Events.Intersects(e.events) {
			continue
		}

		d := r.Predicate()
		switch d.Action {
		case ActionIgnore:
			e.complete[i] = true
			e.logger.Debug("rule ignored", "rule", r.Name)
		case ActionRun:
			out = append(out, Request{Rule: r.Name, Goal: r.Goal})
		case ActionRunWithParam:
			out = append(out, Request{Rule: r.Name, Goal: r.Goal, Param: ir.CloneObject(d.Param)})
		}
	}

	for _, req := range out {
		e.logger.Debug("rule fired",
			"rule", req.Rule,
			"goal", e.catalog.GoalName(req.Goal),
		)
	}
	return out
}

// guard rejects engine mutation from inside a predicate.
func (e *Engine) guard(op string) {
	engine.Invariant(!e.evaluating, "rules", "%s called from a predicate", op)
}
