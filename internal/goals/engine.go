package goals

import (
	"log/slog"

	"github.com/roach88/duet/internal/engine"
	"github.com/roach88/duet/internal/ir"
	"github.com/roach88/duet/internal/procedure"
)

const component = "goals"

// EventSetter receives completion events. *rules.Engine implements it.
type EventSetter interface {
	SetEvent(s ir.EventSet)
}

// instance is one admitted goal.
type instance struct {
	act   Activation
	def   *Definition
	inv   *procedure.Invocation
	timer *engine.Timer
}

// Engine performs admission control over a goal table.
//
// INVARIANTS:
//   - at most one instance per goal id is active
//   - a goal and its exclusive target are never both active
//   - every admitted instance receives exactly one terminal outcome
//
// All methods must be called on the dispatch loop.
type Engine struct {
	table     *Table
	sched     procedure.Scheduler
	events    EventSetter
	logger    *slog.Logger
	catalog   *ir.Catalog
	ids       IDGenerator
	gate      Gate
	observers []Observer

	active  map[ir.GoalID]*instance
	pending []Activation
}

// Gate reports whether goal may be admitted at this moment. The topology
// uses it to restrict admission to the goals valid in its current state.
type Gate func(goal ir.GoalID) bool

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

// WithObserver adds a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithGate restricts admission of fresh and queued requests to the goals g
// accepts. Default: every goal is admissible.
func WithGate(g Gate) Option {
	return func(e *Engine) { e.gate = g }
}

// WithIDGenerator replaces the UUIDv7 activation id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// New creates an engine. Procedures run on sched; completion events are
// raised on events.
func New(table *Table, sched procedure.Scheduler, events EventSetter, opts ...Option) *Engine {
	e := &Engine{
		table:  table,
		sched:  sched,
		events: events,
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
		active: make(map[ir.GoalID]*instance),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddObserver registers o after construction.
func (e *Engine) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

// ActivateGoal requests that goal run with param on behalf of originator.
// A request for a goal that is already active or already queued is dropped.
// Panics if goal is not in the table.
func (e *Engine) ActivateGoal(goal ir.GoalID, originator string, param ir.IRObject) {
	def, ok := e.table.Lookup(goal)
	engine.Invariant(ok, component, "activation of unknown goal %d", goal)

	act := Activation{
		ID:         e.ids.Generate(),
		Goal:       goal,
		Name:       def.Name,
		Originator: originator,
		Param:      param,
	}

	if _, running := e.active[goal]; running {
		e.drop(act, "already active")
		return
	}
	if e.IsGoalQueued(goal) {
		e.drop(act, "already queued")
		return
	}
	if !e.admissible(goal) {
		e.drop(act, "not admissible")
		return
	}

	if reason, admitted := e.admit(act, def); !admitted {
		e.pending = append(e.pending, act)
		e.logger.Debug("goal queued",
			"goal", def.Name,
			"reason", reason,
			"pending", len(e.pending),
		)
		for _, o := range e.observers {
			o.GoalQueued(act, reason)
		}
	}
}

// admit runs the admission algorithm. It starts the goal and returns true,
// or returns the reason it must wait.
func (e *Engine) admit(act Activation, def *Definition) (string, bool) {
	if def.Exclusive != NoGoal {
		if target, ok := e.active[def.Exclusive]; ok {
			e.requestCancel(target)
			return "awaiting cancel of " + target.def.Name, false
		}
	}
	// Members is ordered, so the reported conflict is deterministic.
	for _, id := range e.ActiveGoals().Members() {
		if !def.Concurrent.Has(id) {
			return "conflicts with " + e.active[id].def.Name, false
		}
	}
	e.start(act, def)
	return "", true
}

func (e *Engine) start(act Activation, def *Definition) {
	inst := &instance{act: act, def: def}
	inst.inv = procedure.NewInvocation(e.sched, def.Name, def.ID, act.Param, procedure.Handlers{
		OnComplete:  func(r procedure.Result) { e.completed(inst, r) },
		OnCancelled: func() { e.cancelled(inst) },
	}).WithLogger(e.logger)

	e.active[def.ID] = inst
	e.checkExclusive()

	e.logger.Info("goal activated",
		"goal", def.Name,
		"activation_id", act.ID,
		"originator", act.Originator,
	)
	for _, o := range e.observers {
		o.GoalActivated(act)
	}

	if def.Timeout > 0 {
		inst.timer = e.sched.After(def.Name+":timeout", def.Timeout, func() {
			e.timedOut(inst)
		})
	}
	def.Procedure.Start(inst.inv)
}

// requestCancel asks the running instance to cancel. A cancel already in
// flight is not repeated.
func (e *Engine) requestCancel(inst *instance) bool {
	if !inst.inv.RequestCancel(inst.def.Procedure) {
		return false
	}
	e.logger.Debug("goal cancel requested", "goal", inst.def.Name)
	for _, o := range e.observers {
		o.GoalCancelRequested(inst.act)
	}
	return true
}

// CancelGoal asks the active goal to cancel; the goal clears when the
// procedure confirms. Returns false if a cancel is already in flight.
// Panics if goal is not active.
func (e *Engine) CancelGoal(goal ir.GoalID) bool {
	inst, ok := e.active[goal]
	engine.Invariant(ok, component, "cancel of inactive goal %s", e.catalog.GoalName(goal))
	return e.requestCancel(inst)
}

func (e *Engine) completed(inst *instance, r procedure.Result) {
	if !e.current(inst) {
		e.logger.Debug("stale completion ignored",
			"goal", inst.def.Name,
			"activation_id", inst.act.ID,
			"result", r.String(),
		)
		return
	}
	e.finish(inst, r)
}

func (e *Engine) timedOut(inst *instance) {
	if !e.current(inst) {
		return
	}
	e.logger.Warn("goal timed out",
		"goal", inst.def.Name,
		"timeout", inst.def.Timeout,
	)
	// The procedure's reply to this cancel arrives stale and is ignored.
	inst.inv.RequestCancel(inst.def.Procedure)
	e.finish(inst, procedure.Timeout)
}

func (e *Engine) finish(inst *instance, r procedure.Result) {
	events := inst.def.eventsFor(r)
	e.logger.Info("goal completed",
		"goal", inst.def.Name,
		"activation_id", inst.act.ID,
		"result", r.String(),
		"events", e.catalog.EventNames(events),
	)
	if !events.IsEmpty() {
		e.events.SetEvent(events)
	}
	e.clear(inst)
	for _, o := range e.observers {
		o.GoalCompleted(inst.act, r)
	}
	e.replay()
}

func (e *Engine) cancelled(inst *instance) {
	if !e.current(inst) {
		e.logger.Debug("stale cancel confirmation ignored", "goal", inst.def.Name)
		return
	}
	e.logger.Info("goal cancelled",
		"goal", inst.def.Name,
		"activation_id", inst.act.ID,
	)
	e.clear(inst)
	for _, o := range e.observers {
		o.GoalCancelled(inst.act)
	}
	e.replay()
}

func (e *Engine) current(inst *instance) bool {
	return e.active[inst.def.ID] == inst
}

func (e *Engine) clear(inst *instance) {
	inst.timer.Stop()
	delete(e.active, inst.def.ID)
}

// replay re-runs admission over the pending queue in FIFO order. Requests
// still blocked keep their relative order.
func (e *Engine) replay() {
	if len(e.pending) == 0 {
		return
	}
	queued := e.pending
	e.pending = nil
	for i, act := range queued {
		if !e.admissible(act.Goal) {
			e.drop(act, "no longer admissible")
			continue
		}
		def, _ := e.table.Lookup(act.Goal)
		if _, admitted := e.admit(act, def); !admitted {
			e.pending = append(e.pending, act)
			continue
		}
		e.logger.Debug("pending goal admitted",
			"goal", def.Name,
			"position", i,
		)
	}
}

func (e *Engine) admissible(goal ir.GoalID) bool {
	return e.gate == nil || e.gate(goal)
}

// Revoke re-applies the gate to work already accepted. Queued requests the
// gate rejects are dropped, and active goals it rejects are asked to cancel.
// Goals whose cancel is already in flight are left alone.
func (e *Engine) Revoke() {
	if e.gate == nil {
		return
	}
	queued := e.pending
	e.pending = nil
	for _, act := range queued {
		if e.gate(act.Goal) {
			e.pending = append(e.pending, act)
			continue
		}
		e.drop(act, "no longer admissible")
	}

	for _, id := range e.ActiveGoals().Members() {
		if !e.gate(id) {
			e.requestCancel(e.active[id])
		}
	}
}

func (e *Engine) drop(act Activation, reason string) {
	e.logger.Debug("goal activation dropped",
		"goal", act.Name,
		"reason", reason,
	)
	for _, o := range e.observers {
		o.GoalDropped(act, reason)
	}
}

func (e *Engine) checkExclusive() {
	for id, inst := range e.active {
		if inst.def.Exclusive == NoGoal {
			continue
		}
		_, clash := e.active[inst.def.Exclusive]
		engine.Invariant(!clash, component, "goal %s active together with its exclusive goal %s",
			e.catalog.GoalName(id), e.catalog.GoalName(inst.def.Exclusive))
	}
}

// IsGoalActive reports whether goal has an active instance.
func (e *Engine) IsGoalActive(goal ir.GoalID) bool {
	_, ok := e.active[goal]
	return ok
}

// IsAnyGoalPending reports whether the pending queue is non-empty.
func (e *Engine) IsAnyGoalPending() bool {
	return len(e.pending) > 0
}

// IsGoalQueued reports whether goal waits in the pending queue.
func (e *Engine) IsGoalQueued(goal ir.GoalID) bool {
	for _, act := range e.pending {
		if act.Goal == goal {
			return true
		}
	}
	return false
}

// ActiveGoals returns the set of active goals.
func (e *Engine) ActiveGoals() ir.GoalSet {
	var s ir.GoalSet
	for id := range e.active {
		s = s.Add(id)
	}
	return s
}

// PendingGoals returns the queued goals in FIFO order.
func (e *Engine) PendingGoals() []ir.GoalID {
	out := make([]ir.GoalID, len(e.pending))
	for i, act := range e.pending {
		out[i] = act.Goal
	}
	return out
}

// ActiveActivation returns the request that started goal.
func (e *Engine) ActiveActivation(goal ir.GoalID) (Activation, bool) {
	inst, ok := e.active[goal]
	if !ok {
		return Activation{}, false
	}
	return inst.act, true
}
