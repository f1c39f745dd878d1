package procedure

import (
	"log/slog"
	"time"

	"github.com/roach88/duet/internal/engine"
	"github.com/roach88/duet/internal/ir"
)

// Result is the terminal outcome of a procedure.
type Result int

const (
	Success Result = iota + 1
	Failure
	Timeout
)

// String returns the lower-case result name used in traces.
func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Procedure is an asynchronous start/cancel capability.
//
// Start begins work for inv and must eventually call inv.Complete exactly
// once, unless Cancel arrives first. Cancel asks the running work to stop;
// the procedure answers with inv.ConfirmCancel (or, if it finished in the
// meantime, the Complete it already sent counts as the terminal report).
type Procedure interface {
	Start(inv *Invocation)
	Cancel(inv *Invocation)
}

// Scheduler is the subset of *engine.Loop an invocation needs.
type Scheduler interface {
	Post(name string, fn func()) bool
	After(name string, d time.Duration, fn func()) *engine.Timer
}

// Handlers receive the terminal outcome of an invocation, on the loop.
type Handlers struct {
	OnComplete  func(Result)
	OnCancelled func()
}

// Invocation is one run of a procedure. It is created by whoever starts the
// procedure (the goal engine, or a Script for its steps).
type Invocation struct {
	// Goal is the goal this run belongs to.
	Goal ir.GoalID
	// Param is the payload for this run; nil when the goal was raised
	// without one.
	Param ir.IRObject
	// Value holds procedure-private state for this run.
	Value any

	name            string
	sched           Scheduler
	handlers        Handlers
	logger          *slog.Logger
	terminal        bool
	cancelRequested bool
}

// NewInvocation creates a run bound to sched. name labels posted tasks.
func NewInvocation(sched Scheduler, name string, goal ir.GoalID, param ir.IRObject, h Handlers) *Invocation {
	return &Invocation{
		Goal:     goal,
		Param:    param,
		name:     name,
		sched:    sched,
		handlers: h,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger used for contract violations.
func (inv *Invocation) WithLogger(l *slog.Logger) *Invocation {
	inv.logger = l
	return inv
}

// Name returns the label given at construction.
func (inv *Invocation) Name() string { return inv.name }

// Child creates an invocation for a sub-step of this run, sharing goal,
// scheduler and logger.
func (inv *Invocation) Child(name string, param ir.IRObject, h Handlers) *Invocation {
	c := NewInvocation(inv.sched, inv.name+"/"+name, inv.Goal, param, h)
	c.logger = inv.logger
	return c
}

// Complete reports the terminal result. The handler runs on a later tick.
// Reports after the first terminal report are logged and dropped.
func (inv *Invocation) Complete(r Result) {
	if !inv.terminate("complete") {
		return
	}
	h := inv.handlers.OnComplete
	inv.sched.Post(inv.name+":complete", func() {
		if h != nil {
			h(r)
		}
	})
}

// ConfirmCancel reports that a requested cancellation finished.
// The handler runs on a later tick.
func (inv *Invocation) ConfirmCancel() {
	if !inv.terminate("cancel-confirm") {
		return
	}
	h := inv.handlers.OnCancelled
	inv.sched.Post(inv.name+":cancelled", func() {
		if h != nil {
			h()
		}
	})
}

func (inv *Invocation) terminate(kind string) bool {
	if inv.terminal {
		inv.logger.Warn("duplicate terminal report dropped",
			"invocation", inv.name,
			"report", kind,
		)
		return false
	}
	inv.terminal = true
	return true
}

// Done reports whether a terminal outcome has been reported.
func (inv *Invocation) Done() bool { return inv.terminal }

// CancelRequested reports whether RequestCancel has been called.
func (inv *Invocation) CancelRequested() bool { return inv.cancelRequested }

// RequestCancel asks p to cancel this run. It does nothing, and returns
// false, if the run already reported or a cancel is already in flight.
func (inv *Invocation) RequestCancel(p Procedure) bool {
	if inv.terminal || inv.cancelRequested {
		return false
	}
	inv.cancelRequested = true
	p.Cancel(inv)
	return true
}

// Post schedules work for this run on the loop.
func (inv *Invocation) Post(name string, fn func()) bool {
	return inv.sched.Post(inv.name+":"+name, fn)
}

// After schedules work for this run after d.
func (inv *Invocation) After(name string, d time.Duration, fn func()) *engine.Timer {
	return inv.sched.After(inv.name+":"+name, d, fn)
}
