package goals

import (
	"github.com/roach88/duet/internal/ir"
	"github.com/roach88/duet/internal/procedure"
)

// Activation identifies one admitted (or queued) goal request.
type Activation struct {
	// ID is unique per request; generated by the engine's IDGenerator.
	ID         string
	Goal       ir.GoalID
	Name       string
	Originator string
	Param      ir.IRObject
}

// Observer is notified of goal lifecycle transitions, on the loop.
// Implementations must not call back into the Engine synchronously.
type Observer interface {
	GoalActivated(a Activation)
	GoalQueued(a Activation, reason string)
	GoalDropped(a Activation, reason string)
	GoalCancelRequested(a Activation)
	GoalCompleted(a Activation, r procedure.Result)
	GoalCancelled(a Activation)
}

// NopObserver implements Observer with no-ops; embed it to implement a
// subset.
type NopObserver struct{}

func (NopObserver) GoalActivated(Activation)                   {}
func (NopObserver) GoalQueued(Activation, string)              {}
func (NopObserver) GoalDropped(Activation, string)             {}
func (NopObserver) GoalCancelRequested(Activation)             {}
func (NopObserver) GoalCompleted(Activation, procedure.Result) {}
func (NopObserver) GoalCancelled(Activation)                   {}
