package procedure

import (
	"fmt"
	"log/slog"

	"github.com/roach88/duet/internal/ir"
)

// Step is one entry of a Script: a procedure and the static parameter it is
// started with. A nil Param passes the script's own parameter through.
//
// An Always step also runs after an earlier step failed, timed out or was
// cancelled. In that case its own result is ignored, and a cancel arriving
// while it runs waits for it instead of interrupting it.
type Step struct {
	Name      string
	Procedure Procedure
	Param     ir.IRObject
	Always    bool
}

// Script runs its steps serially as a single Procedure.
//
// A step reporting Success starts the next; Failure or Timeout ends the
// script with that result and only the remaining Always steps start. There
// is no other rollback. Cancel cancels only the running step; the script
// confirms once that step confirms and the remaining Always steps finish.
type Script struct {
	Name  string
	Steps []Step
}

// NewScript creates a script. Steps without a name are labelled by index.
func NewScript(name string, steps ...Step) *Script {
	cp := make([]Step, len(steps))
	for i, st := range steps {
		if st.Name == "" {
			st.Name = fmt.Sprintf("step%d", i)
		}
		cp[i] = st
	}
	return &Script{Name: name, Steps: cp}
}

// scriptRun is the per-invocation cursor.
type scriptRun struct {
	cursor     int
	child      *Invocation
	cancelling bool

	// unwinding is set once only Always steps may run; result is the
	// outcome to report when they are done.
	unwinding bool
	result    Result
}

// Start implements Procedure.
func (s *Script) Start(inv *Invocation) {
	run := &scriptRun{}
	inv.Value = run
	if len(s.Steps) == 0 {
		inv.Complete(Success)
		return
	}
	s.startStep(inv, run, 0)
}

// Cancel implements Procedure.
func (s *Script) Cancel(inv *Invocation) {
	run, _ := inv.Value.(*scriptRun)
	if run != nil {
		run.cancelling = true
	}
	if run == nil || run.child == nil {
		inv.ConfirmCancel()
		return
	}
	if run.unwinding || run.child.Done() {
		// stepCompleted sees cancelling and finishes the unwind.
		return
	}
	slog.Debug("script cancelling step",
		"script", s.Name,
		"step", s.Steps[run.cursor].Name,
	)
	run.child.RequestCancel(s.Steps[run.cursor].Procedure)
}

func (s *Script) startStep(inv *Invocation, run *scriptRun, i int) {
	step := s.Steps[i]
	param := step.Param
	if param == nil {
		param = inv.Param
	}

	run.cursor = i
	run.child = inv.Child(step.Name, param, Handlers{
		OnComplete: func(r Result) { s.stepCompleted(inv, run, i, r) },
		OnCancelled: func() { s.unwind(inv, run, i+1) },
	})

	slog.Debug("script step starting",
		"script", s.Name,
		"step", step.Name,
		"index", i,
	)
	step.Procedure.Start(run.child)
}

func (s *Script) stepCompleted(inv *Invocation, run *scriptRun, i int, r Result) {
	switch {
	case run.unwinding || run.cancelling:
		// The step finished before it saw the cancel; only Always steps
		// start from here.
		s.unwind(inv, run, i+1)
	case r != Success:
		slog.Debug("script aborted",
			"script", s.Name,
			"step", s.Steps[i].Name,
			"result", r,
		)
		run.result = r
		s.unwind(inv, run, i+1)
	case i+1 == len(s.Steps):
		inv.Complete(Success)
	default:
		s.startStep(inv, run, i+1)
	}
}

// unwind starts the first Always step at or after from, or reports the
// script's outcome when none is left.
func (s *Script) unwind(inv *Invocation, run *scriptRun, from int) {
	run.unwinding = true
	for j := from; j < len(s.Steps); j++ {
		if s.Steps[j].Always {
			s.startStep(inv, run, j)
			return
		}
	}
	if inv.Done() {
		return
	}
	if run.cancelling {
		inv.ConfirmCancel()
		return
	}
	inv.Complete(run.result)
}
