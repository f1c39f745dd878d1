package testutil

import (
	"github.com/roach88/duet/internal/procedure"
)

// Proc is a controllable procedure for tests.
//
// By default Start records the run and waits for the test to call Finish,
// and Cancel confirms at once. Set AutoResult to complete on Start, or
// HoldCancel to leave cancellations unconfirmed until ConfirmCancel.
type Proc struct {
	Name       string
	AutoResult procedure.Result
	HoldCancel bool

	Starts  int
	Cancels int
	Runs    []*procedure.Invocation

	log *[]string
}

// NewProc creates a fake procedure. log, when non-nil, receives
// "<name>:start" and "<name>:cancel" entries shared across procs.
func NewProc(name string, log *[]string) *Proc {
	return &Proc{Name: name, log: log}
}

// Start implements procedure.Procedure.
func (p *Proc) Start(inv *procedure.Invocation) {
	p.Starts++
	p.Runs = append(p.Runs, inv)
	p.record("start")
	if p.AutoResult != 0 {
		inv.Complete(p.AutoResult)
	}
}

// Cancel implements procedure.Procedure.
func (p *Proc) Cancel(inv *procedure.Invocation) {
	p.Cancels++
	p.record("cancel")
	if !p.HoldCancel {
		inv.ConfirmCancel()
	}
}

// Last returns the most recent run, or nil.
func (p *Proc) Last() *procedure.Invocation {
	if len(p.Runs) == 0 {
		return nil
	}
	return p.Runs[len(p.Runs)-1]
}

// Finish completes the most recent run with r.
func (p *Proc) Finish(r procedure.Result) {
	p.Last().Complete(r)
}

// ConfirmCancel confirms a held cancellation of the most recent run.
func (p *Proc) ConfirmCancel() {
	p.Last().ConfirmCancel()
}

func (p *Proc) record(what string) {
	if p.log != nil {
		*p.log = append(*p.log, p.Name+":"+what)
	}
}
