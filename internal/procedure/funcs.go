package procedure

import "time"

// Func adapts a start function into a Procedure. Cancel confirms at once,
// so Func suits work that has nothing to abort.
type Func func(inv *Invocation)

// Start implements Procedure.
func (f Func) Start(inv *Invocation) { f(inv) }

// Cancel implements Procedure.
func (f Func) Cancel(inv *Invocation) { inv.ConfirmCancel() }

// Immediate returns a procedure that completes with r without any
// asynchronous dependency.
func Immediate(r Result) Procedure {
	return Func(func(inv *Invocation) { inv.Complete(r) })
}

// Delay returns a procedure that succeeds after d. Cancel stops the timer.
func Delay(d time.Duration) Procedure {
	return delay{d: d}
}

type delay struct {
	d time.Duration
}

func (p delay) Start(inv *Invocation) {
	inv.Value = inv.After("delay", p.d, func() {
		inv.Complete(Success)
	})
}

func (p delay) Cancel(inv *Invocation) {
	if tm, ok := inv.Value.(interface{ Stop() bool }); ok {
		tm.Stop()
	}
	inv.ConfirmCancel()
}
