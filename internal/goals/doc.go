// Package goals implements goal admission and concurrency control.
//
// A goal is a named unit of work backed by a procedure.Procedure (often a
// procedure.Script). The Engine decides, for each activation request,
// whether the goal starts now, waits in the pending queue, or first needs a
// conflicting exclusive goal cancelled.
//
// ADMISSION (ActivateGoal):
//  0. Gate rejects the goal: drop.
//  1. Exclusive target active: request its cancellation once, queue.
//  2. Any active goal outside the concurrency set: queue.
//  3. Otherwise: start the procedure and arm the goal timeout.
//
// Every admitted goal ends in exactly one of: success, failure, timeout,
// cancel-confirmed. On that terminal report the goal's completion events
// are raised, the goal is cleared, and the pending queue is replayed in
// FIFO order through the same steps. A queued request the gate no longer
// accepts is dropped rather than kept.
package goals
