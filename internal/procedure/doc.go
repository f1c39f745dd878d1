// Package procedure defines the asynchronous unit of work that goals run,
// and the Script composite that chains several of them.
//
// A Procedure is started with an *Invocation and reports exactly one
// terminal outcome through it: Complete(result) or ConfirmCancel(). The
// Invocation always posts that outcome to the dispatch loop, so a procedure
// that finishes synchronously (toggling a flag, say) still completes one
// tick later. Callers of Start never see their completion handler run
// inside Start.
package procedure
