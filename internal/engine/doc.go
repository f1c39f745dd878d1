// Package engine implements the single-threaded dispatch loop every other
// component runs on.
//
// ARCHITECTURE:
//
// Single-Writer Dispatch Loop:
// All rule evaluation, goal admission, procedure callbacks, timer expiries
// and collaborator replies execute as Tasks on one Loop, one at a time.
// Nothing below the loop takes a lock on engine state.
//
// Task Flow:
//  1. Post() appends a Task to a FIFO queue (safe from any goroutine)
//  2. Run() or RunUntilIdle() dequeues Tasks one at a time
//  3. Each Task is numbered in dispatch order for the debug log
//  4. A Task may Post() more Tasks; they run after every Task already queued
//
// CRITICAL PATTERNS:
//
// Deferred Completion:
// A callback that could complete synchronously is posted, never called
// inline. This bounds stack depth through rule -> goal -> completion -> rule
// chains and keeps collections from being mutated mid-iteration.
//
// Posting Order:
// Tasks run in the order they were posted, never by wall-clock time. Timers
// are the only wall-clock input and they too enter the loop as posted Tasks.
//
// No Re-entrancy:
// RunUntilIdle refuses to run from inside a dispatched Task.
package engine
