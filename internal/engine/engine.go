package engine

import (
	"context"
	"log/slog"
	"time"
)

// DefaultMaxSteps bounds a single RunUntilIdle call.
const DefaultMaxSteps = 10000

// Loop is the single-writer dispatch loop.
//
// CRITICAL: Tasks run one at a time on whichever goroutine called Run or
// RunUntilIdle. Post and timer expiries are safe from any goroutine.
//
// Thread-safety model:
//   - Post(), After(), Stop(): safe from any goroutine
//   - Run(), RunUntilIdle(): exactly one caller at a time
type Loop struct {
	queue    *taskQueue
	timers   TimerSource
	logger   *slog.Logger
	maxSteps int

	dispatching bool
	current     Task

	// seq numbers dispatched Tasks for the debug log.
	seq int64
}

// Option configures a Loop.
type Option func(*Loop)

// WithTimers replaces the wall-clock timer source. Tests pass
// *ManualTimers to make timeouts deterministic.
func WithTimers(src TimerSource) Option {
	return func(l *Loop) {
		l.timers = src
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithMaxSteps sets the RunUntilIdle quota.
func WithMaxSteps(maxSteps int) Option {
	return func(l *Loop) {
		l.maxSteps = maxSteps
	}
}

// New creates an idle Loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		queue:    newTaskQueue(),
		timers:   wallTimers{},
		logger:   slog.Default(),
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post schedules fn to run after every Task already queued.
// Returns false if the loop has been stopped.
func (l *Loop) Post(name string, fn func()) bool {
	ok := l.queue.Enqueue(Task{Name: name, Fn: fn})
	if !ok {
		l.logger.Debug("post after stop dropped", "task", name)
	}
	return ok
}

// After schedules fn to run on the loop once d has elapsed.
// The returned Timer may be stopped at any point before fn runs,
// including after expiry while the Task is still queued.
func (l *Loop) After(name string, d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.handle = l.timers.AfterFunc(d, func() {
		l.Post(name, func() {
			if t.stopped {
				return
			}
			t.stopped = true
			fn()
		})
	})
	return t
}

// Pending returns the number of queued Tasks.
func (l *Loop) Pending() int {
	return l.queue.Len()
}

// Dispatching reports whether the caller is running inside a Task.
func (l *Loop) Dispatching() bool {
	return l.dispatching
}

// Run dispatches Tasks until ctx is cancelled or Stop is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("dispatch loop starting")

	for {
		if task, ok := l.queue.TryDequeue(); ok {
			l.dispatch(task)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Info("dispatch loop stopping: context cancelled")
			l.queue.Close()
			return ctx.Err()

		case <-l.queue.Wait():
			// The signal channel closes with the queue.
			if l.queue.Len() == 0 && l.queue.Closed() {
				l.logger.Info("dispatch loop stopping: queue closed")
				return nil
			}
		}
	}
}

// RunUntilIdle dispatches Tasks until the queue is empty. Tasks posted
// while draining are drained too. Timer Tasks only appear once their timer
// fires, so with ManualTimers the caller controls when they are due.
func (l *Loop) RunUntilIdle() error {
	if l.dispatching {
		return &RuntimeError{
			Code:      ErrCodeReentrant,
			Message:   "RunUntilIdle called from task " + l.current.Name,
			Component: "engine",
		}
	}

	quota := NewQuotaEnforcer(l.maxSteps)
	for {
		task, ok := l.queue.TryDequeue()
		if !ok {
			return nil
		}
		if err := quota.Check(); err != nil {
			l.logger.Error("loop quota exceeded",
				"task", task.Name,
				"steps", quota.Current(),
				"limit", quota.MaxSteps(),
			)
			return err
		}
		l.dispatch(task)
	}
}

// Stop closes the queue; Run returns once it has drained.
func (l *Loop) Stop() {
	l.queue.Close()
}

// dispatch runs one Task. Panics are not recovered: an invariant violation
// must abort the process rather than leave admission state half-updated.
func (l *Loop) dispatch(task Task) {
	l.seq++
	l.dispatching = true
	l.current = task
	defer func() {
		l.dispatching = false
	}()

	l.logger.Debug("dispatch", "task", task.Name, "seq", l.seq)
	task.Fn()
}
