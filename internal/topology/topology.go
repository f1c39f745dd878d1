// Package topology implements the top-level lifecycle state machine.
//
// The topology owns one rule engine and one goal engine. It raises the
// root events (start, stop), gates which goal decisions are honored in the
// current state, and reports lifecycle confirmations to registered clients.
//
// States: Stopped (initial and terminal), Starting, Started, Stopping.
//
//	Stopped  --start-->   Starting   (Start)
//	Starting --started--> Started    (start goal succeeded)
//	Starting --abort-->   Stopped    (start goal failed or timed out)
//	Starting --stop-->    Stopping   (Stop)
//	Started  --stop-->    Stopping   (Stop)
//	Stopping --stopped--> Stopped    (stop goal finished, or fail-safe timer)
//
// Entry and exit actions only touch the event set, timers and clients. They
// never fire another transition; follow-up work is decided by the rule
// engine after the transition completes.
//
// Goal admission is gated by Config.ValidIn for the current state, both
// for fresh decisions and for requests replayed from the pending queue.
// After every transition, queued requests no longer valid are dropped and
// running goals no longer valid are cancelled, so a goal of Started never
// outlives it.
package topology

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/looplab/fsm"

	"github.com/roach88/duet/internal/collab"
	"github.com/roach88/duet/internal/engine"
	"github.com/roach88/duet/internal/goals"
	"github.com/roach88/duet/internal/ir"
	"github.com/roach88/duet/internal/procedure"
	"github.com/roach88/duet/internal/rules"
)

const component = "topology"

// State is a lifecycle state.
type State string

const (
	Stopped  State = "stopped"
	Starting State = "starting"
	Started  State = "started"
	Stopping State = "stopping"
)

const (
	evStart   = "start"
	evStarted = "started"
	evAbort   = "abort"
	evStop    = "stop"
	evStopped = "stopped"
)

// Config describes a topology instance.
type Config struct {
	Rules []rules.Rule
	Goals *goals.Table

	// StartEvent is raised on entering Starting; StopEvent on entering
	// Stopping; StartedEvent on entering Started.
	StartEvent   ir.EventID
	StopEvent    ir.EventID
	StartedEvent ir.EventID

	// StartGoal promotes Starting to Started on success. StopGoal ends
	// Stopping.
	StartGoal ir.GoalID
	StopGoal  ir.GoalID

	// ValidIn lists the goals admissible in each state. Decisions for
	// other goals are dropped.
	ValidIn map[State]ir.GoalSet

	// StopTimeout bounds Stopping; zero disables the fail-safe timer.
	StopTimeout time.Duration
}

// Validate checks the config for internal consistency.
func (c Config) Validate() error {
	var result *multierror.Error
	if err := rules.Validate(c.Rules); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Goals == nil {
		return multierror.Append(result, fmt.Errorf("goal table is required")).ErrorOrNil()
	}
	if _, ok := c.Goals.Lookup(c.StartGoal); !ok {
		result = multierror.Append(result, fmt.Errorf("start goal %d not in goal table", c.StartGoal))
	}
	if _, ok := c.Goals.Lookup(c.StopGoal); !ok {
		result = multierror.Append(result, fmt.Errorf("stop goal %d not in goal table", c.StopGoal))
	}
	if !c.ValidIn[Starting].Has(c.StartGoal) {
		result = multierror.Append(result, fmt.Errorf("start goal must be valid in %s", Starting))
	}
	if !c.ValidIn[Stopping].Has(c.StopGoal) {
		result = multierror.Append(result, fmt.Errorf("stop goal must be valid in %s", Stopping))
	}
	for _, r := range c.Rules {
		if _, ok := c.Goals.Lookup(r.Goal); !ok {
			result = multierror.Append(result, fmt.Errorf("rule %q: goal %d not in goal table", r.Name, r.Goal))
		}
	}
	return result.ErrorOrNil()
}

// Listener observes state transitions.
type Listener interface {
	StateChanged(from, to State)
}

// Topology is one lifecycle state machine with its engines.
//
// Thread-safety model:
//   - Start(), Stop(), RegisterClient(), UnregisterClient(): safe from any
//     goroutine (they post to the loop)
//   - everything else: loop only
type Topology struct {
	cfg     Config
	sched   procedure.Scheduler
	logger  *slog.Logger
	catalog *ir.Catalog

	sm    *fsm.FSM
	rules *rules.Engine
	goals *goals.Engine

	clients   []Client
	requester Client
	listeners []Listener
	stopTimer *engine.Timer

	goalOpts []goals.Option
}

// Option configures a Topology.
type Option func(*Topology)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Topology) { t.logger = l }
}

// WithCatalog names events and goals in logs.
func WithCatalog(c *ir.Catalog) Option {
	return func(t *Topology) { t.catalog = c }
}

// WithListener adds a transition listener.
func WithListener(l Listener) Option {
	return func(t *Topology) { t.listeners = append(t.listeners, l) }
}

// WithGoalOptions passes options through to the goal engine.
func WithGoalOptions(opts ...goals.Option) Option {
	return func(t *Topology) { t.goalOpts = append(t.goalOpts, opts...) }
}

// New validates cfg and builds a stopped topology driven by sched.
func New(cfg Config, sched procedure.Scheduler, opts ...Option) (*Topology, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid topology config: %w", err)
	}

	t := &Topology{
		cfg:    cfg,
		sched:  sched,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.rules = rules.New(cfg.Rules, t.onRequest,
		rules.WithLogger(t.logger),
		rules.WithCatalog(t.catalog),
	)

	goalOpts := append([]goals.Option{
		goals.WithLogger(t.logger),
		goals.WithCatalog(t.catalog),
		goals.WithObserver(goalWatcher{t: t}),
		goals.WithGate(t.admissible),
	}, t.goalOpts...)
	t.goals = goals.New(cfg.Goals, sched, t.rules, goalOpts...)

	t.sm = fsm.NewFSM(
		string(Stopped),
		fsm.Events{
			{Name: evStart, Src: []string{string(Stopped)}, Dst: string(Starting)},
			{Name: evStarted, Src: []string{string(Starting)}, Dst: string(Started)},
			{Name: evAbort, Src: []string{string(Starting)}, Dst: string(Stopped)},
			{Name: evStop, Src: []string{string(Starting), string(Started)}, Dst: string(Stopping)},
			{Name: evStopped, Src: []string{string(Stopping)}, Dst: string(Stopped)},
		},
		fsm.Callbacks{
			"leave_" + string(Starting): func(_ context.Context, e *fsm.Event) {
				t.rules.ResetEvent(ir.EventsOf(t.cfg.StartEvent))
			},
			"leave_" + string(Stopping): func(_ context.Context, e *fsm.Event) {
				t.stopTimer.Stop()
				t.stopTimer = nil
			},
			"enter_state": func(_ context.Context, e *fsm.Event) {
				t.logger.Info("topology state changed",
					"event", e.Event,
					"from", e.Src,
					"to", e.Dst,
				)
				for _, l := range t.listeners {
					l.StateChanged(State(e.Src), State(e.Dst))
				}
				// Goals of the state just left must not outlive it.
				t.sched.Post("topology:revoke", t.goals.Revoke)
			},
			"enter_" + string(Starting): func(_ context.Context, e *fsm.Event) {
				t.rules.ResetEvent(ir.EventsOf(t.cfg.StopEvent))
				t.rules.SetEvent(ir.EventsOf(t.cfg.StartEvent))
			},
			"enter_" + string(Started): func(_ context.Context, e *fsm.Event) {
				t.rules.SetEvent(ir.EventsOf(t.cfg.StartedEvent))
			},
			"enter_" + string(Stopping): func(_ context.Context, e *fsm.Event) {
				if t.cfg.StopTimeout > 0 {
					t.stopTimer = t.sched.After("topology:stop-timeout", t.cfg.StopTimeout, t.stopTimedOut)
				}
				t.rules.ResetEvent(ir.EventsOf(t.cfg.StartedEvent))
				t.rules.SetEvent(ir.EventsOf(t.cfg.StopEvent))
			},
			"enter_" + string(Stopped): func(_ context.Context, e *fsm.Event) {
				t.rules.ResetEvent(t.rules.Events())
			},
		},
	)

	return t, nil
}

// State returns the current lifecycle state.
func (t *Topology) State() State {
	return State(t.sm.Current())
}

// Rules returns the rule engine. Domain notification handlers raise and
// clear their events through it.
func (t *Topology) Rules() *rules.Engine { return t.rules }

// Goals returns the goal engine.
func (t *Topology) Goals() *goals.Engine { return t.goals }

// Start requests Stopped -> Starting. The requester receives StartCfm,
// with Failure if the topology is not stopped.
func (t *Topology) Start(requester Client) {
	t.sched.Post("topology:start", func() { t.handleStart(requester) })
}

// Stop requests the stop sequence. Stopping an already stopped topology
// answers StopCfm{Success} at once.
func (t *Topology) Stop(requester Client) {
	t.sched.Post("topology:stop", func() { t.handleStop(requester) })
}

// RegisterClient adds c to the client list. Registering twice is a no-op.
func (t *Topology) RegisterClient(c Client) {
	t.sched.Post("topology:register", func() {
		if !slices.Contains(t.clients, c) {
			t.clients = append(t.clients, c)
		}
	})
}

// UnregisterClient removes c. Unknown clients are ignored.
func (t *Topology) UnregisterClient(c Client) {
	t.sched.Post("topology:unregister", func() {
		if i := slices.Index(t.clients, c); i >= 0 {
			t.clients = slices.Delete(t.clients, i, i+1)
		}
	})
}

// Notify sends a domain message to every registered client.
func (t *Topology) Notify(msg Message) {
	for _, c := range t.clients {
		c.Receive(msg)
	}
}

func (t *Topology) handleStart(requester Client) {
	if t.State() != Stopped {
		t.logger.Warn("start rejected", "state", t.State())
		send(requester, StartCfm{Status: collab.StatusFailure})
		return
	}
	t.requester = requester
	t.fire(evStart)
	t.broadcast(StartCfm{Status: collab.StatusSuccess})
}

func (t *Topology) handleStop(requester Client) {
	switch t.State() {
	case Stopped:
		send(requester, StopCfm{Status: collab.StatusSuccess})
	case Stopping:
		send(requester, StoppingCfm{Status: collab.StatusSuccess})
	default:
		t.requester = requester
		t.fire(evStop)
		t.broadcast(StoppingCfm{Status: collab.StatusSuccess})
	}
}

// onRequest is the rule engine sink. Each request becomes its own goal
// decision task, so evaluation finishes before any admission.
func (t *Topology) onRequest(req rules.Request) {
	t.sched.Post("goal-decision:"+req.Rule, func() { t.decide(req) })
}

func (t *Topology) decide(req rules.Request) {
	t.rules.SetRuleComplete(req.Goal)

	state := t.State()
	if !t.cfg.ValidIn[state].Has(req.Goal) {
		t.logger.Debug("goal decision dropped",
			"rule", req.Rule,
			"goal", t.catalog.GoalName(req.Goal),
			"state", state,
		)
		return
	}
	t.goals.ActivateGoal(req.Goal, "rule:"+req.Rule, req.Param)
}

// admissible is the goal engine's gate: only goals valid in the current
// state are admitted, whether fresh or replayed from the queue.
func (t *Topology) admissible(goal ir.GoalID) bool {
	return t.cfg.ValidIn[t.State()].Has(goal)
}

func (t *Topology) goalFinished(goal ir.GoalID, r procedure.Result) {
	status := collab.StatusFailure
	if r == procedure.Success {
		status = collab.StatusSuccess
	}

	switch {
	case goal == t.cfg.StartGoal && t.State() == Starting:
		if status == collab.StatusSuccess {
			t.fire(evStarted)
		} else {
			t.fire(evAbort)
		}
		t.broadcast(StartedCfm{Status: status})
		if status != collab.StatusSuccess {
			t.requester = nil
		}
	case goal == t.cfg.StopGoal && t.State() == Stopping:
		t.finishStop(status)
	}
}

func (t *Topology) stopTimedOut() {
	if t.State() != Stopping {
		return
	}
	t.logger.Warn("stop sequence timed out, forcing stopped",
		"timeout", t.cfg.StopTimeout,
	)
	if t.goals.IsGoalActive(t.cfg.StopGoal) {
		t.goals.CancelGoal(t.cfg.StopGoal)
	}
	t.finishStop(collab.StatusFailure)
}

func (t *Topology) finishStop(status collab.Status) {
	t.fire(evStopped)
	t.broadcast(StopCfm{Status: status})
	t.requester = nil
}

func (t *Topology) fire(event string) {
	err := t.sm.Event(context.Background(), event)
	engine.Invariant(err == nil, component, "transition %q from %s: %v", event, t.State(), err)
}

// broadcast sends msg to every client and to the current requester, once.
func (t *Topology) broadcast(msg Message) {
	t.Notify(msg)
	if t.requester != nil && !slices.Contains(t.clients, t.requester) {
		t.requester.Receive(msg)
	}
}

func send(c Client, msg Message) {
	if c != nil {
		c.Receive(msg)
	}
}

// goalWatcher forwards goal results to the topology on a later tick.
type goalWatcher struct {
	goals.NopObserver
	t *Topology
}

func (w goalWatcher) GoalCompleted(a goals.Activation, r procedure.Result) {
	w.t.sched.Post("topology:goal-result", func() { w.t.goalFinished(a.Goal, r) })
}
