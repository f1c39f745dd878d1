package harness

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/duet/internal/collab"
	"github.com/roach88/duet/internal/collab/fake"
	"github.com/roach88/duet/internal/config"
	"github.com/roach88/duet/internal/earbud"
	"github.com/roach88/duet/internal/engine"
	"github.com/roach88/duet/internal/goals"
	"github.com/roach88/duet/internal/logging"
	"github.com/roach88/duet/internal/testutil"
	"github.com/roach88/duet/internal/topology"
	"github.com/roach88/duet/internal/trace"
)

// Result is the outcome of one scenario run.
type Result struct {
	Scenario string

	// Pass is true when every expect step and assertion held.
	Pass bool

	Failures []string

	// Trace is everything the run recorded, in dispatch order.
	Trace  []trace.Record
	Digest string

	// Messages are the rendered client messages, in delivery order.
	Messages []string

	// Calls is the collaborator call log.
	Calls []string

	// State is the final topology state.
	State topology.State
}

func (r *Result) fail(format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Text renders the trace one record per line.
func (r *Result) Text() string {
	var b strings.Builder
	for _, rec := range r.Trace {
		b.WriteString(rec.String())
		b.WriteByte('\n')
	}
	return b.String()
}

type options struct {
	logger    *slog.Logger
	observers []goals.Observer
	listeners []topology.Listener
	behaviour *config.Behaviour
}

// Option configures Run.
type Option func(*options)

// WithLogger sets the logger for the run. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver adds a goal observer, e.g. a metrics collector.
func WithObserver(obs goals.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// WithListener adds a topology listener.
func WithListener(l topology.Listener) Option {
	return func(o *options) { o.listeners = append(o.listeners, l) }
}

// WithBehaviour overrides the scenario's behaviour config.
func WithBehaviour(b config.Behaviour) Option {
	return func(o *options) { o.behaviour = &b }
}

// inbox records what the application client received.
type inbox struct {
	messages []topology.Message
}

func (in *inbox) Receive(msg topology.Message) { in.messages = append(in.messages, msg) }

// run is the state of one scenario execution.
type run struct {
	scenario *Scenario
	loop     *engine.Loop
	timers   *engine.ManualTimers
	bus      *collab.Bus
	fc       *fake.Collaborators
	device   *earbud.Earbud
	rec      *trace.Recorder
	client   *inbox
	result   *Result
}

// Run executes a scenario. The error is non-nil only when the scenario
// could not be run at all; failed expectations are reported in Result.
func Run(s *Scenario, opts ...Option) (res *Result, err error) {
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	behaviour := config.Default()
	switch {
	case o.behaviour != nil:
		behaviour = *o.behaviour
	case s.Config != "":
		if behaviour, err = config.Load(s.Config); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
	}

	r := &run{
		scenario: s,
		timers:   engine.NewManualTimers(),
		rec:      trace.NewRecorder(),
		client:   &inbox{},
		result:   &Result{Scenario: s.Name, Pass: true, Failures: []string{}},
	}
	r.loop = engine.New(engine.WithTimers(r.timers), engine.WithLogger(o.logger))
	r.bus = collab.NewBus(r.loop, o.logger)
	r.bus.Subscribe(r.rec.Notification)

	if r.fc, err = s.Collaborators.build(r.bus); err != nil {
		return nil, fmt.Errorf("scenario %s: collaborators: %w", s.Name, err)
	}

	goalOpts := []goals.Option{
		goals.WithObserver(r.rec),
		goals.WithIDGenerator(testutil.NewSequenceIDs("act")),
	}
	for _, obs := range o.observers {
		goalOpts = append(goalOpts, goals.WithObserver(obs))
	}
	topoOpts := []topology.Option{
		topology.WithListener(r.rec),
		topology.WithGoalOptions(goalOpts...),
	}
	for _, l := range o.listeners {
		topoOpts = append(topoOpts, topology.WithListener(l))
	}

	r.device, err = earbud.New(r.loop, r.bus, r.fc.Set(), behaviour,
		earbud.WithLogger(o.logger),
		earbud.WithState(earbud.State{Paired: s.Initial.Paired}),
		earbud.WithTopologyOptions(topoOpts...),
	)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	r.device.RegisterClient(r.client)
	r.device.RegisterClient(r.rec)

	if err := r.execute(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	for i, a := range s.Assertions {
		if aerr := evaluateAssertion(r.rec.Records(), r.device.Topology().State(), a); aerr != nil {
			r.result.fail("assertions[%d]: %v", i, aerr)
		}
	}

	r.result.Trace = r.rec.Records()
	if r.result.Digest, err = r.rec.Digest(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	r.result.Messages = renderMessages(r.client.messages)
	r.result.Calls = append([]string{}, r.fc.Calls...)
	r.result.State = r.device.Topology().State()
	return r.result, nil
}

// execute runs every step, draining the loop after each. An invariant
// violation aborts the run with an error.
func (r *run) execute() (err error) {
	defer func() {
		if p := recover(); p != nil {
			perr, ok := p.(error)
			if !ok || !engine.IsInvariantError(perr) {
				panic(p)
			}
			err = perr
		}
	}()

	if err := r.drain(); err != nil {
		return err
	}
	for i, step := range r.scenario.Steps {
		action, err := decodeStep(step)
		if err != nil {
			return err
		}
		r.apply(i, action)
		if err := r.drain(); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}
	return nil
}

func (r *run) drain() error {
	return r.loop.RunUntilIdle()
}

func (r *run) apply(i int, action any) {
	switch a := action.(type) {
	case *startStep:
		r.device.Start(r.client)
	case *stopStep:
		r.device.Stop(r.client)
	case *standaloneStep:
		r.device.RequestStandalone()
	case *advanceStep:
		r.timers.Advance(a.By)
	case *notifyStep:
		n, _ := a.notification()
		r.bus.Publish(n)
	case *Expect:
		for _, f := range r.check(a) {
			r.result.fail("steps[%d] expect: %s", i, f)
		}
	}
}

func renderMessage(m topology.Message) string {
	d := fmt.Sprintf("%v", m)
	if d == "{}" {
		return m.Kind()
	}
	return m.Kind() + " " + d
}

func renderMessages(ms []topology.Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = renderMessage(m)
	}
	return out
}
