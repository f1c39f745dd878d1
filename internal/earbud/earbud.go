// Package earbud assembles the orchestration core for one earbud of a
// true-wireless pair: the rule table, the goal table, the procedures and
// scripts behind each goal, and the handling of collaborator notifications.
//
// Goal flow on a fresh start, with a peer that answers:
//
//	start -> connectable (perf request, advertise, perf relinquish)
//	started -> pair_peer (unless already paired)
//	peer_paired -> find_role
//	role_primary -> connect_peer_profiles (connect peer, connect profiles)
//	stop -> stop (disable advertising, disconnect all)
package earbud

import (
	"log/slog"

	"github.com/roach88/duet/internal/collab"
	"github.com/roach88/duet/internal/config"
	"github.com/roach88/duet/internal/goals"
	"github.com/roach88/duet/internal/ir"
	"github.com/roach88/duet/internal/procedure"
	"github.com/roach88/duet/internal/rules"
	"github.com/roach88/duet/internal/topology"
)

// Earbud is one device instance. Build it with New; drive it through
// Start, Stop and RequestStandalone.
type Earbud struct {
	loop      procedure.Scheduler
	bus       *collab.Bus
	collab    collab.Set
	behaviour config.Behaviour
	logger    *slog.Logger
	catalog   *ir.Catalog

	state State
	topo  *topology.Topology

	topoOpts []topology.Option
}

// Option configures an Earbud.
type Option func(*Earbud)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Earbud) { e.logger = l }
}

// WithState sets the initial device state, e.g. an existing pairing.
func WithState(s State) Option {
	return func(e *Earbud) { e.state = s }
}

// WithTopologyOptions passes options through to the topology.
func WithTopologyOptions(opts ...topology.Option) Option {
	return func(e *Earbud) { e.topoOpts = append(e.topoOpts, opts...) }
}

// New wires an earbud over loop. Collaborator replies must be published
// on bus.
func New(loop procedure.Scheduler, bus *collab.Bus, set collab.Set, b config.Behaviour, opts ...Option) (*Earbud, error) {
	e := &Earbud{
		loop:      loop,
		bus:       bus,
		collab:    set,
		behaviour: b,
		logger:    slog.Default(),
		catalog:   NewCatalog(),
	}
	for _, opt := range opts {
		opt(e)
	}

	table, err := goals.NewTable(e.goalTable()...)
	if err != nil {
		return nil, err
	}

	cfg := topology.Config{
		Rules:        e.ruleTable(),
		Goals:        table,
		StartEvent:   EventStart,
		StopEvent:    EventStop,
		StartedEvent: EventStarted,
		StartGoal:    GoalConnectable,
		StopGoal:     GoalStop,
		ValidIn: map[topology.State]ir.GoalSet{
			topology.Starting: ir.GoalsOf(GoalConnectable),
			topology.Started: ir.GoalsOf(GoalPairPeer, GoalFindRole, GoalConnectPeerProfiles,
				GoalBecomeStandalone, GoalNoRoleIdle),
			topology.Stopping: ir.GoalsOf(GoalStop),
		},
		StopTimeout: b.Timeouts.Stop(),
	}

	topoOpts := append([]topology.Option{
		topology.WithLogger(e.logger),
		topology.WithCatalog(e.catalog),
		topology.WithListener(e),
		topology.WithGoalOptions(goals.WithObserver(reporter{e: e})),
	}, e.topoOpts...)

	e.topo, err = topology.New(cfg, loop, topoOpts...)
	if err != nil {
		return nil, err
	}

	bus.Subscribe(e.handle)
	return e, nil
}

// Topology returns the underlying state machine.
func (e *Earbud) Topology() *topology.Topology { return e.topo }

// Catalog names the earbud's events and goals.
func (e *Earbud) Catalog() *ir.Catalog { return e.catalog }

// State returns a copy of the device state.
func (e *Earbud) State() State { return e.state }

// Start starts the topology on behalf of requester.
func (e *Earbud) Start(requester topology.Client) { e.topo.Start(requester) }

// Stop stops the topology on behalf of requester.
func (e *Earbud) Stop(requester topology.Client) { e.topo.Stop(requester) }

// RegisterClient adds c to the topology's client list.
func (e *Earbud) RegisterClient(c topology.Client) { e.topo.RegisterClient(c) }

// UnregisterClient removes c.
func (e *Earbud) UnregisterClient(c topology.Client) { e.topo.UnregisterClient(c) }

// RequestStandalone asks the device to run without its peer.
func (e *Earbud) RequestStandalone() {
	e.loop.Post("earbud:standalone", func() { e.raise(EventStandaloneRequested) })
}

func (e *Earbud) goalTable() []goals.Definition {
	t := e.behaviour.Timeouts
	started := ir.GoalsOf(GoalPairPeer, GoalFindRole, GoalConnectPeerProfiles, GoalBecomeStandalone, GoalNoRoleIdle)

	return []goals.Definition{
		{
			ID: GoalConnectable, Name: "connectable",
			Procedure: procedure.NewScript("connectable",
				procedure.Step{Name: "perf_request", Procedure: e.perfRequest()},
				procedure.Step{Name: "enable_advertising", Procedure: e.enableAdvertising()},
				procedure.Step{Name: "perf_relinquish", Procedure: e.perfRelinquish(), Always: true},
			),
			Timeout: t.Connectable(),
		},
		{
			ID: GoalPairPeer, Name: "pair_peer",
			Procedure: e.pairPeer(),
			OnSuccess: ir.EventsOf(EventPeerPaired),
			OnFailure: ir.EventsOf(EventPairFailed),
			OnTimeout: ir.EventsOf(EventPairFailed),
			Timeout:   t.Pair(),
		},
		{
			ID: GoalFindRole, Name: "find_role",
			Procedure: e.findRole(),
			OnFailure: ir.EventsOf(EventFindRoleFailed),
			OnTimeout: ir.EventsOf(EventFindRoleFailed),
			Timeout:   t.FindRole(),
		},
		{
			ID: GoalConnectPeerProfiles, Name: "connect_peer_profiles",
			Procedure: procedure.NewScript("connect_peer_profiles",
				procedure.Step{Name: "connect_peer", Procedure: e.connectPeer()},
				procedure.Step{Name: "connect_profiles", Procedure: e.connectProfiles()},
			),
			OnSuccess: ir.EventsOf(EventProfilesConnected),
			Timeout:   t.ConnectProfiles(),
		},
		{
			ID: GoalBecomeStandalone, Name: "become_standalone",
			Procedure: procedure.NewScript("standalone",
				procedure.Step{Name: "set_standalone", Procedure: e.setStandalone()},
				procedure.Step{Name: "enable_advertising", Procedure: e.enableAdvertising()},
			),
			OnSuccess: ir.EventsOf(EventRoleStandalone),
		},
		{
			ID: GoalNoRoleIdle, Name: "no_role_idle",
			Procedure: e.disableAdvertising(),
			Exclusive: GoalFindRole,
		},
		{
			ID: GoalStop, Name: "stop",
			Procedure: procedure.NewScript("stop",
				procedure.Step{Name: "disable_advertising", Procedure: e.disableAdvertising()},
				procedure.Step{Name: "disconnect_all", Procedure: e.disconnectAll()},
			),
			Exclusive:  GoalConnectable,
			Concurrent: started,
			OnFailure:  ir.EventsOf(EventStopFailed),
			OnTimeout:  ir.EventsOf(EventStopFailed),
		},
	}
}

// ruleTable is evaluated in order; earlier rules win ties between goals
// that exclude each other.
func (e *Earbud) ruleTable() []rules.Rule {
	return []rules.Rule{
		{
			Name: "start_connectable", Events: ir.EventsOf(EventStart), Goal: GoalConnectable,
			Predicate: func() rules.Decision {
				return rules.RunWithParam(ir.Object(ir.O("params", ir.IRString(e.behaviour.AdvertisingParams()))))
			},
		},
		{
			Name: "pair_peer", Events: ir.EventsOf(EventPeerUnpaired), Goal: GoalPairPeer,
			Predicate: func() rules.Decision {
				if e.state.Paired || e.state.Standalone {
					return rules.Ignore()
				}
				return rules.Run()
			},
		},
		{
			Name: "find_role", Events: ir.EventsOf(EventPeerPaired), Goal: GoalFindRole,
			Predicate: e.findRoleNeeded,
		},
		{
			Name: "find_role_after_disconnect", Events: ir.EventsOf(EventPeerDisconnected), Goal: GoalFindRole,
			Predicate: e.findRoleNeeded,
		},
		{
			Name: "primary_connect_profiles", Events: ir.EventsOf(EventRolePrimary), Goal: GoalConnectPeerProfiles,
			Predicate: e.profilesNeeded,
		},
		{
			Name: "reconnect_profiles", Events: ir.EventsOf(EventPeerConnected), Goal: GoalConnectPeerProfiles,
			Predicate: e.profilesNeeded,
		},
		{
			Name: "shutdown_idle", Events: ir.EventsOf(EventShutdownPrepare), Goal: GoalNoRoleIdle,
			Predicate: rules.Always,
		},
		{
			Name: "standalone", Events: ir.EventsOf(EventStandaloneRequested), Goal: GoalBecomeStandalone,
			Predicate: func() rules.Decision {
				if e.state.Standalone {
					return rules.Ignore()
				}
				return rules.RunWithParam(ir.Object(ir.O("params", ir.IRString(e.behaviour.StandaloneParams()))))
			},
		},
		{
			Name: "stop", Events: ir.EventsOf(EventStop), Goal: GoalStop,
			Predicate: rules.Always,
		},
	}
}

func (e *Earbud) findRoleNeeded() rules.Decision {
	if !e.state.Paired || e.state.Standalone || e.state.ShuttingDown {
		return rules.Ignore()
	}
	return rules.Run()
}

func (e *Earbud) profilesNeeded() rules.Decision {
	if !e.state.IsPrimary() {
		return rules.Ignore()
	}
	missing := e.behaviour.Profiles().Without(e.state.ProfilesConnected)
	if missing == 0 {
		return rules.Ignore()
	}
	return rules.RunWithParam(ir.Object(ir.O("profiles", ir.Strings(missing.Names()...))))
}

// raise asserts ev as a new occurrence, re-arming rules that an earlier
// occurrence completed.
func (e *Earbud) raise(ev ir.EventID) {
	s := ir.EventsOf(ev)
	e.topo.Rules().ResetEvent(s)
	e.topo.Rules().SetEvent(s)
}

func (e *Earbud) clear(s ir.EventSet) {
	e.topo.Rules().ResetEvent(s)
}

// handle applies a collaborator notification to State and raises the
// matching events. It runs before any procedure waiting on the same
// notification.
func (e *Earbud) handle(n collab.Notification) {
	started := e.topo.State() == topology.Started

	switch n := n.(type) {
	case collab.PeerConnected:
		e.state.PeerConnected = true
		if started {
			e.clear(ir.EventsOf(EventPeerDisconnected))
			e.raise(EventPeerConnected)
		}

	case collab.PeerDisconnected:
		e.state.PeerConnected = false
		e.state.ProfilesConnected = 0
		if started {
			e.clear(ir.EventsOf(EventPeerConnected, EventProfilesConnected))
			e.raise(EventPeerDisconnected)
		}

	case collab.RoleResult:
		e.setRole(n.Role, started)

	case collab.RoleChanged:
		e.setRole(n.Role, started)

	case collab.PairResult:
		if n.Status == collab.StatusSuccess {
			e.state.Paired = true
			e.clear(ir.EventsOf(EventPeerUnpaired))
		}

	case collab.AdvertisingConfirm:
		if n.Status == collab.StatusSuccess {
			e.state.Advertising = n.Enabled
		}

	case collab.ProfileConfirm:
		if n.Status != collab.StatusSuccess {
			return
		}
		if n.Connected {
			e.state.ProfilesConnected |= n.Profile
		} else {
			e.state.ProfilesConnected = e.state.ProfilesConnected.Without(n.Profile)
		}

	case collab.DisconnectAllConfirm:
		if n.Status == collab.StatusSuccess {
			e.state.PeerConnected = false
			e.state.ProfilesConnected = 0
		}

	case collab.ShutdownPrepare:
		e.state.ShuttingDown = true
		if started {
			e.raise(EventShutdownPrepare)
		}
	}
}

func (e *Earbud) setRole(role collab.Role, started bool) {
	if !e.state.RoleKnown || e.state.Role != role {
		e.logger.Info("role changed", "role", role.String())
		e.topo.Notify(RoleChanged{Role: role})
	}
	e.state.Role = role
	e.state.RoleKnown = true
	if !started {
		return
	}

	// Every role result is a new occurrence, so an unchanged primary role
	// still re-arms profile connection after a peer loss.
	ev := EventRolePrimary
	switch role {
	case collab.RoleSecondary:
		ev = EventRoleSecondary
	case collab.RoleNoPeer:
		ev = EventRoleStandalone
	}
	e.clear(roleEvents)
	e.topo.Rules().SetEvent(ir.EventsOf(ev))
}

// StateChanged implements topology.Listener. An existing pairing is
// announced once the topology has started so role discovery can begin.
func (e *Earbud) StateChanged(from, to topology.State) {
	switch to {
	case topology.Started:
		if e.state.Paired {
			e.topo.Rules().SetEvent(ir.EventsOf(EventPeerPaired))
		} else {
			e.topo.Rules().SetEvent(ir.EventsOf(EventPeerUnpaired))
		}
	case topology.Stopped:
		e.state.RoleKnown = false
		e.state.Standalone = false
	}
}

// reporter turns goal outcomes into client result messages.
type reporter struct {
	goals.NopObserver
	e *Earbud
}

func (r reporter) GoalCompleted(a goals.Activation, res procedure.Result) {
	status := collab.StatusFailure
	if res == procedure.Success {
		status = collab.StatusSuccess
	}
	e := r.e

	switch a.Goal {
	case GoalPairPeer:
		e.topo.Notify(PeerPairResult{Status: status})
	case GoalFindRole:
		e.topo.Notify(FindRoleResult{Status: status, Role: e.state.Role})
	case GoalConnectPeerProfiles:
		e.topo.Notify(ProfileConnectResult{Status: status, Profiles: e.state.ProfilesConnected})
	case GoalBecomeStandalone:
		e.topo.Notify(StandaloneResult{Status: status})
	}
}
