package earbud

import (
	"github.com/roach88/duet/internal/collab"
	"github.com/roach88/duet/internal/procedure"
)

// matcher inspects a notification for the current run. ok reports that
// the run is over with result r.
type matcher func(n collab.Notification) (r procedure.Result, ok bool)

// request is a procedure that issues one collaborator request and waits for
// the notification that answers it.
type request struct {
	bus *collab.Bus

	// begin issues the request and returns the matcher for this run. A nil
	// matcher means nothing needs waiting for and the run succeeds.
	begin func(inv *procedure.Invocation) matcher

	// abort asks the collaborator to stop; nil means the request cannot be
	// aborted and a cancel only stops waiting.
	abort func()

	// aborted reports the notification confirming abort.
	aborted func(n collab.Notification) bool
}

type requestRun struct {
	match       matcher
	unsubscribe func()
	cancelling  bool
}

func (p *request) Start(inv *procedure.Invocation) {
	m := p.begin(inv)
	if m == nil {
		inv.Complete(procedure.Success)
		return
	}
	run := &requestRun{match: m}
	inv.Value = run
	run.unsubscribe = p.bus.Subscribe(func(n collab.Notification) {
		if run.cancelling {
			_, replied := run.match(n)
			if replied || p.aborted(n) {
				run.unsubscribe()
				inv.ConfirmCancel()
			}
			return
		}
		if r, ok := run.match(n); ok {
			run.unsubscribe()
			inv.Complete(r)
		}
	})
}

func (p *request) Cancel(inv *procedure.Invocation) {
	run, _ := inv.Value.(*requestRun)
	if run == nil {
		inv.ConfirmCancel()
		return
	}
	if p.abort == nil {
		run.unsubscribe()
		inv.ConfirmCancel()
		return
	}
	run.cancelling = true
	p.abort()
}

func resultOf(s collab.Status) procedure.Result {
	if s == collab.StatusSuccess {
		return procedure.Success
	}
	return procedure.Failure
}

func (e *Earbud) perfRequest() procedure.Procedure {
	return procedure.Func(func(inv *procedure.Invocation) {
		e.collab.Power.RequestPerformance()
		inv.Complete(procedure.Success)
	})
}

func (e *Earbud) perfRelinquish() procedure.Procedure {
	return procedure.Func(func(inv *procedure.Invocation) {
		e.collab.Power.RelinquishPerformance()
		inv.Complete(procedure.Success)
	})
}

// enableAdvertising uses the "params" payload field, falling back to the
// configured connectable parameter set. Once shutdown is being prepared
// the device stays silent and the step succeeds without advertising.
func (e *Earbud) enableAdvertising() procedure.Procedure {
	return &request{
		bus: e.bus,
		begin: func(inv *procedure.Invocation) matcher {
			if e.state.ShuttingDown {
				return nil
			}
			params := collab.ParamSet(inv.Param.String("params"))
			if params == "" {
				params = e.behaviour.AdvertisingParams()
			}
			e.collab.Advertising.Enable(params)
			return func(n collab.Notification) (procedure.Result, bool) {
				if c, ok := n.(collab.AdvertisingConfirm); ok && c.Enabled {
					return resultOf(c.Status), true
				}
				return 0, false
			}
		},
	}
}

func (e *Earbud) disableAdvertising() procedure.Procedure {
	return &request{
		bus: e.bus,
		begin: func(inv *procedure.Invocation) matcher {
			if !e.state.Advertising {
				return nil
			}
			e.collab.Advertising.Disable()
			return func(n collab.Notification) (procedure.Result, bool) {
				if c, ok := n.(collab.AdvertisingConfirm); ok && !c.Enabled {
					return resultOf(c.Status), true
				}
				return 0, false
			}
		},
	}
}

func (e *Earbud) pairPeer() procedure.Procedure {
	return &request{
		bus: e.bus,
		begin: func(inv *procedure.Invocation) matcher {
			e.collab.Peer.Pair(e.behaviour.Timeouts.Pair())
			return func(n collab.Notification) (procedure.Result, bool) {
				if r, ok := n.(collab.PairResult); ok {
					return resultOf(r.Status), true
				}
				return 0, false
			}
		},
		abort: func() { e.collab.Peer.CancelPair() },
		aborted: func(n collab.Notification) bool {
			_, ok := n.(collab.PairCancelled)
			return ok
		},
	}
}

// findRole succeeds with any role; the role itself is applied to State by
// the notification monitor.
func (e *Earbud) findRole() procedure.Procedure {
	return &request{
		bus: e.bus,
		begin: func(inv *procedure.Invocation) matcher {
			e.collab.Peer.FindRole(e.behaviour.Timeouts.FindRole())
			return func(n collab.Notification) (procedure.Result, bool) {
				if _, ok := n.(collab.RoleResult); ok {
					return procedure.Success, true
				}
				return 0, false
			}
		},
		abort: func() { e.collab.Peer.CancelFindRole() },
		aborted: func(n collab.Notification) bool {
			_, ok := n.(collab.FindRoleCancelled)
			return ok
		},
	}
}

func (e *Earbud) connectPeer() procedure.Procedure {
	return &request{
		bus: e.bus,
		begin: func(inv *procedure.Invocation) matcher {
			if e.state.PeerConnected {
				return nil
			}
			e.collab.Connection.ConnectPeer()
			return func(n collab.Notification) (procedure.Result, bool) {
				switch n.(type) {
				case collab.PeerConnected:
					return procedure.Success, true
				case collab.PeerDisconnected:
					return procedure.Failure, true
				}
				return 0, false
			}
		},
	}
}

// connectProfiles connects the "profiles" payload set (default: the
// configured peer profiles) and waits until every requested flag has been
// confirmed. Any failed flag fails the run.
func (e *Earbud) connectProfiles() procedure.Procedure {
	return &request{
		bus: e.bus,
		begin: func(inv *procedure.Invocation) matcher {
			want := e.behaviour.Profiles()
			if names := inv.Param.StringList("profiles"); len(names) > 0 {
				if parsed, err := collab.ParseProfiles(names); err == nil {
					want = parsed
				}
			}
			remaining := want.Without(e.state.ProfilesConnected)
			if remaining == 0 {
				return nil
			}
			e.collab.Profiles.Connect(remaining)

			failed := false
			return func(n collab.Notification) (procedure.Result, bool) {
				c, ok := n.(collab.ProfileConfirm)
				if !ok || !c.Connected || !remaining.Has(c.Profile) {
					return 0, false
				}
				remaining = remaining.Without(c.Profile)
				if c.Status != collab.StatusSuccess {
					failed = true
				}
				if remaining != 0 {
					return 0, false
				}
				if failed {
					return procedure.Failure, true
				}
				return procedure.Success, true
			}
		},
	}
}

func (e *Earbud) disconnectAll() procedure.Procedure {
	return &request{
		bus: e.bus,
		begin: func(inv *procedure.Invocation) matcher {
			e.collab.Connection.DisconnectAll()
			return func(n collab.Notification) (procedure.Result, bool) {
				if c, ok := n.(collab.DisconnectAllConfirm); ok {
					return resultOf(c.Status), true
				}
				return 0, false
			}
		},
	}
}

// setStandalone flips a flag. It has no asynchronous dependency, but its
// completion is still delivered on a later tick.
func (e *Earbud) setStandalone() procedure.Procedure {
	return procedure.Func(func(inv *procedure.Invocation) {
		e.state.Standalone = true
		inv.Complete(procedure.Success)
	})
}
