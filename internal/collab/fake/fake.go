// Package fake provides scriptable in-memory collaborators for tests and
// scenario runs.
package fake

import (
	"fmt"
	"time"

	"github.com/roach88/duet/internal/collab"
)

// Operation names recorded in Collaborators.Calls and used as Hold keys.
const (
	OpConnectPeer        = "connect_peer"
	OpDisconnectAll      = "disconnect_all"
	OpAdvertisingEnable  = "advertising_enable"
	OpAdvertisingDisable = "advertising_disable"
	OpFindRole           = "find_role"
	OpCancelFindRole     = "cancel_find_role"
	OpPair               = "pair"
	OpCancelPair         = "cancel_pair"
	OpProfilesConnect    = "profiles_connect"
	OpProfilesDisconnect = "profiles_disconnect"
	OpPerfRequest        = "perf_request"
	OpPerfRelinquish     = "perf_relinquish"
)

// Collaborators implements every collab interface. By default each request
// is answered at once (on the next loop tick) with the configured outcome.
// Operations named in Hold are recorded but never answered; the test then
// publishes the reply itself.
type Collaborators struct {
	Bus *collab.Bus

	Role              collab.Role
	PairStatus        collab.Status
	AdvertisingStatus collab.Status
	DisconnectStatus  collab.Status
	FailProfiles      collab.ProfileSet

	Hold  map[string]bool
	Calls []string

	// Performance counts outstanding performance requests.
	Performance int
}

// New creates collaborators answering on bus.
func New(bus *collab.Bus) *Collaborators {
	return &Collaborators{Bus: bus, Hold: map[string]bool{}}
}

// Set returns the collaborator bundle backed by c.
func (c *Collaborators) Set() collab.Set {
	return collab.Set{
		Connection:  connection{c},
		Advertising: advertising{c},
		Peer:        peer{c},
		Profiles:    profiles{c},
		Power:       power{c},
	}
}

// Called reports how many times op was requested.
func (c *Collaborators) Called(op string) int {
	n := 0
	for _, call := range c.Calls {
		if call == op || len(call) > len(op) && call[:len(op)+1] == op+"(" {
			n++
		}
	}
	return n
}

func (c *Collaborators) call(op string, arg any) bool {
	if arg != nil {
		c.Calls = append(c.Calls, fmt.Sprintf("%s(%v)", op, arg))
	} else {
		c.Calls = append(c.Calls, op)
	}
	return !c.Hold[op]
}

func (c *Collaborators) reply(n collab.Notification) {
	c.Bus.Publish(n)
}

type connection struct{ c *Collaborators }

func (f connection) ConnectPeer() {
	if f.c.call(OpConnectPeer, nil) {
		f.c.reply(collab.PeerConnected{})
	}
}

func (f connection) DisconnectAll() {
	if f.c.call(OpDisconnectAll, nil) {
		f.c.reply(collab.DisconnectAllConfirm{Status: f.c.DisconnectStatus})
	}
}

type advertising struct{ c *Collaborators }

func (f advertising) Enable(params collab.ParamSet) {
	if f.c.call(OpAdvertisingEnable, params) {
		f.c.reply(collab.AdvertisingConfirm{Enabled: true, Status: f.c.AdvertisingStatus})
	}
}

func (f advertising) Disable() {
	if f.c.call(OpAdvertisingDisable, nil) {
		f.c.reply(collab.AdvertisingConfirm{Enabled: false, Status: f.c.AdvertisingStatus})
	}
}

type peer struct{ c *Collaborators }

func (f peer) FindRole(timeout time.Duration) {
	if f.c.call(OpFindRole, timeout) {
		f.c.reply(collab.RoleResult{Role: f.c.Role})
	}
}

func (f peer) CancelFindRole() {
	if f.c.call(OpCancelFindRole, nil) {
		f.c.reply(collab.FindRoleCancelled{})
	}
}

func (f peer) Pair(timeout time.Duration) {
	if f.c.call(OpPair, timeout) {
		f.c.reply(collab.PairResult{Status: f.c.PairStatus})
	}
}

func (f peer) CancelPair() {
	if f.c.call(OpCancelPair, nil) {
		f.c.reply(collab.PairCancelled{})
	}
}

type profiles struct{ c *Collaborators }

func (f profiles) Connect(set collab.ProfileSet) {
	if f.c.call(OpProfilesConnect, set) {
		f.confirm(set, true)
	}
}

func (f profiles) Disconnect(set collab.ProfileSet) {
	if f.c.call(OpProfilesDisconnect, set) {
		f.confirm(set, false)
	}
}

func (f profiles) confirm(set collab.ProfileSet, connected bool) {
	for _, p := range set.Members() {
		status := collab.StatusSuccess
		if f.c.FailProfiles.Has(p) {
			status = collab.StatusFailure
		}
		f.c.reply(collab.ProfileConfirm{Profile: p, Connected: connected, Status: status})
	}
}

type power struct{ c *Collaborators }

func (f power) RequestPerformance() {
	f.c.call(OpPerfRequest, nil)
	f.c.Performance++
}

func (f power) RelinquishPerformance() {
	f.c.call(OpPerfRelinquish, nil)
	f.c.Performance--
}
