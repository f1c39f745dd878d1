package earbud

import "github.com/roach88/duet/internal/ir"

// Events.
const (
	EventStart ir.EventID = iota
	EventStop
	EventStarted
	EventPeerUnpaired
	EventPeerPaired
	EventPairFailed
	EventRolePrimary
	EventRoleSecondary
	EventRoleStandalone
	EventFindRoleFailed
	EventPeerConnected
	EventPeerDisconnected
	EventProfilesConnected
	EventShutdownPrepare
	EventStandaloneRequested
	EventStopFailed
)

// Goals.
const (
	GoalConnectable ir.GoalID = iota + 1
	GoalPairPeer
	GoalFindRole
	GoalConnectPeerProfiles
	GoalBecomeStandalone
	GoalNoRoleIdle
	GoalStop
)

// roleEvents are mutually exclusive; raising one clears the others.
var roleEvents = ir.EventsOf(EventRolePrimary, EventRoleSecondary, EventRoleStandalone)

// NewCatalog names every event and goal.
func NewCatalog() *ir.Catalog {
	c := ir.NewCatalog()
	c.Event(EventStart, "start")
	c.Event(EventStop, "stop")
	c.Event(EventStarted, "started")
	c.Event(EventPeerUnpaired, "peer_unpaired")
	c.Event(EventPeerPaired, "peer_paired")
	c.Event(EventPairFailed, "pair_failed")
	c.Event(EventRolePrimary, "role_primary")
	c.Event(EventRoleSecondary, "role_secondary")
	c.Event(EventRoleStandalone, "role_standalone")
	c.Event(EventFindRoleFailed, "find_role_failed")
	c.Event(EventPeerConnected, "peer_connected")
	c.Event(EventPeerDisconnected, "peer_disconnected")
	c.Event(EventProfilesConnected, "profiles_connected")
	c.Event(EventShutdownPrepare, "shutdown_prepare")
	c.Event(EventStandaloneRequested, "standalone_requested")
	c.Event(EventStopFailed, "stop_failed")

	c.Goal(GoalConnectable, "connectable")
	c.Goal(GoalPairPeer, "pair_peer")
	c.Goal(GoalFindRole, "find_role")
	c.Goal(GoalConnectPeerProfiles, "connect_peer_profiles")
	c.Goal(GoalBecomeStandalone, "become_standalone")
	c.Goal(GoalNoRoleIdle, "no_role_idle")
	c.Goal(GoalStop, "stop")
	return c
}
