package earbud

import "github.com/roach88/duet/internal/collab"

// Domain messages delivered to registered clients, alongside the
// lifecycle confirmations of package topology.

type PeerPairResult struct{ Status collab.Status }

type FindRoleResult struct {
	Status collab.Status
	Role   collab.Role
}

type ProfileConnectResult struct {
	Status   collab.Status
	Profiles collab.ProfileSet
}

type StandaloneResult struct{ Status collab.Status }

// RoleChanged is sent whenever the elected role changes.
type RoleChanged struct{ Role collab.Role }

func (PeerPairResult) Kind() string       { return "peer_pair_result" }
func (FindRoleResult) Kind() string       { return "find_role_result" }
func (ProfileConnectResult) Kind() string { return "profile_connect_result" }
func (StandaloneResult) Kind() string     { return "standalone_result" }
func (RoleChanged) Kind() string          { return "role_changed" }
