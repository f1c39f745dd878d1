package earbud

import "github.com/roach88/duet/internal/collab"

// State is what the device currently knows about itself and its peer.
// It is updated only by collaborator notifications and by procedures, and
// read by rule predicates.
type State struct {
	Paired            bool
	Role              collab.Role
	RoleKnown         bool
	PeerConnected     bool
	ProfilesConnected collab.ProfileSet
	Advertising       bool
	Standalone        bool
	ShuttingDown      bool
}

// IsPrimary reports whether the elected role leads the pair.
func (s State) IsPrimary() bool {
	return s.RoleKnown && (s.Role == collab.RolePrimary || s.Role == collab.RoleActingPrimary)
}
