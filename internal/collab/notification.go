package collab

// Notification is a reply or unsolicited indication from a collaborator.
type Notification interface {
	Kind() string
}

type PeerConnected struct{}

type PeerDisconnected struct{}

type DisconnectAllConfirm struct {
	Status Status
}

// RoleChanged reports a role switch made by the connection layer itself.
type RoleChanged struct {
	Role Role
}

type AdvertisingConfirm struct {
	Enabled bool
	Status  Status
}

type RoleResult struct {
	Role Role
}

type FindRoleCancelled struct{}

type PairResult struct {
	Status Status
}

type PairCancelled struct{}

// ProfileConfirm answers one flag of a Connect or Disconnect request.
type ProfileConfirm struct {
	Profile   ProfileSet
	Connected bool
	Status    Status
}

type ShutdownPrepare struct{}

func (PeerConnected) Kind() string        { return "peer_connected" }
func (PeerDisconnected) Kind() string     { return "peer_disconnected" }
func (DisconnectAllConfirm) Kind() string { return "disconnect_all_confirm" }
func (RoleChanged) Kind() string          { return "role_changed" }
func (AdvertisingConfirm) Kind() string   { return "advertising_confirm" }
func (RoleResult) Kind() string           { return "role_result" }
func (FindRoleCancelled) Kind() string    { return "find_role_cancelled" }
func (PairResult) Kind() string           { return "pair_result" }
func (PairCancelled) Kind() string        { return "pair_cancelled" }
func (ProfileConfirm) Kind() string       { return "profile_confirm" }
func (ShutdownPrepare) Kind() string      { return "shutdown_prepare" }
