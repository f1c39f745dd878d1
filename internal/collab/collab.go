package collab

import "time"

// Connection is the connection/session layer.
// Replies: PeerConnected, PeerDisconnected, DisconnectAllConfirm, RoleChanged.
type Connection interface {
	ConnectPeer()
	DisconnectAll()
}

// Advertising controls advertising and page scan.
// Replies: AdvertisingConfirm.
type Advertising interface {
	Enable(params ParamSet)
	Disable()
}

// PeerService pairs with the peer device and discovers roles.
// Replies: RoleResult, FindRoleCancelled, PairResult, PairCancelled.
type PeerService interface {
	FindRole(timeout time.Duration)
	CancelFindRole()
	Pair(timeout time.Duration)
	CancelPair()
}

// Profiles connects and disconnects peer profiles.
// Replies: one ProfileConfirm per requested flag.
type Profiles interface {
	Connect(profiles ProfileSet)
	Disconnect(profiles ProfileSet)
}

// Power is the power manager.
// Notifications: ShutdownPrepare.
type Power interface {
	RequestPerformance()
	RelinquishPerformance()
}

// Set bundles one implementation of every collaborator.
type Set struct {
	Connection  Connection
	Advertising Advertising
	Peer        PeerService
	Profiles    Profiles
	Power       Power
}
