// Package collab defines the external collaborators the orchestration core
// drives: the connection layer, advertising control, the peer pairing and
// role discovery service, profile connection and the power manager.
//
// Requests are fire-and-forget method calls. Every reply arrives later as a
// Notification published on a Bus, which delivers it on the dispatch loop.
package collab
