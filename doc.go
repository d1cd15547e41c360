// Package eftl implements the client side of the eFTL message-bus wire
// protocol: a line-oriented JSON control protocol exchanged over a
// WebSocket transport (sub-protocol "v1.eftl.tibco.com").
//
// A Connection provides publish/subscribe messaging with
// acknowledgement, request/reply, and a remote key/value map, and
// transparently survives transient network failures by reconnecting,
// restoring subscriptions, and replaying unacknowledged requests.
//
// All user callbacks registered on a Connection are invoked from a
// single internal goroutine per Connection, so callbacks for a given
// Connection never run concurrently with one another.
package eftl
