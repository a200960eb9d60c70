package fle

import "time"

// RawMessage is a single message pulled off the wire: the sender's sid and
// the undecoded payload bytes.
type RawMessage struct {
	Sid     string
	Payload []byte
}

// ConnectionManager is the transport collaborator FLE depends on but does
// not implement (spec §1, §6). internal/transport provides a gRPC-backed
// implementation; tests use an in-memory fake.
type ConnectionManager interface {
	// Send enqueues payload for delivery to sid. May block on a per-peer
	// send buffer but must not block indefinitely.
	Send(sid string, payload []byte) error
	// PollRecv waits up to timeout for the next inbound message, returning
	// (nil, nil) on timeout.
	PollRecv(timeout time.Duration) (*RawMessage, error)
	// HaveDelivered reports whether recent sends have actually reached
	// their peers. False triggers a reconnect-and-rebroadcast cycle in the
	// election loop.
	HaveDelivered() bool
	// ConnectAll (re)establishes connections to every configured peer.
	// Must return promptly; connecting happens in the background.
	ConnectAll()
	// Halt shuts the manager down, releasing resources and unblocking any
	// in-flight PollRecv.
	Halt()
}
