package hcrp

import "github.com/backkem/hcrp/pkg/session"

// Engine events share the session.Event stream with protocol events.

// SessionBound reports a server session taking the Control channel of a
// host. Channels from other hosts are refused until it is released.
type SessionBound struct {
	session.Meta
	Peer string
}

// SessionReleased reports a server session returning to listening after
// every channel of its host closed.
type SessionReleased struct {
	session.Meta
	Peer string
}

// SessionClosed reports a session removed from the engine.
type SessionClosed struct {
	session.Meta
}
