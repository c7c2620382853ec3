package hcrp

import "errors"

// Package-level errors.
var (
	// ErrNoTransport is returned when Config.Transport is nil.
	ErrNoTransport = errors.New("hcrp: transport is required")

	// ErrClosed is returned when the engine has been closed.
	ErrClosed = errors.New("hcrp: engine closed")

	// ErrSessionNotFound is returned for an unknown or closed session id.
	ErrSessionNotFound = errors.New("hcrp: session not found")

	// ErrSessionTableFull is returned when MaxSessions sessions are open.
	ErrSessionTableFull = errors.New("hcrp: session table full")

	// ErrNoPeer is returned when a client session is opened without a peer,
	// or a server session tries to connect before a host bound it.
	ErrNoPeer = errors.New("hcrp: no peer")

	// ErrNoChannel is returned when a session refers to a channel the
	// transport has not opened for it.
	ErrNoChannel = errors.New("hcrp: no transport channel")
)
