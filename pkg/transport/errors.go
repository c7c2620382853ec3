package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed transport.
	ErrClosed = errors.New("transport: closed")

	// ErrInvalidAddress is returned when an invalid peer address is provided.
	ErrInvalidAddress = errors.New("transport: invalid address")

	// ErrNoHandler is returned when no channel handler is configured.
	ErrNoHandler = errors.New("transport: no channel handler configured")

	// ErrChannelNotFound is returned for a channel id the transport does not know.
	ErrChannelNotFound = errors.New("transport: channel not found")

	// ErrChannelNotOpen is returned when sending on a channel whose handshake
	// has not completed.
	ErrChannelNotOpen = errors.New("transport: channel not open")

	// ErrNotIncoming is returned by Respond for a channel this side opened.
	ErrNotIncoming = errors.New("transport: channel was not requested by the peer")

	// ErrMessageTooLarge is returned when an SDU exceeds MaxSDU.
	ErrMessageTooLarge = errors.New("transport: message too large")

	// ErrUnexpectedFrame is returned when a peer violates the channel handshake.
	ErrUnexpectedFrame = errors.New("transport: unexpected frame")
)
