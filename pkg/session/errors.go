package session

import "errors"

// Errors returned by the session package.
//
// Precondition failures are reported synchronously and nothing is sent to
// the remote peer.
var (
	// ErrRoleViolation is returned when a Server calls a request operation or
	// a Client calls a reply operation.
	ErrRoleViolation = errors.New("session: role violation")

	// ErrChannelNotReady is returned when an operation needs a channel that
	// is not Connected.
	ErrChannelNotReady = errors.New("session: channel not ready")

	// ErrChannelBusy is returned when opening a channel that is not Closed.
	ErrChannelBusy = errors.New("session: channel already open")

	// ErrNoRequestPending is returned by a reply operation when no matching
	// request was just received.
	ErrNoRequestPending = errors.New("session: no matching request pending")

	// ErrNotOriginator is returned when sending a Notification PDU on a
	// channel the session did not open.
	ErrNotOriginator = errors.New("session: notification channel opened by peer")

	// ErrNoConnectRequest is returned by RespondConnect when the channel has
	// no incoming connection awaiting a decision.
	ErrNoConnectRequest = errors.New("session: no connect request pending")

	// ErrInvalidRole is returned by New for an undefined role.
	ErrInvalidRole = errors.New("session: invalid role")

	// ErrNoLink is returned by New when no Link is supplied.
	ErrNoLink = errors.New("session: link is required")
)
