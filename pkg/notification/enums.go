// Package notification implements the HCR notification registry.
//
// A Client registers a callback context id with the Server over the Control
// channel. The Server keeps the registration until it expires or is removed,
// and may deliver exactly one Notification PDU for it before the Client must
// send a Notification Connection Alive request to re-arm it.
package notification

import "time"

// Outcome is the result of asking the registry to notify a context.
type Outcome int

const (
	// OutcomeDelivered indicates the registration was armed and one
	// Notification PDU may be sent.
	OutcomeDelivered Outcome = iota

	// OutcomeConnectionAliveRequestNeeded indicates the registration already
	// delivered its notification and waits for a Connection Alive request.
	OutcomeConnectionAliveRequestNeeded
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "Delivered"
	case OutcomeConnectionAliveRequestNeeded:
		return "ConnectionAliveRequestNeeded"
	default:
		return "Unknown"
	}
}

// Default grant limits.
const (
	// DefaultMaxNotificationTimeout caps how long a registration lives.
	DefaultMaxNotificationTimeout = 10 * time.Minute

	// DefaultMaxCallbackTimeout caps how long the Server waits to open the
	// Notification channel before giving up on a delivery.
	DefaultMaxCallbackTimeout = 30 * time.Second

	// DefaultMaxRegistrations is the number of registrations kept per session.
	DefaultMaxRegistrations = 16
)
