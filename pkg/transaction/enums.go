// Package transaction implements the HCR Control channel transaction discipline.
//
// A Control channel carries at most one outstanding request. The Client
// starts a transaction with Begin, and the matching reply (same
// Transaction_ID and PDU_ID) completes it. Replies that do not match are
// stale: they are reported and dropped without touching the pending
// transaction. A transaction left unanswered past the request timeout
// expires, after which a late reply is stale as well.
//
// Servers never originate Control traffic. On the Server side, Inbound holds
// the single request that was just received, so a reply can only be sent in
// direct response to it.
package transaction

import "time"

// State is the Control channel transaction state.
type State int

const (
	// StateIdle indicates no request is outstanding.
	StateIdle State = iota

	// StatePending indicates a request was sent and its reply is awaited.
	StatePending
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePending:
		return "Pending"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the state is a defined value.
func (s State) IsValid() bool {
	return s == StateIdle || s == StatePending
}

// DefaultRequestTimeout is the request timeout used when none is configured.
const DefaultRequestTimeout = 5 * time.Second
