package session

import (
	"time"

	"github.com/backkem/hcrp/pkg/pdu"
	"github.com/backkem/hcrp/pkg/profile"
)

// Event is something a session reports to its owner. The concrete types are
// the structs in this file; switch on them with a type switch.
type Event interface {
	// SessionID returns the session the event belongs to.
	SessionID() profile.HCRID

	isEvent()
}

// Meta is embedded in every event.
type Meta struct {
	Session profile.HCRID
}

// SessionID returns the session the event belongs to.
func (m Meta) SessionID() profile.HCRID { return m.Session }

func (Meta) isEvent() {}

// Control is embedded in every Control channel transaction event.
//
// On a Server the event announces a received request (Direction is
// DirectionRequest) and the owner answers with the matching reply call. On a
// Client it reports the reply to the outstanding request (Direction is
// DirectionReply) and Result holds the reply's result code.
type Control struct {
	Meta
	Direction     pdu.Direction
	TransactionID uint16
	Result        pdu.ResultCode
}

// Channel lifecycle.

// ChannelConnected reports a channel reaching Connected.
type ChannelConnected struct {
	Meta
	Kind profile.ChannelKind
}

// ChannelConnectFailed reports an outgoing connect that did not succeed.
type ChannelConnectFailed struct {
	Meta
	Kind   profile.ChannelKind
	Status profile.OpenStatus
}

// ChannelDisconnected reports a channel returning to Closed.
type ChannelDisconnected struct {
	Meta
	Kind profile.ChannelKind
}

// ConnectRequest asks the owner to accept or reject an incoming channel with
// RespondConnect. Only emitted in ManualAccept mode.
type ConnectRequest struct {
	Meta
	Kind profile.ChannelKind
}

// Control channel transactions.

// CreditGranted carries the credit the Client granted the Server.
type CreditGranted struct {
	Control
	Credit uint32
}

// CreditRequested is a credit request on the Server, or on the Client the
// credit the Server granted.
type CreditRequested struct {
	Control
	Credit uint32
}

// CreditReturned carries the credit being returned (request) or the credit
// the Server took back (reply).
type CreditReturned struct {
	Control
	Credit uint32
}

// CreditQueried compares the Client's belief of its send credit with the
// Server's record of what it granted.
type CreditQueried struct {
	Control
	Believed       uint32
	Authoritative  uint32
	Desynchronized bool
}

// LPTStatusRequested is an LPT status request, or on the Client the status byte.
type LPTStatusRequested struct {
	Control
	Status pdu.LPTStatus
}

// Get1284IDRequested is a 1284 id request, or on the Client the id slice.
type Get1284IDRequested struct {
	Control
	Offset uint16
	Count  uint16
	ID     []byte
}

// SoftResetRequested signals a protocol state reset to the application.
type SoftResetRequested struct {
	Control
}

// HardResetRequested is a hard reset request, or its confirmation on the
// Client. A successful hard reset closes every channel.
type HardResetRequested struct {
	Control
}

// RegisterNotificationRequested is a (un)registration, or on the Client the
// timeouts the Server granted.
type RegisterNotificationRequested struct {
	Control
	Register            bool
	ContextID           uint32
	NotificationTimeout time.Duration
	CallbackTimeout     time.Duration
}

// ConnectionAliveRequested is a Notification Connection Alive request, or on
// the Client the timeout extension granted.
type ConnectionAliveRequested struct {
	Control
	TimeoutIncrement time.Duration
}

// VendorSpecificRequest is a vendor-specific request received by a Server.
type VendorSpecificRequest struct {
	Meta
	TransactionID uint16
	PDUID         pdu.PDUID
	Data          []byte
}

// VendorSpecificReply is the reply to a vendor-specific request.
type VendorSpecificReply struct {
	Meta
	TransactionID uint16
	PDUID         pdu.PDUID
	Data          []byte
}

// Data and notifications.

// DataReceived carries bytes read from the Data channel.
type DataReceived struct {
	Meta
	Data []byte
}

// NotificationReceived carries the one PDU delivered on a Notification channel.
type NotificationReceived struct {
	Meta
	PDUID     pdu.PDUID
	ContextID uint32
	Data      []byte
}

// Diagnostics.

// TransactionTimeout reports a request that was never answered, either
// because the request timeout passed or because Control was lost.
type TransactionTimeout struct {
	Meta
	TransactionID uint16
	PDUID         pdu.PDUID
}

// StaleReply reports a reply that matched no outstanding request.
type StaleReply struct {
	Meta
	TransactionID uint16
	PDUID         pdu.PDUID
}

// DecodeFailed reports a received PDU that was dropped.
type DecodeFailed struct {
	Meta
	Kind profile.ChannelKind
	Err  error
}

// RegistrationExpired reports a notification registration that timed out.
type RegistrationExpired struct {
	Meta
	ContextID uint32
}

// NotificationUndelivered reports a notification whose channel could not be
// connected within the callback timeout.
type NotificationUndelivered struct {
	Meta
	ContextID uint32
}
