// Package profile holds the identifiers shared by every layer of the Hard Copy
// Cable Replacement (HCR) stack: session identifiers, roles, channel kinds and
// channel lifecycle states.
//
// An HCR session is made of three independent logical channels:
//   - Control: request/reply transactions (credit, status, reset, notification registration)
//   - Data: the print/scan byte stream, flow controlled by credit
//   - Notification: a single-shot channel the server opens to deliver one notification
package profile

import "fmt"

// HCRID identifies one logical HCR session owned by an engine.
// Zero is never allocated.
type HCRID uint32

// String returns the session id in the form used by log lines.
func (id HCRID) String() string {
	return fmt.Sprintf("hcr-%d", uint32(id))
}

// Role identifies which end of the profile a session plays.
//
// Clients (computers) originate every Control-channel request. Servers
// (printers, scanners) only ever reply.
type Role int

const (
	// RoleUnknown indicates an uninitialized role.
	RoleUnknown Role = iota

	// RoleClient is the side that drives the Control channel.
	RoleClient

	// RoleServer is the side that answers Control-channel requests.
	RoleServer
)

// String returns a human-readable name for the role.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "Client"
	case RoleServer:
		return "Server"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the role is a defined value.
func (r Role) IsValid() bool {
	return r == RoleClient || r == RoleServer
}

// ServiceType is the hard copy service a server exposes.
type ServiceType int

const (
	// ServiceTypeUnknown indicates an uninitialized service type.
	ServiceTypeUnknown ServiceType = iota

	// ServiceTypePrinter is the HCR Print service.
	ServiceTypePrinter

	// ServiceTypeScanner is the HCR Scan service.
	ServiceTypeScanner
)

// String returns a human-readable name for the service type.
func (s ServiceType) String() string {
	switch s {
	case ServiceTypePrinter:
		return "Printer"
	case ServiceTypeScanner:
		return "Scanner"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the service type is a defined value.
func (s ServiceType) IsValid() bool {
	return s == ServiceTypePrinter || s == ServiceTypeScanner
}

// ProfileUUID returns the 128-bit service class UUID for the service type.
// Returns an empty string for an unknown type.
func (s ServiceType) ProfileUUID() string {
	switch s {
	case ServiceTypePrinter:
		return UUIDHCRPrint
	case ServiceTypeScanner:
		return UUIDHCRScan
	default:
		return ""
	}
}

// ParseServiceType parses the lower-case names used in configuration files.
func ParseServiceType(s string) (ServiceType, bool) {
	switch s {
	case "printer", "print":
		return ServiceTypePrinter, true
	case "scanner", "scan":
		return ServiceTypeScanner, true
	default:
		return ServiceTypeUnknown, false
	}
}

// ConnectionMode controls how a server session answers incoming channel
// connection requests. Clients ignore it.
type ConnectionMode int

const (
	// ConnectionModeAutoAccept accepts every incoming channel.
	ConnectionModeAutoAccept ConnectionMode = iota

	// ConnectionModeAutoReject rejects every incoming channel.
	ConnectionModeAutoReject

	// ConnectionModeManualAccept asks the application for every incoming channel.
	ConnectionModeManualAccept
)

// String returns a human-readable name for the connection mode.
func (m ConnectionMode) String() string {
	switch m {
	case ConnectionModeAutoAccept:
		return "AutoAccept"
	case ConnectionModeAutoReject:
		return "AutoReject"
	case ConnectionModeManualAccept:
		return "ManualAccept"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the connection mode is a defined value.
func (m ConnectionMode) IsValid() bool {
	return m >= ConnectionModeAutoAccept && m <= ConnectionModeManualAccept
}

// ParseConnectionMode parses the names used in configuration files.
func ParseConnectionMode(s string) (ConnectionMode, bool) {
	switch s {
	case "auto-accept", "accept":
		return ConnectionModeAutoAccept, true
	case "auto-reject", "reject":
		return ConnectionModeAutoReject, true
	case "manual", "manual-accept":
		return ConnectionModeManualAccept, true
	default:
		return ConnectionModeAutoAccept, false
	}
}

// ChannelKind names one of the three logical channels of a session.
type ChannelKind int

const (
	// ChannelControl carries request/reply transactions.
	ChannelControl ChannelKind = iota

	// ChannelData carries the credit-controlled byte stream.
	ChannelData

	// ChannelNotification carries single-shot notifications.
	ChannelNotification
)

// ChannelKinds lists every channel kind in teardown order (Data before Control).
var ChannelKinds = [...]ChannelKind{ChannelData, ChannelControl, ChannelNotification}

// String returns a human-readable name for the channel kind.
func (k ChannelKind) String() string {
	switch k {
	case ChannelControl:
		return "Control"
	case ChannelData:
		return "Data"
	case ChannelNotification:
		return "Notification"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the channel kind is a defined value.
func (k ChannelKind) IsValid() bool {
	return k >= ChannelControl && k <= ChannelNotification
}

// ChannelState tracks the lifecycle of one logical channel.
//
// Every channel starts Closed and moves
// Closed → Connecting → Connected → Disconnecting → Closed.
type ChannelState int

const (
	// ChannelClosed indicates no transport connection exists.
	ChannelClosed ChannelState = iota

	// ChannelConnecting indicates a connection is being established.
	ChannelConnecting

	// ChannelConnected indicates the channel can carry PDUs.
	ChannelConnected

	// ChannelDisconnecting indicates a disconnect has been issued and not yet confirmed.
	ChannelDisconnecting
)

// String returns a human-readable name for the channel state.
func (s ChannelState) String() string {
	switch s {
	case ChannelClosed:
		return "Closed"
	case ChannelConnecting:
		return "Connecting"
	case ChannelConnected:
		return "Connected"
	case ChannelDisconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// IsOpen returns true for any state other than Closed.
func (s ChannelState) IsOpen() bool {
	return s != ChannelClosed
}

// ChannelID identifies a transport-level channel connection (the L2CAP CID
// for Bluetooth, a stream number for IP bridges).
type ChannelID uint32

// OpenStatus is the result reported with a channel connect confirmation.
type OpenStatus uint8

const (
	// OpenSuccess indicates the channel was established.
	OpenSuccess OpenStatus = 0x00

	// OpenConnectionTimeout indicates the remote did not answer in time.
	OpenConnectionTimeout OpenStatus = 0x01

	// OpenConnectionRefused indicates the remote rejected the channel.
	OpenConnectionRefused OpenStatus = 0x02

	// OpenUnknownError indicates any other failure.
	OpenUnknownError OpenStatus = 0x03
)

// String returns a human-readable name for the open status.
func (s OpenStatus) String() string {
	switch s {
	case OpenSuccess:
		return "Success"
	case OpenConnectionTimeout:
		return "ConnectionTimeout"
	case OpenConnectionRefused:
		return "ConnectionRefused"
	case OpenUnknownError:
		return "UnknownError"
	default:
		return fmt.Sprintf("OpenStatus(0x%02X)", uint8(s))
	}
}

// Service class UUIDs and default L2CAP PSMs.
const (
	// UUIDHCRPrint is the HCR Print service class UUID (0x1126).
	UUIDHCRPrint = "00001126-0000-1000-8000-00805f9b34fb"

	// UUIDHCRScan is the HCR Scan service class UUID (0x1127).
	UUIDHCRScan = "00001127-0000-1000-8000-00805f9b34fb"

	// UUIDHCRControl is the HCRP Control channel protocol UUID (0x0012).
	UUIDHCRControl = "00000012-0000-1000-8000-00805f9b34fb"

	// UUIDHCRData is the HCRP Data channel protocol UUID (0x0014).
	UUIDHCRData = "00000014-0000-1000-8000-00805f9b34fb"

	// UUIDHCRNotification is the HCRP Notification channel protocol UUID (0x0016).
	UUIDHCRNotification = "00000016-0000-1000-8000-00805f9b34fb"

	// DefaultControlPSM is the dynamic PSM used for the Control channel when none is configured.
	DefaultControlPSM uint16 = 0x1001

	// DefaultDataPSM is the dynamic PSM used for the Data channel when none is configured.
	DefaultDataPSM uint16 = 0x1003

	// DefaultNotificationPSM is the dynamic PSM used for the Notification channel.
	DefaultNotificationPSM uint16 = 0x1005

	// DefaultMTU is the L2CAP default signalling MTU, used when none is negotiated.
	DefaultMTU = 672
)
