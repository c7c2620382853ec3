// Package pdu implements the HCR wire format.
//
// Control and Data channel PDUs share a 6-byte big-endian header
// (PDU_ID, Transaction_ID, Parameter_Length) followed by Parameter_Length bytes
// of parameters. Notification channel PDUs carry only a 2-byte PDU_ID header;
// their length is the length of the channel SDU.
//
// The package is stateless. Request and reply bodies share a PDU_ID on the
// wire, so decoders take a Direction: clients decode replies, servers decode
// requests.
package pdu

import "fmt"

// PDUID identifies a Control or Notification channel PDU.
type PDUID uint16

// Control channel PDU IDs.
const (
	PDUCreditGrant                 PDUID = 0x0001
	PDUCreditRequest               PDUID = 0x0002
	PDUCreditReturn                PDUID = 0x0003
	PDUCreditQuery                 PDUID = 0x0004
	PDUGetLPTStatus                PDUID = 0x0005
	PDUGet1284ID                   PDUID = 0x0006
	PDUSoftReset                   PDUID = 0x0007
	PDUHardReset                   PDUID = 0x0008
	PDURegisterNotification        PDUID = 0x0009
	PDUNotificationConnectionAlive PDUID = 0x000A
)

// Notification channel PDU IDs.
const (
	// PDUNotification is the only defined Notification channel PDU.
	PDUNotification PDUID = 0x0001
)

// Vendor-specific PDU ID range, valid on either channel.
const (
	VendorSpecificMin PDUID = 0x8000
	VendorSpecificMax PDUID = 0xFFFF
)

// IsVendorSpecific returns true if the id is in the vendor-specific range.
func (p PDUID) IsVendorSpecific() bool {
	return p >= VendorSpecificMin
}

// String returns the Control channel name of the PDU id.
func (p PDUID) String() string {
	switch p {
	case PDUCreditGrant:
		return "CreditGrant"
	case PDUCreditRequest:
		return "CreditRequest"
	case PDUCreditReturn:
		return "CreditReturn"
	case PDUCreditQuery:
		return "CreditQuery"
	case PDUGetLPTStatus:
		return "GetLPTStatus"
	case PDUGet1284ID:
		return "Get1284ID"
	case PDUSoftReset:
		return "SoftReset"
	case PDUHardReset:
		return "HardReset"
	case PDURegisterNotification:
		return "RegisterNotification"
	case PDUNotificationConnectionAlive:
		return "NotificationConnectionAlive"
	}
	if p.IsVendorSpecific() {
		return fmt.Sprintf("VendorSpecific(0x%04X)", uint16(p))
	}
	return fmt.Sprintf("PDU(0x%04X)", uint16(p))
}

// IsControl returns true for the ten defined Control channel PDU ids.
func (p PDUID) IsControl() bool {
	return p >= PDUCreditGrant && p <= PDUNotificationConnectionAlive
}

// IsCredit returns true for the four credit management PDU ids.
func (p PDUID) IsCredit() bool {
	return p >= PDUCreditGrant && p <= PDUCreditQuery
}

// ResultCode is the status carried as the first parameter of every reply.
type ResultCode uint16

const (
	// ResultFeatureUnsupported indicates the PDU is not supported by the server.
	ResultFeatureUnsupported ResultCode = 0x0000

	// ResultSuccess indicates the request was carried out.
	ResultSuccess ResultCode = 0x0001

	// ResultCreditSynchronizationError indicates the peers disagree about credit.
	ResultCreditSynchronizationError ResultCode = 0x0002

	// ResultGenericFailure indicates any other failure.
	ResultGenericFailure ResultCode = 0xFFFF
)

// String returns a human-readable name for the result code.
func (r ResultCode) String() string {
	switch r {
	case ResultFeatureUnsupported:
		return "FeatureUnsupported"
	case ResultSuccess:
		return "Success"
	case ResultCreditSynchronizationError:
		return "CreditSynchronizationError"
	case ResultGenericFailure:
		return "GenericFailure"
	default:
		return fmt.Sprintf("Result(0x%04X)", uint16(r))
	}
}

// IsValid returns true if the result code is a defined value.
func (r ResultCode) IsValid() bool {
	switch r {
	case ResultFeatureUnsupported, ResultSuccess, ResultCreditSynchronizationError, ResultGenericFailure:
		return true
	default:
		return false
	}
}

// Direction tells the decoder which body layout a Control PDU uses.
type Direction int

const (
	// DirectionRequest is a client-originated PDU.
	DirectionRequest Direction = iota

	// DirectionReply is a server reply.
	DirectionReply
)

// String returns a human-readable name for the direction.
func (d Direction) String() string {
	switch d {
	case DirectionRequest:
		return "Request"
	case DirectionReply:
		return "Reply"
	default:
		return "Unknown"
	}
}

// LPTStatus is the IEEE 1284 parallel port status byte returned by GetLPTStatus.
type LPTStatus uint8

// LPT status bits.
const (
	// LPTPaperEmpty is set when the printer is out of paper.
	LPTPaperEmpty LPTStatus = 0x20

	// LPTSelect is set when the printer is on-line.
	LPTSelect LPTStatus = 0x10

	// LPTNotError is set when the printer has no error (nError is active low).
	LPTNotError LPTStatus = 0x08
)

// PaperEmpty reports the PaperEmpty bit.
func (s LPTStatus) PaperEmpty() bool { return s&LPTPaperEmpty != 0 }

// Selected reports the Select bit.
func (s LPTStatus) Selected() bool { return s&LPTSelect != 0 }

// Error reports whether the printer signals an error.
func (s LPTStatus) Error() bool { return s&LPTNotError == 0 }

// Wire format constants.
const (
	// ControlHeaderSize is PDU_ID (2) + Transaction_ID (2) + Parameter_Length (2).
	ControlHeaderSize = 6

	// NotificationHeaderSize is PDU_ID (2).
	NotificationHeaderSize = 2

	// MaxParameterLength is the largest body a Parameter_Length field can describe.
	MaxParameterLength = 0xFFFF

	// resultSize is the size of the ResultCode that starts every reply body.
	resultSize = 2
)
