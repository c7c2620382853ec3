package pdu

import "errors"

// PDU codec errors.
var (
	// ErrTruncated is returned when a buffer is shorter than its header or
	// shorter than the header plus the declared Parameter_Length.
	ErrTruncated = errors.New("pdu: truncated")

	// ErrMalformed is returned when a known PDU's parameters are too short
	// for its fixed fields.
	ErrMalformed = errors.New("pdu: malformed parameters")

	// ErrBodyTooLarge is returned when a body does not fit a Parameter_Length field.
	ErrBodyTooLarge = errors.New("pdu: parameters exceed 65535 bytes")

	// ErrNotVendorSpecific is returned when a vendor message carries an id below 0x8000.
	ErrNotVendorSpecific = errors.New("pdu: id outside vendor-specific range")
)
