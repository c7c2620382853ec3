package pdu

import "encoding/binary"

// ControlHeader is the fixed header of every Control and Data channel PDU.
type ControlHeader struct {
	// PDUID identifies the message.
	PDUID PDUID

	// TransactionID pairs a reply with its request.
	TransactionID uint16

	// ParameterLength is the number of body bytes following the header.
	ParameterLength uint16
}

// Encode serializes the header to a new 6-byte buffer.
func (h *ControlHeader) Encode() []byte {
	buf := make([]byte, ControlHeaderSize)
	h.EncodeTo(buf)
	return buf
}

// EncodeTo serializes the header into buf, which must hold at least
// ControlHeaderSize bytes. Returns the number of bytes written.
func (h *ControlHeader) EncodeTo(buf []byte) int {
	binary.BigEndian.PutUint16(buf[0:], uint16(h.PDUID))
	binary.BigEndian.PutUint16(buf[2:], h.TransactionID)
	binary.BigEndian.PutUint16(buf[4:], h.ParameterLength)
	return ControlHeaderSize
}

// Decode deserializes a header from data.
// Returns the number of bytes consumed.
func (h *ControlHeader) Decode(data []byte) (int, error) {
	if len(data) < ControlHeaderSize {
		return 0, ErrTruncated
	}
	h.PDUID = PDUID(binary.BigEndian.Uint16(data[0:]))
	h.TransactionID = binary.BigEndian.Uint16(data[2:])
	h.ParameterLength = binary.BigEndian.Uint16(data[4:])
	return ControlHeaderSize, nil
}

// Size returns the total PDU size described by the header.
func (h *ControlHeader) Size() int {
	return ControlHeaderSize + int(h.ParameterLength)
}

// NotificationHeader is the header of a Notification channel PDU.
type NotificationHeader struct {
	PDUID PDUID
}

// EncodeTo serializes the header into buf, which must hold at least
// NotificationHeaderSize bytes.
func (h *NotificationHeader) EncodeTo(buf []byte) int {
	binary.BigEndian.PutUint16(buf, uint16(h.PDUID))
	return NotificationHeaderSize
}

// Decode deserializes a notification header from data.
func (h *NotificationHeader) Decode(data []byte) (int, error) {
	if len(data) < NotificationHeaderSize {
		return 0, ErrTruncated
	}
	h.PDUID = PDUID(binary.BigEndian.Uint16(data))
	return NotificationHeaderSize, nil
}

// MaxBodyLen returns the largest Control PDU body that fits an SDU of the
// given MTU. Variable-length replies must be truncated to this length.
func MaxBodyLen(mtu int) int {
	if mtu <= ControlHeaderSize {
		return 0
	}
	n := mtu - ControlHeaderSize
	if n > MaxParameterLength {
		n = MaxParameterLength
	}
	return n
}

// MaxNotificationBodyLen returns the largest Notification PDU body that fits
// an SDU of the given MTU.
func MaxNotificationBodyLen(mtu int) int {
	if mtu <= NotificationHeaderSize {
		return 0
	}
	return mtu - NotificationHeaderSize
}
