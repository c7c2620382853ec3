package pdu

import (
	"encoding/binary"
	"math"
	"time"
)

// Message is one Control channel request or reply body.
type Message interface {
	// PDUID returns the id written in the header.
	PDUID() PDUID

	// Direction reports whether the message is a request or a reply.
	Direction() Direction

	bodyLen() int
	appendBody(b []byte) []byte
}

// Reply is a Control channel reply; every reply starts with a result code.
type Reply interface {
	Message
	ResultCode() ResultCode
}

// Credit management.

// CreditGrantRequest grants the server Credit bytes of Data channel credit.
type CreditGrantRequest struct {
	Credit uint32
}

// CreditGrantReply acknowledges a CreditGrantRequest.
type CreditGrantReply struct {
	Result ResultCode
}

// CreditRequestRequest asks the server for Data channel credit.
type CreditRequestRequest struct{}

// CreditRequestReply carries the credit the server decided to grant.
type CreditRequestReply struct {
	Result ResultCode
	Credit uint32
}

// CreditReturnRequest returns unused credit to the server.
type CreditReturnRequest struct {
	Credit uint32
}

// CreditReturnReply reports how much credit the server took back.
type CreditReturnReply struct {
	Result ResultCode
	Credit uint32
}

// CreditQueryRequest carries the client's belief of the credit the server holds.
type CreditQueryRequest struct {
	Credit uint32
}

// CreditQueryReply carries the server's own value.
type CreditQueryReply struct {
	Result ResultCode
	Credit uint32
}

// Status and identification.

// GetLPTStatusRequest asks for the parallel port status byte.
type GetLPTStatusRequest struct{}

// GetLPTStatusReply carries the parallel port status byte.
type GetLPTStatusReply struct {
	Result ResultCode
	Status LPTStatus
}

// Get1284IDRequest asks for Count bytes of the IEEE 1284 device id starting at Offset.
type Get1284IDRequest struct {
	Offset uint16
	Count  uint16
}

// Get1284IDReply carries a slice of the IEEE 1284 device id.
// A long id needs several requests; one reply never has to hold the whole string.
type Get1284IDReply struct {
	Result ResultCode
	ID     []byte
}

// Resets.

// SoftResetRequest asks the server to reset its protocol state.
type SoftResetRequest struct{}

// SoftResetReply acknowledges a soft reset.
type SoftResetReply struct {
	Result ResultCode
}

// HardResetRequest asks the server to tear down the whole session.
type HardResetRequest struct{}

// HardResetReply acknowledges a hard reset.
type HardResetReply struct {
	Result ResultCode
}

// Notification management.

// RegisterNotificationRequest registers (or unregisters) the client for notifications.
type RegisterNotificationRequest struct {
	Register        bool
	ContextID       uint32
	CallbackTimeout time.Duration
}

// RegisterNotificationReply carries the timeouts the server granted.
type RegisterNotificationReply struct {
	Result          ResultCode
	Timeout         time.Duration
	CallbackTimeout time.Duration
}

// NotificationConnectionAliveRequest keeps the client's registrations alive.
type NotificationConnectionAliveRequest struct{}

// NotificationConnectionAliveReply carries the granted timeout extension.
type NotificationConnectionAliveReply struct {
	Result           ResultCode
	TimeoutIncrement time.Duration
}

// VendorSpecific is an opaque Control PDU with an id in the vendor range.
type VendorSpecific struct {
	ID   PDUID
	Dir  Direction
	Data []byte
}

// StatusReply is a reply that carries only a result code. Servers send it to
// refuse PDUs they do not understand; it is valid for any PDU id.
type StatusReply struct {
	ID     PDUID
	Result ResultCode
}

// Unknown is produced by the decoder for a PDU id it does not recognise, so
// the caller can answer FeatureUnsupported with the same transaction id.
type Unknown struct {
	ID            PDUID
	TransactionID uint16
	Dir           Direction
	Body          []byte
}

func (CreditGrantRequest) PDUID() PDUID                 { return PDUCreditGrant }
func (CreditGrantReply) PDUID() PDUID                   { return PDUCreditGrant }
func (CreditRequestRequest) PDUID() PDUID               { return PDUCreditRequest }
func (CreditRequestReply) PDUID() PDUID                 { return PDUCreditRequest }
func (CreditReturnRequest) PDUID() PDUID                { return PDUCreditReturn }
func (CreditReturnReply) PDUID() PDUID                  { return PDUCreditReturn }
func (CreditQueryRequest) PDUID() PDUID                 { return PDUCreditQuery }
func (CreditQueryReply) PDUID() PDUID                   { return PDUCreditQuery }
func (GetLPTStatusRequest) PDUID() PDUID                { return PDUGetLPTStatus }
func (GetLPTStatusReply) PDUID() PDUID                  { return PDUGetLPTStatus }
func (Get1284IDRequest) PDUID() PDUID                   { return PDUGet1284ID }
func (Get1284IDReply) PDUID() PDUID                     { return PDUGet1284ID }
func (SoftResetRequest) PDUID() PDUID                   { return PDUSoftReset }
func (SoftResetReply) PDUID() PDUID                     { return PDUSoftReset }
func (HardResetRequest) PDUID() PDUID                   { return PDUHardReset }
func (HardResetReply) PDUID() PDUID                     { return PDUHardReset }
func (RegisterNotificationRequest) PDUID() PDUID        { return PDURegisterNotification }
func (RegisterNotificationReply) PDUID() PDUID          { return PDURegisterNotification }
func (NotificationConnectionAliveRequest) PDUID() PDUID { return PDUNotificationConnectionAlive }
func (NotificationConnectionAliveReply) PDUID() PDUID   { return PDUNotificationConnectionAlive }
func (m VendorSpecific) PDUID() PDUID                   { return m.ID }
func (m StatusReply) PDUID() PDUID                      { return m.ID }
func (m Unknown) PDUID() PDUID                          { return m.ID }

func (CreditGrantRequest) Direction() Direction                 { return DirectionRequest }
func (CreditGrantReply) Direction() Direction                   { return DirectionReply }
func (CreditRequestRequest) Direction() Direction               { return DirectionRequest }
func (CreditRequestReply) Direction() Direction                 { return DirectionReply }
func (CreditReturnRequest) Direction() Direction                { return DirectionRequest }
func (CreditReturnReply) Direction() Direction                  { return DirectionReply }
func (CreditQueryRequest) Direction() Direction                 { return DirectionRequest }
func (CreditQueryReply) Direction() Direction                   { return DirectionReply }
func (GetLPTStatusRequest) Direction() Direction                { return DirectionRequest }
func (GetLPTStatusReply) Direction() Direction                  { return DirectionReply }
func (Get1284IDRequest) Direction() Direction                   { return DirectionRequest }
func (Get1284IDReply) Direction() Direction                     { return DirectionReply }
func (SoftResetRequest) Direction() Direction                   { return DirectionRequest }
func (SoftResetReply) Direction() Direction                     { return DirectionReply }
func (HardResetRequest) Direction() Direction                   { return DirectionRequest }
func (HardResetReply) Direction() Direction                     { return DirectionReply }
func (RegisterNotificationRequest) Direction() Direction        { return DirectionRequest }
func (RegisterNotificationReply) Direction() Direction          { return DirectionReply }
func (NotificationConnectionAliveRequest) Direction() Direction { return DirectionRequest }
func (NotificationConnectionAliveReply) Direction() Direction   { return DirectionReply }
func (m VendorSpecific) Direction() Direction                   { return m.Dir }
func (StatusReply) Direction() Direction                        { return DirectionReply }
func (m Unknown) Direction() Direction                          { return m.Dir }

func (m CreditGrantReply) ResultCode() ResultCode                 { return m.Result }
func (m CreditRequestReply) ResultCode() ResultCode               { return m.Result }
func (m CreditReturnReply) ResultCode() ResultCode                { return m.Result }
func (m CreditQueryReply) ResultCode() ResultCode                 { return m.Result }
func (m GetLPTStatusReply) ResultCode() ResultCode                { return m.Result }
func (m Get1284IDReply) ResultCode() ResultCode                   { return m.Result }
func (m SoftResetReply) ResultCode() ResultCode                   { return m.Result }
func (m HardResetReply) ResultCode() ResultCode                   { return m.Result }
func (m RegisterNotificationReply) ResultCode() ResultCode        { return m.Result }
func (m NotificationConnectionAliveReply) ResultCode() ResultCode { return m.Result }
func (m StatusReply) ResultCode() ResultCode                      { return m.Result }

// Body sizes.

func (CreditGrantRequest) bodyLen() int                 { return 4 }
func (CreditGrantReply) bodyLen() int                   { return resultSize }
func (CreditRequestRequest) bodyLen() int               { return 0 }
func (CreditRequestReply) bodyLen() int                 { return resultSize + 4 }
func (CreditReturnRequest) bodyLen() int                { return 4 }
func (CreditReturnReply) bodyLen() int                  { return resultSize + 4 }
func (CreditQueryRequest) bodyLen() int                 { return 4 }
func (CreditQueryReply) bodyLen() int                   { return resultSize + 4 }
func (GetLPTStatusRequest) bodyLen() int                { return 0 }
func (GetLPTStatusReply) bodyLen() int                  { return resultSize + 1 }
func (Get1284IDRequest) bodyLen() int                   { return 4 }
func (m Get1284IDReply) bodyLen() int                   { return resultSize + len(m.ID) }
func (SoftResetRequest) bodyLen() int                   { return 0 }
func (SoftResetReply) bodyLen() int                     { return resultSize }
func (HardResetRequest) bodyLen() int                   { return 0 }
func (HardResetReply) bodyLen() int                     { return resultSize }
func (RegisterNotificationRequest) bodyLen() int        { return 1 + 4 + 4 }
func (RegisterNotificationReply) bodyLen() int          { return resultSize + 4 + 4 }
func (NotificationConnectionAliveRequest) bodyLen() int { return 0 }
func (NotificationConnectionAliveReply) bodyLen() int   { return resultSize + 4 }
func (m VendorSpecific) bodyLen() int                   { return len(m.Data) }
func (StatusReply) bodyLen() int                        { return resultSize }
func (m Unknown) bodyLen() int                          { return len(m.Body) }

// Body encoders.

func (m CreditGrantRequest) appendBody(b []byte) []byte {
	return binary.BigEndian.AppendUint32(b, m.Credit)
}

func (m CreditGrantReply) appendBody(b []byte) []byte {
	return appendResult(b, m.Result)
}

func (CreditRequestRequest) appendBody(b []byte) []byte { return b }

func (m CreditRequestReply) appendBody(b []byte) []byte {
	return binary.BigEndian.AppendUint32(appendResult(b, m.Result), m.Credit)
}

func (m CreditReturnRequest) appendBody(b []byte) []byte {
	return binary.BigEndian.AppendUint32(b, m.Credit)
}

func (m CreditReturnReply) appendBody(b []byte) []byte {
	return binary.BigEndian.AppendUint32(appendResult(b, m.Result), m.Credit)
}

func (m CreditQueryRequest) appendBody(b []byte) []byte {
	return binary.BigEndian.AppendUint32(b, m.Credit)
}

func (m CreditQueryReply) appendBody(b []byte) []byte {
	return binary.BigEndian.AppendUint32(appendResult(b, m.Result), m.Credit)
}

func (GetLPTStatusRequest) appendBody(b []byte) []byte { return b }

func (m GetLPTStatusReply) appendBody(b []byte) []byte {
	return append(appendResult(b, m.Result), byte(m.Status))
}

func (m Get1284IDRequest) appendBody(b []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, m.Offset)
	return binary.BigEndian.AppendUint16(b, m.Count)
}

func (m Get1284IDReply) appendBody(b []byte) []byte {
	return append(appendResult(b, m.Result), m.ID...)
}

func (SoftResetRequest) appendBody(b []byte) []byte { return b }

func (m SoftResetReply) appendBody(b []byte) []byte { return appendResult(b, m.Result) }

func (HardResetRequest) appendBody(b []byte) []byte { return b }

func (m HardResetReply) appendBody(b []byte) []byte { return appendResult(b, m.Result) }

func (m RegisterNotificationRequest) appendBody(b []byte) []byte {
	var register byte
	if m.Register {
		register = 1
	}
	b = append(b, register)
	b = binary.BigEndian.AppendUint32(b, m.ContextID)
	return binary.BigEndian.AppendUint32(b, Millis(m.CallbackTimeout))
}

func (m RegisterNotificationReply) appendBody(b []byte) []byte {
	b = appendResult(b, m.Result)
	b = binary.BigEndian.AppendUint32(b, Millis(m.Timeout))
	return binary.BigEndian.AppendUint32(b, Millis(m.CallbackTimeout))
}

func (NotificationConnectionAliveRequest) appendBody(b []byte) []byte { return b }

func (m NotificationConnectionAliveReply) appendBody(b []byte) []byte {
	return binary.BigEndian.AppendUint32(appendResult(b, m.Result), Millis(m.TimeoutIncrement))
}

func (m VendorSpecific) appendBody(b []byte) []byte { return append(b, m.Data...) }

func (m StatusReply) appendBody(b []byte) []byte { return appendResult(b, m.Result) }

func (m Unknown) appendBody(b []byte) []byte { return append(b, m.Body...) }

func appendResult(b []byte, r ResultCode) []byte {
	return binary.BigEndian.AppendUint16(b, uint16(r))
}

// Millis converts a duration to the 32-bit millisecond fields used on the wire,
// clamping negative values to zero and large values to the field maximum.
func Millis(d time.Duration) uint32 {
	ms := d.Milliseconds()
	if ms <= 0 {
		return 0
	}
	if ms > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ms)
}

// FromMillis converts a wire millisecond field to a duration.
func FromMillis(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
