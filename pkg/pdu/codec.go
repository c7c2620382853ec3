package pdu

import (
	"encoding/binary"
)

// ControlPDU is a decoded Control channel PDU.
type ControlPDU struct {
	TransactionID uint16
	Message       Message
}

// EncodeControl serializes a Control channel PDU.
// Returns ErrBodyTooLarge if the body does not fit Parameter_Length.
func EncodeControl(transactionID uint16, m Message) ([]byte, error) {
	if v, ok := m.(VendorSpecific); ok && !v.ID.IsVendorSpecific() {
		return nil, ErrNotVendorSpecific
	}

	n := m.bodyLen()
	if n > MaxParameterLength {
		return nil, ErrBodyTooLarge
	}

	header := ControlHeader{
		PDUID:           m.PDUID(),
		TransactionID:   transactionID,
		ParameterLength: uint16(n),
	}

	buf := make([]byte, ControlHeaderSize, ControlHeaderSize+n)
	header.EncodeTo(buf)
	return m.appendBody(buf), nil
}

// DecodeControl parses one Control channel PDU.
//
// A buffer shorter than the header, or shorter than the header plus the
// declared Parameter_Length, yields ErrTruncated. Bytes past the declared
// length are ignored. An unrecognised PDU id yields an Unknown message
// rather than an error.
func DecodeControl(data []byte, dir Direction) (ControlPDU, error) {
	var header ControlHeader
	if _, err := header.Decode(data); err != nil {
		return ControlPDU{}, err
	}
	if len(data) < header.Size() {
		return ControlPDU{}, ErrTruncated
	}

	body := data[ControlHeaderSize:header.Size()]
	out := ControlPDU{TransactionID: header.TransactionID}

	if header.PDUID.IsVendorSpecific() {
		out.Message = VendorSpecific{ID: header.PDUID, Dir: dir, Data: cloneBytes(body)}
		return out, nil
	}

	var (
		m   Message
		err error
	)
	if dir == DirectionReply {
		m, err = decodeReply(header.PDUID, body)
	} else {
		m, err = decodeRequest(header.PDUID, body)
	}
	if err != nil {
		return ControlPDU{}, err
	}
	if m == nil {
		m = Unknown{
			ID:            header.PDUID,
			TransactionID: header.TransactionID,
			Dir:           dir,
			Body:          cloneBytes(body),
		}
	}
	out.Message = m
	return out, nil
}

func decodeRequest(id PDUID, body []byte) (Message, error) {
	switch id {
	case PDUCreditGrant:
		v, err := u32At(body, 0)
		return CreditGrantRequest{Credit: v}, err
	case PDUCreditRequest:
		return CreditRequestRequest{}, nil
	case PDUCreditReturn:
		v, err := u32At(body, 0)
		return CreditReturnRequest{Credit: v}, err
	case PDUCreditQuery:
		v, err := u32At(body, 0)
		return CreditQueryRequest{Credit: v}, err
	case PDUGetLPTStatus:
		return GetLPTStatusRequest{}, nil
	case PDUGet1284ID:
		if len(body) < 4 {
			return nil, ErrMalformed
		}
		return Get1284IDRequest{
			Offset: binary.BigEndian.Uint16(body[0:]),
			Count:  binary.BigEndian.Uint16(body[2:]),
		}, nil
	case PDUSoftReset:
		return SoftResetRequest{}, nil
	case PDUHardReset:
		return HardResetRequest{}, nil
	case PDURegisterNotification:
		if len(body) < 9 {
			return nil, ErrMalformed
		}
		return RegisterNotificationRequest{
			Register:        body[0] != 0,
			ContextID:       binary.BigEndian.Uint32(body[1:]),
			CallbackTimeout: FromMillis(binary.BigEndian.Uint32(body[5:])),
		}, nil
	case PDUNotificationConnectionAlive:
		return NotificationConnectionAliveRequest{}, nil
	default:
		return nil, nil
	}
}

func decodeReply(id PDUID, body []byte) (Message, error) {
	if !id.IsControl() {
		return nil, nil
	}
	if len(body) < resultSize {
		return nil, ErrMalformed
	}

	result := ResultCode(binary.BigEndian.Uint16(body))
	rest := body[resultSize:]

	// Refusals may carry the result code alone.
	short := result != ResultSuccess && len(rest) == 0

	switch id {
	case PDUCreditGrant:
		return CreditGrantReply{Result: result}, nil
	case PDUCreditRequest, PDUCreditReturn, PDUCreditQuery:
		var credit uint32
		if !short {
			v, err := u32At(rest, 0)
			if err != nil {
				return nil, err
			}
			credit = v
		}
		switch id {
		case PDUCreditRequest:
			return CreditRequestReply{Result: result, Credit: credit}, nil
		case PDUCreditReturn:
			return CreditReturnReply{Result: result, Credit: credit}, nil
		default:
			return CreditQueryReply{Result: result, Credit: credit}, nil
		}
	case PDUGetLPTStatus:
		reply := GetLPTStatusReply{Result: result}
		if !short {
			if len(rest) < 1 {
				return nil, ErrMalformed
			}
			reply.Status = LPTStatus(rest[0])
		}
		return reply, nil
	case PDUGet1284ID:
		return Get1284IDReply{Result: result, ID: cloneBytes(rest)}, nil
	case PDUSoftReset:
		return SoftResetReply{Result: result}, nil
	case PDUHardReset:
		return HardResetReply{Result: result}, nil
	case PDURegisterNotification:
		reply := RegisterNotificationReply{Result: result}
		if !short {
			if len(rest) < 8 {
				return nil, ErrMalformed
			}
			reply.Timeout = FromMillis(binary.BigEndian.Uint32(rest[0:]))
			reply.CallbackTimeout = FromMillis(binary.BigEndian.Uint32(rest[4:]))
		}
		return reply, nil
	case PDUNotificationConnectionAlive:
		reply := NotificationConnectionAliveReply{Result: result}
		if !short {
			v, err := u32At(rest, 0)
			if err != nil {
				return nil, err
			}
			reply.TimeoutIncrement = FromMillis(v)
		}
		return reply, nil
	default:
		return nil, nil
	}
}

// NotificationMessage is one Notification channel PDU body.
type NotificationMessage interface {
	PDUID() PDUID
	bodyLen() int
	appendBody(b []byte) []byte
}

// Notification tells a registered client that its callback context fired.
type Notification struct {
	ContextID uint32
}

// VendorNotification is an opaque Notification channel PDU in the vendor range.
type VendorNotification struct {
	ID   PDUID
	Data []byte
}

// UnknownNotification is produced for an unrecognised Notification channel PDU id.
type UnknownNotification struct {
	ID   PDUID
	Body []byte
}

func (Notification) PDUID() PDUID          { return PDUNotification }
func (m VendorNotification) PDUID() PDUID  { return m.ID }
func (m UnknownNotification) PDUID() PDUID { return m.ID }

func (Notification) bodyLen() int          { return 4 }
func (m VendorNotification) bodyLen() int  { return len(m.Data) }
func (m UnknownNotification) bodyLen() int { return len(m.Body) }

func (m Notification) appendBody(b []byte) []byte {
	return binary.BigEndian.AppendUint32(b, m.ContextID)
}

func (m VendorNotification) appendBody(b []byte) []byte { return append(b, m.Data...) }

func (m UnknownNotification) appendBody(b []byte) []byte { return append(b, m.Body...) }

// EncodeNotification serializes a Notification channel PDU.
func EncodeNotification(m NotificationMessage) ([]byte, error) {
	if v, ok := m.(VendorNotification); ok && !v.ID.IsVendorSpecific() {
		return nil, ErrNotVendorSpecific
	}
	header := NotificationHeader{PDUID: m.PDUID()}
	buf := make([]byte, NotificationHeaderSize, NotificationHeaderSize+m.bodyLen())
	header.EncodeTo(buf)
	return m.appendBody(buf), nil
}

// DecodeNotification parses one Notification channel PDU. The whole buffer
// is the PDU; there is no length field.
func DecodeNotification(data []byte) (NotificationMessage, error) {
	var header NotificationHeader
	if _, err := header.Decode(data); err != nil {
		return nil, err
	}
	body := data[NotificationHeaderSize:]

	switch {
	case header.PDUID == PDUNotification:
		v, err := u32At(body, 0)
		if err != nil {
			return nil, err
		}
		return Notification{ContextID: v}, nil
	case header.PDUID.IsVendorSpecific():
		return VendorNotification{ID: header.PDUID, Data: cloneBytes(body)}, nil
	default:
		return UnknownNotification{ID: header.PDUID, Body: cloneBytes(body)}, nil
	}
}

func u32At(b []byte, off int) (uint32, error) {
	if len(b) < off+4 {
		return 0, ErrMalformed
	}
	return binary.BigEndian.Uint32(b[off:]), nil
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
