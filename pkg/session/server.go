package session

import (
	"fmt"
	"time"

	"github.com/backkem/hcrp/pkg/credit"
	"github.com/backkem/hcrp/pkg/pdu"
	"github.com/backkem/hcrp/pkg/profile"
	"github.com/backkem/hcrp/pkg/transaction"
)

// handleRequest processes a request received by a Server. Unknown PDUs are
// answered FeatureUnsupported at once; credit requests without a Data
// channel are answered GenericFailure. Everything else is held until the
// owner calls the matching reply.
func (s *Session) handleRequest(tid uint16, m pdu.Message) {
	if unk, ok := m.(pdu.Unknown); ok {
		if s.log != nil {
			s.log.Debugf("%v: unsupported PDU 0x%04X tid=%d", s.config.HCRID, uint16(unk.ID), tid)
		}
		s.sendStatus(tid, unk.ID, pdu.ResultFeatureUnsupported)
		return
	}
	if m.PDUID().IsCredit() && !s.connected(profile.ChannelData) {
		s.sendStatus(tid, m.PDUID(), pdu.ResultGenericFailure)
		return
	}

	replaced, err := s.inbound.Accept(tid, m)
	if err != nil {
		return
	}
	if replaced && s.log != nil {
		s.log.Warnf("%v: request tid=%d replaces an unanswered request", s.config.HCRID, tid)
	}

	ctl := Control{Meta: s.meta(), Direction: pdu.DirectionRequest, TransactionID: tid}
	switch r := m.(type) {
	case pdu.CreditGrantRequest:
		s.emit(CreditGranted{Control: ctl, Credit: r.Credit})
	case pdu.CreditRequestRequest:
		s.emit(CreditRequested{Control: ctl})
	case pdu.CreditReturnRequest:
		s.emit(CreditReturned{Control: ctl, Credit: r.Credit})
	case pdu.CreditQueryRequest:
		q := credit.Query(r.Credit, s.ledger.ReceiveCredit)
		s.emit(CreditQueried{
			Control:        ctl,
			Believed:       q.Believed,
			Authoritative:  q.Authoritative,
			Desynchronized: !q.Synchronized,
		})
	case pdu.GetLPTStatusRequest:
		s.emit(LPTStatusRequested{Control: ctl})
	case pdu.Get1284IDRequest:
		s.emit(Get1284IDRequested{Control: ctl, Offset: r.Offset, Count: r.Count})
	case pdu.SoftResetRequest:
		s.emit(SoftResetRequested{Control: ctl})
	case pdu.HardResetRequest:
		s.emit(HardResetRequested{Control: ctl})
	case pdu.RegisterNotificationRequest:
		s.emit(RegisterNotificationRequested{
			Control:         ctl,
			Register:        r.Register,
			ContextID:       r.ContextID,
			CallbackTimeout: r.CallbackTimeout,
		})
	case pdu.NotificationConnectionAliveRequest:
		s.emit(ConnectionAliveRequested{Control: ctl})
	case pdu.VendorSpecific:
		s.emit(VendorSpecificRequest{Meta: s.meta(), TransactionID: tid, PDUID: r.ID, Data: r.Data})
	}
}

// CreditGrantReply answers a credit grant. On Success the granted credit is
// added to the local send credit.
func (s *Session) CreditGrantReply(result pdu.ResultCode) error {
	req, err := s.takeRequest(pdu.PDUCreditGrant)
	if err != nil {
		return err
	}
	var applyErr error
	if result == pdu.ResultSuccess {
		grant := req.Message.(pdu.CreditGrantRequest)
		l, err := s.ledger.AcceptGrant(grant.Credit)
		if err != nil {
			result, applyErr = pdu.ResultGenericFailure, err
		} else {
			s.ledger = l
		}
	}
	if err := s.reply(req.TransactionID, pdu.CreditGrantReply{Result: result}); err != nil {
		return err
	}
	return applyErr
}

// CreditRequestReply answers a credit request, granting the Client credit
// to send. On Success granted is added to the local receive credit.
func (s *Session) CreditRequestReply(result pdu.ResultCode, granted uint32) error {
	req, err := s.takeRequest(pdu.PDUCreditRequest)
	if err != nil {
		return err
	}
	var applyErr error
	if result == pdu.ResultSuccess {
		l, err := s.ledger.AddReceive(granted)
		if err != nil {
			result, granted, applyErr = pdu.ResultGenericFailure, 0, err
		} else {
			s.ledger = l
		}
	} else {
		granted = 0
	}
	if err := s.reply(req.TransactionID, pdu.CreditRequestReply{Result: result, Credit: granted}); err != nil {
		return err
	}
	return applyErr
}

// DecideCredit returns how much of a credit request to grant given a cap on
// outstanding receive credit. A zero capacity places no limit.
func (s *Session) DecideCredit(requested, capacity uint32) uint32 {
	return s.ledger.Decide(requested, capacity)
}

// CreditReturnReply answers a credit return. On Success the returned credit
// is taken back from the local receive credit and the amount taken is
// reported to the Client.
func (s *Session) CreditReturnReply(result pdu.ResultCode) error {
	req, err := s.takeRequest(pdu.PDUCreditReturn)
	if err != nil {
		return err
	}
	var taken uint32
	if result == pdu.ResultSuccess {
		ret := req.Message.(pdu.CreditReturnRequest)
		s.ledger, taken = s.ledger.AcceptReturn(ret.Credit)
	}
	return s.reply(req.TransactionID, pdu.CreditReturnReply{Result: result, Credit: taken})
}

// CreditQueryReply answers a credit query with the local receive credit.
// A Success result is sent as CreditSynchronizationError when the Client's
// value differs.
func (s *Session) CreditQueryReply(result pdu.ResultCode) error {
	req, err := s.takeRequest(pdu.PDUCreditQuery)
	if err != nil {
		return err
	}
	query := req.Message.(pdu.CreditQueryRequest)
	q := credit.Query(query.Credit, s.ledger.ReceiveCredit)
	if result == pdu.ResultSuccess && !q.Synchronized {
		result = pdu.ResultCreditSynchronizationError
		if s.log != nil {
			s.log.Warnf("%v: credit desynchronized: client believes %d, granted %d", s.config.HCRID, q.Believed, q.Authoritative)
		}
	}
	return s.reply(req.TransactionID, pdu.CreditQueryReply{Result: result, Credit: q.Authoritative})
}

// GetLPTStatusReply answers an LPT status request.
func (s *Session) GetLPTStatusReply(result pdu.ResultCode, status pdu.LPTStatus) error {
	req, err := s.takeRequest(pdu.PDUGetLPTStatus)
	if err != nil {
		return err
	}
	return s.reply(req.TransactionID, pdu.GetLPTStatusReply{Result: result, Status: status})
}

// Get1284IDReply answers a 1284 id request with the requested slice of the
// configured device id, truncated to fit the Control MTU.
func (s *Session) Get1284IDReply(result pdu.ResultCode) error {
	req, err := s.takeRequest(pdu.PDUGet1284ID)
	if err != nil {
		return err
	}
	var id []byte
	if result == pdu.ResultSuccess {
		asked := req.Message.(pdu.Get1284IDRequest)
		id = sliceDeviceID(s.config.DeviceID, asked.Offset, asked.Count, pdu.MaxBodyLen(s.config.ControlMTU)-2)
	}
	return s.reply(req.TransactionID, pdu.Get1284IDReply{Result: result, ID: id})
}

func sliceDeviceID(deviceID string, offset, count uint16, limit int) []byte {
	start := int(offset)
	if start >= len(deviceID) || limit <= 0 {
		return nil
	}
	end := min(start+int(count), len(deviceID), start+limit)
	return []byte(deviceID[start:end])
}

// SoftResetReply answers a soft reset. Channel state is not affected.
func (s *Session) SoftResetReply(result pdu.ResultCode) error {
	req, err := s.takeRequest(pdu.PDUSoftReset)
	if err != nil {
		return err
	}
	return s.reply(req.TransactionID, pdu.SoftResetReply{Result: result})
}

// HardResetReply answers a hard reset. After a Success reply is sent the
// session is hard reset.
func (s *Session) HardResetReply(result pdu.ResultCode) error {
	req, err := s.takeRequest(pdu.PDUHardReset)
	if err != nil {
		return err
	}
	err = s.reply(req.TransactionID, pdu.HardResetReply{Result: result})
	if result == pdu.ResultSuccess {
		s.HardReset()
	}
	return err
}

// RegisterNotificationReply answers a notification (un)registration. On
// Success the registration is stored with the timeouts the policy grants,
// and those timeouts are sent back. A full registry turns the reply into
// GenericFailure.
func (s *Session) RegisterNotificationReply(result pdu.ResultCode) error {
	req, err := s.takeRequest(pdu.PDURegisterNotification)
	if err != nil {
		return err
	}
	asked := req.Message.(pdu.RegisterNotificationRequest)

	reply := pdu.RegisterNotificationReply{Result: result}
	if result == pdu.ResultSuccess {
		if asked.Register {
			granted := s.registry.Register(asked.ContextID, 0, asked.CallbackTimeout, s.now())
			reply.Result = granted.Status
			reply.Timeout = granted.NotificationTimeout
			reply.CallbackTimeout = granted.CallbackTimeout
		} else {
			s.registry.Unregister(asked.ContextID)
		}
	}
	return s.reply(req.TransactionID, reply)
}

// NotificationConnectionAliveReply answers a Connection Alive request. On
// Success every registration is re-armed and its expiry extended by
// increment.
func (s *Session) NotificationConnectionAliveReply(result pdu.ResultCode, increment time.Duration) error {
	req, err := s.takeRequest(pdu.PDUNotificationConnectionAlive)
	if err != nil {
		return err
	}
	if result == pdu.ResultSuccess {
		s.registry.KeepAlive(increment, s.now())
	} else {
		increment = 0
	}
	return s.reply(req.TransactionID, pdu.NotificationConnectionAliveReply{Result: result, TimeoutIncrement: increment})
}

// VendorSpecificReply answers the held vendor-specific request.
func (s *Session) VendorSpecificReply(data []byte) error {
	if err := s.checkReply(); err != nil {
		return err
	}
	held, ok := s.inbound.Peek()
	if !ok || !held.Message.PDUID().IsVendorSpecific() {
		return ErrNoRequestPending
	}
	req, err := s.takeRequest(held.Message.PDUID())
	if err != nil {
		return err
	}
	return s.reply(req.TransactionID, pdu.VendorSpecific{ID: held.Message.PDUID(), Dir: pdu.DirectionReply, Data: data})
}

func (s *Session) checkReply() error {
	if s.config.Role != profile.RoleServer {
		return ErrRoleViolation
	}
	if !s.connected(profile.ChannelControl) {
		return ErrChannelNotReady
	}
	return nil
}

func (s *Session) takeRequest(id pdu.PDUID) (transaction.Request, error) {
	if err := s.checkReply(); err != nil {
		return transaction.Request{}, err
	}
	req, err := s.inbound.Take(id)
	if err != nil {
		return transaction.Request{}, ErrNoRequestPending
	}
	return req, nil
}

func (s *Session) reply(tid uint16, m pdu.Message) error {
	data, err := pdu.EncodeControl(tid, m)
	if err != nil {
		return err
	}
	if err := s.link.Send(profile.ChannelControl, data); err != nil {
		return fmt.Errorf("session: send %v reply: %w", m.PDUID(), err)
	}
	if s.log != nil {
		s.log.Tracef("%v: sent %v reply tid=%d: %x", s.config.HCRID, m.PDUID(), tid, data)
	}
	return nil
}

func (s *Session) sendStatus(tid uint16, id pdu.PDUID, result pdu.ResultCode) {
	if err := s.reply(tid, pdu.StatusReply{ID: id, Result: result}); err != nil && s.log != nil {
		s.log.Warnf("%v: %v", s.config.HCRID, err)
	}
}
