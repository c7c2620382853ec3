package session

import (
	"fmt"
	"time"

	"github.com/backkem/hcrp/pkg/credit"
	"github.com/backkem/hcrp/pkg/pdu"
	"github.com/backkem/hcrp/pkg/profile"
)

// CreditGrantRequest grants the Server n bytes of credit to send on the
// Data channel. The local ledger is updated when the Server's Success reply
// arrives.
func (s *Session) CreditGrantRequest(n uint32) error {
	if err := s.checkRequest(true); err != nil {
		return err
	}
	if _, err := s.ledger.Grant(n); err != nil {
		return err
	}
	return s.request(pdu.CreditGrantRequest{Credit: n})
}

// CreditRequestRequest asks the Server for credit to send on the Data channel.
func (s *Session) CreditRequestRequest() error {
	if err := s.checkRequest(true); err != nil {
		return err
	}
	return s.request(pdu.CreditRequestRequest{})
}

// CreditReturnRequest returns n bytes of unused send credit. Fails with
// credit.ErrInsufficientCredit if n exceeds the credit held.
func (s *Session) CreditReturnRequest(n uint32) error {
	if err := s.checkRequest(true); err != nil {
		return err
	}
	if _, err := s.ledger.Return(n); err != nil {
		return err
	}
	return s.request(pdu.CreditReturnRequest{Credit: n})
}

// CreditQueryRequest sends the local send credit to the Server, which
// compares it with what it has granted. The comparison is reported in a
// CreditQueried event; mismatches are never corrected automatically.
func (s *Session) CreditQueryRequest() error {
	if err := s.checkRequest(true); err != nil {
		return err
	}
	return s.request(pdu.CreditQueryRequest{Credit: s.ledger.SendCredit})
}

// GetLPTStatusRequest asks for the Server's parallel port status.
func (s *Session) GetLPTStatusRequest() error {
	if err := s.checkRequest(false); err != nil {
		return err
	}
	return s.request(pdu.GetLPTStatusRequest{})
}

// Get1284IDRequest asks for count bytes of the Server's IEEE 1284 device id
// starting at offset. Long ids need several requests.
func (s *Session) Get1284IDRequest(offset, count uint16) error {
	if err := s.checkRequest(false); err != nil {
		return err
	}
	return s.request(pdu.Get1284IDRequest{Offset: offset, Count: count})
}

// SoftResetRequest asks the Server to reset its protocol state. Channels are
// not affected.
func (s *Session) SoftResetRequest() error {
	if err := s.checkRequest(false); err != nil {
		return err
	}
	return s.request(pdu.SoftResetRequest{})
}

// HardResetRequest asks the Server to reset. A Success reply hard resets
// this session too.
func (s *Session) HardResetRequest() error {
	if err := s.checkRequest(false); err != nil {
		return err
	}
	return s.request(pdu.HardResetRequest{})
}

// RegisterNotificationRequest registers (or, with register false,
// unregisters) a callback context with the Server.
func (s *Session) RegisterNotificationRequest(register bool, contextID uint32, callbackTimeout time.Duration) error {
	if err := s.checkRequest(false); err != nil {
		return err
	}
	return s.request(pdu.RegisterNotificationRequest{
		Register:        register,
		ContextID:       contextID,
		CallbackTimeout: callbackTimeout,
	})
}

// NotificationConnectionAliveRequest re-arms the Client's registrations
// after a notification was delivered.
func (s *Session) NotificationConnectionAliveRequest() error {
	if err := s.checkRequest(false); err != nil {
		return err
	}
	return s.request(pdu.NotificationConnectionAliveRequest{})
}

// VendorSpecificRequest sends an opaque request with an id in 0x8000-0xFFFF.
func (s *Session) VendorSpecificRequest(id pdu.PDUID, data []byte) error {
	if err := s.checkRequest(false); err != nil {
		return err
	}
	if !id.IsVendorSpecific() {
		return pdu.ErrNotVendorSpecific
	}
	return s.request(pdu.VendorSpecific{ID: id, Dir: pdu.DirectionRequest, Data: data})
}

func (s *Session) checkRequest(needData bool) error {
	if s.config.Role != profile.RoleClient {
		return ErrRoleViolation
	}
	if !s.connected(profile.ChannelControl) {
		return ErrChannelNotReady
	}
	if needData && !s.connected(profile.ChannelData) {
		return ErrChannelNotReady
	}
	return nil
}

func (s *Session) request(m pdu.Message) error {
	tid, err := s.tx.Begin(m.PDUID(), s.now())
	if err != nil {
		return err
	}

	data, err := pdu.EncodeControl(tid, m)
	if err == nil && len(data) > s.config.ControlMTU {
		err = pdu.ErrBodyTooLarge
	}
	if err != nil {
		s.tx.Abort()
		return err
	}

	if err := s.link.Send(profile.ChannelControl, data); err != nil {
		s.tx.Abort()
		return fmt.Errorf("session: send %v request: %w", m.PDUID(), err)
	}
	s.outstanding = m

	if s.log != nil {
		s.log.Tracef("%v: sent %v request tid=%d: %x", s.config.HCRID, m.PDUID(), tid, data)
	}
	return nil
}

// handleReply applies a reply received by a Client.
func (s *Session) handleReply(tid uint16, m pdu.Message) {
	if _, err := s.tx.Complete(tid, m.PDUID()); err != nil {
		if s.log != nil {
			s.log.Warnf("%v: dropping stale %v reply tid=%d", s.config.HCRID, m.PDUID(), tid)
		}
		s.emit(StaleReply{Meta: s.meta(), TransactionID: tid, PDUID: m.PDUID()})
		return
	}
	req := s.outstanding
	s.outstanding = nil

	ctl := Control{Meta: s.meta(), Direction: pdu.DirectionReply, TransactionID: tid}
	if r, ok := m.(pdu.Reply); ok {
		ctl.Result = r.ResultCode()
	}
	ok := ctl.Result == pdu.ResultSuccess

	switch r := m.(type) {
	case pdu.CreditGrantReply:
		granted, _ := req.(pdu.CreditGrantRequest)
		if ok {
			s.applyLedger(s.ledger.Grant(granted.Credit))
		}
		s.emit(CreditGranted{Control: ctl, Credit: granted.Credit})

	case pdu.CreditRequestReply:
		if ok {
			s.applyLedger(s.ledger.AddSend(r.Credit))
		}
		s.emit(CreditRequested{Control: ctl, Credit: r.Credit})

	case pdu.CreditReturnReply:
		if ok {
			s.ledger, _ = s.ledger.Return(min(r.Credit, s.ledger.SendCredit))
		}
		s.emit(CreditReturned{Control: ctl, Credit: r.Credit})

	case pdu.CreditQueryReply:
		believed, _ := req.(pdu.CreditQueryRequest)
		q := credit.Query(believed.Credit, r.Credit)
		desync := ctl.Result == pdu.ResultCreditSynchronizationError || (ok && !q.Synchronized)
		if desync && s.log != nil {
			s.log.Warnf("%v: credit desynchronized: believed %d, server holds %d", s.config.HCRID, q.Believed, q.Authoritative)
		}
		s.emit(CreditQueried{
			Control:        ctl,
			Believed:       q.Believed,
			Authoritative:  q.Authoritative,
			Desynchronized: desync,
		})

	case pdu.GetLPTStatusReply:
		s.emit(LPTStatusRequested{Control: ctl, Status: r.Status})

	case pdu.Get1284IDReply:
		asked, _ := req.(pdu.Get1284IDRequest)
		s.emit(Get1284IDRequested{Control: ctl, Offset: asked.Offset, Count: asked.Count, ID: r.ID})

	case pdu.SoftResetReply:
		s.emit(SoftResetRequested{Control: ctl})

	case pdu.HardResetReply:
		s.emit(HardResetRequested{Control: ctl})
		if ok {
			s.HardReset()
		}

	case pdu.RegisterNotificationReply:
		asked, _ := req.(pdu.RegisterNotificationRequest)
		if ok {
			if asked.Register {
				s.registry.Record(asked.ContextID, r.Timeout, r.CallbackTimeout, s.now())
			} else {
				s.registry.Unregister(asked.ContextID)
			}
		}
		s.emit(RegisterNotificationRequested{
			Control:             ctl,
			Register:            asked.Register,
			ContextID:           asked.ContextID,
			NotificationTimeout: r.Timeout,
			CallbackTimeout:     r.CallbackTimeout,
		})

	case pdu.NotificationConnectionAliveReply:
		if ok {
			s.registry.KeepAlive(r.TimeoutIncrement, s.now())
		}
		s.emit(ConnectionAliveRequested{Control: ctl, TimeoutIncrement: r.TimeoutIncrement})

	case pdu.VendorSpecific:
		s.emit(VendorSpecificReply{Meta: s.meta(), TransactionID: tid, PDUID: r.ID, Data: r.Data})
	}
}

func (s *Session) applyLedger(l credit.Ledger, err error) {
	if err != nil {
		if s.log != nil {
			s.log.Warnf("%v: credit not applied: %v", s.config.HCRID, err)
		}
		return
	}
	s.ledger = l
}
