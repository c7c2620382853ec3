package session

import (
	"fmt"

	"github.com/backkem/hcrp/pkg/pdu"
	"github.com/backkem/hcrp/pkg/profile"
)

// OnReceive processes one SDU received on a channel.
//
// Control SDUs are decoded as replies on a Client and as requests on a
// Server. Truncated or malformed PDUs are dropped with a DecodeFailed event.
// Data SDUs are charged against the receive credit. A Notification SDU is
// reported and then moves the Notification channel to Disconnecting, since
// the channel carries a single notification.
func (s *Session) OnReceive(kind profile.ChannelKind, data []byte) {
	if !kind.IsValid() || !s.connected(kind) {
		if s.log != nil {
			s.log.Warnf("%v: dropping %d bytes on %v channel (%v)", s.config.HCRID, len(data), kind, s.ChannelState(kind))
		}
		return
	}
	if s.log != nil {
		s.log.Tracef("%v: received on %v: %x", s.config.HCRID, kind, data)
	}

	switch kind {
	case profile.ChannelControl:
		s.receiveControl(data)
	case profile.ChannelData:
		s.receiveData(data)
	case profile.ChannelNotification:
		s.receiveNotification(data)
	}
}

func (s *Session) receiveControl(data []byte) {
	dir := pdu.DirectionRequest
	if s.config.Role == profile.RoleClient {
		dir = pdu.DirectionReply
	}

	p, err := pdu.DecodeControl(data, dir)
	if err != nil {
		s.decodeFailed(profile.ChannelControl, err)
		return
	}

	if s.config.Role == profile.RoleServer {
		s.handleRequest(p.TransactionID, p.Message)
		return
	}

	if unk, ok := p.Message.(pdu.Unknown); ok {
		s.decodeFailed(profile.ChannelControl, fmt.Errorf("session: unknown reply PDU 0x%04X", uint16(unk.ID)))
		return
	}
	s.handleReply(p.TransactionID, p.Message)
}

func (s *Session) receiveData(data []byte) {
	l, err := s.ledger.Absorb(len(data))
	if err != nil {
		s.decodeFailed(profile.ChannelData, fmt.Errorf("%w: %d bytes with %d granted", err, len(data), s.ledger.ReceiveCredit))
		return
	}
	s.ledger = l
	s.emit(DataReceived{Meta: s.meta(), Data: data})
}

func (s *Session) receiveNotification(data []byte) {
	m, err := pdu.DecodeNotification(data)
	if err != nil {
		s.decodeFailed(profile.ChannelNotification, err)
		return
	}

	ev := NotificationReceived{Meta: s.meta(), PDUID: m.PDUID()}
	switch n := m.(type) {
	case pdu.Notification:
		ev.ContextID = n.ContextID
		if _, err := s.registry.Notify(n.ContextID); err != nil && s.log != nil {
			s.log.Debugf("%v: notification for unregistered context %d", s.config.HCRID, n.ContextID)
		}
	case pdu.VendorNotification:
		ev.Data = n.Data
	case pdu.UnknownNotification:
		ev.Data = n.Body
	}
	s.emit(ev)
	s.setState(profile.ChannelNotification, profile.ChannelDisconnecting)
	if err := s.link.Disconnect(profile.ChannelNotification); err != nil && s.log != nil {
		s.log.Warnf("%v: disconnect notification: %v", s.config.HCRID, err)
	}
}

func (s *Session) decodeFailed(kind profile.ChannelKind, err error) {
	if s.log != nil {
		s.log.Warnf("%v: dropping %v PDU: %v", s.config.HCRID, kind, err)
	}
	s.emit(DecodeFailed{Meta: s.meta(), Kind: kind, Err: err})
}
