package session

import (
	"fmt"
	"time"

	"github.com/backkem/hcrp/pkg/notification"
	"github.com/backkem/hcrp/pkg/pdu"
	"github.com/backkem/hcrp/pkg/profile"
)

// DataWrite writes as much of data as the send credit allows and returns
// the number of bytes accepted, which may be less than len(data) and is
// zero when no credit is held. Writes are split into DataMTU-sized SDUs.
func (s *Session) DataWrite(data []byte) (int, error) {
	if !s.connected(profile.ChannelData) {
		return 0, ErrChannelNotReady
	}

	n, l := s.ledger.Consume(len(data))
	s.ledger = l

	sent := 0
	for sent < n {
		end := min(sent+s.config.DataMTU, n)
		if err := s.link.Send(profile.ChannelData, data[sent:end]); err != nil {
			s.ledger.SendCredit += uint32(n - sent)
			return sent, fmt.Errorf("session: data write: %w", err)
		}
		sent = end
	}
	if s.log != nil && n < len(data) {
		s.log.Debugf("%v: data write accepted %d of %d bytes", s.config.HCRID, n, len(data))
	}
	return sent, nil
}

// Notify delivers the notification for a registered context. A Server
// sends exactly one Notification PDU per registration until the Client
// keeps it alive; a consumed registration reports
// OutcomeConnectionAliveRequestNeeded and sends nothing. If the Notification
// channel is Closed it is opened first, and the PDU goes out once it
// connects; a channel that does not connect within the registration's
// callback timeout produces a NotificationUndelivered event on Tick. A
// notification that is never sent leaves the registration armed.
func (s *Session) Notify(contextID uint32) (notification.Outcome, error) {
	if s.config.Role != profile.RoleServer {
		return 0, ErrRoleViolation
	}

	ch := s.channels[profile.ChannelNotification]
	switch {
	case ch.state == profile.ChannelConnected && !ch.originated:
		return 0, ErrNotOriginator
	case ch.state == profile.ChannelDisconnecting, ch.awaitingDecision:
		return 0, ErrChannelBusy
	case ch.state == profile.ChannelConnecting && s.notify != nil:
		return 0, ErrChannelBusy
	}

	reg, ok := s.registry.Lookup(contextID)
	if !ok {
		return 0, notification.ErrNotRegistered
	}
	if !reg.Armed {
		return notification.OutcomeConnectionAliveRequestNeeded, nil
	}
	outcome := notification.OutcomeDelivered

	if ch.state == profile.ChannelConnected {
		return outcome, s.sendNotification(contextID)
	}

	s.notify = &pendingNotification{
		contextID: contextID,
		deadline:  s.now().Add(reg.CallbackTimeout),
	}
	if ch.state == profile.ChannelClosed {
		if err := s.open(profile.ChannelNotification); err != nil {
			s.notify = nil
			return outcome, err
		}
	}
	return outcome, nil
}

func (s *Session) sendNotification(contextID uint32) error {
	data, err := pdu.EncodeNotification(pdu.Notification{ContextID: contextID})
	if err != nil {
		return err
	}
	if err := s.link.Send(profile.ChannelNotification, data); err != nil {
		return fmt.Errorf("session: send notification: %w", err)
	}
	// The registration is spent only once the PDU is on the wire.
	if _, err := s.registry.Notify(contextID); err != nil && s.log != nil {
		s.log.Debugf("%v: context %d unregistered before delivery", s.config.HCRID, contextID)
	}
	if s.log != nil {
		s.log.Debugf("%v: delivered notification for context %d", s.config.HCRID, contextID)
	}

	s.setState(profile.ChannelNotification, profile.ChannelDisconnecting)
	if err := s.link.Disconnect(profile.ChannelNotification); err != nil {
		return fmt.Errorf("session: disconnect notification: %w", err)
	}
	return nil
}

func (s *Session) dropPendingNotification() {
	if s.notify == nil {
		return
	}
	contextID := s.notify.contextID
	s.notify = nil
	if s.log != nil {
		s.log.Infof("%v: notification for context %d not delivered", s.config.HCRID, contextID)
	}
	s.emit(NotificationUndelivered{Meta: s.meta(), ContextID: contextID})
}

// Tick runs the session timers against now: the Control request timeout,
// notification registration expiry and the callback timeout of a pending
// notification.
func (s *Session) Tick(now time.Time) {
	if tx, expired := s.tx.TimeoutCheck(now, s.config.RequestTimeout); expired {
		s.outstanding = nil
		if s.log != nil {
			s.log.Warnf("%v: %v request tid=%d timed out", s.config.HCRID, tx.PDUID, tx.ID)
		}
		s.emit(TransactionTimeout{Meta: s.meta(), TransactionID: tx.ID, PDUID: tx.PDUID})
	}

	for _, id := range s.registry.Tick(now) {
		s.emit(RegistrationExpired{Meta: s.meta(), ContextID: id})
	}

	if s.notify != nil && !now.Before(s.notify.deadline) {
		if s.channels[profile.ChannelNotification].state == profile.ChannelConnecting {
			if err := s.Close(profile.ChannelNotification); err != nil && s.log != nil {
				s.log.Warnf("%v: %v", s.config.HCRID, err)
			}
		}
		s.dropPendingNotification()
	}
}
