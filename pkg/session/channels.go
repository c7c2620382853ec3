package session

import (
	"fmt"

	"github.com/backkem/hcrp/pkg/profile"
)

// OpenControl starts connecting the Control channel. Only a Client opens
// Control.
func (s *Session) OpenControl() error {
	if s.config.Role != profile.RoleClient {
		return ErrRoleViolation
	}
	return s.open(profile.ChannelControl)
}

// OpenData starts connecting the Data channel. Control must be Connected.
func (s *Session) OpenData() error {
	if !s.connected(profile.ChannelControl) {
		return ErrChannelNotReady
	}
	return s.open(profile.ChannelData)
}

// OpenNotification starts connecting the Notification channel. It does not
// depend on Control or Data, and either role may open it.
func (s *Session) OpenNotification() error {
	return s.open(profile.ChannelNotification)
}

func (s *Session) open(kind profile.ChannelKind) error {
	if s.channels[kind].state != profile.ChannelClosed {
		return ErrChannelBusy
	}
	s.setState(kind, profile.ChannelConnecting)
	s.channels[kind].originated = true

	if err := s.link.Connect(kind); err != nil {
		s.channels[kind] = channel{}
		return fmt.Errorf("session: connect %v: %w", kind, err)
	}
	return nil
}

// OnConnectConfirm completes an outgoing connect started by one of the
// Open calls.
func (s *Session) OnConnectConfirm(kind profile.ChannelKind, status profile.OpenStatus) {
	if !kind.IsValid() {
		return
	}
	ch := s.channels[kind]
	if ch.state != profile.ChannelConnecting || !ch.originated {
		if s.log != nil {
			s.log.Warnf("%v: unexpected connect confirm on %v channel (%v)", s.config.HCRID, kind, ch.state)
		}
		return
	}

	if status != profile.OpenSuccess {
		s.channels[kind] = channel{}
		if s.log != nil {
			s.log.Infof("%v: %v channel connect failed: %v", s.config.HCRID, kind, status)
		}
		s.emit(ChannelConnectFailed{Meta: s.meta(), Kind: kind, Status: status})
		if kind == profile.ChannelNotification {
			s.dropPendingNotification()
		}
		return
	}

	s.setState(kind, profile.ChannelConnected)
	s.emit(ChannelConnected{Meta: s.meta(), Kind: kind})

	if kind == profile.ChannelNotification && s.notify != nil {
		contextID := s.notify.contextID
		s.notify = nil
		if err := s.sendNotification(contextID); err != nil && s.log != nil {
			s.log.Warnf("%v: notification %d not sent: %v", s.config.HCRID, contextID, err)
		}
	}
}

// OnConnectRequest handles an incoming channel according to the connection
// mode. In ManualAccept mode a ConnectRequest event is emitted and the
// channel stays Connecting until RespondConnect.
func (s *Session) OnConnectRequest(kind profile.ChannelKind) error {
	if !kind.IsValid() {
		return fmt.Errorf("session: invalid channel kind %d", kind)
	}

	if reason := s.refuseIncoming(kind); reason != "" {
		if s.log != nil {
			s.log.Infof("%v: refusing %v channel: %s", s.config.HCRID, kind, reason)
		}
		return s.link.Respond(kind, false)
	}

	mode := s.config.ConnectionMode
	if s.config.Role == profile.RoleClient {
		mode = profile.ConnectionModeAutoAccept
	}

	switch mode {
	case profile.ConnectionModeAutoReject:
		return s.link.Respond(kind, false)
	case profile.ConnectionModeManualAccept:
		s.setState(kind, profile.ChannelConnecting)
		s.channels[kind].awaitingDecision = true
		s.emit(ConnectRequest{Meta: s.meta(), Kind: kind})
		return nil
	default:
		return s.accept(kind)
	}
}

// RespondConnect accepts or rejects an incoming channel announced by a
// ConnectRequest event.
func (s *Session) RespondConnect(kind profile.ChannelKind, accept bool) error {
	if !kind.IsValid() || !s.channels[kind].awaitingDecision {
		return ErrNoConnectRequest
	}
	s.channels[kind].awaitingDecision = false

	if !accept {
		s.channels[kind] = channel{}
		return s.link.Respond(kind, false)
	}
	if kind == profile.ChannelData && !s.connected(profile.ChannelControl) {
		s.channels[kind] = channel{}
		if err := s.link.Respond(kind, false); err != nil {
			return err
		}
		return ErrChannelNotReady
	}
	return s.accept(kind)
}

func (s *Session) refuseIncoming(kind profile.ChannelKind) string {
	switch {
	case s.channels[kind].state != profile.ChannelClosed:
		return "already open"
	case s.config.Role == profile.RoleClient && kind != profile.ChannelNotification:
		return "clients only accept notification channels"
	case kind == profile.ChannelData && !s.connected(profile.ChannelControl):
		return "control channel not connected"
	}
	return ""
}

func (s *Session) accept(kind profile.ChannelKind) error {
	if err := s.link.Respond(kind, true); err != nil {
		s.channels[kind] = channel{}
		return fmt.Errorf("session: accept %v: %w", kind, err)
	}
	s.channels[kind] = channel{}
	s.setState(kind, profile.ChannelConnected)
	s.emit(ChannelConnected{Meta: s.meta(), Kind: kind})
	return nil
}

// Close starts disconnecting a channel. Closing Control closes Data first
// and discards any pending transaction without waiting for its reply.
// Closing a channel that is already Closed does nothing.
func (s *Session) Close(kind profile.ChannelKind) error {
	if !kind.IsValid() {
		return fmt.Errorf("session: invalid channel kind %d", kind)
	}
	ch := s.channels[kind]
	if ch.state == profile.ChannelClosed || ch.state == profile.ChannelDisconnecting {
		return nil
	}

	var firstErr error
	switch kind {
	case profile.ChannelControl:
		if err := s.Close(profile.ChannelData); err != nil {
			firstErr = err
		}
		if tx, ok := s.tx.Abort(); ok && s.log != nil {
			s.log.Debugf("%v: discarded pending %v transaction %d", s.config.HCRID, tx.PDUID, tx.ID)
		}
		s.outstanding = nil
		s.inbound.Clear()
	case profile.ChannelData:
		s.ledger = s.ledger.Reset()
	case profile.ChannelNotification:
		s.dropPendingNotification()
	}

	if ch.awaitingDecision {
		s.channels[kind] = channel{}
		if err := s.link.Respond(kind, false); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}

	s.setState(kind, profile.ChannelDisconnecting)
	if err := s.link.Disconnect(kind); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("session: disconnect %v: %w", kind, err)
	}
	return firstErr
}

// OnDisconnected reports that the transport closed a channel, whether the
// close was local or remote. Losing Control drops Data as well and fails
// any pending transaction with a TransactionTimeout event.
func (s *Session) OnDisconnected(kind profile.ChannelKind) {
	if !kind.IsValid() || s.channels[kind].state == profile.ChannelClosed {
		return
	}
	s.channels[kind].originated = false
	s.channels[kind].awaitingDecision = false
	s.setState(kind, profile.ChannelClosed)
	s.emit(ChannelDisconnected{Meta: s.meta(), Kind: kind})

	switch kind {
	case profile.ChannelControl:
		if tx, ok := s.tx.Abort(); ok {
			s.outstanding = nil
			s.emit(TransactionTimeout{Meta: s.meta(), TransactionID: tx.ID, PDUID: tx.PDUID})
		}
		s.inbound.Clear()
		if s.channels[profile.ChannelData].state.IsOpen() {
			if err := s.link.Disconnect(profile.ChannelData); err != nil && s.log != nil {
				s.log.Warnf("%v: disconnect data: %v", s.config.HCRID, err)
			}
			s.OnDisconnected(profile.ChannelData)
		}
	case profile.ChannelData:
		s.ledger = s.ledger.Reset()
	case profile.ChannelNotification:
		s.dropPendingNotification()
	}
}

// HardReset closes all three channels at once and clears the credit ledger,
// any pending transaction or received request, and every notification
// registration. It applies whatever state the session is in.
func (s *Session) HardReset() {
	for _, kind := range profile.ChannelKinds {
		ch := s.channels[kind]
		if !ch.state.IsOpen() {
			continue
		}
		var err error
		if ch.awaitingDecision {
			err = s.link.Respond(kind, false)
		} else if ch.state != profile.ChannelDisconnecting {
			err = s.link.Disconnect(kind)
		}
		if err != nil && s.log != nil {
			s.log.Warnf("%v: hard reset %v: %v", s.config.HCRID, kind, err)
		}
		s.setState(kind, profile.ChannelDisconnecting)
		s.setState(kind, profile.ChannelClosed)
		s.channels[kind] = channel{}
		s.emit(ChannelDisconnected{Meta: s.meta(), Kind: kind})
	}

	s.ledger = s.ledger.Reset()
	s.tx.Abort()
	s.outstanding = nil
	s.inbound.Clear()
	s.registry.Clear()
	s.notify = nil

	if s.log != nil {
		s.log.Infof("%v: hard reset", s.config.HCRID)
	}
}
