// Package session implements the HCR session state machine.
//
// A Session owns one HCR session: the three channel states, the Data channel
// credit ledger, the Control channel transaction manager and the
// notification registry. It is driven by three kinds of input:
//
//   - owner calls: open/close channels, Client requests, Server replies,
//     Data writes and notifications
//   - transport callbacks: connect requests and confirmations, received
//     SDUs and disconnects
//   - Tick, with a time supplied by the owner
//
// Every input runs to completion without blocking except for the Link calls
// it makes. Results are reported as Events, which accumulate until the owner
// calls DrainEvents. A Session is not safe for concurrent use; callers
// serialize access, typically with one lock per session.
package session

import (
	"time"

	"github.com/pion/logging"

	"github.com/backkem/hcrp/pkg/credit"
	"github.com/backkem/hcrp/pkg/notification"
	"github.com/backkem/hcrp/pkg/pdu"
	"github.com/backkem/hcrp/pkg/profile"
	"github.com/backkem/hcrp/pkg/transaction"
)

// Link is the transport surface a Session drives. Connect and Respond only
// start the operation; the outcome arrives later through OnConnectConfirm or
// OnDisconnected.
type Link interface {
	// Connect opens an outgoing channel.
	Connect(kind profile.ChannelKind) error

	// Respond accepts or rejects an incoming channel.
	Respond(kind profile.ChannelKind, accept bool) error

	// Send writes one SDU on a connected channel.
	Send(kind profile.ChannelKind, data []byte) error

	// Disconnect closes a channel.
	Disconnect(kind profile.ChannelKind) error
}

type channel struct {
	state profile.ChannelState

	// originated is true when this session opened the channel.
	originated bool

	// awaitingDecision is true while a ManualAccept connect waits for RespondConnect.
	awaitingDecision bool
}

type pendingNotification struct {
	contextID uint32
	deadline  time.Time
}

// Session is one HCR session.
type Session struct {
	config Config
	link   Link

	channels [3]channel

	ledger   credit.Ledger
	tx       *transaction.Manager
	inbound  *transaction.Inbound
	registry *notification.Registry

	// outstanding is the Client's pending request body, kept so the reply
	// can be applied.
	outstanding pdu.Message

	// notify is a Server notification waiting for its channel to connect.
	notify *pendingNotification

	events []Event

	log logging.LeveledLogger
}

// New creates a session with every channel Closed.
func New(config Config, link Link) (*Session, error) {
	if !config.Role.IsValid() {
		return nil, ErrInvalidRole
	}
	if link == nil {
		return nil, ErrNoLink
	}
	config.applyDefaults()

	s := &Session{
		config:   config,
		link:     link,
		tx:       transaction.NewManager(config.Role),
		inbound:  transaction.NewInbound(config.Role),
		registry: notification.NewRegistry(config.NotificationPolicy),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("session")
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() profile.HCRID { return s.config.HCRID }

// Role returns the session role.
func (s *Session) Role() profile.Role { return s.config.Role }

// ServiceType returns the service the session carries.
func (s *Session) ServiceType() profile.ServiceType { return s.config.ServiceType }

// ConnectionMode returns how incoming channels are handled.
func (s *Session) ConnectionMode() profile.ConnectionMode { return s.config.ConnectionMode }

// SetConnectionMode changes how future incoming channels are handled.
func (s *Session) SetConnectionMode(mode profile.ConnectionMode) {
	s.config.ConnectionMode = mode
}

// ChannelState returns the state of one channel.
func (s *Session) ChannelState(kind profile.ChannelKind) profile.ChannelState {
	if !kind.IsValid() {
		return profile.ChannelClosed
	}
	return s.channels[kind].state
}

// Ledger returns the current credit ledger.
func (s *Session) Ledger() credit.Ledger { return s.ledger }

// TransactionState returns the Control channel transaction state.
func (s *Session) TransactionState() transaction.State { return s.tx.State() }

// PendingRequest returns the request a Server has received and not answered.
func (s *Session) PendingRequest() (transaction.Request, bool) { return s.inbound.Peek() }

// Registration returns the notification registration for a context id.
func (s *Session) Registration(contextID uint32) (notification.Registration, bool) {
	return s.registry.Lookup(contextID)
}

// Registrations returns the number of notification registrations.
func (s *Session) Registrations() int { return s.registry.Len() }

// IsIdle reports whether every channel is Closed.
func (s *Session) IsIdle() bool {
	for _, ch := range s.channels {
		if ch.state.IsOpen() {
			return false
		}
	}
	return true
}

// DrainEvents returns the events accumulated since the last call.
func (s *Session) DrainEvents() []Event {
	events := s.events
	s.events = nil
	return events
}

func (s *Session) emit(ev Event) {
	s.events = append(s.events, ev)
}

func (s *Session) meta() Meta {
	return Meta{Session: s.config.HCRID}
}

func (s *Session) now() time.Time {
	return s.config.Clock()
}

func (s *Session) connected(kind profile.ChannelKind) bool {
	return s.channels[kind].state == profile.ChannelConnected
}

func (s *Session) setState(kind profile.ChannelKind, state profile.ChannelState) {
	old := s.channels[kind].state
	if old == state {
		return
	}
	s.channels[kind].state = state
	if s.log != nil {
		s.log.Debugf("%v %v channel %v -> %v", s.config.HCRID, kind, old, state)
	}
}
