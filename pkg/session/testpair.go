package session

import (
	"time"

	"github.com/backkem/hcrp/pkg/profile"
)

// =============================================================================
// Exported Test Infrastructure
// =============================================================================

// TestPair wires a Client and a Server session back to back through an
// in-memory link with a manual clock. Link calls are queued and only
// delivered by Flush, so a call on one session never re-enters the other.
//
// Usage:
//
//	pair, _ := session.NewTestPair(session.TestPairConfig{})
//	pair.Connect(true)
//	pair.Client.CreditRequestRequest()
//	pair.Flush()
//	events := pair.Server.DrainEvents()
type TestPair struct {
	Client *Session
	Server *Session

	now   time.Time
	queue []func()

	// Dropped counts SDUs discarded because DropSends was set.
	Dropped int

	// DropSends discards every SDU instead of delivering it.
	DropSends bool
}

// TestPairConfig configures the sessions of a TestPair. Role, HCRID and Clock
// are filled in by NewTestPair.
type TestPairConfig struct {
	Client Config
	Server Config
}

type pairLink struct {
	pair   *TestPair
	client bool
}

// NewTestPair creates a Client and a Server with every channel Closed.
func NewTestPair(config TestPairConfig) (*TestPair, error) {
	p := &TestPair{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return p.now }

	config.Client.Role = profile.RoleClient
	config.Client.Clock = clock
	if config.Client.HCRID == 0 {
		config.Client.HCRID = 1
	}
	config.Server.Role = profile.RoleServer
	config.Server.Clock = clock
	if config.Server.HCRID == 0 {
		config.Server.HCRID = 2
	}

	var err error
	if p.Client, err = New(config.Client, &pairLink{pair: p, client: true}); err != nil {
		return nil, err
	}
	if p.Server, err = New(config.Server, &pairLink{pair: p}); err != nil {
		return nil, err
	}
	return p, nil
}

// Now returns the pair's clock.
func (p *TestPair) Now() time.Time { return p.now }

// Advance moves the clock forward and ticks both sessions.
func (p *TestPair) Advance(d time.Duration) {
	p.now = p.now.Add(d)
	p.Client.Tick(p.now)
	p.Server.Tick(p.now)
}

// Pending returns the number of queued link operations.
func (p *TestPair) Pending() int { return len(p.queue) }

// Step delivers one queued link operation and reports whether there was one.
func (p *TestPair) Step() bool {
	if len(p.queue) == 0 {
		return false
	}
	next := p.queue[0]
	p.queue = p.queue[1:]
	next()
	return true
}

// Flush delivers queued link operations, including any they cause, until
// the link is quiet.
func (p *TestPair) Flush() {
	for i := 0; i < 10000 && p.Step(); i++ {
	}
}

// Connect opens Control, and Data if withData is set, from the Client and
// flushes until both sides are Connected.
func (p *TestPair) Connect(withData bool) error {
	if err := p.Client.OpenControl(); err != nil {
		return err
	}
	p.Flush()
	if !p.Client.connected(profile.ChannelControl) {
		return ErrChannelNotReady
	}
	if withData {
		if err := p.Client.OpenData(); err != nil {
			return err
		}
		p.Flush()
		if !p.Client.connected(profile.ChannelData) {
			return ErrChannelNotReady
		}
	}
	return nil
}

func (l *pairLink) self() *Session {
	if l.client {
		return l.pair.Client
	}
	return l.pair.Server
}

func (l *pairLink) peer() *Session {
	if l.client {
		return l.pair.Server
	}
	return l.pair.Client
}

func (l *pairLink) Connect(kind profile.ChannelKind) error {
	l.pair.queue = append(l.pair.queue, func() {
		_ = l.peer().OnConnectRequest(kind)
	})
	return nil
}

func (l *pairLink) Respond(kind profile.ChannelKind, accept bool) error {
	status := profile.OpenConnectionRefused
	if accept {
		status = profile.OpenSuccess
	}
	l.pair.queue = append(l.pair.queue, func() {
		l.peer().OnConnectConfirm(kind, status)
	})
	return nil
}

func (l *pairLink) Send(kind profile.ChannelKind, data []byte) error {
	if l.pair.DropSends {
		l.pair.Dropped++
		return nil
	}
	buf := append([]byte(nil), data...)
	l.pair.queue = append(l.pair.queue, func() {
		l.peer().OnReceive(kind, buf)
	})
	return nil
}

func (l *pairLink) Disconnect(kind profile.ChannelKind) error {
	l.pair.queue = append(l.pair.queue, func() {
		l.self().OnDisconnected(kind)
		l.peer().OnDisconnected(kind)
	})
	return nil
}
