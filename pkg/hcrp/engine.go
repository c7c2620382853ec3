package hcrp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/hcrp/pkg/discovery"
	"github.com/backkem/hcrp/pkg/profile"
	"github.com/backkem/hcrp/pkg/session"
	"github.com/backkem/hcrp/pkg/transport"
)

// entry is one session in the table.
type entry struct {
	id   profile.HCRID
	role profile.Role

	mu           sync.Mutex // serializes every input to sess
	sess         *session.Session
	registration discovery.Registration
	closed       bool

	// Guarded by Engine.routesMu.
	peer  string
	chans [3]profile.ChannelID
}

// route maps a transport channel to the session channel it carries.
type route struct {
	id   profile.HCRID
	kind profile.ChannelKind
}

// Engine owns a set of HCR sessions and the transport they share.
//
// Each session has its own lock; transport callbacks for different sessions
// run in parallel. Protocol events and the engine's own SessionBound,
// SessionReleased and SessionClosed events are delivered in order per
// session on Events.
//
// Lock order: entry.mu, then routesMu, then mu.
type Engine struct {
	config Config
	tr     transport.Transport
	log    logging.LeveledLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[profile.HCRID]*entry
	nextID   profile.HCRID
	closed   bool

	routesMu sync.Mutex
	routes   map[profile.ChannelID]route

	ready chan struct{} // closed once tr is set

	eventsMu sync.Mutex
	queue    []session.Event
	wake     chan struct{}
	events   chan session.Event
	done     chan struct{}
	pumpDone chan struct{}
}

var _ transport.Handler = (*Engine)(nil)

// New creates an engine and its transport.
func New(config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	e := &Engine{
		config:   config,
		sessions: make(map[profile.HCRID]*entry),
		nextID:   1,
		routes:   make(map[profile.ChannelID]route),
		ready:    make(chan struct{}),
		wake:     make(chan struct{}, 1),
		events:   make(chan session.Event, config.EventBuffer),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		e.log = config.LoggerFactory.NewLogger("hcrp")
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	tr, err := config.Transport(e)
	if err != nil {
		e.cancel()
		return nil, fmt.Errorf("hcrp: create transport: %w", err)
	}
	e.tr = tr
	close(e.ready)

	go e.pump()
	return e, nil
}

// Events returns the event stream. It is closed by Close; events not yet
// received at that point are dropped.
func (e *Engine) Events() <-chan session.Event {
	return e.events
}

// Addr returns the transport's listening address, or nil.
func (e *Engine) Addr() net.Addr {
	return e.tr.Addr()
}

// OpenServer creates a server session that waits for a host to connect its
// Control channel.
func (e *Engine) OpenServer(opts ServerOptions) (profile.HCRID, error) {
	cfg := opts.Session
	cfg.Role = profile.RoleServer
	ent, err := e.open(cfg, "")
	if err != nil {
		return 0, err
	}

	if opts.Advertise && e.config.Registrar != nil {
		rec := discovery.ServiceRecord{
			Name:        opts.Name,
			ServiceType: cfg.ServiceType,
			DeviceID:    cfg.DeviceID,
			Port:        opts.Port,
		}.WithDefaultPSMs()
		if rec.Port == 0 {
			if addr, ok := e.tr.Addr().(*net.UDPAddr); ok {
				rec.Port = addr.Port
			}
		}
		reg, err := e.config.Registrar.Register(rec)
		if err != nil {
			e.CloseSession(ent.id)
			return 0, fmt.Errorf("hcrp: advertise %v: %w", ent.id, err)
		}
		ent.mu.Lock()
		ent.registration = reg
		ent.mu.Unlock()
	}

	if e.log != nil {
		e.log.Infof("%v: %v server open", ent.id, cfg.ServiceType)
	}
	return ent.id, nil
}

// OpenClient creates a client session for the server at peer. The session
// starts with every channel Closed; open Control with
// Session(id, (*session.Session).OpenControl).
func (e *Engine) OpenClient(peer string, cfg session.Config) (profile.HCRID, error) {
	if peer == "" {
		return 0, ErrNoPeer
	}
	cfg.Role = profile.RoleClient
	ent, err := e.open(cfg, peer)
	if err != nil {
		return 0, err
	}
	if e.log != nil {
		e.log.Infof("%v: %v client for %s open", ent.id, cfg.ServiceType, peer)
	}
	return ent.id, nil
}

func (e *Engine) open(cfg session.Config, peer string) (*entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	if len(e.sessions) >= e.config.MaxSessions {
		return nil, ErrSessionTableFull
	}

	id := e.allocateIDLocked()
	cfg.HCRID = id
	if cfg.Clock == nil {
		cfg.Clock = e.config.Clock
	}
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = e.config.LoggerFactory
	}

	ent := &entry{id: id, role: cfg.Role, peer: peer}
	s, err := session.New(cfg, &link{e: e, ent: ent})
	if err != nil {
		return nil, err
	}
	ent.sess = s
	e.sessions[id] = ent
	return ent, nil
}

// allocateIDLocked returns the next unused id, wrapping and skipping 0.
// The table is never full here, so the scan terminates.
func (e *Engine) allocateIDLocked() profile.HCRID {
	for {
		id := e.nextID
		e.nextID++
		if e.nextID == 0 {
			e.nextID = 1
		}
		if _, used := e.sessions[id]; !used {
			return id
		}
	}
}

func (e *Engine) lookup(id profile.HCRID) *entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessions[id]
}

// Session runs fn with exclusive access to the session, then publishes the
// events it produced. fn must not retain s.
func (e *Engine) Session(id profile.HCRID, fn func(s *session.Session) error) error {
	ent := e.lookup(id)
	if ent == nil {
		return ErrSessionNotFound
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.closed {
		return ErrSessionNotFound
	}
	err := fn(ent.sess)
	e.afterStep(ent)
	return err
}

// Sessions returns the ids of the open sessions in ascending order.
func (e *Engine) Sessions() []profile.HCRID {
	e.mu.RLock()
	ids := make([]profile.HCRID, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Peer returns the peer a session is bound to, or "" for a listening
// server session.
func (e *Engine) Peer(id profile.HCRID) (string, error) {
	ent := e.lookup(id)
	if ent == nil {
		return "", ErrSessionNotFound
	}
	e.routesMu.Lock()
	defer e.routesMu.Unlock()
	return ent.peer, nil
}

// Tick drives the timers of every session: request timeouts, registration
// expiry and notification callback deadlines.
func (e *Engine) Tick(now time.Time) {
	e.mu.RLock()
	entries := make([]*entry, 0, len(e.sessions))
	for _, ent := range e.sessions {
		entries = append(entries, ent)
	}
	e.mu.RUnlock()

	for _, ent := range entries {
		ent.mu.Lock()
		if !ent.closed {
			ent.sess.Tick(now)
			e.afterStep(ent)
		}
		ent.mu.Unlock()
	}
}

// CloseSession closes every channel of a session and removes it.
func (e *Engine) CloseSession(id profile.HCRID) error {
	e.mu.Lock()
	ent := e.sessions[id]
	delete(e.sessions, id)
	e.mu.Unlock()
	if ent == nil {
		return ErrSessionNotFound
	}
	return e.closeEntry(ent)
}

func (e *Engine) closeEntry(ent *entry) error {
	ent.mu.Lock()
	ent.sess.HardReset()
	e.publish(ent.sess.DrainEvents()...)
	e.publish(SessionClosed{Meta: session.Meta{Session: ent.id}})
	ent.closed = true
	reg := ent.registration
	ent.registration = nil
	ent.mu.Unlock()

	if e.log != nil {
		e.log.Infof("%v: closed", ent.id)
	}
	if reg != nil {
		return reg.Close()
	}
	return nil
}

// Close closes every session and the transport. A second call returns
// ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.closed = true
	entries := make([]*entry, 0, len(e.sessions))
	for _, ent := range e.sessions {
		entries = append(entries, ent)
	}
	e.sessions = make(map[profile.HCRID]*entry)
	e.mu.Unlock()

	var errs []error
	for _, ent := range entries {
		if err := e.closeEntry(ent); err != nil {
			errs = append(errs, err)
		}
	}

	e.cancel()
	if err := e.tr.Close(); err != nil {
		errs = append(errs, err)
	}

	close(e.done)
	<-e.pumpDone
	return errors.Join(errs...)
}

// afterStep publishes the session's events and releases a server session
// whose host has gone. Called with ent.mu held.
func (e *Engine) afterStep(ent *entry) {
	e.publish(ent.sess.DrainEvents()...)

	if ent.role != profile.RoleServer || !ent.sess.IsIdle() {
		return
	}
	e.routesMu.Lock()
	peer := ent.peer
	free := peer != "" && ent.chans == [3]profile.ChannelID{}
	if free {
		ent.peer = ""
	}
	e.routesMu.Unlock()

	if free {
		if e.log != nil {
			e.log.Infof("%v: released by %s", ent.id, peer)
		}
		e.publish(SessionReleased{Meta: session.Meta{Session: ent.id}, Peer: peer})
	}
}

func (e *Engine) publish(events ...session.Event) {
	if len(events) == 0 {
		return
	}
	e.eventsMu.Lock()
	e.queue = append(e.queue, events...)
	e.eventsMu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// pump moves queued events to the Events channel so that publishing never
// blocks a session.
func (e *Engine) pump() {
	defer close(e.pumpDone)
	defer close(e.events)

	for {
		select {
		case <-e.wake:
		case <-e.done:
			return
		}
		for {
			e.eventsMu.Lock()
			batch := e.queue
			e.queue = nil
			e.eventsMu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, ev := range batch {
				select {
				case e.events <- ev:
				case <-e.done:
					return
				}
			}
		}
	}
}
