package transport

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/backkem/hcrp/pkg/profile"
	"github.com/pion/logging"
)

// channel is one HCR channel riding on its own connection.
type channel struct {
	id       profile.ChannelID
	kind     profile.ChannelKind
	peer     string
	conn     io.ReadWriteCloser
	reader   *bufio.Reader
	incoming bool

	wmu sync.Mutex // serializes frame writes

	// Guarded by mux.mu.
	open    bool
	closing bool
}

// mux tracks the channels of a transport and runs their handshakes and read
// loops. Pipe endpoints and the QUIC transport differ only in how the
// underlying connections are produced.
type mux struct {
	handler Handler
	log     logging.LeveledLogger

	// drop, when set, is consulted before each Data frame is written.
	drop func() bool

	mu       sync.Mutex
	channels map[profile.ChannelID]*channel
	pending  map[io.Closer]struct{} // served connections not yet announced
	nextID   profile.ChannelID
	closed   bool

	wg sync.WaitGroup
}

func newMux(handler Handler, log logging.LeveledLogger) *mux {
	return &mux{
		handler:  handler,
		log:      log,
		channels: make(map[profile.ChannelID]*channel),
		pending:  make(map[io.Closer]struct{}),
		nextID:   1,
	}
}

func (m *mux) add(kind profile.ChannelKind, peer string, conn io.ReadWriteCloser) (*channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	for {
		id := m.nextID
		m.nextID++
		if m.nextID == 0 {
			m.nextID = 1
		}
		if _, used := m.channels[id]; !used {
			ch := &channel{id: id, kind: kind, peer: peer}
			if conn != nil {
				ch.conn = conn
				ch.incoming = true
			}
			m.channels[id] = ch
			return ch, nil
		}
	}
}

func (m *mux) remove(id profile.ChannelID) {
	m.mu.Lock()
	delete(m.channels, id)
	m.mu.Unlock()
}

func (m *mux) lookup(id profile.ChannelID) (*channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	ch, ok := m.channels[id]
	if !ok {
		return nil, ErrChannelNotFound
	}
	return ch, nil
}

// dial opens an outgoing channel in the background: produce the connection,
// send Open, wait for Status, then read SDUs until the channel ends.
func (m *mux) dial(ch *channel, connect func() (io.ReadWriteCloser, error)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		status, err := m.handshake(ch, connect)
		if err != nil || status != profile.OpenSuccess {
			m.mu.Lock()
			closing := ch.closing
			m.mu.Unlock()
			m.remove(ch.id)
			if ch.conn != nil {
				ch.conn.Close()
			}
			if m.log != nil {
				m.log.Debugf("channel %d (%v) to %s not opened: status=%v err=%v", ch.id, ch.kind, ch.peer, status, err)
			}
			if closing {
				m.handler.OnDisconnected(ch.id)
			} else {
				m.handler.OnConnectConfirm(ch.id, status)
			}
			return
		}

		m.handler.OnConnectConfirm(ch.id, profile.OpenSuccess)
		m.readLoop(ch)
	}()
}

func (m *mux) handshake(ch *channel, connect func() (io.ReadWriteCloser, error)) (profile.OpenStatus, error) {
	conn, err := connect()
	if err != nil {
		return profile.OpenConnectionTimeout, err
	}

	m.mu.Lock()
	ch.conn = conn
	ch.reader = newFrameReader(conn)
	closing := ch.closing
	m.mu.Unlock()
	if closing {
		return profile.OpenUnknownError, ErrClosed
	}

	if err := m.write(ch, opOpen, []byte{byte(ch.kind)}); err != nil {
		return profile.OpenUnknownError, err
	}
	op, payload, err := readFrame(ch.reader)
	if err != nil {
		return profile.OpenUnknownError, err
	}
	if op != opStatus || len(payload) != 1 {
		return profile.OpenUnknownError, fmt.Errorf("%w: %v during handshake", ErrUnexpectedFrame, op)
	}
	status := profile.OpenStatus(payload[0])
	if status == profile.OpenSuccess {
		m.mu.Lock()
		ch.open = !ch.closing
		m.mu.Unlock()
		if !ch.open {
			return profile.OpenUnknownError, ErrClosed
		}
	}
	return status, nil
}

// serve handles a connection opened by the peer: read Open, announce the
// channel, then read SDUs until the channel ends.
func (m *mux) serve(peer string, conn io.ReadWriteCloser) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.pending[conn] = struct{}{}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()

		reader := newFrameReader(conn)
		op, payload, err := readFrame(reader)
		m.mu.Lock()
		delete(m.pending, conn)
		m.mu.Unlock()
		if err != nil || op != opOpen || len(payload) != 1 || !profile.ChannelKind(payload[0]).IsValid() {
			if m.log != nil {
				m.log.Warnf("dropping connection from %s: bad open frame (op=%v err=%v)", peer, op, err)
			}
			conn.Close()
			return
		}

		ch, err := m.add(profile.ChannelKind(payload[0]), peer, conn)
		if err != nil {
			conn.Close()
			return
		}
		ch.reader = reader

		if m.log != nil {
			m.log.Debugf("channel %d (%v) requested by %s", ch.id, ch.kind, peer)
		}
		m.handler.OnConnectRequest(ch.id, ch.kind, peer)
		m.readLoop(ch)
	}()
}

func (m *mux) readLoop(ch *channel) {
	defer func() {
		ch.conn.Close()
		m.remove(ch.id)
		if m.log != nil {
			m.log.Debugf("channel %d (%v) closed", ch.id, ch.kind)
		}
		m.handler.OnDisconnected(ch.id)
	}()

	for {
		op, payload, err := readFrame(ch.reader)
		if err != nil {
			return
		}
		switch op {
		case opData:
			m.mu.Lock()
			open := ch.open
			m.mu.Unlock()
			if !open {
				if m.log != nil {
					m.log.Warnf("channel %d: data before open", ch.id)
				}
				continue
			}
			m.handler.OnReceive(ch.id, payload)
		case opClose:
			return
		default:
			if m.log != nil {
				m.log.Warnf("channel %d: unexpected %v frame", ch.id, op)
			}
		}
	}
}

func (m *mux) write(ch *channel, op frameOp, payload []byte) error {
	ch.wmu.Lock()
	defer ch.wmu.Unlock()
	return writeFrame(ch.conn, op, payload)
}

func (m *mux) respond(id profile.ChannelID, accept bool) error {
	ch, err := m.lookup(id)
	if err != nil {
		return err
	}
	if !ch.incoming {
		return ErrNotIncoming
	}

	status := profile.OpenConnectionRefused
	if accept {
		status = profile.OpenSuccess
	}
	m.mu.Lock()
	ch.open = accept
	m.mu.Unlock()

	if err := m.write(ch, opStatus, []byte{byte(status)}); err != nil {
		ch.conn.Close()
		return err
	}
	if !accept {
		return ch.conn.Close()
	}
	return nil
}

func (m *mux) send(id profile.ChannelID, data []byte) error {
	if len(data) > MaxSDU {
		return ErrMessageTooLarge
	}
	ch, err := m.lookup(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	open := ch.open
	m.mu.Unlock()
	if !open {
		return ErrChannelNotOpen
	}
	if m.drop != nil && m.drop() {
		return nil
	}
	return m.write(ch, opData, data)
}

func (m *mux) disconnect(id profile.ChannelID) error {
	ch, err := m.lookup(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	ch.closing = true
	ch.open = false
	conn := ch.conn
	m.mu.Unlock()

	if conn == nil {
		// Still dialing; the dial goroutine reports the disconnect.
		return nil
	}
	_ = m.write(ch, opClose, nil)
	return conn.Close()
}

// shutdown closes every channel, announcing the close to the peer, and
// refuses new ones. OnDisconnected is still reported for each channel.
func (m *mux) shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	var live []*channel
	for _, ch := range m.channels {
		ch.closing = true
		ch.open = false
		if ch.conn != nil {
			live = append(live, ch)
		}
	}
	pending := m.pending
	m.pending = make(map[io.Closer]struct{})
	m.mu.Unlock()

	for _, ch := range live {
		_ = m.write(ch, opClose, nil)
		ch.conn.Close()
	}
	for c := range pending {
		c.Close()
	}
}

// wait blocks until every channel goroutine has returned.
func (m *mux) wait() {
	m.wg.Wait()
}
