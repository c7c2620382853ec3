package transport

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/backkem/hcrp/pkg/profile"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/test"
)

// NetworkCondition configures network behavior simulation.
// Use this to test protocol behavior under adverse network conditions.
type NetworkCondition struct {
	// DropRate is the probability of silently dropping an SDU (0.0 - 1.0).
	// Handshake and close frames are never dropped.
	DropRate float64

	// DelayMin is the minimum delay to add to each frame.
	DelayMin time.Duration

	// DelayMax is the maximum delay to add to each frame.
	// Actual delay is uniformly distributed between DelayMin and DelayMax.
	DelayMax time.Duration
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess enables automatic frame delivery in a background goroutine.
	// Default: true
	AutoProcess bool

	// ProcessInterval is how often the auto-processor checks for frames.
	// Default: 1ms
	ProcessInterval time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: 1 * time.Millisecond,
	}
}

// Pipe joins two in-memory transport endpoints. Every channel opened across
// the pipe gets its own pion test.Bridge, so channels are independent and
// frame boundaries are preserved.
//
// By default, Pipe automatically delivers frames in a background goroutine.
// Use SetAutoProcess(false) and Process for step-by-step delivery.
//
// Usage:
//
//	pipe := transport.NewPipe()
//	defer pipe.Close()
//	printer, _ := pipe.Attach(0, printerHandler)
//	host, _ := pipe.Attach(1, hostHandler)
//	host.Connect(ctx, printer.Addr().String(), profile.ChannelControl)
type Pipe struct {
	mu              sync.RWMutex
	condition       NetworkCondition
	closed          bool
	rng             *rand.Rand
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
	loggerFactory   logging.LoggerFactory

	bridges   []*test.Bridge
	conns     []net.Conn
	pumps     sync.WaitGroup
	endpoints [2]*PipeEndpoint
}

// NewPipe creates a new pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a new pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	p := &Pipe{
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
		loggerFactory:   config.LoggerFactory,
	}

	if config.ProcessInterval == 0 {
		p.processInterval = 1 * time.Millisecond
	}

	if p.autoProcess {
		p.startAutoProcess()
	}

	return p
}

// startAutoProcess starts the background frame delivery goroutine.
func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.Process()
			}
		}
	}()
}

// SetAutoProcess enables or disables automatic frame delivery.
// When disabled, you must call Tick() or Process() manually.
func (p *Pipe) SetAutoProcess(enabled bool) {
	p.mu.Lock()
	if p.closed || p.autoProcess == enabled {
		p.mu.Unlock()
		return
	}
	p.autoProcess = enabled

	if enabled {
		p.stopCh = make(chan struct{})
		p.startAutoProcess()
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()
}

// AutoProcess returns whether auto-processing is enabled.
func (p *Pipe) AutoProcess() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.autoProcess
}

// SetCondition configures network condition simulation.
// The conditions apply to frames in both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Condition returns the current network condition configuration.
func (p *Pipe) Condition() NetworkCondition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.condition
}

// Tick delivers at most one frame in each direction of every channel and
// returns the number of frames delivered.
func (p *Pipe) Tick() int {
	p.mu.RLock()
	bridges := p.bridges
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return 0
	}

	n := 0
	for _, br := range bridges {
		n += br.Tick()
	}
	return n
}

// Process delivers all queued frames and returns the number delivered.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			break
		}
		count += n
	}
	return count
}

// Attach creates the endpoint with the given id (0 or 1) and its handler.
func (p *Pipe) Attach(id int, handler Handler) (*PipeEndpoint, error) {
	if id != 0 && id != 1 {
		return nil, fmt.Errorf("%w: pipe endpoint %d", ErrInvalidAddress, id)
	}
	if handler == nil {
		return nil, ErrNoHandler
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.endpoints[id] != nil {
		return nil, fmt.Errorf("transport: pipe endpoint %d already attached", id)
	}

	var log logging.LeveledLogger
	if p.loggerFactory != nil {
		log = p.loggerFactory.NewLogger(fmt.Sprintf("transport-pipe%d", id))
	}
	e := &PipeEndpoint{
		pipe: p,
		addr: PipeAddr{ID: id},
		mux:  newMux(handler, log),
	}
	e.mux.drop = p.shouldDrop
	p.endpoints[id] = e
	return e, nil
}

func (p *Pipe) shouldDrop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.condition.DropRate > 0 && p.rng.Float64() < p.condition.DropRate
}

func (p *Pipe) delay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	cond := p.condition
	if cond.DelayMax <= 0 {
		return 0
	}
	d := cond.DelayMin
	if cond.DelayMax > cond.DelayMin {
		d += time.Duration(p.rng.Int63n(int64(cond.DelayMax - cond.DelayMin)))
	}
	return d
}

// bridge creates a fresh bridge and returns its two ends.
func (p *Pipe) bridge() (*pipeConn, *pipeConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, nil, ErrClosed
	}
	br := test.NewBridge()
	c0, c1 := br.GetConn0(), br.GetConn1()
	p.bridges = append(p.bridges, br)
	p.conns = append(p.conns, c0, c1)
	return p.newPipeConn(c0), p.newPipeConn(c1), nil
}

// Close closes both endpoints, stops auto-processing and releases every
// bridge.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	endpoints := p.endpoints
	p.mu.Unlock()

	for _, e := range endpoints {
		if e != nil {
			e.mux.shutdown()
		}
	}
	// Deliver the close frames before the bridges stop.
	p.Process()

	p.mu.Lock()
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	conns := p.conns
	p.mu.Unlock()

	p.wg.Wait()

	// Bridges are only closed once nothing ticks them.
	var firstErr error
	for _, c := range conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, e := range endpoints {
		if e != nil {
			e.mux.wait()
		}
	}
	p.pumps.Wait()
	return firstErr
}

// PipeAddr implements net.Addr for pipe endpoints.
type PipeAddr struct {
	ID int // Endpoint ID (0 or 1)
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

// String returns a string representation of the address.
func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d", a.ID) }

// PipeEndpoint is one side of a Pipe. It implements Transport.
type PipeEndpoint struct {
	pipe *Pipe
	addr PipeAddr
	mux  *mux
}

var _ Transport = (*PipeEndpoint)(nil)

func (e *PipeEndpoint) peer() *PipeEndpoint {
	e.pipe.mu.RLock()
	defer e.pipe.mu.RUnlock()
	return e.pipe.endpoints[1-e.addr.ID]
}

// Connect opens a channel to the other endpoint, whose address is
// "pipe:<id>".
func (e *PipeEndpoint) Connect(_ context.Context, peer string, kind profile.ChannelKind) (profile.ChannelID, error) {
	if !kind.IsValid() {
		return 0, fmt.Errorf("transport: invalid channel kind %d", kind)
	}
	if peer != (PipeAddr{ID: 1 - e.addr.ID}).String() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, peer)
	}

	ch, err := e.mux.add(kind, peer, nil)
	if err != nil {
		return 0, err
	}
	e.mux.dial(ch, func() (io.ReadWriteCloser, error) {
		remote := e.peer()
		if remote == nil {
			return nil, fmt.Errorf("%w: %s not attached", ErrInvalidAddress, peer)
		}
		local, far, err := e.pipe.bridge()
		if err != nil {
			return nil, err
		}
		remote.mux.serve(e.addr.String(), far)
		return local, nil
	})
	return ch.id, nil
}

// Respond accepts or rejects a channel announced by OnConnectRequest.
func (e *PipeEndpoint) Respond(ch profile.ChannelID, accept bool) error {
	return e.mux.respond(ch, accept)
}

// Send transmits one SDU.
func (e *PipeEndpoint) Send(ch profile.ChannelID, data []byte) error {
	return e.mux.send(ch, data)
}

// Disconnect closes a channel.
func (e *PipeEndpoint) Disconnect(ch profile.ChannelID) error {
	return e.mux.disconnect(ch)
}

// Addr returns the endpoint address.
func (e *PipeEndpoint) Addr() net.Addr { return e.addr }

// Close closes every channel of this endpoint.
func (e *PipeEndpoint) Close() error {
	e.mux.shutdown()
	e.mux.wait()
	return nil
}

// pipeConn adapts one end of a bridge to a closable stream. Closing it
// unblocks local reads without closing the bridge itself, which keeps
// ticking until the Pipe is closed.
type pipeConn struct {
	conn  net.Conn
	pipe  *Pipe
	recv  chan []byte
	done  chan struct{}
	once  sync.Once
	extra []byte
}

func (p *Pipe) newPipeConn(conn net.Conn) *pipeConn {
	c := &pipeConn{
		conn: conn,
		pipe: p,
		recv: make(chan []byte, 16),
		done: make(chan struct{}),
	}
	p.pumps.Add(1)
	go c.pump()
	return c
}

func (c *pipeConn) pump() {
	defer c.pipe.pumps.Done()
	defer close(c.recv)

	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return
		}
		pkt := append([]byte(nil), buf[:n]...)
		select {
		case c.recv <- pkt:
		case <-c.done:
			// Keep draining so the bridge never blocks on this end.
		}
	}
}

func (c *pipeConn) Read(b []byte) (int, error) {
	if len(c.extra) > 0 {
		n := copy(b, c.extra)
		c.extra = c.extra[n:]
		return n, nil
	}
	select {
	case pkt, ok := <-c.recv:
		if !ok {
			return 0, io.EOF
		}
		n := copy(b, pkt)
		c.extra = pkt[n:]
		return n, nil
	case <-c.done:
		return 0, io.EOF
	}
}

func (c *pipeConn) Write(b []byte) (int, error) {
	select {
	case <-c.done:
		return 0, io.ErrClosedPipe
	default:
	}
	if d := c.pipe.delay(); d > 0 {
		time.Sleep(d)
	}
	return c.conn.Write(b)
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
