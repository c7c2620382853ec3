package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/backkem/hcrp/pkg/profile"
	"github.com/pion/logging"
	"github.com/quic-go/quic-go"
)

// ALPN is the TLS application protocol negotiated by the QUIC transport.
const ALPN = "hcrp"

// Default QUIC transport settings.
const (
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlivePeriod = 15 * time.Second
)

// QUICConfig configures the QUIC transport.
type QUICConfig struct {
	// ListenAddr is the UDP address to accept connections on (e.g. ":0").
	// Empty disables listening; the transport can still dial out and accept
	// channels the peer opens on dialed connections.
	ListenAddr string

	// TLSConfig is used for both listening and dialing. If nil, a
	// self-signed certificate is generated and peer certificates are not
	// verified.
	TLSConfig *tls.Config

	// Handler receives channel events. Required.
	Handler Handler

	// ConnectTimeout bounds dialing a new QUIC connection.
	// Default: 10s
	ConnectTimeout time.Duration

	// KeepAlivePeriod keeps idle connections alive.
	// Default: 15s
	KeepAlivePeriod time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

func (c *QUICConfig) applyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.KeepAlivePeriod == 0 {
		c.KeepAlivePeriod = DefaultKeepAlivePeriod
	}
}

// QUIC carries HCR channels over QUIC. One QUIC connection joins two
// devices and each HCR channel is a bidirectional stream on it. Either side
// may open streams on an existing connection, so a printer can open a
// Notification channel back to the host that connected to it.
type QUIC struct {
	config   QUICConfig
	tls      *tls.Config
	quic     *quic.Config
	listener *quic.Listener
	mux      *mux
	log      logging.LeveledLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connsMu sync.Mutex
	conns   map[string]*quic.Conn // keyed by peer address
}

var _ Transport = (*QUIC)(nil)

// NewQUIC creates a QUIC transport and starts listening if ListenAddr is set.
func NewQUIC(config QUICConfig) (*QUIC, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}
	config.applyDefaults()

	tlsConf := config.TLSConfig
	if tlsConf == nil {
		var err error
		if tlsConf, err = selfSignedTLSConfig(); err != nil {
			return nil, fmt.Errorf("transport: generate certificate: %w", err)
		}
	} else {
		tlsConf = tlsConf.Clone()
	}
	tlsConf.NextProtos = []string{ALPN}

	q := &QUIC{
		config: config,
		tls:    tlsConf,
		quic:   &quic.Config{KeepAlivePeriod: config.KeepAlivePeriod},
		conns:  make(map[string]*quic.Conn),
	}
	if config.LoggerFactory != nil {
		q.log = config.LoggerFactory.NewLogger("transport-quic")
	}
	q.mux = newMux(config.Handler, q.log)
	q.ctx, q.cancel = context.WithCancel(context.Background())

	if config.ListenAddr != "" {
		listener, err := quic.ListenAddr(config.ListenAddr, q.tls, q.quic)
		if err != nil {
			q.cancel()
			return nil, fmt.Errorf("transport: listen %s: %w", config.ListenAddr, err)
		}
		q.listener = listener
		if q.log != nil {
			q.log.Infof("listening on %s", listener.Addr())
		}
		q.wg.Add(1)
		go q.acceptLoop()
	}
	return q, nil
}

func (q *QUIC) acceptLoop() {
	defer q.wg.Done()
	for {
		conn, err := q.listener.Accept(q.ctx)
		if err != nil {
			if q.ctx.Err() != nil {
				return
			}
			if q.log != nil {
				q.log.Warnf("accept: %v", err)
			}
			continue
		}
		q.track(conn.RemoteAddr().String(), conn)
	}
}

// track records a connection and starts accepting the streams the peer opens
// on it.
func (q *QUIC) track(peer string, conn *quic.Conn) {
	q.connsMu.Lock()
	if old, ok := q.conns[peer]; ok && old != conn {
		old.CloseWithError(0, "replaced")
	}
	q.conns[peer] = conn
	q.connsMu.Unlock()

	if q.log != nil {
		q.log.Debugf("connection with %s established", peer)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer q.forget(peer, conn)
		for {
			stream, err := conn.AcceptStream(q.ctx)
			if err != nil {
				return
			}
			q.mux.serve(peer, stream)
		}
	}()
}

func (q *QUIC) forget(peer string, conn *quic.Conn) {
	q.connsMu.Lock()
	if q.conns[peer] == conn {
		delete(q.conns, peer)
	}
	q.connsMu.Unlock()
}

// connFor returns the live connection to peer, dialing one if needed.
func (q *QUIC) connFor(peer string) (*quic.Conn, error) {
	q.connsMu.Lock()
	conn, ok := q.conns[peer]
	q.connsMu.Unlock()
	if ok && conn.Context().Err() == nil {
		return conn, nil
	}

	ctx, cancel := context.WithTimeout(q.ctx, q.config.ConnectTimeout)
	defer cancel()

	clientTLS := q.tls.Clone()
	if q.config.TLSConfig == nil {
		clientTLS.InsecureSkipVerify = true
	}
	conn, err := quic.DialAddr(ctx, peer, clientTLS, q.quic)
	if err != nil {
		return nil, err
	}
	q.track(peer, conn)
	return conn, nil
}

// Connect opens a channel to peer, a "host:port" UDP address or the peer
// string reported by OnConnectRequest.
func (q *QUIC) Connect(ctx context.Context, peer string, kind profile.ChannelKind) (profile.ChannelID, error) {
	if !kind.IsValid() {
		return 0, fmt.Errorf("transport: invalid channel kind %d", kind)
	}
	if peer == "" {
		return 0, ErrInvalidAddress
	}
	if q.ctx.Err() != nil {
		return 0, ErrClosed
	}

	ch, err := q.mux.add(kind, peer, nil)
	if err != nil {
		return 0, err
	}
	q.mux.dial(ch, func() (io.ReadWriteCloser, error) {
		conn, err := q.connFor(peer)
		if err != nil {
			return nil, err
		}
		sctx, cancel := context.WithTimeout(q.ctx, q.config.ConnectTimeout)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
		return conn.OpenStreamSync(sctx)
	})
	return ch.id, nil
}

// Respond accepts or rejects a channel announced by OnConnectRequest.
func (q *QUIC) Respond(ch profile.ChannelID, accept bool) error {
	return q.mux.respond(ch, accept)
}

// Send transmits one SDU.
func (q *QUIC) Send(ch profile.ChannelID, data []byte) error {
	return q.mux.send(ch, data)
}

// Disconnect closes a channel.
func (q *QUIC) Disconnect(ch profile.ChannelID) error {
	return q.mux.disconnect(ch)
}

// Addr returns the listening address, or nil when not listening.
func (q *QUIC) Addr() net.Addr {
	if q.listener == nil {
		return nil
	}
	return q.listener.Addr()
}

// Close closes every channel and connection and stops listening.
func (q *QUIC) Close() error {
	if q.ctx.Err() != nil {
		return ErrClosed
	}
	if q.log != nil {
		q.log.Info("stopping QUIC transport")
	}

	q.mux.shutdown()
	q.cancel()

	var errs []error
	if q.listener != nil {
		if err := q.listener.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	q.connsMu.Lock()
	for peer, conn := range q.conns {
		conn.CloseWithError(0, "closed")
		delete(q.conns, peer)
	}
	q.connsMu.Unlock()

	q.mux.wait()
	q.wg.Wait()
	return errors.Join(errs...)
}

// selfSignedTLSConfig generates an ephemeral certificate for transports
// configured without one.
func selfSignedTLSConfig() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "hcrp"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{"hcrp"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		NextProtos:   []string{ALPN},
	}, nil
}
