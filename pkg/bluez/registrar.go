// Package bluez registers HCR services with the BlueZ Bluetooth daemon.
//
// Each registered ServiceRecord becomes an org.bluez.Profile1 object exported
// on the system bus and announced through ProfileManager1.RegisterProfile,
// which makes BlueZ publish the service class UUID and listen on the Control
// PSM. Incoming L2CAP connections are handed to OnConnection as raw file
// descriptors.
package bluez

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	dbus "github.com/godbus/dbus/v5"
	"github.com/pion/logging"

	"github.com/backkem/hcrp/pkg/discovery"
)

const (
	bluezService        = "org.bluez"
	profileInterface    = "org.bluez.Profile1"
	profileManagerIface = "org.bluez.ProfileManager1"
	profileManagerPath  = dbus.ObjectPath("/org/bluez")

	// DefaultBasePath is the object path prefix for exported profiles.
	DefaultBasePath = dbus.ObjectPath("/com/backkem/hcrp/profile")
)

// conn is the slice of a D-Bus connection the registrar uses.
type conn interface {
	export(v interface{}, path dbus.ObjectPath) error
	unexport(path dbus.ObjectPath) error
	call(method string, args ...interface{}) error
}

// busConn adapts *dbus.Conn.
type busConn struct {
	bus *dbus.Conn
}

func (b busConn) export(v interface{}, path dbus.ObjectPath) error {
	return b.bus.Export(v, path, profileInterface)
}

func (b busConn) unexport(path dbus.ObjectPath) error {
	return b.bus.Export(nil, path, profileInterface)
}

func (b busConn) call(method string, args ...interface{}) error {
	return b.bus.Object(bluezService, profileManagerPath).Call(profileManagerIface+"."+method, 0, args...).Err
}

// ConnectionFunc receives an L2CAP socket BlueZ accepted for a registered
// profile. The callee owns fd.
type ConnectionFunc func(rec discovery.ServiceRecord, device string, fd int)

// Config configures a Registrar.
type Config struct {
	// BasePath is the object path prefix for exported profiles.
	// Default: DefaultBasePath
	BasePath dbus.ObjectPath

	// OnConnection receives incoming connections. If nil they are rejected.
	OnConnection ConnectionFunc

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Registrar publishes HCR service records with BlueZ. It implements
// discovery.Registrar.
type Registrar struct {
	conn   conn
	config Config
	log    logging.LeveledLogger
	owned  *dbus.Conn

	mu     sync.Mutex
	next   uint64
	active map[dbus.ObjectPath]*Registration
	closed bool
}

var _ discovery.Registrar = (*Registrar)(nil)

// New creates a Registrar on an existing bus connection.
func New(bus *dbus.Conn, config Config) *Registrar {
	return newRegistrar(busConn{bus: bus}, config)
}

func newRegistrar(c conn, config Config) *Registrar {
	if config.BasePath == "" {
		config.BasePath = DefaultBasePath
	}
	r := &Registrar{
		conn:   c,
		config: config,
		active: make(map[dbus.ObjectPath]*Registration),
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("bluez")
	}
	return r
}

// profileOptions builds the RegisterProfile option dictionary for rec.
func profileOptions(rec discovery.ServiceRecord) map[string]dbus.Variant {
	name := rec.Name
	if name == "" {
		name = "HCR " + rec.ServiceType.String()
	}
	return map[string]dbus.Variant{
		"Name":                  dbus.MakeVariant(name),
		"Service":               dbus.MakeVariant(rec.ServiceType.ProfileUUID()),
		"Role":                  dbus.MakeVariant("server"),
		"PSM":                   dbus.MakeVariant(rec.ControlPSM),
		"RequireAuthentication": dbus.MakeVariant(false),
		"AutoConnect":           dbus.MakeVariant(false),
	}
}

// Register exports a Profile1 object for rec and registers it with BlueZ.
// Zero PSMs are replaced with the defaults.
func (r *Registrar) Register(rec discovery.ServiceRecord) (discovery.Registration, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("bluez: %w", err)
	}
	rec = rec.WithDefaultPSMs()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	r.next++
	path := r.config.BasePath + dbus.ObjectPath("/p"+strconv.FormatUint(r.next, 10))
	reg := &Registration{registrar: r, path: path, profile: &profile1{rec: rec, onConnection: r.config.OnConnection, log: r.log}}

	if err := r.conn.export(reg.profile, path); err != nil {
		return nil, fmt.Errorf("bluez: export profile: %w", err)
	}
	uuid := rec.ServiceType.ProfileUUID()
	if err := r.conn.call("RegisterProfile", path, uuid, profileOptions(rec)); err != nil {
		r.conn.unexport(path)
		return nil, fmt.Errorf("bluez: RegisterProfile(%s): %w", uuid, err)
	}
	if r.log != nil {
		r.log.Infof("registered %s profile at %s (PSM 0x%04X)", rec.ServiceType, path, rec.ControlPSM)
	}

	r.active[path] = reg
	return reg, nil
}

// Close unregisters every profile. It does not close a bus passed to New.
func (r *Registrar) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	active := r.active
	r.active = nil
	r.mu.Unlock()

	for _, reg := range active {
		reg.release()
	}
	if r.owned != nil {
		return r.owned.Close()
	}
	return nil
}

// Registration is one registered profile.
type Registration struct {
	registrar *Registrar
	path      dbus.ObjectPath
	profile   *profile1
	once      sync.Once
}

// Path returns the exported object path.
func (g *Registration) Path() dbus.ObjectPath { return g.path }

// Close unregisters the profile.
func (g *Registration) Close() error {
	r := g.registrar
	r.mu.Lock()
	if r.active != nil {
		delete(r.active, g.path)
	}
	r.mu.Unlock()
	return g.release()
}

func (g *Registration) release() error {
	var err error
	g.once.Do(func() {
		err = g.registrar.conn.call("UnregisterProfile", g.path)
		g.registrar.conn.unexport(g.path)
		if g.registrar.log != nil {
			g.registrar.log.Debugf("unregistered profile at %s", g.path)
		}
	})
	return err
}

// profile1 implements org.bluez.Profile1.
type profile1 struct {
	rec          discovery.ServiceRecord
	onConnection ConnectionFunc
	log          logging.LeveledLogger
}

// Release is called by BlueZ when it unregisters the profile.
func (p *profile1) Release() *dbus.Error { return nil }

// Cancel is called when a pending request is canceled.
func (p *profile1) Cancel() *dbus.Error { return nil }

// RequestDisconnection is called before BlueZ drops a connection.
func (p *profile1) RequestDisconnection(_ dbus.ObjectPath) *dbus.Error { return nil }

// NewConnection hands an accepted socket to the configured callback.
func (p *profile1) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	if p.onConnection == nil {
		_ = os.NewFile(uintptr(fd), "l2cap").Close()
		if p.log != nil {
			p.log.Debugf("rejecting connection from %s", dev)
		}
		return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{ErrRejected.Error()}}
	}
	if p.log != nil {
		p.log.Infof("connection from %s", dev)
	}
	p.onConnection(p.rec, string(dev), int(fd))
	return nil
}
