package discovery

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// MDNSServer is the interface for mDNS service registration.
// This allows for dependency injection in tests.
type MDNSServer interface {
	// Shutdown stops the server.
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	// Register creates a new mDNS server for the given service.
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

// zeroconfServerFactory is the production implementation using grandcat/zeroconf.
type zeroconfServerFactory struct{}

func (z *zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig holds configuration for the Advertiser.
type AdvertiserConfig struct {
	// Interfaces specifies which network interfaces to advertise on.
	// If nil, all interfaces are used.
	Interfaces []net.Interface

	// ServerFactory is the factory for creating mDNS servers.
	// If nil, the default zeroconf factory is used.
	ServerFactory MDNSServerFactory

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Advertiser publishes HCR servers over DNS-SD. It implements Registrar.
type Advertiser struct {
	config  AdvertiserConfig
	factory MDNSServerFactory
	log     logging.LeveledLogger

	mu       sync.Mutex
	services map[string]*Advertisement
	closed   bool
}

var _ Registrar = (*Advertiser)(nil)

// NewAdvertiser creates a new Advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	factory := config.ServerFactory
	if factory == nil {
		factory = &zeroconfServerFactory{}
	}

	a := &Advertiser{
		config:   config,
		factory:  factory,
		services: make(map[string]*Advertisement),
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("discovery")
	}
	return a
}

// Advertisement is one active DNS-SD registration.
type Advertisement struct {
	adv      *Advertiser
	server   MDNSServer
	instance string
	record   ServiceRecord
	once     sync.Once
}

// Instance returns the advertised instance name.
func (s *Advertisement) Instance() string { return s.instance }

// Record returns the advertised record.
func (s *Advertisement) Record() ServiceRecord { return s.record }

// Close withdraws the advertisement. Closing twice is a no-op.
func (s *Advertisement) Close() error {
	s.once.Do(func() {
		s.adv.mu.Lock()
		if s.adv.services[s.instance] == s {
			delete(s.adv.services, s.instance)
		}
		s.adv.mu.Unlock()
		s.server.Shutdown()
	})
	return nil
}

// Register publishes rec as an _hcrp._udp instance. An empty rec.Name gets a
// random instance name.
func (a *Advertiser) Register(rec ServiceRecord) (Registration, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("advertiser: %w", err)
	}
	if rec.Port == 0 {
		return nil, ErrInvalidPort
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}

	instance := rec.Name
	if instance == "" {
		var err error
		if instance, err = generateRandomInstanceName(); err != nil {
			return nil, fmt.Errorf("advertiser: failed to generate instance name: %w", err)
		}
	}
	if _, exists := a.services[instance]; exists {
		return nil, ErrAlreadyRegistered
	}

	txt := rec.EncodeTXT()
	if a.log != nil {
		a.log.Debugf("Registering mDNS service: instance=%s service=%s domain=%s port=%d",
			instance, ServiceHCRP, DefaultDomain, rec.Port)
		a.log.Tracef("TXT records: %v", txt)
	}

	server, err := a.factory.Register(instance, ServiceHCRP, DefaultDomain, rec.Port, txt, a.config.Interfaces)
	if err != nil {
		return nil, fmt.Errorf("advertiser: mDNS registration failed for %s: %w", instance, err)
	}
	if a.log != nil {
		a.log.Infof("advertising %s as %q", rec.ServiceType, instance)
	}

	rec.Name = instance
	s := &Advertisement{adv: a, server: server, instance: instance, record: rec}
	a.services[instance] = s
	return s, nil
}

// IsAdvertising reports whether instance is currently advertised.
func (a *Advertiser) IsAdvertising(instance string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, exists := a.services[instance]
	return exists
}

// Close withdraws every advertisement and closes the advertiser.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.closed = true
	services := a.services
	a.services = make(map[string]*Advertisement)
	a.mu.Unlock()

	for _, s := range services {
		s.Close()
	}
	return nil
}

// generateRandomInstanceName generates a random 64-bit instance name.
// Format: 16 uppercase hex characters.
func generateRandomInstanceName() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016X", binary.BigEndian.Uint64(buf[:])), nil
}
