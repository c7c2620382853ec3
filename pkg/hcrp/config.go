package hcrp

import (
	"time"

	"github.com/pion/logging"

	"github.com/backkem/hcrp/pkg/discovery"
	"github.com/backkem/hcrp/pkg/session"
	"github.com/backkem/hcrp/pkg/transport"
)

// Engine defaults.
const (
	DefaultMaxSessions = 64
	DefaultEventBuffer = 256
)

// TransportFactory builds the transport an engine drives, wiring the engine
// in as its handler.
type TransportFactory func(handler transport.Handler) (transport.Transport, error)

// Config configures an Engine.
type Config struct {
	// Transport creates the transport. Required.
	Transport TransportFactory

	// Registrar advertises server sessions opened with Advertise set.
	// Optional.
	Registrar discovery.Registrar

	// MaxSessions caps the session table.
	// Default: 64
	MaxSessions int

	// EventBuffer is the capacity of the Events channel.
	// Default: 256
	EventBuffer int

	// Clock is handed to sessions that do not set their own.
	// Default: time.Now
	Clock func() time.Time

	// LoggerFactory is the factory for creating loggers. Sessions without
	// their own factory inherit it. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Transport == nil {
		return ErrNoTransport
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// ServerOptions configures a server session.
type ServerOptions struct {
	// Session configures the protocol session. Role is forced to Server;
	// HCRID is assigned by the engine.
	Session session.Config

	// Name is the advertised service name.
	Name string

	// Advertise registers a discovery.ServiceRecord with Config.Registrar.
	Advertise bool

	// Port is advertised in the service record. If zero, the port of the
	// transport's listening address is used.
	Port int
}
