package session

import (
	"time"

	"github.com/pion/logging"

	"github.com/backkem/hcrp/pkg/notification"
	"github.com/backkem/hcrp/pkg/profile"
	"github.com/backkem/hcrp/pkg/transaction"
)

// Config configures a Session.
type Config struct {
	// HCRID identifies the session in events and logs.
	HCRID profile.HCRID

	// Role is Client or Server. Required.
	Role profile.Role

	// ServiceType is Printer or Scanner.
	ServiceType profile.ServiceType

	// ConnectionMode decides how incoming channels are handled.
	ConnectionMode profile.ConnectionMode

	// RequestTimeout bounds how long a Client waits for a reply.
	// Default: 5s.
	RequestTimeout time.Duration

	// ControlMTU limits Control PDUs, truncating variable-length replies.
	// Default: profile.DefaultMTU.
	ControlMTU int

	// DataMTU is the largest write handed to the link on the Data channel.
	// Default: profile.DefaultMTU.
	DataMTU int

	// NotificationMTU limits Notification PDUs.
	// Default: profile.DefaultMTU.
	NotificationMTU int

	// DeviceID is the IEEE 1284 device id a Server reports.
	DeviceID string

	// NotificationPolicy limits the registrations a Server grants.
	NotificationPolicy notification.Policy

	// Clock returns the current time. Default: time.Now.
	Clock func() time.Time

	// LoggerFactory for creating loggers. Optional.
	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = transaction.DefaultRequestTimeout
	}
	if c.ControlMTU <= 0 {
		c.ControlMTU = profile.DefaultMTU
	}
	if c.DataMTU <= 0 {
		c.DataMTU = profile.DefaultMTU
	}
	if c.NotificationMTU <= 0 {
		c.NotificationMTU = profile.DefaultMTU
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}
