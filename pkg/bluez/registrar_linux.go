//go:build linux

package bluez

import (
	"fmt"

	dbus "github.com/godbus/dbus/v5"
)

// NewSystem connects to the system bus and returns a Registrar that owns the
// connection. Close disconnects from the bus.
func NewSystem(config Config) (*Registrar, error) {
	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect system bus: %w", err)
	}
	r := New(bus, config)
	r.owned = bus
	return r, nil
}
