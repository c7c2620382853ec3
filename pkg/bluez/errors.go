package bluez

import "errors"

var (
	// ErrClosed is returned when registering on a closed Registrar.
	ErrClosed = errors.New("bluez: closed")

	// ErrRejected is the D-Bus error name BlueZ expects when a profile
	// refuses a connection.
	ErrRejected = errors.New("bluez: connection rejected")
)
