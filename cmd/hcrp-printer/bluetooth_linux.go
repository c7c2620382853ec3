//go:build linux

package main

import (
	"io"

	"github.com/pion/logging"

	"github.com/backkem/hcrp/pkg/bluez"
	"github.com/backkem/hcrp/pkg/discovery"
)

// bluetoothRegistrar registers the HCR profile with BlueZ on the system bus.
func bluetoothRegistrar(lf logging.LoggerFactory) (discovery.Registrar, io.Closer, error) {
	r, err := bluez.NewSystem(bluez.Config{LoggerFactory: lf})
	if err != nil {
		return nil, nil, err
	}
	return r, r, nil
}
