//go:build !linux

package main

import (
	"errors"
	"io"

	"github.com/pion/logging"

	"github.com/backkem/hcrp/pkg/discovery"
)

func bluetoothRegistrar(logging.LoggerFactory) (discovery.Registrar, io.Closer, error) {
	return nil, nil, errors.New("bluetooth registration needs BlueZ on Linux")
}
