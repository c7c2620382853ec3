package main

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pion/logging"

	"github.com/backkem/hcrp/pkg/notification"
	"github.com/backkem/hcrp/pkg/profile"
	"github.com/backkem/hcrp/pkg/transaction"
)

// Config is the printer daemon configuration.
type Config struct {
	ListenAddr             string
	Name                   string
	ServiceType            profile.ServiceType
	DeviceID               string
	ConnectionMode         profile.ConnectionMode
	RequestTimeout         time.Duration
	MaxNotificationTimeout time.Duration
	CreditCap              uint32
	MaxHosts               int
	Advertise              bool
	Interfaces             []string
	Bluetooth              bool
	LogLevel               logging.LogLevel
}

// DefaultConfig returns the configuration used for keys a file leaves out.
func DefaultConfig() Config {
	return Config{
		ListenAddr:             ":9100",
		Name:                   "HCR Printer",
		ServiceType:            profile.ServiceTypePrinter,
		DeviceID:               "MFG:Backkem;MDL:HCR Virtual Printer;CMD:PCL,PJL,PS;CLS:PRINTER;",
		ConnectionMode:         profile.ConnectionModeAutoAccept,
		RequestTimeout:         transaction.DefaultRequestTimeout,
		MaxNotificationTimeout: notification.DefaultMaxNotificationTimeout,
		CreditCap:              64 * 1024,
		MaxHosts:               1,
		Advertise:              true,
		LogLevel:               logging.LogLevelInfo,
	}
}

type fileConfig struct {
	Listen                 string   `toml:"listen"`
	Name                   string   `toml:"name"`
	ServiceType            string   `toml:"service_type"`
	DeviceID               string   `toml:"device_id"`
	ConnectionMode         string   `toml:"connection_mode"`
	RequestTimeout         string   `toml:"request_timeout"`
	MaxNotificationTimeout string   `toml:"max_notification_timeout"`
	CreditCap              int64    `toml:"credit_cap"`
	MaxHosts               int      `toml:"max_hosts"`
	Advertise              bool     `toml:"advertise"`
	Interfaces             []string `toml:"interfaces"`
	Bluetooth              bool     `toml:"bluetooth"`
	LogLevel               string   `toml:"log_level"`
}

// loadConfig reads a TOML file over the defaults. An empty path yields the
// defaults.
func loadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load printer config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load printer config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("listen") {
		cfg.ListenAddr = strings.TrimSpace(raw.Listen)
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}

	if meta.IsDefined("service_type") {
		st, ok := profile.ParseServiceType(raw.ServiceType)
		if !ok {
			return Config{}, fmt.Errorf("parse service_type: unknown service %q", raw.ServiceType)
		}
		cfg.ServiceType = st
	}

	if meta.IsDefined("device_id") {
		cfg.DeviceID = strings.TrimSpace(raw.DeviceID)
	}

	if meta.IsDefined("connection_mode") {
		mode, ok := profile.ParseConnectionMode(raw.ConnectionMode)
		if !ok {
			return Config{}, fmt.Errorf("parse connection_mode: unknown mode %q", raw.ConnectionMode)
		}
		cfg.ConnectionMode = mode
	}

	if meta.IsDefined("request_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RequestTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse request_timeout: %w", err)
		}
		cfg.RequestTimeout = d
	}

	if meta.IsDefined("max_notification_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.MaxNotificationTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse max_notification_timeout: %w", err)
		}
		cfg.MaxNotificationTimeout = d
	}

	if meta.IsDefined("credit_cap") {
		if raw.CreditCap < 0 || raw.CreditCap > int64(^uint32(0)) {
			return Config{}, fmt.Errorf("parse credit_cap: %d out of range", raw.CreditCap)
		}
		cfg.CreditCap = uint32(raw.CreditCap)
	}

	if meta.IsDefined("max_hosts") {
		if raw.MaxHosts < 1 {
			return Config{}, fmt.Errorf("parse max_hosts: must be at least 1, got %d", raw.MaxHosts)
		}
		cfg.MaxHosts = raw.MaxHosts
	}

	if meta.IsDefined("advertise") {
		cfg.Advertise = raw.Advertise
	}

	if meta.IsDefined("interfaces") {
		cfg.Interfaces = normalizeNames(raw.Interfaces)
	}

	if meta.IsDefined("bluetooth") {
		cfg.Bluetooth = raw.Bluetooth
	}

	if meta.IsDefined("log_level") {
		level, err := parseLogLevel(raw.LogLevel)
		if err != nil {
			return Config{}, err
		}
		cfg.LogLevel = level
	}

	return cfg, nil
}

func parseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	}
	return logging.LogLevelDisabled, fmt.Errorf("parse log_level: unknown level %q", s)
}

func normalizeNames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, name := range in {
		if v := strings.TrimSpace(name); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// interfaces resolves the configured interface names. No names means every
// interface.
func (c Config) interfaces() ([]net.Interface, error) {
	ifaces := make([]net.Interface, 0, len(c.Interfaces))
	for _, name := range c.Interfaces {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", name, err)
		}
		ifaces = append(ifaces, *iface)
	}
	return ifaces, nil
}
