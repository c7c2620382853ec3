package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/hcrp/pkg/profile"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "printer.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig(\"\") error = %v", err)
	}
	want := DefaultConfig()
	if cfg.ListenAddr != want.ListenAddr || cfg.ServiceType != profile.ServiceTypePrinter || cfg.MaxHosts != 1 || !cfg.Advertise {
		t.Errorf("loadConfig(\"\") = %+v, want defaults", cfg)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
listen = "127.0.0.1:0"
name = "  Office Jet  "
service_type = "scanner"
device_id = "MFG:ACME;MDL:Scan 1;"
connection_mode = "manual"
request_timeout = "2s"
max_notification_timeout = "1m"
credit_cap = 4096
max_hosts = 3
advertise = false
interfaces = [" eth0 ", ""]
log_level = "debug"
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"ListenAddr", cfg.ListenAddr, "127.0.0.1:0"},
		{"Name", cfg.Name, "Office Jet"},
		{"ServiceType", cfg.ServiceType, profile.ServiceTypeScanner},
		{"DeviceID", cfg.DeviceID, "MFG:ACME;MDL:Scan 1;"},
		{"ConnectionMode", cfg.ConnectionMode, profile.ConnectionModeManualAccept},
		{"RequestTimeout", cfg.RequestTimeout, 2 * time.Second},
		{"MaxNotificationTimeout", cfg.MaxNotificationTimeout, time.Minute},
		{"CreditCap", cfg.CreditCap, uint32(4096)},
		{"MaxHosts", cfg.MaxHosts, 3},
		{"Advertise", cfg.Advertise, false},
		{"Interfaces", len(cfg.Interfaces), 1},
		{"LogLevel", cfg.LogLevel, logging.LogLevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoadConfig_PartialKeepsDefaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, `name = "Jet"`))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.Name != "Jet" {
		t.Errorf("Name = %q, want Jet", cfg.Name)
	}
	if cfg.DeviceID != def.DeviceID || cfg.CreditCap != def.CreditCap || cfg.RequestTimeout != def.RequestTimeout {
		t.Errorf("unset keys changed: %+v", cfg)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad service", `service_type = "fax"`},
		{"bad mode", `connection_mode = "maybe"`},
		{"bad duration", `request_timeout = "soon"`},
		{"negative credit", `credit_cap = -1`},
		{"no hosts", `max_hosts = 0`},
		{"bad level", `log_level = "loud"`},
		{"unknown key", `colour = "cyan"`},
		{"bad toml", `name = `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadConfig(writeConfig(t, tt.body)); err == nil {
				t.Errorf("loadConfig(%q) succeeded, want error", tt.body)
			}
		})
	}

	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("loadConfig(missing) succeeded, want error")
	}
}
