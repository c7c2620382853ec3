// hcrp-printer is a virtual HCR printer reachable over QUIC.
//
// It opens one server session per host it can serve at once, advertises the
// first through DNS-SD (and optionally a BlueZ profile), and answers every
// request a host sends: credit is granted up to a cap, the LPT status is
// always "selected, no error" and the IEEE 1284 device id comes from the
// configuration. Received print data is counted and discarded.
//
// Usage:
//
//	hcrp-printer [-config printer.toml] [-listen :9100]
//
// Example config:
//
//	listen = ":9100"
//	name = "Office Jet"
//	service_type = "printer"
//	device_id = "MFG:ACME;MDL:Jet 9;CMD:PCL,PJL;"
//	connection_mode = "auto-accept"
//	credit_cap = 65536
//	max_hosts = 2
//	log_level = "debug"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/hcrp/pkg/discovery"
	"github.com/backkem/hcrp/pkg/hcrp"
	"github.com/backkem/hcrp/pkg/notification"
	"github.com/backkem/hcrp/pkg/session"
	"github.com/backkem/hcrp/pkg/transport"
)

const tickInterval = 100 * time.Millisecond

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file (empty = defaults)")
	listen := flag.String("listen", "", "UDP listen address, overrides the config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Printer error: %v", err)
	}
}

func run(ctx context.Context, cfg Config) error {
	lf := logging.NewDefaultLoggerFactory()
	lf.DefaultLogLevel = cfg.LogLevel
	logger := lf.NewLogger("printer")

	var regs registrars
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}()

	if cfg.Advertise {
		ifaces, err := cfg.interfaces()
		if err != nil {
			return err
		}
		adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{Interfaces: ifaces, LoggerFactory: lf})
		regs = append(regs, adv)
		closers = append(closers, adv)
	}
	if cfg.Bluetooth {
		r, closer, err := bluetoothRegistrar(lf)
		if err != nil {
			return fmt.Errorf("bluetooth: %w", err)
		}
		logger.Warn("BlueZ profile registered for discovery only; L2CAP connections are refused")
		regs = append(regs, r)
		closers = append(closers, closer)
	}

	engineCfg := hcrp.Config{
		Transport: func(h transport.Handler) (transport.Transport, error) {
			return transport.NewQUIC(transport.QUICConfig{
				ListenAddr:    cfg.ListenAddr,
				Handler:       h,
				LoggerFactory: lf,
			})
		},
		MaxSessions:   cfg.MaxHosts,
		LoggerFactory: lf,
	}
	if len(regs) > 0 {
		engineCfg.Registrar = regs
	}
	engine, err := hcrp.New(engineCfg)
	if err != nil {
		return err
	}

	sessCfg := session.Config{
		ServiceType:        cfg.ServiceType,
		ConnectionMode:     cfg.ConnectionMode,
		RequestTimeout:     cfg.RequestTimeout,
		DeviceID:           cfg.DeviceID,
		NotificationPolicy: notification.Policy{MaxNotificationTimeout: cfg.MaxNotificationTimeout},
	}
	for i := 0; i < cfg.MaxHosts; i++ {
		_, err := engine.OpenServer(hcrp.ServerOptions{
			Session:   sessCfg,
			Name:      cfg.Name,
			Advertise: i == 0 && len(regs) > 0,
		})
		if err != nil {
			engine.Close()
			return fmt.Errorf("open server session: %w", err)
		}
	}
	logger.Infof("%s (%v) listening on %v", cfg.Name, cfg.ServiceType, engine.Addr())

	serve(ctx, engine, newResponder(engine, cfg, logger))

	logger.Info("shutting down")
	if err := engine.Close(); err != nil && !errors.Is(err, hcrp.ErrClosed) {
		return err
	}
	return nil
}

// serve answers events and drives the session timers until ctx is done or
// the engine stops.
func serve(ctx context.Context, engine *hcrp.Engine, r *responder) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	events := engine.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			engine.Tick(now)
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.handle(ev)
		}
	}
}
