package main

import (
	"context"
	"testing"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/hcrp/pkg/hcrp"
	"github.com/backkem/hcrp/pkg/pdu"
	"github.com/backkem/hcrp/pkg/profile"
	"github.com/backkem/hcrp/pkg/session"
	"github.com/backkem/hcrp/pkg/transport"
)

type printerHarness struct {
	printer *hcrp.Engine
	host    *hcrp.Engine
	r       *responder
	cli     profile.HCRID
	stop    func()
}

// startPrinter runs a responder-driven printer on one end of a pipe and a
// connected host session on the other.
func startPrinter(t *testing.T, cfg Config) *printerHarness {
	t.Helper()
	pipe := transport.NewPipe()
	attach := func(id int) hcrp.TransportFactory {
		return func(h transport.Handler) (transport.Transport, error) { return pipe.Attach(id, h) }
	}

	printer, err := hcrp.New(hcrp.Config{Transport: attach(0)})
	if err != nil {
		t.Fatalf("New(printer) error = %v", err)
	}
	host, err := hcrp.New(hcrp.Config{Transport: attach(1)})
	if err != nil {
		t.Fatalf("New(host) error = %v", err)
	}
	_, err = printer.OpenServer(hcrp.ServerOptions{Session: session.Config{
		ServiceType:    cfg.ServiceType,
		DeviceID:       cfg.DeviceID,
		ConnectionMode: cfg.ConnectionMode,
	}})
	if err != nil {
		t.Fatalf("OpenServer() error = %v", err)
	}

	r := newResponder(printer, cfg, logging.NewDefaultLoggerFactory().NewLogger("printer"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		serve(ctx, printer, r)
	}()

	h := &printerHarness{printer: printer, host: host, r: r}
	h.stop = func() {
		cancel()
		<-done
	}
	t.Cleanup(func() {
		h.stop()
		host.Close()
		printer.Close()
		pipe.Close()
	})

	h.cli, err = host.OpenClient("pipe:0", session.Config{ServiceType: cfg.ServiceType})
	if err != nil {
		t.Fatalf("OpenClient() error = %v", err)
	}
	h.do(t, func(s *session.Session) error { return s.OpenControl() })
	h.await(t, func(ev session.Event) bool {
		c, ok := ev.(session.ChannelConnected)
		return ok && c.Kind == profile.ChannelControl
	})
	h.do(t, func(s *session.Session) error { return s.OpenData() })
	h.await(t, func(ev session.Event) bool {
		c, ok := ev.(session.ChannelConnected)
		return ok && c.Kind == profile.ChannelData
	})
	return h
}

func (h *printerHarness) do(t *testing.T, fn func(s *session.Session) error) {
	t.Helper()
	if err := h.host.Session(h.cli, fn); err != nil {
		t.Fatalf("host session: %v", err)
	}
}

func (h *printerHarness) await(t *testing.T, match func(session.Event) bool) session.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-h.host.Events():
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for host event")
			return nil
		}
	}
}

func reply[T session.Event](ev session.Event) bool {
	_, ok := ev.(T)
	return ok
}

func TestResponder_AnswersRequests(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CreditCap = 4096
	h := startPrinter(t, cfg)

	h.do(t, func(s *session.Session) error { return s.GetLPTStatusRequest() })
	lpt := h.await(t, reply[session.LPTStatusRequested]).(session.LPTStatusRequested)
	if lpt.Result != pdu.ResultSuccess || !lpt.Status.Selected() || lpt.Status.Error() {
		t.Errorf("LPT status = %+v, want selected without error", lpt)
	}

	h.do(t, func(s *session.Session) error { return s.Get1284IDRequest(0, 512) })
	id := h.await(t, reply[session.Get1284IDRequested]).(session.Get1284IDRequested)
	if string(id.ID) != cfg.DeviceID {
		t.Errorf("1284 id = %q, want %q", id.ID, cfg.DeviceID)
	}

	h.do(t, func(s *session.Session) error { return s.CreditRequestRequest() })
	cr := h.await(t, reply[session.CreditRequested]).(session.CreditRequested)
	if cr.Credit != 4096 {
		t.Errorf("credit request granted %d, want cap 4096", cr.Credit)
	}

	// A second request is capped by the credit still outstanding.
	h.do(t, func(s *session.Session) error { return s.CreditRequestRequest() })
	if cr := h.await(t, reply[session.CreditRequested]).(session.CreditRequested); cr.Credit != 0 {
		t.Errorf("second credit request granted %d, want 0", cr.Credit)
	}

	h.do(t, func(s *session.Session) error { return s.SoftResetRequest() })
	if sr := h.await(t, reply[session.SoftResetRequested]).(session.SoftResetRequested); sr.Result != pdu.ResultSuccess {
		t.Errorf("soft reset result = %v", sr.Result)
	}
}

func TestResponder_CountsJob(t *testing.T) {
	h := startPrinter(t, DefaultConfig())

	h.do(t, func(s *session.Session) error { return s.CreditRequestRequest() })
	h.await(t, reply[session.CreditRequested])

	payload := []byte("%!PS-Adobe-3.0\nshowpage\n")
	h.do(t, func(s *session.Session) error {
		n, err := s.DataWrite(payload)
		if n != len(payload) {
			t.Errorf("DataWrite() = %d, want %d", n, len(payload))
		}
		return err
	})

	// Data and Control are separate channels; query until the printer has
	// charged the SDU against the credit it granted.
	deadline := time.Now().Add(5 * time.Second)
	for {
		h.do(t, func(s *session.Session) error { return s.CreditQueryRequest() })
		q := h.await(t, reply[session.CreditQueried]).(session.CreditQueried)
		if !q.Desynchronized {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("credit never synchronized: %+v", q)
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.stop()
	var total int
	for _, j := range h.r.jobs {
		total += j.bytes
	}
	if total != len(payload) {
		t.Errorf("job bytes = %d, want %d", total, len(payload))
	}
}

func TestResponder_ManualAccept(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectionMode = profile.ConnectionModeManualAccept
	h := startPrinter(t, cfg)

	h.do(t, func(s *session.Session) error { return s.GetLPTStatusRequest() })
	h.await(t, reply[session.LPTStatusRequested])
}
