package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/backkem/hcrp/pkg/profile"
)

func TestNewQUIC_RequiresHandler(t *testing.T) {
	if _, err := NewQUIC(QUICConfig{ListenAddr: "127.0.0.1:0"}); !errors.Is(err, ErrNoHandler) {
		t.Errorf("NewQUIC() error = %v, want ErrNoHandler", err)
	}
}

func TestQUIC_Loopback(t *testing.T) {
	printerEvents, hostEvents := newRecorder(), newRecorder()

	printer, err := NewQUIC(QUICConfig{ListenAddr: "127.0.0.1:0", Handler: printerEvents})
	if err != nil {
		t.Fatalf("NewQUIC(printer) error = %v", err)
	}
	defer printer.Close()
	printerEvents.autoRespond(printer, true)

	host, err := NewQUIC(QUICConfig{Handler: hostEvents})
	if err != nil {
		t.Fatalf("NewQUIC(host) error = %v", err)
	}
	defer host.Close()
	hostEvents.autoRespond(host, true)

	if host.Addr() != nil {
		t.Errorf("dial-only Addr() = %v, want nil", host.Addr())
	}

	ctx := context.Background()
	control, err := host.Connect(ctx, printer.Addr().String(), profile.ChannelControl)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	req := printerEvents.next(t, "request")
	if req.kind != profile.ChannelControl {
		t.Errorf("kind = %v, want Control", req.kind)
	}
	if conf := hostEvents.next(t, "confirm"); conf.ch != control || conf.status != profile.OpenSuccess {
		t.Fatalf("confirm = %+v", conf)
	}

	// GetLPTStatus request, tid 1.
	pdu := []byte{0x00, 0x05, 0x00, 0x01, 0x00, 0x00}
	if err := host.Send(control, pdu); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := printerEvents.next(t, "receive"); string(got.data) != string(pdu) {
		t.Errorf("printer received %x, want %x", got.data, pdu)
	}

	// The printer calls back on the same connection.
	notif, err := printer.Connect(ctx, req.peer, profile.ChannelNotification)
	if err != nil {
		t.Fatalf("Connect(notification) error = %v", err)
	}
	if back := hostEvents.next(t, "request"); back.kind != profile.ChannelNotification {
		t.Errorf("kind = %v, want Notification", back.kind)
	}
	printerEvents.next(t, "confirm")
	printer.Send(notif, []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x04, 0, 0, 0, 7})
	if got := hostEvents.next(t, "receive"); len(got.data) != 10 {
		t.Errorf("host received %x", got.data)
	}

	if err := printer.Disconnect(notif); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	printerEvents.next(t, "disconnected")
	hostEvents.next(t, "disconnected")

	if err := host.Disconnect(control); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	hostEvents.next(t, "disconnected")
	printerEvents.next(t, "disconnected")
}

func TestQUIC_Close(t *testing.T) {
	q, err := NewQUIC(QUICConfig{ListenAddr: "127.0.0.1:0", Handler: newRecorder()})
	if err != nil {
		t.Fatalf("NewQUIC() error = %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := q.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() error = %v, want ErrClosed", err)
	}
	if _, err := q.Connect(context.Background(), "127.0.0.1:1", profile.ChannelControl); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect() after close error = %v, want ErrClosed", err)
	}
}

func TestSelfSignedTLSConfig(t *testing.T) {
	conf, err := selfSignedTLSConfig()
	if err != nil {
		t.Fatalf("selfSignedTLSConfig() error = %v", err)
	}
	if len(conf.Certificates) != 1 {
		t.Errorf("certificates = %d, want 1", len(conf.Certificates))
	}
	if len(conf.NextProtos) != 1 || conf.NextProtos[0] != ALPN {
		t.Errorf("NextProtos = %v, want [%s]", conf.NextProtos, ALPN)
	}
}
