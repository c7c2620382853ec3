package discovery

import (
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/backkem/hcrp/pkg/profile"
)

type registerArgs struct {
	instance string
	service  string
	domain   string
	port     int
	txt      []string
}

type mockMDNSServerFactory struct {
	mu       sync.Mutex
	lastArgs registerArgs
	servers  []*mockMDNSServer
	err      error
}

func (f *mockMDNSServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.lastArgs = registerArgs{instance: instance, service: service, domain: domain, port: port, txt: txt}
	s := &mockMDNSServer{}
	f.servers = append(f.servers, s)
	return s, nil
}

type mockMDNSServer struct {
	mu             sync.Mutex
	shutdownCalled int
}

func (s *mockMDNSServer) Shutdown() {
	s.mu.Lock()
	s.shutdownCalled++
	s.mu.Unlock()
}

func (s *mockMDNSServer) shutdowns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdownCalled
}

func printerRecord() ServiceRecord {
	return ServiceRecord{
		Name:        "Office Printer",
		ServiceType: profile.ServiceTypePrinter,
		DeviceID:    "MFG:ACME;MDL:Jet;",
		Port:        9100,
	}.WithDefaultPSMs()
}

func TestAdvertiser_Register(t *testing.T) {
	factory := &mockMDNSServerFactory{}
	adv := NewAdvertiser(AdvertiserConfig{ServerFactory: factory})
	defer adv.Close()

	reg, err := adv.Register(printerRecord())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	args := factory.lastArgs
	if args.instance != "Office Printer" {
		t.Errorf("instance = %q, want Office Printer", args.instance)
	}
	if args.service != ServiceHCRP || args.domain != DefaultDomain || args.port != 9100 {
		t.Errorf("Register args = %+v", args)
	}
	if len(args.txt) != 3 || args.txt[0] != "st=printer" {
		t.Errorf("txt = %q", args.txt)
	}
	if !adv.IsAdvertising("Office Printer") {
		t.Error("IsAdvertising() = false after Register")
	}

	if _, err := adv.Register(printerRecord()); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("second Register() error = %v, want ErrAlreadyRegistered", err)
	}

	if err := reg.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	reg.Close()
	if got := factory.servers[0].shutdowns(); got != 1 {
		t.Errorf("Shutdown called %d times, want 1", got)
	}
	if adv.IsAdvertising("Office Printer") {
		t.Error("IsAdvertising() = true after Close")
	}
}

func TestAdvertiser_RandomInstanceName(t *testing.T) {
	factory := &mockMDNSServerFactory{}
	adv := NewAdvertiser(AdvertiserConfig{ServerFactory: factory})
	defer adv.Close()

	rec := printerRecord()
	rec.Name = ""
	reg, err := adv.Register(rec)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	name := reg.(*Advertisement).Instance()
	if len(name) != 16 {
		t.Errorf("instance = %q, want 16 hex characters", name)
	}
	if reg.(*Advertisement).Record().Name != name {
		t.Errorf("Record().Name = %q, want %q", reg.(*Advertisement).Record().Name, name)
	}
}

func TestAdvertiser_Errors(t *testing.T) {
	factory := &mockMDNSServerFactory{}
	adv := NewAdvertiser(AdvertiserConfig{ServerFactory: factory})

	if _, err := adv.Register(ServiceRecord{Port: 9100}); !errors.Is(err, ErrInvalidServiceType) {
		t.Errorf("Register(no type) error = %v, want ErrInvalidServiceType", err)
	}
	rec := printerRecord()
	rec.Port = 0
	if _, err := adv.Register(rec); !errors.Is(err, ErrInvalidPort) {
		t.Errorf("Register(port 0) error = %v, want ErrInvalidPort", err)
	}

	factory.err = errors.New("no multicast")
	if _, err := adv.Register(printerRecord()); err == nil {
		t.Error("Register() succeeded with failing factory")
	}
	factory.err = nil

	if err := adv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := adv.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() error = %v, want ErrClosed", err)
	}
	if _, err := adv.Register(printerRecord()); !errors.Is(err, ErrClosed) {
		t.Errorf("Register() after Close error = %v, want ErrClosed", err)
	}
}

func TestAdvertiser_CloseShutsDownAll(t *testing.T) {
	factory := &mockMDNSServerFactory{}
	adv := NewAdvertiser(AdvertiserConfig{ServerFactory: factory})

	printer := printerRecord()
	scanner := printerRecord()
	scanner.Name = "Office Scanner"
	scanner.ServiceType = profile.ServiceTypeScanner
	adv.Register(printer)
	adv.Register(scanner)

	adv.Close()
	for i, s := range factory.servers {
		if s.shutdowns() != 1 {
			t.Errorf("server %d Shutdown called %d times, want 1", i, s.shutdowns())
		}
	}
}
