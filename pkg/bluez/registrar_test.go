package bluez

import (
	"errors"
	"sync"
	"testing"

	dbus "github.com/godbus/dbus/v5"

	"github.com/backkem/hcrp/pkg/discovery"
	"github.com/backkem/hcrp/pkg/profile"
)

type busCall struct {
	method string
	args   []interface{}
}

type fakeConn struct {
	mu        sync.Mutex
	exported  map[dbus.ObjectPath]interface{}
	calls     []busCall
	callErr   error
	exportErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{exported: make(map[dbus.ObjectPath]interface{})}
}

func (f *fakeConn) export(v interface{}, path dbus.ObjectPath) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exportErr != nil {
		return f.exportErr
	}
	f.exported[path] = v
	return nil
}

func (f *fakeConn) unexport(path dbus.ObjectPath) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.exported, path)
	return nil
}

func (f *fakeConn) call(method string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, busCall{method: method, args: args})
	return f.callErr
}

func printer() discovery.ServiceRecord {
	return discovery.ServiceRecord{Name: "Jet", ServiceType: profile.ServiceTypePrinter}
}

func TestRegistrar_Register(t *testing.T) {
	fc := newFakeConn()
	r := newRegistrar(fc, Config{})

	reg, err := r.Register(printer())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	path := reg.(*Registration).Path()
	if path != DefaultBasePath+"/p1" {
		t.Errorf("Path() = %q", path)
	}
	if _, ok := fc.exported[path]; !ok {
		t.Fatal("profile not exported")
	}

	if len(fc.calls) != 1 || fc.calls[0].method != "RegisterProfile" {
		t.Fatalf("calls = %+v, want RegisterProfile", fc.calls)
	}
	args := fc.calls[0].args
	if args[0] != path || args[1] != profile.UUIDHCRPrint {
		t.Errorf("RegisterProfile args = %v", args[:2])
	}
	opts := args[2].(map[string]dbus.Variant)
	if got := opts["PSM"].Value(); got != profile.DefaultControlPSM {
		t.Errorf("PSM = %v, want default control PSM", got)
	}
	if got := opts["Role"].Value(); got != "server" {
		t.Errorf("Role = %v, want server", got)
	}
	if got := opts["Name"].Value(); got != "Jet" {
		t.Errorf("Name = %v, want Jet", got)
	}

	if err := reg.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	reg.Close()
	if len(fc.calls) != 2 || fc.calls[1].method != "UnregisterProfile" {
		t.Errorf("calls = %+v, want one UnregisterProfile", fc.calls)
	}
	if _, ok := fc.exported[path]; ok {
		t.Error("profile still exported after Close")
	}
}

func TestRegistrar_RegisterFailures(t *testing.T) {
	fc := newFakeConn()
	r := newRegistrar(fc, Config{})

	if _, err := r.Register(discovery.ServiceRecord{}); !errors.Is(err, discovery.ErrInvalidServiceType) {
		t.Errorf("Register(no type) error = %v, want ErrInvalidServiceType", err)
	}

	fc.callErr = errors.New("org.bluez.Error.AlreadyExists")
	if _, err := r.Register(printer()); err == nil {
		t.Error("Register() succeeded while BlueZ refused")
	}
	if len(fc.exported) != 0 {
		t.Error("profile left exported after failed registration")
	}

	fc.callErr = nil
	fc.exportErr = errors.New("path in use")
	if _, err := r.Register(printer()); err == nil {
		t.Error("Register() succeeded while export failed")
	}
}

func TestRegistrar_Close(t *testing.T) {
	fc := newFakeConn()
	r := newRegistrar(fc, Config{BasePath: "/test"})

	scanner := printer()
	scanner.ServiceType = profile.ServiceTypeScanner
	r.Register(printer())
	r.Register(scanner)

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(fc.exported) != 0 {
		t.Errorf("%d profiles still exported", len(fc.exported))
	}
	if _, err := r.Register(printer()); !errors.Is(err, ErrClosed) {
		t.Errorf("Register() after Close error = %v, want ErrClosed", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestProfile1_NewConnection(t *testing.T) {
	var gotDevice string
	var gotFD int
	var gotRec discovery.ServiceRecord
	fc := newFakeConn()
	r := newRegistrar(fc, Config{OnConnection: func(rec discovery.ServiceRecord, device string, fd int) {
		gotRec, gotDevice, gotFD = rec, device, fd
	}})

	reg, _ := r.Register(printer())
	p := fc.exported[reg.(*Registration).Path()].(*profile1)

	if derr := p.NewConnection("/org/bluez/hci0/dev_00_11_22_33_44_55", 42, nil); derr != nil {
		t.Fatalf("NewConnection() error = %v", derr)
	}
	if gotDevice != "/org/bluez/hci0/dev_00_11_22_33_44_55" || gotFD != 42 {
		t.Errorf("callback got device %q fd %d", gotDevice, gotFD)
	}
	if gotRec.DataPSM != profile.DefaultDataPSM {
		t.Errorf("callback record DataPSM = 0x%04X, want default", gotRec.DataPSM)
	}
}

func TestProfileOptions_DefaultName(t *testing.T) {
	rec := discovery.ServiceRecord{ServiceType: profile.ServiceTypeScanner, ControlPSM: 0x1011}
	opts := profileOptions(rec)
	if got := opts["Name"].Value(); got != "HCR Scanner" {
		t.Errorf("Name = %v, want HCR Scanner", got)
	}
	if got := opts["Service"].Value(); got != profile.UUIDHCRScan {
		t.Errorf("Service = %v, want scan UUID", got)
	}
	if got := opts["PSM"].Value(); got != uint16(0x1011) {
		t.Errorf("PSM = %v, want 0x1011", got)
	}
}
