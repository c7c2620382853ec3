package notification

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/backkem/hcrp/pkg/pdu"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRegistry_RegisterGrantsWithinPolicy(t *testing.T) {
	r := NewRegistry(Policy{
		MaxNotificationTimeout: time.Minute,
		MaxCallbackTimeout:     10 * time.Second,
	})

	tests := []struct {
		name      string
		notif, cb time.Duration
		wantNotif time.Duration
		wantCB    time.Duration
	}{
		{"within limits", 30 * time.Second, 5 * time.Second, 30 * time.Second, 5 * time.Second},
		{"shortened", time.Hour, time.Minute, time.Minute, 10 * time.Second},
		{"zero asks for max", 0, 0, time.Minute, 10 * time.Second},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Register(uint32(i+1), tt.notif, tt.cb, t0)
			if !got.Accepted || got.Status != pdu.ResultSuccess {
				t.Fatalf("Register() = %+v, want accepted", got)
			}
			if got.NotificationTimeout != tt.wantNotif || got.CallbackTimeout != tt.wantCB {
				t.Errorf("Register() granted %v/%v, want %v/%v",
					got.NotificationTimeout, got.CallbackTimeout, tt.wantNotif, tt.wantCB)
			}
			reg, ok := r.Lookup(uint32(i + 1))
			if !ok || !reg.ExpiresAt.Equal(t0.Add(tt.wantNotif)) || !reg.Armed {
				t.Errorf("Lookup() = %+v, %v", reg, ok)
			}
		})
	}
}

func TestRegistry_RejectWhenFull(t *testing.T) {
	r := NewRegistry(Policy{MaxRegistrations: 1})
	r.Register(1, 0, 0, t0)

	got := r.Register(2, 0, 0, t0)
	if got.Accepted || got.Status != pdu.ResultGenericFailure {
		t.Errorf("Register() on full table = %+v, want rejected GenericFailure", got)
	}

	// Refreshing an existing id is still allowed.
	if got := r.Register(1, 0, 0, t0.Add(time.Second)); !got.Accepted {
		t.Errorf("re-Register() = %+v, want accepted", got)
	}
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	r := NewRegistry(Policy{})
	r.Register(9, 0, 0, t0)
	r.Unregister(9)
	r.Unregister(9)
	r.Unregister(1234)
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_Tick(t *testing.T) {
	r := NewRegistry(Policy{MaxNotificationTimeout: time.Hour})
	r.Register(3, 10*time.Second, 0, t0)
	r.Register(1, 10*time.Second, 0, t0)
	r.Register(2, 20*time.Second, 0, t0)

	if got := r.Tick(t0.Add(9 * time.Second)); len(got) != 0 {
		t.Errorf("Tick(9s) = %v, want none", got)
	}
	if next, ok := r.NextExpiry(); !ok || !next.Equal(t0.Add(10*time.Second)) {
		t.Errorf("NextExpiry() = %v, %v", next, ok)
	}
	if got := r.Tick(t0.Add(10 * time.Second)); !reflect.DeepEqual(got, []uint32{1, 3}) {
		t.Errorf("Tick(10s) = %v, want [1 3]", got)
	}
	if got := r.IDs(); !reflect.DeepEqual(got, []uint32{2}) {
		t.Errorf("IDs() = %v, want [2]", got)
	}
}

func TestRegistry_NotifySingleShot(t *testing.T) {
	r := NewRegistry(Policy{})

	if _, err := r.Notify(42); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Notify(unknown) error = %v, want ErrNotRegistered", err)
	}

	r.Register(42, time.Minute, 5*time.Second, t0)

	got, err := r.Notify(42)
	if err != nil || got != OutcomeDelivered {
		t.Fatalf("first Notify() = %v, %v; want Delivered", got, err)
	}
	got, err = r.Notify(42)
	if err != nil || got != OutcomeConnectionAliveRequestNeeded {
		t.Fatalf("second Notify() = %v, %v; want ConnectionAliveRequestNeeded", got, err)
	}

	if n := r.KeepAlive(2*time.Minute, t0.Add(30*time.Second)); n != 1 {
		t.Errorf("KeepAlive() = %d, want 1", n)
	}
	reg, _ := r.Lookup(42)
	if !reg.ExpiresAt.Equal(t0.Add(150 * time.Second)) {
		t.Errorf("ExpiresAt = %v, want +150s", reg.ExpiresAt.Sub(t0))
	}
	if got, _ := r.Notify(42); got != OutcomeDelivered {
		t.Errorf("Notify() after KeepAlive = %v, want Delivered", got)
	}
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry(Policy{})
	r.Register(1, 0, 0, t0)
	r.Record(2, time.Second, time.Second, t0)
	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", r.Len())
	}
	if _, ok := r.NextExpiry(); ok {
		t.Error("NextExpiry() after Clear reports an entry")
	}
}
