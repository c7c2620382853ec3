package credit

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestLedger_GrantPair(t *testing.T) {
	var client, server Ledger

	client, err := client.Grant(100)
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	server, err = server.AcceptGrant(100)
	if err != nil {
		t.Fatalf("AcceptGrant() error = %v", err)
	}

	if client.ReceiveCredit != 100 || client.SendCredit != 0 {
		t.Errorf("client = %+v, want ReceiveCredit 100", client)
	}
	if server.SendCredit != 100 || server.ReceiveCredit != 0 {
		t.Errorf("server = %+v, want SendCredit 100", server)
	}
}

func TestLedger_Decide(t *testing.T) {
	tests := []struct {
		name      string
		ledger    Ledger
		requested uint32
		capacity  uint32
		want      uint32
	}{
		{"no cap", Ledger{}, 500, 0, 500},
		{"under cap", Ledger{}, 50, 100, 50},
		{"capped", Ledger{ReceiveCredit: 80}, 50, 100, 20},
		{"cap exhausted", Ledger{ReceiveCredit: 120}, 50, 100, 0},
		{"overflow guard", Ledger{ReceiveCredit: math.MaxUint32 - 3}, 10, 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ledger.Decide(tt.requested, tt.capacity)
			if got != tt.want {
				t.Errorf("Decide(%d, %d) = %d, want %d", tt.requested, tt.capacity, got, tt.want)
			}
			if got > tt.requested {
				t.Errorf("Decide() granted more than requested")
			}
		})
	}
}

func TestLedger_ReturnInsufficient(t *testing.T) {
	l := Ledger{SendCredit: 10, ReceiveCredit: 3}
	got, err := l.Return(11)
	if !errors.Is(err, ErrInsufficientCredit) {
		t.Fatalf("Return(11) error = %v, want ErrInsufficientCredit", err)
	}
	if got != l {
		t.Errorf("Return() mutated ledger on error: %+v", got)
	}

	got, err = l.Return(10)
	if err != nil {
		t.Fatalf("Return(10) error = %v", err)
	}
	if got.SendCredit != 0 {
		t.Errorf("SendCredit = %d, want 0", got.SendCredit)
	}
}

func TestLedger_AcceptReturn(t *testing.T) {
	l := Ledger{ReceiveCredit: 30}
	l, taken := l.AcceptReturn(50)
	if taken != 30 || l.ReceiveCredit != 0 {
		t.Errorf("AcceptReturn(50) = %d, %+v; want 30, empty", taken, l)
	}
}

func TestLedger_Overflow(t *testing.T) {
	l := Ledger{SendCredit: math.MaxUint32}
	got, err := l.AddSend(1)
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("AddSend() error = %v, want ErrOverflow", err)
	}
	if got != l {
		t.Errorf("AddSend() mutated ledger on error")
	}
	if _, err := (Ledger{ReceiveCredit: math.MaxUint32}).Grant(1); !errors.Is(err, ErrOverflow) {
		t.Errorf("Grant() error = %v, want ErrOverflow", err)
	}
}

func TestLedger_ConsumeAbsorb(t *testing.T) {
	l := Ledger{SendCredit: 8}
	n, l := l.Consume(20)
	if n != 8 || l.SendCredit != 0 {
		t.Errorf("Consume(20) = %d, %+v; want 8, empty", n, l)
	}
	n, l = l.Consume(5)
	if n != 0 {
		t.Errorf("Consume() with no credit = %d, want 0", n)
	}

	r := Ledger{ReceiveCredit: 10}
	r, err := r.Absorb(4)
	if err != nil || r.ReceiveCredit != 6 {
		t.Errorf("Absorb(4) = %+v, %v; want 6, nil", r, err)
	}
	if _, err := r.Absorb(7); !errors.Is(err, ErrInsufficientCredit) {
		t.Errorf("Absorb(7) error = %v, want ErrInsufficientCredit", err)
	}
}

func TestQuery(t *testing.T) {
	if q := Query(5, 5); !q.Synchronized {
		t.Errorf("Query(5, 5) = %+v, want synchronized", q)
	}
	q := Query(5, 7)
	if q.Synchronized || q.Believed != 5 || q.Authoritative != 7 {
		t.Errorf("Query(5, 7) = %+v", q)
	}
}

func TestLedger_Reset(t *testing.T) {
	l := Ledger{SendCredit: 1, ReceiveCredit: 2}.Reset()
	if !l.IsZero() {
		t.Errorf("Reset() = %+v, want zero", l)
	}
}

// TestLedger_RandomSequences drives a client/server pair through random
// operations and checks the pair stays consistent and never underflows.
func TestLedger_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for run := 0; run < 200; run++ {
		var client, server Ledger
		for step := 0; step < 100; step++ {
			amount := uint32(rng.Intn(1000))
			switch rng.Intn(5) {
			case 0: // client grants
				c, err := client.Grant(amount)
				if err != nil {
					continue
				}
				s, err := server.AcceptGrant(amount)
				if err != nil {
					continue
				}
				client, server = c, s
			case 1: // client requests, server decides
				granted := server.Decide(amount, 5000)
				s, err := server.AddReceive(granted)
				if err != nil {
					t.Fatalf("AddReceive() error = %v", err)
				}
				c, err := client.AddSend(granted)
				if err != nil {
					t.Fatalf("AddSend() error = %v", err)
				}
				client, server = c, s
			case 2: // client returns
				c, err := client.Return(amount)
				if err != nil {
					if amount <= client.SendCredit {
						t.Fatalf("Return(%d) failed with %d held", amount, client.SendCredit)
					}
					continue
				}
				var taken uint32
				server, taken = server.AcceptReturn(amount)
				if taken != amount {
					t.Fatalf("AcceptReturn(%d) took %d", amount, taken)
				}
				client = c
			case 3: // client writes
				var n int
				n, client = client.Consume(int(amount))
				s, err := server.Absorb(n)
				if err != nil {
					t.Fatalf("Absorb(%d) error = %v", n, err)
				}
				server = s
			case 4: // server writes
				var n int
				n, server = server.Consume(int(amount))
				c, err := client.Absorb(n)
				if err != nil {
					t.Fatalf("Absorb(%d) error = %v", n, err)
				}
				client = c
			}

			if q := Query(client.SendCredit, server.ReceiveCredit); !q.Synchronized {
				t.Fatalf("run %d step %d: client send %d != server receive %d", run, step, q.Believed, q.Authoritative)
			}
			if q := Query(client.ReceiveCredit, server.SendCredit); !q.Synchronized {
				t.Fatalf("run %d step %d: client receive %d != server send %d", run, step, q.Believed, q.Authoritative)
			}
		}
	}
}
