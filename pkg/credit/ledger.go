// Package credit implements the HCR Data channel credit ledger.
//
// Each peer keeps its own Ledger; nothing is shared across the link. The
// Client grants the Server credit to send (CreditGrant) and asks the Server
// for credit of its own (CreditRequest). Either view can drift from the
// other, which is what CreditQuery detects. Ledgers are values: every
// operation returns the updated ledger and leaves the receiver untouched on
// error.
package credit

import "math"

// Ledger tracks Data channel credit from one peer's point of view.
type Ledger struct {
	// SendCredit is the number of bytes this peer may still write to the
	// Data channel.
	SendCredit uint32

	// ReceiveCredit is the number of bytes this peer has granted the remote
	// peer and not yet seen consumed.
	ReceiveCredit uint32
}

// QueryResult compares a believed credit value with the authoritative one.
type QueryResult struct {
	Believed      uint32
	Authoritative uint32
	Synchronized  bool
}

// Grant records credit the Client grants the Server. Called on the Client.
func (l Ledger) Grant(n uint32) (Ledger, error) {
	v, err := add(l.ReceiveCredit, n)
	if err != nil {
		return l, err
	}
	l.ReceiveCredit = v
	return l, nil
}

// AcceptGrant records credit granted by the Client. Called on the Server.
func (l Ledger) AcceptGrant(n uint32) (Ledger, error) {
	return l.AddSend(n)
}

// Decide returns how much of a credit request the Server grants: the
// requested amount limited so that outstanding receive credit does not
// exceed capacity. A zero capacity places no limit.
func (l Ledger) Decide(requested, capacity uint32) uint32 {
	granted := requested
	if capacity > 0 {
		room := uint32(0)
		if capacity > l.ReceiveCredit {
			room = capacity - l.ReceiveCredit
		}
		granted = min(granted, room)
	}
	if room := math.MaxUint32 - l.ReceiveCredit; granted > room {
		granted = room
	}
	return granted
}

// AddReceive records credit this peer granted to the remote peer.
func (l Ledger) AddReceive(n uint32) (Ledger, error) {
	v, err := add(l.ReceiveCredit, n)
	if err != nil {
		return l, err
	}
	l.ReceiveCredit = v
	return l, nil
}

// AddSend records credit granted to this peer.
func (l Ledger) AddSend(n uint32) (Ledger, error) {
	v, err := add(l.SendCredit, n)
	if err != nil {
		return l, err
	}
	l.SendCredit = v
	return l, nil
}

// Return gives back n bytes of send credit. Fails with ErrInsufficientCredit
// if n exceeds the credit held.
func (l Ledger) Return(n uint32) (Ledger, error) {
	if n > l.SendCredit {
		return l, ErrInsufficientCredit
	}
	l.SendCredit -= n
	return l, nil
}

// AcceptReturn takes back up to n bytes of credit granted to the remote
// peer and reports the amount actually taken.
func (l Ledger) AcceptReturn(n uint32) (Ledger, uint32) {
	taken := min(n, l.ReceiveCredit)
	l.ReceiveCredit -= taken
	return l, taken
}

// Query compares believed with authoritative. It does not change the ledger.
func Query(believed, authoritative uint32) QueryResult {
	return QueryResult{
		Believed:      believed,
		Authoritative: authoritative,
		Synchronized:  believed == authoritative,
	}
}

// Consume takes credit for a Data channel write of want bytes and returns
// the number of bytes that may be sent.
func (l Ledger) Consume(want int) (int, Ledger) {
	if want <= 0 {
		return 0, l
	}
	accepted := want
	if uint64(want) > uint64(l.SendCredit) {
		accepted = int(l.SendCredit)
	}
	l.SendCredit -= uint32(accepted)
	return accepted, l
}

// Absorb accounts for n bytes received on the Data channel. Fails with
// ErrInsufficientCredit when the remote peer wrote more than it was granted.
func (l Ledger) Absorb(n int) (Ledger, error) {
	if n < 0 || uint64(n) > uint64(l.ReceiveCredit) {
		return l, ErrInsufficientCredit
	}
	l.ReceiveCredit -= uint32(n)
	return l, nil
}

// Reset returns the empty ledger.
func (l Ledger) Reset() Ledger {
	return Ledger{}
}

// IsZero reports whether the ledger holds no credit in either direction.
func (l Ledger) IsZero() bool {
	return l.SendCredit == 0 && l.ReceiveCredit == 0
}

func add(a, b uint32) (uint32, error) {
	if b > math.MaxUint32-a {
		return a, ErrOverflow
	}
	return a + b, nil
}
