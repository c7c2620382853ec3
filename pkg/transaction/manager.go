package transaction

import (
	"time"

	"github.com/backkem/hcrp/pkg/pdu"
	"github.com/backkem/hcrp/pkg/profile"
)

// Transaction is one outstanding Control channel request.
type Transaction struct {
	ID       uint16
	PDUID    pdu.PDUID
	IssuedAt time.Time
}

// Manager enforces the single-outstanding-request rule for one Control
// channel. It is owned by a single session and is not safe for concurrent
// use.
type Manager struct {
	role    profile.Role
	state   State
	pending Transaction
	nextID  uint16
}

// NewManager creates an idle transaction manager for the given role.
func NewManager(role profile.Role) *Manager {
	return &Manager{role: role}
}

// State returns the current state.
func (m *Manager) State() State {
	return m.state
}

// Pending returns the outstanding transaction, if any.
func (m *Manager) Pending() (Transaction, bool) {
	return m.pending, m.state == StatePending
}

// Begin starts a transaction for a request with the given PDU id and
// returns its Transaction_ID.
func (m *Manager) Begin(pduID pdu.PDUID, now time.Time) (uint16, error) {
	if m.role != profile.RoleClient {
		return 0, ErrRoleViolation
	}
	if m.state == StatePending {
		return 0, ErrTransactionInProgress
	}

	id := m.nextID
	m.nextID++

	m.pending = Transaction{ID: id, PDUID: pduID, IssuedAt: now}
	m.state = StatePending
	return id, nil
}

// Complete matches a reply against the pending transaction. On a match the
// manager returns to Idle and the completed transaction is returned. A reply
// received while Idle, or carrying a different Transaction_ID or PDU_ID,
// yields ErrStaleReply and leaves the manager unchanged.
func (m *Manager) Complete(tid uint16, pduID pdu.PDUID) (Transaction, error) {
	if m.state != StatePending || m.pending.ID != tid || m.pending.PDUID != pduID {
		return Transaction{}, ErrStaleReply
	}
	done := m.pending
	m.reset()
	return done, nil
}

// TimeoutCheck expires the pending transaction once more than timeout has
// passed since it was issued. It returns the expired transaction and true,
// and the manager is Idle afterwards.
func (m *Manager) TimeoutCheck(now time.Time, timeout time.Duration) (Transaction, bool) {
	if m.state != StatePending {
		return Transaction{}, false
	}
	if now.Sub(m.pending.IssuedAt) <= timeout {
		return Transaction{}, false
	}
	expired := m.pending
	m.reset()
	return expired, true
}

// Deadline returns when the pending transaction expires.
func (m *Manager) Deadline(timeout time.Duration) (time.Time, bool) {
	if m.state != StatePending {
		return time.Time{}, false
	}
	return m.pending.IssuedAt.Add(timeout), true
}

// Abort discards any pending transaction without waiting for its reply.
// It reports whether a transaction was discarded.
func (m *Manager) Abort() (Transaction, bool) {
	if m.state != StatePending {
		return Transaction{}, false
	}
	aborted := m.pending
	m.reset()
	return aborted, true
}

func (m *Manager) reset() {
	m.pending = Transaction{}
	m.state = StateIdle
}
