package transaction

import (
	"github.com/backkem/hcrp/pkg/pdu"
	"github.com/backkem/hcrp/pkg/profile"
)

// Request is a received Control channel request awaiting its reply.
type Request struct {
	TransactionID uint16
	Message       pdu.Message
}

// Inbound holds the request a Server has just received. A reply may only be
// sent while a request with the same PDU id is held, and sending it releases
// the slot.
type Inbound struct {
	role    profile.Role
	request Request
	held    bool
}

// NewInbound creates an empty inbound slot for the given role.
func NewInbound(role profile.Role) *Inbound {
	return &Inbound{role: role}
}

// Accept stores a newly received request. A request that arrives while
// another is still unanswered replaces it; the Client's transaction for the
// older one has already been abandoned.
func (in *Inbound) Accept(tid uint16, m pdu.Message) (replaced bool, err error) {
	if in.role != profile.RoleServer {
		return false, ErrRoleViolation
	}
	replaced = in.held
	in.request = Request{TransactionID: tid, Message: m}
	in.held = true
	return replaced, nil
}

// Peek returns the held request without releasing it.
func (in *Inbound) Peek() (Request, bool) {
	return in.request, in.held
}

// Take releases the held request if its PDU id matches.
func (in *Inbound) Take(pduID pdu.PDUID) (Request, error) {
	if in.role != profile.RoleServer {
		return Request{}, ErrRoleViolation
	}
	if !in.held || in.request.Message.PDUID() != pduID {
		return Request{}, ErrNoRequestPending
	}
	req := in.request
	in.Clear()
	return req, nil
}

// Clear drops any held request.
func (in *Inbound) Clear() {
	in.request = Request{}
	in.held = false
}
