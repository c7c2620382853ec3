package transaction

import "errors"

// Errors returned by the transaction package.
var (
	// ErrTransactionInProgress is returned by Begin while a request is pending.
	ErrTransactionInProgress = errors.New("transaction: transaction in progress")

	// ErrRoleViolation is returned when a Server-role manager tries to begin
	// a request, or a Client-role one accepts an inbound request.
	ErrRoleViolation = errors.New("transaction: role violation")

	// ErrStaleReply is returned by Complete for a reply that does not match
	// the pending transaction. The pending transaction is unaffected.
	ErrStaleReply = errors.New("transaction: stale reply")

	// ErrNoRequestPending is returned by Inbound.Take when no matching
	// request is waiting for a reply.
	ErrNoRequestPending = errors.New("transaction: no request pending")
)
