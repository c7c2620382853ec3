package notification

import (
	"sort"
	"time"

	"github.com/backkem/hcrp/pkg/pdu"
)

// Policy limits what a Server grants. Zero fields take the package defaults.
type Policy struct {
	MaxNotificationTimeout time.Duration
	MaxCallbackTimeout     time.Duration
	MaxRegistrations       int
}

func (p *Policy) applyDefaults() {
	if p.MaxNotificationTimeout <= 0 {
		p.MaxNotificationTimeout = DefaultMaxNotificationTimeout
	}
	if p.MaxCallbackTimeout <= 0 {
		p.MaxCallbackTimeout = DefaultMaxCallbackTimeout
	}
	if p.MaxRegistrations <= 0 {
		p.MaxRegistrations = DefaultMaxRegistrations
	}
}

// Registration is one registered callback context.
type Registration struct {
	ContextID           uint32
	NotificationTimeout time.Duration
	CallbackTimeout     time.Duration
	ExpiresAt           time.Time

	// Armed is true until the registration's one notification is delivered.
	Armed bool
}

// Result is the outcome of Register.
type Result struct {
	Accepted            bool
	NotificationTimeout time.Duration
	CallbackTimeout     time.Duration

	// Status is the reply result code: Success when accepted.
	Status pdu.ResultCode
}

// Registry holds the registrations of one session, keyed by context id.
// It is owned by a single session and is not safe for concurrent use.
type Registry struct {
	policy  Policy
	entries map[uint32]*Registration
}

// NewRegistry creates an empty registry.
func NewRegistry(policy Policy) *Registry {
	policy.applyDefaults()
	return &Registry{
		policy:  policy,
		entries: make(map[uint32]*Registration),
	}
}

// Policy returns the effective grant policy.
func (r *Registry) Policy() Policy {
	return r.policy
}

// Register adds or refreshes a registration, granting at most the policy
// limits. A zero requested timeout asks for the policy maximum.
func (r *Registry) Register(id uint32, notificationTimeout, callbackTimeout time.Duration, now time.Time) Result {
	if _, exists := r.entries[id]; !exists && len(r.entries) >= r.policy.MaxRegistrations {
		return Result{Status: pdu.ResultGenericFailure}
	}

	granted := Result{
		Accepted:            true,
		NotificationTimeout: grant(notificationTimeout, r.policy.MaxNotificationTimeout),
		CallbackTimeout:     grant(callbackTimeout, r.policy.MaxCallbackTimeout),
		Status:              pdu.ResultSuccess,
	}
	r.Record(id, granted.NotificationTimeout, granted.CallbackTimeout, now)
	return granted
}

// Record stores a registration with the timeouts already granted. Clients
// use it to mirror what the Server accepted.
func (r *Registry) Record(id uint32, notificationTimeout, callbackTimeout time.Duration, now time.Time) {
	r.entries[id] = &Registration{
		ContextID:           id,
		NotificationTimeout: notificationTimeout,
		CallbackTimeout:     callbackTimeout,
		ExpiresAt:           now.Add(notificationTimeout),
		Armed:               true,
	}
}

// Unregister removes a registration. Removing an absent id is not an error.
func (r *Registry) Unregister(id uint32) {
	delete(r.entries, id)
}

// Lookup returns a copy of the registration for id.
func (r *Registry) Lookup(id uint32) (Registration, bool) {
	reg, ok := r.entries[id]
	if !ok {
		return Registration{}, false
	}
	return *reg, true
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	return len(r.entries)
}

// IDs returns the registered context ids in ascending order.
func (r *Registry) IDs() []uint32 {
	ids := make([]uint32, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Tick removes registrations whose expiry is at or before now and returns
// their context ids in ascending order.
func (r *Registry) Tick(now time.Time) []uint32 {
	var expired []uint32
	for id, reg := range r.entries {
		if !reg.ExpiresAt.After(now) {
			expired = append(expired, id)
			delete(r.entries, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	return expired
}

// Notify consumes the registration's single notification.
func (r *Registry) Notify(id uint32) (Outcome, error) {
	reg, ok := r.entries[id]
	if !ok {
		return 0, ErrNotRegistered
	}
	if !reg.Armed {
		return OutcomeConnectionAliveRequestNeeded, nil
	}
	reg.Armed = false
	return OutcomeDelivered, nil
}

// KeepAlive re-arms every registration and pushes its expiry to at least
// now plus increment. It returns the number of registrations kept alive.
func (r *Registry) KeepAlive(increment time.Duration, now time.Time) int {
	until := now.Add(increment)
	for _, reg := range r.entries {
		reg.Armed = true
		if until.After(reg.ExpiresAt) {
			reg.ExpiresAt = until
		}
	}
	return len(r.entries)
}

// NextExpiry returns the earliest registration expiry.
func (r *Registry) NextExpiry() (time.Time, bool) {
	var (
		next  time.Time
		found bool
	)
	for _, reg := range r.entries {
		if !found || reg.ExpiresAt.Before(next) {
			next = reg.ExpiresAt
			found = true
		}
	}
	return next, found
}

// Clear removes every registration.
func (r *Registry) Clear() {
	clear(r.entries)
}

func grant(requested, limit time.Duration) time.Duration {
	if requested <= 0 || requested > limit {
		return limit
	}
	return requested
}
