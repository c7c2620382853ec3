package discovery

import (
	"context"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
)

// MockMDNSResolver provides a mock mDNS resolver for testing without real network I/O.
// It allows registering services and simulating discovery responses.
type MockMDNSResolver struct {
	mu       sync.RWMutex
	services map[string][]*zeroconf.ServiceEntry
}

// NewMockMDNSResolver creates a new mock resolver.
func NewMockMDNSResolver() *MockMDNSResolver {
	return &MockMDNSResolver{
		services: make(map[string][]*zeroconf.ServiceEntry),
	}
}

// RegisterService registers a service that will be returned by Browse/Lookup.
func (m *MockMDNSResolver) RegisterService(service string, entry *zeroconf.ServiceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[service] = append(m.services[service], entry)
}

// ClearServices removes all registered services.
func (m *MockMDNSResolver) ClearServices() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = make(map[string][]*zeroconf.ServiceEntry)
}

func (m *MockMDNSResolver) entries(service string) []*zeroconf.ServiceEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*zeroconf.ServiceEntry, len(m.services[service]))
	copy(out, m.services[service])
	return out
}

// Browse implements MDNSResolver.
func (m *MockMDNSResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	// Sent synchronously; the caller closes entries after Browse returns.
	for _, entry := range m.entries(service) {
		select {
		case entries <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Lookup implements MDNSResolver.
func (m *MockMDNSResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	for _, entry := range m.entries(service) {
		if entry.Instance == instance {
			select {
			case entries <- entry:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		}
	}
	return nil
}

// MockService creates a mock _hcrp._udp service entry for rec at ip.
func MockService(rec ServiceRecord, ip net.IP) *zeroconf.ServiceEntry {
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: rec.Name,
			Service:  ServiceHCRP,
			Domain:   DefaultDomain,
		},
		HostName: rec.Name + ".local.",
		Port:     rec.Port,
		Text:     rec.EncodeTXT(),
	}
	if ip.To4() != nil {
		entry.AddrIPv4 = []net.IP{ip}
	} else {
		entry.AddrIPv6 = []net.IP{ip}
	}
	return entry
}
