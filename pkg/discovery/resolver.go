package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultBrowseTimeout is the default timeout for browse operations.
const DefaultBrowseTimeout = 10 * time.Second

// DefaultLookupTimeout is the default timeout for lookup operations.
const DefaultLookupTimeout = 5 * time.Second

// ResolvedService is a discovered HCR server.
type ResolvedService struct {
	// Record holds the fields parsed from the TXT record plus the instance
	// name and port.
	Record ServiceRecord

	// HostName is the target host name.
	HostName string

	// IPs contains the resolved IP addresses, IPv4 first.
	IPs []net.IP
}

// PreferredIP returns the first address, or nil when none resolved.
func (r *ResolvedService) PreferredIP() net.IP {
	if len(r.IPs) > 0 {
		return r.IPs[0]
	}
	return nil
}

// Addr returns "ip:port" for the preferred address, or "" when none resolved.
func (r *ResolvedService) Addr() string {
	ip := r.PreferredIP()
	if ip == nil {
		return ""
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(r.Record.Port))
}

// MDNSResolver is the interface for mDNS service resolution.
// This allows for dependency injection in tests.
type MDNSResolver interface {
	// Browse browses for services of the given type.
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

	// Lookup looks up a specific service instance.
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using grandcat/zeroconf.
type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Browse(ctx, service, domain, entries)
}

func (z *zeroconfResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Lookup(ctx, instance, service, domain, entries)
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	// MDNSResolver is the underlying mDNS resolver implementation.
	// If nil, the default zeroconf resolver is used.
	MDNSResolver MDNSResolver

	// BrowseTimeout is the timeout for browse operations.
	// If zero, DefaultBrowseTimeout is used.
	BrowseTimeout time.Duration

	// LookupTimeout is the timeout for lookup operations.
	// If zero, DefaultLookupTimeout is used.
	LookupTimeout time.Duration

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Resolver discovers HCR servers via DNS-SD.
type Resolver struct {
	config   ResolverConfig
	resolver MDNSResolver
	log      logging.LeveledLogger
}

// NewResolver creates a new Resolver with the given configuration.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		zr, err := newZeroconfResolver()
		if err != nil {
			return nil, err
		}
		resolver = zr
	}

	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}
	if config.LookupTimeout == 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}

	r := &Resolver{
		config:   config,
		resolver: resolver,
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("discovery")
	}
	return r, nil
}

// Browse discovers HCR servers. The returned channel is closed when the
// context ends or the browse timeout expires. Entries whose TXT record does
// not parse are skipped.
func (r *Resolver) Browse(ctx context.Context) (<-chan ResolvedService, error) {
	results := make(chan ResolvedService)
	entries := make(chan *zeroconf.ServiceEntry)

	ctx, cancel := context.WithTimeout(ctx, r.config.BrowseTimeout)

	go func() {
		defer cancel()
		defer close(results)

		go func() {
			defer close(entries)
			if err := r.resolver.Browse(ctx, ServiceHCRP, DefaultDomain, entries); err != nil && r.log != nil {
				r.log.Warnf("browse: %v", err)
			}
		}()

		for entry := range entries {
			svc, err := entryToResolvedService(entry)
			if err != nil {
				if r.log != nil {
					r.log.Debugf("skipping %q: %v", entry.Instance, err)
				}
				continue
			}
			select {
			case results <- svc:
			case <-ctx.Done():
				// Drain so the browse goroutine can finish.
				for range entries {
				}
				return
			}
		}
	}()

	return results, nil
}

// Lookup resolves one instance by name.
func (r *Resolver) Lookup(ctx context.Context, instance string) (*ResolvedService, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.LookupTimeout)
		defer cancel()
	}

	lookupCtx, stop := context.WithCancel(ctx)
	defer stop()

	entries := make(chan *zeroconf.ServiceEntry, 1)
	var lookupErr error
	go func() {
		defer close(entries)
		if err := r.resolver.Lookup(lookupCtx, instance, ServiceHCRP, DefaultDomain, entries); err != nil {
			lookupErr = err
			if r.log != nil {
				r.log.Warnf("lookup %q: %v", instance, err)
			}
		}
	}()

	select {
	case entry, ok := <-entries:
		if !ok && lookupErr != nil {
			return nil, fmt.Errorf("discovery: lookup %q: %w", instance, lookupErr)
		}
		if !ok || entry == nil {
			return nil, ErrServiceNotFound
		}
		svc, err := entryToResolvedService(entry)
		if err != nil {
			return nil, err
		}
		return &svc, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// entryToResolvedService converts a zeroconf.ServiceEntry to ResolvedService.
func entryToResolvedService(entry *zeroconf.ServiceEntry) (ResolvedService, error) {
	rec, err := ParseServiceTXT(entry.Text)
	if err != nil {
		return ResolvedService{}, err
	}
	rec.Name = entry.Instance
	rec.Port = entry.Port

	ips := make([]net.IP, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	ips = append(ips, entry.AddrIPv4...)
	ips = append(ips, entry.AddrIPv6...)
	sortIPs(ips)

	return ResolvedService{
		Record:   rec,
		HostName: entry.HostName,
		IPs:      ips,
	}, nil
}

// sortIPs orders addresses IPv4 first, then IPv6 by scope (global before
// link-local). QUIC dials IPv4 without a zone, so it goes first.
func sortIPs(ips []net.IP) {
	rank := func(ip net.IP) int {
		switch {
		case ip.To4() != nil:
			return 0
		case ip.IsLinkLocalUnicast():
			return 2
		default:
			return 1
		}
	}
	sort.SliceStable(ips, func(i, j int) bool { return rank(ips[i]) < rank(ips[j]) })
}
