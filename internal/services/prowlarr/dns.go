package prowlarr

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

type dnsEntry struct {
	addrs   []string
	expires time.Time
}

// dnsCache remembers host lookups for ttl so pooled dials skip the resolver.
type dnsCache struct {
	ttl      time.Duration
	resolver *net.Resolver
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]dnsEntry
}

func newDNSCache(ttl time.Duration) *dnsCache {
	return &dnsCache{
		ttl:      ttl,
		resolver: net.DefaultResolver,
		now:      time.Now,
		entries:  make(map[string]dnsEntry),
	}
}

func (d *dnsCache) lookup(ctx context.Context, host string) ([]string, error) {
	now := d.now()
	d.mu.Lock()
	entry, ok := d.entries[host]
	d.mu.Unlock()
	if ok && now.Before(entry.expires) {
		return entry.addrs, nil
	}
	addrs, err := d.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
	}
	d.mu.Lock()
	d.entries[host] = dnsEntry{addrs: addrs, expires: now.Add(d.ttl)}
	d.mu.Unlock()
	return addrs, nil
}

func (d *dnsCache) clear() {
	d.mu.Lock()
	d.entries = make(map[string]dnsEntry)
	d.mu.Unlock()
}

// dialContext resolves through the cache and tries each address in turn.
// A zero ttl dials directly.
func (d *dnsCache) dialContext(dialer *net.Dialer) func(ctx context.Context, network, address string) (net.Conn, error) {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		if d.ttl <= 0 {
			return dialer.DialContext(ctx, network, address)
		}
		host, port, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		if net.ParseIP(host) != nil {
			return dialer.DialContext(ctx, network, address)
		}
		addrs, err := d.lookup(ctx, host)
		if err != nil {
			return nil, err
		}
		var errs []error
		for _, addr := range addrs {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(addr, port))
			if err == nil {
				return conn, nil
			}
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
		return nil, errors.Join(errs...)
	}
}
