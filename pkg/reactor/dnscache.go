package reactor

import (
	"context"
	"net"
	"sync"
	"time"
)

// dnsCache is a minimal TTL-bounded resolver cache, standing in for the
// HTTP client's "DNS cache timeout" option: repeated dispatches to the
// same host within one worker's slice reuse a resolved address instead of
// re-resolving on every connection.
type dnsCache struct {
	ttl      time.Duration
	resolver *net.Resolver

	mu      sync.Mutex
	entries map[string]dnsCacheEntry
}

type dnsCacheEntry struct {
	addrs     []string
	resolvedAt time.Time
}

func newDNSCache(ttl time.Duration) *dnsCache {
	return &dnsCache{
		ttl:      ttl,
		resolver: net.DefaultResolver,
		entries:  make(map[string]dnsCacheEntry),
	}
}

// dialContext resolves host through the cache before dialing, falling back
// to the standard dialer's own resolution when the cache is disabled (ttl
// <= 0) or lookup fails.
func (c *dnsCache) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	if c.ttl <= 0 {
		return dialer.DialContext(ctx, network, addr)
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return dialer.DialContext(ctx, network, addr)
	}
	if net.ParseIP(host) != nil {
		return dialer.DialContext(ctx, network, addr)
	}

	ip, ok := c.lookup(host)
	if !ok {
		addrs, err := c.resolver.LookupHost(ctx, host)
		if err != nil || len(addrs) == 0 {
			return dialer.DialContext(ctx, network, addr)
		}
		c.store(host, addrs)
		ip = addrs[0]
	}
	return dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func (c *dnsCache) lookup(host string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[host]
	if !ok || time.Since(entry.resolvedAt) > c.ttl || len(entry.addrs) == 0 {
		return "", false
	}
	return entry.addrs[0], true
}

func (c *dnsCache) store(host string, addrs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[host] = dnsCacheEntry{addrs: addrs, resolvedAt: time.Now()}
}
