// Package publicaddr resolves the host's publicly-visible IPv4 address,
// caching the result for a fixed TTL and falling back to a local interface
// address when no probe succeeds.
package publicaddr

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pocketrelay/bridge/internal/constants"
)

// probeURLs are tried in order; the first one that returns a parseable IPv4
// address wins.
var probeURLs = []string{
	"https://api.ipify.org/",
	"https://ipv4.icanhazip.com/",
}

// Resolver caches the public address for constants.PublicIPTTL, refreshing
// it from the network under a single writer at a time. An expired value is
// never returned: callers that arrive during a refresh wait for it to finish
// and then get the refreshed value.
type Resolver struct {
	client    *http.Client
	probeURLs []string

	mu      sync.RWMutex
	value   net.IP
	expires time.Time
	set     bool
}

// NewResolver builds a Resolver using its own short-timeout HTTP client,
// independent of the one used for server lookup/telemetry.
func NewResolver() *Resolver {
	return &Resolver{client: &http.Client{Timeout: 5 * time.Second}, probeURLs: probeURLs}
}

// NewResolverWithProbes builds a Resolver that queries the given URLs
// instead of the real public IP services, for tests.
func NewResolverWithProbes(client *http.Client, urls []string) *Resolver {
	return &Resolver{client: client, probeURLs: urls}
}

// Resolve returns the cached or freshly-probed public IPv4 address. It
// returns ok=false only when both probes and the local-interface fallback
// fail; in that case nothing is cached.
func (r *Resolver) Resolve(ctx context.Context) (net.IP, bool) {
	if ip, ok := r.cached(); ok {
		return ip, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another writer may have refreshed the cache while we waited for the
	// lock; re-check before hitting the network again.
	if r.set && time.Now().Before(r.expires) {
		return r.value, true
	}

	ip := r.probe(ctx)
	if ip == nil {
		ip = localInterfaceIPv4()
	}
	if ip == nil {
		return nil, false
	}

	r.value = ip
	r.expires = time.Now().Add(constants.PublicIPTTL)
	r.set = true
	return ip, true
}

func (r *Resolver) cached() (net.IP, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.set && time.Now().Before(r.expires) {
		return r.value, true
	}
	return nil, false
}

func (r *Resolver) probe(ctx context.Context) net.IP {
	for _, addr := range r.probeURLs {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
		if err != nil {
			continue
		}
		resp, err := r.client.Do(req)
		if err != nil {
			log.Debug().Err(err).Str("probe", addr).Msg("[publicaddr] probe failed")
			continue
		}
		body, err := readAll(resp)
		if err != nil {
			continue
		}
		text := strings.ReplaceAll(strings.TrimSpace(string(body)), "\n", "")
		if ip := net.ParseIP(text); ip != nil {
			if v4 := ip.To4(); v4 != nil {
				return v4
			}
		}
	}
	return nil
}

// IsLoopbackOrPrivate reports whether ip is loopback or RFC1918 private --
// an address not reachable from outside this machine's own network.
func IsLoopbackOrPrivate(ip net.IP) bool {
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

func readAll(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, 256))
}

func localInterfaceIPv4() net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		v4 := ipNet.IP.To4()
		if v4 == nil || v4.IsLoopback() {
			continue
		}
		return v4
	}
	return nil
}
