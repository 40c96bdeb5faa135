// Package ratelimit limits GraphQL requests per client address.
//
// Each client gets its own token bucket. Buckets idle for longer than the
// entry TTL are dropped by a background sweep, so Stop must be called when
// the limiter is no longer used.
package ratelimit

import (
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defaults.
const (
	DefaultCleanupInterval = time.Minute
	DefaultEntryTTL        = time.Minute
)

// Config configures a Limiter.
type Config struct {
	Rate            float64       // requests per second per client
	Burst           int           // bucket capacity, defaults to twice Rate
	TrustedProxies  []string      // CIDR ranges or addresses whose forwarding headers are honored
	CleanupInterval time.Duration // how often idle clients are swept
	EntryTTL        time.Duration // how long a client may stay idle
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks one token bucket per client address.
type Limiter struct {
	limit   rate.Limit
	burst   int
	proxies []netip.Prefix
	ttl     time.Duration

	mu      sync.Mutex
	clients map[string]*client

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// New creates a Limiter and starts its sweep. Unparsable trusted proxy
// entries are ignored.
func New(cfg Config) *Limiter {
	r := cfg.Rate
	if r <= 0 {
		r = 100
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = max(1, int(r*2))
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ttl := cfg.EntryTTL
	if ttl <= 0 {
		ttl = DefaultEntryTTL
	}

	l := &Limiter{
		limit:   rate.Limit(r),
		burst:   burst,
		proxies: parseProxies(cfg.TrustedProxies),
		ttl:     ttl,
		clients: make(map[string]*client),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.sweep(interval)
	return l
}

func parseProxies(entries []string) []netip.Prefix {
	var out []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return out
}

// Burst returns the bucket capacity.
func (l *Limiter) Burst() int { return l.burst }

// Allow takes a token for key. When none is left it reports how long the
// client should wait before retrying.
func (l *Limiter) Allow(key string) (allowed bool, remaining int, retryAfter time.Duration) {
	now := time.Now()

	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	res := c.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, 0, delay
	}
	return true, int(c.limiter.TokensAt(now)), 0
}

// ClientIP returns the address a request is limited by. Forwarding headers
// are used only when the direct peer is a trusted proxy.
func (l *Limiter) ClientIP(r *http.Request) string {
	remote := remoteAddr(r.RemoteAddr)
	if !l.trusted(remote) {
		return remote
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if a, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return a.String()
		}
	}
	if a, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return a.String()
	}
	return remote
}

func (l *Limiter) trusted(ip string) bool {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range l.proxies {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

func remoteAddr(addr string) string {
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		return ap.Addr().Unmap().String()
	}
	return addr
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Stop ends the background sweep. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
	<-l.stopped
}

func (l *Limiter) sweep(interval time.Duration) {
	defer close(l.stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			l.removeIdle(now)
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) removeIdle(now time.Time) {
	cutoff := now.Add(-l.ttl)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}
