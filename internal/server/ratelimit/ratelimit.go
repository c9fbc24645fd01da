// Package ratelimit provides per-client rate limiting on top of token buckets
// from golang.org/x/time/rate.
package ratelimit

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTTL is how long an unused client limiter is kept.
const idleTTL = time.Hour

// EndpointConfig overrides the default limit for one endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Every  time.Duration // One token is added every Every; zero means unlimited
	Burst  int           // Bucket capacity
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	Rate            rate.Limit // default tokens per second
	Burst           int        // default bucket capacity
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// NewConfig builds a config with the default endpoint overrides. A
// non-positive rps disables limiting.
func NewConfig(rps float64, burst int, whitelist []string) *Config {
	if burst <= 0 {
		burst = max(1, int(rps))
	}
	return &Config{
		Enabled:         rps > 0,
		Rate:            rate.Limit(rps),
		Burst:           burst,
		CleanupInterval: 5 * time.Minute,
		Whitelist:       parseIPList(whitelist),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Cycles hit every job board; keep them rare.
		{Path: "/cycles", Method: "POST", Every: time.Minute, Burst: 2},
		{Path: "/postings/new/consume", Method: "POST", Every: time.Second, Burst: 5},
	}
}

// MatchEndpoint returns the override for method and path, or nil when the
// default limit applies. Exact paths win over prefixes; a configured path
// ending in "/" matches everything below it. GET /health is always unlimited.
func MatchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	if method == http.MethodGet && path == "/health" {
		return &EndpointConfig{Path: path, Method: method}
	}

	var prefix *EndpointConfig
	for i := range configs {
		ec := &configs[i]
		if ec.Method != method {
			continue
		}
		if ec.Path == path {
			return ec
		}
		if prefix == nil && strings.HasSuffix(ec.Path, "/") && strings.HasPrefix(path, ec.Path) {
			prefix = ec
		}
	}
	return prefix
}

func parseIPList(list []string) map[string]bool {
	result := make(map[string]bool, len(list))
	for _, ip := range list {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}
	return result
}

// Info contains information about rate limit status.
type Info struct {
	Allowed    bool
	Limit      int // bucket capacity, 0 when unlimited
	Remaining  int
	RetryAfter time.Duration
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks one token bucket per client and endpoint.
type Limiter struct {
	config *Config
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*client

	cleanupStop chan struct{}
	stopOnce    sync.Once
}

// NewLimiter creates a new rate limiter with the given configuration.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = NewConfig(5, 20, nil)
	}

	l := &Limiter{
		config:  config,
		now:     time.Now,
		clients: make(map[string]*client),
	}

	if config.Enabled && config.CleanupInterval > 0 {
		l.cleanupStop = make(chan struct{})
		go l.cleanup(config.CleanupInterval)
	}

	return l
}

// Allow checks if a request from the given client is allowed for the specified endpoint.
// Returns true if allowed, false if rate limited, along with rate limit information.
func (l *Limiter) Allow(clientID string, endpoint string, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}

	limit, burst := l.config.Rate, l.config.Burst
	key := clientID
	if ec := MatchEndpoint(endpoint, method, l.config.EndpointConfigs); ec != nil {
		if ec.Every <= 0 {
			return true, Info{Allowed: true}
		}
		limit, burst = rate.Every(ec.Every), ec.Burst
		key = clientID + ":" + method + ":" + ec.Path
	}

	now := l.now()
	lim := l.get(key, limit, burst, now)

	res := lim.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, Info{Limit: burst, RetryAfter: delay}
	}
	return true, Info{
		Allowed:   true,
		Limit:     burst,
		Remaining: max(0, int(lim.TokensAt(now))),
	}
}

func (l *Limiter) get(key string, limit rate.Limit, burst int, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(limit, burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

// cleanup removes old unused limiters to prevent memory leaks.
func (l *Limiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.cleanupStop:
			return
		}
	}
}

func (l *Limiter) evictIdle() {
	cutoff := l.now().Add(-idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

// Stop stops the cleanup goroutine.
func (l *Limiter) Stop() {
	if l.cleanupStop != nil {
		l.stopOnce.Do(func() { close(l.cleanupStop) })
	}
}
