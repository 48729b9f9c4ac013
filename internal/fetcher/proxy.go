package fetcher

import (
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carhound/carhound/internal/config"
	"github.com/carhound/carhound/internal/types"
)

// ProxyManager rotates outbound requests across a pool of proxy
// credentials. Rotation is round-robin or random; with rotate_on_fail a
// fetch failure advances the rotation so the next attempt leaves through a
// different exit. Health is tracked passively: a connection-class failure
// marks the proxy in use unhealthy and the rotation skips it until a later
// success through it marks it healthy again.
type ProxyManager struct {
	proxies      []*proxyEntry
	rotation     string
	rotateOnFail bool
	index        atomic.Int64
	last         atomic.Pointer[proxyEntry]
	mu           sync.RWMutex
	logger       *slog.Logger
}

type proxyEntry struct {
	URL     *url.URL
	Healthy bool
	LastErr error
	LastUse time.Time
	mu      sync.Mutex
}

// NewProxyManager creates a new ProxyManager from configuration.
func NewProxyManager(cfg *config.ProxyConfig, logger *slog.Logger) *ProxyManager {
	pm := &ProxyManager{
		proxies:      make([]*proxyEntry, 0, len(cfg.URLs)),
		rotation:     cfg.Rotation,
		rotateOnFail: cfg.RotateOnFail,
		logger:       logger.With("component", "proxy_manager"),
	}

	for _, rawURL := range cfg.URLs {
		u, err := url.Parse(rawURL)
		if err != nil {
			logger.Warn("invalid proxy URL", "url", rawURL, "error", err)
			continue
		}
		pm.proxies = append(pm.proxies, &proxyEntry{
			URL:     u,
			Healthy: true,
		})
	}

	pm.logger.Info("proxy manager initialized", "count", len(pm.proxies), "rotation", cfg.Rotation)
	return pm
}

// ProxyFunc returns an http.Transport-compatible proxy function.
func (pm *ProxyManager) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		proxy := pm.Next()
		if proxy == nil {
			return nil, nil // No proxy = direct connection
		}
		return proxy, nil
	}
}

// Next returns the next proxy URL based on the rotation strategy.
func (pm *ProxyManager) Next() *url.URL {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	healthy := pm.healthyProxies()
	if len(healthy) == 0 {
		pm.last.Store(nil)
		return nil
	}

	var entry *proxyEntry
	switch pm.rotation {
	case "random":
		entry = healthy[rand.Intn(len(healthy))]
	default: // round_robin
		entry = healthy[pm.index.Add(1)%int64(len(healthy))]
	}

	entry.mu.Lock()
	entry.LastUse = time.Now()
	entry.mu.Unlock()
	pm.last.Store(entry)
	return entry.URL
}

// NoteFailure records a fetch failure on the proxy in use. With
// rotate_on_fail the rotation advances so the retry goes out through a
// different proxy; a connection-class failure also marks the proxy
// unhealthy.
func (pm *ProxyManager) NoteFailure(err error) {
	if kind, _ := classify(err); kind == types.FailureConnection || kind == types.FailureTimeout {
		if entry := pm.last.Load(); entry != nil {
			pm.MarkFailed(entry.URL, err)
		}
	}
	if !pm.rotateOnFail {
		return
	}
	pm.index.Add(1)
	pm.logger.Debug("rotating proxy after failure", "error", err)
}

// NoteSuccess marks the proxy in use healthy again after a successful
// fetch through it.
func (pm *ProxyManager) NoteSuccess() {
	if entry := pm.last.Load(); entry != nil {
		pm.MarkHealthy(entry.URL)
	}
}

// MarkFailed marks a proxy as unhealthy; it is skipped by the rotation
// until marked healthy again.
func (pm *ProxyManager) MarkFailed(proxyURL *url.URL, err error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for _, p := range pm.proxies {
		if p.URL.String() == proxyURL.String() {
			p.mu.Lock()
			p.Healthy = false
			p.LastErr = err
			p.mu.Unlock()
			pm.logger.Warn("proxy marked unhealthy",
				"proxy", proxyURL.Host,
				"error", err,
			)
			break
		}
	}
}

// MarkHealthy marks a proxy as healthy.
func (pm *ProxyManager) MarkHealthy(proxyURL *url.URL) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for _, p := range pm.proxies {
		if p.URL.String() == proxyURL.String() {
			p.mu.Lock()
			p.Healthy = true
			p.LastErr = nil
			p.mu.Unlock()
			break
		}
	}
}

// Count returns the total number of proxies.
func (pm *ProxyManager) Count() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.proxies)
}

// HealthyCount returns the number of healthy proxies.
func (pm *ProxyManager) HealthyCount() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.healthyProxies())
}

func (pm *ProxyManager) healthyProxies() []*proxyEntry {
	healthy := make([]*proxyEntry, 0, len(pm.proxies))
	for _, p := range pm.proxies {
		p.mu.Lock()
		if p.Healthy {
			healthy = append(healthy, p)
		}
		p.mu.Unlock()
	}
	return healthy
}
