package extractor

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// proxyHealth tracks success/failure counts and a secondary rate limiter
// for one proxy, layered orthogonally on top of the fallback chain: for
// each attempt config, the extractor iterates proxies and skips unhealthy
// ones until their next health refresh.
type proxyHealth struct {
	addr         string
	successCount int64
	failureCount int64
	bytesDone    int64
	limiter      *rate.Limiter
	lastRefresh  time.Time
}

func (p *proxyHealth) successRate() float64 {
	total := p.successCount + p.failureCount
	if total == 0 {
		return 1.0 // unproven proxies are treated as healthy until shown otherwise
	}
	return float64(p.successCount) / float64(total)
}

// ProxyPool holds a set of outbound proxies with health scoring. Proxies
// whose success rate falls below minHealth are skipped until the next
// refresh window.
type ProxyPool struct {
	mu             sync.Mutex
	proxies        []*proxyHealth
	minHealth      float64
	refreshWindow  time.Duration
}

// NewProxyPool creates a pool over addrs, each allowed ratePerSecond
// requests/sec of secondary throttling, skipping any whose success rate
// falls below minHealth until refreshWindow has elapsed since its last
// refresh.
func NewProxyPool(addrs []string, ratePerSecond float64, minHealth float64, refreshWindow time.Duration) *ProxyPool {
	pool := &ProxyPool{minHealth: minHealth, refreshWindow: refreshWindow}
	for _, addr := range addrs {
		pool.proxies = append(pool.proxies, &proxyHealth{
			addr:        addr,
			limiter:     rate.NewLimiter(rate.Limit(ratePerSecond), 1),
			lastRefresh: time.Now(),
		})
	}
	return pool
}

// Next returns the next healthy proxy address to try, or "" if the pool
// is empty or every proxy is currently unhealthy and not yet due refresh.
func (p *ProxyPool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for _, ph := range p.proxies {
		healthy := ph.successRate() >= p.minHealth
		due := now.Sub(ph.lastRefresh) >= p.refreshWindow
		if !healthy && !due {
			continue
		}
		if !ph.limiter.Allow() {
			continue
		}
		if due {
			ph.lastRefresh = now
		}
		return ph.addr
	}
	return ""
}

// RecordResult updates a proxy's health counters after an attempt.
func (p *ProxyPool) RecordResult(addr string, success bool, bytesDownloaded int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ph := range p.proxies {
		if ph.addr != addr {
			continue
		}
		if success {
			ph.successCount++
		} else {
			ph.failureCount++
		}
		ph.bytesDone += bytesDownloaded
		return
	}
}

// Len reports the number of proxies in the pool.
func (p *ProxyPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}
