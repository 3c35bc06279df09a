package lim

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pasteline/metrics"
	"pasteline/svc/util"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	window          = time.Minute
	tightenFor      = 60 * time.Second
	globalCheckWait = 100 * time.Millisecond
)

// Counter is a shared fixed-window counter, typically Redis. RateLimit
// returns the usage after counting this call.
type Counter interface {
	RateLimit(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

type Config struct {
	GlobalRPM         int
	Burst             int
	ConservativeLimit int
	CacheSize         int
	TrustedProxies    []string
}

// Limiter applies a per-IP token bucket and, when a Counter is present, a
// global per-endpoint budget shared by every instance.
type Limiter struct {
	counter        Counter
	local          *lru.Cache[string, *rate.Limiter]
	mu             sync.Mutex
	trustedProxies []string
	globalRPM      int
	burst          int
	perIP          int
	tightUntil     int64
	now            func() time.Time
	watch          *ErrorWatch
}

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// New builds a Limiter. counter may be nil.
func New(c Config, counter Counter) (*Limiter, error) {
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return nil, errors.Wrapf(err, "invalid CIDR in trusted proxies: %s", proxy)
			}
		} else if net.ParseIP(proxy) == nil {
			return nil, errors.Errorf("invalid IP in trusted proxies: %s", proxy)
		}
	}
	if c.ConservativeLimit <= 0 {
		return nil, errors.New("per-IP limit must be positive")
	}
	local, err := lru.New[string, *rate.Limiter](c.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "limiter cache")
	}
	burst := c.Burst
	if burst <= 0 || burst > c.ConservativeLimit {
		burst = c.ConservativeLimit
	}
	l := &Limiter{
		counter:        counter,
		local:          local,
		trustedProxies: c.TrustedProxies,
		globalRPM:      c.GlobalRPM,
		burst:          burst,
		perIP:          c.ConservativeLimit,
		now:            time.Now,
	}
	l.watch = NewErrorWatch(l.Tighten)
	return l, nil
}

// Watch is the error-rate tracker feeding adaptive tightening.
func (l *Limiter) Watch() *ErrorWatch {
	return l.watch
}

// Tighten halves all limits for the next minute.
func (l *Limiter) Tighten() {
	atomic.StoreInt64(&l.tightUntil, l.now().Add(tightenFor).UnixNano())
}

func (l *Limiter) tightened() bool {
	return l.now().UnixNano() < atomic.LoadInt64(&l.tightUntil)
}

func (l *Limiter) effective(limit int) int {
	if l.tightened() {
		limit /= 2
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// Check counts r against the limits for endpoint.
func (l *Limiter) Check(r *http.Request, endpoint string) *Result {
	ip := GetRealIP(r, l.trustedProxies)
	res := l.checkLocal(ip, endpoint)
	if res.Allowed && l.counter != nil {
		if global := l.checkGlobal(r.Context(), endpoint); global != nil {
			if !global.Allowed || global.Remaining < res.Remaining {
				res = global
			}
		}
	}
	if !res.Allowed {
		metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
		util.Warn().Str("ip", util.RedactIP(ip)).Str("endpoint", endpoint).Msg("rate limit exceeded")
	}
	return res
}

func (l *Limiter) checkLocal(ip, endpoint string) *Result {
	limit := l.effective(l.perIP)
	burst := l.burst
	if burst > limit {
		burst = limit
	}
	key := ip + ":" + endpoint
	l.mu.Lock()
	lim, ok := l.local.Get(key)
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(l.perIP)/window.Seconds()), l.burst)
		l.local.Add(key, lim)
	}
	l.mu.Unlock()

	now := l.now()
	if want := rate.Limit(float64(limit) / window.Seconds()); lim.Limit() != want {
		lim.SetLimitAt(now, want)
	}
	if lim.Burst() != burst {
		lim.SetBurstAt(now, burst)
	}
	if !lim.AllowN(now, 1) {
		return &Result{Allowed: false, Limit: limit, Remaining: 0, Reset: now.Add(window)}
	}
	remaining := int(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return &Result{Allowed: true, Limit: limit, Remaining: remaining, Reset: now.Add(window)}
}

// checkGlobal returns nil when the counter is unreachable; the local bucket
// still applies then.
func (l *Limiter) checkGlobal(ctx context.Context, endpoint string) *Result {
	limit := l.effective(l.globalRPM)
	ctx, cancel := context.WithTimeout(ctx, globalCheckWait)
	defer cancel()
	usage, err := l.counter.RateLimit(ctx, "global:"+endpoint, limit, window)
	if err != nil {
		util.Warn().Err(err).Msg("global rate limit unavailable, using local limits")
		return nil
	}
	reset := l.now().Add(window)
	if usage > limit {
		return &Result{Allowed: false, Limit: limit, Remaining: 0, Reset: reset}
	}
	return &Result{Allowed: true, Limit: limit, Remaining: limit - usage, Reset: reset}
}

// GetRealIP returns the client address, walking X-Forwarded-For from the
// right only when the direct peer is a trusted proxy.
func GetRealIP(r *http.Request, trustedProxies []string) string {
	remoteIP := stripPort(r.RemoteAddr)
	if len(trustedProxies) == 0 || !isTrustedProxy(remoteIP, trustedProxies) {
		return remoteIP
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return remoteIP
	}
	const maxHops = 100
	hops := strings.Split(xff, ",")
	if len(hops) > maxHops {
		util.Warn().Int("hops", len(hops)).Str("remote", util.RedactIP(remoteIP)).Msg("XFF header excessive, truncated parsing")
		hops = hops[len(hops)-maxHops:]
	}
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if net.ParseIP(hop) == nil {
			util.Warn().Str("ip", hop).Msg("invalid IP in X-Forwarded-For, skipping")
			continue
		}
		if !isTrustedProxy(hop, trustedProxies) {
			return hop
		}
	}
	return remoteIP
}

func isTrustedProxy(ip string, trustedProxies []string) bool {
	parsed := net.ParseIP(ip)
	for _, proxy := range trustedProxies {
		if ip == proxy {
			return true
		}
		if parsed != nil && strings.Contains(proxy, "/") {
			if _, subnet, err := net.ParseCIDR(proxy); err == nil && subnet.Contains(parsed) {
				return true
			}
		}
	}
	return false
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
