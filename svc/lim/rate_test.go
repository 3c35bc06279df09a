package lim

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

type fakeCounter struct {
	mu    sync.Mutex
	usage map[string]int
	err   error
}

func (f *fakeCounter) RateLimit(_ context.Context, key string, limit int, _ time.Duration) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usage == nil {
		f.usage = make(map[string]int)
	}
	if f.usage[key] > limit {
		return f.usage[key], nil
	}
	f.usage[key]++
	return f.usage[key], nil
}

func newTestLimiter(t *testing.T, c Config, counter Counter) (*Limiter, *time.Time) {
	t.Helper()
	if c.CacheSize == 0 {
		c.CacheSize = 100
	}
	l, err := New(c, counter)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestPerIPBucket(t *testing.T) {
	l, now := newTestLimiter(t, Config{ConservativeLimit: 60, Burst: 3}, nil)
	req := httptest.NewRequest("GET", "/api/pastes/x", nil)
	req.RemoteAddr = "203.0.113.7:5555"

	for i := 0; i < 3; i++ {
		if !l.Check(req, "read").Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	res := l.Check(req, "read")
	if res.Allowed {
		t.Fatal("burst exhausted, request should be rejected")
	}
	if res.Limit != 60 {
		t.Errorf("Limit = %d, want 60", res.Limit)
	}

	other := httptest.NewRequest("GET", "/api/pastes/x", nil)
	other.RemoteAddr = "198.51.100.1:1"
	if !l.Check(other, "read").Allowed {
		t.Error("a different client should have its own bucket")
	}
	if !l.Check(req, "create").Allowed {
		t.Error("endpoints should have separate buckets")
	}

	*now = now.Add(time.Second)
	if !l.Check(req, "read").Allowed {
		t.Error("one token should refill after a second at 60/min")
	}
}

func TestGlobalCounter(t *testing.T) {
	counter := &fakeCounter{}
	l, _ := newTestLimiter(t, Config{GlobalRPM: 2, ConservativeLimit: 100, Burst: 100}, counter)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/api/pastes", nil)
		req.RemoteAddr = "10.0.0.1:1"
		if !l.Check(req, "create").Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	req := httptest.NewRequest("POST", "/api/pastes", nil)
	req.RemoteAddr = "10.0.0.2:1"
	res := l.Check(req, "create")
	if res.Allowed {
		t.Fatal("global budget exhausted, request should be rejected")
	}
	if res.Limit != 2 {
		t.Errorf("Limit = %d, want global limit 2", res.Limit)
	}
}

func TestGlobalCounterUnavailableFallsBackToLocal(t *testing.T) {
	l, _ := newTestLimiter(t, Config{GlobalRPM: 1, ConservativeLimit: 10, Burst: 10}, &fakeCounter{err: errors.New("redis down")})
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:1"
	for i := 0; i < 5; i++ {
		if !l.Check(req, "read").Allowed {
			t.Fatalf("request %d should pass on local limits", i)
		}
	}
}

func TestTighten(t *testing.T) {
	l, now := newTestLimiter(t, Config{ConservativeLimit: 10, Burst: 10}, nil)
	l.Tighten()
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:1"
	res := l.Check(req, "read")
	if !res.Allowed || res.Limit != 5 {
		t.Fatalf("tightened result = %+v, want allowed with limit 5", res)
	}
	*now = now.Add(2 * time.Minute)
	if l.tightened() {
		t.Error("tightening should lapse after a minute")
	}
}

func TestErrorWatchTriggers(t *testing.T) {
	fired := 0
	w := NewErrorWatch(func() { fired++ })
	for i := 0; i < 20; i++ {
		w.Observe(i%4 == 0)
	}
	w.Rotate()
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}

	quiet := NewErrorWatch(func() { fired++ })
	for i := 0; i < 100; i++ {
		quiet.Observe(false)
	}
	quiet.Rotate()
	if fired != 1 {
		t.Errorf("healthy traffic should not fire, fired = %d", fired)
	}
}

func TestErrorWatchWindowSlides(t *testing.T) {
	fired := 0
	w := NewErrorWatch(func() { fired++ })
	for i := 0; i < 20; i++ {
		w.Observe(true)
	}
	for i := 0; i < watchBuckets; i++ {
		w.Rotate()
	}
	before := fired
	w.Rotate()
	if fired != before {
		t.Error("old errors should have left the window")
	}
}

func TestLimiterCacheBounded(t *testing.T) {
	l, _ := newTestLimiter(t, Config{ConservativeLimit: 10, Burst: 1, CacheSize: 2}, nil)
	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = addr
		l.Check(req, "read")
	}
	if n := l.local.Len(); n != 2 {
		t.Errorf("cache len = %d, want 2", n)
	}
}

func TestNewRejectsBadProxy(t *testing.T) {
	if _, err := New(Config{ConservativeLimit: 1, CacheSize: 1, TrustedProxies: []string{"nope"}}, nil); err == nil {
		t.Error("expected error for invalid proxy")
	}
}

func TestGetRealIP(t *testing.T) {
	proxies := []string{"10.0.0.1", "172.16.0.0/12"}
	tests := []struct {
		name    string
		remote  string
		xff     string
		proxies []string
		want    string
	}{
		{"no proxies", "203.0.113.5:80", "1.2.3.4", nil, "203.0.113.5"},
		{"untrusted peer", "203.0.113.5:80", "1.2.3.4", proxies, "203.0.113.5"},
		{"trusted peer", "10.0.0.1:80", "1.2.3.4", proxies, "1.2.3.4"},
		{"chain of proxies", "10.0.0.1:80", "1.2.3.4, 172.16.5.5", proxies, "1.2.3.4"},
		{"spoofed left entry", "10.0.0.1:80", "6.6.6.6, 1.2.3.4", proxies, "1.2.3.4"},
		{"garbage skipped", "10.0.0.1:80", "1.2.3.4, junk", proxies, "1.2.3.4"},
		{"all trusted", "10.0.0.1:80", "172.16.0.9", proxies, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := GetRealIP(req, tt.proxies); got != tt.want {
				t.Errorf("GetRealIP = %q, want %q", got, tt.want)
			}
		})
	}
}
