package db

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", time.Now().UnixNano())
	s, err := NewSQLiteWithConfig(dsn, 4, 4, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteGetSetDel(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "paste:missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v; want absent", ok, err)
	}
	if err := s.Set(ctx, "paste:a", "one"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "paste:a", "two"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	v, ok, err := s.Get(ctx, "paste:a")
	if err != nil || !ok || v != "two" {
		t.Fatalf("Get = %q, %v, %v; want two", v, ok, err)
	}
	if err := s.Del(ctx, "paste:a"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "paste:a"); ok {
		t.Error("key still present after Del")
	}
}

func TestSQLiteExpiry(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	clock := time.UnixMilli(1_000_000)
	s.now = func() time.Time { return clock }

	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	if err := s.Expire(ctx, "k", 10); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(9999 * time.Millisecond)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("key should be visible before its expiry")
	}
	clock = clock.Add(time.Millisecond)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("key should be hidden at its expiry")
	}
	n, err := s.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("CleanupExpired removed %d rows, want 1", n)
	}
}

func TestSQLiteSetClearsExpiry(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	clock := time.UnixMilli(0)
	s.now = func() time.Time { return clock }

	s.Set(ctx, "k", "v1")
	s.Expire(ctx, "k", 1)
	s.Set(ctx, "k", "v2")
	clock = clock.Add(time.Hour)
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v2" {
		t.Fatalf("Get after overwrite = %q, %v, %v; want v2 with no expiry", v, ok, err)
	}
}

func TestSQLiteExpireNonPositiveDeletes(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	s.Set(ctx, "k", "v")
	if err := s.Expire(ctx, "k", 0); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("Expire(0) should delete the key")
	}
	if err := s.Expire(ctx, "never-set", 30); err != nil {
		t.Errorf("Expire on a missing key should be a no-op, got %v", err)
	}
}

func TestSQLiteExpireDoesNotReviveExpiredKey(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	clock := time.UnixMilli(0)
	s.now = func() time.Time { return clock }

	s.Set(ctx, "k", "v")
	if err := s.Expire(ctx, "k", 5); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(6 * time.Second)
	if err := s.Expire(ctx, "k", 60); err != nil {
		t.Fatalf("Expire on an expired key failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("Expire must not bring back a key that already expired")
	}
}

func TestSQLitePing(t *testing.T) {
	s := newTestSQLite(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSQLiteCircuitBreaker(t *testing.T) {
	s := newTestSQLite(t)
	for i := 0; i < maxFailures; i++ {
		s.recordError(fmt.Errorf("disk on fire"))
	}
	if err := s.Set(context.Background(), "k", "v"); err != ErrCircuitOpen {
		t.Fatalf("Set with open circuit = %v, want ErrCircuitOpen", err)
	}
	s.circuitOpened = time.Now().Add(-cooldownSeconds * time.Second).Unix()
	if err := s.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("half-open probe should pass, got %v", err)
	}
	if s.circuitState != circuitClosed {
		t.Errorf("circuit state = %d, want closed after success", s.circuitState)
	}
}
