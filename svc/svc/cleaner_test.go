package svc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
)

type countingReaper struct {
	calls int32
	err   error
}

func (r *countingReaper) CleanupExpired(context.Context) (int, error) {
	atomic.AddInt32(&r.calls, 1)
	return 3, r.err
}

func TestRunCleanerSweepsUntilCancelled(t *testing.T) {
	r := &countingReaper{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunCleaner(ctx, r, 10*time.Millisecond) }()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&r.calls) < 2 {
		select {
		case <-deadline:
			t.Fatal("cleaner did not sweep")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunCleaner returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop")
	}
}

func TestSweepToleratesErrors(t *testing.T) {
	r := &countingReaper{err: errors.New("disk full")}
	sweep(context.Background(), r, "req")
	if r.calls != 1 {
		t.Errorf("calls = %d, want 1", r.calls)
	}
}
