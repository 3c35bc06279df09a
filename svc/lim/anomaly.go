package lim

import (
	"context"
	"sync"
	"time"

	"pasteline/metrics"
	"pasteline/svc/util"
)

const (
	watchBuckets      = 5
	watchMinRequests  = 10
	watchErrorPercent = 5.0
)

// ErrorWatch tracks the server error rate over a sliding window of one-minute
// buckets and calls onSpike when it crosses the threshold.
type ErrorWatch struct {
	mu      sync.Mutex
	window  [watchBuckets]bucket
	current int
	onSpike func()
}

type bucket struct {
	requests int64
	errors   int64
}

func NewErrorWatch(onSpike func()) *ErrorWatch {
	return &ErrorWatch{onSpike: onSpike}
}

// Run rotates the window every minute until ctx is done.
func (w *ErrorWatch) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Rotate()
		}
	}
}

// Observe records one finished request.
func (w *ErrorWatch) Observe(serverError bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.window[w.current].requests++
	if serverError {
		w.window[w.current].errors++
	}
}

// Rotate evaluates the window and starts a fresh bucket.
func (w *ErrorWatch) Rotate() {
	w.mu.Lock()
	var reqs, errs int64
	for _, b := range w.window {
		reqs += b.requests
		errs += b.errors
	}
	w.current = (w.current + 1) % watchBuckets
	w.window[w.current] = bucket{}
	w.mu.Unlock()

	var rate float64
	if reqs > 0 {
		rate = float64(errs) / float64(reqs) * 100
	}
	metrics.RecentErrorRatePercent.Set(rate)
	if reqs >= watchMinRequests && rate > watchErrorPercent {
		util.Warn().
			Float64("error_rate", rate).
			Int64("requests", reqs).
			Int64("errors", errs).
			Msg("server error rate high, tightening rate limits")
		if w.onSpike != nil {
			w.onSpike()
		}
	}
}
