package svc

import (
	"context"
	"time"

	"pasteline/metrics"
	"pasteline/svc/util"
)

// Reaper removes rows whose backend expiry has passed. Redis does this on its
// own; the SQLite backend needs a periodic sweep.
type Reaper interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// RunCleaner sweeps r every interval until ctx is done.
func RunCleaner(ctx context.Context, r Reaper, interval time.Duration) error {
	requestID := util.NewRequestID()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	util.Info().
		Str("request_id", requestID).
		Dur("interval", interval).
		Msg("cleanup worker started")
	for {
		select {
		case <-ctx.Done():
			util.Info().Str("request_id", requestID).Msg("cleanup worker shutting down")
			return nil
		case <-ticker.C:
			sweep(ctx, r, requestID)
		}
	}
}

func sweep(ctx context.Context, r Reaper, requestID string) {
	deleted, err := r.CleanupExpired(ctx)
	if deleted > 0 {
		metrics.CleanupDeleted.Add(float64(deleted))
	}
	if err != nil {
		if ctx.Err() == nil {
			util.Error().Err(err).Str("request_id", requestID).Msg("cleanup failed")
		}
		return
	}
	if deleted > 0 {
		util.Info().Int("deleted", deleted).Str("request_id", requestID).Msg("cleanup completed")
	}
}
