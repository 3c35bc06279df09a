package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pasteline/svc/util"
)

const checkpointInterval = 5 * time.Minute

// RunWALMaintenance checkpoints the write-ahead log until ctx is done, with a
// final checkpoint on the way out.
func RunWALMaintenance(ctx context.Context, db *sql.DB) error {
	ticker := time.NewTicker(checkpointInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := checkpoint(db); err != nil {
				util.Error().Err(err).Msg("WAL checkpoint failed")
			}
		case <-ctx.Done():
			if err := checkpoint(db); err != nil {
				util.Error().Err(err).Msg("final WAL checkpoint failed")
			}
			return nil
		}
	}
}
func checkpoint(db *sql.DB) error {
	start := time.Now()
	var busy, logPages, checkpointed int
	err := db.QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &logPages, &checkpointed)
	if err != nil {
		return fmt.Errorf("PASSIVE checkpoint failed: %w", err)
	}
	if logPages > 1000 || busy > 0 {
		util.Info().Int("log", logPages).Int("busy", busy).Msg("escalating to TRUNCATE checkpoint")
		if err := db.QueryRow("PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &logPages, &checkpointed); err != nil {
			return fmt.Errorf("TRUNCATE checkpoint failed: %w", err)
		}
	}
	util.Debug().
		Int("checkpointed", checkpointed).
		Dur("duration", time.Since(start)).
		Msg("WAL checkpoint completed")
	return nil
}
