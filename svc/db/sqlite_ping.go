package db

import (
	"context"

	"github.com/pkg/errors"
)

// Ping runs SELECT 1 under the query timeout; it never reads the kv table.
func (s *SQLite) Ping(ctx context.Context) error {
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var one int
	return errors.Wrap(s.db.QueryRowContext(queryCtx, "SELECT 1").Scan(&one), "sqlite ping")
}
