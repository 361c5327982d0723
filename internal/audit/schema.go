package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pneutrack/console/internal/platform/db"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS console_auth_events (
	id BIGSERIAL PRIMARY KEY,
	kind TEXT NOT NULL,
	profile_id TEXT NOT NULL,
	subject_id TEXT,
	role TEXT,
	detail TEXT,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS console_auth_events_profile_idx ON console_auth_events (profile_id, occurred_at DESC)`,
}

// EnsureSchema creates the audit table when it does not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		return applySchema(ctx, tx)
	})
}

func applySchema(ctx context.Context, exec Execer) error {
	for _, stmt := range schema {
		if _, err := exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("audit: apply schema: %w", err)
		}
	}
	return nil
}
