package history

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lakewright/product-publisher/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// postgresWriter implements Writer using PostgreSQL.
type postgresWriter struct {
	pool *pgxpool.Pool
}

func newPostgresWriter(cfg Config) (*postgresWriter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logging.Component("history").Info("connected to attempt history catalog")
	return &postgresWriter{pool: pool}, nil
}

// RecordAttempt inserts one attempt row. Replays of the same event id
// are ignored.
func (w *postgresWriter) RecordAttempt(ctx context.Context, rec AttemptRecord) error {
	query := `
		INSERT INTO publish_attempts
			(event_id, product, namespace, output_branch, staging_branch,
			 outcome, job_id, rows_processed, elapsed_ms, error, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING
	`

	_, err := w.pool.Exec(ctx, query,
		rec.EventID,
		rec.Product,
		rec.Namespace,
		rec.OutputBranch,
		rec.StagingBranch,
		rec.Outcome,
		rec.JobID,
		rec.Rows,
		rec.ElapsedMs,
		rec.Error,
		rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func (w *postgresWriter) Close() {
	w.pool.Close()
}
