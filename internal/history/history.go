// Package history records publish attempts in a relational catalog so
// operators can audit outcomes and chase preserved staging branches.
// Recording is best effort: a history failure never fails an attempt.
package history

import (
	"context"
	"time"

	"github.com/lakewright/product-publisher/internal/logging"
)

// Config configures the attempt history sink.
type Config struct {
	PostgresDSN string
}

// AttemptRecord is one row of publish attempt history.
type AttemptRecord struct {
	EventID       string
	Product       string
	Namespace     string
	OutputBranch  string
	StagingBranch string
	Outcome       string // "MERGED" | "PRESERVED"
	JobID         string
	Rows          int64
	ElapsedMs     int64
	Error         string
	StartedAt     time.Time
}

// Writer persists attempt records.
type Writer interface {
	RecordAttempt(ctx context.Context, rec AttemptRecord) error
	Close()
}

// NewWriter returns a PostgreSQL writer when a DSN is configured and a
// no-op writer otherwise.
func NewWriter(cfg Config) Writer {
	log := logging.Component("history")

	if cfg.PostgresDSN == "" {
		log.Debug("no history DSN configured, using no-op writer")
		return noopWriter{}
	}

	w, err := newPostgresWriter(cfg)
	if err != nil {
		log.Warn("history catalog unavailable, using no-op writer", "error", err)
		return noopWriter{}
	}
	return w
}

type noopWriter struct{}

func (noopWriter) RecordAttempt(context.Context, AttemptRecord) error { return nil }
func (noopWriter) Close()                                             {}
