// Package telemetry emits per-attempt summary records for external
// ingestion. Every publish attempt produces exactly one summary,
// regardless of outcome.
package telemetry

import (
	"context"
	"time"

	"github.com/lakewright/product-publisher/internal/logging"
)

// Summary is the structured record describing one publish attempt.
type Summary struct {
	EventID       string    `json:"event_id"`
	Product       string    `json:"product"`
	Namespace     string    `json:"namespace"`
	Outcome       string    `json:"outcome"` // "MERGED" | "PRESERVED"
	StagingBranch string    `json:"staging_branch"`
	JobID         string    `json:"job_id,omitempty"`
	Rows          int64     `json:"rows"`
	TimeMs        int64     `json:"time_ms"`
	EpochMs       int64     `json:"epoch_ms"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Emitter publishes attempt summaries.
type Emitter interface {
	Emit(ctx context.Context, s Summary) error
	Close() error
}

// Config configures summary emission.
type Config struct {
	Enabled  bool
	Endpoint string // HTTP ingestion endpoint; empty means file-only
	Dir      string // local backup directory
}

// NewEmitter creates an emitter based on configuration. Emission
// failures never fail an attempt; callers log and continue.
func NewEmitter(cfg Config) Emitter {
	log := logging.Component("telemetry")

	if !cfg.Enabled {
		log.Debug("telemetry disabled, using no-op emitter")
		return &noopEmitter{}
	}

	if cfg.Endpoint != "" {
		log.Info("using http telemetry emitter", "endpoint", cfg.Endpoint)
		return newHTTPEmitter(cfg, log)
	}

	fe, err := newFileEmitter(cfg.Dir)
	if err != nil {
		log.Warn("failed to create file emitter, using no-op", "error", err)
		return &noopEmitter{}
	}
	log.Info("using file telemetry emitter", "dir", cfg.Dir)
	return fe
}

// noopEmitter discards all summaries.
type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, Summary) error { return nil }
func (noopEmitter) Close() error                        { return nil }
