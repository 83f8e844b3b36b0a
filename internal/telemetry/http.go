package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// httpEmitter POSTs summaries to an ingestion endpoint, with a local
// file backup written before every request.
type httpEmitter struct {
	cfg    Config
	client *http.Client
	backup *fileEmitter
	log    *slog.Logger
}

func newHTTPEmitter(cfg Config, log *slog.Logger) *httpEmitter {
	backup, err := newFileEmitter(cfg.Dir)
	if err != nil {
		log.Warn("telemetry backup unavailable", "error", err)
		backup = nil
	}

	return &httpEmitter{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		backup: backup,
		log:    log,
	}
}

func (e *httpEmitter) Emit(ctx context.Context, s Summary) error {
	if e.backup != nil {
		if err := e.backup.Emit(ctx, s); err != nil {
			e.log.Warn("telemetry backup failed", "error", err)
		}
	}
	return e.postWithRetry(ctx, s)
}

func (e *httpEmitter) postWithRetry(ctx context.Context, s Summary) error {
	var lastErr error
	retries := 3
	delay := time.Second

	for attempt := 1; attempt <= retries; attempt++ {
		err := e.post(ctx, s)
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < retries {
			e.log.Warn("telemetry post failed, retrying",
				"attempt", attempt, "error", err, "backoff", delay.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", retries, lastErr)
}

func (e *httpEmitter) post(ctx context.Context, s Summary) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
}

func (e *httpEmitter) Close() error { return nil }
