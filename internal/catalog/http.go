package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/lakewright/product-publisher/internal/logging"
)

// HTTPConfig configures the remote catalog client.
type HTTPConfig struct {
	Endpoint string // base URL, e.g. https://catalog.example.com
	APIKey   string
	User     string // acting user identity
}

// HTTPClient talks to a remote versioned catalog service. It
// implements both Client and Executor.
type HTTPClient struct {
	cfg HTTPConfig

	// client serves branch operations; runClient has no client-side
	// timeout because runs block until terminal and are bounded by the
	// request context instead.
	client    *http.Client
	runClient *http.Client
	log       *slog.Logger
}

// NewHTTPClient creates a remote catalog client.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	return &HTTPClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		runClient: &http.Client{},
		log:       logging.Component("catalog"),
	}
}

// HasBranch reports whether the named branch exists.
func (c *HTTPClient) HasBranch(ctx context.Context, name string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v0/branches/"+url.PathEscape(name), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	default:
		return false, httpError(resp)
	}
}

// CreateBranch creates a branch from an existing ref.
func (c *HTTPClient) CreateBranch(ctx context.Context, name, fromRef string) error {
	body := map[string]string{"name": name, "from_ref": fromRef}
	resp, err := c.doWithRetry(ctx, http.MethodPost, "/v0/branches", body)
	if err != nil {
		return fmt.Errorf("create branch %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("create branch %s: %w", name, httpError(resp))
}

// DeleteBranch deletes a branch.
func (c *HTTPClient) DeleteBranch(ctx context.Context, name string) error {
	resp, err := c.doWithRetry(ctx, http.MethodDelete, "/v0/branches/"+url.PathEscape(name), nil)
	if err != nil {
		return fmt.Errorf("delete branch %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("delete branch %s: %w", name, ErrBranchNotFound)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		return fmt.Errorf("delete branch %s: %w", name, httpError(resp))
	}
}

// MergeBranch merges source into the target branch.
func (c *HTTPClient) MergeBranch(ctx context.Context, source, into string) error {
	body := map[string]string{"into": into}
	resp, err := c.do(ctx, http.MethodPost, "/v0/branches/"+url.PathEscape(source)+"/merge", body)
	if err != nil {
		return fmt.Errorf("merge branch %s into %s: %w", source, into, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("merge branch %s into %s: %w", source, into, httpError(resp))
}

// Run submits a pipeline run and blocks until the service reports a
// terminal status. The request timeout bounds the whole call.
func (c *HTTPClient) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	body := map[string]any{
		"project_dir": req.ProjectDir,
		"ref":         req.Ref,
		"namespace":   req.Namespace,
		"parameters":  req.Parameters,
	}

	// Runs are not idempotent, so no retry here: a timed-out run is a
	// failed attempt, never a resubmission.
	resp, err := c.send(ctx, c.runClient, http.MethodPost, "/v0/runs", body)
	if err != nil {
		return nil, fmt.Errorf("run pipeline: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("run pipeline: %w", httpError(resp))
	}

	var result RunResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode run result: %w", err)
	}
	return &result, nil
}

// doWithRetry issues a request with retries and exponential backoff.
// Only used for branch operations, which the catalog makes idempotent.
func (c *HTTPClient) doWithRetry(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var lastErr error
	retries := 3
	delay := time.Second

	for attempt := 1; attempt <= retries; attempt++ {
		resp, err := c.do(ctx, method, path, body)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err == nil {
			lastErr = httpError(resp)
			resp.Body.Close()
		} else {
			lastErr = err
		}

		if attempt < retries {
			c.log.Warn("catalog request failed, retrying",
				"method", method, "path", path,
				"attempt", attempt, "error", lastErr, "backoff", delay.String())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("all %d attempts failed: %w", retries, lastErr)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	return c.send(ctx, c.client, method, path, body)
}

func (c *HTTPClient) send(ctx context.Context, client *http.Client, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Endpoint+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}
	if c.cfg.User != "" {
		req.Header.Set("X-Acting-User", c.cfg.User)
	}

	return client.Do(req)
}

func httpError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
}
