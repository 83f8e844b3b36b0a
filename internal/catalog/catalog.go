// Package catalog defines the versioned table catalog and pipeline
// executor interfaces the publisher consumes, plus two implementations:
// an HTTP client for a remote catalog service and a parquet-backed
// local catalog for development and tests.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrBranchNotFound is returned by branch operations that require an
// existing branch.
var ErrBranchNotFound = errors.New("branch not found")

// Client is the branch surface of the versioned table catalog. The
// catalog itself (storage, commits, diffing) is an external system;
// the publisher only consumes these operations.
type Client interface {
	HasBranch(ctx context.Context, name string) (bool, error)
	CreateBranch(ctx context.Context, name, fromRef string) error
	DeleteBranch(ctx context.Context, name string) error

	// MergeBranch merges source into the target branch. This is the
	// single operation through which published output ever changes.
	MergeBranch(ctx context.Context, source, into string) error
}

// RunStatus is the terminal status reported for a pipeline run.
type RunStatus string

const (
	StatusSuccess RunStatus = "SUCCESS"
	StatusFailed  RunStatus = "FAILED"
)

// Failed reports whether the status indicates a failed run. The
// comparison is case-insensitive; remote catalogs report lowercase.
func (s RunStatus) Failed() bool {
	return strings.EqualFold(string(s), string(StatusFailed))
}

// RunRequest asks the executor to run a pipeline project against a ref.
type RunRequest struct {
	ProjectDir string
	Ref        string
	Namespace  string
	Parameters map[string]string
	Timeout    time.Duration
}

// RunResult is the terminal outcome of a pipeline run.
type RunResult struct {
	JobID  string    `json:"job_id"`
	Status RunStatus `json:"job_status"`
	Rows   int64     `json:"rows,omitempty"`
}

// Executor runs transformation pipelines (including any verification
// manifest found in the project) against a catalog ref, blocking until
// the run reaches a terminal status.
type Executor interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}
