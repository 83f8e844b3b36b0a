// Package publisher drives publish attempts end to end: stage, execute,
// verify, then merge or preserve.
//
// The invariant the orchestrator guarantees: the output branch is
// mutated (via merge) if and only if the pipeline run on the staging
// branch reported success with the generated verification passing as
// part of that run. Every failure after staging preserves the staging
// branch for inspection; there is no partial merge and no automatic
// retry.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lakewright/product-publisher/internal/artifact"
	"github.com/lakewright/product-publisher/internal/catalog"
	"github.com/lakewright/product-publisher/internal/contract"
	"github.com/lakewright/product-publisher/internal/history"
	"github.com/lakewright/product-publisher/internal/logging"
	"github.com/lakewright/product-publisher/internal/metrics"
	"github.com/lakewright/product-publisher/internal/rules"
	"github.com/lakewright/product-publisher/internal/telemetry"
)

// Config holds the orchestrator's explicit configuration. Defaults are
// resolved by the calling layer.
type Config struct {
	// ContractSource locates the contract descriptor (path or blob URL).
	ContractSource string

	// ProjectRoot resolves relative pipeline project paths from the
	// descriptor, typically the checkout root of the product repo.
	ProjectRoot string

	// User is the acting identity; staging branches are namespaced
	// under it.
	User string

	// Parameter names the freshness run parameter passed to the
	// pipeline, e.g. "as_of_date".
	Parameter string

	// RunTimeout bounds the blocking pipeline run call. Zero means no
	// client-side bound.
	RunTimeout time.Duration
}

// Deps are the collaborators a Publisher drives. Catalog and Executor
// are the external systems; the rest are internal seams.
type Deps struct {
	Loader    *contract.Loader
	Catalog   catalog.Client
	Executor  catalog.Executor
	History   history.Writer
	Telemetry telemetry.Emitter
	Metrics   *metrics.Metrics
}

// Publisher runs publish attempts for one configured data product.
type Publisher struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	writer *artifact.Writer

	// injectable for tests
	now   func() time.Time
	newID func() string
}

// New creates a Publisher. History, Telemetry and Metrics may be nil;
// they degrade to no-ops.
func New(cfg Config, deps Deps) *Publisher {
	if deps.History == nil {
		deps.History = history.NewWriter(history.Config{})
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.NewEmitter(telemetry.Config{})
	}
	return &Publisher{
		cfg:    cfg,
		deps:   deps,
		log:    logging.Component("publisher"),
		writer: artifact.NewWriter(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Trigger is the scheduled entry point. It runs one publish attempt
// and reports whether the output branch was updated.
func (p *Publisher) Trigger(ctx context.Context) bool {
	summary, err := p.Publish(ctx)
	if err != nil && summary == nil {
		p.log.Error("publish attempt aborted before staging", "error", err)
		return false
	}
	return summary != nil && summary.Outcome == string(OutcomeMerged)
}

// Publish runs one complete publish attempt.
//
// Contract and compilation errors abort before any catalog mutation and
// return a nil summary. Once staging succeeds, the attempt always
// reaches a terminal outcome: a summary is returned for both MERGED and
// PRESERVED, with the preserving cause as the error.
func (p *Publisher) Publish(ctx context.Context) (*telemetry.Summary, error) {
	start := p.now()
	eventID := p.newID()

	product, err := p.deps.Loader.Load(ctx, p.cfg.ContractSource)
	if err != nil {
		return nil, fmt.Errorf("load contract: %w", err)
	}

	verification, err := rules.Compile(product, p.cfg.Parameter)
	if err != nil {
		if p.deps.Metrics != nil {
			p.deps.Metrics.CompileFailures.WithLabelValues(product.Name).Inc()
		}
		return nil, fmt.Errorf("compile quality rules: %w", err)
	}

	attempt := &Attempt{
		ID:            eventID,
		Product:       product,
		StagingBranch: fmt.Sprintf("%s.staging_%s_%s", p.cfg.User, product.Name, p.newID()),
		State:         StateInit,
		StartedAt:     start,
	}
	log := logging.AttemptLogger(eventID, product.Name, product.Namespace, attempt.StagingBranch)

	if err := p.stage(ctx, attempt); err != nil {
		return nil, fmt.Errorf("stage: %w", err)
	}
	log.Info("staging branch created", "from", product.Branch)

	runErr := p.execute(ctx, attempt, verification, log)
	if runErr == nil {
		attempt.State = StateMerged
		attempt.Outcome = OutcomeMerged
		log.Info("published", "output_branch", product.Branch)
	} else {
		attempt.State = StatePreserved
		attempt.Outcome = OutcomePreserved
		log.Error("attempt preserved for inspection",
			"error", runErr,
			"staging_branch", attempt.StagingBranch,
		)
	}

	summary := p.finish(ctx, attempt, start, runErr)
	return summary, runErr
}

// stage performs the INIT → STAGED transition: delete any leftover
// branch of the same name, then branch off the contract's output
// branch. The delete-if-exists precondition makes re-triggers with a
// colliding name safe.
func (p *Publisher) stage(ctx context.Context, attempt *Attempt) error {
	exists, err := p.deps.Catalog.HasBranch(ctx, attempt.StagingBranch)
	if err != nil {
		return fmt.Errorf("check staging branch: %w", err)
	}
	if exists {
		if err := p.deps.Catalog.DeleteBranch(ctx, attempt.StagingBranch); err != nil {
			return fmt.Errorf("delete stale staging branch: %w", err)
		}
	}

	if err := p.deps.Catalog.CreateBranch(ctx, attempt.StagingBranch, attempt.Product.Branch); err != nil {
		return fmt.Errorf("create staging branch: %w", err)
	}

	attempt.State = StateStaged
	return nil
}

// execute drives STAGED → EXECUTED → MERGED. Any error (or panic)
// between staging and the merge decision is returned, which the caller
// maps to PRESERVED; it never results in a silent merge.
func (p *Publisher) execute(ctx context.Context, attempt *Attempt, v *rules.Verification, log *slog.Logger) (rerr error) {
	defer func() {
		if r := recover(); r != nil {
			rerr = fmt.Errorf("panic during attempt: %v", r)
		}
	}()

	product := attempt.Product
	projectDir := product.ProjectDir
	if !filepath.IsAbs(projectDir) && p.cfg.ProjectRoot != "" {
		projectDir = filepath.Join(p.cfg.ProjectRoot, projectDir)
	}

	path, err := p.writer.Write(projectDir, v)
	if err != nil {
		return fmt.Errorf("write verification artifact: %w", err)
	}
	log.Debug("verification artifact written", "path", path, "checks", len(v.Checks))

	asOf := p.now().Format(rules.AsOfLayout)
	result, err := p.deps.Executor.Run(ctx, catalog.RunRequest{
		ProjectDir: projectDir,
		Ref:        attempt.StagingBranch,
		Namespace:  product.Namespace,
		Parameters: map[string]string{v.Parameter: asOf},
		Timeout:    p.cfg.RunTimeout,
	})
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}
	attempt.Run = result
	attempt.State = StateExecuted
	log.Info("pipeline run finished", "job_id", result.JobID, "status", result.Status)

	if result.Status.Failed() {
		return &RunFailureError{JobID: result.JobID, Status: result.Status}
	}

	// The only transition that mutates the shared output.
	if err := p.deps.Catalog.MergeBranch(ctx, attempt.StagingBranch, product.Branch); err != nil {
		return fmt.Errorf("merge staging branch: %w", err)
	}

	if err := p.deps.Catalog.DeleteBranch(ctx, attempt.StagingBranch); err != nil {
		// The merge is already committed; a stray branch is cleanup
		// debt, not a failed attempt.
		log.Warn("failed to delete staging branch after merge", "error", err)
	}

	return nil
}

// finish emits the summary record, attempt history and metrics.
// None of these can fail the attempt.
func (p *Publisher) finish(ctx context.Context, attempt *Attempt, start time.Time, runErr error) *telemetry.Summary {
	end := p.now()

	summary := &telemetry.Summary{
		EventID:       attempt.ID,
		Product:       attempt.Product.Name,
		Namespace:     attempt.Product.Namespace,
		Outcome:       string(attempt.Outcome),
		StagingBranch: attempt.StagingBranch,
		TimeMs:        end.Sub(start).Milliseconds(),
		EpochMs:       end.UnixMilli(),
		Timestamp:     end,
	}
	if runErr != nil {
		summary.Error = runErr.Error()
	}
	if attempt.Run != nil {
		summary.JobID = attempt.Run.JobID
		summary.Rows = attempt.Run.Rows
	}

	p.log.Info("attempt summary",
		"event_id", summary.EventID,
		"product", summary.Product,
		"outcome", summary.Outcome,
		"job_id", summary.JobID,
		"rows", summary.Rows,
		"time_ms", summary.TimeMs,
	)

	if err := p.deps.Telemetry.Emit(ctx, *summary); err != nil {
		p.log.Warn("failed to emit telemetry summary", "error", err)
	}

	if err := p.deps.History.RecordAttempt(ctx, history.AttemptRecord{
		EventID:       attempt.ID,
		Product:       attempt.Product.Name,
		Namespace:     attempt.Product.Namespace,
		OutputBranch:  attempt.Product.Branch,
		StagingBranch: attempt.StagingBranch,
		Outcome:       string(attempt.Outcome),
		JobID:         summary.JobID,
		Rows:          summary.Rows,
		ElapsedMs:     summary.TimeMs,
		Error:         summary.Error,
		StartedAt:     start,
	}); err != nil {
		p.log.Warn("failed to record attempt history", "error", err)
	}

	if m := p.deps.Metrics; m != nil {
		m.AttemptsTotal.WithLabelValues(summary.Product, summary.Outcome).Inc()
		m.RunDuration.WithLabelValues(summary.Product, summary.Outcome).Observe(end.Sub(start).Seconds())
		if attempt.Outcome == OutcomeMerged {
			m.RowsPublished.WithLabelValues(summary.Product).Add(float64(summary.Rows))
		} else {
			m.BranchesKept.Inc()
		}
	}

	return summary
}
