package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/lakewright/product-publisher/internal/artifact"
	"github.com/lakewright/product-publisher/internal/logging"
	"github.com/lakewright/product-publisher/internal/rules"
)

// Row is one decoded table row. Values are plain JSON scalars.
type Row map[string]any

// BranchReader gives a transform read access to the tables of the
// branch it runs against.
type BranchReader struct {
	cat       *LocalCatalog
	branch    string
	namespace string
}

// ReadTable returns the rows of a table in the transform's namespace.
func (b *BranchReader) ReadTable(table string) ([]Row, error) {
	return b.cat.ReadTable(b.branch, b.namespace, table)
}

// TransformFunc is a pipeline transform run by the local executor. It
// returns the name of the output table and its full set of rows.
type TransformFunc func(ctx context.Context, branch *BranchReader, params map[string]string) (string, []Row, error)

// LocalCatalog is an in-process versioned catalog plus executor for
// development and tests. Branches are directories; table snapshots
// persist as parquet files of JSON-encoded row payloads. Runs execute
// a registered transform against the branch, then enforce the
// verification manifest found in the pipeline project.
type LocalCatalog struct {
	dir        string
	mu         sync.Mutex
	transforms map[string]TransformFunc
	log        *slog.Logger

	// Now is the evaluation instant used by freshness checks. Zero
	// means wall clock; tests pin it.
	Now time.Time
}

// NewLocalCatalog creates a local catalog rooted at dir.
func NewLocalCatalog(dir string) (*LocalCatalog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create catalog directory %s: %w", dir, err)
	}
	return &LocalCatalog{
		dir:        dir,
		transforms: make(map[string]TransformFunc),
		log:        logging.Component("local-catalog"),
	}, nil
}

// RegisterTransform binds a transform to a pipeline project directory.
func (c *LocalCatalog) RegisterTransform(projectDir string, fn TransformFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transforms[projectDir] = fn
}

func (c *LocalCatalog) branchDir(name string) string {
	return filepath.Join(c.dir, name)
}

func (c *LocalCatalog) tablePath(branch, namespace, table string) string {
	return filepath.Join(c.branchDir(branch), fmt.Sprintf("%s.%s.parquet", namespace, table))
}

// HasBranch reports whether the branch exists.
func (c *LocalCatalog) HasBranch(_ context.Context, name string) (bool, error) {
	fi, err := os.Stat(c.branchDir(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}

// CreateBranch creates a branch as a copy of fromRef's table snapshots.
func (c *LocalCatalog) CreateBranch(ctx context.Context, name, fromRef string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	src := c.branchDir(fromRef)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return fmt.Errorf("create branch %s from %s: %w", name, fromRef, ErrBranchNotFound)
	}

	dst := c.branchDir(name)
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("create branch %s: %w", name, err)
	}
	return c.copyTables(src, dst)
}

// DeleteBranch removes the branch and its snapshots.
func (c *LocalCatalog) DeleteBranch(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := c.branchDir(name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("delete branch %s: %w", name, ErrBranchNotFound)
	}
	return os.RemoveAll(dir)
}

// MergeBranch copies source's table snapshots over the target branch.
// Partial merges never happen: any copy error aborts before the first
// table lands by staging into a temp dir and renaming per table only
// after all copies succeeded.
func (c *LocalCatalog) MergeBranch(_ context.Context, source, into string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	src := c.branchDir(source)
	dst := c.branchDir(into)
	for _, d := range []string{src, dst} {
		if _, err := os.Stat(d); os.IsNotExist(err) {
			return fmt.Errorf("merge %s into %s: %w", source, into, ErrBranchNotFound)
		}
	}

	// Stage every table copy first, then commit with renames.
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("merge %s into %s: %w", source, into, err)
	}

	var staged []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		if err != nil {
			return fmt.Errorf("merge read %s: %w", e.Name(), err)
		}
		tmp := filepath.Join(dst, e.Name()+".merge")
		if err := os.WriteFile(tmp, data, 0644); err != nil {
			return fmt.Errorf("merge stage %s: %w", e.Name(), err)
		}
		staged = append(staged, e.Name())
	}

	for _, name := range staged {
		tmp := filepath.Join(dst, name+".merge")
		if err := os.Rename(tmp, filepath.Join(dst, name)); err != nil {
			return fmt.Errorf("merge commit %s: %w", name, err)
		}
	}
	return nil
}

// Run executes the transform registered for the project against the
// requested ref, persists its output table on that ref, then loads the
// project's verification manifest and evaluates every check against
// the materialized output. Check failures report a FAILED terminal
// status; infrastructure errors surface as errors.
func (c *LocalCatalog) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	c.mu.Lock()
	fn, ok := c.transforms[req.ProjectDir]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no transform registered for project %s", req.ProjectDir)
	}

	jobID := uuid.NewString()
	log := c.log.With("job_id", jobID, "ref", req.Ref)

	reader := &BranchReader{cat: c, branch: req.Ref, namespace: req.Namespace}
	table, rows, err := fn(ctx, reader, req.Parameters)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}

	if err := c.WriteTable(req.Ref, req.Namespace, table, rows); err != nil {
		return nil, fmt.Errorf("write output table %s: %w", table, err)
	}

	v, err := artifact.Load(req.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("load verification manifest: %w", err)
	}

	params := rules.Params{AsOf: req.Parameters[v.Parameter], Now: c.Now}
	if err := v.Evaluate(rowsDataset(rows), params); err != nil {
		log.Warn("verification failed", "table", table, "error", err)
		return &RunResult{JobID: jobID, Status: StatusFailed, Rows: int64(len(rows))}, nil
	}

	log.Info("run complete", "table", table, "rows", len(rows))
	return &RunResult{JobID: jobID, Status: StatusSuccess, Rows: int64(len(rows))}, nil
}

// rowRecord is the parquet envelope for one row. Rows persist as raw
// JSON payloads, preserving whatever scalar types the transform emits.
type rowRecord struct {
	Payload []byte `parquet:"payload"`
}

// ReadTable loads a table snapshot from a branch. A missing table
// reads as empty.
func (c *LocalCatalog) ReadTable(branch, namespace, table string) ([]Row, error) {
	path := c.tablePath(branch, namespace, table)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	records, err := parquet.ReadFile[rowRecord](path)
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", path, err)
	}

	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		var row Row
		if err := json.Unmarshal(rec.Payload, &row); err != nil {
			return nil, fmt.Errorf("decode row %d of %s: %w", i, path, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteTable persists a table snapshot on a branch, replacing any
// prior snapshot.
func (c *LocalCatalog) WriteTable(branch, namespace, table string, rows []Row) error {
	if err := os.MkdirAll(c.branchDir(branch), 0755); err != nil {
		return err
	}

	records := make([]rowRecord, 0, len(rows))
	for i, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
		records = append(records, rowRecord{Payload: payload})
	}

	path := c.tablePath(branch, namespace, table)
	tempPath := path + ".tmp"
	if err := parquet.WriteFile(tempPath, records); err != nil {
		return fmt.Errorf("write table %s: %w", path, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename table %s: %w", path, err)
	}
	return nil
}

func (c *LocalCatalog) copyTables(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dst, e.Name()), data, 0644); err != nil {
			return err
		}
	}
	return nil
}

// rowsDataset adapts in-memory rows to the rules.Dataset interface.
type rowsDataset []Row

func (d rowsDataset) NumRows() int { return len(d) }

func (d rowsDataset) Column(name string) ([]any, error) {
	vals := make([]any, len(d))
	for i, row := range d {
		vals[i] = row[name] // absent keys read as null
	}
	return vals, nil
}
