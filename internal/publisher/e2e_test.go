package publisher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lakewright/product-publisher/internal/catalog"
	"github.com/lakewright/product-publisher/internal/contract"
)

// localSetup builds a publisher wired to a LocalCatalog acting as both
// catalog and executor, with one upstream table seeded on main.
func localSetup(t *testing.T) (*Publisher, *catalog.LocalCatalog, string) {
	t.Helper()
	root := t.TempDir()

	descriptor := filepath.Join(root, "descriptor.json")
	if err := os.WriteFile(descriptor, []byte(fmt.Sprintf(descriptorTmpl, "null")), 0644); err != nil {
		t.Fatal(err)
	}
	projectDir := filepath.Join(root, "pipeline")
	if err := os.MkdirAll(projectDir, 0755); err != nil {
		t.Fatal(err)
	}

	cat, err := catalog.NewLocalCatalog(filepath.Join(root, "catalog"))
	if err != nil {
		t.Fatal(err)
	}
	cat.Now = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	if err := cat.WriteTable("main", "taxi", "raw_trips", []catalog.Row{
		{"trip_id": "t1"}, {"trip_id": "t2"}, {"trip_id": "t3"},
	}); err != nil {
		t.Fatal(err)
	}

	p := New(Config{
		ContractSource: descriptor,
		ProjectRoot:    root,
		User:           "ciuser",
		Parameter:      "as_of_date",
	}, Deps{
		Loader:   contract.NewLoader("taxi"),
		Catalog:  cat,
		Executor: cat,
	})
	p.now = cat.Now.UTC
	p.newID = func() string { return "e2e" }
	return p, cat, projectDir
}

func TestEndToEndMerge(t *testing.T) {
	p, cat, projectDir := localSetup(t)

	cat.RegisterTransform(projectDir, func(_ context.Context, branch *catalog.BranchReader, params map[string]string) (string, []catalog.Row, error) {
		if params["as_of_date"] != "10/05/2024" {
			return "", nil, fmt.Errorf("unexpected as_of_date %q", params["as_of_date"])
		}
		in, err := branch.ReadTable("raw_trips")
		if err != nil {
			return "", nil, err
		}
		out := make([]catalog.Row, 0, len(in))
		for _, r := range in {
			out = append(out, catalog.Row{"trip_id": r["trip_id"]})
		}
		return "trips", out, nil
	})

	summary, err := p.Publish(context.Background())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if summary.Outcome != string(OutcomeMerged) {
		t.Fatalf("outcome = %s, want MERGED", summary.Outcome)
	}
	if summary.Rows != 3 {
		t.Errorf("rows = %d, want 3", summary.Rows)
	}

	// The published table is readable on main and the staging branch
	// is gone.
	published, err := cat.ReadTable("main", "taxi", "trips")
	if err != nil || len(published) != 3 {
		t.Errorf("published rows = %d, %v", len(published), err)
	}
	if exists, _ := cat.HasBranch(context.Background(), summary.StagingBranch); exists {
		t.Error("staging branch survived the merge")
	}
}

func TestEndToEndPreserveOnQualityFailure(t *testing.T) {
	p, cat, projectDir := localSetup(t)

	cat.RegisterTransform(projectDir, func(_ context.Context, branch *catalog.BranchReader, _ map[string]string) (string, []catalog.Row, error) {
		in, err := branch.ReadTable("raw_trips")
		if err != nil {
			return "", nil, err
		}
		out := append([]catalog.Row{}, in...)
		out = append(out, catalog.Row{"trip_id": nil})
		return "trips", out, nil
	})

	summary, err := p.Publish(context.Background())
	var rf *RunFailureError
	if !errors.As(err, &rf) {
		t.Fatalf("err = %v, want RunFailureError", err)
	}
	if summary.Outcome != string(OutcomePreserved) {
		t.Fatalf("outcome = %s, want PRESERVED", summary.Outcome)
	}

	// Nothing reached main; the staging branch is kept with the bad
	// output for inspection.
	if onMain, _ := cat.ReadTable("main", "taxi", "trips"); len(onMain) != 0 {
		t.Errorf("failed output leaked to main: %d rows", len(onMain))
	}
	if exists, _ := cat.HasBranch(context.Background(), summary.StagingBranch); !exists {
		t.Fatal("staging branch was not preserved")
	}
	if staged, _ := cat.ReadTable(summary.StagingBranch, "taxi", "trips"); len(staged) != 4 {
		t.Errorf("staged rows = %d, want 4", len(staged))
	}
}

func TestEndToEndPreserveOnTransformError(t *testing.T) {
	p, cat, projectDir := localSetup(t)

	cat.RegisterTransform(projectDir, func(context.Context, *catalog.BranchReader, map[string]string) (string, []catalog.Row, error) {
		return "", nil, errors.New("upstream table truncated")
	})

	summary, err := p.Publish(context.Background())
	if err == nil {
		t.Fatal("expected transform error")
	}
	if summary.Outcome != string(OutcomePreserved) {
		t.Fatalf("outcome = %s, want PRESERVED", summary.Outcome)
	}
	if exists, _ := cat.HasBranch(context.Background(), summary.StagingBranch); !exists {
		t.Error("staging branch was not preserved")
	}
}
