package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lakewright/product-publisher/internal/rules"
)

func testVerification(t *testing.T) *rules.Verification {
	t.Helper()
	v := &rules.Verification{Product: "taxi_trips", Parameter: "as_of_date"}
	for _, spec := range []rules.CheckSpec{
		{Kind: rules.CheckFreshnessDays, Days: 3},
		{Kind: rules.CheckColumnNoNulls, Column: "on_scene_datetime"},
	} {
		c, err := rules.FromSpec(spec)
		if err != nil {
			t.Fatalf("FromSpec: %v", err)
		}
		v.Checks = append(v.Checks, c)
	}
	return v
}

func TestWriteAndLoad(t *testing.T) {
	dir := t.TempDir()

	path, err := NewWriter().Write(dir, testVerification(t))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if filepath.Base(path) != ManifestName {
		t.Errorf("manifest written as %s, want %s", filepath.Base(path), ManifestName)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Product != "taxi_trips" || loaded.Parameter != "as_of_date" {
		t.Errorf("loaded identity = %s/%s", loaded.Product, loaded.Parameter)
	}
	if len(loaded.Checks) != 2 {
		t.Fatalf("loaded %d checks, want 2", len(loaded.Checks))
	}
	if loaded.Checks[0].Spec.Kind != rules.CheckFreshnessDays {
		t.Errorf("first check = %s, want %s", loaded.Checks[0].Spec.Kind, rules.CheckFreshnessDays)
	}
	if loaded.Checks[0].Eval == nil {
		t.Error("loaded checks must carry executable predicates")
	}
}

func TestWriteOverwritesPriorManifest(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter()

	if _, err := w.Write(dir, testVerification(t)); err != nil {
		t.Fatalf("first write: %v", err)
	}

	second := &rules.Verification{Product: "taxi_trips", Parameter: "as_of_date"}
	c, err := rules.FromSpec(rules.CheckSpec{Kind: rules.CheckColumnAllUnique, Column: "trip_id"})
	if err != nil {
		t.Fatalf("FromSpec: %v", err)
	}
	second.Checks = append(second.Checks, c)

	if _, err := w.Write(dir, second); err != nil {
		t.Fatalf("second write: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Checks) != 1 || loaded.Checks[0].Spec.Kind != rules.CheckColumnAllUnique {
		t.Errorf("manifest not overwritten: %+v", loaded.Specs())
	}

	// No temp residue left behind.
	if _, err := os.Stat(filepath.Join(dir, ManifestName+".tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind after write")
	}
}

func TestWriteMissingProject(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	if _, err := NewWriter().Write(missing, testVerification(t)); err == nil {
		t.Fatal("expected error for missing project directory")
	}
}
