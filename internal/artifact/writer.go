// Package artifact materializes compiled verifications as runnable
// check manifests inside pipeline projects.
//
// The manifest is the explicit seam between rules-as-data and
// rules-as-executable-checks: executors discover it under a fixed,
// well-known name next to the transform code and enforce it as part of
// the run. Writing it is idempotent per attempt: a prior manifest of
// the same name is overwritten atomically.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lakewright/product-publisher/internal/rules"
)

// ManifestName is the well-known file name executors look for inside a
// pipeline project.
const ManifestName = "quality_checks.json"

// manifestVersion pins the on-disk format.
const manifestVersion = "1"

// Manifest is the on-disk form of a compiled verification.
type Manifest struct {
	Version     string            `json:"version"`
	Product     string            `json:"product"`
	Parameter   string            `json:"parameter"`
	Checks      []rules.CheckSpec `json:"checks"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Writer writes verification manifests into pipeline projects.
type Writer struct{}

// NewWriter creates a Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Write serializes v into projectDir under ManifestName, overwriting
// any prior manifest. The write is atomic (temp file + rename).
func (w *Writer) Write(projectDir string, v *rules.Verification) (string, error) {
	if fi, err := os.Stat(projectDir); err != nil {
		return "", fmt.Errorf("pipeline project %s: %w", projectDir, err)
	} else if !fi.IsDir() {
		return "", fmt.Errorf("pipeline project %s is not a directory", projectDir)
	}

	m := Manifest{
		Version:     manifestVersion,
		Product:     v.Product,
		Parameter:   v.Parameter,
		Checks:      v.Specs(),
		GeneratedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	path := filepath.Join(projectDir, ManifestName)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return "", fmt.Errorf("write temp manifest %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("rename manifest %s: %w", path, err)
	}

	return path, nil
}

// Load reads the manifest from projectDir and rebuilds its executable
// verification. Executors call this to enforce the checks alongside
// the transform.
func Load(projectDir string) (*rules.Verification, error) {
	path := filepath.Join(projectDir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	v := &rules.Verification{
		Product:   m.Product,
		Parameter: m.Parameter,
	}
	for _, spec := range m.Checks {
		check, err := rules.FromSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
		v.Checks = append(v.Checks, check)
	}

	return v, nil
}
