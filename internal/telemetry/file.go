package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// fileEmitter appends summaries to daily-rotated JSONL files. It
// doubles as the local backup path for the HTTP emitter.
type fileEmitter struct {
	dir string
}

func newFileEmitter(dir string) (*fileEmitter, error) {
	if dir == "" {
		dir = "./telemetry"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create telemetry directory %s: %w", dir, err)
	}
	return &fileEmitter{dir: dir}, nil
}

func (e *fileEmitter) Emit(_ context.Context, s Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	path := filepath.Join(e.dir, fmt.Sprintf("summaries_%s.jsonl", s.Timestamp.UTC().Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open summary file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append summary: %w", err)
	}
	return nil
}

func (e *fileEmitter) Close() error { return nil }
