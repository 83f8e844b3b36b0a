package contract

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

func writeDescriptor(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data-product-descriptor.json")
	if err := os.WriteFile(path, []byte(sampleDescriptor), 0644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	return path
}

func TestLoader_PlainPath(t *testing.T) {
	path := writeDescriptor(t)

	p, err := NewLoader("tlc_trip_record").Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Name != "taxi_trips" {
		t.Errorf("name = %s, want taxi_trips", p.Name)
	}
}

func TestLoader_FileURL(t *testing.T) {
	path := writeDescriptor(t)

	p, err := NewLoader("").Load(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Name != "taxi_trips" {
		t.Errorf("name = %s, want taxi_trips", p.Name)
	}
}

func TestSplitBlobURL(t *testing.T) {
	tests := []struct {
		source string
		bucket string
		key    string
	}{
		// Object-store buckets are named by host only; nested keys must
		// survive in full, not collapse to their last segment.
		{"s3://contracts/products/taxi/descriptor.json", "s3://contracts", "products/taxi/descriptor.json"},
		{"s3://contracts/descriptor.json?region=us-east-1", "s3://contracts?region=us-east-1", "descriptor.json"},
		{"gs://contracts/products/taxi/descriptor.json", "gs://contracts", "products/taxi/descriptor.json"},
		// The file driver consumes the path as the bucket directory.
		{"file:///data/products/taxi/descriptor.json", "file:///data/products/taxi", "descriptor.json"},
	}

	for _, tt := range tests {
		u, err := url.Parse(tt.source)
		if err != nil {
			t.Fatalf("parse %s: %v", tt.source, err)
		}
		bucket, key := splitBlobURL(u)
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("splitBlobURL(%s) = (%s, %s), want (%s, %s)",
				tt.source, bucket, key, tt.bucket, tt.key)
		}
	}
}

func TestLoader_InputNamespaceMismatch(t *testing.T) {
	path := writeDescriptor(t)

	_, err := NewLoader("another_namespace").Load(context.Background(), path)
	var nsErr *NamespaceMismatchError
	if !errors.As(err, &nsErr) {
		t.Fatalf("expected NamespaceMismatchError, got %v", err)
	}
}

func TestLoader_MissingSource(t *testing.T) {
	_, err := NewLoader("").Load(context.Background(), filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("expected error for missing descriptor")
	}
}
