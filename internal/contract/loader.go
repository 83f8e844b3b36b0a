package contract

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver
)

// Loader fetches contract descriptors and parses them into Products.
//
// Descriptor sources are either plain filesystem paths or blob URLs
// (file://, s3://, gs://) pointing at the descriptor document inside
// the product's checkout or artifact bucket.
type Loader struct {
	// InputNamespace, when non-empty, is the namespace the upstream
	// input port is agreed to live in. The loader rejects contracts
	// whose output namespace differs from it.
	InputNamespace string
}

// NewLoader creates a Loader. inputNamespace may be empty when the
// caller relies solely on the descriptor's own input port declarations.
func NewLoader(inputNamespace string) *Loader {
	return &Loader{InputNamespace: inputNamespace}
}

// Load fetches the descriptor at source and parses it.
func (l *Loader) Load(ctx context.Context, source string) (*Product, error) {
	data, err := l.fetch(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("fetch descriptor %s: %w", source, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if l.InputNamespace != "" && p.Namespace != l.InputNamespace {
		return nil, &NamespaceMismatchError{Input: l.InputNamespace, Output: p.Namespace}
	}

	return p, nil
}

func (l *Loader) fetch(ctx context.Context, source string) ([]byte, error) {
	if !strings.Contains(source, "://") {
		return os.ReadFile(source)
	}

	u, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}

	bucketURL, key := splitBlobURL(u)
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	defer bucket.Close()

	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	defer r.Close()

	return io.ReadAll(r)
}

// splitBlobURL splits a descriptor URL into the bucket URL to open and
// the object key to read. Object-store drivers (s3, gs) name the bucket
// by host alone and ignore any URL path, so the key carries the full
// path. The file driver instead treats the path as the bucket
// directory, so only the last segment is the key.
func splitBlobURL(u *url.URL) (bucketURL, key string) {
	if u.Scheme == "file" {
		dir := *u
		dir.Path = path.Dir(u.Path)
		return dir.String(), path.Base(u.Path)
	}

	root := *u
	root.Path = ""
	return root.String(), strings.TrimPrefix(u.Path, "/")
}
