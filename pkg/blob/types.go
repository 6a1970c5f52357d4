// Package blob is the storage backend for archived run history: opaque
// documents addressed by slash-separated keys. The local filesystem
// implementation covers single-host deployments.
package blob

import (
	"context"
	"io"
)

// BlobStore stores opaque documents by key.
type BlobStore interface {
	// Put stores the reader's content under key, atomically replacing any
	// previous content.
	Put(ctx context.Context, key string, reader io.Reader) error

	// Get opens the blob at key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns the keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the blob at key.
	Delete(ctx context.Context, key string) error
}
