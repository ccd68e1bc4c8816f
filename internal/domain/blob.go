package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver moves old opportunity history from the database to cold storage.
type Archiver interface {
	ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error)
}

// BlobReader reads objects from object storage. Get returns ErrNotFound for
// a missing object.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}
