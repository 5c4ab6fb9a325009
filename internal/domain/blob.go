package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// SnapshotInfo describes one ledger snapshot written to object storage.
type SnapshotInfo struct {
	Prefix     string
	Stakes     int
	TakenAt    time.Time
	OracleTime uint64
}

// Snapshotter exports the full ledger state to cold storage.
type Snapshotter interface {
	Snapshot(ctx context.Context) (SnapshotInfo, error)
	// List returns stored snapshots, newest first.
	List(ctx context.Context) ([]SnapshotInfo, error)
	// Prune deletes all but the newest keep snapshots and returns how many
	// were removed.
	Prune(ctx context.Context, keep int) (int, error)
}

// BlobDeleter removes objects from storage.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}
