// Package app defines the application layer "ports" (interfaces) and simple
// data contracts that the core use-cases of quickshare depend upon. It follows
// a hexagonal (ports & adapters) design: this package declares what the core
// needs, while adapter packages (e.g. SQLite+filesystem storage, HTTP layer,
// janitor jobs) provide concrete implementations. No I/O, logging, SQL, or
// network concerns belong here.
package app

import (
	"context"
	"io"
	"time"
)

// ShareInfo is the metadata view of a share returned to callers. Remaining is
// the download budget after any decrement performed by the returning call;
// nil means unlimited. ExpiresAt nil means the share never expires by time.
type ShareInfo struct {
	Token        string
	Filename     string
	Size         int64
	CreatedAt    time.Time
	ExpiresAt    *time.Time
	Remaining    *int64
	LastDownload bool // set by Retrieve when the budget just reached zero
}

// NewShare carries everything needed to register a freshly uploaded blob.
type NewShare struct {
	Token        string
	StorageKey   string
	Size         int64
	Filename     string
	CreatedAt    time.Time
	ExpiresAt    *time.Time // nil = no time expiry
	MaxDownloads *int64     // nil = unlimited
}

// Clock abstracts time to enable deterministic testing of expiry logic.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
}

// Recorder is the optional metrics port. Implementations must be safe for
// concurrent use. The service treats a nil Recorder as a no-op.
type Recorder interface {
	ShareCreated(sizeBytes int64)
	DownloadServed()
}

// ShareStore is the storage port for shares. Implementations coordinate a
// registry index (e.g. SQLite) with blob storage (filesystem) and must
// guarantee that all mutations of a single token are serialized.
type ShareStore interface {
	// PutBlob consumes r fully and durably stores its bytes under a freshly
	// minted storage key. On any failure mid-write the partial data must not
	// remain retrievable. Returns the storage key and the observed byte count.
	PutBlob(r io.Reader) (storageKey string, size int64, err error)

	// DeleteBlob removes a blob. Deleting an absent key is not an error.
	DeleteBlob(storageKey string) error

	// Create inserts the registry entry for a new share in state Active.
	// Returns ErrConflict if the token already exists; the caller owns blob
	// cleanup in that case.
	Create(ctx context.Context, s NewShare) error

	// Consume atomically applies one download against the share identified by
	// token, evaluated at instant now: a missing entry yields ErrNotFound; a
	// time-expired or exhausted entry yields ErrGone; otherwise the budget is
	// decremented (no-op when unlimited) and a reader over the blob is
	// returned. The expiry check and the decrement share a single decision
	// point, and no concurrent Consume or reap of the same token may
	// interleave. A valid entry whose blob is missing yields ErrInternal
	// after tombstoning the entry for the reaper.
	Consume(ctx context.Context, token string, now time.Time) (ShareInfo, io.ReadCloser, error)

	// Stat returns metadata for a share without consuming a download.
	Stat(ctx context.Context, token string, now time.Time) (ShareInfo, error)
}
