// Package store defines internal persistence adapter ports used by the
// higher-level ShareStore implementation. These ports isolate the concrete
// SQLite index and filesystem blob storage so they can be tested and evolved
// independently. Callers outside this package interact only with the
// app.ShareStore implementation, not these internal details.
package store

import (
	"context"
	"io"
	"time"

	"github.com/quickshare/quickshare/internal/domain"
)

// Record is the registry row for a single share. ExpiresAt nil means no
// time-based expiry; Remaining nil means an unlimited download budget.
type Record struct {
	Token      string
	StorageKey string
	Filename   string
	Size       int64
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	Remaining  *int64
	State      domain.ShareState
}

// ConsumeResult is a Record after a successful download decrement.
// LastDownload is set when the budget just reached zero.
type ConsumeResult struct {
	Record
	LastDownload bool
}

// ReapCandidate identifies a share due for deletion and the blob it owns.
// CreatedAt is populated by ListRefs only.
type ReapCandidate struct {
	Token      string
	StorageKey string
	CreatedAt  time.Time
}

// Index abstracts the registry metadata operations (backed by SQLite).
// Implementations are not required to serialize per-token access themselves;
// the composing Store holds a per-token lock around every mutating call.
type Index interface {
	// Insert adds a new Active row. Returns app.ErrConflict when the token
	// already exists.
	Insert(ctx context.Context, rec Record) error
	// Get returns the row for token, or app.ErrNotFound.
	Get(ctx context.Context, token string) (*Record, error)
	// ConsumeOne applies the single-decision-point consume: missing row =>
	// app.ErrNotFound; expired by time (tombstoning the row) or exhausted or
	// already tombstoned => app.ErrGone; otherwise the budget is decremented
	// and the row tombstoned when it reaches zero.
	ConsumeOne(ctx context.Context, token string, now time.Time) (*ConsumeResult, error)
	// Stat evaluates the same validity rules as ConsumeOne at instant now but
	// mutates nothing.
	Stat(ctx context.Context, token string, now time.Time) (*Record, error)
	// MarkExpired tombstones a row so the next reaper pass removes it.
	MarkExpired(ctx context.Context, token string) error
	// Delete removes the row and returns it, or app.ErrNotFound.
	Delete(ctx context.Context, token string) (*Record, error)
	// Reapable lists shares past their policy at instant now: tombstoned,
	// time-expired, or with an exhausted download budget.
	Reapable(ctx context.Context, now time.Time) ([]ReapCandidate, error)
	// ListRefs lists every row's token, storage key, and creation time; used
	// to diff against blob storage during reconciliation.
	ListRefs(ctx context.Context) ([]ReapCandidate, error)
}

// BlobStorage abstracts payload persistence on the filesystem. Keys are
// minted by Put and are never derived from tokens.
type BlobStorage interface {
	Put(r io.Reader) (key string, size int64, err error)
	Open(key string) (io.ReadCloser, error)
	// Delete is idempotent: removing an absent key is not an error.
	Delete(key string) error
	// List returns all blob keys present in storage.
	List() ([]string, error)
}
