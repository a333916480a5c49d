// Package store provides the concrete implementation of the application
// ShareStore port by composing lower-layer persistence ports (Index and
// BlobStorage). External packages should construct the store via New and
// interact only through the app.ShareStore interface.
package store

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/EagleChen/mapmutex"

	"github.com/quickshare/quickshare/internal/app"
)

// reconcileGrace is how old a row must be before reconciliation will
// tombstone it for a missing blob; anything younger may reference a blob the
// blob listing still hides behind its own freshness guard.
const reconcileGrace = time.Minute

// lockRetryInterval paces reacquisition attempts on a contended token lock.
const lockRetryInterval = 5 * time.Millisecond

// Store composes an Index and BlobStorage to satisfy app.ShareStore, and
// additionally provides the reaper operations (DeleteExpired, Reconcile).
// All mutations of a single token are serialized through a per-token mutex;
// operations on different tokens never contend.
type Store struct {
	index Index
	blobs BlobStorage
	locks *mapmutex.Mutex
}

// New returns a Store implementation of app.ShareStore.
func New(index Index, blobs BlobStorage) *Store {
	return &Store{index: index, blobs: blobs, locks: mapmutex.NewMapMutex()}
}

var _ app.ShareStore = (*Store)(nil)

// lockToken acquires the token's critical section, retrying under contention
// until ctx ends. Request-path operations must wait their turn on a hot token
// rather than fail; only the reaper skips contended tokens.
func (s *Store) lockToken(ctx context.Context, token string) error {
	for {
		if s.locks.TryLock(token) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// PutBlob streams the payload into blob storage under a fresh key.
func (s *Store) PutBlob(r io.Reader) (string, int64, error) {
	return s.blobs.Put(r)
}

// DeleteBlob removes a blob; absent keys are not an error.
func (s *Store) DeleteBlob(key string) error {
	return s.blobs.Delete(key)
}

// Create inserts the registry row for a new share. The blob referenced by
// s.StorageKey must already be fully written; the row is the authoritative
// source of validity from this point on.
func (s *Store) Create(ctx context.Context, n app.NewShare) error {
	if err := s.lockToken(ctx, n.Token); err != nil {
		return err
	}
	defer s.locks.Unlock(n.Token)
	return s.index.Insert(ctx, Record{
		Token:      n.Token,
		StorageKey: n.StorageKey,
		Filename:   n.Filename,
		Size:       n.Size,
		CreatedAt:  n.CreatedAt,
		ExpiresAt:  n.ExpiresAt,
		Remaining:  n.MaxDownloads,
	})
}

// Consume applies one download under the token's critical section and opens
// the blob before releasing it. Opening under the lock guarantees the reaper
// cannot delete the share between the decrement and the first read; once the
// descriptor is open, a later unlink by the reaper does not disturb the
// stream. The returned ReadCloser must be closed by the caller.
func (s *Store) Consume(ctx context.Context, token string, now time.Time) (app.ShareInfo, io.ReadCloser, error) {
	if err := s.lockToken(ctx, token); err != nil {
		return app.ShareInfo{}, nil, err
	}
	defer s.locks.Unlock(token)
	res, err := s.index.ConsumeOne(ctx, token, now)
	if err != nil {
		return app.ShareInfo{}, nil, err
	}
	rc, err := s.blobs.Open(res.StorageKey)
	if err != nil {
		// Registry says live but the blob is missing: integrity violation.
		// Tombstone the row so the reaper converges, and surface internal.
		_ = s.index.MarkExpired(ctx, token)
		return app.ShareInfo{}, nil, app.ErrInternal
	}
	return infoFromRecord(res.Record, res.LastDownload), rc, nil
}

// Stat reports share metadata without consuming a download slot.
func (s *Store) Stat(ctx context.Context, token string, now time.Time) (app.ShareInfo, error) {
	rec, err := s.index.Stat(ctx, token, now)
	if err != nil {
		return app.ShareInfo{}, err
	}
	return infoFromRecord(*rec, false), nil
}

// DeleteExpired removes shares past their policy as of t and returns the
// count removed. For each candidate the blob is deleted before the registry
// row, so an interruption leaves at worst a dangling row pointing at a
// removed blob (safe: retrieval surfaces an internal error and tombstones it)
// and never a live blob past its policy.
func (s *Store) DeleteExpired(ctx context.Context, t time.Time) (int, error) {
	candidates, err := s.index.Reapable(ctx, t)
	if err != nil {
		return 0, err
	}
	count := 0
	var firstErr error
	for _, c := range candidates {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		if !s.locks.TryLock(c.Token) {
			continue // contended with a download; next cycle picks it up
		}
		if err := s.blobs.Delete(c.StorageKey); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.locks.Unlock(c.Token)
			continue // keep the row so a later pass retries the blob
		}
		if _, err := s.index.Delete(ctx, c.Token); err != nil && !errors.Is(err, app.ErrNotFound) {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			count++
		}
		s.locks.Unlock(c.Token)
	}
	return count, firstErr
}

// Reconcile repairs divergence between the registry and blob storage in both
// directions: blobs without a referencing row are deleted, and rows whose
// blob has vanished are tombstoned for the next reaper pass. A row is only
// ever inserted after its blob is fully written, so orphan detection diffs
// against every row; the blob listing hides files younger than its grace so
// an in-flight upload (however slow the client) is never mistaken for an
// orphan, and the tombstone direction skips rows younger than the same grace
// for the mirror-image reason. Returns the number of orphan blobs removed.
func (s *Store) Reconcile(ctx context.Context) (int, error) {
	if s.index == nil || s.blobs == nil {
		return 0, errors.New("store not properly initialized")
	}
	blobKeys, err := s.blobs.List()
	if err != nil {
		return 0, err
	}
	refs, err := s.index.ListRefs(ctx)
	if err != nil {
		return 0, err
	}
	rowSet := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		rowSet[ref.StorageKey] = struct{}{}
	}
	// Any sufficiently old blob without a registry row is an orphan.
	orphans := 0
	for _, bk := range blobKeys {
		if _, ok := rowSet[bk]; !ok {
			if s.blobs.Delete(bk) == nil {
				orphans++
			}
		}
	}
	blobSet := make(map[string]struct{}, len(blobKeys))
	for _, bk := range blobKeys {
		blobSet[bk] = struct{}{}
	}
	cutoff := time.Now().UTC().Add(-reconcileGrace)
	for _, ref := range refs {
		if _, ok := blobSet[ref.StorageKey]; ok {
			continue
		}
		if ref.CreatedAt.After(cutoff) {
			continue
		}
		if !s.locks.TryLock(ref.Token) {
			continue
		}
		_ = s.index.MarkExpired(ctx, ref.Token)
		s.locks.Unlock(ref.Token)
	}
	return orphans, nil
}

func infoFromRecord(rec Record, last bool) app.ShareInfo {
	return app.ShareInfo{
		Token:        rec.Token,
		Filename:     rec.Filename,
		Size:         rec.Size,
		CreatedAt:    rec.CreatedAt,
		ExpiresAt:    rec.ExpiresAt,
		Remaining:    rec.Remaining,
		LastDownload: last,
	}
}
