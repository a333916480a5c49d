// Package sqlite provides a SQLite-backed implementation of the store.Index
// port for persisting share registry rows.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/quickshare/quickshare/internal/app"
	"github.com/quickshare/quickshare/internal/domain"
	"github.com/quickshare/quickshare/internal/store"
)

var _ store.Index = (*Index)(nil)

// Index implements store.Index using SQLite (via database/sql). It is safe for
// concurrent use; database/sql manages connection pooling and serialization,
// and the composing store additionally serializes per-token mutations.
type Index struct{ db *sql.DB }

// New constructs an Index, initializing the required schema if absent.
func New(db *sql.DB) (*Index, error) {
	ix := &Index{db: db}
	if err := ix.init(); err != nil {
		return nil, err
	}
	return ix, nil
}

func (i *Index) init() error {
	schema := `CREATE TABLE IF NOT EXISTS shares (
token TEXT PRIMARY KEY,
storage_key TEXT NOT NULL,
filename TEXT NOT NULL DEFAULT '',
size INTEGER NOT NULL,
created_at INTEGER NOT NULL,
expires_at INTEGER,
downloads_remaining INTEGER,
state TEXT NOT NULL DEFAULT 'active'
);
CREATE INDEX IF NOT EXISTS idx_shares_expires_at ON shares(expires_at);`
	_, err := i.db.Exec(schema)
	return err
}

// Insert stores a new Active share row. A primary-key collision is reported
// as app.ErrConflict so the ingest path can reissue the token.
func (i *Index) Insert(ctx context.Context, rec store.Record) error {
	const q = `INSERT INTO shares (token, storage_key, filename, size, created_at, expires_at, downloads_remaining, state) VALUES (?,?,?,?,?,?,?,?)`
	_, err := i.db.ExecContext(ctx, q, rec.Token, rec.StorageKey, rec.Filename, rec.Size,
		rec.CreatedAt.Unix(), nullUnix(rec.ExpiresAt), nullInt(rec.Remaining), string(domain.StateActive))
	if err != nil {
		var sqErr sqlite3.Error
		if errors.As(err, &sqErr) && sqErr.Code == sqlite3.ErrConstraint {
			return app.ErrConflict
		}
		return err
	}
	return nil
}

// Get returns the row for token regardless of its validity.
func (i *Index) Get(ctx context.Context, token string) (*store.Record, error) {
	const q = `SELECT token, storage_key, filename, size, created_at, expires_at, downloads_remaining, state FROM shares WHERE token=?`
	return scanRecord(i.db.QueryRowContext(ctx, q, token))
}

// ConsumeOne applies one download against the row inside a transaction. The
// expiry check and the budget decrement are evaluated against the same row
// snapshot, so a request arriving exactly at the expiry instant sees either a
// fully valid or fully expired share, never something in between. Callers
// hold the per-token lock, so no concurrent consume interleaves.
func (i *Index) ConsumeOne(ctx context.Context, token string, now time.Time) (res *store.ConsumeResult, err error) {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const q = `SELECT token, storage_key, filename, size, created_at, expires_at, downloads_remaining, state FROM shares WHERE token=?`
	rec, err := scanRecord(tx.QueryRowContext(ctx, q, token))
	if err != nil {
		return nil, err
	}
	const tombstone = `UPDATE shares SET state=? WHERE token=?`
	if rec.State != domain.StateActive {
		err = app.ErrGone
		return nil, err
	}
	if rec.ExpiresAt != nil && !rec.ExpiresAt.After(now) {
		if _, uErr := tx.ExecContext(ctx, tombstone, string(domain.StateExpired), token); uErr != nil {
			err = uErr
			return nil, err
		}
		if err = tx.Commit(); err != nil {
			return nil, err
		}
		return nil, app.ErrGone
	}
	if rec.Remaining != nil && *rec.Remaining <= 0 {
		if _, uErr := tx.ExecContext(ctx, tombstone, string(domain.StateExpired), token); uErr != nil {
			err = uErr
			return nil, err
		}
		if err = tx.Commit(); err != nil {
			return nil, err
		}
		return nil, app.ErrGone
	}

	last := false
	if rec.Remaining != nil {
		left := *rec.Remaining - 1
		rec.Remaining = &left
		if left == 0 {
			// Budget exhausted by this download: tombstone so the reaper
			// reclaims the share; the reader opened under the token lock
			// keeps streaming regardless.
			last = true
			rec.State = domain.StateExpired
			_, err = tx.ExecContext(ctx, `UPDATE shares SET downloads_remaining=0, state=? WHERE token=?`, string(domain.StateExpired), token)
		} else {
			_, err = tx.ExecContext(ctx, `UPDATE shares SET downloads_remaining=? WHERE token=?`, left, token)
		}
		if err != nil {
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &store.ConsumeResult{Record: *rec, LastDownload: last}, nil
}

// Stat evaluates validity at instant now without mutating the row.
func (i *Index) Stat(ctx context.Context, token string, now time.Time) (*store.Record, error) {
	rec, err := i.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec.State != domain.StateActive {
		return nil, app.ErrGone
	}
	if rec.ExpiresAt != nil && !rec.ExpiresAt.After(now) {
		return nil, app.ErrGone
	}
	if rec.Remaining != nil && *rec.Remaining <= 0 {
		return nil, app.ErrGone
	}
	return rec, nil
}

// MarkExpired tombstones the row for the next reaper pass.
func (i *Index) MarkExpired(ctx context.Context, token string) error {
	_, err := i.db.ExecContext(ctx, `UPDATE shares SET state=? WHERE token=?`, string(domain.StateExpired), token)
	return err
}

// Delete hard-removes the row and returns it if it existed.
func (i *Index) Delete(ctx context.Context, token string) (*store.Record, error) {
	const q = `DELETE FROM shares WHERE token=? RETURNING token, storage_key, filename, size, created_at, expires_at, downloads_remaining, state`
	return scanRecord(i.db.QueryRowContext(ctx, q, token))
}

// Reapable lists shares past their policy: tombstoned rows, rows whose expiry
// has elapsed, and rows with an exhausted download budget.
func (i *Index) Reapable(ctx context.Context, now time.Time) ([]store.ReapCandidate, error) {
	const q = `SELECT token, storage_key FROM shares WHERE state != ? OR (expires_at IS NOT NULL AND expires_at <= ?) OR downloads_remaining = 0`
	rows, err := i.db.QueryContext(ctx, q, string(domain.StateActive), now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.ReapCandidate
	for rows.Next() {
		var c store.ReapCandidate
		if err = rows.Scan(&c.Token, &c.StorageKey); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRefs returns every row's token, storage key, and creation time.
func (i *Index) ListRefs(ctx context.Context) ([]store.ReapCandidate, error) {
	const q = `SELECT token, storage_key, created_at FROM shares`
	rows, err := i.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []store.ReapCandidate
	for rows.Next() {
		var c store.ReapCandidate
		var createdUnix int64
		if err = rows.Scan(&c.Token, &c.StorageKey, &createdUnix); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(createdUnix, 0).UTC()
		refs = append(refs, c)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface{ Scan(dest ...any) error }

func scanRecord(row rowScanner) (*store.Record, error) {
	var (
		rec         store.Record
		createdUnix int64
		expiresUnix sql.NullInt64
		remaining   sql.NullInt64
		state       string
	)
	if err := row.Scan(&rec.Token, &rec.StorageKey, &rec.Filename, &rec.Size, &createdUnix, &expiresUnix, &remaining, &state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, app.ErrNotFound
		}
		return nil, err
	}
	rec.CreatedAt = time.Unix(createdUnix, 0).UTC()
	if expiresUnix.Valid {
		t := time.Unix(expiresUnix.Int64, 0).UTC()
		rec.ExpiresAt = &t
	}
	if remaining.Valid {
		n := remaining.Int64
		rec.Remaining = &n
	}
	rec.State = domain.ShareState(state)
	return &rec, nil
}

func nullUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}
