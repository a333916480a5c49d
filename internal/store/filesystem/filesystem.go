// Package filesystem provides a BlobStorage implementation backed by the local
// filesystem. It stores uploaded payloads as immutable blob files named by a
// random storage key, decoupled from share tokens.
package filesystem

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/quickshare/quickshare/internal/store"
)

// Ensure BlobStore implements store.BlobStorage
var _ store.BlobStorage = (*BlobStore)(nil)

// BlobStore implements store.BlobStorage using the local filesystem.
// Files are named by a freshly minted UUID key (with a fixed suffix).
type BlobStore struct {
	root string
}

// listGrace is how old a blob file must be before List reports it. A registry
// row is only inserted after Put returns, so a file younger than this may
// belong to an in-flight upload (including one stalled on a slow client) and
// must never be offered up as an orphan.
const listGrace = time.Minute

// New returns a filesystem-backed blob store rooted at dir. The directory
// must already exist with secure permissions (0700 recommended).
func New(root string) (*BlobStore, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, errors.New("blob root is not a directory")
	}
	return &BlobStore{root: root}, nil
}

// path constructs the full path to the blob file for a given storage key.
func (b *BlobStore) path(key string) string { return filepath.Join(b.root, key+".blob") }

// Put consumes r fully into a new blob file and returns the minted key and
// byte count. Any failure mid-write removes the partial file so no partially
// written payload is ever retrievable.
func (b *BlobStore) Put(r io.Reader) (string, int64, error) {
	key := uuid.NewString()
	p := b.path(key)
	// #nosec G304: path is a fixed root plus a freshly generated UUID with a fixed suffix; no traversal possible.
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return "", 0, err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return "", 0, err
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(p)
		return "", 0, err
	}
	return key, n, nil
}

// Open returns a reader over the blob for key. The caller may keep reading
// after a concurrent Delete; the open descriptor outlives the unlink.
func (b *BlobStore) Open(key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return os.Open(b.path(key)) // #nosec G304 path constructed internally
}

// Delete removes the blob file for key. Removing an absent key is not an
// error, so retries and reaper re-runs stay idempotent.
func (b *BlobStore) Delete(key string) error {
	if key == "" {
		return nil
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(b.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List returns the blob keys currently present, excluding files younger than
// listGrace. Higher layers derive orphans by diffing against index-reported
// storage keys.
func (b *BlobStore) List() ([]string, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != ".blob" {
			continue
		}
		if info, err := e.Info(); err == nil && time.Since(info.ModTime()) < listGrace {
			continue
		}
		keys = append(keys, name[:len(name)-5])
	}
	return keys, nil
}

// validateKey enforces that the key is a canonical UUID string. This both
// prevents path traversal (no separators) and guarantees uniform filenames.
func validateKey(key string) error {
	if _, err := uuid.Parse(key); err != nil {
		return errors.New("invalid blob key: must be a canonical uuid")
	}
	return nil
}
