// Package app contains the application orchestration layer for quickshare. It
// wires domain validation with persistence ports without performing any I/O
// itself.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/quickshare/quickshare/internal/domain"
)

// Sentinel errors forming the engine's caller-visible taxonomy.
var (
	// ErrNotFound indicates the token was never issued or its entry has
	// already been reaped.
	ErrNotFound = errors.New("share not found")
	// ErrGone indicates the share existed but its policy has since
	// invalidated it (time expiry or exhausted download budget).
	ErrGone = errors.New("share gone")
	// ErrConflict indicates a token collision during registry creation.
	ErrConflict = errors.New("share token conflict")
	// ErrPayloadTooLarge indicates the upload exceeds the configured cap.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrInternal indicates a storage/registry invariant violation.
	ErrInternal = errors.New("internal storage error")
)

// Service orchestrates share creation, retrieval, and metadata lookup using
// the injected store and clock.
type Service struct {
	Store    ShareStore
	Clock    Clock
	Recorder Recorder // optional; nil disables metrics
	MaxBytes int64
	MinTTL   time.Duration
	MaxTTL   time.Duration
}

// Ingest validates the policy, streams the body into blob storage, issues a
// token, and registers the share. declaredSize < 0 means the caller does not
// know the size up front (e.g. multipart uploads); the cap is then enforced
// while streaming. On a token collision the just-written blob is deleted and
// issuance retried once before surfacing ErrInternal. An aborted stream
// leaves no blob and no registry entry.
func (s *Service) Ingest(ctx context.Context, body io.Reader, declaredSize int64, filename string, pol domain.Policy) (domain.Token, *time.Time, error) {
	if err := domain.ValidatePolicy(pol, s.MinTTL, s.MaxTTL); err != nil {
		return "", nil, err
	}
	if declaredSize > s.MaxBytes {
		return "", nil, ErrPayloadTooLarge
	}
	key, size, err := s.Store.PutBlob(&capReader{r: body, remaining: s.MaxBytes})
	if err != nil {
		// The blob store removes partial files itself; just surface.
		return "", nil, err
	}
	now := s.Clock.Now()
	var expiresAt *time.Time
	if pol.TTL > 0 {
		t := now.Add(pol.TTL)
		expiresAt = &t
	}
	var maxDownloads *int64
	if pol.MaxDownloads > 0 {
		n := pol.MaxDownloads
		maxDownloads = &n
	}
	for attempt := 0; attempt < 2; attempt++ {
		token, genErr := domain.NewToken()
		if genErr != nil { // extremely unlikely, but propagate
			_ = s.Store.DeleteBlob(key)
			return "", nil, genErr
		}
		err = s.Store.Create(ctx, NewShare{
			Token:        token.String(),
			StorageKey:   key,
			Size:         size,
			Filename:     filename,
			CreatedAt:    now,
			ExpiresAt:    expiresAt,
			MaxDownloads: maxDownloads,
		})
		if err == nil {
			if s.Recorder != nil {
				s.Recorder.ShareCreated(size)
			}
			return token, expiresAt, nil
		}
		if !errors.Is(err, ErrConflict) {
			break
		}
	}
	_ = s.Store.DeleteBlob(key)
	if errors.Is(err, ErrConflict) {
		return "", nil, fmt.Errorf("%w: token space exhausted", ErrInternal)
	}
	return "", nil, err
}

// Retrieve consumes one download from the share and returns its metadata plus
// a reader over the blob. The download slot is spent before streaming begins;
// a cancelled or failed transfer is not refunded.
func (s *Service) Retrieve(ctx context.Context, tokenStr string) (ShareInfo, io.ReadCloser, error) {
	token, err := domain.ParseToken(tokenStr)
	if err != nil {
		return ShareInfo{}, nil, domain.ErrInvalidToken
	}
	info, rc, err := s.Store.Consume(ctx, token.String(), s.Clock.Now())
	if err != nil {
		return ShareInfo{}, nil, err
	}
	if s.Recorder != nil {
		s.Recorder.DownloadServed()
	}
	return info, rc, nil
}

// Stat returns share metadata without consuming a download slot.
func (s *Service) Stat(ctx context.Context, tokenStr string) (ShareInfo, error) {
	token, err := domain.ParseToken(tokenStr)
	if err != nil {
		return ShareInfo{}, domain.ErrInvalidToken
	}
	return s.Store.Stat(ctx, token.String(), s.Clock.Now())
}

// capReader enforces the upload size cap while streaming. It permits exactly
// `remaining` bytes; the read that would exceed the cap fails with
// ErrPayloadTooLarge, which the blob store treats as a mid-write failure and
// discards the partial file.
type capReader struct {
	r         io.Reader
	remaining int64
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, ErrPayloadTooLarge
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, ErrPayloadTooLarge
	}
	return n, err
}
