// Package domain share.go defines the share lifecycle model and its policy.
package domain

import "time"

// ShareState is the lifecycle state of a share. Transitions are strictly
// Active -> Expired -> Deleted; a share is never deleted while still
// consumable. Deleted is terminal and corresponds to the registry row being
// removed, so it never appears in a persisted record.
type ShareState string

const (
	StateActive  ShareState = "active"
	StateExpired ShareState = "expired"
	StateDeleted ShareState = "deleted"
)

// Policy carries the per-share options accepted at upload time.
// The zero value means "no time expiry, unlimited downloads".
type Policy struct {
	TTL          time.Duration // 0 = share never expires by time
	MaxDownloads int64         // 0 = unlimited downloads
}

// ValidatePolicy checks a policy against the configured TTL bounds.
// A zero TTL is allowed (no time expiry); a non-zero TTL must fall within
// [minTTL, maxTTL]. MaxDownloads must be non-negative.
// Returns ErrPolicyInvalid on any violation.
func ValidatePolicy(p Policy, minTTL, maxTTL time.Duration) error {
	if p.TTL != 0 {
		if p.TTL < minTTL || p.TTL > maxTTL {
			return ErrPolicyInvalid
		}
	}
	if p.MaxDownloads < 0 {
		return ErrPolicyInvalid
	}
	return nil
}
