// Package resultcache implements C5, the Result Cache: a fingerprint-
// keyed Ready space with TTL plus an In-flight space with single-writer,
// lease-based claim semantics (spec.md §4.6).
package resultcache

import (
	"context"
	"time"
)

// ClaimOutcome classifies the result of TryClaim.
type ClaimOutcome string

const (
	Claimed    ClaimOutcome = "CLAIMED"
	HeldByOther ClaimOutcome = "HELD_BY_OTHER"
	ReadyNow   ClaimOutcome = "READY_NOW"
)

// ClaimResult is the full return value of TryClaim.
type ClaimResult struct {
	Outcome   ClaimOutcome
	Owner     string    // set when Outcome == HeldByOther
	ExpiresAt time.Time // set when Outcome == HeldByOther
	ResultID  string    // set when Outcome == ReadyNow
}

// Cache exposes the atomic primitives spec.md §4.6 requires of the
// Result Cache. Implementations must make the compare-and-set semantics
// of TryClaim/Release/PublishReady atomic even under concurrent callers
// for the same fingerprint.
type Cache interface {
	// TryClaim attempts to acquire the in-flight slot for fingerprint.
	TryClaim(ctx context.Context, fingerprint, ownerID string, leaseDuration time.Duration) (ClaimResult, error)

	// Release releases the in-flight slot. Returns analysiserr.NotOwner
	// if ownerID does not hold the current lease.
	Release(ctx context.Context, fingerprint, ownerID string) error

	// PublishReady writes a Ready-space entry and releases any in-flight
	// slot for fingerprint (spec.md §4.6: "also releases in-flight").
	PublishReady(ctx context.Context, fingerprint, resultID string, ttl time.Duration) error

	// LookupReady returns the Ready-space entry for fingerprint, if any
	// and not expired. A lazily-expired entry is reported as a miss.
	LookupReady(ctx context.Context, fingerprint string) (resultID string, ok bool, err error)
}
