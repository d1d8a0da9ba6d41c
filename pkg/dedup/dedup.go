// Package dedup suppresses repeat ingestion of the same incident within a
// rolling window, keyed by pkg/incident.Fingerprint (spec.md §4.7).
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultWindow is the suppression window spec.md §4.7 names for repeat
// fingerprints.
const DefaultWindow = 5 * time.Minute

const keyPrefix = "sentinel:dedup:"

// Checker deduplicates incoming alerts against a rolling Redis window. A
// single SET NX EX both claims the fingerprint and sets its TTL atomically,
// so two concurrent webhook deliveries for the same fingerprint can never
// both win.
type Checker struct {
	rdb    *redis.Client
	window time.Duration
}

// NewChecker builds a Checker using the given Redis client and window. A
// zero window defaults to DefaultWindow.
func NewChecker(rdb *redis.Client, window time.Duration) *Checker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Checker{rdb: rdb, window: window}
}

func key(fingerprint string) string {
	return keyPrefix + fingerprint
}

// Claim reports whether fingerprint is new within the current window. The
// first caller for a fingerprint gets claimed=true and the window starts
// ticking; every subsequent caller until the window expires gets false and
// the incidentID the first claim is associated with.
func (c *Checker) Claim(ctx context.Context, fingerprint, incidentID string) (claimed bool, existingIncidentID string, err error) {
	ok, err := c.rdb.SetNX(ctx, key(fingerprint), incidentID, c.window).Result()
	if err != nil {
		return false, "", fmt.Errorf("dedup claim for %s: %w", fingerprint, err)
	}
	if ok {
		return true, "", nil
	}

	existing, err := c.rdb.Get(ctx, key(fingerprint)).Result()
	if err != nil && err != redis.Nil {
		return false, "", fmt.Errorf("dedup lookup for %s: %w", fingerprint, err)
	}
	return false, existing, nil
}

// Refresh extends an already-claimed fingerprint's window, used each time a
// duplicate alert for an already-open incident arrives so the window tracks
// the most recent activity rather than the first.
func (c *Checker) Refresh(ctx context.Context, fingerprint string) error {
	if err := c.rdb.Expire(ctx, key(fingerprint), c.window).Err(); err != nil {
		return fmt.Errorf("dedup refresh for %s: %w", fingerprint, err)
	}
	return nil
}

// Release removes a fingerprint's claim immediately — used when an incident
// reaches a terminal state and a fresh alert for the same fingerprint
// should open a new incident rather than wait out the window.
func (c *Checker) Release(ctx context.Context, fingerprint string) error {
	if err := c.rdb.Del(ctx, key(fingerprint)).Err(); err != nil {
		return fmt.Errorf("dedup release for %s: %w", fingerprint, err)
	}
	return nil
}
