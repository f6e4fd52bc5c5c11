package suspendstore

import (
	"context"
	"fmt"
	"time"
)

type BanType string

const (
	BanPosting BanType = "posting"
	BanLogin   BanType = "login"
)

func (b BanType) Valid() bool {
	return b == BanPosting || b == BanLogin
}

// Per-user ban expirations, one per BanType.
//
// Writes are a monotonic max: a new suspension can only extend, never shorten, the current ban. The read-modify-write is atomic per user and ban type. A zero time means "never suspended".
type SuspendStore interface {
	// Extends the ban to at least until, and returns the resulting expiry.
	Suspend(ctx context.Context, userID string, ban BanType, until time.Time) (time.Time, error)
	BanUntil(ctx context.Context, userID string, ban BanType) (time.Time, error)
}

func SuspendPosting(ctx context.Context, s SuspendStore, userID string, until time.Time) (time.Time, error) {
	return s.Suspend(ctx, userID, BanPosting, until)
}

func SuspendLogin(ctx context.Context, s SuspendStore, userID string, until time.Time) (time.Time, error) {
	return s.Suspend(ctx, userID, BanLogin, until)
}

// Reports whether the ban is in effect at now (now < expiry).
//
// Fails open: on a storage error the result is false, and the error is returned only so the caller can log it. Locking users out because of an infrastructure hiccup is considered worse than briefly missing a ban.
func IsSuspended(ctx context.Context, s SuspendStore, userID string, ban BanType, now time.Time) (bool, error) {
	until, err := s.BanUntil(ctx, userID, ban)
	if err != nil {
		return false, err
	}
	return now.Before(until), nil
}

func IsPostingSuspended(ctx context.Context, s SuspendStore, userID string, now time.Time) (bool, error) {
	return IsSuspended(ctx, s, userID, BanPosting, now)
}

func IsLoginSuspended(ctx context.Context, s SuspendStore, userID string, now time.Time) (bool, error) {
	return IsSuspended(ctx, s, userID, BanLogin, now)
}

func checkBan(ban BanType) error {
	if !ban.Valid() {
		return fmt.Errorf("unknown ban type: %q", ban)
	}
	return nil
}
