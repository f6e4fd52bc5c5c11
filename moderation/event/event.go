package event

import (
	"errors"
	"time"
)

var (
	// Returned (wrapped) by stores when the backing storage can not be read or written.
	ErrStorageUnavailable = errors.New("moderation storage unavailable")
	// Returned (wrapped) when a user id is not known to the user directory.
	ErrUnknownUser = errors.New("unknown user")
)

// Recorded when a user reports a post. AuthorID is the owner of the post, and the subject of moderation.
type ReportEvent struct {
	AuthorID   string
	ReporterID string
	PostID     string
	Timestamp  time.Time
}

// Recorded when a user blocks another. TargetID is the subject of moderation.
type BlockEvent struct {
	BlockerID string
	TargetID  string
	Timestamp time.Time
}

// Audit record emitted by a detection pass when a predicate matches a user.
//
// A zero SuspendedUntil means the user was flagged without a time-bounded suspension.
type Flag struct {
	UserID         string    `json:"userId"`
	Reason         string    `json:"reason"`
	SuspendedUntil time.Time `json:"suspendedUntil"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Converts a timestamp to the Unix millisecond form used by all storage backends. The zero time maps to 0.
func ToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// Inverse of ToMillis; 0 maps to the zero time.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
