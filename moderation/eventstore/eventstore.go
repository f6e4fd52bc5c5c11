package eventstore

import (
	"context"
	"time"

	"github.com/sbnz-social/modguard/moderation/event"
)

// Append-only record of report and block events, plus the transient flag queue.
//
// Implementations must be safe for concurrent use. Counts reflect a consistent snapshot at call time: events appended concurrently may or may not be included, but are never double-counted or lost.
type EventStore interface {
	RecordReport(ctx context.Context, authorID, reporterID, postID string, at time.Time) error
	RecordBlock(ctx context.Context, blockerID, targetID string, at time.Time) error
	// Number of reports against posts authored by userID with timestamp >= since.
	ReportsAgainst(ctx context.Context, userID string, since time.Time) (int, error)
	// Number of blocks targeting userID with timestamp >= since.
	BlocksAgainst(ctx context.Context, userID string, since time.Time) (int, error)
	// Timestamps of reports against userID with timestamp >= since, in no particular order. Read in one query, so counts bucketed from the result nest across windows.
	ReportTimesAgainst(ctx context.Context, userID string, since time.Time) ([]time.Time, error)
	// Timestamps of blocks targeting userID with timestamp >= since, in no particular order.
	BlockTimesAgainst(ctx context.Context, userID string, since time.Time) ([]time.Time, error)
	AddFlag(ctx context.Context, userID, reason string, until time.Time) error
	// Atomically returns all queued flags (in enqueue order) and empties the queue. Each flag is delivered to exactly one drain.
	DrainFlags(ctx context.Context) ([]event.Flag, error)
	// Flags ever added (drained or not) created at or after since, newest first.
	RecentFlags(ctx context.Context, since time.Time, limit int) ([]event.Flag, error)
	// Administrative reset of all report and block events. Not for production use.
	ClearEvents(ctx context.Context) error
}
