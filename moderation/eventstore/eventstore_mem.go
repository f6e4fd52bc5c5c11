package eventstore

import (
	"context"
	"sync"
	"time"

	"github.com/sbnz-social/modguard/moderation/event"
)

type MemEventStore struct {
	mu      sync.RWMutex
	reports map[string][]event.ReportEvent
	blocks  map[string][]event.BlockEvent

	flagMu  sync.Mutex
	flags   []event.Flag
	history []event.Flag
}

var _ EventStore = (*MemEventStore)(nil)

func NewMemEventStore() *MemEventStore {
	return &MemEventStore{
		reports: make(map[string][]event.ReportEvent),
		blocks:  make(map[string][]event.BlockEvent),
	}
}

func (s *MemEventStore) RecordReport(ctx context.Context, authorID, reporterID, postID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[authorID] = append(s.reports[authorID], event.ReportEvent{
		AuthorID:   authorID,
		ReporterID: reporterID,
		PostID:     postID,
		Timestamp:  at,
	})
	return nil
}

func (s *MemEventStore) RecordBlock(ctx context.Context, blockerID, targetID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[targetID] = append(s.blocks[targetID], event.BlockEvent{
		BlockerID: blockerID,
		TargetID:  targetID,
		Timestamp: at,
	})
	return nil
}

func (s *MemEventStore) ReportsAgainst(ctx context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.reports[userID] {
		if !r.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemEventStore) BlocksAgainst(ctx context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.blocks[userID] {
		if !b.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemEventStore) ReportTimesAgainst(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []time.Time{}
	for _, r := range s.reports[userID] {
		if !r.Timestamp.Before(since) {
			out = append(out, r.Timestamp)
		}
	}
	return out, nil
}

func (s *MemEventStore) BlockTimesAgainst(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []time.Time{}
	for _, b := range s.blocks[userID] {
		if !b.Timestamp.Before(since) {
			out = append(out, b.Timestamp)
		}
	}
	return out, nil
}

func (s *MemEventStore) AddFlag(ctx context.Context, userID, reason string, until time.Time) error {
	f := event.Flag{
		UserID:         userID,
		Reason:         reason,
		SuspendedUntil: until,
		CreatedAt:      time.Now(),
	}
	s.flagMu.Lock()
	defer s.flagMu.Unlock()
	s.flags = append(s.flags, f)
	s.history = append(s.history, f)
	return nil
}

func (s *MemEventStore) DrainFlags(ctx context.Context) ([]event.Flag, error) {
	s.flagMu.Lock()
	out := s.flags
	s.flags = nil
	s.flagMu.Unlock()
	if out == nil {
		return []event.Flag{}, nil
	}
	return out, nil
}

func (s *MemEventStore) RecentFlags(ctx context.Context, since time.Time, limit int) ([]event.Flag, error) {
	s.flagMu.Lock()
	defer s.flagMu.Unlock()
	out := []event.Flag{}
	// history is in creation order; walk it backwards for newest first
	for i := len(s.history) - 1; i >= 0; i-- {
		f := s.history[i]
		if f.CreatedAt.Before(since) {
			break
		}
		out = append(out, f)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemEventStore) ClearEvents(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = make(map[string][]event.ReportEvent)
	s.blocks = make(map[string][]event.BlockEvent)
	return nil
}
