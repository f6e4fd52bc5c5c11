package suspendstore

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sbnz-social/modguard/moderation/event"
)

type banState struct {
	PostingUntil int64
	LoginUntil   int64
}

func (b *banState) field(ban BanType) *int64 {
	if ban == BanLogin {
		return &b.LoginUntil
	}
	return &b.PostingUntil
}

type MemSuspendStore struct {
	bans *xsync.MapOf[string, banState]
}

var _ SuspendStore = (*MemSuspendStore)(nil)

func NewMemSuspendStore() *MemSuspendStore {
	return &MemSuspendStore{
		bans: xsync.NewMapOf[string, banState](),
	}
}

func (s *MemSuspendStore) Suspend(ctx context.Context, userID string, ban BanType, until time.Time) (time.Time, error) {
	if err := checkBan(ban); err != nil {
		return time.Time{}, err
	}
	ms := event.ToMillis(until)
	// Compute holds the per-key lock for the whole read-modify-write
	actual, _ := s.bans.Compute(userID, func(old banState, loaded bool) (banState, bool) {
		f := old.field(ban)
		if ms > *f {
			*f = ms
		}
		return old, false
	})
	return event.FromMillis(*actual.field(ban)), nil
}

func (s *MemSuspendStore) BanUntil(ctx context.Context, userID string, ban BanType) (time.Time, error) {
	if err := checkBan(ban); err != nil {
		return time.Time{}, err
	}
	st, ok := s.bans.Load(userID)
	if !ok {
		return time.Time{}, nil
	}
	return event.FromMillis(*st.field(ban)), nil
}
