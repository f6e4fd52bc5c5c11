package suspendstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sbnz-social/modguard/moderation/cachestore"
	"github.com/sbnz-social/modguard/moderation/event"
)

const cacheName = "suspension"

// Read-through cache in front of another SuspendStore. Writes go to the inner store, then purge the cached entry.
//
// A read only fills the cache if no write to the same key completed since the read began. Write generations are
// tracked in process, so a redis cache shared by several processes can still hold a stale entry until its TTL.
type CachedSuspendStore struct {
	Inner  SuspendStore
	Cache  cachestore.CacheStore
	Logger *slog.Logger

	gens *xsync.MapOf[string, uint64]
}

var _ SuspendStore = (*CachedSuspendStore)(nil)

func NewCachedSuspendStore(inner SuspendStore, cache cachestore.CacheStore, logger *slog.Logger) *CachedSuspendStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSuspendStore{
		Inner:  inner,
		Cache:  cache,
		Logger: logger,
		gens:   xsync.NewMapOf[string, uint64](),
	}
}

func cacheKey(userID string, ban BanType) string {
	return userID + "/" + string(ban)
}

func (s *CachedSuspendStore) Suspend(ctx context.Context, userID string, ban BanType, until time.Time) (time.Time, error) {
	key := cacheKey(userID, ban)
	actual, err := s.Inner.Suspend(ctx, userID, ban, until)
	// bumped after the write and before the purge; reads that started earlier must not fill
	s.gens.Compute(key, func(old uint64, loaded bool) (uint64, bool) {
		return old + 1, false
	})
	if err != nil {
		return time.Time{}, err
	}
	// the write already happened; a failed purge only delays visibility until the TTL
	if err := s.Cache.Purge(ctx, cacheName, key); err != nil {
		s.Logger.Error("failed to purge suspension cache", "user", userID, "ban", ban, "err", err)
	}
	return actual, nil
}

func (s *CachedSuspendStore) BanUntil(ctx context.Context, userID string, ban BanType) (time.Time, error) {
	if err := checkBan(ban); err != nil {
		return time.Time{}, err
	}
	key := cacheKey(userID, ban)
	var ms int64
	ok, err := cachestore.GetJSON(ctx, s.Cache, cacheName, key, &ms)
	if err != nil {
		s.Logger.Warn("suspension cache read failed", "user", userID, "err", err)
	} else if ok {
		return event.FromMillis(ms), nil
	}

	gen, _ := s.gens.Load(key)
	until, err := s.Inner.BanUntil(ctx, userID, ban)
	if err != nil {
		return time.Time{}, err
	}
	// the fill runs under the key's lock, so a concurrent write either bumps first (no fill) or purges after
	s.gens.Compute(key, func(cur uint64, loaded bool) (uint64, bool) {
		if cur != gen {
			return cur, false
		}
		if err := cachestore.SetJSON(ctx, s.Cache, cacheName, key, event.ToMillis(until)); err != nil {
			s.Logger.Warn("suspension cache write failed", "user", userID, "err", err)
		}
		return cur, false
	})
	return until, nil
}
