package userdir

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sbnz-social/modguard/moderation/cachestore"
	"github.com/sbnz-social/modguard/moderation/event"
)

const cacheName = "user"

// Caches LookupUser results. Unknown users are not cached, so a freshly registered user is visible immediately. ListAllUsers always goes to the inner directory.
type CachedDirectory struct {
	Inner  Directory
	Cache  cachestore.CacheStore
	Logger *slog.Logger
}

var _ Directory = (*CachedDirectory)(nil)

func NewCachedDirectory(inner Directory, cache cachestore.CacheStore, logger *slog.Logger) *CachedDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDirectory{Inner: inner, Cache: cache, Logger: logger}
}

func (d *CachedDirectory) ListAllUsers(ctx context.Context) ([]string, error) {
	return d.Inner.ListAllUsers(ctx)
}

func (d *CachedDirectory) LookupUser(ctx context.Context, userID string) (*User, error) {
	var u User
	ok, err := cachestore.GetJSON(ctx, d.Cache, cacheName, userID, &u)
	if err != nil {
		d.Logger.Warn("user cache read failed", "user", userID, "err", err)
	} else if ok {
		return &u, nil
	}

	found, err := d.Inner.LookupUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, event.ErrUnknownUser) {
			d.Logger.Warn("user lookup failed", "user", userID, "err", err)
		}
		return nil, err
	}
	if err := cachestore.SetJSON(ctx, d.Cache, cacheName, userID, *found); err != nil {
		d.Logger.Warn("user cache write failed", "user", userID, "err", err)
	}
	return found, nil
}
