package suspendstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sbnz-social/modguard/moderation/event"
)

var redisSuspensionPrefix = "mod/suspension/"

// KEYS[1] = per-user hash; ARGV[1] = ban field; ARGV[2] = candidate expiry (ms).
// The hash expires with its longest ban.
var maxUpdateScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local nv = tonumber(ARGV[2])
if nv > cur then
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
	cur = nv
end
local p = tonumber(redis.call('HGET', KEYS[1], 'posting') or '0')
local l = tonumber(redis.call('HGET', KEYS[1], 'login') or '0')
redis.call('PEXPIREAT', KEYS[1], math.max(p, l))
return cur
`)

type RedisSuspendStore struct {
	Client *redis.Client
}

var _ SuspendStore = (*RedisSuspendStore)(nil)

func NewRedisSuspendStore(rdb *redis.Client) *RedisSuspendStore {
	return &RedisSuspendStore{Client: rdb}
}

func (s *RedisSuspendStore) Suspend(ctx context.Context, userID string, ban BanType, until time.Time) (time.Time, error) {
	if err := checkBan(ban); err != nil {
		return time.Time{}, err
	}
	ms, err := maxUpdateScript.Run(ctx, s.Client, []string{redisSuspensionPrefix + userID}, string(ban), event.ToMillis(until)).Int64()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: suspend %s: %w", event.ErrStorageUnavailable, ban, err)
	}
	return event.FromMillis(ms), nil
}

func (s *RedisSuspendStore) BanUntil(ctx context.Context, userID string, ban BanType) (time.Time, error) {
	if err := checkBan(ban); err != nil {
		return time.Time{}, err
	}
	ms, err := s.Client.HGet(ctx, redisSuspensionPrefix+userID, string(ban)).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	} else if err != nil {
		return time.Time{}, fmt.Errorf("%w: read %s ban: %w", event.ErrStorageUnavailable, ban, err)
	}
	return event.FromMillis(ms), nil
}
