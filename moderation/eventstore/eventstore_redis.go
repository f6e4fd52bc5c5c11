package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sbnz-social/modguard/moderation/event"
)

var (
	redisReportPrefix = "mod/reports/"
	redisBlockPrefix  = "mod/blocks/"
	redisFlagQueueKey = "mod/flags"
	redisFlagHistKey  = "mod/flags/history"

	// events older than this can not influence any detection window (widest is 7 days)
	RedisEventRetention = 8 * 24 * time.Hour
	RedisFlagRetention  = 30 * 24 * time.Hour
)

type RedisEventStore struct {
	Client *redis.Client
}

var _ EventStore = (*RedisEventStore)(nil)

// history entries carry a random id so that identical flags remain distinct set members
type redisFlag struct {
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	Reason         string `json:"reason"`
	SuspendedUntil int64  `json:"untilMs"`
	CreatedAt      int64  `json:"createdMs"`
}

func (rf redisFlag) toFlag() event.Flag {
	return event.Flag{
		UserID:         rf.UserID,
		Reason:         rf.Reason,
		SuspendedUntil: event.FromMillis(rf.SuspendedUntil),
		CreatedAt:      event.FromMillis(rf.CreatedAt),
	}
}

func NewRedisEventStore(redisURL string) (*RedisEventStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis ping: %w", event.ErrStorageUnavailable, err)
	}
	return &RedisEventStore{Client: rdb}, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", event.ErrStorageUnavailable, op, err)
}

func (s *RedisEventStore) appendEvent(ctx context.Context, key string, at time.Time) error {
	cutoff := time.Now().Add(-RedisEventRetention).UnixMilli()

	// append, trim, and refresh expiry in a single redis round-trip
	multi := s.Client.Pipeline()
	multi.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: uuid.NewString()})
	multi.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	multi.Expire(ctx, key, RedisEventRetention)
	_, err := multi.Exec(ctx)
	return err
}

func (s *RedisEventStore) RecordReport(ctx context.Context, authorID, reporterID, postID string, at time.Time) error {
	if err := s.appendEvent(ctx, redisReportPrefix+authorID, at); err != nil {
		return storageErr("record report", err)
	}
	return nil
}

func (s *RedisEventStore) RecordBlock(ctx context.Context, blockerID, targetID string, at time.Time) error {
	if err := s.appendEvent(ctx, redisBlockPrefix+targetID, at); err != nil {
		return storageErr("record block", err)
	}
	return nil
}

func (s *RedisEventStore) countSince(ctx context.Context, key string, since time.Time) (int, error) {
	c, err := s.Client.ZCount(ctx, key, strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return int(c), nil
}

func (s *RedisEventStore) ReportsAgainst(ctx context.Context, userID string, since time.Time) (int, error) {
	c, err := s.countSince(ctx, redisReportPrefix+userID, since)
	if err != nil {
		return 0, storageErr("count reports", err)
	}
	return c, nil
}

func (s *RedisEventStore) BlocksAgainst(ctx context.Context, userID string, since time.Time) (int, error) {
	c, err := s.countSince(ctx, redisBlockPrefix+userID, since)
	if err != nil {
		return 0, storageErr("count blocks", err)
	}
	return c, nil
}

func (s *RedisEventStore) timesSince(ctx context.Context, key string, since time.Time) ([]time.Time, error) {
	zs, err := s.Client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(zs))
	for _, z := range zs {
		out = append(out, event.FromMillis(int64(z.Score)))
	}
	return out, nil
}

func (s *RedisEventStore) ReportTimesAgainst(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	ts, err := s.timesSince(ctx, redisReportPrefix+userID, since)
	if err != nil {
		return nil, storageErr("list reports", err)
	}
	return ts, nil
}

func (s *RedisEventStore) BlockTimesAgainst(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	ts, err := s.timesSince(ctx, redisBlockPrefix+userID, since)
	if err != nil {
		return nil, storageErr("list blocks", err)
	}
	return ts, nil
}

func (s *RedisEventStore) AddFlag(ctx context.Context, userID, reason string, until time.Time) error {
	now := time.Now()
	rf := redisFlag{
		ID:             uuid.NewString(),
		UserID:         userID,
		Reason:         reason,
		SuspendedUntil: event.ToMillis(until),
		CreatedAt:      now.UnixMilli(),
	}
	b, err := json.Marshal(rf)
	if err != nil {
		return err
	}
	cutoff := now.Add(-RedisFlagRetention).UnixMilli()

	multi := s.Client.TxPipeline()
	multi.RPush(ctx, redisFlagQueueKey, b)
	multi.ZAdd(ctx, redisFlagHistKey, redis.Z{Score: float64(rf.CreatedAt), Member: b})
	multi.ZRemRangeByScore(ctx, redisFlagHistKey, "-inf", "("+strconv.FormatInt(cutoff, 10))
	if _, err := multi.Exec(ctx); err != nil {
		return storageErr("add flag", err)
	}
	return nil
}

func (s *RedisEventStore) DrainFlags(ctx context.Context) ([]event.Flag, error) {
	var lr *redis.StringSliceCmd
	// MULTI/EXEC: no other client can push or drain between the read and the delete
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lr = pipe.LRange(ctx, redisFlagQueueKey, 0, -1)
		pipe.Del(ctx, redisFlagQueueKey)
		return nil
	})
	if err != nil {
		return nil, storageErr("drain flags", err)
	}
	return decodeFlags(lr.Val())
}

func (s *RedisEventStore) RecentFlags(ctx context.Context, since time.Time, limit int) ([]event.Flag, error) {
	rng := &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}
	if limit > 0 {
		rng.Count = int64(limit)
	}
	vals, err := s.Client.ZRevRangeByScore(ctx, redisFlagHistKey, rng).Result()
	if err != nil {
		return nil, storageErr("recent flags", err)
	}
	return decodeFlags(vals)
}

func decodeFlags(vals []string) ([]event.Flag, error) {
	out := make([]event.Flag, 0, len(vals))
	for _, v := range vals {
		var rf redisFlag
		if err := json.Unmarshal([]byte(v), &rf); err != nil {
			return nil, fmt.Errorf("decoding flag: %w", err)
		}
		out = append(out, rf.toFlag())
	}
	return out, nil
}

func (s *RedisEventStore) ClearEvents(ctx context.Context) error {
	for _, prefix := range []string{redisReportPrefix, redisBlockPrefix} {
		iter := s.Client.Scan(ctx, 0, prefix+"*", 500).Iterator()
		keys := []string{}
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return storageErr("scan events", err)
		}
		if len(keys) == 0 {
			continue
		}
		if err := s.Client.Del(ctx, keys...).Err(); err != nil {
			return storageErr("clear events", err)
		}
	}
	return nil
}
