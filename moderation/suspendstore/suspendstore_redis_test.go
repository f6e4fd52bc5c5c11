package suspendstore

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisSuspendStore(t *testing.T) {
	redisURL := os.Getenv("MODGUARD_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("live test, need redis running locally (set MODGUARD_TEST_REDIS_URL)")
	}
	ctx := context.Background()
	opt, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	require.NoError(t, rdb.Del(ctx, redisSuspensionPrefix+"alice", redisSuspensionPrefix+"bob").Err())

	testMonotonicMax(t, NewRedisSuspendStore(rdb))
}
