package eventstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisEventStore(t *testing.T) {
	redisURL := os.Getenv("MODGUARD_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("live test, need redis running locally (set MODGUARD_TEST_REDIS_URL)")
	}
	ctx := context.Background()

	s, err := NewRedisEventStore(redisURL)
	require.NoError(t, err)
	require.NoError(t, s.ClearEvents(ctx))
	_, err = s.DrainFlags(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Client.Del(ctx, redisFlagHistKey).Err())

	t.Run("counts", func(t *testing.T) { testEventCounts(t, s) })
	t.Run("flags", func(t *testing.T) { testFlagQueue(t, s) })
	t.Run("concurrent-drain", func(t *testing.T) { testConcurrentDrain(t, s) })

	// events beyond the retention are trimmed on the next append
	assert := assert.New(t)
	assert.NoError(s.RecordReport(ctx, "old", "r", "p", time.Now().Add(-RedisEventRetention-time.Hour)))
	assert.NoError(s.RecordReport(ctx, "old", "r", "p", time.Now()))
	c, err := s.ReportsAgainst(ctx, "old", time.Time{})
	assert.NoError(err)
	assert.Equal(1, c)
	assert.NoError(s.ClearEvents(ctx))
}
