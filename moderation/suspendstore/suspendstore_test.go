package suspendstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sbnz-social/modguard/moderation/cachestore"
)

func testGormStore(t *testing.T) *GormSuspendStore {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "suspensions.sqlite")), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqldb, err := db.DB()
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { sqldb.Close() })

	s, err := NewGormSuspendStore(db)
	require.NoError(t, err)
	return s
}

func allStores(t *testing.T) map[string]SuspendStore {
	return map[string]SuspendStore{
		"mem":    NewMemSuspendStore(),
		"gorm":   testGormStore(t),
		"cached": NewCachedSuspendStore(NewMemSuspendStore(), cachestore.NewMemCacheStore(100, time.Hour), nil),
	}
}

func testMonotonicMax(t *testing.T, s SuspendStore) {
	assert := assert.New(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	until, err := s.BanUntil(ctx, "alice", BanPosting)
	assert.NoError(err)
	assert.True(until.IsZero())
	ok, err := IsPostingSuspended(ctx, s, "alice", now)
	assert.NoError(err)
	assert.False(ok)

	long := now.Add(24 * time.Hour)
	short := now.Add(time.Hour)

	actual, err := SuspendPosting(ctx, s, "alice", long)
	assert.NoError(err)
	assert.True(long.Equal(actual))

	// a shorter suspension never shortens the ban
	actual, err = SuspendPosting(ctx, s, "alice", short)
	assert.NoError(err)
	assert.True(long.Equal(actual))
	until, err = s.BanUntil(ctx, "alice", BanPosting)
	assert.NoError(err)
	assert.True(long.Equal(until))

	// equal value is a no-op
	actual, err = SuspendPosting(ctx, s, "alice", long)
	assert.NoError(err)
	assert.True(long.Equal(actual))

	ok, err = IsPostingSuspended(ctx, s, "alice", now)
	assert.NoError(err)
	assert.True(ok)
	ok, err = IsPostingSuspended(ctx, s, "alice", long)
	assert.NoError(err)
	assert.False(ok, "ban ends at its expiry instant")

	// ban types are independent
	ok, err = IsLoginSuspended(ctx, s, "alice", now)
	assert.NoError(err)
	assert.False(ok)
	_, err = SuspendLogin(ctx, s, "alice", now.Add(72*time.Hour))
	assert.NoError(err)
	ok, err = IsLoginSuspended(ctx, s, "alice", now)
	assert.NoError(err)
	assert.True(ok)
	until, err = s.BanUntil(ctx, "alice", BanPosting)
	assert.NoError(err)
	assert.True(long.Equal(until))

	// expired bans read as not suspended
	_, err = SuspendPosting(ctx, s, "bob", now.Add(-time.Hour))
	assert.NoError(err)
	ok, err = IsPostingSuspended(ctx, s, "bob", now)
	assert.NoError(err)
	assert.False(ok)

	_, err = s.Suspend(ctx, "alice", BanType("shadow"), long)
	assert.Error(err)
}

func TestSuspendStores(t *testing.T) {
	for name, s := range allStores(t) {
		t.Run(name, func(t *testing.T) { testMonotonicMax(t, s) })
	}
}

func TestMemSuspendStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemSuspendStore()
	base := time.Now().Truncate(time.Millisecond)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				until := base.Add(time.Duration(w*100+i) * time.Minute)
				_, err := SuspendPosting(ctx, s, "alice", until)
				assert.NoError(err)
				_, err = s.BanUntil(ctx, "alice", BanPosting)
				assert.NoError(err)
			}
		}(w)
	}
	wg.Wait()

	until, err := s.BanUntil(ctx, "alice", BanPosting)
	assert.NoError(err)
	assert.True(base.Add(799 * time.Minute).Equal(until))
}

type failingStore struct{}

func (failingStore) Suspend(ctx context.Context, userID string, ban BanType, until time.Time) (time.Time, error) {
	return time.Time{}, assert.AnError
}

func (failingStore) BanUntil(ctx context.Context, userID string, ban BanType) (time.Time, error) {
	return time.Time{}, assert.AnError
}

func TestSuspendedFailsOpen(t *testing.T) {
	ok, err := IsLoginSuspended(context.Background(), failingStore{}, "alice", time.Now())
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestCachedSuspendStorePurgesOnWrite(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	inner := NewMemSuspendStore()
	s := NewCachedSuspendStore(inner, cachestore.NewMemCacheStore(100, time.Hour), nil)
	now := time.Now().Truncate(time.Millisecond)

	// populate the cache with "not suspended"
	until, err := s.BanUntil(ctx, "alice", BanLogin)
	assert.NoError(err)
	assert.True(until.IsZero())

	_, err = SuspendLogin(ctx, s, "alice", now.Add(48*time.Hour))
	assert.NoError(err)
	ok, err := IsLoginSuspended(ctx, s, "alice", now)
	assert.NoError(err)
	assert.True(ok)
}

// Pauses the first BanUntil after it has read the inner store.
type pausingStore struct {
	SuspendStore
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (p *pausingStore) BanUntil(ctx context.Context, userID string, ban BanType) (time.Time, error) {
	until, err := p.SuspendStore.BanUntil(ctx, userID, ban)
	p.once.Do(func() {
		close(p.read)
		<-p.release
	})
	return until, err
}

func TestCachedSuspendStoreSlowReadDoesNotCacheStaleBan(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	inner := &pausingStore{
		SuspendStore: NewMemSuspendStore(),
		read:         make(chan struct{}),
		release:      make(chan struct{}),
	}
	s := NewCachedSuspendStore(inner, cachestore.NewMemCacheStore(100, time.Hour), nil)
	now := time.Now().Truncate(time.Millisecond)

	done := make(chan time.Time)
	go func() {
		until, err := s.BanUntil(ctx, "alice", BanPosting)
		assert.NoError(err)
		done <- until
	}()

	<-inner.read
	_, err := SuspendPosting(ctx, s, "alice", now.Add(24*time.Hour))
	require.NoError(t, err)
	close(inner.release)

	// the slow read saw the old value, but must not have cached it
	assert.True((<-done).IsZero())

	ok, err := IsPostingSuspended(ctx, s, "alice", now)
	assert.NoError(err)
	assert.True(ok)
	until, err := s.BanUntil(ctx, "alice", BanPosting)
	assert.NoError(err)
	assert.True(now.Add(24 * time.Hour).Equal(until))
}
