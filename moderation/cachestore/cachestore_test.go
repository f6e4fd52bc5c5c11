package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type cachedThing struct {
	Name  string
	Count int
}

func TestMemCacheStoreJSON(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cs := NewMemCacheStore(10, time.Hour)

	var out cachedThing
	ok, err := GetJSON(ctx, cs, "thing", "a", &out)
	assert.NoError(err)
	assert.False(ok)

	assert.NoError(SetJSON(ctx, cs, "thing", "a", cachedThing{Name: "a", Count: 3}))
	ok, err = GetJSON(ctx, cs, "thing", "a", &out)
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(cachedThing{Name: "a", Count: 3}, out)

	// namespaces are independent
	ok, err = GetJSON(ctx, cs, "other", "a", &out)
	assert.NoError(err)
	assert.False(ok)

	assert.NoError(cs.Purge(ctx, "thing", "a"))
	ok, err = GetJSON(ctx, cs, "thing", "a", &out)
	assert.NoError(err)
	assert.False(ok)

	// purging a missing entry is not an error
	assert.NoError(cs.Purge(ctx, "thing", "missing"))
}

func TestMemCacheStoreCorrupt(t *testing.T) {
	ctx := context.Background()
	cs := NewMemCacheStore(10, time.Hour)
	assert.NoError(t, cs.Set(ctx, "thing", "bad", "{not json"))
	var out cachedThing
	_, err := GetJSON(ctx, cs, "thing", "bad", &out)
	assert.Error(t, err)
}
