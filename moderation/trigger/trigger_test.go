package trigger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestConcurrentTriggersScheduleOnce(t *testing.T) {
	assert := assert.New(t)
	clock := &fakeClock{now: time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)}
	var passes atomic.Int32
	d := NewDebouncer(func(ctx context.Context) error {
		passes.Add(1)
		return nil
	}, 0, nil)
	d.Now = clock.Now

	var scheduled atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.MaybeTrigger() {
				scheduled.Add(1)
			}
		}()
	}
	wg.Wait()
	d.Wait()
	assert.Equal(int32(1), scheduled.Load())
	assert.Equal(int32(1), passes.Load())

	clock.Advance(29 * time.Second)
	assert.False(d.MaybeTrigger())

	clock.Advance(time.Second)
	assert.True(d.MaybeTrigger())
	d.Wait()
	assert.Equal(int32(2), passes.Load())
}

func TestTriggerDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	d := NewDebouncer(func(ctx context.Context) error {
		<-release
		return nil
	}, time.Minute, nil)

	assert.True(t, d.MaybeTrigger())
	assert.False(t, d.MaybeTrigger())
	close(release)
	d.Wait()
}

func TestPassFailuresRecovered(t *testing.T) {
	assert := assert.New(t)
	clock := &fakeClock{now: time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)}

	d := NewDebouncer(func(ctx context.Context) error {
		panic("boom")
	}, time.Second, nil)
	d.Now = clock.Now
	assert.True(d.MaybeTrigger())
	d.Wait()

	d.Pass = func(ctx context.Context) error {
		return errors.New("storage down")
	}
	clock.Advance(time.Second)
	assert.True(d.MaybeTrigger())
	d.Wait()
}
