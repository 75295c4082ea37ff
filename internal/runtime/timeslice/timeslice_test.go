package timeslice

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
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

func TestRegistry_GetCreatesSlice(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry().WithClock(clock.Now)

	slice := r.Get("orders", 5*time.Second)
	assert.Equal(t, clock.Now().Add(5*time.Second), slice.End)
	assert.Equal(t, int64(0), slice.Count)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_GetWithinWindowReturnsSameSlice(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry().WithClock(clock.Now)

	first := r.Get("orders", 5*time.Second)
	clock.Advance(4 * time.Second)
	second := r.Get("orders", 5*time.Second)

	assert.Equal(t, first.End, second.End)
}

func TestRegistry_GetAfterWindowRollsOver(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry().WithClock(clock.Now)

	first := r.Get("orders", 5*time.Second)
	clock.Advance(5 * time.Second)
	second := r.Get("orders", 5*time.Second)

	assert.True(t, second.End.After(first.End))
	assert.Equal(t, int64(0), second.Count)
}

func TestRegistry_Update(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry().WithClock(clock.Now)

	r.Update("orders", TimeSlice{End: clock.Now().Add(time.Minute), Count: 7})
	slice := r.Get("orders", time.Second)
	assert.Equal(t, int64(7), slice.Count)
	assert.Equal(t, clock.Now().Add(time.Minute), slice.End)
}

func TestRegistry_AcquireRespectsMax(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry().WithClock(clock.Now)

	for i := 0; i < 3; i++ {
		_, ok := r.Acquire("orders", time.Second, 3)
		require.True(t, ok, "acquire %d", i)
	}
	slice, ok := r.Acquire("orders", time.Second, 3)
	assert.False(t, ok)
	assert.Equal(t, int64(3), slice.Count)

	clock.Advance(time.Second)
	slice, ok = r.Acquire("orders", time.Second, 3)
	assert.True(t, ok)
	assert.Equal(t, int64(1), slice.Count)
}

func TestRegistry_AcquireSeparatesNames(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Acquire("orders", time.Minute, 1)
	require.True(t, ok)
	_, ok = r.Acquire("payments", time.Minute, 1)
	require.True(t, ok)
	_, ok = r.Acquire("orders", time.Minute, 1)
	assert.False(t, ok)

	assert.Equal(t, []string{"orders", "payments"}, r.Names())
}

func TestRegistry_ConcurrentAcquireNeverExceedsMax(t *testing.T) {
	r := NewRegistry()
	const (
		workers = 50
		limit   = 10
	)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, ok := r.Acquire("shared", time.Minute, limit); ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), admitted.Load())
	assert.Equal(t, int64(limit), r.Get("shared", time.Minute).Count)
}

func TestTimeSlice_Remaining(t *testing.T) {
	now := time.UnixMilli(1000)
	slice := TimeSlice{End: now.Add(250 * time.Millisecond)}

	assert.Equal(t, 250*time.Millisecond, slice.Remaining(now))
	assert.Equal(t, time.Duration(0), slice.Remaining(now.Add(time.Second)))
	assert.False(t, slice.Expired(now))
	assert.True(t, slice.Expired(slice.End))
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	r.Get("orders", time.Second)
	r.Remove("orders")
	assert.Equal(t, 0, r.Len())
}
