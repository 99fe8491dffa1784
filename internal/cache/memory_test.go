package cache

import (
	"context"
	"sync"
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
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStore_GetWithinTTL(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), time.Minute)
	clock.Advance(59 * time.Second)

	got, ok := s.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
	assert.True(t, s.Has(ctx, "k"))
}

func TestMemoryStore_ExpiredIsAbsentAndEvicted(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), time.Minute)
	clock.Advance(time.Minute)

	_, ok := s.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_ExpiresInRealTime(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), 20*time.Millisecond)
	_, ok := s.Get(ctx, "k")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = s.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryStore_HasEvictsExpired(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), time.Second)
	clock.Advance(2 * time.Second)

	assert.False(t, s.Has(ctx, "k"))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_DeleteAndOverwrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "k", []byte("a"), time.Minute)
	s.Set(ctx, "k", []byte("b"), time.Minute)
	got, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte("b"), got)

	s.Delete(ctx, "k")
	assert.False(t, s.Has(ctx, "k"))
}

func TestMemoryStore_NonPositiveTTLIgnored(t *testing.T) {
	s := NewMemoryStore()
	s.Set(context.Background(), "k", []byte("v"), 0)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_Cleanup(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	s.Set(ctx, "short", []byte("1"), time.Minute)
	s.Set(ctx, "long", []byte("2"), time.Hour)
	clock.Advance(10 * time.Minute)

	assert.Equal(t, 1, s.Cleanup())
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Has(ctx, "long"))
}

func TestMemoryStore_Stats(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), time.Minute)
	s.Get(ctx, "k")
	s.Get(ctx, "k")
	s.Get(ctx, "missing")

	st := s.Stats()
	assert.Equal(t, "memory", st.Backend)
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, int64(2), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.InDelta(t, 2.0/3.0, st.HitRate, 0.001)
}

func TestMemoryStore_BackgroundSweep(t *testing.T) {
	s := NewMemoryStore(WithSweepInterval(5 * time.Millisecond))
	ctx := context.Background()
	s.Set(ctx, "k", []byte("v"), time.Millisecond)

	s.Start()
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryStore_StopWithoutStart(t *testing.T) {
	s := NewMemoryStore()
	assert.NotPanics(t, func() {
		s.Stop()
		s.Start()
		s.Stop()
		s.Stop()
	})
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key("amenities", map[string]any{"i": i % 5})
			for j := 0; j < 100; j++ {
				s.Set(ctx, key, []byte("x"), time.Minute)
				s.Get(ctx, key)
				s.Has(ctx, key)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, s.Len())
}
