package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var limits = Config{Window: time.Minute, PerUser: 60, PerSymbol: 20}

// stores returns every backend driven by the same fake clock.
func stores(t *testing.T) map[string]struct {
	store Store
	clk   *clock
} {
	t.Helper()
	out := map[string]struct {
		store Store
		clk   *clock
	}{}

	memClk := &clock{t: time.Unix(1_700_000_000, 0)}
	mem := NewMemoryStore()
	mem.now = memClk.now
	out["memory"] = struct {
		store Store
		clk   *clock
	}{mem, memClk}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisClk := &clock{t: time.Unix(1_700_000_000, 0)}
	rs := NewRedisStore(client, "test")
	rs.now = redisClk.now
	out["redis"] = struct {
		store Store
		clk   *clock
	}{rs, redisClk}

	return out
}

func TestSixtyFirstRequestPerUserRejected(t *testing.T) {
	for name, b := range stores(t) {
		t.Run(name, func(t *testing.T) {
			l := NewLimiter(b.store, limits, nil, nil)
			ctx := context.Background()

			for i := 0; i < 60; i++ {
				sym := fmt.Sprintf("SYM%d", i) // different symbols keep the symbol limit out of the way
				require.NoError(t, l.Allow(ctx, "user-1", sym), "request %d", i+1)
				b.clk.advance(500 * time.Millisecond)
			}
			err := l.Allow(ctx, "user-1", "FRESH")
			var ex *ExceededError
			require.True(t, errors.As(err, &ex))
			assert.Equal(t, ScopeUser, ex.Scope)

			assert.NoError(t, l.Allow(ctx, "user-2", "FRESH"), "other users are unaffected")
		})
	}
}

func TestTwentyFirstRequestPerSymbolRejected(t *testing.T) {
	for name, b := range stores(t) {
		t.Run(name, func(t *testing.T) {
			l := NewLimiter(b.store, limits, nil, nil)
			ctx := context.Background()

			for i := 0; i < 20; i++ {
				require.NoError(t, l.Allow(ctx, fmt.Sprintf("user-%d", i), "AAPL"))
				b.clk.advance(time.Second)
			}
			err := l.Allow(ctx, "user-99", "AAPL")
			var ex *ExceededError
			require.True(t, errors.As(err, &ex))
			assert.Equal(t, ScopeSymbol, ex.Scope)
			assert.Equal(t, 20, ex.Limit)
		})
	}
}

func TestRejectionConsumesNothing(t *testing.T) {
	for name, b := range stores(t) {
		t.Run(name, func(t *testing.T) {
			l := NewLimiter(b.store, Config{Window: time.Minute, PerUser: 3, PerSymbol: 2}, nil, nil)
			ctx := context.Background()

			require.NoError(t, l.Allow(ctx, "u1", "AAPL"))
			require.NoError(t, l.Allow(ctx, "u1", "AAPL"))
			// Symbol exhausted: u1 must keep its third slot.
			require.Error(t, l.Allow(ctx, "u1", "AAPL"))
			require.Error(t, l.Allow(ctx, "u1", "AAPL"))
			require.NoError(t, l.Allow(ctx, "u1", "MSFT"))
			// User exhausted: MSFT must keep its second slot.
			require.Error(t, l.Allow(ctx, "u1", "MSFT"))
			require.NoError(t, l.Allow(ctx, "u2", "MSFT"))
		})
	}
}

func TestWindowSlides(t *testing.T) {
	for name, b := range stores(t) {
		t.Run(name, func(t *testing.T) {
			l := NewLimiter(b.store, Config{Window: time.Minute, PerUser: 2, PerSymbol: 100}, nil, nil)
			ctx := context.Background()

			require.NoError(t, l.Allow(ctx, "u1", "A"))
			b.clk.advance(30 * time.Second)
			require.NoError(t, l.Allow(ctx, "u1", "A"))
			require.Error(t, l.Allow(ctx, "u1", "A"))

			b.clk.advance(30*time.Second + time.Millisecond)
			require.NoError(t, l.Allow(ctx, "u1", "A"), "first hit left the window")
			require.Error(t, l.Allow(ctx, "u1", "A"))
		})
	}
}

func TestConcurrentRequestsNeverOvershoot(t *testing.T) {
	for name, b := range stores(t) {
		t.Run(name, func(t *testing.T) {
			l := NewLimiter(b.store, limits, nil, nil)
			var allowed atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if l.Allow(context.Background(), fmt.Sprintf("user-%d", i%10), "TSLA") == nil {
						allowed.Add(1)
					}
				}(i)
			}
			wg.Wait()
			assert.Equal(t, int64(20), allowed.Load())
		})
	}
}

type failingStore struct{}

func (failingStore) Take(context.Context, time.Duration, []Rule) (int, error) {
	return -1, errors.New("connection refused")
}

func TestStoreFailureAllows(t *testing.T) {
	l := NewLimiter(failingStore{}, limits, nil, nil)
	assert.NoError(t, l.Allow(context.Background(), "u1", "AAPL"))
}

func TestMemorySweepDropsIdleKeys(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStore()
	s.now = clk.now
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Take(ctx, time.Minute, []Rule{{Scope: ScopeUser, Key: fmt.Sprint(i), Limit: 1}})
		require.NoError(t, err)
	}
	assert.Equal(t, 5, s.size())

	clk.advance(2 * time.Minute)
	_, err := s.Take(ctx, time.Minute, []Rule{{Scope: ScopeUser, Key: "new", Limit: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, s.size())
}
