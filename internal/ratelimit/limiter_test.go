package ratelimit

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(window time.Duration, max int) (*Limiter, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := New(window, max)
	l.now = clk.Now
	return l, clk
}

func TestFixedWindow(t *testing.T) {
	l, clk := newTestLimiter(60*time.Second, 3)
	key := IPKey("10.0.0.1")

	for i := 0; i < 3; i++ {
		assert.True(t, l.CheckAndUpdate(key).Allowed, "request %d", i+1)
		clk.Advance(time.Second)
	}

	d := l.CheckAndUpdate(key)
	require.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, 60*time.Second)
	assert.Equal(t, 57*time.Second, d.RetryAfter)

	clk.Advance(57 * time.Second)
	assert.True(t, l.CheckAndUpdate(key).Allowed)

	// The window restarted with a count of one, so two more fit.
	assert.True(t, l.CheckAndUpdate(key).Allowed)
	assert.True(t, l.CheckAndUpdate(key).Allowed)
	assert.False(t, l.CheckAndUpdate(key).Allowed)
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 1)

	var pk [32]byte
	pk[0] = 1
	assert.True(t, l.CheckAndUpdate(PubkeyKey(pk)).Allowed)
	assert.False(t, l.CheckAndUpdate(PubkeyKey(pk)).Allowed)
	assert.True(t, l.CheckAndUpdate(IPKey("10.0.0.1")).Allowed)
	assert.Equal(t, "pubkey:01"+strings.Repeat("0", 62), PubkeyKey(pk))
}

func TestDisabledLimiterAlwaysAllows(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 0)
	for i := 0; i < 100; i++ {
		require.True(t, l.CheckAndUpdate("k").Allowed)
	}
	assert.Equal(t, 0, l.Len())
}

func TestCleanupRemovesIdleKeys(t *testing.T) {
	l, clk := newTestLimiter(time.Minute, 5)

	l.CheckAndUpdate("old")
	clk.Advance(90 * time.Second)
	l.CheckAndUpdate("fresh")
	clk.Advance(31 * time.Second)

	assert.Equal(t, 1, l.Cleanup())
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 0, l.Cleanup())
}

func TestConcurrentChecksNeverExceedMax(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 10)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CheckAndUpdate("shared").Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), allowed.Load())
}
