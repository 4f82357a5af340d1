package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestCache(maxSize int, ttl time.Duration, opts ...Option[string]) (*LRUCache[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](maxSize, ttl, opts...)
	c.now = clock.Now
	return c, clock
}

func TestLRUCache_GetSet(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}

	// a is now most recently used, so adding c evicts b
	c.Set("c", "3")
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("a", "1")
	clock.Advance(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Error("expected entry to expire")
	}
}

func TestLRUCache_SlidingExpiry(t *testing.T) {
	c, clock := newTestCache(10, time.Minute, WithSlidingExpiry[string]())
	c.Set("a", "1")
	for i := 0; i < 5; i++ {
		clock.Advance(40 * time.Second)
		if _, ok := c.Get("a"); !ok {
			t.Fatalf("entry expired after read %d", i)
		}
	}
	clock.Advance(61 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("expected entry to expire once reads stop")
	}
}

func TestLRUCache_EvictCallback(t *testing.T) {
	var evicted []string
	c, clock := newTestCache(1, time.Minute, WithEvictFunc(func(key, _ string) {
		evicted = append(evicted, key)
	}))

	c.Set("a", "1")
	c.Set("b", "2") // capacity
	c.Delete("b")   // explicit
	c.Set("c", "3")
	clock.Advance(2 * time.Minute)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}

	want := []string{"a", "b", "c"}
	if len(evicted) != len(want) {
		t.Fatalf("evicted = %v, want %v", evicted, want)
	}
	for i := range want {
		if evicted[i] != want[i] {
			t.Errorf("evicted[%d] = %s, want %s", i, evicted[i], want[i])
		}
	}
}

func TestLRUCache_ReplaceRunsEvictCallback(t *testing.T) {
	var evicted []string
	c, _ := newTestCache(5, time.Minute, WithEvictFunc(func(key, value string) {
		evicted = append(evicted, key+"="+value)
	}))

	c.Set("a", "1")
	c.Set("a", "2")

	if len(evicted) != 1 || evicted[0] != "a=1" {
		t.Fatalf("evicted = %v, want [a=1]", evicted)
	}
	if v, ok := c.Get("a"); !ok || v != "2" {
		t.Errorf("Get(a) = %q, %v; want 2, true", v, ok)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}

func TestLRUCache_Purge(t *testing.T) {
	count := 0
	c, _ := newTestCache(5, time.Minute, WithEvictFunc(func(string, string) { count++ }))
	c.Set("a", "1")
	c.Set("b", "2")
	c.Purge()
	if c.Size() != 0 || count != 2 {
		t.Errorf("after Purge size=%d callbacks=%d", c.Size(), count)
	}
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	c, clock := newTestCache(5, time.Millisecond)
	c.Set("a", "1")
	clock.Advance(time.Second)

	j := NewJanitor(time.Millisecond, nil)
	j.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for c.Size() > 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if c.Size() != 0 {
		t.Error("expected janitor to sweep the expired entry")
	}
}
