package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"caisse/internal/core"
	"caisse/internal/reconcile"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be cached")
	}
	c.Set("c", 3) // evicts b, the least recently used

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](10, time.Minute)
	c.now = clock.now

	c.Set("k", "v")
	c.Set("k2", "v2")
	clock.t = clock.t.Add(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired too early")
	}

	clock.t = clock.t.Add(time.Minute)
	if n := c.CleanExpired(); n != 2 {
		t.Errorf("CleanExpired() = %d, want 2", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestLRUCacheDisabled(t *testing.T) {
	c := NewLRUCache[int](0, time.Minute)
	c.Set("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Error("zero-sized cache should not store anything")
	}
}

func TestLRUCachePurgeAndDelete(t *testing.T) {
	c := NewLRUCache[int](5, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	if c.Size() != 1 {
		t.Fatalf("Size() = %d after Delete, want 1", c.Size())
	}
	c.Purge()
	if c.Size() != 0 {
		t.Fatalf("Size() = %d after Purge, want 0", c.Size())
	}
	c.Set("c", 3)
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatalf("cache unusable after Purge")
	}
}

func TestManagerCleanNowAndStop(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := NewLRUCache[int](5, time.Second)
	c.now = clock.now
	c.Set("a", 1)

	m := NewManager(nil)
	m.Register(c)
	m.StartCleanup(time.Hour)

	clock.t = clock.t.Add(2 * time.Second)
	if n := m.CleanNow(); n != 1 {
		t.Errorf("CleanNow() = %d, want 1", n)
	}
	m.Stop()
	m.Stop()
}

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) ListRevenue(_ context.Context, p reconcile.Period) ([]core.RevenueRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []core.RevenueRecord{{Date: p.From.ISO(), TTC: decimal.NewFromInt(1)}}, nil
}

func TestRevenueSourceCachesPerPeriod(t *testing.T) {
	next := &countingSource{}
	src := NewRevenueSource(next, NewLRUCache[[]core.RevenueRecord](4, time.Minute), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := src.ListRevenue(ctx, reconcile.Month(2024, 1)); err != nil {
			t.Fatalf("ListRevenue: %v", err)
		}
	}
	if _, err := src.ListRevenue(ctx, reconcile.Month(2024, 2)); err != nil {
		t.Fatalf("ListRevenue: %v", err)
	}
	if next.calls != 2 {
		t.Errorf("underlying calls = %d, want 2", next.calls)
	}

	src.Invalidate()
	_, _ = src.ListRevenue(ctx, reconcile.Month(2024, 1))
	if next.calls != 3 {
		t.Errorf("underlying calls after Invalidate = %d, want 3", next.calls)
	}
}

func TestRevenueSourceDoesNotCacheErrors(t *testing.T) {
	next := &countingSource{err: errors.New("down")}
	src := NewRevenueSource(next, NewLRUCache[[]core.RevenueRecord](4, time.Minute), nil)

	_, _ = src.ListRevenue(context.Background(), reconcile.Month(2024, 1))
	next.err = nil
	records, err := src.ListRevenue(context.Background(), reconcile.Month(2024, 1))
	if err != nil || len(records) != 1 {
		t.Fatalf("ListRevenue() = %v, %v", records, err)
	}
	if next.calls != 2 {
		t.Errorf("underlying calls = %d, want 2", next.calls)
	}
}
