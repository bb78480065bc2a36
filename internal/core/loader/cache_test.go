package loader

import (
	"context"
	"testing"
	"time"
)

func newTestCache(svc *mockService, ttl time.Duration) (*Cache, *time.Time) {
	c := NewCache(svc, ttl)
	clock := time.Now()
	c.now = func() time.Time { return clock }
	return c, &clock
}

func TestCache_ReusesLoaderWithinTTL(t *testing.T) {
	c, _ := newTestCache(&mockService{}, time.Minute)

	first, err := c.GetLoader(testFolderID, 50, false)
	if err != nil {
		t.Fatalf("GetLoader: %v", err)
	}
	second, err := c.GetLoader(testFolderID, 50, false)
	if err != nil {
		t.Fatalf("GetLoader: %v", err)
	}

	if first != second {
		t.Error("expected the identical loader object within the TTL window")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCache_ForceRefreshBuildsNewLoader(t *testing.T) {
	c, _ := newTestCache(&mockService{}, time.Minute)

	first, _ := c.GetLoader(testFolderID, 50, false)
	refreshed, err := c.GetLoader(testFolderID, 50, true)
	if err != nil {
		t.Fatalf("GetLoader: %v", err)
	}

	if first == refreshed {
		t.Error("force refresh returned the cached loader")
	}

	// The replacement becomes the cached entry.
	again, _ := c.GetLoader(testFolderID, 50, false)
	if again != refreshed {
		t.Error("cache did not keep the refreshed loader")
	}
}

func TestCache_DistinctKeysPerPageSize(t *testing.T) {
	c, _ := newTestCache(&mockService{}, time.Minute)

	a, _ := c.GetLoader(testFolderID, 50, false)
	b, _ := c.GetLoader(testFolderID, 100, false)

	if a == b {
		t.Error("different page sizes should cache separate loaders")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestCache_ExpiryForcesRebuild(t *testing.T) {
	c, clock := newTestCache(&mockService{}, time.Minute)

	first, _ := c.GetLoader(testFolderID, 50, false)
	*clock = clock.Add(2 * time.Minute)

	second, _ := c.GetLoader(testFolderID, 50, false)
	if first == second {
		t.Error("expired entry was reused")
	}
}

func TestCache_InvalidLoaderNotCached(t *testing.T) {
	c, _ := newTestCache(&mockService{}, time.Minute)

	if _, err := c.GetLoader("bad id", 50, false); err == nil {
		t.Fatal("expected error for invalid folder ID")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCache_CachedItems(t *testing.T) {
	svc := &mockService{pages: []mockPage{{items: files("a", "b"), token: ""}}}
	c, _ := newTestCache(svc, time.Minute)

	if got := c.CachedItems(testFolderID); got != nil {
		t.Errorf("CachedItems before any load = %v, want nil", got)
	}

	l, _ := c.GetLoader(testFolderID, 50, false)
	l.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	l.LoadAll(context.Background(), 0, nil)

	got := c.CachedItems(testFolderID)
	if len(got) != 2 {
		t.Errorf("CachedItems = %d items, want 2", len(got))
	}
}

func TestCache_Invalidate(t *testing.T) {
	c, _ := newTestCache(&mockService{}, time.Minute)

	other := "1AbCdEfGhIjKlMnOpQrStUvWxYz01234"
	c.GetLoader(testFolderID, 50, false)
	c.GetLoader(testFolderID, 100, false)
	c.GetLoader(other, 50, false)

	c.Invalidate(testFolderID)

	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (only the other folder remains)", c.Len())
	}
}

func TestCache_InvalidateAll(t *testing.T) {
	c, _ := newTestCache(&mockService{}, time.Minute)

	c.GetLoader(testFolderID, 50, false)
	c.GetLoader(testFolderID, 100, false)
	c.InvalidateAll()

	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCache_CleanupExpired(t *testing.T) {
	c, clock := newTestCache(&mockService{}, time.Minute)

	c.GetLoader(testFolderID, 50, false)
	*clock = clock.Add(30 * time.Second)
	c.GetLoader(testFolderID, 100, false)
	*clock = clock.Add(45 * time.Second)

	// First entry is now 75s old, the second 45s.
	removed := c.CleanupExpired()
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	*clock = clock.Add(time.Hour)
	if removed := c.CleanupExpired(); removed != 1 {
		t.Errorf("second cleanup removed = %d, want 1", removed)
	}
}
