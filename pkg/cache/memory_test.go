package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	if err := mc.Set(ctx, Key("symbology", "yahoo", "BRK-B"), int64(101), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var id int64
	if err := mc.Get(ctx, "symbology:yahoo:BRK-B", &id); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if id != 101 {
		t.Fatalf("id = %d, want 101", id)
	}

	var missing int64
	if err := mc.Get(ctx, "symbology:yahoo:NOPE", &missing); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	_ = mc.Set(ctx, "k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	var s string
	if err := mc.Get(ctx, "k", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired entry, got %v (%q)", err, s)
	}
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	_ = mc.Set(ctx, Key("symbology", "yahoo", "A"), 1, 0)
	_ = mc.Set(ctx, Key("symbology", "yahoo", "B"), 2, 0)
	_ = mc.Set(ctx, Key("symbology", "yahoo", "WIKI/C"), 4, 0)
	_ = mc.Set(ctx, Key("symbology", "tsid", "A.NYSE.0"), 3, 0)

	if err := mc.DeleteByPattern(ctx, Pattern("symbology", "yahoo")); err != nil {
		t.Fatalf("DeleteByPattern: %v", err)
	}
	if mc.Len() != 1 {
		t.Fatalf("Len = %d, want 1", mc.Len())
	}
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	ok, _ := mc.TryLock(ctx, "lock:rebuild", time.Minute)
	if !ok {
		t.Fatal("first TryLock should succeed")
	}
	ok, _ = mc.TryLock(ctx, "lock:rebuild", time.Minute)
	if ok {
		t.Fatal("second TryLock should fail while held")
	}
	if err := mc.Unlock(ctx, "lock:rebuild"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := mc.Unlock(ctx, "lock:rebuild"); !errors.Is(err, ErrNotLockOwner) {
		t.Fatalf("double Unlock should fail, got %v", err)
	}
	ok, _ = mc.TryLock(ctx, "lock:rebuild", time.Minute)
	if !ok {
		t.Fatal("TryLock after Unlock should succeed")
	}
}

func TestMemoryCacheEvictsLRU(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	_ = mc.Set(ctx, "a", 1, 0)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", 2, 0)
	time.Sleep(time.Millisecond)
	var v int
	_ = mc.Get(ctx, "a", &v)
	_ = mc.Set(ctx, "c", 3, 0)

	if err := mc.Get(ctx, "b", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("b should have been evicted, got %v", err)
	}
	if err := mc.Get(ctx, "a", &v); err != nil || v != 1 {
		t.Fatalf("a should survive, got %v %d", err, v)
	}
}
