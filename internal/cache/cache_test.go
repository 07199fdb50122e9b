package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	orgID := "org-001"

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, orgID, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, orgID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, orgID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, orgID, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, orgID, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, orgID, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, orgID, "expiring", []byte("temp"), 10*time.Millisecond)

		// Should be available immediately
		val, _ := cache.Get(ctx, orgID, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		// Wait for expiration
		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, orgID, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, orgID, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, orgID, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, orgID, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, orgID, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = smallCache.Set(ctx, orgID, "d", []byte("4"), time.Minute)

		// 'b' should be evicted
		val, _ := smallCache.Get(ctx, orgID, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}

		// 'a' should still be there
		val, _ = smallCache.Get(ctx, orgID, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("OrganizationIsolation", func(t *testing.T) {
		org1 := "org-001"
		org2 := "org-002"

		_ = cache.Set(ctx, org1, "shared-key", []byte("org1-value"), time.Minute)
		_ = cache.Set(ctx, org2, "shared-key", []byte("org2-value"), time.Minute)

		val1, _ := cache.Get(ctx, org1, "shared-key")
		val2, _ := cache.Get(ctx, org2, "shared-key")

		if string(val1) != "org1-value" {
			t.Errorf("expected 'org1-value', got '%s'", string(val1))
		}
		if string(val2) != "org2-value" {
			t.Errorf("expected 'org2-value', got '%s'", string(val2))
		}
	})

	t.Run("RequiresOrganizationID", func(t *testing.T) {
		err := cache.Set(ctx, "", "key", []byte("value"), time.Minute)
		if err == nil {
			t.Error("expected error for empty organizationID")
		}

		_, err = cache.Get(ctx, "", "key")
		if err == nil {
			t.Error("expected error for empty organizationID")
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		window := 100 * time.Millisecond

		count1, err := cache.IncrementCounter(ctx, orgID, "velocity", window)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if count1 != 1 {
			t.Errorf("expected count 1, got %d", count1)
		}

		count2, _ := cache.IncrementCounter(ctx, orgID, "velocity", window)
		if count2 != 2 {
			t.Errorf("expected count 2, got %d", count2)
		}

		// Wait for window to expire
		time.Sleep(150 * time.Millisecond)

		count3, _ := cache.IncrementCounter(ctx, orgID, "velocity", window)
		if count3 != 1 {
			t.Errorf("expected count 1 after window reset, got %d", count3)
		}
	})

	t.Run("ScoreCache", func(t *testing.T) {
		result := &domain.RiskScoringResult{
			Subject:      "bc1qsubject001",
			AnalysisType: domain.AnalysisAddress,
			OverallRisk:  62,
		}

		err := cache.SetScore(ctx, orgID, "bc1qsubject001", result, time.Minute)
		if err != nil {
			t.Fatalf("SetScore failed: %v", err)
		}

		retrieved, err := cache.GetScore(ctx, orgID, "bc1qsubject001")
		if err != nil {
			t.Fatalf("GetScore failed: %v", err)
		}

		if retrieved.Subject != result.Subject {
			t.Errorf("expected Subject %s, got %s", result.Subject, retrieved.Subject)
		}
		if retrieved.OverallRisk != result.OverallRisk {
			t.Errorf("expected OverallRisk %.1f, got %.1f", result.OverallRisk, retrieved.OverallRisk)
		}
	})

	t.Run("ScoreCacheMiss", func(t *testing.T) {
		result, err := cache.GetScore(ctx, orgID, "unknown-subject")
		if err != nil {
			t.Fatalf("GetScore failed: %v", err)
		}
		if result != nil {
			t.Error("expected nil for score cache miss")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, orgID, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, orgID, "k2", []byte("v2"), time.Minute)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, orgID, "k", []byte("v"), time.Minute)

		err := testCache.Close()
		if err != nil {
			t.Errorf("Close failed: %v", err)
		}

		// Cache should be empty after close
		val, _ := testCache.Get(ctx, orgID, "k")
		if val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type:         "memory",
			LocalMaxSize: 100,
		}

		cache, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		_, ok := cache.(*LRUCache)
		if !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type: "memcached",
		}

		_, err := New(cfg)
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
