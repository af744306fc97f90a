package cache

import (
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.Set("a", 1)
	v, ok := c.Get("a")
	if !ok || v.(int) != 1 {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.SetWithTTL("a", 1, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted key must miss")
	}
	c.Clear()
	if c.Size() != 0 {
		t.Errorf("Size() = %d after Clear", c.Size())
	}
}

func TestCacheInvalidatePrefix(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.Set("video:direct:a", 1)
	c.Set("video:direct:b", 2)
	c.Set("session:x", 3)

	c.Invalidate("video:")
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
	if _, ok := c.Get("session:x"); !ok {
		t.Error("unrelated key must survive prefix invalidation")
	}
}
