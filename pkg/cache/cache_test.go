package cache

import (
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := New[string, int](time.Hour)

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get got=(%d, %v) want=(1, true)", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("不存在的键应返回 false")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New[string, string](50 * time.Millisecond)

	c.Set("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatalf("未过期应命中")
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("过期后应未命中")
	}
	// 过期条目在 Get 时被懒删除
	if c.Len() != 0 {
		t.Fatalf("Len got=%d want=0", c.Len())
	}
}

func TestCacheNoTTL(t *testing.T) {
	c := New[string, int](0)

	c.Set("k", 42)
	time.Sleep(20 * time.Millisecond)
	if v, ok := c.Get("k"); !ok || v != 42 {
		t.Fatalf("ttl<=0 应永不过期")
	}
}

func TestCacheDelete(t *testing.T) {
	c := New[string, int](time.Hour)
	c.Set("k", 1)
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatalf("删除后不应命中")
	}
}

func TestCachePrune(t *testing.T) {
	c := New[string, int](30 * time.Millisecond)
	c.Set("a", 1)
	c.Set("b", 2)

	time.Sleep(50 * time.Millisecond)
	c.Set("c", 3)

	if removed := c.Prune(); removed != 2 {
		t.Fatalf("Prune removed got=%d want=2", removed)
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatalf("未过期条目应保留")
	}
}
