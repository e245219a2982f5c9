package cache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Set("a", 1)

	got, ok := c.Get("a")
	if !ok || got != 1 {
		t.Fatalf("Get(a) = %d, %v; want 1, true", got, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("Get(missing) = true, want false")
	}
}

func TestExpiry(t *testing.T) {
	c := New[string, string](10 * time.Millisecond)
	c.Set("k", "v")

	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired immediately")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry still live past its TTL")
	}
}

func TestSetForOverridesDefault(t *testing.T) {
	c := New[string, int](10 * time.Millisecond)
	c.SetFor("long", 7, time.Minute)

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("long"); !ok {
		t.Fatal("explicit TTL was not honored")
	}
}

func TestClearAndLen(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if got := c.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}

	c.Delete("a")
	if got := c.Len(); got != 1 {
		t.Fatalf("Len() = %d after Delete, want 1", got)
	}

	c.Clear()
	if got := c.Len(); got != 0 {
		t.Fatalf("Len() = %d after Clear, want 0", got)
	}
}
