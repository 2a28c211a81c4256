package cache

import (
	"testing"
	"time"
)

func TestKey_ScopedByUser(t *testing.T) {
	content := []byte("same screenshot bytes")
	k1 := Key("user-a", content)
	k2 := Key("user-b", content)
	if k1 == k2 {
		t.Fatalf("keys for different users should differ: %q", k1)
	}
	if Key("user-a", content) != k1 {
		t.Fatalf("key derivation should be deterministic")
	}
	if Key("user-a", []byte("other bytes")) == k1 {
		t.Fatalf("keys for different content should differ")
	}
}

func TestGet_MissOnAbsent(t *testing.T) {
	c := New(4, time.Hour)
	if v, ok := c.Get("nope"); ok || v != "" {
		t.Fatalf("expected miss for absent key, got %q/%v", v, ok)
	}
}

func TestPutGet_RoundTrip(t *testing.T) {
	c := New(4, time.Hour)
	c.Put("k", "hello")
	v, ok := c.Get("k")
	if !ok || v != "hello" {
		t.Fatalf("expected hit with %q, got %q/%v", "hello", v, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
}

func TestEviction_OldestInsertionFirst(t *testing.T) {
	c := New(3, time.Hour)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("c", "3")
	c.Put("d", "4") // evicts "a"

	if _, ok := c.Get("a"); ok {
		t.Fatalf("oldest entry should have been evicted")
	}
	for _, k := range []string{"b", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("entry %q should survive eviction", k)
		}
	}
	if c.Len() != 3 {
		t.Fatalf("capacity exceeded: %d", c.Len())
	}
}

func TestOverwrite_KeepsInsertionPosition(t *testing.T) {
	c := New(2, time.Hour)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("a", "1-refreshed") // refresh only, no reorder
	c.Put("c", "3")           // evicts "a" despite the refresh

	if _, ok := c.Get("a"); ok {
		t.Fatalf("refreshed entry should keep its position and be evicted first")
	}
	if v, ok := c.Get("b"); !ok || v != "2" {
		t.Fatalf("entry b unexpectedly evicted: %q/%v", v, ok)
	}
	if v, ok := c.Get("c"); !ok || v != "3" {
		t.Fatalf("entry c missing: %q/%v", v, ok)
	}
}

func TestOverwrite_RefreshesValueAndTTL(t *testing.T) {
	c := New(2, time.Hour)
	c.Put("a", "old")
	c.entries["a"].storedAt = time.Now().Add(-2 * time.Hour) // expired
	c.Put("a", "new")
	if v, ok := c.Get("a"); !ok || v != "new" {
		t.Fatalf("overwrite should refresh value and timestamp: %q/%v", v, ok)
	}
}

func TestTTL_ExpiredReadsAsAbsentButOccupiesSlot(t *testing.T) {
	c := New(2, time.Hour)
	c.Put("a", "1")
	c.Put("b", "2")
	c.entries["a"].storedAt = time.Now().Add(-61 * time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expired entry should read as absent")
	}
	if c.Len() != 2 {
		t.Fatalf("expired entry should still occupy its slot, len=%d", c.Len())
	}

	// The expired entry is still the oldest insertion; a new key evicts it.
	c.Put("c", "3")
	if c.Len() != 2 {
		t.Fatalf("capacity exceeded after eviction: %d", c.Len())
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatalf("live entry b should survive")
	}
	if v, ok := c.Get("c"); !ok || v != "3" {
		t.Fatalf("entry c missing: %q/%v", v, ok)
	}
}

func TestNew_MinimumCapacity(t *testing.T) {
	c := New(0, time.Hour)
	c.Put("a", "1")
	c.Put("b", "2")
	if c.Len() != 1 {
		t.Fatalf("capacity floor of 1 not enforced, len=%d", c.Len())
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatalf("latest entry should be present")
	}
}
