package lan

import (
	"testing"
	"time"
)

func TestNodeTable_RefreshThenLookup(t *testing.T) {
	nt := newNodeTable()
	now := time.Now()
	nt.Refresh("node-a", "10.0.0.5", 8888, now)

	entry, ok := nt.Lookup("node-a")
	if !ok {
		t.Fatalf("expected node-a to be known")
	}
	if entry.Addr != "10.0.0.5" || entry.HTTPPort != 8888 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestNodeTable_PangRemoves(t *testing.T) {
	nt := newNodeTable()
	nt.Refresh("node-a", "10.0.0.5", 8888, time.Now())
	nt.Remove("node-a")

	if _, ok := nt.Lookup("node-a"); ok {
		t.Fatalf("expected node-a removed after pang")
	}
}

func TestNodeTable_ExpireOlderThan(t *testing.T) {
	nt := newNodeTable()
	past := time.Now().Add(-time.Hour)
	nt.Refresh("stale", "10.0.0.5", 8888, past)
	nt.Refresh("fresh", "10.0.0.6", 8889, time.Now())

	evicted := nt.ExpireOlderThan(time.Minute, time.Now())
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if _, ok := nt.Lookup("stale"); ok {
		t.Fatalf("expected stale node evicted")
	}
	if _, ok := nt.Lookup("fresh"); !ok {
		t.Fatalf("expected fresh node to survive")
	}
}

func TestNodeEntry_AgeSecondsNonNegative(t *testing.T) {
	nt := newNodeTable()
	now := time.Now()
	nt.Refresh("node-a", "10.0.0.5", 8888, now)
	entry, _ := nt.Lookup("node-a")
	age := entry.AgeSeconds(now.Add(5 * time.Second))
	if age < 0 || age > 6 {
		t.Fatalf("expected age near 5s, got %v", age)
	}
}

func TestNodeTable_Snapshot(t *testing.T) {
	nt := newNodeTable()
	nt.Refresh("a", "10.0.0.1", 1, time.Now())
	nt.Refresh("b", "10.0.0.2", 2, time.Now())

	snap := nt.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap))
	}
}
