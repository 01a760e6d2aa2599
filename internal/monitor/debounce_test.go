package monitor

import (
	"fmt"
	"testing"
	"time"
)

func TestDebounceWindow(t *testing.T) {
	d := NewDebouncer(30*time.Second, 10)
	t0 := time.Now()

	if !d.Allow("ev1:home:buy", t0) {
		t.Fatal("first emission must pass")
	}
	if d.Allow("ev1:home:buy", t0.Add(10*time.Second)) {
		t.Fatal("emission at t=10s inside a 30s window must be suppressed")
	}
	if !d.Allow("ev1:home:buy", t0.Add(31*time.Second)) {
		t.Fatal("emission at t=31s must pass")
	}
}

func TestDebounceKeysAreIndependent(t *testing.T) {
	d := NewDebouncer(30*time.Second, 10)
	t0 := time.Now()

	if !d.Allow("ev1:home:buy", t0) {
		t.Fatal("first key must pass")
	}
	if !d.Allow("ev1:home:sell", t0) {
		t.Fatal("different direction is a different key")
	}
	if !d.Allow("ev2:home:buy", t0) {
		t.Fatal("different event is a different key")
	}
}

func TestDebouncePruneBoundsMap(t *testing.T) {
	d := NewDebouncer(time.Second, 2)
	t0 := time.Now()

	for i := 0; i < 100; i++ {
		d.Allow(fmt.Sprintf("ev%d:home:buy", i), t0)
	}
	if d.Len() != 100 {
		t.Fatalf("expected 100 entries, got %d", d.Len())
	}

	// All existing entries are now older than pruneAge (2x window); the next
	// Allow triggers a scan.
	d.Allow("fresh:home:buy", t0.Add(5*time.Second))
	if d.Len() != 1 {
		t.Fatalf("expected stale entries pruned down to 1, got %d", d.Len())
	}
}
