package monitor

import (
	"sync"
	"time"
)

// Debouncer bounds duplicate signal emission. One shared map keyed by the
// signal's stable key, guarded by a mutex held only for the map touch.
type Debouncer struct {
	mu       sync.Mutex
	window   time.Duration
	pruneAge time.Duration
	lastEmit map[string]time.Time
	lastScan time.Time
}

func NewDebouncer(window time.Duration, pruneMultiplier int) *Debouncer {
	if window <= 0 {
		window = 30 * time.Second
	}
	if pruneMultiplier <= 0 {
		pruneMultiplier = 10
	}
	return &Debouncer{
		window:   window,
		pruneAge: time.Duration(pruneMultiplier) * window,
		lastEmit: make(map[string]time.Time),
	}
}

// Allow reports whether a signal with this key may be emitted now, and if so
// records the emission. Exactly one caller wins within a window.
func (d *Debouncer) Allow(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.lastEmit[key]; ok && now.Sub(at) < d.window {
		return false
	}
	d.lastEmit[key] = now
	d.pruneLocked(now)
	return true
}

// pruneLocked drops entries older than the prune age so the map stays bounded
// over weeks of uptime. Scans at most once per window.
func (d *Debouncer) pruneLocked(now time.Time) {
	if now.Sub(d.lastScan) < d.window {
		return
	}
	d.lastScan = now
	for k, at := range d.lastEmit {
		if now.Sub(at) > d.pruneAge {
			delete(d.lastEmit, k)
		}
	}
}

// Len is exposed for tests and the inspector.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lastEmit)
}
