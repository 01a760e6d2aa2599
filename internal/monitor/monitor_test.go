package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edgewatch/edgewatch/internal/breaker"
	"github.com/edgewatch/edgewatch/internal/capability"
	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/quotes"
)

type scriptedProvider struct {
	mu     sync.Mutex
	states []model.EventState
	errs   []error
	calls  int
}

func (p *scriptedProvider) FetchState(ctx context.Context, event *model.Event) (model.EventState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return model.EventState{}, p.errs[i]
	}
	if i >= len(p.states) {
		i = len(p.states) - 1
	}
	return p.states[i], nil
}

func (p *scriptedProvider) Endpoint() string { return "scripted" }

type fixedModel struct{ p float64 }

func (m fixedModel) Estimate(event *model.Event, entity string) (float64, error) {
	return m.p, nil
}

type passMatcher struct{}

func (passMatcher) Match(event *model.Event, label string) (string, bool) {
	return event.HomeEntity, true
}

type memRecorder struct {
	mu        sync.Mutex
	snapshots int
	signals   []model.Signal
}

func (r *memRecorder) RecordSnapshot(event *model.Event, estimates map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots++
}

func (r *memRecorder) RecordSignal(sig model.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sig)
}

func (r *memRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots, len(r.signals)
}

func newTestMonitor(provider capability.EventProvider, modelProb float64, rec *memRecorder, signals chan model.Signal, onDone func(string)) (*Monitor, *quotes.Cache) {
	cap := capability.Capability{Provider: provider, Model: fixedModel{p: modelProb}, Matcher: passMatcher{}}
	cache := quotes.NewCache()
	det := newDetectors(DetectorOptions{MinEdge: 0.05, ArbMinProfit: 0.01}, flatParams(0, 50))
	brk := breaker.New("scripted", 10, 30*time.Second)
	m := New(sportsEvent(), cap, brk, cache, det, rec, signals, Options{
		TickInterval: time.Millisecond,
		QuoteTTL:     10 * time.Second,
		WarnInterval: 30 * time.Second,
	}, onDone)
	return m, cache
}

func TestTickEmitsEdgeSignal(t *testing.T) {
	provider := &scriptedProvider{states: []model.EventState{{HomeScore: 14, AwayScore: 7}}}
	rec := &memRecorder{}
	signals := make(chan model.Signal, 16)
	m, cache := newTestMonitor(provider, 0.60, rec, signals, nil)

	now := time.Now()
	cache.Put(quote("alpha", "home", 0.48, 0.50, 100, 100, now))
	cache.Put(quote("alpha", "away", 0.48, 0.50, 100, 100, now))

	if done := m.tick(context.Background(), now); done {
		t.Fatal("non-final state must not complete the monitor")
	}

	select {
	case sig := <-signals:
		if sig.Detector != model.DetectorModelEdge || sig.Entity != "home" {
			t.Fatalf("unexpected signal %+v", sig)
		}
	default:
		t.Fatal("expected a model-edge signal for the underpriced home outcome")
	}

	snaps, sigCount := rec.counts()
	if snaps != 1 || sigCount == 0 {
		t.Fatalf("expected snapshot and signal recorded, got %d/%d", snaps, sigCount)
	}
}

func TestTerminalStateStopsLoopAndNotifies(t *testing.T) {
	provider := &scriptedProvider{states: []model.EventState{{Final: true, Winner: "home"}}}
	rec := &memRecorder{}
	signals := make(chan model.Signal, 16)

	var doneID string
	m, cache := newTestMonitor(provider, 0.60, rec, signals, func(id string) { doneID = id })

	now := time.Now()
	cache.Put(quote("alpha", "home", 0.48, 0.50, 100, 100, now))

	if done := m.tick(context.Background(), now); !done {
		t.Fatal("final state must complete the monitor")
	}
	if m.Phase() != PhaseCompleted {
		t.Fatalf("expected completed phase, got %s", m.Phase())
	}
	if doneID != "ev1" {
		t.Fatalf("supervisor must be notified of completion, got %q", doneID)
	}
	if len(signals) != 0 {
		t.Fatal("completed event must emit no signals")
	}
	if qs := cache.ForEntity("ev1", "home"); len(qs) != 0 {
		t.Fatal("completion must drop the event's cached quotes")
	}
}

func TestStaleQuotesSkipDetectionButPersist(t *testing.T) {
	provider := &scriptedProvider{states: []model.EventState{{HomeScore: 3}}}
	rec := &memRecorder{}
	signals := make(chan model.Signal, 16)
	m, cache := newTestMonitor(provider, 0.60, rec, signals, nil)

	now := time.Now()
	cache.Put(quote("alpha", "home", 0.48, 0.50, 100, 100, now.Add(-time.Minute)))
	cache.Put(quote("alpha", "away", 0.48, 0.50, 100, 100, now))

	m.tick(context.Background(), now)

	if len(signals) != 0 {
		t.Fatal("stale quotes must gate signal detection for the tick")
	}
	snaps, _ := rec.counts()
	if snaps != 1 {
		t.Fatalf("snapshot must persist on stale ticks, got %d", snaps)
	}
}

func TestFetchFailureDegradesAndSkipsTick(t *testing.T) {
	provider := &scriptedProvider{
		states: []model.EventState{{HomeScore: 3}},
		errs:   []error{errors.New("upstream 502")},
	}
	rec := &memRecorder{}
	signals := make(chan model.Signal, 16)
	m, cache := newTestMonitor(provider, 0.60, rec, signals, nil)

	now := time.Now()
	cache.Put(quote("alpha", "home", 0.48, 0.50, 100, 100, now))
	cache.Put(quote("alpha", "away", 0.48, 0.50, 100, 100, now))

	if done := m.tick(context.Background(), now); done {
		t.Fatal("a failed fetch must keep the monitor alive")
	}
	if !m.Degraded() {
		t.Fatal("failed fetch must mark the monitor degraded")
	}
	snaps, _ := rec.counts()
	if snaps != 0 {
		t.Fatal("a skipped tick persists nothing")
	}

	// Next tick succeeds and clears the degraded flag.
	m.tick(context.Background(), now.Add(time.Second))
	if m.Degraded() {
		t.Fatal("successful fetch must clear the degraded flag")
	}
}

func TestManagerAddRemoveIdempotent(t *testing.T) {
	provider := &scriptedProvider{states: []model.EventState{{HomeScore: 3}}}
	cap := capability.Capability{Provider: provider, Model: fixedModel{p: 0.5}, Matcher: passMatcher{}}
	registry := capability.NewRegistry(map[model.MarketType]capability.Capability{
		model.MarketSports: cap,
	})
	signals := make(chan model.Signal, 16)
	mg := NewManager(registry, breaker.NewRegistry(10, 30*time.Second), quotes.NewCache(),
		newDetectors(DetectorOptions{MinEdge: 0.05}, flatParams(0, 50)),
		&memRecorder{}, signals, Options{TickInterval: time.Hour}, nil)
	defer mg.Shutdown()

	ctx := context.Background()
	if err := mg.Add(ctx, sportsEvent()); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := mg.Add(ctx, sportsEvent()); err != nil {
		t.Fatalf("duplicate add must be a no-op, got %v", err)
	}
	if ids := mg.ActiveIDs(); len(ids) != 1 || ids[0] != "ev1" {
		t.Fatalf("expected [ev1], got %v", ids)
	}

	if !mg.Remove("ev1") {
		t.Fatal("remove of a running event must report true")
	}
	if mg.Remove("ev1") {
		t.Fatal("remove of an absent event must report false")
	}
	if len(mg.ActiveIDs()) != 0 {
		t.Fatal("expected no active events after removal")
	}
}

func TestManagerRejectsUnknownMarketType(t *testing.T) {
	registry := capability.NewRegistry(nil)
	mg := NewManager(registry, breaker.NewRegistry(10, 30*time.Second), quotes.NewCache(),
		newDetectors(DetectorOptions{}, flatParams(0, 50)),
		&memRecorder{}, make(chan model.Signal, 1), Options{TickInterval: time.Hour}, nil)

	if err := mg.Add(context.Background(), sportsEvent()); err == nil {
		t.Fatal("expected error for unregistered market type")
	}
}
