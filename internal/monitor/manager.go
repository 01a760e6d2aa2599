package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/edgewatch/edgewatch/internal/breaker"
	"github.com/edgewatch/edgewatch/internal/capability"
	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/pkg/logger"
	"github.com/edgewatch/edgewatch/internal/quotes"
)

// View is one monitor's status line for admin display.
type View struct {
	EventID    string           `json:"event_id"`
	MarketType model.MarketType `json:"market_type"`
	Phase      Phase            `json:"phase"`
	Degraded   bool             `json:"degraded"`
}

// Manager runs one monitor goroutine per assigned event. It is the shard
// agent's view of local monitoring: assignments add monitors, removals cancel
// them, completions drain themselves.
type Manager struct {
	registry  *capability.Registry
	breakers  *breaker.Registry
	cache     *quotes.Cache
	detectors *DetectorSet
	recorder  Recorder
	signals   chan<- model.Signal
	opts      Options
	onDone    func(eventID string)
	log       *slog.Logger

	mu      sync.Mutex
	running map[string]*running
}

type running struct {
	monitor *Monitor
	cancel  context.CancelFunc
}

func NewManager(registry *capability.Registry, breakers *breaker.Registry, cache *quotes.Cache, detectors *DetectorSet, recorder Recorder, signals chan<- model.Signal, opts Options, onDone func(eventID string)) *Manager {
	return &Manager{
		registry:  registry,
		breakers:  breakers,
		cache:     cache,
		detectors: detectors,
		recorder:  recorder,
		signals:   signals,
		opts:      opts,
		onDone:    onDone,
		log:       logger.Component("manager"),
		running:   make(map[string]*running),
	}
}

// Add starts monitoring an event. Adding an already-monitored event is a
// no-op, which makes supervisor assignment commands idempotent.
func (mg *Manager) Add(ctx context.Context, event *model.Event) error {
	cap, err := mg.registry.For(event.MarketType)
	if err != nil {
		return fmt.Errorf("add event %s: %w", event.ID, err)
	}

	mg.mu.Lock()
	defer mg.mu.Unlock()
	if _, ok := mg.running[event.ID]; ok {
		return nil
	}

	brk := mg.breakers.Get(cap.Provider.Endpoint())
	mon := New(event, cap, brk, mg.cache, mg.detectors, mg.recorder, mg.signals, mg.opts, mg.monitorDone)

	runCtx, cancel := context.WithCancel(ctx)
	mg.running[event.ID] = &running{monitor: mon, cancel: cancel}
	go mon.Run(runCtx)
	return nil
}

// Remove cancels an event's monitor, used for reassignment and zombie
// cleanup. Reports whether the event was running here.
func (mg *Manager) Remove(eventID string) bool {
	mg.mu.Lock()
	r, ok := mg.running[eventID]
	if ok {
		delete(mg.running, eventID)
	}
	mg.mu.Unlock()

	if !ok {
		return false
	}
	r.cancel()
	mg.log.Info("monitor removed", "event_id", eventID)
	return true
}

// monitorDone is called from the monitor's own goroutine on terminal
// resolution. The supervisor is notified after local state is clean.
func (mg *Manager) monitorDone(eventID string) {
	mg.mu.Lock()
	r, ok := mg.running[eventID]
	if ok {
		delete(mg.running, eventID)
	}
	mg.mu.Unlock()

	if ok {
		r.cancel()
	}
	if mg.onDone != nil {
		mg.onDone(eventID)
	}
}

// ActiveIDs lists the events this shard currently monitors, reported in
// every heartbeat.
func (mg *Manager) ActiveIDs() []string {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	ids := make([]string, 0, len(mg.running))
	for id := range mg.running {
		ids = append(ids, id)
	}
	return ids
}

// Views returns status lines for the admin API.
func (mg *Manager) Views() []View {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	out := make([]View, 0, len(mg.running))
	for id, r := range mg.running {
		out = append(out, View{
			EventID:    id,
			MarketType: r.monitor.event.MarketType,
			Phase:      r.monitor.Phase(),
			Degraded:   r.monitor.Degraded(),
		})
	}
	return out
}

// Shutdown cancels every monitor.
func (mg *Manager) Shutdown() {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	for id, r := range mg.running {
		r.cancel()
		delete(mg.running, id)
	}
}
