package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/edgewatch/edgewatch/internal/breaker"
	"github.com/edgewatch/edgewatch/internal/capability"
	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/pkg/logger"
	"github.com/edgewatch/edgewatch/internal/pkg/metrics"
	"github.com/edgewatch/edgewatch/internal/quotes"
)

type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseMonitoring   Phase = "monitoring"
	PhaseCompleted    Phase = "completed"
)

// Recorder persists per-tick snapshots and emitted signals, best-effort.
// A failure here must never interrupt the monitoring loop.
type Recorder interface {
	RecordSnapshot(event *model.Event, estimates map[string]float64)
	RecordSignal(sig model.Signal)
}

// Options are the monitor loop timings from config.
type Options struct {
	TickInterval time.Duration
	QuoteTTL     time.Duration
	WarnInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.QuoteTTL <= 0 {
		o.QuoteTTL = 10 * time.Second
	}
	if o.WarnInterval <= 0 {
		o.WarnInterval = 30 * time.Second
	}
	return o
}

// Monitor owns one event. All mutation of the event's state happens on the
// monitor's own goroutine; nothing else writes it.
type Monitor struct {
	event     *model.Event
	cap       capability.Capability
	brk       *breaker.Breaker
	cache     *quotes.Cache
	detectors *DetectorSet
	recorder  Recorder
	signals   chan<- model.Signal
	opts      Options
	onDone    func(eventID string)
	log       *slog.Logger

	mu       sync.Mutex // guards phase and degraded, read by status handlers
	phase    Phase
	degraded bool

	lastWarn time.Time
	prevEst  map[string]float64
}

func New(event *model.Event, cap capability.Capability, brk *breaker.Breaker, cache *quotes.Cache, detectors *DetectorSet, recorder Recorder, signals chan<- model.Signal, opts Options, onDone func(eventID string)) *Monitor {
	return &Monitor{
		event:     event,
		cap:       cap,
		brk:       brk,
		cache:     cache,
		detectors: detectors,
		recorder:  recorder,
		signals:   signals,
		opts:      opts.withDefaults(),
		onDone:    onDone,
		log:       logger.Component("monitor").With("event_id", event.ID),
		phase:     PhaseInitializing,
		prevEst:   make(map[string]float64),
	}
}

// Run drives the event until resolution or cancellation. Cancellation is
// cooperative: the loop notices ctx at its next checkpoint, never mid-tick.
func (m *Monitor) Run(ctx context.Context) {
	m.setPhase(PhaseMonitoring)
	m.log.Info("monitoring started", "market_type", m.event.MarketType)

	ticker := time.NewTicker(m.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("monitoring cancelled")
			return
		case now := <-ticker.C:
			if done := m.tick(ctx, now); done {
				return
			}
		}
	}
}

// tick runs one evaluation pass. Returns true once the event is terminal.
func (m *Monitor) tick(ctx context.Context, now time.Time) bool {
	var state model.EventState
	err := m.brk.Do(ctx, func(ctx context.Context) error {
		var ferr error
		state, ferr = m.cap.Provider.FetchState(ctx, m.event)
		return ferr
	})
	if err != nil {
		m.setDegraded(true)
		metrics.TicksTotal.WithLabelValues("degraded").Inc()
		m.warnRateLimited(now, "state fetch failed", err)
		return false
	}
	if m.Degraded() {
		m.setDegraded(false)
		m.log.Info("state feed recovered")
	}

	m.event.State = state
	if m.event.Status == model.StatusScheduled && !state.Final {
		m.event.Status = model.StatusLive
	}

	if state.Final {
		m.complete()
		return true
	}

	estimates := make(map[string]float64, 2)
	for _, entity := range m.event.Entities() {
		p, merr := m.cap.Model.Estimate(m.event, entity)
		if merr != nil {
			m.warnRateLimited(now, "probability estimate failed", merr)
			metrics.TicksTotal.WithLabelValues("degraded").Inc()
			return false
		}
		estimates[entity] = capability.Clamp(p)
	}

	freshByEntity, allFresh := m.gatherQuotes(now)
	if allFresh {
		m.detect(ctx, estimates, freshByEntity, now)
		metrics.TicksTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.QuoteStaleSkips.Inc()
		metrics.TicksTotal.WithLabelValues("stale").Inc()
	}

	// Snapshot persists even on stale-quote ticks; the record is the point.
	if m.recorder != nil {
		m.recorder.RecordSnapshot(m.event, estimates)
	}

	for entity, p := range estimates {
		m.prevEst[entity] = p
	}
	return false
}

func (m *Monitor) gatherQuotes(now time.Time) (map[string][]model.Quote, bool) {
	out := make(map[string][]model.Quote, 2)
	allFresh := true
	for _, entity := range m.event.Entities() {
		fresh, ok := m.cache.Fresh(m.event.ID, entity, m.opts.QuoteTTL, now)
		if !ok {
			allFresh = false
		}
		out[entity] = fresh
	}
	return out, allFresh
}

func (m *Monitor) detect(ctx context.Context, estimates map[string]float64, quotesByEntity map[string][]model.Quote, now time.Time) {
	var sigs []model.Signal

	entities := m.event.Entities()
	if len(entities) == 2 {
		sigs = append(sigs, m.detectors.Arbitrage(m.event, entities[0], entities[1],
			quotesByEntity[entities[0]], quotesByEntity[entities[1]], now)...)
	}
	for _, entity := range entities {
		est := estimates[entity]
		sigs = append(sigs, m.detectors.ModelEdge(m.event, entity, est, quotesByEntity[entity], now)...)
		if prev, ok := m.prevEst[entity]; ok {
			sigs = append(sigs, m.detectors.StateChange(m.event, entity, prev, est, quotesByEntity[entity], now)...)
		}
	}

	for _, sig := range sigs {
		if m.recorder != nil {
			m.recorder.RecordSignal(sig)
		}
		select {
		case m.signals <- sig:
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) complete() {
	m.setPhase(PhaseCompleted)
	m.event.Status = model.StatusFinal
	m.log.Info("event resolved", "winner", m.event.State.Winner)

	if m.recorder != nil {
		m.recorder.RecordSnapshot(m.event, nil)
	}
	m.cache.Drop(m.event.ID, m.event.Entities())
	if m.onDone != nil {
		m.onDone(m.event.ID)
	}
}

// warnRateLimited logs upstream trouble at most once per warn interval so a
// long outage does not flood the log at tick frequency.
func (m *Monitor) warnRateLimited(now time.Time, msg string, err error) {
	if now.Sub(m.lastWarn) < m.opts.WarnInterval {
		return
	}
	m.lastWarn = now
	m.log.Warn(msg, "error", err)
}

func (m *Monitor) setPhase(p Phase) {
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
}

func (m *Monitor) setDegraded(v bool) {
	m.mu.Lock()
	m.degraded = v
	m.mu.Unlock()
}

// Phase returns the current lifecycle phase.
func (m *Monitor) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Degraded reports whether the last tick hit upstream trouble.
func (m *Monitor) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}
