package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgewatch_monitor_ticks_total",
		Help: "Monitor ticks processed, by outcome",
	}, []string{"outcome"})

	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgewatch_signals_total",
		Help: "Signals emitted by the detectors",
	}, []string{"detector"})

	DebounceSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edgewatch_debounce_suppressed_total",
		Help: "Signals suppressed by the debounce window",
	})

	RiskRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgewatch_risk_rejects_total",
		Help: "Risk gate rejections by reason",
	}, []string{"reason"})

	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgewatch_orders_total",
		Help: "Execution outcomes",
	}, []string{"status"})

	DuplicateRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edgewatch_duplicate_requests_total",
		Help: "Execution requests dropped on idempotency key collision",
	})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "edgewatch_breaker_state",
		Help: "Circuit breaker state per endpoint (0=closed, 1=open, 2=half-open)",
	}, []string{"endpoint"})

	ShardDeaths = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edgewatch_shard_deaths_total",
		Help: "Shards declared dead by the supervisor",
	})

	EventsReassigned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edgewatch_events_reassigned_total",
		Help: "Events reassigned after shard death or restart",
	})

	ZombieCleanups = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edgewatch_zombie_cleanups_total",
		Help: "Zombie event assignments ordered removed",
	})

	QuoteStaleSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edgewatch_quote_stale_skips_total",
		Help: "Ticks where detection was skipped due to stale quotes",
	})

	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edgewatch_persist_failures_total",
		Help: "Best-effort persistence failures (non-fatal)",
	})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "edgewatch_request_duration_seconds",
		Help:    "Outbound and admin request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
