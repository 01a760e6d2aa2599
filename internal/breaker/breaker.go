package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/edgewatch/edgewatch/internal/pkg/logger"
	"github.com/edgewatch/edgewatch/internal/pkg/metrics"
)

// ErrOpen is returned when the breaker short-circuits a call without
// attempting the network.
var ErrOpen = errors.New("circuit breaker open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker protects one external endpoint. After FailureThreshold consecutive
// failures it opens and short-circuits; after OpenTimeout a single trial call
// is let through (half-open). Success closes it, failure re-opens.
type Breaker struct {
	mu sync.Mutex

	endpoint         string
	failureThreshold int
	openTimeout      time.Duration

	state        State
	failures     int
	openedAt     time.Time
	trialPending bool
}

func New(endpoint string, failureThreshold int, openTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 10
	}
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	return &Breaker{
		endpoint:         endpoint,
		failureThreshold: failureThreshold,
		openTimeout:      openTimeout,
	}
}

// Do runs fn under the breaker. When open it fails fast with ErrOpen until
// the backoff elapses, then admits exactly one trial call.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.openedAt) < b.openTimeout {
			return fmt.Errorf("%s: %w", b.endpoint, ErrOpen)
		}
		b.transition(StateHalfOpen)
		b.trialPending = true
		return nil
	case StateHalfOpen:
		if b.trialPending {
			// Another caller owns the trial.
			return fmt.Errorf("%s: %w", b.endpoint, ErrOpen)
		}
		b.trialPending = true
		return nil
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialPending = false

	if err == nil {
		if b.state != StateClosed {
			logger.Info("endpoint recovered, closing breaker", "endpoint", b.endpoint)
		}
		b.failures = 0
		b.transition(StateClosed)
		return
	}

	b.failures++
	if b.state == StateHalfOpen {
		b.openedAt = time.Now()
		b.transition(StateOpen)
		return
	}
	if b.failures >= b.failureThreshold {
		b.openedAt = time.Now()
		b.transition(StateOpen)
		logger.Warn("circuit breaker opened",
			"endpoint", b.endpoint,
			"consecutive_failures", b.failures,
			"retry_in", b.openTimeout)
	}
}

func (b *Breaker) transition(s State) {
	if b.state == s {
		return
	}
	b.state = s
	metrics.BreakerState.WithLabelValues(b.endpoint).Set(float64(s))
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Registry hands out one breaker per endpoint. Safe for concurrent use.
type Registry struct {
	mu               sync.Mutex
	breakers         map[string]*Breaker
	failureThreshold int
	openTimeout      time.Duration
}

func NewRegistry(failureThreshold int, openTimeout time.Duration) *Registry {
	return &Registry{
		breakers:         make(map[string]*Breaker),
		failureThreshold: failureThreshold,
		openTimeout:      openTimeout,
	}
}

func (r *Registry) Get(endpoint string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[endpoint]; ok {
		return b
	}
	b := New(endpoint, r.failureThreshold, r.openTimeout)
	r.breakers[endpoint] = b
	return b
}
