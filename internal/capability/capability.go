package capability

import (
	"context"
	"fmt"

	"github.com/edgewatch/edgewatch/internal/model"
)

// EventProvider fetches the current external state of an event.
type EventProvider interface {
	FetchState(ctx context.Context, event *model.Event) (model.EventState, error)
	// Endpoint names the upstream this provider talks to, for breaker keying.
	Endpoint() string
}

// ProbabilityModel estimates the probability that entity wins/resolves yes,
// given the event's current state. Pure; no I/O.
type ProbabilityModel interface {
	Estimate(event *model.Event, entity string) (float64, error)
}

// EntityMatcher maps a venue's market/outcome label onto one of the event's
// entities.
type EntityMatcher interface {
	Match(event *model.Event, marketLabel string) (string, bool)
}

// Capability bundles the three per-asset-class strategies.
type Capability struct {
	Provider EventProvider
	Model    ProbabilityModel
	Matcher  EntityMatcher
}

// Registry is built once at startup and shared read-only across monitors.
type Registry struct {
	caps map[model.MarketType]Capability
}

func NewRegistry(caps map[model.MarketType]Capability) *Registry {
	copied := make(map[model.MarketType]Capability, len(caps))
	for k, v := range caps {
		copied[k] = v
	}
	return &Registry{caps: copied}
}

func (r *Registry) For(mt model.MarketType) (Capability, error) {
	cap, ok := r.caps[mt]
	if !ok {
		return Capability{}, fmt.Errorf("no capability registered for market type %q", mt)
	}
	return cap, nil
}

const (
	probFloor = 0.01
	probCeil  = 0.99
)

// Clamp bounds a probability away from the overconfident extremes. Boundary
// conditions (value already past target with near-zero time left) must decay
// toward 0/1, never jump there.
func Clamp(p float64) float64 {
	if p != p { // NaN
		return 0.5
	}
	if p < probFloor {
		return probFloor
	}
	if p > probCeil {
		return probCeil
	}
	return p
}
