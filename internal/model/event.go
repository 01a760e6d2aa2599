package model

import (
	"time"
)

type MarketType string

const (
	MarketSports      MarketType = "sports"
	MarketPriceTarget MarketType = "price_target"
	MarketIndicator   MarketType = "indicator"
	MarketElection    MarketType = "election"
)

type EventStatus string

const (
	StatusScheduled EventStatus = "scheduled"
	StatusLive      EventStatus = "live"
	StatusFinal     EventStatus = "final"
)

// EventState is the opaque per-tick snapshot of the real-world event.
// Sports events fill the score fields, price targets fill the value fields.
// The monitor treats it as a whole; only the capability for the event's
// market type interprets the contents.
type EventState struct {
	Final     bool
	Winner    string
	HomeScore int
	AwayScore int
	Clock     string
	Period    int
	Value     float64
	Target    float64
	UpdatedAt time.Time
}

// Event is a tracked real-world event. Mutated only by its owning monitor.
type Event struct {
	ID           string
	MarketType   MarketType
	HomeEntity   string
	AwayEntity   string // empty for single-target events
	ScheduledAt  time.Time
	ResolutionAt time.Time
	Status       EventStatus
	State        EventState
}

// Entities returns the tradable outcome names for the event. Single-target
// events (price targets, indicators) trade the home entity only.
func (e *Event) Entities() []string {
	if e.AwayEntity == "" {
		return []string{e.HomeEntity}
	}
	return []string{e.HomeEntity, e.AwayEntity}
}

// MarketRef identifies a concrete market on an external venue, as resolved
// by the discovery collaborator.
type MarketRef struct {
	Venue      string
	MarketID   string
	Entity     string
	Confidence float64
}
