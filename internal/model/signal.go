package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

type DetectorKind string

const (
	DetectorArbitrage   DetectorKind = "arbitrage"
	DetectorModelEdge   DetectorKind = "model_edge"
	DetectorStateChange DetectorKind = "state_change"
)

// Signal is a raw trading opportunity in transit between a detector and the
// risk gate. It is ephemeral and never persisted as-is.
type Signal struct {
	EventID       string
	MarketType    MarketType
	Entity        string
	Direction     Direction
	Detector      DetectorKind
	Edge          float64
	ModelProb     float64
	MarketProb    float64
	Venue         string
	MarketID      string
	Price         decimal.Decimal
	AvailableSize decimal.Decimal
	// CounterVenue/CounterPrice are set for arbitrage signals only and name
	// the opposing leg.
	CounterVenue string
	CounterPrice decimal.Decimal
	EmittedAt    time.Time
}

// Key identifies the logical opportunity for debounce and idempotency.
// Derived from stable business attributes, never a per-attempt id, so
// repeated attempts for the same opportunity collide deterministically.
func (s *Signal) Key() string {
	return fmt.Sprintf("%s:%s:%s", s.EventID, s.Entity, s.Direction)
}

// ExecutionRequest is an approved, sized signal on its way to the venue.
type ExecutionRequest struct {
	Signal     Signal
	Size       decimal.Decimal
	ApprovedAt time.Time
}

// IdempotencyKey is stable across retries of the same opportunity.
func (r *ExecutionRequest) IdempotencyKey() string {
	return r.Signal.Key()
}

// Rejection is the structured record of a risk gate refusal.
type Rejection struct {
	Signal     Signal
	Reasons    []string
	RejectedAt time.Time
}

// RiskSnapshot is the consistent view the gate evaluates against.
// Read fresh on every evaluation, never cached.
type RiskSnapshot struct {
	AvailableBalance  decimal.Decimal
	DailyRealizedLoss decimal.Decimal
	EventExposure     decimal.Decimal
	CategoryExposure  decimal.Decimal
	OpenPositions     int
	HasOpposing       bool
}

// OrderStatus is the terminal outcome of a submission attempt.
type OrderStatus string

const (
	OrderFilled   OrderStatus = "filled"
	OrderPartial  OrderStatus = "partial"
	OrderRejected OrderStatus = "rejected"
	OrderTimedOut OrderStatus = "timed_out"
	OrderPaper    OrderStatus = "paper"
)

// OrderResult is what the venue (or paper simulator) reported back.
type OrderResult struct {
	Request    ExecutionRequest
	Status     OrderStatus
	VenueOrder string
	FilledSize decimal.Decimal
	AvgPrice   decimal.Decimal
	ExecutedAt time.Time
}
