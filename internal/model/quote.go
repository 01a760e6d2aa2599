package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one venue's executable two-sided price for an outcome.
// Bid/Ask are executable prices with the size available at each, never mids.
type Quote struct {
	Venue     string
	MarketID  string
	EventID   string
	Entity    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	BidSize   decimal.Decimal
	AskSize   decimal.Decimal
	Timestamp time.Time
}

// Staleness reports the quote age relative to now.
func (q *Quote) Staleness(now time.Time) time.Duration {
	return now.Sub(q.Timestamp)
}

// ImpliedProbability derives the market-implied probability from the best
// executable ask, which is what a taker actually pays for the outcome.
func (q *Quote) ImpliedProbability() float64 {
	return q.Ask.InexactFloat64()
}

// ProbabilityEstimate is the model's view of an outcome, recomputed each tick.
type ProbabilityEstimate struct {
	EventID    string
	Entity     string
	Value      float64
	ComputedAt time.Time
}
