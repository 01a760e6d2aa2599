package risk

import (
	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/shopspring/decimal"
)

// Sizer computes a bounded fractional-Kelly position size. The Kelly fraction
// for a binary contract at price p with model probability q is (q-p)/(1-p);
// we take a configured fraction of that and cap the result at a maximum
// percentage of bankroll.
type Sizer struct {
	fraction       decimal.Decimal
	maxBankrollPct decimal.Decimal
	minSize        decimal.Decimal
}

func NewSizer(fraction, maxBankrollPct float64) *Sizer {
	return &Sizer{
		fraction:       decimal.NewFromFloat(fraction),
		maxBankrollPct: decimal.NewFromFloat(maxBankrollPct),
		minSize:        decimal.NewFromInt(1),
	}
}

func (s *Sizer) Size(sig *model.Signal, bankroll decimal.Decimal) decimal.Decimal {
	if bankroll.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	p := decimal.NewFromFloat(sig.MarketProb)
	q := decimal.NewFromFloat(sig.ModelProb)
	one := decimal.NewFromInt(1)

	denom := one.Sub(p)
	if denom.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	kelly := q.Sub(p).Div(denom)
	if kelly.LessThanOrEqual(decimal.Zero) {
		// Sell-side signals carry q < p; size on the mirrored edge.
		kelly = kelly.Neg()
	}

	stake := bankroll.Mul(kelly).Mul(s.fraction)

	cap := bankroll.Mul(s.maxBankrollPct)
	if stake.GreaterThan(cap) {
		stake = cap
	}
	if stake.LessThan(s.minSize) {
		return decimal.Zero
	}
	return stake.Truncate(2)
}
