package monitor

import (
	"time"

	"github.com/edgewatch/edgewatch/internal/capability"
	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

// VenueParams are the per-venue economics the detectors price against.
type VenueParams struct {
	FeeBps   int
	MinDepth decimal.Decimal
}

// VenueParamsFunc resolves venue economics, falling back to global defaults
// for venues without an explicit config section.
type VenueParamsFunc func(venue string) VenueParams

// DetectorOptions carry the detector thresholds from config.
type DetectorOptions struct {
	MinEdge            float64
	ArbMinProfit       float64
	StateChangeEnabled bool
	StateChangeMinMove float64
}

// DetectorSet evaluates the three detectors each tick. Detection itself is
// pure over its inputs; the only shared state is the debounce map.
type DetectorSet struct {
	opts        DetectorOptions
	venueParams VenueParamsFunc
	debounce    *Debouncer
}

func NewDetectorSet(opts DetectorOptions, venueParams VenueParamsFunc, debounce *Debouncer) *DetectorSet {
	return &DetectorSet{opts: opts, venueParams: venueParams, debounce: debounce}
}

var one = decimal.NewFromInt(1)

// Arbitrage scans venue pairs for a fee-adjusted round trip under 1.0: buy
// the outcome on one venue and its complement on another. Both legs must show
// the minimum available size at the quoted ask; spread width alone is not
// eligibility.
func (d *DetectorSet) Arbitrage(event *model.Event, entity, complement string, entityQuotes, complementQuotes []model.Quote, now time.Time) []model.Signal {
	var out []model.Signal

	minProfit := decimal.NewFromFloat(d.opts.ArbMinProfit)
	for _, a := range entityQuotes {
		if a.Ask.IsZero() {
			continue
		}
		pa := d.venueParams(a.Venue)
		if a.AskSize.LessThan(pa.MinDepth) {
			continue
		}
		costA := applyFee(a.Ask, pa.FeeBps)

		for _, b := range complementQuotes {
			if b.Venue == a.Venue || b.Ask.IsZero() {
				continue
			}
			pb := d.venueParams(b.Venue)
			if b.AskSize.LessThan(pb.MinDepth) {
				continue
			}

			total := costA.Add(applyFee(b.Ask, pb.FeeBps))
			if total.GreaterThanOrEqual(one.Sub(minProfit)) {
				continue
			}
			edge := one.Sub(total).InexactFloat64()

			legs := []struct {
				entity  string
				quote   model.Quote
				counter model.Quote
			}{
				{entity, a, b},
				{complement, b, a},
			}
			for _, leg := range legs {
				sig := model.Signal{
					EventID:       event.ID,
					MarketType:    event.MarketType,
					Entity:        leg.entity,
					Direction:     model.DirectionBuy,
					Detector:      model.DetectorArbitrage,
					Edge:          edge,
					ModelProb:     capability.Clamp(leg.quote.ImpliedProbability() + edge),
					MarketProb:    leg.quote.ImpliedProbability(),
					Venue:         leg.quote.Venue,
					MarketID:      leg.quote.MarketID,
					Price:         leg.quote.Ask,
					AvailableSize: leg.quote.AskSize,
					CounterVenue:  leg.counter.Venue,
					CounterPrice:  leg.counter.Ask,
					EmittedAt:     now,
				}
				if d.debounce.Allow(sig.Key(), now) {
					metrics.SignalsTotal.WithLabelValues(string(model.DetectorArbitrage)).Inc()
					out = append(out, sig)
				} else {
					metrics.DebounceSuppressed.Inc()
				}
			}
		}
	}
	return out
}

// ModelEdge compares the clamped model estimate against the best executable
// price: the lowest ask to buy, the highest bid to sell.
func (d *DetectorSet) ModelEdge(event *model.Event, entity string, estimate float64, qs []model.Quote, now time.Time) []model.Signal {
	var out []model.Signal

	if buy, ok := bestAsk(qs); ok {
		implied := buy.ImpliedProbability()
		edge := estimate - implied
		if edge >= d.opts.MinEdge {
			out = d.emitEdge(out, event, entity, model.DirectionBuy, edge, estimate, implied, buy, buy.Ask, buy.AskSize, now)
		}
	}
	if sell, ok := bestBid(qs); ok {
		implied := sell.Bid.InexactFloat64()
		edge := implied - estimate
		if edge >= d.opts.MinEdge {
			out = d.emitEdge(out, event, entity, model.DirectionSell, edge, estimate, implied, sell, sell.Bid, sell.BidSize, now)
		}
	}
	return out
}

func (d *DetectorSet) emitEdge(out []model.Signal, event *model.Event, entity string, dir model.Direction, edge, estimate, implied float64, q model.Quote, price, size decimal.Decimal, now time.Time) []model.Signal {
	sig := model.Signal{
		EventID:       event.ID,
		MarketType:    event.MarketType,
		Entity:        entity,
		Direction:     dir,
		Detector:      model.DetectorModelEdge,
		Edge:          edge,
		ModelProb:     estimate,
		MarketProb:    implied,
		Venue:         q.Venue,
		MarketID:      q.MarketID,
		Price:         price,
		AvailableSize: size,
		EmittedAt:     now,
	}
	if !d.debounce.Allow(sig.Key(), now) {
		metrics.DebounceSuppressed.Inc()
		return out
	}
	metrics.SignalsTotal.WithLabelValues(string(model.DetectorModelEdge)).Inc()
	return append(out, sig)
}

// StateChange reacts to a material jump in the model estimate itself, even
// without a priced edge. Disabled by default; only worthwhile when the state
// feed is faster than the venues' repricing.
func (d *DetectorSet) StateChange(event *model.Event, entity string, prev, curr float64, qs []model.Quote, now time.Time) []model.Signal {
	if !d.opts.StateChangeEnabled {
		return nil
	}
	delta := curr - prev
	if delta < d.opts.StateChangeMinMove && -delta < d.opts.StateChangeMinMove {
		return nil
	}

	dir := model.DirectionBuy
	var q model.Quote
	var ok bool
	var price, size decimal.Decimal
	if delta > 0 {
		if q, ok = bestAsk(qs); !ok {
			return nil
		}
		price, size = q.Ask, q.AskSize
	} else {
		dir = model.DirectionSell
		if q, ok = bestBid(qs); !ok {
			return nil
		}
		price, size = q.Bid, q.BidSize
	}

	sig := model.Signal{
		EventID:       event.ID,
		MarketType:    event.MarketType,
		Entity:        entity,
		Direction:     dir,
		Detector:      model.DetectorStateChange,
		Edge:          delta,
		ModelProb:     curr,
		MarketProb:    q.ImpliedProbability(),
		Venue:         q.Venue,
		MarketID:      q.MarketID,
		Price:         price,
		AvailableSize: size,
		EmittedAt:     now,
	}
	if !d.debounce.Allow(sig.Key(), now) {
		metrics.DebounceSuppressed.Inc()
		return nil
	}
	metrics.SignalsTotal.WithLabelValues(string(model.DetectorStateChange)).Inc()
	return []model.Signal{sig}
}

func applyFee(price decimal.Decimal, feeBps int) decimal.Decimal {
	fee := decimal.NewFromInt(int64(feeBps)).Div(decimal.NewFromInt(10000))
	return price.Mul(one.Add(fee))
}

func bestAsk(qs []model.Quote) (model.Quote, bool) {
	var best model.Quote
	found := false
	for _, q := range qs {
		if q.Ask.IsZero() || q.AskSize.IsZero() {
			continue
		}
		if !found || q.Ask.LessThan(best.Ask) {
			best = q
			found = true
		}
	}
	return best, found
}

func bestBid(qs []model.Quote) (model.Quote, bool) {
	var best model.Quote
	found := false
	for _, q := range qs {
		if q.Bid.IsZero() || q.BidSize.IsZero() {
			continue
		}
		if !found || q.Bid.GreaterThan(best.Bid) {
			best = q
			found = true
		}
	}
	return best, found
}
