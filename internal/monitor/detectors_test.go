package monitor

import (
	"testing"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/shopspring/decimal"
)

func flatParams(feeBps int, minDepth int64) VenueParamsFunc {
	return func(string) VenueParams {
		return VenueParams{FeeBps: feeBps, MinDepth: decimal.NewFromInt(minDepth)}
	}
}

func newDetectors(opts DetectorOptions, params VenueParamsFunc) *DetectorSet {
	return NewDetectorSet(opts, params, NewDebouncer(30*time.Second, 10))
}

func quote(venue, entity string, bid, ask float64, bidSize, askSize int64, ts time.Time) model.Quote {
	return model.Quote{
		Venue:     venue,
		MarketID:  venue + "-mkt",
		EventID:   "ev1",
		Entity:    entity,
		Bid:       decimal.NewFromFloat(bid),
		Ask:       decimal.NewFromFloat(ask),
		BidSize:   decimal.NewFromInt(bidSize),
		AskSize:   decimal.NewFromInt(askSize),
		Timestamp: ts,
	}
}

func sportsEvent() *model.Event {
	return &model.Event{
		ID:         "ev1",
		MarketType: model.MarketSports,
		HomeEntity: "home",
		AwayEntity: "away",
		Status:     model.StatusLive,
	}
}

func TestArbitrageEmitsBothLegs(t *testing.T) {
	d := newDetectors(DetectorOptions{ArbMinProfit: 0.01}, flatParams(0, 50))
	now := time.Now()

	// 0.45 + 0.47 = 0.92, an 8-cent round trip with no fees.
	home := []model.Quote{quote("alpha", "home", 0.43, 0.45, 100, 100, now)}
	away := []model.Quote{quote("beta", "away", 0.45, 0.47, 100, 100, now)}

	sigs := d.Arbitrage(sportsEvent(), "home", "away", home, away, now)
	if len(sigs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(sigs))
	}
	for _, sig := range sigs {
		if sig.Detector != model.DetectorArbitrage {
			t.Fatalf("wrong detector: %s", sig.Detector)
		}
		if sig.Edge < 0.079 || sig.Edge > 0.081 {
			t.Fatalf("expected edge ~0.08, got %f", sig.Edge)
		}
		if sig.CounterVenue == "" || sig.CounterVenue == sig.Venue {
			t.Fatalf("counter leg must name the other venue, got %q vs %q", sig.CounterVenue, sig.Venue)
		}
	}
}

func TestArbitrageRequiresDepthOnBothLegs(t *testing.T) {
	d := newDetectors(DetectorOptions{ArbMinProfit: 0.01}, flatParams(0, 50))
	now := time.Now()

	// Same 0.92 round trip, but the away leg shows only 10 contracts.
	home := []model.Quote{quote("alpha", "home", 0.43, 0.45, 100, 100, now)}
	away := []model.Quote{quote("beta", "away", 0.45, 0.47, 100, 10, now)}

	if sigs := d.Arbitrage(sportsEvent(), "home", "away", home, away, now); len(sigs) != 0 {
		t.Fatalf("thin leg must gate eligibility, got %d signals", len(sigs))
	}
}

func TestArbitrageFeesEraseMarginalSpread(t *testing.T) {
	// 0.49 + 0.49 = 0.98 looks like a 2-cent edge, but 200bps on each leg
	// pushes the true cost to 0.9996.
	d := newDetectors(DetectorOptions{ArbMinProfit: 0.01}, flatParams(200, 50))
	now := time.Now()

	home := []model.Quote{quote("alpha", "home", 0.47, 0.49, 100, 100, now)}
	away := []model.Quote{quote("beta", "away", 0.47, 0.49, 100, 100, now)}

	if sigs := d.Arbitrage(sportsEvent(), "home", "away", home, away, now); len(sigs) != 0 {
		t.Fatalf("fee-adjusted cost above threshold must not signal, got %d", len(sigs))
	}
}

func TestArbitrageIgnoresSameVenuePair(t *testing.T) {
	d := newDetectors(DetectorOptions{ArbMinProfit: 0.01}, flatParams(0, 50))
	now := time.Now()

	home := []model.Quote{quote("alpha", "home", 0.43, 0.45, 100, 100, now)}
	away := []model.Quote{quote("alpha", "away", 0.45, 0.47, 100, 100, now)}

	if sigs := d.Arbitrage(sportsEvent(), "home", "away", home, away, now); len(sigs) != 0 {
		t.Fatalf("both legs on one venue is not a cross-venue arb, got %d", len(sigs))
	}
}

func TestModelEdgeBuysUnderpricedOutcome(t *testing.T) {
	d := newDetectors(DetectorOptions{MinEdge: 0.05}, flatParams(0, 50))
	now := time.Now()

	qs := []model.Quote{
		quote("alpha", "home", 0.48, 0.50, 100, 100, now),
		quote("beta", "home", 0.47, 0.52, 100, 100, now),
	}
	sigs := d.ModelEdge(sportsEvent(), "home", 0.60, qs, now)
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	sig := sigs[0]
	if sig.Direction != model.DirectionBuy {
		t.Fatalf("expected buy, got %s", sig.Direction)
	}
	if sig.Venue != "alpha" {
		t.Fatalf("must pick the best executable ask, got venue %s", sig.Venue)
	}
	if sig.Edge < 0.099 || sig.Edge > 0.101 {
		t.Fatalf("expected edge ~0.10, got %f", sig.Edge)
	}
}

func TestModelEdgeSellsOverpricedOutcome(t *testing.T) {
	d := newDetectors(DetectorOptions{MinEdge: 0.05}, flatParams(0, 50))
	now := time.Now()

	qs := []model.Quote{quote("alpha", "home", 0.55, 0.57, 100, 100, now)}
	sigs := d.ModelEdge(sportsEvent(), "home", 0.40, qs, now)
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	if sigs[0].Direction != model.DirectionSell {
		t.Fatalf("expected sell, got %s", sigs[0].Direction)
	}
	if !sigs[0].Price.Equal(decimal.NewFromFloat(0.55)) {
		t.Fatalf("sell must price off the best bid, got %s", sigs[0].Price)
	}
}

func TestModelEdgeBelowMinimumStaysQuiet(t *testing.T) {
	d := newDetectors(DetectorOptions{MinEdge: 0.05}, flatParams(0, 50))
	now := time.Now()

	qs := []model.Quote{quote("alpha", "home", 0.48, 0.50, 100, 100, now)}
	if sigs := d.ModelEdge(sportsEvent(), "home", 0.53, qs, now); len(sigs) != 0 {
		t.Fatalf("3-cent edge under a 5-cent minimum must not signal, got %d", len(sigs))
	}
}

func TestModelEdgeDebouncesRepeatEmissions(t *testing.T) {
	d := newDetectors(DetectorOptions{MinEdge: 0.05}, flatParams(0, 50))
	t0 := time.Now()

	qs := []model.Quote{quote("alpha", "home", 0.48, 0.50, 100, 100, t0)}
	ev := sportsEvent()

	if sigs := d.ModelEdge(ev, "home", 0.60, qs, t0); len(sigs) != 1 {
		t.Fatalf("first tick must signal, got %d", len(sigs))
	}
	if sigs := d.ModelEdge(ev, "home", 0.60, qs, t0.Add(10*time.Second)); len(sigs) != 0 {
		t.Fatalf("same key at t=10s must be debounced, got %d", len(sigs))
	}
	if sigs := d.ModelEdge(ev, "home", 0.60, qs, t0.Add(31*time.Second)); len(sigs) != 1 {
		t.Fatalf("same key at t=31s must signal again, got %d", len(sigs))
	}
}

func TestStateChangeFeatureGated(t *testing.T) {
	now := time.Now()
	qs := []model.Quote{quote("alpha", "home", 0.48, 0.50, 100, 100, now)}

	off := newDetectors(DetectorOptions{StateChangeMinMove: 0.03}, flatParams(0, 50))
	if sigs := off.StateChange(sportsEvent(), "home", 0.50, 0.60, qs, now); len(sigs) != 0 {
		t.Fatalf("disabled detector must not signal, got %d", len(sigs))
	}

	on := newDetectors(DetectorOptions{StateChangeEnabled: true, StateChangeMinMove: 0.03}, flatParams(0, 50))
	sigs := on.StateChange(sportsEvent(), "home", 0.50, 0.60, qs, now)
	if len(sigs) != 1 {
		t.Fatalf("enabled detector must signal on a 10-point move, got %d", len(sigs))
	}
	if sigs[0].Direction != model.DirectionBuy {
		t.Fatalf("upward move must buy, got %s", sigs[0].Direction)
	}
	if sigs[0].Detector != model.DetectorStateChange {
		t.Fatalf("wrong detector: %s", sigs[0].Detector)
	}
}

func TestStateChangeIgnoresSmallMoves(t *testing.T) {
	now := time.Now()
	qs := []model.Quote{quote("alpha", "home", 0.48, 0.50, 100, 100, now)}
	d := newDetectors(DetectorOptions{StateChangeEnabled: true, StateChangeMinMove: 0.03}, flatParams(0, 50))

	if sigs := d.StateChange(sportsEvent(), "home", 0.50, 0.51, qs, now); len(sigs) != 0 {
		t.Fatalf("1-point move under a 3-point threshold must not signal, got %d", len(sigs))
	}
}
