package capability

import (
	"math"
	"testing"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
)

func sportsEvent(home, away string) *model.Event {
	return &model.Event{
		ID:         "ev1",
		MarketType: model.MarketSports,
		HomeEntity: home,
		AwayEntity: away,
		Status:     model.StatusLive,
	}
}

func TestClampBounds(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0.5, 0.5},
		{0.0, 0.01},
		{-1.0, 0.01},
		{1.0, 0.99},
		{2.5, 0.99},
	}
	for _, c := range cases {
		if got := Clamp(c.in); got != c.want {
			t.Errorf("Clamp(%v) = %v, want %v", c.in, got, c.want)
		}
	}
	if got := Clamp(math.NaN()); got != 0.5 {
		t.Errorf("Clamp(NaN) = %v, want 0.5", got)
	}
}

func TestRegistryUnknownMarketType(t *testing.T) {
	reg := NewRegistry(map[model.MarketType]Capability{
		model.MarketSports: SportsCapability("http://example", time.Second),
	})

	if _, err := reg.For(model.MarketSports); err != nil {
		t.Fatalf("registered type must resolve: %v", err)
	}
	if _, err := reg.For(model.MarketType("weather")); err == nil {
		t.Fatal("unregistered type must return an error")
	}
}

func TestSportsModelPregameIsEven(t *testing.T) {
	ev := sportsEvent("Lakers", "Celtics")
	ev.State = model.EventState{Period: 0}

	m := &sportsModel{}
	p, err := m.Estimate(ev, "Lakers")
	if err != nil {
		t.Fatal(err)
	}
	if p != 0.5 {
		t.Fatalf("pregame estimate = %v, want 0.5", p)
	}
}

func TestSportsModelLeadWeightGrowsWithProgress(t *testing.T) {
	ev := sportsEvent("Lakers", "Celtics")
	m := &sportsModel{}

	ev.State = model.EventState{HomeScore: 110, AwayScore: 100, Period: 1}
	early, err := m.Estimate(ev, "Lakers")
	if err != nil {
		t.Fatal(err)
	}

	ev.State = model.EventState{HomeScore: 110, AwayScore: 100, Period: 4}
	late, err := m.Estimate(ev, "Lakers")
	if err != nil {
		t.Fatal(err)
	}

	if early <= 0.5 {
		t.Fatalf("a ten point lead must favor the leader, got %v", early)
	}
	if late <= early {
		t.Fatalf("same margin late (%v) must outweigh early (%v)", late, early)
	}
	if late > 0.99 {
		t.Fatalf("estimate must stay clamped, got %v", late)
	}
}

func TestSportsModelSidesAreComplementary(t *testing.T) {
	ev := sportsEvent("Lakers", "Celtics")
	ev.State = model.EventState{HomeScore: 103, AwayScore: 100, Period: 2}
	m := &sportsModel{}

	home, err := m.Estimate(ev, "Lakers")
	if err != nil {
		t.Fatal(err)
	}
	away, err := m.Estimate(ev, "Celtics")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(home+away-1.0) > 1e-9 {
		t.Fatalf("home %v + away %v must sum to 1", home, away)
	}
}

func TestSportsModelFinalState(t *testing.T) {
	ev := sportsEvent("Lakers", "Celtics")
	ev.State = model.EventState{Final: true, Winner: "Lakers", HomeScore: 110, AwayScore: 100, Period: 4}
	m := &sportsModel{}

	winner, _ := m.Estimate(ev, "Lakers")
	loser, _ := m.Estimate(ev, "Celtics")
	if winner != 0.99 || loser != 0.01 {
		t.Fatalf("final estimates = %v/%v, want 0.99/0.01", winner, loser)
	}
}

func TestSportsModelUnknownEntity(t *testing.T) {
	ev := sportsEvent("Lakers", "Celtics")
	m := &sportsModel{}
	if _, err := m.Estimate(ev, "Warriors"); err == nil {
		t.Fatal("unknown entity must return an error")
	}
}

func TestNameMatcherNormalizes(t *testing.T) {
	ev := sportsEvent("Boston Celtics", "L.A. Lakers")
	nm := &nameMatcher{}

	cases := []struct {
		label  string
		entity string
		ok     bool
	}{
		{"Boston Celtics", "Boston Celtics", true},
		{"boston celtics -1.5", "Boston Celtics", true},
		{"LA LAKERS", "L.A. Lakers", true},
		{"Golden State", "", false},
	}
	for _, c := range cases {
		entity, ok := nm.Match(ev, c.label)
		if ok != c.ok || entity != c.entity {
			t.Errorf("Match(%q) = %q/%v, want %q/%v", c.label, entity, ok, c.entity, c.ok)
		}
	}
}

func TestPriceTargetDecaysTowardBoundary(t *testing.T) {
	m := &priceTargetModel{vol: 0.02}
	ev := &model.Event{
		ID:         "btc-100k",
		MarketType: model.MarketPriceTarget,
		HomeEntity: "yes",
	}

	// Price 2% above target with a day left: likely but not certain.
	ev.ResolutionAt = time.Now().Add(24 * time.Hour)
	ev.State = model.EventState{Value: 102_000, Target: 100_000}
	withTime, err := m.Estimate(ev, "yes")
	if err != nil {
		t.Fatal(err)
	}
	if withTime <= 0.5 || withTime >= 0.99 {
		t.Fatalf("above target with time left = %v, want in (0.5, 0.99)", withTime)
	}

	// Same price at resolution: saturates onto the clamp, never past it.
	ev.ResolutionAt = time.Now().Add(-time.Minute)
	atExpiry, err := m.Estimate(ev, "yes")
	if err != nil {
		t.Fatal(err)
	}
	if atExpiry < withTime {
		t.Fatalf("estimate must grow as time runs out: %v -> %v", withTime, atExpiry)
	}
	if atExpiry > 0.99 {
		t.Fatalf("estimate must stay clamped, got %v", atExpiry)
	}
}

func TestPriceTargetRequiresTarget(t *testing.T) {
	m := &priceTargetModel{vol: 0.02}
	ev := &model.Event{ID: "ev1", HomeEntity: "yes"}
	if _, err := m.Estimate(ev, "yes"); err == nil {
		t.Fatal("zero target must return an error")
	}
}

func TestTargetMatcherYesLabel(t *testing.T) {
	tm := &targetMatcher{}
	ev := &model.Event{HomeEntity: "BTC above 100k"}

	if entity, ok := tm.Match(ev, "YES"); !ok || entity != "BTC above 100k" {
		t.Fatalf("Match(YES) = %q/%v", entity, ok)
	}
	if _, ok := tm.Match(ev, "no"); ok {
		t.Fatal("no-label must not match the target entity")
	}
}

func TestElectionModelMarginCutsBothWays(t *testing.T) {
	m := &electionModel{pollSigma: 4.0}
	ev := &model.Event{
		ID:         "race1",
		MarketType: model.MarketElection,
		HomeEntity: "Incumbent",
		AwayEntity: "Challenger",
		State:      model.EventState{Value: 4.0},
	}

	home, err := m.Estimate(ev, "Incumbent")
	if err != nil {
		t.Fatal(err)
	}
	away, err := m.Estimate(ev, "Challenger")
	if err != nil {
		t.Fatal(err)
	}
	if home <= 0.5 || away >= 0.5 {
		t.Fatalf("a +4 margin must favor the home candidate: %v vs %v", home, away)
	}
	if math.Abs(home+away-1.0) > 1e-9 {
		t.Fatalf("sides must be complementary: %v + %v", home, away)
	}
}
