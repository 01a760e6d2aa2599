package capability

import (
	"fmt"
	"math"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
)

// PriceTargetCapability covers "asset above X by time T" markets.
func PriceTargetCapability(baseURL string, timeout time.Duration) Capability {
	return Capability{
		Provider: newHTTPProvider("price-feed", baseURL, "prices", timeout),
		Model:    &priceTargetModel{vol: 0.02},
		Matcher:  &targetMatcher{},
	}
}

// priceTargetModel scores distance-to-target against remaining time, with a
// volatility scale. As time runs out the estimate saturates smoothly; it is
// never pinned to 0/1 even with the price already past the target.
type priceTargetModel struct {
	// vol is the assumed per-hour relative volatility of the underlying.
	vol float64
}

func (m *priceTargetModel) Estimate(event *model.Event, entity string) (float64, error) {
	st := event.State
	if st.Target == 0 {
		return 0, fmt.Errorf("event %s has no target", event.ID)
	}

	hoursLeft := time.Until(event.ResolutionAt).Hours()
	if hoursLeft < 0 {
		hoursLeft = 0
	}

	distance := (st.Value - st.Target) / st.Target
	// Scale shrinks with remaining time but keeps a floor so the estimate
	// decays toward the boundary instead of jumping onto it.
	scale := m.vol*math.Sqrt(hoursLeft) + 1e-3

	p := 0.5 * (1.0 + math.Erf(distance/(scale*math.Sqrt2)))
	return Clamp(p), nil
}

// targetMatcher maps "yes"-style outcome labels onto the single target entity.
type targetMatcher struct{}

func (tm *targetMatcher) Match(event *model.Event, marketLabel string) (string, bool) {
	label := normalizeName(marketLabel)
	if label == "yes" || label == normalizeName(event.HomeEntity) {
		return event.HomeEntity, true
	}
	return "", false
}
