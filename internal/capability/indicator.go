package capability

import (
	"fmt"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
)

// IndicatorCapability covers economic-release markets (CPI above X, rate cut
// of N bps, and similar single-number outcomes).
func IndicatorCapability(baseURL string, timeout time.Duration) Capability {
	return Capability{
		Provider: newHTTPProvider("indicator-feed", baseURL, "indicators", timeout),
		Model:    &indicatorModel{},
		Matcher:  &targetMatcher{},
	}
}

// indicatorModel treats the consensus forecast as the current value and the
// release threshold as the target. Releases move in discrete steps, so the
// logistic is steeper than the price-target model's diffusion curve.
type indicatorModel struct{}

func (m *indicatorModel) Estimate(event *model.Event, entity string) (float64, error) {
	st := event.State
	if st.Target == 0 {
		return 0, fmt.Errorf("event %s has no threshold", event.ID)
	}
	if st.Final {
		if st.Value >= st.Target {
			return probCeil, nil
		}
		return probFloor, nil
	}
	gap := (st.Value - st.Target) / st.Target
	return Clamp(logistic(gap * 40)), nil
}
