package capability

import (
	"fmt"
	"math"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
)

// ElectionCapability covers two-candidate election markets. The upstream
// state value carries the polling margin in points for the home candidate.
func ElectionCapability(baseURL string, timeout time.Duration) Capability {
	return Capability{
		Provider: newHTTPProvider("election-feed", baseURL, "races", timeout),
		Model:    &electionModel{pollSigma: 4.0},
		Matcher:  &nameMatcher{},
	}
}

type electionModel struct {
	// pollSigma is the assumed polling error in points.
	pollSigma float64
}

func (m *electionModel) Estimate(event *model.Event, entity string) (float64, error) {
	st := event.State
	if st.Final {
		if st.Winner == entity {
			return probCeil, nil
		}
		return probFloor, nil
	}

	margin := st.Value
	switch entity {
	case event.HomeEntity:
	case event.AwayEntity:
		margin = -margin
	default:
		return 0, fmt.Errorf("unknown entity %q for event %s", entity, event.ID)
	}

	p := 0.5 * (1.0 + math.Erf(margin/(m.pollSigma*math.Sqrt2)))
	return Clamp(p), nil
}
