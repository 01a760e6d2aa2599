package capability

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
)

// SportsCapability covers two-participant game markets.
func SportsCapability(baseURL string, timeout time.Duration) Capability {
	return Capability{
		Provider: newHTTPProvider("sports-feed", baseURL, "games", timeout),
		Model:    &sportsModel{},
		Matcher:  &nameMatcher{},
	}
}

// sportsModel converts score margin and game progress into a win probability.
// Early leads count for little; the same margin late in the game is close to
// decisive.
type sportsModel struct{}

func (m *sportsModel) Estimate(event *model.Event, entity string) (float64, error) {
	st := event.State

	margin := float64(st.HomeScore - st.AwayScore)
	if entity == event.AwayEntity {
		margin = -margin
	} else if entity != event.HomeEntity {
		return 0, fmt.Errorf("unknown entity %q for event %s", entity, event.ID)
	}

	if st.Final {
		if st.Winner == entity {
			return probCeil, nil
		}
		return probFloor, nil
	}

	// progress in [0,1): period 0 means pregame.
	progress := math.Min(float64(st.Period)/4.0, 0.999)
	if st.Period == 0 {
		return 0.5, nil
	}

	// Margin weight grows as remaining time shrinks.
	weight := 0.08 / math.Sqrt(1.0-progress)
	return Clamp(logistic(margin * weight)), nil
}

// nameMatcher resolves venue outcome labels against participant names with
// case-insensitive containment after normalization.
type nameMatcher struct{}

func (nm *nameMatcher) Match(event *model.Event, marketLabel string) (string, bool) {
	label := normalizeName(marketLabel)
	for _, entity := range event.Entities() {
		if strings.Contains(label, normalizeName(entity)) {
			return entity, true
		}
	}
	return "", false
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	replacer := strings.NewReplacer(".", "", ",", "", "-", " ", "_", " ")
	return replacer.Replace(s)
}

func logistic(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
