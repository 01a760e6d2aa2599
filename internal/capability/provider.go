package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
)

// statePayload is the normalized shape the upstream state API returns for
// every asset class; absent fields stay zero.
type statePayload struct {
	Final     bool    `json:"final"`
	Winner    string  `json:"winner"`
	HomeScore int     `json:"home_score"`
	AwayScore int     `json:"away_score"`
	Clock     string  `json:"clock"`
	Period    int     `json:"period"`
	Value     float64 `json:"value"`
	Target    float64 `json:"target"`
}

// httpProvider pulls event state from an upstream HTTP feed. One instance per
// asset class, differing only in the resource path. Callers wrap FetchState
// with the endpoint's circuit breaker.
type httpProvider struct {
	name    string
	baseURL string
	path    string
	client  *http.Client
}

func newHTTPProvider(name, baseURL, path string, timeout time.Duration) *httpProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpProvider{
		name:    name,
		baseURL: baseURL,
		path:    path,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *httpProvider) Endpoint() string { return p.name }

func (p *httpProvider) FetchState(ctx context.Context, event *model.Event) (model.EventState, error) {
	url := fmt.Sprintf("%s/%s/%s", p.baseURL, p.path, event.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.EventState{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return model.EventState{}, fmt.Errorf("state fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.EventState{}, fmt.Errorf("state fetch: upstream status %d", resp.StatusCode)
	}

	var payload statePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.EventState{}, fmt.Errorf("state fetch: malformed payload: %w", err)
	}

	return model.EventState{
		Final:     payload.Final,
		Winner:    payload.Winner,
		HomeScore: payload.HomeScore,
		AwayScore: payload.AwayScore,
		Clock:     payload.Clock,
		Period:    payload.Period,
		Value:     payload.Value,
		Target:    payload.Target,
		UpdatedAt: time.Now(),
	}, nil
}
