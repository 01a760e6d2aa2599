package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/edgewatch/edgewatch/internal/breaker"
	"github.com/edgewatch/edgewatch/internal/config"
	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/pkg/logger"
)

type resolveRequest struct {
	EventID      string   `json:"event_id"`
	MarketType   string   `json:"market_type"`
	Participants []string `json:"participants"`
}

type resolveResponse struct {
	Markets []struct {
		Venue      string  `json:"venue"`
		MarketID   string  `json:"market_id"`
		Entity     string  `json:"entity"`
		Confidence float64 `json:"confidence"`
	} `json:"markets"`
}

// Client asks the market discovery service to resolve an event into concrete
// venue market ids. Matches below the confidence floor are discarded rather
// than traded on a guess.
type Client struct {
	baseURL       string
	minConfidence float64
	client        *http.Client
	brk           *breaker.Breaker
	log           *slog.Logger
}

func NewClient(cfg config.DiscoveryConfig, brk *breaker.Breaker) *Client {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		minConfidence: cfg.MinConfidence,
		client:        &http.Client{Timeout: timeout},
		brk:           brk,
		log:           logger.Component("discovery"),
	}
}

// Resolve returns the markets trading this event, high-confidence only.
func (c *Client) Resolve(ctx context.Context, event *model.Event) ([]model.MarketRef, error) {
	body, err := json.Marshal(resolveRequest{
		EventID:      event.ID,
		MarketType:   string(event.MarketType),
		Participants: event.Entities(),
	})
	if err != nil {
		return nil, err
	}

	var decoded resolveResponse
	err = c.brk.Do(ctx, func(ctx context.Context) error {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/resolve", bytes.NewReader(body))
		if rerr != nil {
			return rerr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, rerr := c.client.Do(req)
		if rerr != nil {
			return fmt.Errorf("discovery request failed: %w", rerr)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("discovery: upstream status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&decoded)
	})
	if err != nil {
		return nil, err
	}

	refs := make([]model.MarketRef, 0, len(decoded.Markets))
	for _, m := range decoded.Markets {
		if m.Confidence < c.minConfidence {
			c.log.Debug("low-confidence match discarded",
				"event_id", event.ID, "venue", m.Venue, "confidence", m.Confidence)
			continue
		}
		refs = append(refs, model.MarketRef{
			Venue:      m.Venue,
			MarketID:   m.MarketID,
			Entity:     m.Entity,
			Confidence: m.Confidence,
		})
	}
	return refs, nil
}
