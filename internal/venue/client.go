package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edgewatch/edgewatch/internal/breaker"
	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/pkg/apperrors"
	"github.com/edgewatch/edgewatch/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

// Client talks to one venue's REST surface: quote pulls, order submission,
// balance. Every call goes through the venue's circuit breaker and is timed.
type Client struct {
	name    string
	baseURL string
	client  *http.Client
	brk     *breaker.Breaker
}

func NewClient(name, baseURL string, timeout time.Duration, brk *breaker.Breaker) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		brk:     brk,
	}
}

func (c *Client) Venue() string { return c.name }

type quotePayload struct {
	MarketID string  `json:"market_id"`
	EventID  string  `json:"event_id"`
	Entity   string  `json:"entity"`
	Bid      string  `json:"bid"`
	Ask      string  `json:"ask"`
	BidSize  string  `json:"bid_size"`
	AskSize  string  `json:"ask_size"`
	Ts       float64 `json:"ts"`
}

// FetchQuotes pulls current quotes for the subscribed markets, the poll
// fallback behind the streaming feed.
func (c *Client) FetchQuotes(ctx context.Context, marketIDs []string) ([]model.Quote, error) {
	var payloads []quotePayload
	err := c.observe("quotes", func() error {
		return c.brk.Do(ctx, func(ctx context.Context) error {
			u := fmt.Sprintf("%s/markets/quotes?ids=%s", c.baseURL, url.QueryEscape(strings.Join(marketIDs, ",")))
			req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if rerr != nil {
				return rerr
			}
			resp, rerr := c.client.Do(req)
			if rerr != nil {
				return fmt.Errorf("quote fetch failed: %w", rerr)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("quote fetch: venue status %d", resp.StatusCode)
			}
			return json.NewDecoder(resp.Body).Decode(&payloads)
		})
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.Quote, 0, len(payloads))
	for _, p := range payloads {
		q, perr := p.toQuote(c.name)
		if perr != nil {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (p quotePayload) toQuote(venue string) (model.Quote, error) {
	bid, err := decimal.NewFromString(p.Bid)
	if err != nil {
		return model.Quote{}, err
	}
	ask, err := decimal.NewFromString(p.Ask)
	if err != nil {
		return model.Quote{}, err
	}
	bidSize, err := decimal.NewFromString(p.BidSize)
	if err != nil {
		return model.Quote{}, err
	}
	askSize, err := decimal.NewFromString(p.AskSize)
	if err != nil {
		return model.Quote{}, err
	}
	return model.Quote{
		Venue:     venue,
		MarketID:  p.MarketID,
		EventID:   p.EventID,
		Entity:    p.Entity,
		Bid:       bid,
		Ask:       ask,
		BidSize:   bidSize,
		AskSize:   askSize,
		Timestamp: time.Unix(0, int64(p.Ts*float64(time.Second))),
	}, nil
}

type orderRequest struct {
	MarketID       string `json:"market_id"`
	Side           string `json:"side"`
	Price          string `json:"price"`
	Size           string `json:"size"`
	IdempotencyKey string `json:"idempotency_key"`
}

type orderResponse struct {
	OrderID    string `json:"order_id"`
	Status     string `json:"status"`
	FilledSize string `json:"filled_size"`
	AvgPrice   string `json:"avg_price"`
}

// SubmitOrder places one order. The idempotency key rides in the body and a
// header so the venue's dedup layer can refuse a replayed request, which is
// what makes the gateway's retries safe.
func (c *Client) SubmitOrder(ctx context.Context, execReq model.ExecutionRequest) (model.OrderResult, error) {
	body, err := json.Marshal(orderRequest{
		MarketID:       execReq.Signal.MarketID,
		Side:           string(execReq.Signal.Direction),
		Price:          execReq.Signal.Price.String(),
		Size:           execReq.Size.String(),
		IdempotencyKey: execReq.IdempotencyKey(),
	})
	if err != nil {
		return model.OrderResult{}, err
	}

	var decoded orderResponse
	err = c.observe("orders", func() error {
		return c.brk.Do(ctx, func(ctx context.Context) error {
			req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
			if rerr != nil {
				return rerr
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Idempotency-Key", execReq.IdempotencyKey())

			resp, rerr := c.client.Do(req)
			if rerr != nil {
				return fmt.Errorf("order submit failed: %w", rerr)
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
				return json.NewDecoder(resp.Body).Decode(&decoded)
			case resp.StatusCode >= 400 && resp.StatusCode < 500:
				// The venue refused outright; not a transient failure, so
				// decode the status instead of tripping the breaker's retry.
				decoded.Status = string(model.OrderRejected)
				return nil
			default:
				return apperrors.New(apperrors.ErrUpstream,
					fmt.Sprintf("order submit: venue status %d", resp.StatusCode), nil)
			}
		})
	})
	if err != nil {
		return model.OrderResult{}, err
	}

	return c.toResult(execReq, decoded)
}

func (c *Client) toResult(req model.ExecutionRequest, resp orderResponse) (model.OrderResult, error) {
	status := model.OrderStatus(resp.Status)
	switch status {
	case model.OrderFilled, model.OrderPartial, model.OrderRejected:
	default:
		return model.OrderResult{}, fmt.Errorf("order submit: unknown status %q", resp.Status)
	}

	filled := decimal.Zero
	avg := decimal.Zero
	if resp.FilledSize != "" {
		var err error
		if filled, err = decimal.NewFromString(resp.FilledSize); err != nil {
			return model.OrderResult{}, fmt.Errorf("order submit: bad filled size %q", resp.FilledSize)
		}
	}
	if resp.AvgPrice != "" {
		var err error
		if avg, err = decimal.NewFromString(resp.AvgPrice); err != nil {
			return model.OrderResult{}, fmt.Errorf("order submit: bad avg price %q", resp.AvgPrice)
		}
	}

	return model.OrderResult{
		Request:    req,
		Status:     status,
		VenueOrder: resp.OrderID,
		FilledSize: filled,
		AvgPrice:   avg,
		ExecutedAt: time.Now(),
	}, nil
}

type balanceResponse struct {
	Available string `json:"available"`
}

// Balance reads the available balance, used to seed the exposure ledger at
// startup.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	var decoded balanceResponse
	err := c.observe("balance", func() error {
		return c.brk.Do(ctx, func(ctx context.Context) error {
			req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/balance", nil)
			if rerr != nil {
				return rerr
			}
			resp, rerr := c.client.Do(req)
			if rerr != nil {
				return fmt.Errorf("balance fetch failed: %w", rerr)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("balance fetch: venue status %d", resp.StatusCode)
			}
			return json.NewDecoder(resp.Body).Decode(&decoded)
		})
	})
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(decoded.Available)
}

func (c *Client) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RequestDuration.WithLabelValues(c.name + "_" + op).Observe(time.Since(start).Seconds())
	return err
}
