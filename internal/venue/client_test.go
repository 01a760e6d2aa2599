package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgewatch/edgewatch/internal/breaker"
	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/shopspring/decimal"
)

func newTestClient(url string) *Client {
	return NewClient("alpha", url, time.Second, breaker.New("alpha", 10, 30*time.Second))
}

func TestFetchQuotesParsesAndSkipsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/quotes" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"market_id": "m1", "event_id": "ev1", "entity": "home",
				"bid": "0.48", "ask": "0.50", "bid_size": "100", "ask_size": "120",
				"ts": float64(time.Now().Unix())},
			{"market_id": "m2", "event_id": "ev1", "entity": "away",
				"bid": "garbage", "ask": "0.50", "bid_size": "100", "ask_size": "120",
				"ts": float64(time.Now().Unix())},
		})
	}))
	defer srv.Close()

	qs, err := newTestClient(srv.URL).FetchQuotes(context.Background(), []string{"m1", "m2"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(qs) != 1 {
		t.Fatalf("malformed quote must be skipped, got %d", len(qs))
	}
	q := qs[0]
	if q.Venue != "alpha" || q.MarketID != "m1" {
		t.Fatalf("unexpected quote %+v", q)
	}
	if !q.Ask.Equal(decimal.NewFromFloat(0.50)) || !q.AskSize.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("price parse mismatch: %+v", q)
	}
}

func submitRequest() model.ExecutionRequest {
	return model.ExecutionRequest{
		Signal: model.Signal{
			EventID:   "ev1",
			Entity:    "home",
			Direction: model.DirectionBuy,
			MarketID:  "m1",
			Price:     decimal.NewFromFloat(0.50),
		},
		Size: decimal.NewFromInt(25),
	}
}

func TestSubmitOrderCarriesIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Idempotency-Key"); got != "ev1:home:buy" {
			t.Errorf("expected idempotency header, got %q", got)
		}
		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad order body: %v", err)
		}
		if req.IdempotencyKey != "ev1:home:buy" || req.Side != "buy" {
			t.Errorf("unexpected order request %+v", req)
		}
		json.NewEncoder(w).Encode(orderResponse{
			OrderID: "ord-9", Status: "filled", FilledSize: "25", AvgPrice: "0.50",
		})
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).SubmitOrder(context.Background(), submitRequest())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.Status != model.OrderFilled || res.VenueOrder != "ord-9" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !res.FilledSize.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("filled size mismatch: %s", res.FilledSize)
	}
}

func TestSubmitOrderVenueRefusalIsRejectedNotRetried(t *testing.T) {
	brk := breaker.New("alpha", 3, 30*time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient("alpha", srv.URL, time.Second, brk)
	res, err := c.SubmitOrder(context.Background(), submitRequest())
	if err != nil {
		t.Fatalf("4xx must map to a rejected result, got error %v", err)
	}
	if res.Status != model.OrderRejected {
		t.Fatalf("expected rejected, got %s", res.Status)
	}
	if brk.Failures() != 0 {
		t.Fatalf("an outright refusal is not an endpoint failure, failures=%d", brk.Failures())
	}
}

func TestSubmitOrderServerErrorCountsAgainstBreaker(t *testing.T) {
	brk := breaker.New("alpha", 3, 30*time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("alpha", srv.URL, time.Second, brk)
	if _, err := c.SubmitOrder(context.Background(), submitRequest()); err == nil {
		t.Fatal("expected error on 500")
	}
	if brk.Failures() != 1 {
		t.Fatalf("5xx must count against the breaker, failures=%d", brk.Failures())
	}
}
