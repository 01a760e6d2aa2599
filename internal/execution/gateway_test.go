package execution

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
)

type stubExecutor struct {
	mu       sync.Mutex
	failures int
	calls    int
	status   model.OrderStatus
}

func (s *stubExecutor) SubmitOrder(ctx context.Context, req model.ExecutionRequest) (model.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return model.OrderResult{}, errors.New("venue 503")
	}
	status := s.status
	if status == "" {
		status = model.OrderFilled
	}
	return model.OrderResult{
		Request:    req,
		Status:     status,
		VenueOrder: "ord-1",
		FilledSize: req.Size,
		AvgPrice:   req.Signal.Price,
		ExecutedAt: time.Now(),
	}, nil
}

type stubRecorder struct {
	mu      sync.Mutex
	results []model.OrderResult
}

func (s *stubRecorder) RecordOrder(res model.OrderResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
}

type stubReleaser struct {
	mu       sync.Mutex
	released int
}

func (s *stubReleaser) Release(sig *model.Signal, size decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
}

func testRequest() model.ExecutionRequest {
	return model.ExecutionRequest{
		Signal: model.Signal{
			EventID:    "ev1",
			MarketType: model.MarketSports,
			Entity:     "home",
			Direction:  model.DirectionBuy,
			Price:      decimal.NewFromFloat(0.50),
		},
		Size:       decimal.NewFromInt(25),
		ApprovedAt: time.Now(),
	}
}

func paperOptions() Options {
	return Options{
		Mode:          ModePaper,
		OrdersPerMin:  100,
		OrdersPerHour: 1000,
		MinPrice:      decimal.NewFromFloat(0.01),
		MaxPrice:      decimal.NewFromFloat(0.99),
		MinSize:       decimal.NewFromInt(1),
		MaxSize:       decimal.NewFromInt(500),
		SubmitTimeout: time.Second,
	}
}

func newTestGateway(t *testing.T, opts Options, exec *stubExecutor) (*Gateway, *stubRecorder, *stubReleaser) {
	t.Helper()
	rec := &stubRecorder{}
	rel := &stubReleaser{}
	ks := NewFileKillSwitch(filepath.Join(t.TempDir(), "killswitch"))
	g := NewGateway(opts, ks, NewInMemIdempotencyStore(time.Minute), exec, rec, rel)
	return g, rec, rel
}

func TestDuplicateKeyAcceptedOnce(t *testing.T) {
	g, rec, _ := newTestGateway(t, paperOptions(), &stubExecutor{})
	ctx := context.Background()

	if _, err := g.Submit(ctx, testRequest()); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	_, err := g.Submit(ctx, testRequest())
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Type != apperrors.ErrDuplicate {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if len(rec.results) != 1 {
		t.Fatalf("expected exactly 1 recorded order, got %d", len(rec.results))
	}
}

func TestKillSwitchHaltsSubmissions(t *testing.T) {
	g, rec, rel := newTestGateway(t, paperOptions(), &stubExecutor{})
	ctx := context.Background()

	if err := g.killSwitch.Engage(ctx, "manual halt"); err != nil {
		t.Fatalf("engage failed: %v", err)
	}
	_, err := g.Submit(ctx, testRequest())
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Type != apperrors.ErrKillSwitch {
		t.Fatalf("expected kill switch rejection, got %v", err)
	}
	if len(rec.results) != 0 {
		t.Fatal("halted submission must not be recorded as an order")
	}
	if rel.released != 1 {
		t.Fatalf("expected reservation released on halt, got %d", rel.released)
	}

	if err := g.killSwitch.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := g.Submit(ctx, testRequest()); err != nil {
		t.Fatalf("expected submission after release, got %v", err)
	}
}

func TestLiveModeRequiresBothFlags(t *testing.T) {
	opts := paperOptions()
	opts.Mode = ModeLive
	opts.LiveConfirmEnv = "EDGEWATCH_TEST_LIVE_CONFIRMED"

	// Config flag only.
	opts.LiveConfirm = true
	g, _, _ := newTestGateway(t, opts, &stubExecutor{})
	_, err := g.Submit(context.Background(), testRequest())
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Type != apperrors.ErrModeForbidden {
		t.Fatalf("expected mode rejection with one flag, got %v", err)
	}

	// Both flags.
	t.Setenv("EDGEWATCH_TEST_LIVE_CONFIRMED", "true")
	exec := &stubExecutor{}
	g2, _, _ := newTestGateway(t, opts, exec)
	if _, err := g2.Submit(context.Background(), testRequest()); err != nil {
		t.Fatalf("expected live submission with both flags, got %v", err)
	}
	if exec.calls != 1 {
		t.Fatalf("expected one venue call, got %d", exec.calls)
	}
}

func TestSanityBoundsFailClosed(t *testing.T) {
	g, _, rel := newTestGateway(t, paperOptions(), &stubExecutor{})

	req := testRequest()
	req.Signal.Price = decimal.NewFromFloat(1.50)
	_, err := g.Submit(context.Background(), req)
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Type != apperrors.ErrSanityBounds {
		t.Fatalf("expected sanity rejection for price 1.50, got %v", err)
	}

	req2 := testRequest()
	req2.Signal.Entity = "away" // distinct idempotency key
	req2.Size = decimal.NewFromInt(5000)
	_, err = g.Submit(context.Background(), req2)
	if !errors.As(err, &appErr) || appErr.Type != apperrors.ErrSanityBounds {
		t.Fatalf("expected sanity rejection for size 5000, got %v", err)
	}
	if rel.released != 2 {
		t.Fatalf("expected 2 releases, got %d", rel.released)
	}
}

func TestRateLimitBlocksBurst(t *testing.T) {
	opts := paperOptions()
	opts.OrdersPerMin = 1
	g, _, _ := newTestGateway(t, opts, &stubExecutor{})
	ctx := context.Background()

	if _, err := g.Submit(ctx, testRequest()); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	req := testRequest()
	req.Signal.Entity = "away"
	_, err := g.Submit(ctx, req)
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Type != apperrors.ErrRateLimited {
		t.Fatalf("expected rate limit rejection, got %v", err)
	}
}

func TestRetriesThenTimeout(t *testing.T) {
	opts := paperOptions()
	opts.Mode = ModeLive
	opts.LiveConfirm = true
	opts.LiveConfirmEnv = "EDGEWATCH_TEST_LIVE_CONFIRMED"
	opts.SubmitRetries = 2
	t.Setenv("EDGEWATCH_TEST_LIVE_CONFIRMED", "true")

	exec := &stubExecutor{failures: 10}
	g, rec, rel := newTestGateway(t, opts, exec)

	res, err := g.Submit(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if res.Status != model.OrderTimedOut {
		t.Fatalf("expected timed_out result, got %q", res.Status)
	}
	if exec.calls != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries), got %d", exec.calls)
	}
	if rel.released != 1 {
		t.Fatalf("expected reservation released after timeout, got %d", rel.released)
	}
	if len(rec.results) != 1 || rec.results[0].Status != model.OrderTimedOut {
		t.Fatalf("expected timed_out recorded, got %+v", rec.results)
	}
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	opts := paperOptions()
	opts.Mode = ModeLive
	opts.LiveConfirm = true
	opts.LiveConfirmEnv = "EDGEWATCH_TEST_LIVE_CONFIRMED"
	opts.SubmitRetries = 2
	t.Setenv("EDGEWATCH_TEST_LIVE_CONFIRMED", "true")

	exec := &stubExecutor{failures: 1}
	g, rec, rel := newTestGateway(t, opts, exec)

	res, err := g.Submit(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("expected success on retry, got %v", err)
	}
	if res.Status != model.OrderFilled {
		t.Fatalf("expected filled, got %q", res.Status)
	}
	if rel.released != 0 {
		t.Fatal("filled order must keep its reservation")
	}
	if len(rec.results) != 1 {
		t.Fatalf("expected one recorded result, got %d", len(rec.results))
	}
}
