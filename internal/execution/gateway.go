package execution

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/pkg/apperrors"
	"github.com/edgewatch/edgewatch/internal/pkg/logger"
	"github.com/edgewatch/edgewatch/internal/pkg/metrics"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// VenueExecutor submits one order to an external venue. The idempotency key
// travels with the request so the venue (or its dedup layer) can refuse a
// replay, which is what makes our bounded retries safe.
type VenueExecutor interface {
	SubmitOrder(ctx context.Context, req model.ExecutionRequest) (model.OrderResult, error)
}

// OrderRecorder persists execution outcomes, best-effort.
type OrderRecorder interface {
	RecordOrder(res model.OrderResult)
}

// Releaser returns a reservation to the exposure ledger when an order never
// reached the venue.
type Releaser interface {
	Release(sig *model.Signal, size decimal.Decimal)
}

// Options are the gateway's configured safeguards.
type Options struct {
	Mode           Mode
	LiveConfirm    bool   // first confirmation flag, from config
	LiveConfirmEnv string // env var naming the second, independently-set flag
	OrdersPerMin   int
	OrdersPerHour  int
	MinPrice       decimal.Decimal
	MaxPrice       decimal.Decimal
	MinSize        decimal.Decimal
	MaxSize        decimal.Decimal
	SubmitTimeout  time.Duration
	SubmitRetries  int
}

// Gateway is the last layer between an approved request and an irreversible
// external order. Safeguards run in a fixed order and fail closed.
type Gateway struct {
	opts       Options
	killSwitch KillSwitch
	idem       IdempotencyStore
	executor   VenueExecutor
	recorder   OrderRecorder
	releaser   Releaser

	minuteLimiter *rate.Limiter
	hourLimiter   *rate.Limiter
}

func NewGateway(opts Options, ks KillSwitch, idem IdempotencyStore, executor VenueExecutor, recorder OrderRecorder, releaser Releaser) *Gateway {
	perMin := opts.OrdersPerMin
	if perMin <= 0 {
		perMin = 6
	}
	perHour := opts.OrdersPerHour
	if perHour <= 0 {
		perHour = 60
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 5 * time.Second
	}
	return &Gateway{
		opts:          opts,
		killSwitch:    ks,
		idem:          idem,
		executor:      executor,
		recorder:      recorder,
		releaser:      releaser,
		minuteLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin),
		hourLimiter:   rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), perHour),
	}
}

// Run consumes approved requests until ctx ends.
func (g *Gateway) Run(ctx context.Context, in <-chan model.ExecutionRequest) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-in:
			if _, err := g.Submit(ctx, req); err != nil {
				logger.Warn("submission blocked",
					"key", req.IdempotencyKey(),
					"error", err)
			}
		}
	}
}

// Submit runs the safeguard chain and, on pass, places the order. Any failed
// safeguard returns the reservation to the ledger.
func (g *Gateway) Submit(ctx context.Context, req model.ExecutionRequest) (model.OrderResult, error) {
	if err := g.authorize(ctx, req); err != nil {
		g.release(req)
		return model.OrderResult{}, err
	}
	return g.place(ctx, req)
}

func (g *Gateway) authorize(ctx context.Context, req model.ExecutionRequest) error {
	// 1. Mode authorization. Live requires both confirmation flags, set
	// through independent channels (config file and environment).
	switch g.opts.Mode {
	case ModePaper:
	case ModeLive:
		if !g.opts.LiveConfirm || os.Getenv(g.opts.LiveConfirmEnv) != "true" {
			return apperrors.New(apperrors.ErrModeForbidden,
				"live mode requires both confirmation flags", nil)
		}
	default:
		return apperrors.New(apperrors.ErrModeForbidden,
			fmt.Sprintf("unknown execution mode %q", g.opts.Mode), nil)
	}

	// 2. Kill switch, external control or local fallback.
	if g.killSwitch != nil && g.killSwitch.Engaged(ctx) {
		metrics.OrdersTotal.WithLabelValues("halted").Inc()
		return apperrors.New(apperrors.ErrKillSwitch, "kill switch engaged", nil)
	}

	// 3. Rate limits.
	if !g.minuteLimiter.Allow() || !g.hourLimiter.Allow() {
		metrics.OrdersTotal.WithLabelValues("rate_limited").Inc()
		return apperrors.New(apperrors.ErrRateLimited, "order rate limit exceeded", nil)
	}

	// 4. Idempotency. A duplicate key within TTL is dropped silently with a
	// counter increment.
	ok, err := g.idem.Acquire(ctx, req.IdempotencyKey())
	if err != nil {
		return apperrors.New(apperrors.ErrInternal, "idempotency store unavailable", err)
	}
	if !ok {
		metrics.DuplicateRequests.Inc()
		return apperrors.New(apperrors.ErrDuplicate,
			fmt.Sprintf("duplicate request %s", req.IdempotencyKey()), nil)
	}

	// 5. Sanity bounds.
	if req.Signal.Price.LessThan(g.opts.MinPrice) || req.Signal.Price.GreaterThan(g.opts.MaxPrice) {
		return apperrors.New(apperrors.ErrSanityBounds,
			fmt.Sprintf("price %s outside [%s, %s]", req.Signal.Price, g.opts.MinPrice, g.opts.MaxPrice), nil)
	}
	if req.Size.LessThan(g.opts.MinSize) || req.Size.GreaterThan(g.opts.MaxSize) {
		return apperrors.New(apperrors.ErrSanityBounds,
			fmt.Sprintf("size %s outside [%s, %s]", req.Size, g.opts.MinSize, g.opts.MaxSize), nil)
	}
	return nil
}

func (g *Gateway) place(ctx context.Context, req model.ExecutionRequest) (model.OrderResult, error) {
	if g.opts.Mode == ModePaper {
		res := model.OrderResult{
			Request:    req,
			Status:     model.OrderPaper,
			FilledSize: req.Size,
			AvgPrice:   req.Signal.Price,
			ExecutedAt: time.Now(),
		}
		metrics.OrdersTotal.WithLabelValues(string(model.OrderPaper)).Inc()
		g.record(res)
		logger.Info("paper order recorded",
			"key", req.IdempotencyKey(), "size", req.Size.StringFixed(2))
		return res, nil
	}

	var lastErr error
	for attempt := 0; attempt <= g.opts.SubmitRetries; attempt++ {
		subCtx, cancel := context.WithTimeout(ctx, g.opts.SubmitTimeout)
		res, err := g.executor.SubmitOrder(subCtx, req)
		cancel()

		if err == nil {
			metrics.OrdersTotal.WithLabelValues(string(res.Status)).Inc()
			if res.Status == model.OrderRejected {
				g.release(req)
			}
			g.record(res)
			return res, nil
		}
		lastErr = err
		logger.Warn("order submission attempt failed",
			"key", req.IdempotencyKey(), "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			attempt = g.opts.SubmitRetries
		case <-time.After(time.Duration(attempt+1) * 250 * time.Millisecond):
		}
	}

	res := model.OrderResult{
		Request:    req,
		Status:     model.OrderTimedOut,
		ExecutedAt: time.Now(),
	}
	metrics.OrdersTotal.WithLabelValues(string(model.OrderTimedOut)).Inc()
	g.release(req)
	g.record(res)
	return res, fmt.Errorf("submission failed after %d attempts: %w", g.opts.SubmitRetries+1, lastErr)
}

func (g *Gateway) record(res model.OrderResult) {
	if g.recorder != nil {
		g.recorder.RecordOrder(res)
	}
}

func (g *Gateway) release(req model.ExecutionRequest) {
	if g.releaser != nil {
		g.releaser.Release(&req.Signal, req.Size)
	}
}
