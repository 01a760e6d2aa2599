package risk

import (
	"context"
	"strings"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/pkg/logger"
	"github.com/edgewatch/edgewatch/internal/pkg/metrics"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Limits are the configured risk bounds, immutable after construction.
type Limits struct {
	MaxDailyLoss         decimal.Decimal
	MaxEventExposure     decimal.Decimal
	MaxCategoryExposure  decimal.Decimal
	MaxPositionsPerEvent int
	AllowOpposing        bool
	ApprovalCooldown     time.Duration
}

// SnapshotSource provides the accounting reads the gate gathers in parallel.
type SnapshotSource interface {
	AvailableBalance(ctx context.Context) (decimal.Decimal, error)
	DailyRealizedLoss(ctx context.Context) (decimal.Decimal, error)
	CurrentEventExposure(ctx context.Context, eventID string) (decimal.Decimal, error)
	CurrentCategoryExposure(ctx context.Context, category string) (decimal.Decimal, error)
	OpenPositionCount(ctx context.Context, eventID string) (int, error)
	OpposingPositionOpen(ctx context.Context, sig *model.Signal) (bool, error)
}

// RejectionRecorder persists structured rejections, best-effort.
type RejectionRecorder interface {
	RecordRejection(rej model.Rejection)
}

// Gate turns raw signals into bounded, idempotent execution requests.
// Checks are evaluated against a gathered snapshot for a fast refusal; the
// decisive validation happens inside the ledger's serialized reserve step,
// so two signals racing for the same budget cannot both pass.
type Gate struct {
	source   SnapshotSource
	ledger   *Ledger
	sizer    *Sizer
	limits   Limits
	recorder RejectionRecorder
	out      chan<- model.ExecutionRequest
}

func NewGate(source SnapshotSource, ledger *Ledger, sizer *Sizer, limits Limits, recorder RejectionRecorder, out chan<- model.ExecutionRequest) *Gate {
	return &Gate{
		source:   source,
		ledger:   ledger,
		sizer:    sizer,
		limits:   limits,
		recorder: recorder,
		out:      out,
	}
}

// Run consumes the signal channel until ctx ends.
func (g *Gate) Run(ctx context.Context, signals <-chan model.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			g.Evaluate(ctx, &sig)
		}
	}
}

// Evaluate runs the full approval pipeline for one signal. Rejected signals
// are recorded and dropped, never retried.
func (g *Gate) Evaluate(ctx context.Context, sig *model.Signal) {
	snap, err := g.gather(ctx, sig)
	if err != nil {
		logger.Warn("risk snapshot read failed", "event_id", sig.EventID, "error", err)
		g.reject(sig, []string{"snapshot unavailable"})
		return
	}

	size := g.sizer.Size(sig, snap.AvailableBalance)
	if size.IsZero() {
		g.reject(sig, []string{"no positive size at current edge"})
		return
	}

	if reasons := g.check(sig, snap, size); len(reasons) > 0 {
		g.reject(sig, reasons)
		return
	}

	// Serialized re-check and commit. Another in-flight approval may have
	// consumed the budget between the snapshot and here.
	if err := g.ledger.Reserve(sig, size, g.limits); err != nil {
		g.reject(sig, []string{err.Error()})
		return
	}

	req := model.ExecutionRequest{
		Signal:     *sig,
		Size:       size,
		ApprovedAt: time.Now(),
	}
	logger.Info("signal approved",
		"event_id", sig.EventID,
		"entity", sig.Entity,
		"direction", sig.Direction,
		"detector", sig.Detector,
		"size", size.StringFixed(2),
		"edge", sig.Edge)

	select {
	case g.out <- req:
	case <-ctx.Done():
		g.ledger.Release(sig, size)
	}
}

func (g *Gate) gather(ctx context.Context, sig *model.Signal) (model.RiskSnapshot, error) {
	var snap model.RiskSnapshot
	category := string(sig.MarketType)

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		snap.AvailableBalance, err = g.source.AvailableBalance(gctx)
		return
	})
	eg.Go(func() (err error) {
		snap.DailyRealizedLoss, err = g.source.DailyRealizedLoss(gctx)
		return
	})
	eg.Go(func() (err error) {
		snap.EventExposure, err = g.source.CurrentEventExposure(gctx, sig.EventID)
		return
	})
	eg.Go(func() (err error) {
		snap.CategoryExposure, err = g.source.CurrentCategoryExposure(gctx, category)
		return
	})
	eg.Go(func() (err error) {
		snap.OpenPositions, err = g.source.OpenPositionCount(gctx, sig.EventID)
		return
	})
	eg.Go(func() (err error) {
		snap.HasOpposing, err = g.source.OpposingPositionOpen(gctx, sig)
		return
	})

	if err := eg.Wait(); err != nil {
		return model.RiskSnapshot{}, err
	}
	return snap, nil
}

func (g *Gate) check(sig *model.Signal, snap model.RiskSnapshot, size decimal.Decimal) []string {
	var reasons []string

	if size.GreaterThan(snap.AvailableBalance) {
		reasons = append(reasons, "insufficient balance")
	}
	if size.Add(snap.DailyRealizedLoss).GreaterThan(g.limits.MaxDailyLoss) {
		reasons = append(reasons, "daily loss limit")
	}
	if size.Add(snap.EventExposure).GreaterThan(g.limits.MaxEventExposure) {
		reasons = append(reasons, "per-event exposure limit")
	}
	if size.Add(snap.CategoryExposure).GreaterThan(g.limits.MaxCategoryExposure) {
		reasons = append(reasons, "per-category exposure limit")
	}
	if snap.OpenPositions >= g.limits.MaxPositionsPerEvent {
		reasons = append(reasons, "max positions per event")
	}
	if snap.HasOpposing && !g.limits.AllowOpposing {
		reasons = append(reasons, "opposing position open")
	}
	return reasons
}

func (g *Gate) reject(sig *model.Signal, reasons []string) {
	for _, r := range reasons {
		metrics.RiskRejects.WithLabelValues(reasonLabel(r)).Inc()
	}
	logger.Debug("signal rejected",
		"event_id", sig.EventID,
		"entity", sig.Entity,
		"direction", sig.Direction,
		"reasons", strings.Join(reasons, "; "))

	if g.recorder != nil {
		g.recorder.RecordRejection(model.Rejection{
			Signal:     *sig,
			Reasons:    reasons,
			RejectedAt: time.Now(),
		})
	}
}

func reasonLabel(reason string) string {
	label := strings.ToLower(reason)
	label = strings.ReplaceAll(label, " ", "_")
	return strings.ReplaceAll(label, "-", "_")
}
