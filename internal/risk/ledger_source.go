package risk

import (
	"context"

	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/shopspring/decimal"
)

// SnapshotSource accessors over the in-process ledger. Kept as individual
// methods so the gate can scatter/gather them the same way it would against
// remote accounting stores.

func (l *Ledger) AvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance, nil
}

func (l *Ledger) DailyRealizedLoss(ctx context.Context) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkDayResetLocked()
	return l.dailyLoss, nil
}

func (l *Ledger) CurrentEventExposure(ctx context.Context, eventID string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eventExposure[eventID], nil
}

func (l *Ledger) CurrentCategoryExposure(ctx context.Context, category string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.categoryExposure[category], nil
}

func (l *Ledger) OpenPositionCount(ctx context.Context, eventID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions[eventID]), nil
}

func (l *Ledger) OpposingPositionOpen(ctx context.Context, sig *model.Signal) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasOpposingLocked(sig), nil
}
