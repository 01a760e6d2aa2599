package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/shopspring/decimal"
)

type position struct {
	Entity    string
	Direction model.Direction
	Size      decimal.Decimal
}

// Ledger is the authoritative exposure accounting for one process. Every
// mutation and the final approval re-check run under one mutex, so two
// racing signals for the same budget can never both commit.
type Ledger struct {
	mu sync.Mutex

	balance   decimal.Decimal
	dailyLoss decimal.Decimal
	resetDay  int

	eventExposure    map[string]decimal.Decimal
	categoryExposure map[string]decimal.Decimal
	positions        map[string][]position
	approvals        map[string]time.Time
}

func NewLedger(initialBalance decimal.Decimal) *Ledger {
	return &Ledger{
		balance:          initialBalance,
		resetDay:         time.Now().YearDay(),
		eventExposure:    make(map[string]decimal.Decimal),
		categoryExposure: make(map[string]decimal.Decimal),
		positions:        make(map[string][]position),
		approvals:        make(map[string]time.Time),
	}
}

// Snapshot reads the current accounting state for a signal. Individual
// accessors exist so the gate can scatter/gather them, but a coherent
// single-lock read is what they all come down to.
func (l *Ledger) Snapshot(sig *model.Signal) model.RiskSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkDayResetLocked()

	return model.RiskSnapshot{
		AvailableBalance:  l.balance,
		DailyRealizedLoss: l.dailyLoss,
		EventExposure:     l.eventExposure[sig.EventID],
		CategoryExposure:  l.categoryExposure[string(sig.MarketType)],
		OpenPositions:     len(l.positions[sig.EventID]),
		HasOpposing:       l.hasOpposingLocked(sig),
	}
}

func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

func (l *Ledger) hasOpposingLocked(sig *model.Signal) bool {
	for _, p := range l.positions[sig.EventID] {
		if p.Entity == sig.Entity && p.Direction != sig.Direction {
			return true
		}
	}
	return false
}

// Reserve is the serialized check-then-commit step. It re-validates every
// limit under the lock and, if all hold, debits the balance and books the
// exposure in the same critical section.
func (l *Ledger) Reserve(sig *model.Signal, size decimal.Decimal, limits Limits) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkDayResetLocked()

	key := sig.Key()
	category := string(sig.MarketType)

	if last, ok := l.approvals[key]; ok && time.Since(last) < limits.ApprovalCooldown {
		return fmt.Errorf("approval cooldown active for %s", key)
	}
	if size.GreaterThan(l.balance) {
		return fmt.Errorf("insufficient balance")
	}
	if size.Add(l.dailyLoss).GreaterThan(limits.MaxDailyLoss) {
		return fmt.Errorf("daily loss limit")
	}
	if size.Add(l.eventExposure[sig.EventID]).GreaterThan(limits.MaxEventExposure) {
		return fmt.Errorf("per-event exposure limit")
	}
	if size.Add(l.categoryExposure[category]).GreaterThan(limits.MaxCategoryExposure) {
		return fmt.Errorf("per-category exposure limit")
	}
	if len(l.positions[sig.EventID]) >= limits.MaxPositionsPerEvent {
		return fmt.Errorf("max positions per event")
	}
	if !limits.AllowOpposing && l.hasOpposingLocked(sig) {
		return fmt.Errorf("opposing position open")
	}

	l.balance = l.balance.Sub(size)
	l.eventExposure[sig.EventID] = l.eventExposure[sig.EventID].Add(size)
	l.categoryExposure[category] = l.categoryExposure[category].Add(size)
	l.positions[sig.EventID] = append(l.positions[sig.EventID], position{
		Entity:    sig.Entity,
		Direction: sig.Direction,
		Size:      size,
	})
	l.approvals[key] = time.Now()
	return nil
}

// Release undoes a reservation after a failed or rejected submission.
func (l *Ledger) Release(sig *model.Signal, size decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	category := string(sig.MarketType)
	l.balance = l.balance.Add(size)
	l.eventExposure[sig.EventID] = l.eventExposure[sig.EventID].Sub(size)
	l.categoryExposure[category] = l.categoryExposure[category].Sub(size)

	ps := l.positions[sig.EventID]
	for i, p := range ps {
		if p.Entity == sig.Entity && p.Direction == sig.Direction && p.Size.Equal(size) {
			l.positions[sig.EventID] = append(ps[:i], ps[i+1:]...)
			break
		}
	}
	delete(l.approvals, sig.Key())
}

// SettleClosed books realized pnl when a position resolves. Loss amounts are
// positive in dailyLoss.
func (l *Ledger) SettleClosed(sig *model.Signal, size, pnl decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkDayResetLocked()

	category := string(sig.MarketType)
	l.eventExposure[sig.EventID] = l.eventExposure[sig.EventID].Sub(size)
	l.categoryExposure[category] = l.categoryExposure[category].Sub(size)
	l.balance = l.balance.Add(size).Add(pnl)
	if pnl.IsNegative() {
		l.dailyLoss = l.dailyLoss.Add(pnl.Neg())
	}

	ps := l.positions[sig.EventID]
	for i, p := range ps {
		if p.Entity == sig.Entity && p.Direction == sig.Direction {
			l.positions[sig.EventID] = append(ps[:i], ps[i+1:]...)
			break
		}
	}
}

// EventExposures returns a copy of the per-event exposure map.
func (l *Ledger) EventExposures() map[string]decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(l.eventExposure))
	for k, v := range l.eventExposure {
		out[k] = v
	}
	return out
}

func (l *Ledger) checkDayResetLocked() {
	today := time.Now().YearDay()
	if l.resetDay != today {
		l.dailyLoss = decimal.Zero
		l.resetDay = today
	}
}
