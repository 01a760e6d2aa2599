package repository

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/pkg/logger"
	"github.com/edgewatch/edgewatch/internal/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Persister writes the append-only audit trail: snapshots, signals,
// rejections, orders. Callers enqueue and move on; a background writer does
// the inserts so a slow database never blocks the monitoring loop. A full
// queue drops the record and counts it.
type Persister struct {
	db    *gorm.DB
	queue chan interface{}
	log   *slog.Logger
}

func NewPersister(db *gorm.DB) *Persister {
	return &Persister{
		db:    db,
		queue: make(chan interface{}, 1024),
		log:   logger.Component("persister"),
	}
}

// Run drains the queue until ctx ends, then flushes what is left.
func (p *Persister) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return
		case rec := <-p.queue:
			p.insert(rec)
		}
	}
}

func (p *Persister) flush() {
	for {
		select {
		case rec := <-p.queue:
			p.insert(rec)
		default:
			return
		}
	}
}

func (p *Persister) insert(rec interface{}) {
	if err := p.db.Create(rec).Error; err != nil {
		metrics.PersistFailures.Inc()
		p.log.Warn("insert failed", "error", err)
	}
}

func (p *Persister) enqueue(rec interface{}) {
	select {
	case p.queue <- rec:
	default:
		metrics.PersistFailures.Inc()
	}
}

func (p *Persister) RecordSnapshot(event *model.Event, estimates map[string]float64) {
	p.enqueue(&model.EventSnapshotRecord{
		ID:         uuid.NewString(),
		EventID:    event.ID,
		MarketType: string(event.MarketType),
		Status:     string(event.Status),
		HomeScore:  event.State.HomeScore,
		AwayScore:  event.State.AwayScore,
		Value:      event.State.Value,
		Target:     event.State.Target,
		ModelProb:  estimates[event.HomeEntity],
		CreatedAt:  time.Now(),
	})
}

func (p *Persister) RecordSignal(sig model.Signal) {
	p.enqueue(&model.SignalRecord{
		ID:         uuid.NewString(),
		EventID:    sig.EventID,
		Entity:     sig.Entity,
		Direction:  string(sig.Direction),
		Detector:   string(sig.Detector),
		Edge:       sig.Edge,
		ModelProb:  sig.ModelProb,
		MarketProb: sig.MarketProb,
		Venue:      sig.Venue,
		Price:      sig.Price.String(),
		CreatedAt:  time.Now(),
	})
}

func (p *Persister) RecordRejection(rej model.Rejection) {
	p.enqueue(&model.RejectionRecord{
		ID:        uuid.NewString(),
		EventID:   rej.Signal.EventID,
		Entity:    rej.Signal.Entity,
		Direction: string(rej.Signal.Direction),
		Reasons:   strings.Join(rej.Reasons, "; "),
		CreatedAt: rej.RejectedAt,
	})
}

func (p *Persister) RecordOrder(res model.OrderResult) {
	p.enqueue(&model.OrderRecord{
		ID:             uuid.NewString(),
		IdempotencyKey: res.Request.IdempotencyKey(),
		EventID:        res.Request.Signal.EventID,
		Entity:         res.Request.Signal.Entity,
		Direction:      string(res.Request.Signal.Direction),
		Venue:          res.Request.Signal.Venue,
		Size:           res.Request.Size.String(),
		Price:          res.Request.Signal.Price.String(),
		Status:         string(res.Status),
		VenueOrder:     res.VenueOrder,
		FilledSize:     res.FilledSize.String(),
		CreatedAt:      res.ExecutedAt,
	})
}

// NopRecorder satisfies the recorder interfaces when no database is
// configured (development, tests).
type NopRecorder struct{}

func (NopRecorder) RecordSnapshot(event *model.Event, estimates map[string]float64) {}
func (NopRecorder) RecordSignal(sig model.Signal)                                   {}
func (NopRecorder) RecordRejection(rej model.Rejection)                             {}
func (NopRecorder) RecordOrder(res model.OrderResult)                               {}
