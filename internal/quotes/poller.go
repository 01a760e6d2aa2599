package quotes

import (
	"context"
	"sync"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/pkg/logger"
)

// Fetcher pulls current quotes for a set of markets over the venue's REST
// surface. Implemented by the venue client.
type Fetcher interface {
	FetchQuotes(ctx context.Context, marketIDs []string) ([]model.Quote, error)
	Venue() string
}

// Poller is the pull fallback for venues without a streaming feed. Fetched
// quotes are written into the same ingest channel the streams use, so the
// monitors read one source regardless of transport.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	out      chan<- model.Quote

	mu      sync.Mutex
	markets []string
}

func NewPoller(fetcher Fetcher, interval time.Duration, out chan<- model.Quote) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{fetcher: fetcher, interval: interval, out: out}
}

func (p *Poller) Subscribe(marketIDs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range marketIDs {
		found := false
		for _, existing := range p.markets {
			if existing == id {
				found = true
				break
			}
		}
		if !found {
			p.markets = append(p.markets, id)
		}
	}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	p.mu.Lock()
	markets := append([]string(nil), p.markets...)
	p.mu.Unlock()

	if len(markets) == 0 {
		return
	}

	qs, err := p.fetcher.FetchQuotes(ctx, markets)
	if err != nil {
		logger.Warn("quote poll failed", "venue", p.fetcher.Venue(), "error", err)
		return
	}
	for _, q := range qs {
		select {
		case p.out <- q:
		case <-ctx.Done():
			return
		}
	}
}

// RunIngest drains the shared quote channel into the cache until ctx ends.
func RunIngest(ctx context.Context, in <-chan model.Quote, cache *Cache) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-in:
			cache.Put(q)
		}
	}
}
