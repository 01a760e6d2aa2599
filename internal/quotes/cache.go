package quotes

import (
	"sync"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
)

// Cache holds the latest quote per (event, entity, venue). It is the one
// genuinely shared map between the feed ingester and the monitors, so access
// follows a short-lived RWMutex discipline: the lock is never held across
// anything that can block.
type Cache struct {
	mu     sync.RWMutex
	quotes map[string]map[string]model.Quote // event:entity -> venue -> quote
}

func NewCache() *Cache {
	return &Cache{quotes: make(map[string]map[string]model.Quote)}
}

func key(eventID, entity string) string {
	return eventID + ":" + entity
}

// Put replaces the stored quote for the quote's (event, entity, venue) slot.
func (c *Cache) Put(q model.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(q.EventID, q.Entity)
	byVenue, ok := c.quotes[k]
	if !ok {
		byVenue = make(map[string]model.Quote)
		c.quotes[k] = byVenue
	}
	byVenue[q.Venue] = q
}

// Get returns the quote for one venue.
func (c *Cache) Get(eventID, entity, venue string) (model.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byVenue, ok := c.quotes[key(eventID, entity)]
	if !ok {
		return model.Quote{}, false
	}
	q, ok := byVenue[venue]
	return q, ok
}

// ForEntity returns all venues' quotes for an outcome.
func (c *Cache) ForEntity(eventID, entity string) []model.Quote {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byVenue, ok := c.quotes[key(eventID, entity)]
	if !ok {
		return nil
	}
	out := make([]model.Quote, 0, len(byVenue))
	for _, q := range byVenue {
		out = append(out, q)
	}
	return out
}

// Fresh filters ForEntity down to quotes within ttl. The second return is
// false when any known quote for the outcome is stale, which gates signal
// detection for the tick.
func (c *Cache) Fresh(eventID, entity string, ttl time.Duration, now time.Time) ([]model.Quote, bool) {
	all := c.ForEntity(eventID, entity)
	fresh := make([]model.Quote, 0, len(all))
	allFresh := true
	for _, q := range all {
		if q.Staleness(now) > ttl {
			allFresh = false
			continue
		}
		fresh = append(fresh, q)
	}
	return fresh, allFresh
}

// Drop removes every venue's quote for an event, called when monitoring ends.
func (c *Cache) Drop(eventID string, entities []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entity := range entities {
		delete(c.quotes, key(eventID, entity))
	}
}
