package shard

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/pkg/logger"
	"github.com/edgewatch/edgewatch/internal/pkg/metrics"
)

// SupervisorOptions are the liveness timings from config.
type SupervisorOptions struct {
	HeartbeatInterval time.Duration
	MissThreshold     int
	ZombieInterval    time.Duration
}

func (o SupervisorOptions) withDefaults() SupervisorOptions {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 10 * time.Second
	}
	if o.MissThreshold <= 0 {
		o.MissThreshold = 3
	}
	if o.ZombieInterval <= 0 {
		o.ZombieInterval = time.Minute
	}
	return o
}

type shardInfo struct {
	processID string
	lastSeen  time.Time
	alive     bool
	assigned  map[string]struct{} // authoritative
	reported  map[string]struct{} // last heartbeat's claim
}

// Supervisor owns the authoritative event -> shard assignment map. Shards
// that stop heartbeating are declared dead and their events move to healthy
// shards; restarted shards get a full resync; events a shard reports but no
// longer owns are ordered removed.
type Supervisor struct {
	bus  Bus
	opts SupervisorOptions
	log  *slog.Logger

	mu         sync.Mutex
	shards     map[string]*shardInfo
	owner      map[string]string // eventID -> shardID
	unassigned map[string]struct{}
}

func NewSupervisor(bus Bus, opts SupervisorOptions) *Supervisor {
	return &Supervisor{
		bus:        bus,
		opts:       opts.withDefaults(),
		log:        logger.Component("supervisor"),
		shards:     make(map[string]*shardInfo),
		owner:      make(map[string]string),
		unassigned: make(map[string]struct{}),
	}
}

// Run consumes heartbeats and sweeps for dead shards until ctx ends.
func (s *Supervisor) Run(ctx context.Context) error {
	heartbeats, err := s.bus.Heartbeats(ctx)
	if err != nil {
		return err
	}

	sweep := time.NewTicker(s.sweepInterval())
	defer sweep.Stop()
	reconcile := time.NewTicker(s.opts.ZombieInterval)
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case hb := <-heartbeats:
			s.handleHeartbeat(ctx, hb)
		case now := <-sweep.C:
			s.sweep(ctx, now)
		case <-reconcile.C:
			s.reconcileAll(ctx)
		}
	}
}

// sweepInterval runs the death check at half the heartbeat period so a shard
// is declared dead within half a beat of crossing the miss deadline.
func (s *Supervisor) sweepInterval() time.Duration {
	return s.opts.HeartbeatInterval / 2
}

// Track places a new event under supervision, assigning it to the
// least-loaded live shard immediately when one exists.
func (s *Supervisor) Track(ctx context.Context, eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owner[eventID]; ok {
		return
	}
	s.assignLocked(ctx, eventID)
}

// Complete removes a resolved event from supervision. Called when a shard
// reports the event's monitor finished.
func (s *Supervisor) Complete(eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if shardID, ok := s.owner[eventID]; ok {
		delete(s.owner, eventID)
		if info := s.shards[shardID]; info != nil {
			delete(info.assigned, eventID)
		}
	}
	delete(s.unassigned, eventID)
}

func (s *Supervisor) handleHeartbeat(ctx context.Context, hb model.ShardHeartbeat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, known := s.shards[hb.ShardID]
	if !known {
		info = &shardInfo{assigned: make(map[string]struct{})}
		s.shards[hb.ShardID] = info
	}

	restarted := known && info.processID != "" && info.processID != hb.ProcessID
	revived := known && !info.alive

	info.processID = hb.ProcessID
	info.lastSeen = hb.Timestamp
	info.alive = true
	info.reported = make(map[string]struct{}, len(hb.AssignedEvents))
	for _, id := range hb.AssignedEvents {
		info.reported[id] = struct{}{}
	}

	if !known {
		// First contact: the shard's monitors predate whatever state this
		// supervisor holds. Adopt the reported events as authoritative
		// rather than tearing down healthy monitoring.
		s.log.Info("shard registered",
			"shard_id", hb.ShardID,
			"process_id", hb.ProcessID,
			"reported", len(hb.AssignedEvents))
		s.adoptLocked(ctx, hb.ShardID, info, hb.AssignedEvents)
		s.drainUnassignedLocked(ctx)
		return
	}

	if restarted || revived {
		// A fresh process (or a shard back from the dead) holds no trusted
		// state; push the full authoritative list and let it rebuild.
		s.log.Warn("shard restarted, pushing resync",
			"shard_id", hb.ShardID, "assigned", len(info.assigned))
		s.sendCommandLocked(ctx, model.ShardCommand{
			Type:     model.CommandResync,
			ShardID:  hb.ShardID,
			EventIDs: sortedKeys(info.assigned),
			IssuedAt: time.Now(),
		})
		s.drainUnassignedLocked(ctx)
		return
	}

	s.reconcileLocked(ctx, hb.ShardID, info)
	s.drainUnassignedLocked(ctx)
}

// adoptLocked takes a newly seen shard's reported events into the
// authoritative map. Events another shard already owns stay put and the
// newcomer is told to drop them.
func (s *Supervisor) adoptLocked(ctx context.Context, shardID string, info *shardInfo, reported []string) {
	var conflicts []string
	for _, id := range reported {
		if ownerID, ok := s.owner[id]; ok && ownerID != shardID {
			conflicts = append(conflicts, id)
			continue
		}
		s.owner[id] = shardID
		info.assigned[id] = struct{}{}
		delete(s.unassigned, id)
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		s.log.Warn("reported events already owned elsewhere, ordering removal",
			"shard_id", shardID, "event_ids", conflicts)
		s.sendCommandLocked(ctx, model.ShardCommand{
			Type:     model.CommandRemove,
			ShardID:  shardID,
			EventIDs: conflicts,
			IssuedAt: time.Now(),
		})
	}
}

// reconcileLocked orders removal of anything the shard last reported but
// does not own.
func (s *Supervisor) reconcileLocked(ctx context.Context, shardID string, info *shardInfo) {
	var zombies []string
	for id := range info.reported {
		if _, ok := info.assigned[id]; !ok {
			zombies = append(zombies, id)
		}
	}
	if len(zombies) == 0 {
		return
	}
	sort.Strings(zombies)
	metrics.ZombieCleanups.Add(float64(len(zombies)))
	s.log.Warn("zombie events ordered removed",
		"shard_id", shardID, "event_ids", zombies)
	s.sendCommandLocked(ctx, model.ShardCommand{
		Type:     model.CommandRemove,
		ShardID:  shardID,
		EventIDs: zombies,
		IssuedAt: time.Now(),
	})
}

// reconcileAll runs the zombie diff for every live shard against its last
// report, independent of heartbeat arrival.
func (s *Supervisor) reconcileAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for shardID, info := range s.shards {
		if info.alive {
			s.reconcileLocked(ctx, shardID, info)
		}
	}
}

// sweep declares shards dead after MissThreshold consecutive missed
// heartbeats and reassigns their events.
func (s *Supervisor) sweep(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Duration(s.opts.MissThreshold) * s.opts.HeartbeatInterval
	for shardID, info := range s.shards {
		if !info.alive || now.Sub(info.lastSeen) <= deadline {
			continue
		}
		info.alive = false
		metrics.ShardDeaths.Inc()
		s.log.Error("shard declared dead",
			"shard_id", shardID,
			"last_seen", info.lastSeen,
			"orphaned_events", len(info.assigned))

		for eventID := range info.assigned {
			delete(info.assigned, eventID)
			delete(s.owner, eventID)
			s.assignLocked(ctx, eventID)
		}
	}
}

// assignLocked hands an event to the least-loaded live shard, or parks it
// until one appears.
func (s *Supervisor) assignLocked(ctx context.Context, eventID string) {
	target := s.leastLoadedLocked()
	if target == "" {
		s.unassigned[eventID] = struct{}{}
		s.log.Warn("no live shard for event, parking", "event_id", eventID)
		return
	}

	info := s.shards[target]
	info.assigned[eventID] = struct{}{}
	s.owner[eventID] = target
	delete(s.unassigned, eventID)
	metrics.EventsReassigned.Inc()

	s.sendCommandLocked(ctx, model.ShardCommand{
		Type:     model.CommandAssign,
		ShardID:  target,
		EventIDs: []string{eventID},
		IssuedAt: time.Now(),
	})
}

func (s *Supervisor) drainUnassignedLocked(ctx context.Context) {
	for eventID := range s.unassigned {
		s.assignLocked(ctx, eventID)
	}
}

func (s *Supervisor) leastLoadedLocked() string {
	best := ""
	bestLoad := -1
	for shardID, info := range s.shards {
		if !info.alive {
			continue
		}
		if bestLoad < 0 || len(info.assigned) < bestLoad ||
			(len(info.assigned) == bestLoad && shardID < best) {
			best = shardID
			bestLoad = len(info.assigned)
		}
	}
	return best
}

func (s *Supervisor) sendCommandLocked(ctx context.Context, cmd model.ShardCommand) {
	if err := s.bus.SendCommand(ctx, cmd); err != nil {
		s.log.Error("command send failed",
			"shard_id", cmd.ShardID, "type", cmd.Type, "error", err)
	}
}

// Shards returns per-shard status for the admin API.
func (s *Supervisor) Shards() []model.ShardView {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]model.ShardView, 0, len(s.shards))
	for shardID, info := range s.shards {
		missed := 0
		if !info.lastSeen.IsZero() {
			missed = int(now.Sub(info.lastSeen) / s.opts.HeartbeatInterval)
		}
		out = append(out, model.ShardView{
			ShardID:       shardID,
			Alive:         info.alive,
			MissedBeats:   missed,
			EventCount:    len(info.assigned),
			LastHeartbeat: info.lastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShardID < out[j].ShardID })
	return out
}

// TrackedEvents reports how many events the supervisor currently owns.
func (s *Supervisor) TrackedEvents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owner) + len(s.unassigned)
}

// AliveShards reports the live shard count.
func (s *Supervisor) AliveShards() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, info := range s.shards {
		if info.alive {
			n++
		}
	}
	return n
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
