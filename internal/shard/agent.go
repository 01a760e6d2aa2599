package shard

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/monitor"
	"github.com/edgewatch/edgewatch/internal/pkg/logger"
	"github.com/google/uuid"
)

// EventSource resolves an event id into the full event record when the
// supervisor assigns it to this shard.
type EventSource interface {
	GetEvent(ctx context.Context, eventID string) (*model.Event, error)
}

// Agent is the shard-side half of supervision: it heartbeats the local
// assignment list and applies assign/remove/resync commands to the monitor
// manager. ProcessID is fresh per process so the supervisor can tell a
// restart from a pause.
type Agent struct {
	shardID   string
	processID string
	startedAt time.Time
	bus       Bus
	manager   *monitor.Manager
	events    EventSource
	interval  time.Duration
	log       *slog.Logger
}

func NewAgent(shardID string, bus Bus, manager *monitor.Manager, events EventSource, interval time.Duration) *Agent {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Agent{
		shardID:   shardID,
		processID: uuid.NewString(),
		startedAt: time.Now(),
		bus:       bus,
		manager:   manager,
		events:    events,
		interval:  interval,
		log:       logger.Component("shard").With("shard_id", shardID),
	}
}

// Run emits heartbeats and applies supervisor commands until ctx ends.
func (a *Agent) Run(ctx context.Context) error {
	commands, err := a.bus.Commands(ctx, a.shardID)
	if err != nil {
		return err
	}

	// First heartbeat goes out immediately so the supervisor learns about
	// this process without waiting a full interval.
	a.heartbeat(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.heartbeat(ctx)
		case cmd := <-commands:
			a.apply(ctx, cmd)
		}
	}
}

func (a *Agent) heartbeat(ctx context.Context) {
	hb := model.ShardHeartbeat{
		ShardID:        a.shardID,
		ProcessID:      a.processID,
		StartedAt:      a.startedAt,
		AssignedEvents: a.manager.ActiveIDs(),
		Timestamp:      time.Now(),
	}
	if err := a.bus.PublishHeartbeat(ctx, hb); err != nil && ctx.Err() == nil {
		a.log.Warn("heartbeat publish failed", "error", err)
	}
}

func (a *Agent) apply(ctx context.Context, cmd model.ShardCommand) {
	switch cmd.Type {
	case model.CommandAssign:
		for _, id := range cmd.EventIDs {
			a.add(ctx, id)
		}
	case model.CommandRemove:
		for _, id := range cmd.EventIDs {
			a.manager.Remove(id)
		}
	case model.CommandResync:
		a.resync(ctx, cmd.EventIDs)
	default:
		a.log.Warn("unknown command type", "type", cmd.Type)
	}
}

func (a *Agent) add(ctx context.Context, eventID string) {
	event, err := a.events.GetEvent(ctx, eventID)
	if err != nil {
		a.log.Error("event lookup failed", "event_id", eventID, "error", err)
		return
	}
	if err := a.manager.Add(ctx, event); err != nil {
		a.log.Error("monitor start failed", "event_id", eventID, "error", err)
	}
}

// resync replaces the local assignment set with the authoritative list:
// extras are cancelled, missing events started.
func (a *Agent) resync(ctx context.Context, authoritative []string) {
	want := make(map[string]struct{}, len(authoritative))
	for _, id := range authoritative {
		want[id] = struct{}{}
	}

	for _, id := range a.manager.ActiveIDs() {
		if _, ok := want[id]; !ok {
			a.manager.Remove(id)
		}
	}
	for _, id := range authoritative {
		a.add(ctx, id)
	}
	a.log.Info("resync applied", "assigned", len(authoritative))
}
