package shard

import (
	"context"
	"sync"

	"github.com/edgewatch/edgewatch/internal/model"
)

// Bus carries heartbeats shard -> supervisor and commands supervisor ->
// shard. The in-memory implementation serves single-process deployments;
// the Redis-backed one in internal/repository spans processes.
type Bus interface {
	PublishHeartbeat(ctx context.Context, hb model.ShardHeartbeat) error
	Heartbeats(ctx context.Context) (<-chan model.ShardHeartbeat, error)
	SendCommand(ctx context.Context, cmd model.ShardCommand) error
	Commands(ctx context.Context, shardID string) (<-chan model.ShardCommand, error)
}

// InMemoryBus routes messages over channels inside one process.
type InMemoryBus struct {
	mu         sync.Mutex
	heartbeats chan model.ShardHeartbeat
	commands   map[string]chan model.ShardCommand
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		heartbeats: make(chan model.ShardHeartbeat, 64),
		commands:   make(map[string]chan model.ShardCommand),
	}
}

func (b *InMemoryBus) PublishHeartbeat(ctx context.Context, hb model.ShardHeartbeat) error {
	select {
	case b.heartbeats <- hb:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *InMemoryBus) Heartbeats(ctx context.Context) (<-chan model.ShardHeartbeat, error) {
	return b.heartbeats, nil
}

func (b *InMemoryBus) SendCommand(ctx context.Context, cmd model.ShardCommand) error {
	ch := b.commandChan(cmd.ShardID)
	select {
	case ch <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *InMemoryBus) Commands(ctx context.Context, shardID string) (<-chan model.ShardCommand, error) {
	return b.commandChan(shardID), nil
}

func (b *InMemoryBus) commandChan(shardID string) chan model.ShardCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.commands[shardID]
	if !ok {
		ch = make(chan model.ShardCommand, 64)
		b.commands[shardID] = ch
	}
	return ch
}
