package repository

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	heartbeatChannel     = "edgewatch:heartbeats"
	commandChannelPrefix = "edgewatch:commands:"
)

// RedisBus carries supervision traffic over pub/sub so shards and the
// supervisor can live in separate processes.
type RedisBus struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client, log: logger.Component("bus")}
}

func (b *RedisBus) PublishHeartbeat(ctx context.Context, hb model.ShardHeartbeat) error {
	payload, err := json.Marshal(hb)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, heartbeatChannel, payload).Err()
}

func (b *RedisBus) Heartbeats(ctx context.Context) (<-chan model.ShardHeartbeat, error) {
	sub := b.client.Subscribe(ctx, heartbeatChannel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, err
	}

	out := make(chan model.ShardHeartbeat, 64)
	go func() {
		defer sub.Close()
		defer close(out)
		for msg := range sub.Channel() {
			var hb model.ShardHeartbeat
			if err := json.Unmarshal([]byte(msg.Payload), &hb); err != nil {
				b.log.Warn("malformed heartbeat dropped", "error", err)
				continue
			}
			select {
			case out <- hb:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) SendCommand(ctx context.Context, cmd model.ShardCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, commandChannelPrefix+cmd.ShardID, payload).Err()
}

func (b *RedisBus) Commands(ctx context.Context, shardID string) (<-chan model.ShardCommand, error) {
	sub := b.client.Subscribe(ctx, commandChannelPrefix+shardID)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, err
	}

	out := make(chan model.ShardCommand, 64)
	go func() {
		defer sub.Close()
		defer close(out)
		for msg := range sub.Channel() {
			var cmd model.ShardCommand
			if err := json.Unmarshal([]byte(msg.Payload), &cmd); err != nil {
				b.log.Warn("malformed command dropped", "error", err)
				continue
			}
			select {
			case out <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
