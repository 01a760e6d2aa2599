package repository

import (
	"context"
	"log/slog"

	"github.com/edgewatch/edgewatch/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const killSwitchKey = "edgewatch:killswitch"

// RedisKillSwitch is the shared control switch: any process engaging it
// halts submissions everywhere. A read error counts as engaged; the gateway
// fails closed, never open.
type RedisKillSwitch struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedisKillSwitch(client *redis.Client) *RedisKillSwitch {
	return &RedisKillSwitch{client: client, log: logger.Component("killswitch")}
}

func (ks *RedisKillSwitch) Engaged(ctx context.Context) bool {
	n, err := ks.client.Exists(ctx, killSwitchKey).Result()
	if err != nil {
		ks.log.Warn("kill switch read failed, treating as engaged", "error", err)
		return true
	}
	return n > 0
}

func (ks *RedisKillSwitch) Engage(ctx context.Context, reason string) error {
	if err := ks.client.Set(ctx, killSwitchKey, reason, 0).Err(); err != nil {
		return err
	}
	ks.log.Warn("kill switch engaged", "reason", reason)
	return nil
}

func (ks *RedisKillSwitch) Release(ctx context.Context) error {
	if err := ks.client.Del(ctx, killSwitchKey).Err(); err != nil {
		return err
	}
	ks.log.Info("kill switch released")
	return nil
}

// Reason returns the engage reason, if set.
func (ks *RedisKillSwitch) Reason(ctx context.Context) string {
	reason, err := ks.client.Get(ctx, killSwitchKey).Result()
	if err != nil {
		return ""
	}
	return reason
}
