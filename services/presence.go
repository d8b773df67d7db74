package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Presence - признак "в сети" для списка диалогов
type Presence interface {
	Connected(ctx context.Context, userID int64)
	Disconnected(ctx context.Context, userID int64)
	IsOnline(ctx context.Context, userID int64) bool
}

// LocalPresence видит только соединения своего процесса
type LocalPresence struct {
	registry *Registry
}

func NewLocalPresence(registry *Registry) *LocalPresence {
	return &LocalPresence{registry: registry}
}

func (p *LocalPresence) Connected(context.Context, int64)    {}
func (p *LocalPresence) Disconnected(context.Context, int64) {}

func (p *LocalPresence) IsOnline(_ context.Context, userID int64) bool {
	return p.registry.Online(userID)
}

// RedisPresence общий счётчик соединений пользователя для всех реплик.
// TTL страхует от счётчиков, оставшихся после падения процесса.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisPresence(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisPresence {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisPresence{client: client, ttl: ttl, log: log}
}

func presenceKey(userID int64) string {
	return fmt.Sprintf("presence:%d", userID)
}

func (p *RedisPresence) Connected(ctx context.Context, userID int64) {
	key := presenceKey(userID)
	pipe := p.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		p.log.Warn("presence connect failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (p *RedisPresence) Disconnected(ctx context.Context, userID int64) {
	key := presenceKey(userID)
	left, err := p.client.Decr(ctx, key).Result()
	if err != nil {
		p.log.Warn("presence disconnect failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if left <= 0 {
		p.client.Del(ctx, key)
	}
}

func (p *RedisPresence) IsOnline(ctx context.Context, userID int64) bool {
	n, err := p.client.Get(ctx, presenceKey(userID)).Int64()
	return err == nil && n > 0
}
