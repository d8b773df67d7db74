package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"tapspot/config"
)

// NewRedisClient подключается к Redis и проверяет соединение
func NewRedisClient(ctx context.Context, conf config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr(),
		Password: conf.Password,
		DB:       conf.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
