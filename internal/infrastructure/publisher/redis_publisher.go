// Package publisher отдаёт результаты детекции внешним потребителям через Redis.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"beacon-pilot/config"
	"beacon-pilot/internal/domain/entity"
	"beacon-pilot/internal/domain/port"
)

// LatestTTL — сколько живёт ключ с последним результатом.
const LatestTTL = 10 * time.Second

// NewRedisClient подключается к Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       0,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).WithField("address", cfg.Addr).Error("redis connection failed")
		_ = rdb.Close()
		return nil, err
	}

	logrus.WithField("address", cfg.Addr).Info("redis connection successful")
	return rdb, nil
}

// RedisPublisher публикует каждый результат в канал и хранит последний под <channel>:latest.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, ttl: LatestTTL}
}

// LatestKey возвращает ключ последнего результата.
func (p *RedisPublisher) LatestKey() string {
	return fmt.Sprintf("%s:latest", p.channel)
}

func (p *RedisPublisher) Publish(ctx context.Context, result entity.DetectionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal detection: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	if err := p.client.Set(ctx, p.LatestKey(), data, p.ttl).Err(); err != nil {
		return fmt.Errorf("store %s: %w", p.LatestKey(), err)
	}
	return nil
}

var _ port.DetectionPublisher = (*RedisPublisher)(nil)
