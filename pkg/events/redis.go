package events

import (
	"context"
	"encoding/json"
	"fmt"

	"ridestore/internal/models"
	"ridestore/pkg/cache"
)

type RedisPublisher struct {
	cache   *cache.RedisCache
	channel string
}

func NewRedisPublisher(redisCache *cache.RedisCache, channel string) *RedisPublisher {
	return &RedisPublisher{
		cache:   redisCache,
		channel: channel,
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, event *models.CommitEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode commit %d: %w", event.Seq, err)
	}
	if err := p.cache.PublishSequenced(ctx, p.channel, event.Seq, payload); err != nil {
		return fmt.Errorf("failed to publish commit %d: %w", event.Seq, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.cache.Close()
}
