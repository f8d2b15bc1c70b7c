package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client *redis.Client
	config *RedisConfig
}

type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RecentLimit caps the list of recent payloads kept next to the channel.
	RecentLimit int64
}

func NewRedisCache(config *RedisConfig) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout+time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisCache{
		client: rdb,
		config: config,
	}, nil
}

// PublishSequenced publishes payload on channel and, in the same MULTI
// block, pushes it onto the channel's recent list and stores seq under the
// channel's checkpoint key. Subscribers that connect late read the list
// instead of the channel.
func (r *RedisCache) PublishSequenced(ctx context.Context, channel string, seq uint64, payload []byte) error {
	recentKey, seqKey := channel+":recent", channel+":last_seq"
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, channel, payload)
		pipe.LPush(ctx, recentKey, payload)
		if r.config.RecentLimit > 0 {
			pipe.LTrim(ctx, recentKey, 0, r.config.RecentLimit-1)
		}
		pipe.Set(ctx, seqKey, seq, 0)
		return nil
	})
	return err
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
