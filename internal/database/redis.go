package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisDialTimeout = 10 * time.Second

// RedisClients holds two connections to the same server. Queue carries the
// search and analysis caches, refresh tokens and the analysis job queue.
// PubSub publishes chat and poem events and backs websocket subscriptions,
// which pin their connections for as long as a client listens.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()

	queue, err := dialRedis(ctx, *opt, "queue")
	if err != nil {
		return nil, err
	}
	pubsub, err := dialRedis(ctx, *opt, "pubsub")
	if err != nil {
		queue.Close()
		return nil, err
	}

	return &RedisClients{Queue: queue, PubSub: pubsub}, nil
}

// dialRedis opens a client named after its role so CLIENT LIST tells the
// two apart.
func dialRedis(ctx context.Context, opt redis.Options, role string) (*redis.Client, error) {
	opt.ClientName = "shijian-" + role
	client := redis.NewClient(&opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis (%s): %w", role, err)
	}
	return client, nil
}

// Ping checks both connections. Used by the health endpoint.
func (r *RedisClients) Ping(ctx context.Context) error {
	return errors.Join(
		wrapPing("queue", r.Queue.Ping(ctx).Err()),
		wrapPing("pubsub", r.PubSub.Ping(ctx).Err()),
	)
}

func wrapPing(role string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("redis %s: %w", role, err)
}

func (r *RedisClients) Close() {
	r.Queue.Close()
	r.PubSub.Close()
}
