package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tradesim/internal/costmodel"
)

// redisWriter is the part of *redis.Client the sink uses.
type redisWriter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Key holds the latest estimate as JSON; empty disables the SET.
	Key string
	// Channel receives every estimate; empty disables PUBLISH.
	Channel string
	TTL     time.Duration
}

// Redis stores the latest estimate under a key and publishes each one.
type Redis struct {
	client  redisWriter
	closer  func() error
	key     string
	channel string
	ttl     time.Duration
}

// NewRedis dials lazily; the first command opens the connection.
func NewRedis(opts RedisOptions) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	r := newRedis(rdb, opts)
	r.closer = rdb.Close
	return r
}

func newRedis(client redisWriter, opts RedisOptions) *Redis {
	return &Redis{client: client, key: opts.Key, channel: opts.Channel, ttl: opts.TTL}
}

// Ping checks the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	p, ok := r.client.(interface {
		Ping(ctx context.Context) *redis.StatusCmd
	})
	if !ok {
		return nil
	}
	return p.Ping(ctx).Err()
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Deliver(ctx context.Context, est costmodel.CostEstimate) error {
	b, err := json.Marshal(est)
	if err != nil {
		return fmt.Errorf("encode estimate: %w", err)
	}
	if r.key != "" {
		if err := r.client.Set(ctx, r.key, b, r.ttl).Err(); err != nil {
			return fmt.Errorf("set %s: %w", r.key, err)
		}
	}
	if r.channel != "" {
		if err := r.client.Publish(ctx, r.channel, b).Err(); err != nil {
			return fmt.Errorf("publish %s: %w", r.channel, err)
		}
	}
	return nil
}

func (r *Redis) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
