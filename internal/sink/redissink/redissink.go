// Package redissink mirrors rendered payloads into Redis so other processes
// can read the latest value or follow changes.
//
// Each payload is SET under "<prefix>:<task>" and PUBLISHed on a channel of
// the same name.
package redissink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTimeout = 2 * time.Second
	defaultPrefix  = "signalsync"
)

// Client is the subset of *redis.Client the sink uses.
type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Options configures the connection made by [Dial].
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Dial connects to Redis and pings it. The client is returned even when the
// ping fails so callers may decide to continue and let writes retry.
func Dial(ctx context.Context, opts Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return rdb, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

// Key returns the key and channel name used for task.
func Key(prefix, task string) string {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return prefix + ":" + task
}

// Sink writes payloads of type T to Redis.
type Sink[T any] struct {
	client  Client
	key     string
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a [Sink].
type Option func(*sinkConfig)

type sinkConfig struct {
	ttl     time.Duration
	timeout time.Duration
}

// WithTTL expires the stored value after d. Zero keeps it forever.
func WithTTL(d time.Duration) Option {
	return func(c *sinkConfig) { c.ttl = d }
}

// WithTimeout bounds each write. Defaults to 2 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *sinkConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New returns a sink for task writing under prefix. logger may be nil.
func New[T any](client Client, prefix, task string, logger *slog.Logger, opts ...Option) *Sink[T] {
	cfg := sinkConfig{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink[T]{
		client:  client,
		key:     Key(prefix, task),
		ttl:     cfg.ttl,
		timeout: cfg.timeout,
		logger:  logger,
	}
}

// Target names the Redis key the sink owns.
func (s *Sink[T]) Target() string { return "redis:" + s.key }

// Render stores and publishes payload as JSON. Write errors are logged; the
// previous value stays in Redis.
func (s *Sink[T]) Render(payload T) {
	if err := s.write(payload); err != nil {
		s.logger.Warn("redis sink write failed", "key", s.key, "error", err)
	}
}

func (s *Sink[T]) write(payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	if err := s.client.Publish(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
