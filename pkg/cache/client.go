package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrLockHeld is returned by WithLock when another process already
// holds the named lock; WithLock does not wait for it to be released.
var ErrLockHeld = errors.New("lock held by another process")

// Message is a single pub/sub delivery.
type Message struct {
	Channel string
	Payload []byte
}

// Cache is the façade every Chomp component programs against (spec.md
// §4.6). Implementations are externally pluggable; the core ships one
// reference adapter over go-redis/v9.
type Cache interface {
	// SetIfAbsent is the atomic claim primitive: it writes key->value
	// with the given TTL only if key is currently absent, returning
	// true iff this call created the key.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error

	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	MSet(ctx context.Context, values map[string][]byte, ttl time.Duration) error

	// WithLock runs fn while holding a short-lived named lock,
	// releasing it (or letting it expire) on return. Used once at
	// startup for registry reconciliation (spec.md §4.1).
	WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error

	// RunScript evaluates a Lua script atomically against the backend
	// and returns its integer result. It's the seam for compare-and-set
	// operations SetIfAbsent alone can't express, such as claim
	// takeover, which needs "set unless the existing value's tick is
	// not older" to happen in one round trip rather than a Get
	// followed by a Set.
	RunScript(ctx context.Context, script string, keys []string, args ...interface{}) (int64, error)

	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan Message, func() error)

	Close() error
}

// redisCache implements Cache over a go-redis/v9 client.
type redisCache struct {
	log    logrus.FieldLogger
	client *redis.Client
}

// New creates the reference Cache adapter.
func New(log logrus.FieldLogger, cfg *Config) (Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	return &redisCache{
		log:    log.WithField("component", "cache"),
		client: client,
	}, nil
}

// NewFromClient wraps an already-constructed go-redis client; used by
// tests against miniredis.
func NewFromClient(log logrus.FieldLogger, client *redis.Client) Cache {
	return &redisCache{log: log.WithField("component", "cache"), client: client}
}

func (c *redisCache) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (c *redisCache) Del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

func (c *redisCache) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}

	out := make(map[string][]byte, len(keys))
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[keys[i]] = []byte(s)
	}
	return out, nil
}

func (c *redisCache) MSet(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for k, v := range values {
		pipe.Set(ctx, k, v, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mset: %w", err)
	}
	return nil
}

func (c *redisCache) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token := fmt.Sprintf("%d", time.Now().UnixNano())

	acquired, err := c.client.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !acquired {
		return fmt.Errorf("%w: %s", ErrLockHeld, name)
	}

	defer func() {
		// Best-effort release; a short TTL bounds the blast radius of a
		// crash between acquire and release.
		if cur, getErr := c.client.Get(ctx, name).Result(); getErr == nil && cur == token {
			if delErr := c.client.Del(ctx, name).Err(); delErr != nil {
				c.log.WithError(delErr).WithField("lock", name).Warn("Failed to release lock")
			}
		}
	}()

	return fn(ctx)
}

func (c *redisCache) RunScript(ctx context.Context, script string, keys []string, args ...interface{}) (int64, error) {
	res, err := c.client.Eval(ctx, script, keys, args...).Result()
	if err != nil {
		return 0, fmt.Errorf("eval script: %w", err)
	}
	n, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("eval script: unexpected result type %T", res)
	}
	return n, nil
}

func (c *redisCache) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

func (c *redisCache) Subscribe(ctx context.Context, channel string) (<-chan Message, func() error) {
	sub := c.client.Subscribe(ctx, channel)
	redisCh := sub.Channel()

	out := make(chan Message, 64)
	go func() {
		defer close(out)
		for msg := range redisCh {
			out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}
		}
	}()

	return out, sub.Close
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
