package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shamaton/msgpack/v2"
	"go.uber.org/zap"
)

// DefaultRedisPrefix namespaces the list keys written by Redis.
const DefaultRedisPrefix = "distribution:"

// Redis keeps the values of every key in a Redis list of msgpack encoded
// values.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

var _ Store = (*Redis)(nil)

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithTTL expires keys ttl after their last put.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// WithPrefix replaces DefaultRedisPrefix.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithLogger sets the logger; the default discards.
func WithLogger(logger *zap.Logger) RedisOption {
	return func(r *Redis) {
		r.logger = logger
	}
}

// NewRedis connects to the server at addr and verifies the connection.
func NewRedis(ctx context.Context, addr string, db int, opts ...RedisOption) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		MaxRetries:   10,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connecting to redis at %s", addr)
	}
	return NewRedisWithClient(client, opts...), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: DefaultRedisPrefix,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(k Key) string {
	return r.prefix + k.String()
}

func encodeValues(values []Value) ([]any, error) {
	encoded := make([]any, 0, len(values))
	for _, v := range values {
		b, err := msgpack.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal msgpack")
		}
		encoded = append(encoded, b)
	}
	return encoded, nil
}

func decodeValues(raw []string) ([]Value, error) {
	values := make([]Value, 0, len(raw))
	for _, s := range raw {
		var v Value
		if err := msgpack.Unmarshal([]byte(s), &v); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal msgpack")
		}
		values = append(values, v)
	}
	return values, nil
}

func (r *Redis) pushTo(ctx context.Context, pipe redis.Pipeliner, k Key, values []Value) error {
	encoded, err := encodeValues(values)
	if err != nil {
		return err
	}
	key := r.key(k)
	pipe.RPush(ctx, key, encoded...)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	return nil
}

func (r *Redis) Put(ctx context.Context, k Key, v Value) error {
	b := NewBatch()
	b.Add(k, v)
	return r.PutBatch(ctx, b)
}

// PutBatch writes the whole batch in one transaction.
func (r *Redis) PutBatch(ctx context.Context, b *Batch) error {
	if err := b.validate(); err != nil {
		return err
	}
	if b.Len() == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, values := range b.entries {
			if err := r.pushTo(ctx, pipe, k, values); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("redis put failed", zap.Int("keys", b.Len()), zap.Error(err))
		return errors.Wrap(ErrUnableToPut, err.Error())
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, k Key) ([]Value, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	raw, err := r.client.LRange(ctx, r.key(k), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(ErrUnableToGet, "%s: %v", k, err)
	}
	values, err := decodeValues(raw)
	if err != nil {
		return nil, errors.Wrapf(ErrUnableToGet, "%s: %v", k, err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

func (r *Redis) GetBatch(ctx context.Context, keys []Key) (*Batch, error) {
	for _, k := range keys {
		if err := k.Validate(); err != nil {
			return nil, err
		}
	}
	cmds := make([]*redis.StringSliceCmd, len(keys))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.LRange(ctx, r.key(k), 0, -1)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(ErrUnableToGet, err.Error())
	}

	b := NewBatch()
	for i, cmd := range cmds {
		values, err := decodeValues(cmd.Val())
		if err != nil {
			return nil, errors.Wrapf(ErrUnableToGet, "%s: %v", keys[i], err)
		}
		for _, v := range values {
			b.Add(keys[i], v)
		}
	}
	return b, nil
}
