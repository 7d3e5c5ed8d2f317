package store

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const memoryStripes = 64

// Memory is an in-process Store. Values expire ttl after the last put to
// their key; a zero ttl keeps them forever.
type Memory struct {
	logger *zap.Logger
	cache  *cache.Cache
	// appends to one key are read-modify-write on the cache entry
	stripes [memoryStripes]sync.Mutex
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-process store.
func NewMemory(ttl time.Duration, logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	expiration, cleanup := cache.NoExpiration, time.Duration(0)
	if ttl > 0 {
		expiration, cleanup = ttl, ttl
	}
	return &Memory{
		logger: logger,
		cache:  cache.New(expiration, cleanup),
	}
}

func (m *Memory) stripe(key string) *sync.Mutex {
	return &m.stripes[xxhash.Sum64String(key)%memoryStripes]
}

func (m *Memory) appendValues(key string, values ...Value) {
	mu := m.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	var existing []Value
	if v, ok := m.cache.Get(key); ok {
		existing = v.([]Value)
	}
	updated := make([]Value, 0, len(existing)+len(values))
	updated = append(updated, existing...)
	for _, v := range values {
		v.Data = append([]byte(nil), v.Data...)
		updated = append(updated, v)
	}
	m.cache.Set(key, updated, cache.DefaultExpiration)
}

func (m *Memory) Put(ctx context.Context, k Key, v Value) error {
	if err := k.Validate(); err != nil {
		return err
	}
	if err := v.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.appendValues(k.String(), v)
	return nil
}

func (m *Memory) PutBatch(ctx context.Context, b *Batch) error {
	if err := b.validate(); err != nil {
		return err
	}
	for k, values := range b.entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.appendValues(k.String(), values...)
	}
	m.logger.Debug("put batch", zap.Int("keys", b.Len()))
	return nil
}

func (m *Memory) Get(ctx context.Context, k Key) ([]Value, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := k.String()
	mu := m.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	v, ok := m.cache.Get(key)
	if !ok {
		return nil, nil
	}
	stored := v.([]Value)
	out := make([]Value, len(stored))
	for i, value := range stored {
		value.Data = append([]byte(nil), value.Data...)
		out[i] = value
	}
	return out, nil
}

func (m *Memory) GetBatch(ctx context.Context, keys []Key) (*Batch, error) {
	b := NewBatch()
	for _, k := range keys {
		values, err := m.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			b.Add(k, v)
		}
	}
	return b, nil
}
