// Package aggregate accumulates keyed distributions on several shards and
// merges them on demand.
//
// Each shard is a goroutine that owns its distributions, so an Add never
// contends with another shard. Values of one key may land on every shard;
// Snapshot merges the partial distributions of a key into one.
package aggregate

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/axiomhq/distribution"
	"github.com/axiomhq/distribution/store"
)

const meterName = "github.com/axiomhq/distribution/aggregate"

var (
	// ErrClosed is returned by operations on a closed Aggregator.
	ErrClosed = errors.New("aggregator is closed")
	// ErrNoValues is returned by Load when nothing is stored under a key.
	ErrNoValues = errors.New("no values stored")
)

type partials = map[string]distribution.Distribution

type shard struct {
	ops chan func(partials)
}

func (s *shard) run(done <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	m := partials{}
	for {
		select {
		case <-done:
			return
		case op := <-s.ops:
			op(m)
		}
	}
}

// do runs op on the shard goroutine and waits for it to finish.
func (s *shard) do(ctx context.Context, done <-chan struct{}, op func(partials)) error {
	finished := make(chan struct{})
	wrapped := func(m partials) {
		defer close(finished)
		op(m)
	}
	select {
	case s.ops <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return ErrClosed
	}
	<-finished
	return nil
}

// Aggregator routes observations to its shards.
type Aggregator struct {
	kind     distribution.Kind
	k        int
	distOpts []distribution.Option
	host     string
	byKey    bool
	logger   *zap.Logger

	shards []*shard
	next   atomic.Uint64

	observations metric.Int64Counter
	merges       metric.Int64Counter
	attrs        metric.MeasurementOption

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Option configures an Aggregator.
type Option func(*config)

type config struct {
	shards   int
	distOpts []distribution.Option
	host     string
	byKey    bool
	logger   *zap.Logger
	meter    metric.Meter
}

// WithShards sets the number of shards. The default is GOMAXPROCS.
func WithShards(n int) Option {
	return func(c *config) {
		c.shards = n
	}
}

// WithDistributionOptions passes options to every distribution created.
func WithDistributionOptions(opts ...distribution.Option) Option {
	return func(c *config) {
		c.distOpts = append(c.distOpts, opts...)
	}
}

// WithHost names the writer in flushed values. The default is "localhost".
func WithHost(host string) Option {
	return func(c *config) {
		c.host = host
	}
}

// WithKeyAffinity sends all values of a key to the same shard instead of
// spreading them round robin.
func WithKeyAffinity() Option {
	return func(c *config) {
		c.byKey = true
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMeter records counters on meter instead of a no-op meter.
func WithMeter(meter metric.Meter) Option {
	return func(c *config) {
		c.meter = meter
	}
}

// New starts an Aggregator whose distributions have the given kind and
// resolution k.
func New(kind distribution.Kind, k int, opts ...Option) (*Aggregator, error) {
	c := config{
		shards: runtime.GOMAXPROCS(0),
		host:   "localhost",
		logger: zap.NewNop(),
		meter:  noop.NewMeterProvider().Meter(meterName),
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.shards < 1 {
		return nil, errors.Errorf("shards must be positive, got %d", c.shards)
	}
	// fail now rather than on the first observation
	probe, err := distribution.New(kind, k, c.distOpts...)
	if err != nil {
		return nil, err
	}

	observations, err := c.meter.Int64Counter("distribution.observations",
		metric.WithDescription("values added to distributions"))
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	merges, err := c.meter.Int64Counter("distribution.merges",
		metric.WithDescription("pairwise distribution merges"))
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}

	a := &Aggregator{
		kind:         kind,
		k:            k,
		distOpts:     c.distOpts,
		host:         c.host,
		byKey:        c.byKey,
		logger:       c.logger,
		shards:       make([]*shard, c.shards),
		observations: observations,
		merges:       merges,
		attrs: metric.WithAttributes(
			attribute.String("kind", kind.String()),
			attribute.String("sketch", probe.SketchKind().String()),
		),
		done: make(chan struct{}),
	}
	for i := range a.shards {
		a.shards[i] = &shard{ops: make(chan func(partials))}
		a.wg.Add(1)
		go a.shards[i].run(a.done, &a.wg)
	}
	a.logger.Debug("aggregator started",
		zap.Stringer("kind", kind), zap.Int("k", k), zap.Int("shards", c.shards))
	return a, nil
}

func (a *Aggregator) route(key string) *shard {
	if a.byKey {
		return a.shards[xxhash.Sum64String(key)%uint64(len(a.shards))]
	}
	return a.shards[(a.next.Add(1)-1)%uint64(len(a.shards))]
}

// Observe adds v to the distribution of key.
func (a *Aggregator) Observe(ctx context.Context, key string, v float64) error {
	var err error
	if e := a.route(key).do(ctx, a.done, func(m partials) {
		d, ok := m[key]
		if !ok {
			if d, err = distribution.New(a.kind, a.k, a.distOpts...); err != nil {
				return
			}
			m[key] = d
		}
		err = d.Add(v)
	}); e != nil {
		return e
	}
	if err != nil {
		return errors.Wrapf(err, "observe %q", key)
	}
	a.observations.Add(ctx, 1, a.attrs)
	return nil
}

// Snapshot returns one merged copy of every key's distribution. The
// aggregator keeps accumulating.
func (a *Aggregator) Snapshot(ctx context.Context) (map[string]distribution.Distribution, error) {
	parts := map[string][]distribution.Distribution{}
	for _, s := range a.shards {
		var err error
		if e := s.do(ctx, a.done, func(m partials) {
			for key, d := range m {
				var c distribution.Distribution
				if c, err = d.Clone(); err != nil {
					err = errors.Wrapf(err, "clone %q", key)
					return
				}
				parts[key] = append(parts[key], c)
			}
		}); e != nil {
			return nil, e
		}
		if err != nil {
			return nil, err
		}
	}

	out := make(map[string]distribution.Distribution, len(parts))
	for key, ds := range parts {
		merged, err := a.mergeAll(ctx, ds)
		if err != nil {
			return nil, errors.Wrapf(err, "merge %q", key)
		}
		out[key] = merged
	}
	return out, nil
}

// Reset drops every accumulated distribution.
func (a *Aggregator) Reset(ctx context.Context) error {
	for _, s := range a.shards {
		if err := s.do(ctx, a.done, func(m partials) { clear(m) }); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) mergeAll(ctx context.Context, ds []distribution.Distribution) (distribution.Distribution, error) {
	merged, err := MergeAll(ds)
	if err != nil {
		return nil, err
	}
	if len(ds) > 1 {
		a.merges.Add(ctx, int64(len(ds)-1), a.attrs)
	}
	return merged, nil
}

// Flush writes a snapshot of every key to st as one batch. Keys become
// column names of stream within timestampBin.
func (a *Aggregator) Flush(ctx context.Context, st store.Store, stream string, timestampBin int64) error {
	snapshot, err := a.Snapshot(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	b := store.NewBatch()
	var errs error
	for column, d := range snapshot {
		k, err := store.NewKey(timestampBin, stream, column, distribution.TypeTag(d.Kind(), d.SketchKind()))
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		data, err := d.MarshalBinary()
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "marshal %q", column))
			continue
		}
		b.Add(k, store.Value{HostID: a.host, ComputeTimestamp: now, Data: data})
	}
	if b.Len() > 0 {
		errs = multierr.Append(errs, st.PutBatch(ctx, b))
	}
	if errs != nil {
		a.logger.Warn("flush incomplete", zap.String("stream", stream), zap.Int64("bin", timestampBin), zap.Error(errs))
		return errs
	}
	a.logger.Debug("flushed", zap.String("stream", stream), zap.Int64("bin", timestampBin), zap.Int("keys", b.Len()))
	return nil
}

// Close stops the shards. Distributions not flushed are lost.
func (a *Aggregator) Close() error {
	a.closeOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
	})
	return nil
}

// MergeAll merges ds pairwise in a balanced tree, so rounding error grows
// with the depth of the tree rather than with len(ds).
func MergeAll(ds []distribution.Distribution) (distribution.Distribution, error) {
	switch len(ds) {
	case 0:
		return nil, errors.New("nothing to merge")
	case 1:
		return ds[0], nil
	}
	level := ds
	for len(level) > 1 {
		next := make([]distribution.Distribution, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			merged, err := level[i].Merge(level[i+1])
			if err != nil {
				return nil, err
			}
			next = append(next, merged)
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0], nil
}

// Load merges every value stored under k. The key's DataType selects the
// decoder.
func Load(ctx context.Context, st store.Store, k store.Key, opts ...distribution.Option) (distribution.Distribution, error) {
	values, err := st.Get(ctx, k)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.Wrapf(ErrNoValues, "%s", k)
	}
	kind, sketch := distribution.SplitTypeTag(k.DataType)
	ds := make([]distribution.Distribution, 0, len(values))
	var errs error
	for _, v := range values {
		d, err := distribution.Unmarshal(kind, sketch, v.Data, opts...)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "value from host %s", v.HostID))
			continue
		}
		ds = append(ds, d)
	}
	if errs != nil {
		return nil, errs
	}
	return MergeAll(ds)
}
