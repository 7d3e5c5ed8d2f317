// Command demo reads newline separated numbers from stdin, accumulates them
// into a distribution and prints a JSON report of its statistics.
//
//	seq 1 1000 | demo -config distribution.yaml
package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/axiomhq/distribution"
	"github.com/axiomhq/distribution/aggregate"
	"github.com/axiomhq/distribution/internal/config"
	"github.com/axiomhq/distribution/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	debug := flag.Bool("debug", false, "log at debug level to stderr")
	flag.Parse()

	var (
		logger *zap.Logger
		err    error
	)
	if *debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, logger); err != nil {
		logger.Error("demo failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, logger *zap.Logger) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	kind, _ := cfg.DistributionKind()

	agg, err := aggregate.New(kind, cfg.K,
		aggregate.WithShards(cfg.Shards),
		aggregate.WithHost(cfg.Host),
		aggregate.WithLogger(logger),
		aggregate.WithDistributionOptions(cfg.DistributionOptions()...),
	)
	if err != nil {
		return err
	}
	defer func() { _ = agg.Close() }()

	if err := consume(ctx, agg, cfg.Column, logger); err != nil {
		return err
	}

	d, err := result(ctx, cfg, agg, logger)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(distribution.Summarize(d, cfg.Percentiles), "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	_, err = os.Stdout.Write(append(out, '\n'))
	return err
}

func consume(ctx context.Context, agg *aggregate.Aggregator, column string, logger *zap.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			logger.Warn("skipping line", zap.Int("line", line), zap.String("text", text))
			continue
		}
		if err := agg.Observe(ctx, column, v); err != nil {
			if ctx.Err() != nil {
				return err
			}
			logger.Warn("skipping value", zap.Int("line", line), zap.Error(err))
		}
	}
	return errors.Wrap(scanner.Err(), "read stdin")
}

// result returns the merged distribution, after a round trip through the
// configured store if there is one.
func result(ctx context.Context, cfg config.Config, agg *aggregate.Aggregator, logger *zap.Logger) (distribution.Distribution, error) {
	kind, sketch := cfg.DistributionKind()
	st, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	if st == nil {
		snapshot, err := agg.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		if d, ok := snapshot[cfg.Column]; ok {
			return d, nil
		}
		return distribution.New(kind, cfg.K, cfg.DistributionOptions()...)
	}
	defer closeStore()

	bin := time.Now().Truncate(time.Hour).Unix()
	if err := agg.Flush(ctx, st, cfg.Stream, bin); err != nil {
		return nil, err
	}
	key, err := store.NewKey(bin, cfg.Stream, cfg.Column, distribution.TypeTag(kind, sketch))
	if err != nil {
		return nil, err
	}
	d, err := aggregate.Load(ctx, st, key, cfg.DistributionOptions()...)
	if errors.Is(err, aggregate.ErrNoValues) {
		return distribution.New(kind, cfg.K, cfg.DistributionOptions()...)
	}
	return d, err
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.Type {
	case config.StoreMemory:
		return store.NewMemory(cfg.TTL, logger), func() {}, nil
	case config.StoreRedis:
		r, err := store.NewRedis(ctx, cfg.Addr, cfg.DB, store.WithTTL(cfg.TTL), store.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	}
	return nil, func() {}, nil
}
