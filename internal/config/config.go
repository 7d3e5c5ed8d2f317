// Package config loads the YAML configuration of the distribution CLI.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/axiomhq/distribution"
)

// Store types.
const (
	StoreNone   = "none"
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type StoreConfig struct {
	Type string
	Addr string
	DB   int
	// TTL of stored values, zero keeps them forever.
	TTL time.Duration
}

type Config struct {
	Kind          string
	Sketch        string
	K             int
	Shards        int
	Percentiles   []float64
	OverflowCheck bool
	Store         StoreConfig
	Stream        string
	Column        string
	Host          string
}

// Default returns the configuration used when no file is given.
func Default() Config {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return Config{
		Kind:        distribution.Double.String(),
		Sketch:      distribution.SketchGK.String(),
		K:           distribution.DefaultK,
		Shards:      4,
		Percentiles: append([]float64(nil), distribution.DefaultPercentiles...),
		Store:       StoreConfig{Type: StoreNone},
		Stream:      "default",
		Column:      "value",
		Host:        host,
	}
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	c, err := Parse(b)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

// Parse decodes YAML on top of Default and validates the result. Scalars
// may be quoted; a bare number of seconds is accepted for durations.
func Parse(b []byte) (Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return Config{}, errors.Wrap(err, "decode yaml")
	}
	c := Default()
	var errs error
	for key, v := range raw {
		var err error
		switch key {
		case "kind":
			c.Kind, err = cast.ToStringE(v)
		case "sketch":
			c.Sketch, err = cast.ToStringE(v)
		case "k":
			c.K, err = cast.ToIntE(v)
		case "shards":
			c.Shards, err = cast.ToIntE(v)
		case "percentiles":
			c.Percentiles, err = toFloats(v)
		case "overflowCheck":
			c.OverflowCheck, err = cast.ToBoolE(v)
		case "store":
			err = parseStore(&c.Store, v)
		case "stream":
			c.Stream, err = cast.ToStringE(v)
		case "column":
			c.Column, err = cast.ToStringE(v)
		case "host":
			c.Host, err = cast.ToStringE(v)
		default:
			err = errors.New("unknown key")
		}
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "%s", key))
		}
	}
	if errs != nil {
		return Config{}, errs
	}
	return c, c.Validate()
}

func parseStore(s *StoreConfig, v any) error {
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return err
	}
	var errs error
	for key, v := range m {
		var err error
		switch key {
		case "type":
			s.Type, err = cast.ToStringE(v)
		case "addr":
			s.Addr, err = cast.ToStringE(v)
		case "db":
			s.DB, err = cast.ToIntE(v)
		case "ttl":
			s.TTL, err = toDuration(v)
		default:
			err = errors.New("unknown key")
		}
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "%s", key))
		}
	}
	return errs
}

func toFloats(v any) ([]float64, error) {
	items, err := cast.ToSliceE(v)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(items))
	for i, item := range items {
		if out[i], err = cast.ToFloat64E(item); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func toDuration(v any) (time.Duration, error) {
	if seconds, err := cast.ToFloat64E(v); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}
	return cast.ToDurationE(v)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs error
	if _, err := distribution.ParseKind(c.Kind); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := distribution.ParseSketchKind(c.Sketch); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.K < 2 || c.K > distribution.MaxK {
		errs = multierr.Append(errs, errors.Wrapf(distribution.ErrInvalidResolution, "k=%d", c.K))
	}
	if c.Shards < 1 {
		errs = multierr.Append(errs, errors.Errorf("shards must be positive, got %d", c.Shards))
	}
	for _, p := range c.Percentiles {
		if p < 0 || p > 100 {
			errs = multierr.Append(errs, errors.Errorf("percentile %v out of [0, 100]", p))
		}
	}
	switch c.Store.Type {
	case StoreNone, StoreMemory:
	case StoreRedis:
		if c.Store.Addr == "" {
			errs = multierr.Append(errs, errors.New("redis store needs an addr"))
		}
	default:
		errs = multierr.Append(errs, errors.Errorf("unknown store type %q", c.Store.Type))
	}
	if c.Store.TTL < 0 {
		errs = multierr.Append(errs, errors.Errorf("negative store ttl %s", c.Store.TTL))
	}
	if c.Stream == "" || c.Column == "" || c.Host == "" {
		errs = multierr.Append(errs, errors.New("stream, column and host must not be empty"))
	}
	return errs
}

// DistributionKind returns the parsed kind and sketch. Call it on a
// validated Config.
func (c Config) DistributionKind() (distribution.Kind, distribution.SketchKind) {
	kind, _ := distribution.ParseKind(c.Kind)
	sketch, _ := distribution.ParseSketchKind(c.Sketch)
	return kind, sketch
}

// DistributionOptions returns the factory options the Config asks for.
func (c Config) DistributionOptions() []distribution.Option {
	_, sketch := c.DistributionKind()
	opts := []distribution.Option{distribution.WithSketch(sketch)}
	if c.OverflowCheck {
		opts = append(opts, distribution.WithOverflowCheck())
	}
	return opts
}
