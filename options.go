package distribution

// Option configures New and the decoders.
type Option func(*options)

type options struct {
	sketch        SketchKind
	overflowCheck bool
}

func applyOptions(opts []Option) options {
	o := options{sketch: SketchGK}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithSketch selects the backing quantile sketch. The default is SketchGK.
func WithSketch(kind SketchKind) Option {
	return func(o *options) {
		o.sketch = kind
	}
}

// WithOverflowCheck makes Add and Merge fail with ErrOverflow or
// ErrUnderflow once an accumulator term left the representable range.
// It is off by default.
func WithOverflowCheck() Option {
	return func(o *options) {
		o.overflowCheck = true
	}
}
