package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type Option func(*Options)

type Options struct {
	Codec      Codec
	Logger     *zap.Logger
	AsyncLimit int
	Metrics    *Metrics
}

// defaultAsyncLimit bounds how many asynchronous operations and handler
// dispatches may run at once.
const defaultAsyncLimit = 256

func defaultOptions() Options {
	return Options{
		Codec:      JSONCodec{},
		Logger:     zap.NewNop(),
		AsyncLimit: defaultAsyncLimit,
	}
}

// WithCodec replaces the default JSON codec.
func WithCodec(c Codec) Option {
	return func(o *Options) {
		if c != nil {
			o.Codec = c
		}
	}
}

// WithLogger sets the logger used for handler and delivery failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithAsyncLimit sets the worker pool size for *Async operations.
func WithAsyncLimit(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.AsyncLimit = n
		}
	}
}

// WithMetrics registers transport counters on the given registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *Options) {
		if reg != nil {
			o.Metrics = newMetrics(reg)
		}
	}
}
