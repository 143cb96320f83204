package gojareqbridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja_nodejs/eventloop"
	reqbridge "github.com/joeycumines/go-reqbridge"
	"github.com/joeycumines/logiface"
)

// DefaultPollInterval is the interval at which outcomes are drained, while
// requests are pending.
const DefaultPollInterval = time.Millisecond

// moduleOptions holds configuration for a [Module] instance.
type moduleOptions struct {
	loop           *eventloop.EventLoop
	logger         *logiface.Logger[logiface.Event]
	dispatcherOpts []reqbridge.Option
	pollInterval   time.Duration
}

// Option configures a [Module] instance. Options are applied during
// module construction.
type Option interface {
	applyOption(*moduleOptions) error
}

// optionFunc implements [Option] via a closure.
type optionFunc struct {
	fn func(*moduleOptions) error
}

func (o *optionFunc) applyOption(opts *moduleOptions) error {
	return o.fn(opts)
}

// WithLoop configures the event loop running the [goja.Runtime]. This
// option is required; passing nil returns an error during module
// construction.
func WithLoop(loop *eventloop.EventLoop) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		if loop == nil {
			return errors.New("gojareqbridge: loop must not be nil")
		}
		opts.loop = loop
		return nil
	}}
}

// WithPollInterval overrides [DefaultPollInterval].
func WithPollInterval(interval time.Duration) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		if interval <= 0 {
			return fmt.Errorf("gojareqbridge: poll interval must be positive: %s", interval)
		}
		opts.pollInterval = interval
		return nil
	}}
}

// WithDispatcherOptions configures the underlying [reqbridge.Dispatcher].
// May be specified multiple times, options accumulate.
func WithDispatcherOptions(opts ...reqbridge.Option) Option {
	return &optionFunc{fn: func(o *moduleOptions) error {
		o.dispatcherOpts = append(o.dispatcherOpts, opts...)
		return nil
	}}
}

// WithLogger configures the logger, which is also passed to the
// dispatcher, unless overridden via [WithDispatcherOptions].
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		opts.logger = logger
		return nil
	}}
}

// resolveOptions applies the given options to a default [moduleOptions]
// and validates that all required fields are set.
func resolveOptions(opts []Option) (*moduleOptions, error) {
	cfg := &moduleOptions{
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.loop == nil {
		return nil, errors.New("gojareqbridge: loop is required (use WithLoop)")
	}
	return cfg, nil
}
