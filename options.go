package reqbridge

import (
	"crypto/tls"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// dispatcherOptions holds configuration for a [Dispatcher].
type dispatcherOptions struct {
	logger         *logiface.Logger[logiface.Event]
	transport      Transport
	client         *http.Client
	tlsConfig      *tls.Config
	limiter        *catrate.Limiter
	userAgent      string
	defaultTimeout time.Duration
	maxConcurrency int
}

// Option configures a [Dispatcher], see [New].
type Option interface {
	applyOption(*dispatcherOptions) error
}

// optionFunc implements [Option] via a closure.
type optionFunc struct {
	fn func(*dispatcherOptions) error
}

func (o *optionFunc) applyOption(opts *dispatcherOptions) error {
	return o.fn(opts)
}

// WithLogger configures structured logging. A nil logger disables logging,
// which is also the default.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionFunc{fn: func(opts *dispatcherOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithTransport replaces the default [HTTPTransport]. When set, the options
// configuring the default transport ([WithHTTPClient], [WithUserAgent] and
// [WithTLSConfig]) are ignored.
func WithTransport(transport Transport) Option {
	return &optionFunc{fn: func(opts *dispatcherOptions) error {
		if transport == nil {
			return errors.New("reqbridge: transport must not be nil")
		}
		opts.transport = transport
		return nil
	}}
}

// WithHTTPClient configures the client used by the default transport.
func WithHTTPClient(client *http.Client) Option {
	return &optionFunc{fn: func(opts *dispatcherOptions) error {
		if client == nil {
			return errors.New("reqbridge: http client must not be nil")
		}
		opts.client = client
		return nil
	}}
}

// WithUserAgent overrides [DefaultUserAgent]. An empty value disables the
// default User-Agent header.
func WithUserAgent(userAgent string) Option {
	return &optionFunc{fn: func(opts *dispatcherOptions) error {
		opts.userAgent = userAgent
		return nil
	}}
}

// WithDefaultTimeout overrides [DefaultTimeout], for requests that don't
// specify their own.
func WithDefaultTimeout(timeout time.Duration) Option {
	return &optionFunc{fn: func(opts *dispatcherOptions) error {
		if timeout <= 0 {
			return fmt.Errorf("reqbridge: default timeout must be positive: %s", timeout)
		}
		opts.defaultTimeout = timeout
		return nil
	}}
}

// WithMaxConcurrency limits the number of in-flight requests. Zero (the
// default) means unlimited. Requests beyond the limit wait in the dispatch
// queue, Submit never blocks.
func WithMaxConcurrency(n int) Option {
	return &optionFunc{fn: func(opts *dispatcherOptions) error {
		if n < 0 {
			return fmt.Errorf("reqbridge: max concurrency must not be negative: %d", n)
		}
		opts.maxConcurrency = n
		return nil
	}}
}

// WithRateLimit applies sliding window rate limits per URL host, e.g.
// {time.Second: 5, time.Minute: 60}. Requests exceeding the limit fail
// without being sent. Rates must be positive, with longer windows allowing
// more events, but a lower effective rate. A nil or empty map disables rate
// limiting.
func WithRateLimit(rates map[time.Duration]int) Option {
	return &optionFunc{fn: func(opts *dispatcherOptions) error {
		if len(rates) == 0 {
			opts.limiter = nil
			return nil
		}
		limiter, err := newLimiter(maps.Clone(rates))
		if err != nil {
			return err
		}
		opts.limiter = limiter
		return nil
	}}
}

// WithTLSConfig configures the TLS client config of the default transport.
// If combined with [WithHTTPClient], the client's transport must be nil or
// an [*http.Transport], which will be cloned.
func WithTLSConfig(config *tls.Config) Option {
	return &optionFunc{fn: func(opts *dispatcherOptions) error {
		opts.tlsConfig = config
		return nil
	}}
}

// resolveOptions applies the given options to the defaults, building the
// default transport if none was provided.
func resolveOptions(opts []Option) (*dispatcherOptions, error) {
	cfg := &dispatcherOptions{
		userAgent:      DefaultUserAgent,
		defaultTimeout: DefaultTimeout,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.transport == nil {
		client, err := buildHTTPClient(cfg.client, cfg.tlsConfig)
		if err != nil {
			return nil, err
		}
		cfg.transport = NewHTTPTransport(client, cfg.userAgent)
	}

	return cfg, nil
}

func buildHTTPClient(client *http.Client, tlsConfig *tls.Config) (*http.Client, error) {
	if tlsConfig == nil {
		return client, nil
	}

	var base *http.Transport
	if client == nil || client.Transport == nil {
		base = http.DefaultTransport.(*http.Transport)
	} else if t, ok := client.Transport.(*http.Transport); ok {
		base = t
	} else {
		return nil, fmt.Errorf("reqbridge: tls config requires an *http.Transport, got %T", client.Transport)
	}

	transport := base.Clone()
	transport.TLSClientConfig = tlsConfig

	var c http.Client
	if client != nil {
		c = *client
	}
	c.Transport = transport
	return &c, nil
}

// newLimiter converts the panic catrate raises for invalid rates into an
// error.
func newLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	defer func() {
		if r := recover(); r != nil {
			limiter = nil
			err = fmt.Errorf("reqbridge: invalid rate limit %v: %v", rates, r)
		}
	}()
	return catrate.NewLimiter(rates), nil
}
