package redis

import (
	"time"

	"go.uber.org/zap"
)

const (
	defaultAddr           = "localhost:6379"
	defaultPrefix         = "asgi"
	defaultExpiry         = 60 * time.Second
	defaultGroupExpiry    = 24 * time.Hour
	defaultCapacity       = 100
	defaultConnectTimeout = 5 * time.Second
	defaultPollTimeout    = time.Second
)

// Option configures a Layer.
type Option func(*options)

type options struct {
	lg          *zap.Logger
	prefix      string
	expiry      time.Duration
	groupExpiry time.Duration
	capacity    int64
	pollTimeout time.Duration
	ownsClient  bool
	now         func() time.Time
}

func defaultOptions() *options {
	return &options{
		lg:          zap.L(),
		prefix:      defaultPrefix,
		expiry:      defaultExpiry,
		groupExpiry: defaultGroupExpiry,
		capacity:    defaultCapacity,
		pollTimeout: defaultPollTimeout,
		now:         time.Now,
	}
}

func WithLogger(lg *zap.Logger) Option {
	return func(o *options) {
		if lg != nil {
			o.lg = lg
		}
	}
}

// WithPrefix sets the namespace of every key the layer writes. Default: "asgi".
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithExpiry sets how long an undelivered message survives in an inbox. Default: 60s.
func WithExpiry(d time.Duration) Option {
	return func(o *options) {
		if d >= time.Second {
			o.expiry = d
		}
	}
}

// WithGroupExpiry sets how long a membership lasts without being renewed. Default: 24h.
func WithGroupExpiry(d time.Duration) Option {
	return func(o *options) {
		if d >= time.Second {
			o.groupExpiry = d
		}
	}
}

// WithCapacity bounds the number of queued messages per inbox. Default: 100.
func WithCapacity(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithPollTimeout sets the BLPOP timeout, which bounds how late a receiver
// notices cancellation. Redis counts whole seconds. Default: 1s.
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollTimeout = d
		}
	}
}

// WithOwnedClient makes Close close the redis client.
func WithOwnedClient() Option {
	return func(o *options) {
		o.ownsClient = true
	}
}

// WithNowFunc overrides the time source (for testing).
func WithNowFunc(fn func() time.Time) Option {
	return func(o *options) {
		if fn != nil {
			o.now = fn
		}
	}
}
