package rediskv

import (
	"time"

	"github.com/raniellyferreira/redis-inmemory-kv/lua"
	"github.com/raniellyferreira/redis-inmemory-kv/server"
)

// config holds the configuration for a Store
type config struct {
	// RESP server settings
	addr          string
	password      string
	readTimeout   time.Duration
	scriptTimeout time.Duration
	enableServer  bool

	// HTTP admin settings
	httpAddr    string
	corsOrigins []string

	// Storage settings
	shardCount int

	// Observability
	logger  Logger
	metrics MetricsCollector
}

// defaultConfig returns a configuration with sensible defaults
func defaultConfig() *config {
	return &config{
		addr:          ":6379",
		readTimeout:   server.DefaultReadTimeout,
		scriptTimeout: lua.DefaultScriptTimeout,
		enableServer:  true,
		shardCount:    64,
		logger:        &defaultLogger{},
	}
}

// Option represents a configuration option for a Store
type Option func(*config) error

// WithAddr sets the address the RESP server listens on
//
// Example:
//
//	WithAddr(":6379")
//	WithAddr("127.0.0.1:0") // random port, see Store.Addr
func WithAddr(addr string) Option {
	return func(c *config) error {
		if addr == "" {
			return &ConnectionError{
				Addr: addr,
				Err:  ErrInvalidConfig,
			}
		}
		c.addr = addr
		return nil
	}
}

// WithPassword requires clients to AUTH with the given password
func WithPassword(password string) Option {
	return func(c *config) error {
		c.password = password
		return nil
	}
}

// WithShardCount sets the number of storage shards.
// The number is rounded up to the next power of 2.
func WithShardCount(count int) Option {
	return func(c *config) error {
		if count <= 0 {
			return ErrInvalidConfig
		}
		c.shardCount = count
		return nil
	}
}

// WithReadTimeout sets how long an idle client connection is kept open.
// Zero disables the timeout.
//
// Example:
//
//	WithReadTimeout(5 * time.Minute)
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.readTimeout = timeout
		return nil
	}
}

// WithScriptTimeout bounds how long a single EVAL or EVALSHA may run.
// Zero disables the limit.
//
// Example:
//
//	WithScriptTimeout(time.Second)
func WithScriptTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.scriptTimeout = timeout
		return nil
	}
}

// WithHTTPAddr enables the HTTP admin API on the given address
//
// Example:
//
//	WithHTTPAddr(":8080")
func WithHTTPAddr(addr string) Option {
	return func(c *config) error {
		if addr == "" {
			return &ConnectionError{
				Addr: addr,
				Err:  ErrInvalidConfig,
			}
		}
		c.httpAddr = addr
		return nil
	}
}

// WithCORSOrigins restricts the origins allowed to call the HTTP admin API.
// By default any origin is allowed.
func WithCORSOrigins(origins ...string) Option {
	return func(c *config) error {
		c.corsOrigins = append([]string(nil), origins...)
		return nil
	}
}

// WithLogger sets a custom logger for the store
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return ErrInvalidConfig
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics enables metrics collection with the provided collector
func WithMetrics(collector MetricsCollector) Option {
	return func(c *config) error {
		c.metrics = collector
		return nil
	}
}

// WithServerEnabled controls whether to start the RESP server
//
// Example:
//
//	WithServerEnabled(false) // Disable server, use only as library
func WithServerEnabled(enabled bool) Option {
	return func(c *config) error {
		c.enableServer = enabled
		return nil
	}
}
