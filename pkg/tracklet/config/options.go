package config

import (
	"fmt"
	"time"
)

// Environment is the deployment environment reported to the collector.
type Environment string

// Recognized environments.
const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Defaults applied when a key is absent.
const (
	DefaultBatchSize     = 50
	DefaultFlushInterval = 30 * time.Second
	DefaultMaxRetries    = 3
	DefaultTimeout       = 10 * time.Second
	DefaultMaxQueueSize  = 10000
	DefaultQueuePath     = "tracklet-queue.db"
)

// Options is the resolved, validated engine configuration.
type Options struct {
	// APIKey authenticates against the collector and seeds payload
	// key derivation.
	APIKey string

	// Endpoint is the collector URL.
	Endpoint string

	// Environment is development, staging, or production.
	Environment Environment

	// Encryption is aes256, aes128, or none.
	Encryption string

	// Compression is gzip, deflate, or none.
	Compression string

	// BatchSize is the queue depth that triggers a flush.
	BatchSize int

	// FlushInterval triggers a flush when no size trigger fired.
	FlushInterval time.Duration

	// MaxRetries bounds retries per batch; exceeding it converts a
	// retryable failure into a terminal one.
	MaxRetries int

	// Timeout bounds each delivery attempt.
	Timeout time.Duration

	// MaxQueueSize bounds the queue; overflow drops the oldest event.
	MaxQueueSize int

	// AutoStartSession starts a session at engine construction.
	AutoStartSession bool

	// QueuePath is the on-disk queue location. ":memory:" selects
	// the ephemeral store.
	QueuePath string
}

// Resolve extracts recognized keys from a Config, applies defaults,
// and validates enums and ranges.
func Resolve(c Config) (Options, error) {
	opts := Options{
		APIKey:           c.String("api_key", ""),
		Endpoint:         c.String("endpoint", ""),
		Environment:      Environment(c.String("environment", string(EnvDevelopment))),
		Encryption:       c.String("encryption", "none"),
		Compression:      c.String("compression", "gzip"),
		BatchSize:        c.Int("batch_size", DefaultBatchSize),
		FlushInterval:    c.Duration("flush_interval", DefaultFlushInterval),
		MaxRetries:       c.Int("max_retries", DefaultMaxRetries),
		Timeout:          c.Duration("timeout", DefaultTimeout),
		MaxQueueSize:     c.Int("max_queue_size", DefaultMaxQueueSize),
		AutoStartSession: c.Bool("auto_start_session", false),
		QueuePath:        c.String("queue_path", DefaultQueuePath),
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks enum values and numeric ranges.
func (o Options) Validate() error {
	switch o.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("unknown environment %q", o.Environment)
	}
	switch o.Encryption {
	case "aes256", "aes128", "none":
	default:
		return fmt.Errorf("unknown encryption %q", o.Encryption)
	}
	switch o.Compression {
	case "gzip", "deflate", "none":
	default:
		return fmt.Errorf("unknown compression %q", o.Compression)
	}
	if o.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", o.BatchSize)
	}
	if o.MaxQueueSize <= 0 {
		return fmt.Errorf("max_queue_size must be positive, got %d", o.MaxQueueSize)
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", o.MaxRetries)
	}
	if o.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive, got %s", o.FlushInterval)
	}
	return nil
}
