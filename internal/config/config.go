// Package config defines process configuration and the evaluation
// declaration it carries.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"context"
	"runtime"
	"time"

	"github.com/okian/hydropool/internal/domain/declaration"
	"github.com/okian/hydropool/internal/retrieval"
	"github.com/okian/hydropool/pkg/metrics"
)

// Source kinds.
const (
	SourceMemory     = "memory"
	SourceSQLite     = "sqlite"
	SourcePostgres   = "postgres"
	SourceClickHouse = "clickhouse"
	SourceArchive    = "archive"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// Addr configures the status server listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// QueueSize bounds the pool task queue.
	QueueSize int `koanf:"queue_size" validate:"gte=1"`

	// WorkerCount sets the number of pool workers.
	WorkerCount int `koanf:"worker_count" validate:"gte=1"`

	// RunOnce exits after one evaluation instead of serving status.
	RunOnce bool `koanf:"run_once"`

	// StrictUpscaling fails pools whose upscaling buckets are incomplete.
	StrictUpscaling bool `koanf:"strict_upscaling"`

	Source  Source  `koanf:"source"`
	Breaker Breaker `koanf:"breaker"`
	Metrics Metrics `koanf:"metrics"`

	Evaluation declaration.Evaluation `koanf:"evaluation"`
}

// Source selects the store time-series data is read from.
type Source struct {
	Kind string `koanf:"kind" validate:"oneof=memory sqlite postgres clickhouse archive"`
	// DSN addresses postgres and clickhouse.
	DSN string `koanf:"dsn"`
	// Path locates sqlite databases and archives.
	Path string `koanf:"path"`
}

// Breaker tunes the circuit breakers guarding the source.
type Breaker struct {
	MaxRequests         uint32        `koanf:"max_requests" validate:"gte=1"`
	Interval            time.Duration `koanf:"interval" validate:"gte=0"`
	Timeout             time.Duration `koanf:"timeout" validate:"gt=0"`
	ConsecutiveFailures uint32        `koanf:"consecutive_failures" validate:"gte=1"`
}

// Settings converts the configuration for the retrieval breakers.
func (b Breaker) Settings() retrieval.BreakerSettings {
	return retrieval.BreakerSettings{
		MaxRequests:         b.MaxRequests,
		Interval:            b.Interval,
		Timeout:             b.Timeout,
		ConsecutiveFailures: b.ConsecutiveFailures,
	}
}

// Metrics shapes the Prometheus collectors served on /metrics.
type Metrics struct {
	Enabled   bool              `koanf:"enabled"`
	Namespace string            `koanf:"namespace" validate:"required"`
	Labels    map[string]string `koanf:"labels"`
}

// Options converts the configuration for metrics.Init.
func (m Metrics) Options() []metrics.Option {
	return []metrics.Option{
		metrics.WithMetricsEnabled(m.Enabled),
		metrics.WithNamespace(m.Namespace),
		metrics.WithCustomLabels(m.Labels),
	}
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	breaker := retrieval.DefaultBreakerSettings()
	return &Config{
		LogLevel:    "info",
		Addr:        ":9080",
		QueueSize:   1024,
		WorkerCount: runtime.NumCPU() * 2,
		Source:      Source{Kind: SourceMemory},
		Metrics:     Metrics{Enabled: true, Namespace: "hydropool"},
		Breaker: Breaker{
			MaxRequests:         breaker.MaxRequests,
			Interval:            breaker.Interval,
			Timeout:             breaker.Timeout,
			ConsecutiveFailures: breaker.ConsecutiveFailures,
		},
	}
}
