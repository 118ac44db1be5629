package app

import (
	"github.com/okian/hydropool/internal/adapters/source"
	"github.com/okian/hydropool/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore uses an already open store instead of opening the configured
// source.
func WithStore(store source.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// RunnerOption applies a configuration option to a Runner.
type RunnerOption func(*runnerSettings)

type runnerSettings struct {
	workers   int
	queueSize int
	logger    logger.Logger
}

// WithWorkers sets the number of pools built concurrently.
func WithWorkers(n int) RunnerOption {
	return func(s *runnerSettings) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueueSize bounds the number of queued pool tasks.
func WithQueueSize(n int) RunnerOption {
	return func(s *runnerSettings) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithRunnerLogger sets a custom logger for the runner.
func WithRunnerLogger(l logger.Logger) RunnerOption {
	return func(s *runnerSettings) {
		if l != nil {
			s.logger = l
		}
	}
}
