// Package app wires configuration, the data source and the pooling engine
// into one evaluation service.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/hydropool/internal/adapters/source"
	"github.com/okian/hydropool/internal/config"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/domain/timewindow"
	"github.com/okian/hydropool/internal/domain/types"
	"github.com/okian/hydropool/internal/events"
	"github.com/okian/hydropool/internal/factory"
	"github.com/okian/hydropool/internal/upscale"
	"github.com/okian/hydropool/pkg/logger"
	"github.com/okian/hydropool/pkg/metrics"
)

// Evaluation outcomes recorded in metrics.
const (
	outcomeSuccess = "success"
	outcomePartial = "partial"
	outcomeFailure = "failure"
)

// Service runs evaluations against one source and remembers the last
// summary.
type Service struct {
	cfg   *config.Config
	store source.Store
	owned bool

	mu   sync.RWMutex
	last *types.Summary

	logger logger.Logger
}

// New constructs a Service. The source is not opened until Open.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		logger: logger.Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the configured source unless a store was provided.
func (s *Service) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		return nil
	}
	store, err := OpenSource(ctx, s.cfg.Source)
	if err != nil {
		return err
	}
	s.store, s.owned = store, true
	s.logger.Info(ctx, "source opened", logger.String("kind", s.cfg.Source.Kind))
	return nil
}

// Close closes a source opened by the service.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil || !s.owned {
		return nil
	}
	err := s.store.Close()
	s.store, s.owned = nil, false
	return err
}

// Evaluate runs one evaluation of the configured declaration. Pool failures
// are reported in the summary; the error covers failures before any pool is
// built.
func (s *Service) Evaluate(ctx context.Context) (types.Summary, error) {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return types.Summary{}, ErrNotOpen
	}

	start := time.Now()
	summary, err := s.evaluate(ctx, store)
	summary.StartedAt, summary.FinishedAt = start, time.Now()
	seconds := summary.FinishedAt.Sub(start).Seconds()
	if err != nil {
		metrics.RecordEvaluation(outcomeFailure, seconds)
		return summary, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}

	outcome := outcomeSuccess
	if summary.Failures() > 0 {
		outcome = outcomePartial
	}
	metrics.RecordEvaluation(outcome, seconds)

	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()

	s.logger.Info(ctx, "evaluation finished",
		logger.String("evaluation", summary.EvaluationID),
		logger.Int("pools", len(summary.Pools)),
		logger.Int("failed", summary.Failures()),
		logger.Int("events", summary.Events),
		logger.Duration("elapsed", summary.FinishedAt.Sub(start)))
	return summary, nil
}

func (s *Service) evaluate(ctx context.Context, store source.Store) (types.Summary, error) {
	eval := s.cfg.Evaluation
	id := uuid.NewString()
	summary := types.Summary{EvaluationID: id}

	vars := source.VariablesOf(eval)
	sourceOpts := []source.Option{
		source.WithBreaker(s.cfg.Breaker.Settings()),
		source.WithLogger(s.logger.Named("source")),
	}
	singles := source.NewFactory(store, vars, sourceOpts...)

	factoryOpts := []factory.Option{
		factory.WithEvaluationID(id),
		factory.WithLogger(s.logger.Named("factory")),
	}
	if s.cfg.StrictUpscaling {
		factoryOpts = append(factoryOpts, factory.WithStrictUpscaling())
	}
	if eval.EventDetection != nil {
		windows, err := s.detect(ctx, singles)
		if err != nil {
			return summary, err
		}
		summary.Events = len(windows)
		factoryOpts = append(factoryOpts, factory.WithEventWindows(windows))
	}

	f, err := factory.New(eval, factoryOpts...)
	if err != nil {
		return summary, err
	}
	requests := f.GetPoolRequests()
	runnerOpts := []RunnerOption{
		WithWorkers(s.cfg.WorkerCount),
		WithQueueSize(s.cfg.QueueSize),
		WithRunnerLogger(s.logger.Named("runner")),
	}

	if eval.Ensemble {
		bindings, err := f.EnsemblePools(requests, source.NewEnsembleFactory(store, vars, sourceOpts...))
		if err != nil {
			return summary, err
		}
		summary.Pools = summarize(NewRunner[timeseries.Ensemble](runnerOpts...).Run(ctx, bindings))
		return summary, nil
	}
	bindings, err := f.SingleValuedPools(requests, singles)
	if err != nil {
		return summary, err
	}
	summary.Pools = summarize(NewRunner[float64](runnerOpts...).Run(ctx, bindings))
	return summary, nil
}

func (s *Service) detect(ctx context.Context, singles *source.Factory) ([]timewindow.TimeWindow, error) {
	eval := s.cfg.Evaluation
	detector, err := events.NewDetector(*eval.EventDetection)
	if err != nil {
		return nil, err
	}
	upscaleOpts := []upscale.Option{upscale.WithLogger(s.logger.Named("upscale"))}
	if s.cfg.StrictUpscaling {
		upscaleOpts = append(upscaleOpts, upscale.WithStrict())
	}
	gen, err := events.NewGenerator(eval, detector,
		events.WithUpscaler(upscale.NewSingleValued(upscaleOpts...)),
		events.WithLogger(s.logger.Named("events")))
	if err != nil {
		return nil, err
	}
	groups, err := eval.Groups()
	if err != nil {
		return nil, err
	}
	return gen.Generate(ctx, singles, groups)
}

func summarize[R any](outcomes []Outcome[R]) []types.PoolSummary {
	out := make([]types.PoolSummary, len(outcomes))
	for i, o := range outcomes {
		meta := o.Request.Metadata
		ps := types.PoolSummary{
			ID:     o.Request.ID,
			Group:  meta.Group.Name,
			Window: types.WindowOf(meta.Window),
		}
		if o.Err != nil {
			ps.Error = o.Err.Error()
		} else {
			ps.Series = len(o.Pool.Data())
			ps.Pairs = o.Pool.PairCount()
			ps.BaselinePairs = o.Pool.BaselinePairCount()
		}
		out[i] = ps
	}
	return out
}

// LastSummary returns the summary of the last finished evaluation.
func (s *Service) LastSummary() (types.Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return types.Summary{}, false
	}
	return *s.last, true
}

// Ready reports whether the source is open.
func (s *Service) Ready(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return ErrNotOpen
	}
	return nil
}
