package sweepers

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/digitalservices/queue-service/internal/dispatch"
)

// Runner is the part of the dispatcher the sweeper drives
type Runner interface {
	Run(ctx context.Context, priority bool) (*dispatch.BatchResult, error)
	RunNext(ctx context.Context) (*dispatch.BatchResult, error)
}

// DispatchSweeper periodically triggers a dispatch run and a run-next pass
// for deployments without an external periodic caller
type DispatchSweeper struct {
	runner       Runner
	logger       *zerolog.Logger
	runInterval  time.Duration
	nextInterval time.Duration
	stopChan     chan struct{}
	stopOnce     sync.Once
	done         sync.WaitGroup
}

// NewDispatchSweeper creates a new sweeper. A non-positive interval disables
// the matching loop.
func NewDispatchSweeper(runner Runner, logger *zerolog.Logger, runInterval, nextInterval time.Duration) *DispatchSweeper {
	return &DispatchSweeper{
		runner:       runner,
		logger:       logger,
		runInterval:  runInterval,
		nextInterval: nextInterval,
		stopChan:     make(chan struct{}),
	}
}

// Start launches the loops and returns immediately
func (s *DispatchSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("run_interval", s.runInterval).
		Dur("next_interval", s.nextInterval).
		Msg("Starting dispatch sweeper")

	if s.runInterval > 0 {
		s.done.Add(1)
		go s.loop(ctx, "run", s.runInterval, func(ctx context.Context) (*dispatch.BatchResult, error) {
			return s.runner.Run(ctx, false)
		})
	}
	if s.nextInterval > 0 {
		s.done.Add(1)
		go s.loop(ctx, "run-next", s.nextInterval, s.runner.RunNext)
	}
}

// Stop signals the loops to stop and waits for an in-progress pass
func (s *DispatchSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.done.Wait()
}

func (s *DispatchSweeper) loop(ctx context.Context, kind string, interval time.Duration, pass func(context.Context) (*dispatch.BatchResult, error)) {
	defer s.done.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str("kind", kind).Msg("Dispatch sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Str("kind", kind).Msg("Dispatch sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			result, err := pass(ctx)
			if err != nil {
				s.logger.Error().Err(err).Str("kind", kind).Msg("Scheduled pass failed")
				continue
			}
			if len(result.Results) > 0 {
				s.logger.Info().
					Str("kind", kind).
					Str("batch_id", result.BatchID).
					Int("entries", len(result.Results)).
					Msg("Scheduled pass finished")
			}
		}
	}
}
