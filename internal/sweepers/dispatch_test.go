package sweepers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/digitalservices/queue-service/internal/dispatch"
)

type countingRunner struct {
	runs     atomic.Int32
	nexts    atomic.Int32
	priority atomic.Bool
	err      error
}

func (r *countingRunner) Run(_ context.Context, priority bool) (*dispatch.BatchResult, error) {
	r.runs.Add(1)
	if priority {
		r.priority.Store(true)
	}
	if r.err != nil {
		return nil, r.err
	}
	return &dispatch.BatchResult{BatchID: "b"}, nil
}

func (r *countingRunner) RunNext(context.Context) (*dispatch.BatchResult, error) {
	r.nexts.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &dispatch.BatchResult{BatchID: "n", Results: []dispatch.EntryResult{{QueueID: 1}}}, nil
}

func TestDispatchSweeperTriggersBothPasses(t *testing.T) {
	logger := zerolog.Nop()
	runner := &countingRunner{}
	s := NewDispatchSweeper(runner, &logger, 10*time.Millisecond, 15*time.Millisecond)

	s.Start(context.Background())
	assert.Eventually(t, func() bool {
		return runner.runs.Load() >= 2 && runner.nexts.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	runs := runner.runs.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, runs, runner.runs.Load(), "no passes after Stop")
	assert.False(t, runner.priority.Load())
}

func TestDispatchSweeperKeepsGoingOnError(t *testing.T) {
	logger := zerolog.Nop()
	runner := &countingRunner{err: errors.New("claim failed")}
	s := NewDispatchSweeper(runner, &logger, 5*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.Eventually(t, func() bool { return runner.runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	s.Stop()

	assert.Zero(t, runner.nexts.Load(), "disabled loop never runs")
}

func TestDispatchSweeperStopIsIdempotent(t *testing.T) {
	logger := zerolog.Nop()
	s := NewDispatchSweeper(&countingRunner{}, &logger, time.Hour, time.Hour)
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
