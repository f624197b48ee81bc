// Package dispatch moves queue entries from Registered to the technology
// endpoints and from ReadyForNext to the next pipeline stage.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/digitalservices/queue-service/config"
	"github.com/digitalservices/queue-service/internal/events"
	httpclient "github.com/digitalservices/queue-service/internal/http"
	"github.com/digitalservices/queue-service/internal/queue"
	"github.com/digitalservices/queue-service/internal/storage"
	"github.com/digitalservices/queue-service/internal/store"
	"github.com/digitalservices/queue-service/internal/telemetry"
)

// Response messages read by the callers of the run endpoints
const (
	MessageRunDispatched  = "Procesos enviados correctamente a ejecutar."
	MessageRunIdle        = "No hay procesos disponibles para ejecutar o el balanceador está ocupado."
	MessageNextDone       = "Procesos listos para el siguiente paso ejecutados correctamente y datos enviados."
	MessageNextIdle       = "No hay procesos listos para el siguiente paso disponibles para ejecutar."
	MessageTechnologyIdle = "Sin procesos a procesar con la tecnología."
)

// Messages stored on compensated entries
const (
	rollbackMessagePrefix  = "Se produjo un error al procesar en Modeler: "
	rollbackMessageTimeout = "El equipo de procesamientos de Modeler no respondió en el tiempo esperado y podría estar inalcanzable."
)

// Outcome is what happened to one entry during an invocation
type Outcome string

const (
	OutcomeDispatched Outcome = "dispatched"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
	OutcomeForwarded  Outcome = "forwarded"
	// OutcomeHeld means the next stage reported a zero-byte file; the entry
	// stays ReadyForNext until it is reprocessed.
	OutcomeHeld Outcome = "held"
	// OutcomeNoNext means the entry has no next API configured.
	OutcomeNoNext Outcome = "no_next"
	// OutcomeIncomplete means download-results or the next API failed.
	OutcomeIncomplete Outcome = "incomplete"
)

// EntryResult reports one entry of a batch
type EntryResult struct {
	QueueID   int64   `json:"queueId"`
	ProcessID string  `json:"processId"`
	Outcome   Outcome `json:"outcome"`
	Error     string  `json:"error,omitempty"`
}

// BatchResult is the response of run and run-next
type BatchResult struct {
	Message string        `json:"Message"`
	BatchID string        `json:"batchId"`
	Results []EntryResult `json:"results"`
}

const defaultForwardLease = 30 * time.Minute

// Config bounds the dispatcher and names its collaborators
type Config struct {
	BatchSize           int
	MaxInFlight         int
	Concurrency         int
	TechnologyBatchSize int
	NextBatchSize       int
	// ErrorStatus is applied to compensated entries. Zero restores Registered.
	ErrorStatus        queue.Status
	ActionDs           string
	DownloadResultsURL string
	OutputURL          string
	DownloadTimeout    time.Duration
	// ForwardLease is how long a run-next claim hides an entry
	ForwardLease time.Duration
}

// ConfigFrom maps the service configuration
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		BatchSize:           cfg.Dispatch.BatchSize,
		MaxInFlight:         cfg.Dispatch.MaxInFlight,
		Concurrency:         cfg.Dispatch.Concurrency,
		TechnologyBatchSize: cfg.Dispatch.TechnologyBatchSize,
		NextBatchSize:       cfg.Dispatch.NextBatchSize,
		ErrorStatus:         queue.Status(cfg.Dispatch.ErrorStatus),
		ActionDs:            cfg.API.ActionDs,
		DownloadResultsURL:  cfg.API.DownloadResultsURL,
		OutputURL:           cfg.API.ResolveOutputURL(),
		DownloadTimeout:     cfg.API.DownloadTimeout,
		ForwardLease:        cfg.Dispatch.ForwardLease,
	}
}

// Dispatcher runs the queue. It is safe for concurrent use; overlapping
// runs are serialized by the store's claim.
type Dispatcher struct {
	store   store.StatusStore
	files   storage.Storage
	client  *httpclient.Client
	events  events.Publisher
	metrics *MetricsRecorder
	logger  *zerolog.Logger
	cfg     Config

	// outcomes tracks fired technology requests still awaiting a response
	outcomes sync.WaitGroup
}

// New creates a dispatcher. A nil publisher discards events.
func New(st store.StatusStore, files storage.Storage, client *httpclient.Client, publisher events.Publisher, logger *zerolog.Logger, cfg Config) *Dispatcher {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.ForwardLease <= 0 {
		cfg.ForwardLease = defaultForwardLease
	}
	return &Dispatcher{
		store:   st,
		files:   files,
		client:  client,
		events:  publisher,
		metrics: NewMetricsRecorder(),
		logger:  logger,
		cfg:     cfg,
	}
}

// Run claims one batch of Registered entries and fires each at its
// technology endpoint. Per-entry failures are compensated and reported in
// the results; only a failed claim returns an error.
func (d *Dispatcher) Run(ctx context.Context, priority bool) (*BatchResult, error) {
	start := time.Now()
	batchID := uuid.NewString()

	ctx, span := telemetry.Tracer().Start(ctx, "dispatch.run", trace.WithAttributes(
		attribute.String("batch.id", batchID),
		attribute.Bool("batch.priority", priority),
	))
	defer span.End()

	logger := d.logger.With().
		Str("component", "dispatcher").
		Str("batch_id", batchID).
		Bool("priority", priority).
		Logger()

	entries, err := d.store.ClaimBatch(ctx, store.ClaimOptions{
		Limit:        d.cfg.BatchSize,
		MaxInFlight:  d.cfg.MaxInFlight,
		PriorityOnly: priority,
	})
	if errors.Is(err, store.ErrBusy) {
		logger.Info().Msg("Dispatcher busy, nothing claimed")
		d.metrics.RecordBatch(kindRun, "busy", time.Since(start))
		return idle(batchID, MessageRunIdle), nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		d.metrics.RecordBatch(kindRun, "error", time.Since(start))
		return nil, fmt.Errorf("failed to claim queue entries: %w", err)
	}
	if len(entries) == 0 {
		d.metrics.RecordBatch(kindRun, "empty", time.Since(start))
		return idle(batchID, MessageRunIdle), nil
	}

	logger.Info().Int("entries", len(entries)).Msg("Dispatching claimed entries")
	span.SetAttributes(attribute.Int("batch.entries", len(entries)))

	results := d.fanOut(ctx, kindRun, entries, func(ctx context.Context, e queue.Entry) EntryResult {
		return d.dispatchEntry(ctx, batchID, e, logger)
	})

	d.metrics.RecordBatch(kindRun, "claimed", time.Since(start))
	return &BatchResult{Message: MessageRunDispatched, BatchID: batchID, Results: results}, nil
}

// fanOut runs fn for every entry with bounded concurrency. fn never fails;
// its result is the entry report.
func (d *Dispatcher) fanOut(ctx context.Context, kind string, entries []queue.Entry, fn func(context.Context, queue.Entry) EntryResult) []EntryResult {
	results := make([]EntryResult, len(entries))

	var g errgroup.Group
	if d.cfg.Concurrency > 0 {
		g.SetLimit(d.cfg.Concurrency)
	}
	for i, e := range entries {
		g.Go(func() error {
			results[i] = fn(ctx, e)
			d.metrics.RecordEntry(kind, results[i].Outcome)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Dispatcher) dispatchEntry(ctx context.Context, batchID string, e queue.Entry, logger zerolog.Logger) EntryResult {
	res := EntryResult{QueueID: e.ID, ProcessID: e.ProcessID}
	logger = logger.With().
		Int64("queue_id", e.ID).
		Str("process_id", e.ProcessID).
		Str("technology", e.Technology).
		Logger()

	// Nothing has been changed before the compare-and-set, so failures up
	// to it are reported without compensation.
	status, err := d.store.QueueStatus(ctx, e.ID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read queue status")
		return res.failed(err)
	}
	if status != queue.StatusRegistered {
		logger.Info().Stringer("status", status).Msg("Entry is no longer registered, skipping")
		res.Outcome = OutcomeSkipped
		return res
	}

	ok, err := d.store.MarkProcessing(ctx, e.ID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to mark entry processing")
		return res.failed(err)
	}
	if !ok {
		logger.Info().Msg("Entry claimed by another dispatcher, skipping")
		res.Outcome = OutcomeSkipped
		return res
	}

	touched, err := d.send(ctx, e, logger)
	if err != nil {
		logger.Error().Err(err).Int("touched_details", len(touched)).Msg("Dispatch failed")
		d.rollback(ctx, batchID, e, touched, err, logger)
		return res.failed(err)
	}

	res.Outcome = OutcomeDispatched
	if err := d.store.RecordTechnologyResponse(ctx, e.ID, queue.ResponseRequestSent); err != nil {
		// The request is already on the wire; the callback will still advance the entry.
		logger.Error().Err(err).Msg("Failed to record technology response")
		res.Error = err.Error()
	}

	ev := events.New(events.TypeDispatched, e.ProcessID)
	ev.BatchID, ev.QueueID, ev.Technology = batchID, e.ID, e.Technology
	d.publish(ctx, ev, logger)

	logger.Info().Str("endpoint", e.TechnologyEndpoint).Msg("Technology request sent")
	return res
}

// send performs the dispatch steps that must be undone on failure. It returns
// the detail rows it changed, even when it fails.
func (d *Dispatcher) send(ctx context.Context, e queue.Entry, logger zerolog.Logger) ([]queue.TouchedDetail, error) {
	data, err := d.readAdditionalData(ctx, e)
	if err != nil {
		return nil, err
	}
	tasks, err := data.Next.ProcessTasks()
	if err != nil {
		return nil, fmt.Errorf("failed to read process tasks: %w", err)
	}

	if err := d.store.SetProcessStatus(ctx, e.ProcessID, queue.ProcessInProgress, nil); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		logger.Warn().Msg("Process row not found, continuing")
	}

	var touched []queue.TouchedDetail
	for _, key := range slices.Sorted(maps.Keys(tasks)) {
		variableID := tasks[key].VariableID
		prev, err := d.store.SetDetailStatus(ctx, e.ProcessID, variableID, queue.ProcessInProgress)
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn().Int("variable_id", variableID).Msg("Process detail not found, skipping")
			continue
		}
		if err != nil {
			return touched, err
		}
		touched = append(touched, queue.TouchedDetail{VariableID: variableID, PrevStatus: prev})
	}

	payload := queue.TechnologyRequest{ModelerData: data.Modeler, APIActionDs: d.cfg.ActionDs}
	outcome, err := d.client.Fire(ctx, e.TechnologyEndpoint, payload)
	if err != nil {
		return touched, fmt.Errorf("failed to send technology request: %w", err)
	}
	d.track(e, outcome, logger)

	return touched, nil
}

// track logs the eventual technology response. It never changes state.
func (d *Dispatcher) track(e queue.Entry, outcome <-chan httpclient.Outcome, logger zerolog.Logger) {
	d.metrics.TechnologyFired()
	d.outcomes.Add(1)
	go func() {
		defer d.outcomes.Done()
		o := <-outcome
		d.metrics.TechnologyAnswered(e.Technology, o.Duration, o.Err)
		if o.Err != nil {
			logger.Warn().Err(o.Err).
				Int("status_code", o.StatusCode).
				Dur("duration", o.Duration).
				Msg("Technology request failed after it was sent")
			return
		}
		logger.Info().
			Int("status_code", o.StatusCode).
			Dur("duration", o.Duration).
			Msg("Technology endpoint answered")
	}()
}

// rollback compensates a failed dispatch. It is not cancelled with ctx.
func (d *Dispatcher) rollback(ctx context.Context, batchID string, e queue.Entry, touched []queue.TouchedDetail, cause error, logger zerolog.Logger) {
	message := rollbackMessagePrefix + cause.Error()
	if httpclient.IsTimeout(cause) {
		message = rollbackMessageTimeout
	}

	in := queue.RollbackInput{
		QueueID:        e.ID,
		ProcessID:      e.ProcessID,
		Touched:        touched,
		OriginalStatus: queue.StatusRegistered,
		ErrorStatus:    d.cfg.ErrorStatus,
		ErrorMessage:   message,
	}

	ctx = context.WithoutCancel(ctx)
	err := d.store.Rollback(ctx, in)
	d.metrics.RecordRollback(err)
	if err != nil {
		logger.Error().Err(err).Msg("Rollback failed")
		return
	}

	logger.Warn().
		Stringer("status", in.TargetStatus()).
		Int("restored_details", len(touched)).
		Msg("Dispatch rolled back")

	ev := events.New(events.TypeRolledBack, e.ProcessID)
	ev.BatchID, ev.QueueID, ev.Technology, ev.Error = batchID, e.ID, e.Technology, message
	d.publish(ctx, ev, logger)
}

func (d *Dispatcher) readAdditionalData(ctx context.Context, e queue.Entry) (*queue.AdditionalData, error) {
	raw, err := d.files.ReadSideFile(ctx, e.AdditionalDataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read additional data: %w", err)
	}
	return queue.ParseAdditionalData(raw)
}

func (d *Dispatcher) publish(ctx context.Context, ev events.Event, logger zerolog.Logger) {
	if err := d.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		logger.Warn().Err(err).Str("event", ev.Type).Msg("Failed to publish event")
	}
}

// Wait blocks until every fired technology request has been answered or
// ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.outcomes.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r EntryResult) failed(err error) EntryResult {
	r.Outcome = OutcomeFailed
	r.Error = err.Error()
	return r
}

func idle(batchID, message string) *BatchResult {
	return &BatchResult{Message: message, BatchID: batchID, Results: []EntryResult{}}
}
