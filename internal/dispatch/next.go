package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/digitalservices/queue-service/internal/events"
	httpclient "github.com/digitalservices/queue-service/internal/http"
	"github.com/digitalservices/queue-service/internal/queue"
	"github.com/digitalservices/queue-service/internal/store"
	"github.com/digitalservices/queue-service/internal/telemetry"
)

// HeaderReferenceBasePath carries the entry's base path to the next API
const HeaderReferenceBasePath = "X-Queue-Reference-Base-Path"

// downloadRequest is the body of the download-results call
type downloadRequest struct {
	InputPath  string `json:"inputPath"`
	OutputPath string `json:"outputPath"`
}

// outputRequest is the body of the Output API notification
type outputRequest struct {
	ProcessID string `json:"ProcessId"`
}

// nextResponse is the part of the next API response the dispatcher reads
type nextResponse struct {
	Message any `json:"message"`
}

// RunNext forwards the results of every ReadyForNext entry to its next API,
// then notifies the Output API once per process.
func (d *Dispatcher) RunNext(ctx context.Context) (*BatchResult, error) {
	start := time.Now()
	batchID := uuid.NewString()

	ctx, span := telemetry.Tracer().Start(ctx, "dispatch.run_next", trace.WithAttributes(
		attribute.String("batch.id", batchID),
	))
	defer span.End()

	logger := d.logger.With().
		Str("component", "continuation").
		Str("batch_id", batchID).
		Logger()

	entries, err := d.store.ClaimReadyForNext(ctx, d.cfg.NextBatchSize, d.cfg.ForwardLease)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		d.metrics.RecordBatch(kindNext, "error", time.Since(start))
		return nil, fmt.Errorf("failed to load entries ready for next: %w", err)
	}
	if len(entries) == 0 {
		d.metrics.RecordBatch(kindNext, "empty", time.Since(start))
		return idle(batchID, MessageNextIdle), nil
	}

	logger.Info().Int("entries", len(entries)).Msg("Forwarding entries to the next stage")
	span.SetAttributes(attribute.Int("batch.entries", len(entries)))

	results := d.fanOut(ctx, kindNext, entries, func(ctx context.Context, e queue.Entry) EntryResult {
		res := d.forwardEntry(ctx, batchID, e, logger)
		if res.Outcome != OutcomeForwarded {
			if err := d.store.ReleaseForward(context.WithoutCancel(ctx), e.ID); err != nil {
				logger.Error().Err(err).Int64("queue_id", e.ID).Msg("Failed to release forward lease")
			}
		}
		return res
	})

	d.notifyOutput(ctx, entries, logger)

	d.metrics.RecordBatch(kindNext, "claimed", time.Since(start))
	return &BatchResult{Message: MessageNextDone, BatchID: batchID, Results: results}, nil
}

func (d *Dispatcher) forwardEntry(ctx context.Context, batchID string, e queue.Entry, logger zerolog.Logger) EntryResult {
	res := EntryResult{QueueID: e.ID, ProcessID: e.ProcessID}
	logger = logger.With().
		Int64("queue_id", e.ID).
		Str("process_id", e.ProcessID).
		Logger()

	data, err := d.readAdditionalData(ctx, e)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load additional data")
		return res.failed(err)
	}

	outputPath, err := data.Next.ResultsFolderPath()
	if err != nil {
		logger.Error().Err(err).Msg("Next stage has no results folder")
		return res.failed(err)
	}
	if e.PathDataToProcess == nil || *e.PathDataToProcess == "" {
		err := errors.New("entry has no data path")
		logger.Error().Err(err).Msg("Cannot compute input path")
		return res.failed(err)
	}
	inputPath := joinPath(*e.PathDataToProcess, "results")

	logger = logger.With().Str("input_path", inputPath).Str("output_path", outputPath).Logger()

	if n, err := d.files.ClearFiles(ctx, outputPath); err != nil {
		logger.Warn().Err(err).Msg("Failed to clear previous results")
	} else {
		logger.Debug().Int("removed", n).Msg("Cleared previous results")
	}

	if err := d.downloadResults(ctx, inputPath, outputPath); err != nil {
		if httpclient.IsTimeout(err) {
			err = fmt.Errorf("download-results exceeded %s: %w", d.cfg.DownloadTimeout, err)
		}
		logger.Error().Err(err).Msg("Download results failed")
		res.Outcome, res.Error = OutcomeIncomplete, err.Error()
		return res
	}

	if !e.HasNext() {
		logger.Info().Msg("No next API configured, entry stays ready")
		res.Outcome = OutcomeNoNext
		return res
	}

	header := http.Header{}
	header.Set(HeaderReferenceBasePath, e.ReferenceBasePath)
	resp, err := d.client.PostJSON(ctx, *e.APINext, json.RawMessage(data.Next.Raw()), header)
	if err != nil {
		logger.Error().Err(err).Str("api_next", *e.APINext).Msg("Next API request failed")
		res.Outcome, res.Error = OutcomeIncomplete, err.Error()
		return res
	}

	if queue.HasZeroByteNotice(responseMessage(resp.Body)) {
		logger.Warn().Msg("Next API reported a zero-byte file, entry left for reprocess")
		res.Outcome = OutcomeHeld
		return res
	}

	if err := d.store.MarkSentOnward(context.WithoutCancel(ctx), e.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Info().Msg("Entry already moved on, skipping")
			res.Outcome = OutcomeSkipped
			return res
		}
		logger.Error().Err(err).Msg("Failed to mark entry sent onward")
		return res.failed(err)
	}

	ev := events.New(events.TypeForwarded, e.ProcessID)
	ev.BatchID, ev.QueueID, ev.Technology = batchID, e.ID, e.Technology
	d.publish(ctx, ev, logger)

	logger.Info().Msg("Results forwarded to next stage")
	res.Outcome = OutcomeForwarded
	return res
}

func (d *Dispatcher) downloadResults(ctx context.Context, inputPath, outputPath string) error {
	if d.cfg.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.DownloadTimeout)
		defer cancel()
	}
	_, err := d.client.PostJSON(ctx, d.cfg.DownloadResultsURL, downloadRequest{
		InputPath:  inputPath,
		OutputPath: outputPath,
	}, nil)
	return err
}

// notifyOutput posts once per distinct process. Failures are logged only.
func (d *Dispatcher) notifyOutput(ctx context.Context, entries []queue.Entry, logger zerolog.Logger) {
	if d.cfg.OutputURL == "" {
		logger.Warn().Msg("Output API address not configured, skipping notification")
		return
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.ProcessID] {
			continue
		}
		seen[e.ProcessID] = true

		if _, err := d.client.PostJSON(ctx, d.cfg.OutputURL, outputRequest{ProcessID: e.ProcessID}, nil); err != nil {
			logger.Error().Err(err).Str("process_id", e.ProcessID).Msg("Output API notification failed")
			continue
		}
		logger.Info().Str("process_id", e.ProcessID).Msg("Output API notified")
	}
}

// responseMessage extracts the "message" field of a JSON response, or ""
func responseMessage(body []byte) string {
	var r nextResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return ""
	}
	s, _ := r.Message.(string)
	return s
}

// joinPath appends elem using the separator base already uses. Paths come
// from Windows hosts as often as from Unix ones.
func joinPath(base, elem string) string {
	sep := "/"
	if strings.Contains(base, `\`) && !strings.Contains(base, "/") {
		sep = `\`
	}
	return strings.TrimRight(base, `\/`) + sep + elem
}
