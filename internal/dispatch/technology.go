package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalservices/queue-service/internal/queue"
)

// SelectForTechnology hands entries that were sent to process to a
// technology worker. Each entry is returned to one caller only.
func (d *Dispatcher) SelectForTechnology(ctx context.Context, priority bool) ([]queue.Entry, error) {
	start := time.Now()

	limit := d.cfg.TechnologyBatchSize
	if limit <= 0 {
		limit = 1
	}

	entries, err := d.store.SelectForTechnology(ctx, limit, priority)
	if err != nil {
		d.metrics.RecordBatch(kindTechnology, "error", time.Since(start))
		return nil, fmt.Errorf("failed to select entries for technology: %w", err)
	}
	if len(entries) == 0 {
		d.metrics.RecordBatch(kindTechnology, "empty", time.Since(start))
		return nil, nil
	}

	for _, e := range entries {
		d.logger.Info().
			Str("component", "technology").
			Int64("queue_id", e.ID).
			Str("process_id", e.ProcessID).
			Bool("priority", priority).
			Msg("Entry handed to technology worker")
	}

	d.metrics.RecordBatch(kindTechnology, "claimed", time.Since(start))
	return entries, nil
}
