package store

import (
	"context"
	"fmt"

	"github.com/digitalservices/queue-service/internal/queue"
)

// SetQueueStatus sets an arbitrary entry status
func (s *Postgres) SetQueueStatus(ctx context.Context, id int64, status queue.Status, errorMessage *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE process_queue SET queue_status = $2, error_message = $3, updated_at = NOW() WHERE id = $1
	`, id, int(status), errorMessage)
	if err != nil {
		return fmt.Errorf("failed to update queue status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("queue entry %d: %w", id, ErrNotFound)
	}
	return nil
}

// SaveProcessDetail inserts a Pending detail row. Saving an existing row is a no-op.
func (s *Postgres) SaveProcessDetail(ctx context.Context, processID string, variableID int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO process_detail_system (process_id, variable_id, status_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (process_id, variable_id) DO NOTHING
	`, processID, variableID, int(queue.ProcessPending))
	if err != nil {
		return fmt.Errorf("failed to insert process detail: %w", err)
	}
	return nil
}

// SetDetailResults stores result metadata on a detail row
func (s *Postgres) SetDetailResults(ctx context.Context, processID string, variableID int, r queue.DetailResults) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE process_detail_system
		SET path = $3, size = $4, qty_files = $5, qty_transactions = $6,
		    execution_time_start = $7, execution_time_end = $8, updated_at = NOW()
		WHERE process_id = $1 AND variable_id = $2
	`, processID, variableID, r.Path, r.Size, r.QtyFiles, r.QtyTransactions, r.ExecutionTimeStart, r.ExecutionTimeEnd)
	if err != nil {
		return fmt.Errorf("failed to update process detail results: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("process detail %s/%d: %w", processID, variableID, ErrNotFound)
	}
	return nil
}

// RecordCallback applies a technology outcome to the entry addressed by the
// response path, then promotes the siblings of the same process whose
// technology already succeeded. Both updates run in one transaction and
// repeating the call changes nothing further. Entries already sent onward
// are left alone.
func (s *Postgres) RecordCallback(ctx context.Context, result queue.CallbackResult) (CallbackUpdate, error) {
	var out CallbackUpdate
	basePath := queue.ReferenceBasePath(result.ResponsePath)

	status, response := queue.StatusPending, queue.ResponseExecutionFailed
	if result.IsSuccess {
		status, response = queue.StatusReadyForNext, queue.ResponseExecutionSuccess
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return out, fmt.Errorf("failed to begin callback: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE process_queue
		SET queue_technology_response = $3,
		    queue_technology_succeeded = $4,
		    queue_response_path = $5,
		    queue_is_ready_to_next = TRUE,
		    queue_status = $6,
		    updated_at = NOW()
		WHERE process_id = $1 AND queue_reference_base_path = $2 AND queue_status <> $7
	`, result.ProcessID, basePath, response, result.IsSuccess, result.ResponsePath, int(status), int(queue.StatusSentOnward))
	if err != nil {
		return out, fmt.Errorf("failed to record callback: %w", err)
	}
	out.Updated = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		UPDATE process_queue
		SET queue_status = $3, queue_is_ready_to_next = TRUE, updated_at = NOW()
		WHERE process_id = $1
		  AND queue_reference_base_path <> $2
		  AND queue_technology_succeeded
		  AND queue_status <> $4
		  AND NOT (queue_status = $3 AND queue_is_ready_to_next)
	`, result.ProcessID, basePath, int(queue.StatusReadyForNext), int(queue.StatusSentOnward))
	if err != nil {
		return out, fmt.Errorf("failed to promote siblings: %w", err)
	}
	out.Promoted = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return out, fmt.Errorf("failed to commit callback: %w", err)
	}
	return out, nil
}

// Reprocess sends one entry back to Registered with a message
func (s *Postgres) Reprocess(ctx context.Context, processID, referenceBasePath, message string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE process_queue
		SET queue_status = $3,
		    queue_is_ready_to_next = FALSE,
		    queue_is_processing_technology = FALSE,
		    queue_is_send_to_process = FALSE,
		    queue_technology_succeeded = FALSE,
		    queue_technology_response = NULL,
		    error_message = NULL,
		    queue_message = $4,
		    updated_at = NOW()
		WHERE process_id = $1 AND queue_reference_base_path = $2
	`, processID, referenceBasePath, int(queue.StatusRegistered), message)
	if err != nil {
		return 0, fmt.Errorf("failed to reprocess entry: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SetProcessingTechnology sets the technology in-flight flag
func (s *Postgres) SetProcessingTechnology(ctx context.Context, processID, referenceBasePath string, processing bool) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE process_queue SET queue_is_processing_technology = $3, updated_at = NOW()
		WHERE process_id = $1 AND queue_reference_base_path = $2
	`, processID, referenceBasePath, processing)
	if err != nil {
		return 0, fmt.Errorf("failed to update processing technology flag: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SetDataPath marks an entry as sent to process with its data path
func (s *Postgres) SetDataPath(ctx context.Context, processID, referenceBasePath, dataPath string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE process_queue
		SET queue_is_send_to_process = TRUE, queue_path_data_to_process = $3, updated_at = NOW()
		WHERE process_id = $1 AND queue_reference_base_path = $2
	`, processID, referenceBasePath, dataPath)
	if err != nil {
		return 0, fmt.Errorf("failed to update data path: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReprocessTicket re-enters every entry of a process. FlowTechnology sends all
// entries back to dispatch and the process to Pending; FlowNext re-forwards
// the entries whose technology succeeded.
func (s *Postgres) ReprocessTicket(ctx context.Context, processID string, flow queue.ReprocessFlow) (int64, error) {
	if !flow.Valid() {
		return 0, fmt.Errorf("unknown reprocess flow %d", flow)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin reprocess: %w", err)
	}
	defer tx.Rollback(ctx)

	var affected int64
	switch flow {
	case queue.FlowTechnology:
		tag, err := tx.Exec(ctx, `
			UPDATE process_queue
			SET queue_status = $2,
			    queue_is_ready_to_next = FALSE,
			    queue_is_processing_technology = FALSE,
			    queue_is_send_to_process = FALSE,
			    queue_technology_succeeded = FALSE,
			    queue_technology_response = NULL,
			    error_message = NULL,
			    updated_at = NOW()
			WHERE process_id = $1
		`, processID, int(queue.StatusRegistered))
		if err != nil {
			return 0, fmt.Errorf("failed to reprocess entries: %w", err)
		}
		affected = tag.RowsAffected()

		if _, err := tx.Exec(ctx, `
			UPDATE process SET status_id = $2, error_message = NULL, updated_at = NOW() WHERE id = $1
		`, processID, int(queue.ProcessPending)); err != nil {
			return 0, fmt.Errorf("failed to reset process: %w", err)
		}
	case queue.FlowNext:
		tag, err := tx.Exec(ctx, `
			UPDATE process_queue
			SET queue_status = $2, queue_is_ready_to_next = TRUE,
			    queue_forward_claimed_at = NULL, updated_at = NOW()
			WHERE process_id = $1 AND queue_technology_succeeded
		`, processID, int(queue.StatusReadyForNext))
		if err != nil {
			return 0, fmt.Errorf("failed to reprocess entries: %w", err)
		}
		affected = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit reprocess: %w", err)
	}
	return affected, nil
}
