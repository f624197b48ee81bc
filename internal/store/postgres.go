package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/digitalservices/queue-service/internal/queue"
)

// dispatchLockKey is the advisory lock that serializes dispatcher claims
const dispatchLockKey int64 = 0x51554555 // "QUEU"

const entryColumns = `id, process_id, queue_technology, queue_technology_endpoint, queue_ip_address,
	queue_api_prev, queue_api_next, queue_reference_base_path, queue_additional_data, queue_status,
	queue_technology_response, queue_technology_succeeded, queue_response_path, queue_path_data_to_process,
	queue_is_ready_to_next, queue_is_processing_technology, queue_is_send_to_process, queue_priority,
	queue_retry_count, error_message, queue_message, external_reference, created_at, updated_at`

// Postgres implements StatusStore on a pgx pool
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a store over pool
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Pool returns the underlying pool
func (s *Postgres) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping checks connectivity
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanEntry(row pgx.CollectableRow) (queue.Entry, error) {
	var e queue.Entry
	var status int
	err := row.Scan(
		&e.ID, &e.ProcessID, &e.Technology, &e.TechnologyEndpoint, &e.IPAddress,
		&e.APIPrev, &e.APINext, &e.ReferenceBasePath, &e.AdditionalDataPath, &status,
		&e.TechnologyResponse, &e.TechnologySucceeded, &e.ResponsePath, &e.PathDataToProcess,
		&e.IsReadyToNext, &e.IsProcessingTechnology, &e.IsSendToProcess, &e.Priority,
		&e.RetryCount, &e.ErrorMessage, &e.Message, &e.ExternalReference, &e.CreatedAt, &e.UpdatedAt,
	)
	e.Status = queue.Status(status)
	return e, err
}

// Insert adds a Registered entry and returns its id
func (s *Postgres) Insert(ctx context.Context, entry queue.NewEntry) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO process_queue (
			process_id, queue_technology, queue_technology_endpoint, queue_ip_address,
			queue_api_prev, queue_api_next, queue_reference_base_path, queue_additional_data,
			queue_status, queue_priority
		)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10)
		RETURNING id
	`, entry.ProcessID, entry.Technology, entry.TechnologyEndpoint, entry.IPAddress,
		entry.APIPrev, entry.APINext, entry.ReferenceBasePath, entry.AdditionalDataPath,
		int(queue.StatusRegistered), entry.Priority).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert queue entry: %w", err)
	}
	return id, nil
}

// Get returns one entry
func (s *Postgres) Get(ctx context.Context, id int64) (*queue.Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM process_queue WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue entry: %w", err)
	}
	entry, err := pgx.CollectOneRow(rows, scanEntry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("queue entry %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan queue entry: %w", err)
	}
	return &entry, nil
}

// ClaimBatch returns Registered entries eligible for dispatch. Claims are
// serialized with a transaction-scoped advisory lock; a held lock or a full
// in-flight window yields ErrBusy.
func (s *Postgres) ClaimBatch(ctx context.Context, opts ClaimOptions) ([]queue.Entry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, dispatchLockKey).Scan(&locked); err != nil {
		return nil, fmt.Errorf("failed to acquire claim lock: %w", err)
	}
	if !locked {
		return nil, ErrBusy
	}

	limit := opts.Limit
	if opts.MaxInFlight > 0 {
		var inFlight int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM process_queue WHERE queue_status = $1`,
			int(queue.StatusProcessing)).Scan(&inFlight); err != nil {
			return nil, fmt.Errorf("failed to count in-flight entries: %w", err)
		}
		if inFlight >= opts.MaxInFlight {
			return nil, ErrBusy
		}
		if free := opts.MaxInFlight - inFlight; limit <= 0 || free < limit {
			limit = free
		}
	}
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT ` + entryColumns + ` FROM process_queue WHERE queue_status = $1 ORDER BY id LIMIT $2 FOR UPDATE SKIP LOCKED`
	if opts.PriorityOnly {
		query = `SELECT ` + entryColumns + ` FROM process_queue WHERE queue_status = $1 AND queue_priority > 0
			ORDER BY queue_priority DESC, id LIMIT $2 FOR UPDATE SKIP LOCKED`
	}

	rows, err := tx.Query(ctx, query, int(queue.StatusRegistered), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("failed to scan claimed entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return entries, nil
}

// QueueStatus returns the current status of an entry
func (s *Postgres) QueueStatus(ctx context.Context, id int64) (queue.Status, error) {
	var status int
	err := s.pool.QueryRow(ctx, `SELECT queue_status FROM process_queue WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("queue entry %d: %w", id, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to read queue status: %w", err)
	}
	return queue.Status(status), nil
}

// MarkProcessing moves an entry from Registered to Processing
func (s *Postgres) MarkProcessing(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE process_queue
		SET queue_status = $2, queue_retry_count = queue_retry_count + 1, updated_at = NOW()
		WHERE id = $1 AND queue_status = $3
	`, id, int(queue.StatusProcessing), int(queue.StatusRegistered))
	if err != nil {
		return false, fmt.Errorf("failed to mark entry processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetProcessStatus sets a process status and optional message
func (s *Postgres) SetProcessStatus(ctx context.Context, processID string, status queue.ProcessStatus, message *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE process SET status_id = $2, error_message = $3, updated_at = NOW() WHERE id = $1
	`, processID, int(status), message)
	if err != nil {
		return fmt.Errorf("failed to update process status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("process %s: %w", processID, ErrNotFound)
	}
	return nil
}

// SetDetailStatus sets a detail status and returns the status it had before
func (s *Postgres) SetDetailStatus(ctx context.Context, processID string, variableID int, status queue.ProcessStatus) (queue.ProcessStatus, error) {
	var prev int
	err := s.pool.QueryRow(ctx, `
		UPDATE process_detail_system d
		SET status_id = $3, updated_at = NOW()
		FROM process_detail_system old
		WHERE d.process_id = old.process_id AND d.variable_id = old.variable_id
		  AND d.process_id = $1 AND d.variable_id = $2
		RETURNING old.status_id
	`, processID, variableID, int(status)).Scan(&prev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("process detail %s/%d: %w", processID, variableID, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to update process detail status: %w", err)
	}
	return queue.ProcessStatus(prev), nil
}

// RecordTechnologyResponse stores the technology response text
func (s *Postgres) RecordTechnologyResponse(ctx context.Context, id int64, response string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE process_queue SET queue_technology_response = $2, updated_at = NOW() WHERE id = $1
	`, id, response)
	if err != nil {
		return fmt.Errorf("failed to record technology response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("queue entry %d: %w", id, ErrNotFound)
	}
	return nil
}

// Rollback undoes a failed dispatch attempt in one transaction
func (s *Postgres) Rollback(ctx context.Context, in queue.RollbackInput) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin rollback: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE process_queue SET queue_status = $2, error_message = $3, updated_at = NOW() WHERE id = $1
	`, in.QueueID, int(in.TargetStatus()), in.ErrorMessage); err != nil {
		return fmt.Errorf("failed to roll back queue entry %d: %w", in.QueueID, err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE process SET status_id = $2, error_message = $3, updated_at = NOW() WHERE id = $1
	`, in.ProcessID, int(queue.ProcessError), in.ErrorMessage); err != nil {
		return fmt.Errorf("failed to roll back process %s: %w", in.ProcessID, err)
	}

	for _, d := range in.Touched {
		if _, err := tx.Exec(ctx, `
			UPDATE process_detail_system SET status_id = $3, updated_at = NOW()
			WHERE process_id = $1 AND variable_id = $2
		`, in.ProcessID, d.VariableID, int(d.PrevStatus)); err != nil {
			return fmt.Errorf("failed to roll back process detail %d: %w", d.VariableID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}
	return nil
}

// SelectForTechnology flags and returns entries sent to process that no
// technology worker has picked up yet
func (s *Postgres) SelectForTechnology(ctx context.Context, limit int, priorityOnly bool) ([]queue.Entry, error) {
	order := `ORDER BY id`
	filter := ``
	if priorityOnly {
		order = `ORDER BY queue_priority DESC, id`
		filter = `AND queue_priority > 0`
	}

	rows, err := s.pool.Query(ctx, `
		UPDATE process_queue SET queue_is_processing_technology = TRUE, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM process_queue
			WHERE queue_status = $1
			  AND queue_is_send_to_process
			  AND NOT queue_is_processing_technology
			  AND NOT queue_is_ready_to_next
			  `+filter+`
			`+order+`
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+entryColumns, int(queue.StatusProcessing), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries for technology: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("failed to scan technology entries: %w", err)
	}
	return entries, nil
}

// ClaimReadyForNext leases entries whose results can be forwarded. A leased
// entry is hidden from other claims until MarkSentOnward, ReleaseForward or
// the lease expiring.
func (s *Postgres) ClaimReadyForNext(ctx context.Context, limit int, lease time.Duration) ([]queue.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		WITH claimed AS (
			UPDATE process_queue
			SET queue_forward_claimed_at = NOW()
			WHERE id IN (
				SELECT id FROM process_queue
				WHERE queue_status = $1 AND queue_is_ready_to_next
				  AND (queue_forward_claimed_at IS NULL
				       OR queue_forward_claimed_at < NOW() - make_interval(secs => $3))
				ORDER BY queue_priority DESC, id
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING *
		)
		SELECT `+entryColumns+` FROM claimed
		ORDER BY queue_priority DESC, id
	`, int(queue.StatusReadyForNext), limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to claim ready entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ready entries: %w", err)
	}
	return entries, nil
}

// ReleaseForward drops the forward lease of an entry that was not sent onward
func (s *Postgres) ReleaseForward(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE process_queue SET queue_forward_claimed_at = NULL WHERE id = $1
	`, id); err != nil {
		return fmt.Errorf("failed to release forward lease: %w", err)
	}
	return nil
}

// MarkSentOnward moves a ReadyForNext entry to SentOnward
func (s *Postgres) MarkSentOnward(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE process_queue
		SET queue_status = $2, queue_is_ready_to_next = FALSE,
		    queue_forward_claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND queue_status = $3
	`, id, int(queue.StatusSentOnward), int(queue.StatusReadyForNext))
	if err != nil {
		return fmt.Errorf("failed to mark entry sent onward: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ready queue entry %d: %w", id, ErrNotFound)
	}
	return nil
}

// CountWaiting counts entries that are Registered or Processing
func (s *Postgres) CountWaiting(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM process_queue WHERE queue_status IN ($1, $2)
	`, int(queue.StatusRegistered), int(queue.StatusProcessing)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count waiting entries: %w", err)
	}
	return n, nil
}
