// Package store persists queue entries, processes and process details.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/digitalservices/queue-service/internal/queue"
)

var (
	// ErrBusy is returned by claims when another dispatcher holds the claim
	// lock or the in-flight limit is reached. It means "nothing to do now".
	ErrBusy = errors.New("dispatcher busy")
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
)

// ClaimOptions bounds a dispatcher claim
type ClaimOptions struct {
	// Limit is the maximum number of entries returned
	Limit int
	// MaxInFlight caps the entries in Processing; 0 disables the cap
	MaxInFlight int
	// PriorityOnly restricts the claim to entries with priority > 0,
	// highest first
	PriorityOnly bool
}

// CallbackUpdate reports how many rows an update-process-queue call changed
type CallbackUpdate struct {
	Updated  int64 `json:"updated"`
	Promoted int64 `json:"promoted"`
}

// StatusStore is the persistence used by the dispatchers and the callback
// surface
type StatusStore interface {
	// Insert adds a Registered entry and returns its id
	Insert(ctx context.Context, entry queue.NewEntry) (int64, error)

	// ClaimBatch returns Registered entries eligible for dispatch, or ErrBusy
	ClaimBatch(ctx context.Context, opts ClaimOptions) ([]queue.Entry, error)
	// QueueStatus returns the current status of an entry
	QueueStatus(ctx context.Context, id int64) (queue.Status, error)
	// MarkProcessing moves an entry from Registered to Processing and bumps
	// its retry count. It reports false when the entry was not Registered.
	MarkProcessing(ctx context.Context, id int64) (bool, error)
	// SetProcessStatus sets a process status and optional message
	SetProcessStatus(ctx context.Context, processID string, status queue.ProcessStatus, message *string) error
	// SetDetailStatus sets a detail status and returns the status it had before
	SetDetailStatus(ctx context.Context, processID string, variableID int, status queue.ProcessStatus) (queue.ProcessStatus, error)
	// RecordTechnologyResponse stores the technology response text
	RecordTechnologyResponse(ctx context.Context, id int64, response string) error
	// Rollback undoes a failed dispatch attempt in one transaction
	Rollback(ctx context.Context, in queue.RollbackInput) error

	// SelectForTechnology flags and returns entries waiting for a technology worker
	SelectForTechnology(ctx context.Context, limit int, priorityOnly bool) ([]queue.Entry, error)

	// ClaimReadyForNext leases up to limit forwardable entries for lease.
	// Leased entries are skipped by other claims until released or expired.
	ClaimReadyForNext(ctx context.Context, limit int, lease time.Duration) ([]queue.Entry, error)
	// ReleaseForward drops the forward lease of an entry that was not sent onward
	ReleaseForward(ctx context.Context, id int64) error
	// MarkSentOnward moves a ReadyForNext entry to SentOnward and clears
	// its ready flag
	MarkSentOnward(ctx context.Context, id int64) error

	// SetQueueStatus sets an arbitrary entry status
	SetQueueStatus(ctx context.Context, id int64, status queue.Status, errorMessage *string) error
	// SaveProcessDetail inserts a Pending detail row
	SaveProcessDetail(ctx context.Context, processID string, variableID int) error
	// SetDetailResults stores result metadata on a detail row
	SetDetailResults(ctx context.Context, processID string, variableID int, results queue.DetailResults) error
	// RecordCallback applies a technology outcome and promotes siblings
	RecordCallback(ctx context.Context, result queue.CallbackResult) (CallbackUpdate, error)
	// Reprocess sends one entry back to Registered with a message
	Reprocess(ctx context.Context, processID, referenceBasePath, message string) (int64, error)
	// SetProcessingTechnology sets the technology in-flight flag
	SetProcessingTechnology(ctx context.Context, processID, referenceBasePath string, processing bool) (int64, error)
	// SetDataPath marks an entry as sent to process with its data path
	SetDataPath(ctx context.Context, processID, referenceBasePath, dataPath string) (int64, error)
	// ReprocessTicket re-enters every entry of a process through flow
	ReprocessTicket(ctx context.Context, processID string, flow queue.ReprocessFlow) (int64, error)
	// CountWaiting counts entries that are Registered or Processing
	CountWaiting(ctx context.Context) (int, error)

	// Ping checks connectivity
	Ping(ctx context.Context) error
}
