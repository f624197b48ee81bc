package queue

import (
	"strconv"
	"strings"
	"time"
)

// Status is the process_queue.queue_status code. The numeric values are
// fixed by the store and carry no ordering.
type Status int

const (
	// StatusSentOnward marks an entry whose results were forwarded to the next API.
	StatusSentOnward Status = 3
	// StatusError marks an entry whose dispatch failed and was compensated.
	StatusError Status = 4
	// StatusRegistered marks an enqueued entry that is eligible for dispatch.
	StatusRegistered Status = 12
	// StatusProcessing marks a claimed entry whose technology request was issued.
	StatusProcessing Status = 15
	// StatusReadyForNext marks an entry whose technology reported success.
	StatusReadyForNext Status = 16
	// StatusPending marks an entry whose technology reported a failure. It
	// waits for a manual reprocess.
	StatusPending Status = 18
)

func (s Status) String() string {
	switch s {
	case StatusSentOnward:
		return "sent_onward"
	case StatusError:
		return "error"
	case StatusRegistered:
		return "registered"
	case StatusProcessing:
		return "processing"
	case StatusReadyForNext:
		return "ready_for_next"
	case StatusPending:
		return "pending"
	default:
		return "status_" + strconv.Itoa(int(s))
	}
}

// ProcessStatus is the status_id shared by the process and
// process_detail_system tables.
type ProcessStatus int

const (
	ProcessSuccess    ProcessStatus = 3
	ProcessError      ProcessStatus = 4
	ProcessInProgress ProcessStatus = 15
	ProcessPending    ProcessStatus = 19
)

// Technology response texts stored in queue_technology_response. Callers
// outside this service read them, so they stay byte-for-byte stable.
const (
	ResponseRequestSent       = "Solicitud enviada con éxito"
	ResponseExecutionSuccess  = "Ejecución con éxito"
	ResponseExecutionFailed   = "Hubo un error a nivel de Modeler"
	MessageReprocessZeroBytes = "Reprocesado: se detectó al menos un archivo de 0KB"
)

// Entry is one row of process_queue.
type Entry struct {
	ID                     int64     `json:"id"`
	ProcessID              string    `json:"processId"`
	Technology             string    `json:"technology"`
	TechnologyEndpoint     string    `json:"technologyEndpoint"`
	IPAddress              *string   `json:"ipAddress,omitempty"`
	APIPrev                *string   `json:"apiPrev,omitempty"`
	APINext                *string   `json:"apiNext,omitempty"`
	ReferenceBasePath      string    `json:"referenceBasePath"`
	AdditionalDataPath     string    `json:"additionalDataPath"`
	Status                 Status    `json:"status"`
	TechnologyResponse     *string   `json:"technologyResponse,omitempty"`
	TechnologySucceeded    bool      `json:"technologySucceeded"`
	ResponsePath           *string   `json:"responsePath,omitempty"`
	PathDataToProcess      *string   `json:"pathDataToProcess,omitempty"`
	IsReadyToNext          bool      `json:"isReadyToNext"`
	IsProcessingTechnology bool      `json:"isProcessingTechnology"`
	IsSendToProcess        bool      `json:"isSendToProcess"`
	Priority               int       `json:"priority"`
	RetryCount             int       `json:"retryCount"`
	ErrorMessage           *string   `json:"errorMessage,omitempty"`
	Message                *string   `json:"message,omitempty"`
	ExternalReference      *string   `json:"externalReference,omitempty"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// HasNext reports whether a next-stage API is configured for the entry.
func (e *Entry) HasNext() bool {
	return e.APINext != nil && *e.APINext != ""
}

// NewEntry holds the columns written at enqueue time.
type NewEntry struct {
	ProcessID          string
	Technology         string
	TechnologyEndpoint string
	IPAddress          string
	APIPrev            string
	APINext            string
	ReferenceBasePath  string
	AdditionalDataPath string
	Priority           int
}

// Process is one row of the process table.
type Process struct {
	ID           string        `json:"id"`
	StatusID     ProcessStatus `json:"statusId"`
	ErrorMessage *string       `json:"errorMessage,omitempty"`
}

// ProcessDetail is one row of process_detail_system.
type ProcessDetail struct {
	ProcessID          string        `json:"processId"`
	VariableID         int           `json:"variableId"`
	StatusID           ProcessStatus `json:"statusId"`
	Path               *string       `json:"path,omitempty"`
	Size               *string       `json:"size,omitempty"`
	QtyFiles           *int          `json:"qtyFiles,omitempty"`
	QtyTransactions    *int          `json:"qtyTransactions,omitempty"`
	ExecutionTimeStart *time.Time    `json:"executionTimeStart,omitempty"`
	ExecutionTimeEnd   *time.Time    `json:"executionTimeEnd,omitempty"`
}

// DetailResults is the result metadata attached to a process detail.
type DetailResults struct {
	Path               string
	Size               string
	QtyFiles           int
	QtyTransactions    int
	ExecutionTimeStart *time.Time
	ExecutionTimeEnd   *time.Time
}

// TouchedDetail records a detail row changed during a dispatch attempt and
// the status it held before the change.
type TouchedDetail struct {
	VariableID int
	PrevStatus ProcessStatus
}

// RollbackInput carries everything the compensator needs to undo a failed
// dispatch attempt.
type RollbackInput struct {
	QueueID        int64
	ProcessID      string
	Touched        []TouchedDetail
	OriginalStatus Status
	ErrorStatus    Status
	ErrorMessage   string
}

// TargetStatus is the queue status the rollback applies.
func (r RollbackInput) TargetStatus() Status {
	if r.ErrorStatus != 0 {
		return r.ErrorStatus
	}
	return r.OriginalStatus
}

// CallbackResult is the technology outcome reported through update-process-queue.
type CallbackResult struct {
	ProcessID    string
	ResponsePath string
	IsSuccess    bool
}

// ReprocessFlow selects how reprocess-ticket re-enters a process.
type ReprocessFlow int

const (
	// FlowTechnology sends every entry of the process back to dispatch.
	FlowTechnology ReprocessFlow = 1
	// FlowNext re-forwards the entries whose technology already succeeded.
	FlowNext ReprocessFlow = 2
)

// Valid reports whether f is a known flow.
func (f ReprocessFlow) Valid() bool {
	return f == FlowTechnology || f == FlowNext
}

// ReferenceBasePath returns the reference base path of the entry a technology
// response path belongs to: the path without its last backslash-separated
// segment. Trailing backslashes are ignored.
func ReferenceBasePath(responsePath string) string {
	trimmed := strings.TrimRight(responsePath, `\`)
	idx := strings.LastIndex(trimmed, `\`)
	if idx < 0 {
		return ""
	}
	return trimmed[:idx]
}
