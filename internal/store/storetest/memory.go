// Package storetest provides an in-memory StatusStore for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/digitalservices/queue-service/internal/queue"
	"github.com/digitalservices/queue-service/internal/store"
)

var _ store.StatusStore = (*Memory)(nil)

type detailKey struct {
	processID  string
	variableID int
}

// Memory is a StatusStore kept in maps. Errors can be injected per method
// name with FailOn.
type Memory struct {
	mu        sync.Mutex
	nextID    int64
	entries   map[int64]*queue.Entry
	processes map[string]*queue.Process
	details   map[detailKey]*queue.ProcessDetail
	failures  map[string]error
	busy      bool
	calls     map[string]int
	leases    map[int64]time.Time
}

// NewMemory returns an empty store
func NewMemory() *Memory {
	return &Memory{
		entries:   make(map[int64]*queue.Entry),
		processes: make(map[string]*queue.Process),
		details:   make(map[detailKey]*queue.ProcessDetail),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
		leases:    make(map[int64]time.Time),
	}
}

// FailOn makes every call to method return err. A nil err clears it.
func (m *Memory) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// SetBusy makes ClaimBatch return store.ErrBusy
func (m *Memory) SetBusy(busy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = busy
}

// Calls returns how many times method was called
func (m *Memory) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// AddEntry stores a copy of e, assigning an id when zero, and returns the id
func (m *Memory) AddEntry(e queue.Entry) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == 0 {
		m.nextID++
		e.ID = m.nextID
	} else if e.ID > m.nextID {
		m.nextID = e.ID
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
		e.UpdatedAt = e.CreatedAt
	}
	m.entries[e.ID] = &e
	return e.ID
}

// AddProcess stores a process
func (m *Memory) AddProcess(id string, status queue.ProcessStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processes[id] = &queue.Process{ID: id, StatusID: status}
}

// AddDetail stores a process detail
func (m *Memory) AddDetail(processID string, variableID int, status queue.ProcessStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[detailKey{processID, variableID}] = &queue.ProcessDetail{ProcessID: processID, VariableID: variableID, StatusID: status}
}

// Entry returns a copy of an entry
func (m *Memory) Entry(id int64) (queue.Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return queue.Entry{}, false
	}
	return *e, true
}

// Process returns a copy of a process
func (m *Memory) Process(id string) (queue.Process, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.processes[id]
	if !ok {
		return queue.Process{}, false
	}
	return *p, true
}

// Detail returns a copy of a process detail
func (m *Memory) Detail(processID string, variableID int) (queue.ProcessDetail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.details[detailKey{processID, variableID}]
	if !ok {
		return queue.ProcessDetail{}, false
	}
	return *d, true
}

// begin records the call and returns an injected failure. Callers hold m.mu.
func (m *Memory) begin(method string) error {
	m.calls[method]++
	return m.failures[method]
}

func (m *Memory) sorted(match func(*queue.Entry) bool, priority bool) []*queue.Entry {
	var out []*queue.Entry
	for _, e := range m.entries {
		if match(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if priority && out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func copies(in []*queue.Entry, limit int) []queue.Entry {
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	out := make([]queue.Entry, 0, len(in))
	for _, e := range in {
		out = append(out, *e)
	}
	return out
}

func touch(e *queue.Entry) {
	e.UpdatedAt = time.Now()
}

func strPtr(s string) *string {
	return &s
}

// Insert adds a Registered entry and returns its id
func (m *Memory) Insert(ctx context.Context, n queue.NewEntry) (int64, error) {
	m.mu.Lock()
	if err := m.begin("Insert"); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	m.mu.Unlock()

	e := queue.Entry{
		ProcessID:          n.ProcessID,
		Technology:         n.Technology,
		TechnologyEndpoint: n.TechnologyEndpoint,
		ReferenceBasePath:  n.ReferenceBasePath,
		AdditionalDataPath: n.AdditionalDataPath,
		Status:             queue.StatusRegistered,
		Priority:           n.Priority,
	}
	if n.IPAddress != "" {
		e.IPAddress = strPtr(n.IPAddress)
	}
	if n.APIPrev != "" {
		e.APIPrev = strPtr(n.APIPrev)
	}
	if n.APINext != "" {
		e.APINext = strPtr(n.APINext)
	}
	return m.AddEntry(e), nil
}

// ClaimBatch returns Registered entries eligible for dispatch
func (m *Memory) ClaimBatch(ctx context.Context, opts store.ClaimOptions) ([]queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ClaimBatch"); err != nil {
		return nil, err
	}
	if m.busy {
		return nil, store.ErrBusy
	}

	limit := opts.Limit
	if opts.MaxInFlight > 0 {
		inFlight := 0
		for _, e := range m.entries {
			if e.Status == queue.StatusProcessing {
				inFlight++
			}
		}
		if inFlight >= opts.MaxInFlight {
			return nil, store.ErrBusy
		}
		if free := opts.MaxInFlight - inFlight; limit <= 0 || free < limit {
			limit = free
		}
	}

	matched := m.sorted(func(e *queue.Entry) bool {
		return e.Status == queue.StatusRegistered && (!opts.PriorityOnly || e.Priority > 0)
	}, opts.PriorityOnly)
	return copies(matched, limit), nil
}

// QueueStatus returns the current status of an entry
func (m *Memory) QueueStatus(ctx context.Context, id int64) (queue.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("QueueStatus"); err != nil {
		return 0, err
	}
	e, ok := m.entries[id]
	if !ok {
		return 0, fmt.Errorf("queue entry %d: %w", id, store.ErrNotFound)
	}
	return e.Status, nil
}

// MarkProcessing moves an entry from Registered to Processing
func (m *Memory) MarkProcessing(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("MarkProcessing"); err != nil {
		return false, err
	}
	e, ok := m.entries[id]
	if !ok || e.Status != queue.StatusRegistered {
		return false, nil
	}
	e.Status = queue.StatusProcessing
	e.RetryCount++
	touch(e)
	return true, nil
}

// SetProcessStatus sets a process status and optional message
func (m *Memory) SetProcessStatus(ctx context.Context, processID string, status queue.ProcessStatus, message *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("SetProcessStatus"); err != nil {
		return err
	}
	p, ok := m.processes[processID]
	if !ok {
		return fmt.Errorf("process %s: %w", processID, store.ErrNotFound)
	}
	p.StatusID = status
	p.ErrorMessage = message
	return nil
}

// SetDetailStatus sets a detail status and returns the status it had before
func (m *Memory) SetDetailStatus(ctx context.Context, processID string, variableID int, status queue.ProcessStatus) (queue.ProcessStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("SetDetailStatus"); err != nil {
		return 0, err
	}
	d, ok := m.details[detailKey{processID, variableID}]
	if !ok {
		return 0, fmt.Errorf("process detail %s/%d: %w", processID, variableID, store.ErrNotFound)
	}
	prev := d.StatusID
	d.StatusID = status
	return prev, nil
}

// RecordTechnologyResponse stores the technology response text
func (m *Memory) RecordTechnologyResponse(ctx context.Context, id int64, response string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("RecordTechnologyResponse"); err != nil {
		return err
	}
	e, ok := m.entries[id]
	if !ok {
		return fmt.Errorf("queue entry %d: %w", id, store.ErrNotFound)
	}
	e.TechnologyResponse = strPtr(response)
	touch(e)
	return nil
}

// Rollback undoes a failed dispatch attempt. Nothing is applied when an
// error is injected.
func (m *Memory) Rollback(ctx context.Context, in queue.RollbackInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("Rollback"); err != nil {
		return err
	}
	if e, ok := m.entries[in.QueueID]; ok {
		e.Status = in.TargetStatus()
		e.ErrorMessage = strPtr(in.ErrorMessage)
		touch(e)
	}
	if p, ok := m.processes[in.ProcessID]; ok {
		p.StatusID = queue.ProcessError
		p.ErrorMessage = strPtr(in.ErrorMessage)
	}
	for _, t := range in.Touched {
		if d, ok := m.details[detailKey{in.ProcessID, t.VariableID}]; ok {
			d.StatusID = t.PrevStatus
		}
	}
	return nil
}

// SelectForTechnology flags and returns entries waiting for a technology worker
func (m *Memory) SelectForTechnology(ctx context.Context, limit int, priorityOnly bool) ([]queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("SelectForTechnology"); err != nil {
		return nil, err
	}
	matched := m.sorted(func(e *queue.Entry) bool {
		return e.Status == queue.StatusProcessing && e.IsSendToProcess &&
			!e.IsProcessingTechnology && !e.IsReadyToNext &&
			(!priorityOnly || e.Priority > 0)
	}, priorityOnly)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	for _, e := range matched {
		e.IsProcessingTechnology = true
		touch(e)
	}
	return copies(matched, 0), nil
}

// ClaimReadyForNext leases entries whose results can be forwarded
func (m *Memory) ClaimReadyForNext(ctx context.Context, limit int, lease time.Duration) ([]queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ClaimReadyForNext"); err != nil {
		return nil, err
	}
	now := time.Now()
	matched := m.sorted(func(e *queue.Entry) bool {
		if e.Status != queue.StatusReadyForNext || !e.IsReadyToNext {
			return false
		}
		at, leased := m.leases[e.ID]
		return !leased || now.Sub(at) >= lease
	}, true)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	for _, e := range matched {
		m.leases[e.ID] = now
	}
	return copies(matched, 0), nil
}

// ReleaseForward drops the forward lease of an entry
func (m *Memory) ReleaseForward(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ReleaseForward"); err != nil {
		return err
	}
	delete(m.leases, id)
	return nil
}

// Leased reports whether an entry holds a forward lease
func (m *Memory) Leased(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.leases[id]
	return ok
}

// MarkSentOnward moves a ReadyForNext entry to SentOnward
func (m *Memory) MarkSentOnward(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("MarkSentOnward"); err != nil {
		return err
	}
	e, ok := m.entries[id]
	if !ok || e.Status != queue.StatusReadyForNext {
		return fmt.Errorf("ready queue entry %d: %w", id, store.ErrNotFound)
	}
	e.Status = queue.StatusSentOnward
	e.IsReadyToNext = false
	delete(m.leases, id)
	touch(e)
	return nil
}

// SetQueueStatus sets an arbitrary entry status
func (m *Memory) SetQueueStatus(ctx context.Context, id int64, status queue.Status, errorMessage *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("SetQueueStatus"); err != nil {
		return err
	}
	e, ok := m.entries[id]
	if !ok {
		return fmt.Errorf("queue entry %d: %w", id, store.ErrNotFound)
	}
	e.Status = status
	e.ErrorMessage = errorMessage
	touch(e)
	return nil
}

// SaveProcessDetail inserts a Pending detail row
func (m *Memory) SaveProcessDetail(ctx context.Context, processID string, variableID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("SaveProcessDetail"); err != nil {
		return err
	}
	key := detailKey{processID, variableID}
	if _, ok := m.details[key]; !ok {
		m.details[key] = &queue.ProcessDetail{ProcessID: processID, VariableID: variableID, StatusID: queue.ProcessPending}
	}
	return nil
}

// SetDetailResults stores result metadata on a detail row
func (m *Memory) SetDetailResults(ctx context.Context, processID string, variableID int, r queue.DetailResults) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("SetDetailResults"); err != nil {
		return err
	}
	d, ok := m.details[detailKey{processID, variableID}]
	if !ok {
		return fmt.Errorf("process detail %s/%d: %w", processID, variableID, store.ErrNotFound)
	}
	d.Path = strPtr(r.Path)
	d.Size = strPtr(r.Size)
	files, transactions := r.QtyFiles, r.QtyTransactions
	d.QtyFiles = &files
	d.QtyTransactions = &transactions
	d.ExecutionTimeStart = r.ExecutionTimeStart
	d.ExecutionTimeEnd = r.ExecutionTimeEnd
	return nil
}

// RecordCallback applies a technology outcome and promotes siblings
func (m *Memory) RecordCallback(ctx context.Context, result queue.CallbackResult) (store.CallbackUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out store.CallbackUpdate
	if err := m.begin("RecordCallback"); err != nil {
		return out, err
	}

	basePath := queue.ReferenceBasePath(result.ResponsePath)
	status, response := queue.StatusPending, queue.ResponseExecutionFailed
	if result.IsSuccess {
		status, response = queue.StatusReadyForNext, queue.ResponseExecutionSuccess
	}

	for _, e := range m.entries {
		if e.ProcessID != result.ProcessID || e.ReferenceBasePath != basePath {
			continue
		}
		if e.Status == queue.StatusSentOnward {
			continue
		}
		e.TechnologyResponse = strPtr(response)
		e.TechnologySucceeded = result.IsSuccess
		e.ResponsePath = strPtr(result.ResponsePath)
		e.IsReadyToNext = true
		e.Status = status
		touch(e)
		out.Updated++
	}

	for _, e := range m.entries {
		if e.ProcessID != result.ProcessID || e.ReferenceBasePath == basePath {
			continue
		}
		if !e.TechnologySucceeded || e.Status == queue.StatusSentOnward {
			continue
		}
		if e.Status == queue.StatusReadyForNext && e.IsReadyToNext {
			continue
		}
		e.Status = queue.StatusReadyForNext
		e.IsReadyToNext = true
		touch(e)
		out.Promoted++
	}
	return out, nil
}

// Reprocess sends one entry back to Registered with a message
func (m *Memory) Reprocess(ctx context.Context, processID, referenceBasePath, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("Reprocess"); err != nil {
		return 0, err
	}
	var n int64
	for _, e := range m.entries {
		if e.ProcessID != processID || e.ReferenceBasePath != referenceBasePath {
			continue
		}
		e.Status = queue.StatusRegistered
		e.IsReadyToNext = false
		e.IsProcessingTechnology = false
		e.IsSendToProcess = false
		e.TechnologySucceeded = false
		e.TechnologyResponse = nil
		e.ErrorMessage = nil
		e.Message = strPtr(message)
		touch(e)
		n++
	}
	return n, nil
}

// SetProcessingTechnology sets the technology in-flight flag
func (m *Memory) SetProcessingTechnology(ctx context.Context, processID, referenceBasePath string, processing bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("SetProcessingTechnology"); err != nil {
		return 0, err
	}
	var n int64
	for _, e := range m.entries {
		if e.ProcessID == processID && e.ReferenceBasePath == referenceBasePath {
			e.IsProcessingTechnology = processing
			touch(e)
			n++
		}
	}
	return n, nil
}

// SetDataPath marks an entry as sent to process with its data path
func (m *Memory) SetDataPath(ctx context.Context, processID, referenceBasePath, dataPath string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("SetDataPath"); err != nil {
		return 0, err
	}
	var n int64
	for _, e := range m.entries {
		if e.ProcessID == processID && e.ReferenceBasePath == referenceBasePath {
			e.IsSendToProcess = true
			e.PathDataToProcess = strPtr(dataPath)
			touch(e)
			n++
		}
	}
	return n, nil
}

// ReprocessTicket re-enters every entry of a process through flow
func (m *Memory) ReprocessTicket(ctx context.Context, processID string, flow queue.ReprocessFlow) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ReprocessTicket"); err != nil {
		return 0, err
	}
	if !flow.Valid() {
		return 0, fmt.Errorf("unknown reprocess flow %d", flow)
	}

	var n int64
	for _, e := range m.entries {
		if e.ProcessID != processID {
			continue
		}
		switch flow {
		case queue.FlowTechnology:
			e.Status = queue.StatusRegistered
			e.IsReadyToNext = false
			e.IsProcessingTechnology = false
			e.IsSendToProcess = false
			e.TechnologySucceeded = false
			e.TechnologyResponse = nil
			e.ErrorMessage = nil
		case queue.FlowNext:
			if !e.TechnologySucceeded {
				continue
			}
			e.Status = queue.StatusReadyForNext
			e.IsReadyToNext = true
			delete(m.leases, e.ID)
		}
		touch(e)
		n++
	}
	if flow == queue.FlowTechnology {
		if p, ok := m.processes[processID]; ok {
			p.StatusID = queue.ProcessPending
			p.ErrorMessage = nil
		}
	}
	return n, nil
}

// CountWaiting counts entries that are Registered or Processing
func (m *Memory) CountWaiting(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CountWaiting"); err != nil {
		return 0, err
	}
	n := 0
	for _, e := range m.entries {
		if e.Status == queue.StatusRegistered || e.Status == queue.StatusProcessing {
			n++
		}
	}
	return n, nil
}

// Ping always succeeds unless a failure is injected
func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begin("Ping")
}
