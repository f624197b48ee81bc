package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalservices/queue-service/internal/events"
	httpclient "github.com/digitalservices/queue-service/internal/http"
	"github.com/digitalservices/queue-service/internal/queue"
	"github.com/digitalservices/queue-service/internal/storage"
	"github.com/digitalservices/queue-service/internal/store"
	"github.com/digitalservices/queue-service/internal/store/storetest"
)

type testEnv struct {
	store  *storetest.Memory
	files  *storage.LocalStorage
	events *events.Recorder
	dir    string
	d      *Dispatcher
}

func newTestEnv(t *testing.T, st store.StatusStore, cfg Config) *testEnv {
	t.Helper()
	dir := t.TempDir()
	files := storage.NewLocalStorage(dir)
	rec := &events.Recorder{}
	logger := zerolog.Nop()

	mem, _ := st.(*storetest.Memory)
	env := &testEnv{store: mem, files: files, events: rec, dir: dir}
	env.d = New(st, files, httpclient.NewClientDefault(), rec, &logger, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, env.d.Wait(ctx), "fired requests still pending")
	})
	return env
}

func defaultConfig() Config {
	return Config{
		BatchSize:           5,
		Concurrency:         4,
		TechnologyBatchSize: 1,
		NextBatchSize:       10,
		ErrorStatus:         queue.StatusError,
		ActionDs:            "http://ds.local/api/action",
		DownloadTimeout:     5 * time.Second,
	}
}

// sideFile builds an additional data document for processID
func sideFile(processID, resultsFolder string, variableIDs ...int) string {
	tasks := make([]string, 0, len(variableIDs))
	for i, v := range variableIDs {
		tasks = append(tasks, fmt.Sprintf(`"t%d": {"proceso_id": %d}`, i+1, v))
	}
	return fmt.Sprintf(`{
		"nivel_1_data_modeler": {"FolderPath": "/data/%[1]s", "ProcessId": "%[1]s", "Type": 1, "FlowName": "f", "TaskName": "t", "Archivos": {}},
		"nivel_2_data_next_endpoint": {"ResultsFolderPath": %[2]q, "ProcessTasks": {%[3]s}, "Extra": "kept"}
	}`, processID, resultsFolder, strings.Join(tasks, ","))
}

func (env *testEnv) writeSideFile(t *testing.T, processID, content string) string {
	t.Helper()
	path, err := env.files.WriteSideFile(context.Background(), filepath.Join(env.dir, processID), []byte(content))
	require.NoError(t, err)
	return path
}

func (env *testEnv) addRegistered(t *testing.T, processID, endpoint string, variableIDs ...int) int64 {
	t.Helper()
	path := env.writeSideFile(t, processID, sideFile(processID, filepath.Join(env.dir, processID, "out"), variableIDs...))
	return env.store.AddEntry(queue.Entry{
		ProcessID:          processID,
		Technology:         "ModelerX",
		TechnologyEndpoint: endpoint,
		ReferenceBasePath:  `\data\` + processID + `\pathA`,
		AdditionalDataPath: path,
		Status:             queue.StatusRegistered,
	})
}

// technologyServer accepts requests and records their bodies
func technologyServer(t *testing.T) (*httptest.Server, <-chan map[string]any) {
	t.Helper()
	bodies := make(chan map[string]any, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies <- body
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)
	return srv, bodies
}

func closedURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestRunDispatchesRegisteredEntry(t *testing.T) {
	mem := storetest.NewMemory()
	env := newTestEnv(t, mem, defaultConfig())
	srv, bodies := technologyServer(t)

	mem.AddProcess("DS1001", queue.ProcessPending)
	mem.AddDetail("DS1001", 11, queue.ProcessPending)
	mem.AddDetail("DS1001", 12, queue.ProcessPending)
	id := env.addRegistered(t, "DS1001", srv.URL, 11, 12)

	result, err := env.d.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, MessageRunDispatched, result.Message)
	assert.NotEmpty(t, result.BatchID)
	require.Len(t, result.Results, 1)
	assert.Equal(t, EntryResult{QueueID: id, ProcessID: "DS1001", Outcome: OutcomeDispatched}, result.Results[0])

	entry, _ := mem.Entry(id)
	assert.Equal(t, queue.StatusProcessing, entry.Status)
	assert.Equal(t, 1, entry.RetryCount)
	require.NotNil(t, entry.TechnologyResponse)
	assert.Equal(t, queue.ResponseRequestSent, *entry.TechnologyResponse)

	process, _ := mem.Process("DS1001")
	assert.Equal(t, queue.ProcessInProgress, process.StatusID)
	for _, v := range []int{11, 12} {
		detail, _ := mem.Detail("DS1001", v)
		assert.Equal(t, queue.ProcessInProgress, detail.StatusID)
	}

	select {
	case body := <-bodies:
		assert.Equal(t, "DS1001", body["ProcessId"])
		assert.Equal(t, "/data/DS1001", body["FolderPath"])
		assert.Equal(t, "http://ds.local/api/action", body["ApiActionDs"])
		assert.NotContains(t, body, "nivel_2_data_next_endpoint")
	case <-time.After(5 * time.Second):
		t.Fatal("technology endpoint never called")
	}

	assert.Len(t, env.events.OfType(events.TypeDispatched), 1)
}

func TestRunDoesNotWaitForTechnologyResponse(t *testing.T) {
	mem := storetest.NewMemory()
	env := newTestEnv(t, mem, defaultConfig())

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mem.AddProcess("P1", queue.ProcessPending)
	id := env.addRegistered(t, "P1", srv.URL)

	done := make(chan *BatchResult, 1)
	go func() {
		result, err := env.d.Run(context.Background(), false)
		assert.NoError(t, err)
		done <- result
	}()

	select {
	case result := <-done:
		assert.Equal(t, OutcomeDispatched, result.Results[0].Outcome)
	case <-time.After(5 * time.Second):
		t.Fatal("Run blocked on the technology response")
	}

	entry, _ := mem.Entry(id)
	assert.Equal(t, queue.StatusProcessing, entry.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, env.d.Wait(ctx), context.DeadlineExceeded)

	close(release)
}

func TestRunRollsBackWhenSideFileMissing(t *testing.T) {
	mem := storetest.NewMemory()
	env := newTestEnv(t, mem, defaultConfig())

	mem.AddProcess("P1", queue.ProcessPending)
	id := mem.AddEntry(queue.Entry{
		ProcessID:          "P1",
		TechnologyEndpoint: closedURL(t),
		AdditionalDataPath: filepath.Join(env.dir, "missing", queue.SideFileName),
		Status:             queue.StatusRegistered,
	})

	result, err := env.d.Run(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, OutcomeFailed, result.Results[0].Outcome)
	assert.Contains(t, result.Results[0].Error, "additional data")

	entry, _ := mem.Entry(id)
	assert.Equal(t, queue.StatusError, entry.Status)
	require.NotNil(t, entry.ErrorMessage)
	assert.True(t, strings.HasPrefix(*entry.ErrorMessage, rollbackMessagePrefix))

	process, _ := mem.Process("P1")
	assert.Equal(t, queue.ProcessError, process.StatusID)
	assert.Len(t, env.events.OfType(events.TypeRolledBack), 1)
}

func TestRunRollbackRestoresTouchedDetails(t *testing.T) {
	mem := storetest.NewMemory()
	env := newTestEnv(t, mem, defaultConfig())

	mem.AddProcess("P1", queue.ProcessPending)
	mem.AddDetail("P1", 11, queue.ProcessPending)
	mem.AddDetail("P1", 12, queue.ProcessSuccess)
	id := env.addRegistered(t, "P1", closedURL(t), 11, 12, 13)

	result, err := env.d.Run(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, OutcomeFailed, result.Results[0].Outcome)

	entry, _ := mem.Entry(id)
	assert.Equal(t, queue.StatusError, entry.Status)
	assert.Equal(t, 1, entry.RetryCount)

	process, _ := mem.Process("P1")
	assert.Equal(t, queue.ProcessError, process.StatusID)

	d11, _ := mem.Detail("P1", 11)
	d12, _ := mem.Detail("P1", 12)
	assert.Equal(t, queue.ProcessPending, d11.StatusID)
	assert.Equal(t, queue.ProcessSuccess, d12.StatusID)
	_, exists := mem.Detail("P1", 13)
	assert.False(t, exists)

	assert.Equal(t, 1, mem.Calls("Rollback"))
}

func TestRunZeroErrorStatusRestoresRegistered(t *testing.T) {
	mem := storetest.NewMemory()
	cfg := defaultConfig()
	cfg.ErrorStatus = 0
	env := newTestEnv(t, mem, cfg)

	mem.AddProcess("P1", queue.ProcessPending)
	id := env.addRegistered(t, "P1", closedURL(t))

	_, err := env.d.Run(context.Background(), false)
	require.NoError(t, err)

	entry, _ := mem.Entry(id)
	assert.Equal(t, queue.StatusRegistered, entry.Status)
	require.NotNil(t, entry.ErrorMessage)
}

func TestRunDetailFailureIsCompensated(t *testing.T) {
	mem := storetest.NewMemory()
	env := newTestEnv(t, mem, defaultConfig())
	srv, _ := technologyServer(t)

	mem.AddProcess("P1", queue.ProcessPending)
	mem.AddDetail("P1", 11, queue.ProcessPending)
	mem.FailOn("SetDetailStatus", errors.New("deadlock detected"))
	id := env.addRegistered(t, "P1", srv.URL, 11)

	result, err := env.d.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, result.Results[0].Outcome)
	assert.Contains(t, result.Results[0].Error, "deadlock detected")

	entry, _ := mem.Entry(id)
	assert.Equal(t, queue.StatusError, entry.Status)
}

func TestRunBusyReturnsNeutralMessage(t *testing.T) {
	mem := storetest.NewMemory()
	env := newTestEnv(t, mem, defaultConfig())
	env.addRegistered(t, "P1", closedURL(t))
	mem.SetBusy(true)

	result, err := env.d.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, MessageRunIdle, result.Message)
	assert.Empty(t, result.Results)
	assert.Equal(t, 0, mem.Calls("MarkProcessing"))
}

func TestRunClaimFailureIsBatchError(t *testing.T) {
	mem := storetest.NewMemory()
	env := newTestEnv(t, mem, defaultConfig())
	mem.FailOn("ClaimBatch", errors.New("connection refused"))

	_, err := env.d.Run(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRunPriorityOnlyClaimsPrioritized(t *testing.T) {
	mem := storetest.NewMemory()
	env := newTestEnv(t, mem, defaultConfig())
	srv, _ := technologyServer(t)

	mem.AddProcess("P1", queue.ProcessPending)
	mem.AddProcess("P2", queue.ProcessPending)
	low := env.addRegistered(t, "P1", srv.URL)
	high := env.addRegistered(t, "P2", srv.URL)
	e, _ := mem.Entry(high)
	e.Priority = 5
	mem.AddEntry(e)

	result, err := env.d.Run(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, high, result.Results[0].QueueID)

	lowEntry, _ := mem.Entry(low)
	assert.Equal(t, queue.StatusRegistered, lowEntry.Status)
}

// staleClaim returns a fixed claim whatever the stored statuses are
type staleClaim struct {
	*storetest.Memory
	claimed []queue.Entry
}

func (s *staleClaim) ClaimBatch(context.Context, store.ClaimOptions) ([]queue.Entry, error) {
	return s.claimed, nil
}

func TestRunSkipsEntriesThatMovedOn(t *testing.T) {
	mem := storetest.NewMemory()
	mem.AddProcess("P1", queue.ProcessPending)
	id := mem.AddEntry(queue.Entry{ProcessID: "P1", Status: queue.StatusProcessing})
	stale, _ := mem.Entry(id)
	stale.Status = queue.StatusRegistered

	env := newTestEnv(t, &staleClaim{Memory: mem, claimed: []queue.Entry{stale}}, defaultConfig())

	result, err := env.d.Run(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, OutcomeSkipped, result.Results[0].Outcome)
	assert.Equal(t, 0, mem.Calls("MarkProcessing"))
	assert.Equal(t, 0, mem.Calls("Rollback"))
}

func TestConcurrentRunsDispatchEachEntryOnce(t *testing.T) {
	mem := storetest.NewMemory()
	env := newTestEnv(t, mem, defaultConfig())

	var mu sync.Mutex
	hits := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		hits[fmt.Sprint(body["ProcessId"])]++
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	for i := 0; i < 4; i++ {
		pid := fmt.Sprintf("P%d", i)
		mem.AddProcess(pid, queue.ProcessPending)
		env.addRegistered(t, pid, srv.URL)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.d.Run(context.Background(), false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.d.Wait(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, hits, 4)
	for pid, n := range hits {
		assert.Equal(t, 1, n, "process %s dispatched more than once", pid)
	}
}

func TestReprocessedEntryIsDispatchedAgain(t *testing.T) {
	mem := storetest.NewMemory()
	env := newTestEnv(t, mem, defaultConfig())
	srv, _ := technologyServer(t)

	mem.AddProcess("P1", queue.ProcessPending)
	id := env.addRegistered(t, "P1", srv.URL)
	e, _ := mem.Entry(id)
	e.Status = queue.StatusReadyForNext
	e.IsReadyToNext = true
	mem.AddEntry(e)

	n, err := mem.Reprocess(context.Background(), "P1", e.ReferenceBasePath, queue.MessageReprocessZeroBytes)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	result, err := env.d.Run(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, OutcomeDispatched, result.Results[0].Outcome)

	entry, _ := mem.Entry(id)
	assert.Equal(t, queue.StatusProcessing, entry.Status)
	assert.False(t, entry.IsReadyToNext)
}

func TestSelectForTechnology(t *testing.T) {
	mem := storetest.NewMemory()
	cfg := defaultConfig()
	cfg.TechnologyBatchSize = 2
	env := newTestEnv(t, mem, cfg)

	for i := 0; i < 3; i++ {
		mem.AddEntry(queue.Entry{ProcessID: fmt.Sprintf("P%d", i), Status: queue.StatusProcessing, IsSendToProcess: true})
	}
	mem.AddEntry(queue.Entry{ProcessID: "waiting", Status: queue.StatusProcessing})

	entries, err := env.d.SelectForTechnology(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, e.IsProcessingTechnology)
	}

	entries, err = env.d.SelectForTechnology(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	entries, err = env.d.SelectForTechnology(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, entries)

	mem.FailOn("SelectForTechnology", errors.New("boom"))
	_, err = env.d.SelectForTechnology(context.Background(), true)
	assert.Error(t, err)
}
