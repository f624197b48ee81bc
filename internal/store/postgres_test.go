package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/digitalservices/queue-service/internal/database"
	"github.com/digitalservices/queue-service/internal/queue"
)

// setupStoreTestDB starts a postgres container with the queue schema.
func setupStoreTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if testing.Short() {
		t.Skip("skipping store test in short mode (requires Docker)")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start postgres container")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err, "Failed to create connection pool")

	require.NoError(t, database.Migrate(ctx, pool), "Failed to run migrations")

	cleanup := func() {
		pool.Close()
		testcontainers.TerminateContainer(container)
	}

	return pool, cleanup
}

func insertEntry(t *testing.T, s *Postgres, processID, basePath string, priority int) int64 {
	t.Helper()
	id, err := s.Insert(context.Background(), queue.NewEntry{
		ProcessID:          processID,
		Technology:         "ModelerX",
		TechnologyEndpoint: "http://modeler/run",
		IPAddress:          "10.0.0.1:8080",
		APINext:            "http://next/api",
		ReferenceBasePath:  basePath,
		AdditionalDataPath: "/data/" + processID + "/additional_data.txt",
		Priority:           priority,
	})
	require.NoError(t, err)
	return id
}

func TestPostgresStore(t *testing.T) {
	pool, cleanup := setupStoreTestDB(t)
	defer cleanup()

	s := NewPostgres(pool)

	reset := func(t *testing.T) {
		_, err := pool.Exec(context.Background(), `TRUNCATE process_queue, process, process_detail_system RESTART IDENTITY`)
		require.NoError(t, err)
	}

	t.Run("insert and claim", func(t *testing.T) {
		reset(t)
		ctx := context.Background()

		first := insertEntry(t, s, "DS1001", `\data\DS1001\pathA`, 0)
		second := insertEntry(t, s, "DS1002", `\data\DS1002\pathA`, 5)

		entry, err := s.Get(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusRegistered, entry.Status)
		assert.Equal(t, "10.0.0.1:8080", *entry.IPAddress)
		assert.Nil(t, entry.APIPrev)
		assert.True(t, entry.HasNext())

		claimed, err := s.ClaimBatch(ctx, ClaimOptions{Limit: 10})
		require.NoError(t, err)
		require.Len(t, claimed, 2)
		assert.Equal(t, first, claimed[0].ID)

		claimed, err = s.ClaimBatch(ctx, ClaimOptions{Limit: 10, PriorityOnly: true})
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, second, claimed[0].ID)
	})

	t.Run("mark processing is compare and set", func(t *testing.T) {
		reset(t)
		ctx := context.Background()
		id := insertEntry(t, s, "DS1001", `\data\DS1001\pathA`, 0)

		ok, err := s.MarkProcessing(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.MarkProcessing(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)

		entry, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusProcessing, entry.Status)
		assert.Equal(t, 1, entry.RetryCount)

		status, err := s.QueueStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusProcessing, status)

		_, err = s.QueueStatus(ctx, 9999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("in-flight limit makes claims busy", func(t *testing.T) {
		reset(t)
		ctx := context.Background()
		a := insertEntry(t, s, "P1", `\p\1`, 0)
		insertEntry(t, s, "P2", `\p\2`, 0)
		insertEntry(t, s, "P3", `\p\3`, 0)

		ok, err := s.MarkProcessing(ctx, a)
		require.NoError(t, err)
		require.True(t, ok)

		claimed, err := s.ClaimBatch(ctx, ClaimOptions{Limit: 5, MaxInFlight: 2})
		require.NoError(t, err)
		assert.Len(t, claimed, 1)

		_, err = s.ClaimBatch(ctx, ClaimOptions{Limit: 5, MaxInFlight: 1})
		assert.ErrorIs(t, err, ErrBusy)
	})

	t.Run("held claim lock makes claims busy", func(t *testing.T) {
		reset(t)
		ctx := context.Background()
		insertEntry(t, s, "P1", `\p\1`, 0)

		tx, err := pool.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		var locked bool
		require.NoError(t, tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, dispatchLockKey).Scan(&locked))
		require.True(t, locked)

		_, err = s.ClaimBatch(ctx, ClaimOptions{Limit: 5})
		assert.ErrorIs(t, err, ErrBusy)

		require.NoError(t, tx.Rollback(ctx))

		claimed, err := s.ClaimBatch(ctx, ClaimOptions{Limit: 5})
		require.NoError(t, err)
		assert.Len(t, claimed, 1)
	})

	t.Run("rollback restores prior detail statuses", func(t *testing.T) {
		reset(t)
		ctx := context.Background()
		id := insertEntry(t, s, "DS1001", `\data\DS1001\pathA`, 0)

		_, err := pool.Exec(ctx, `INSERT INTO process (id, status_id) VALUES ('DS1001', 19)`)
		require.NoError(t, err)
		require.NoError(t, s.SaveProcessDetail(ctx, "DS1001", 11))
		require.NoError(t, s.SaveProcessDetail(ctx, "DS1001", 12))
		_, err = s.SetDetailStatus(ctx, "DS1001", 12, queue.ProcessSuccess)
		require.NoError(t, err)

		ok, err := s.MarkProcessing(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, s.SetProcessStatus(ctx, "DS1001", queue.ProcessInProgress, nil))

		var touched []queue.TouchedDetail
		for _, v := range []int{11, 12} {
			prev, err := s.SetDetailStatus(ctx, "DS1001", v, queue.ProcessInProgress)
			require.NoError(t, err)
			touched = append(touched, queue.TouchedDetail{VariableID: v, PrevStatus: prev})
		}
		assert.Equal(t, queue.ProcessPending, touched[0].PrevStatus)
		assert.Equal(t, queue.ProcessSuccess, touched[1].PrevStatus)

		err = s.Rollback(ctx, queue.RollbackInput{
			QueueID:        id,
			ProcessID:      "DS1001",
			Touched:        touched,
			OriginalStatus: queue.StatusRegistered,
			ErrorStatus:    queue.StatusError,
			ErrorMessage:   "side file missing",
		})
		require.NoError(t, err)

		entry, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusError, entry.Status)
		require.NotNil(t, entry.ErrorMessage)
		assert.Equal(t, "side file missing", *entry.ErrorMessage)

		var processStatus int
		require.NoError(t, pool.QueryRow(ctx, `SELECT status_id FROM process WHERE id = 'DS1001'`).Scan(&processStatus))
		assert.Equal(t, int(queue.ProcessError), processStatus)

		rows, err := pool.Query(ctx, `SELECT variable_id, status_id FROM process_detail_system WHERE process_id = 'DS1001' ORDER BY variable_id`)
		require.NoError(t, err)
		got := map[int]int{}
		for rows.Next() {
			var v, st int
			require.NoError(t, rows.Scan(&v, &st))
			got[v] = st
		}
		rows.Close()
		assert.Equal(t, map[int]int{11: int(queue.ProcessPending), 12: int(queue.ProcessSuccess)}, got)

		_, err = s.SetDetailStatus(ctx, "DS1001", 99, queue.ProcessInProgress)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.SetProcessStatus(ctx, "missing", queue.ProcessError, nil), ErrNotFound)
	})

	t.Run("callback promotes siblings idempotently", func(t *testing.T) {
		reset(t)
		ctx := context.Background()
		a := insertEntry(t, s, "P", `\runs\P\A`, 0)
		b := insertEntry(t, s, "P", `\runs\P\B`, 0)
		c := insertEntry(t, s, "P", `\runs\P\C`, 0)
		other := insertEntry(t, s, "Q", `\runs\Q\A`, 0)

		_, err := pool.Exec(ctx, `UPDATE process_queue SET queue_status = 15, queue_technology_succeeded = TRUE,
			queue_technology_response = 'Ejecución con éxito' WHERE id = ANY($1)`, []int64{a, b, other})
		require.NoError(t, err)

		res, err := s.RecordCallback(ctx, queue.CallbackResult{ProcessID: "P", ResponsePath: `\runs\P\C\out`, IsSuccess: true})
		require.NoError(t, err)
		assert.Equal(t, CallbackUpdate{Updated: 1, Promoted: 2}, res)

		for _, id := range []int64{a, b, c} {
			e, err := s.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, queue.StatusReadyForNext, e.Status, "entry %d", id)
			assert.True(t, e.IsReadyToNext, "entry %d", id)
		}
		cEntry, err := s.Get(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, queue.ResponseExecutionSuccess, *cEntry.TechnologyResponse)
		assert.Equal(t, `\runs\P\C\out`, *cEntry.ResponsePath)

		o, err := s.Get(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusProcessing, o.Status)

		res, err = s.RecordCallback(ctx, queue.CallbackResult{ProcessID: "P", ResponsePath: `\runs\P\C\out`, IsSuccess: true})
		require.NoError(t, err)
		assert.Equal(t, int64(0), res.Promoted)

		ready, err := s.ClaimReadyForNext(ctx, 10, time.Minute)
		require.NoError(t, err)
		assert.Len(t, ready, 3)
	})

	t.Run("redelivered callback leaves sent onward entry alone", func(t *testing.T) {
		reset(t)
		ctx := context.Background()
		id := insertEntry(t, s, "P", `\runs\P\A`, 0)
		_, err := pool.Exec(ctx, `UPDATE process_queue SET queue_status = 3, queue_technology_succeeded = TRUE WHERE id = $1`, id)
		require.NoError(t, err)

		res, err := s.RecordCallback(ctx, queue.CallbackResult{ProcessID: "P", ResponsePath: `\runs\P\A\out`, IsSuccess: true})
		require.NoError(t, err)
		assert.Equal(t, int64(0), res.Updated)

		e, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusSentOnward, e.Status)
		assert.False(t, e.IsReadyToNext)
	})

	t.Run("ready claims are leased", func(t *testing.T) {
		reset(t)
		ctx := context.Background()
		low := insertEntry(t, s, "P", `\runs\P\A`, 0)
		high := insertEntry(t, s, "P", `\runs\P\B`, 5)
		_, err := pool.Exec(ctx, `UPDATE process_queue SET queue_status = 16, queue_is_ready_to_next = TRUE`)
		require.NoError(t, err)

		first, err := s.ClaimReadyForNext(ctx, 10, time.Minute)
		require.NoError(t, err)
		require.Len(t, first, 2)
		assert.Equal(t, high, first[0].ID)
		assert.Equal(t, low, first[1].ID)

		second, err := s.ClaimReadyForNext(ctx, 10, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, second)

		require.NoError(t, s.ReleaseForward(ctx, low))
		require.NoError(t, s.MarkSentOnward(ctx, high))

		third, err := s.ClaimReadyForNext(ctx, 10, time.Minute)
		require.NoError(t, err)
		require.Len(t, third, 1)
		assert.Equal(t, low, third[0].ID)

		_, err = pool.Exec(ctx, `UPDATE process_queue SET queue_forward_claimed_at = NOW() - INTERVAL '2 minutes' WHERE id = $1`, low)
		require.NoError(t, err)
		expired, err := s.ClaimReadyForNext(ctx, 10, time.Minute)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, low, expired[0].ID)
	})

	t.Run("failed callback marks pending", func(t *testing.T) {
		reset(t)
		ctx := context.Background()
		id := insertEntry(t, s, "P", `\runs\P\A`, 0)

		_, err := s.RecordCallback(ctx, queue.CallbackResult{ProcessID: "P", ResponsePath: `\runs\P\A\out`, IsSuccess: false})
		require.NoError(t, err)

		e, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusPending, e.Status)
		assert.False(t, e.TechnologySucceeded)
		assert.Equal(t, queue.ResponseExecutionFailed, *e.TechnologyResponse)
	})

	t.Run("sent onward entries are not promoted", func(t *testing.T) {
		reset(t)
		ctx := context.Background()
		sent := insertEntry(t, s, "P", `\runs\P\A`, 0)
		insertEntry(t, s, "P", `\runs\P\B`, 0)
		_, err := pool.Exec(ctx, `UPDATE process_queue SET queue_status = 3, queue_technology_succeeded = TRUE WHERE id = $1`, sent)
		require.NoError(t, err)

		res, err := s.RecordCallback(ctx, queue.CallbackResult{ProcessID: "P", ResponsePath: `\runs\P\B\out`, IsSuccess: true})
		require.NoError(t, err)
		assert.Equal(t, int64(0), res.Promoted)

		e, err := s.Get(ctx, sent)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusSentOnward, e.Status)
	})

	t.Run("reprocess resets entry", func(t *testing.T) {
		reset(t)
		ctx := context.Background()
		id := insertEntry(t, s, "P", `\runs\P\A`, 0)
		_, err := pool.Exec(ctx, `UPDATE process_queue SET queue_status = 16, queue_is_ready_to_next = TRUE,
			queue_is_processing_technology = TRUE, queue_technology_succeeded = TRUE WHERE id = $1`, id)
		require.NoError(t, err)

		n, err := s.Reprocess(ctx, "P", `\runs\P\A`, queue.MessageReprocessZeroBytes)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		e, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusRegistered, e.Status)
		assert.False(t, e.IsReadyToNext)
		assert.False(t, e.IsProcessingTechnology)
		assert.Equal(t, queue.MessageReprocessZeroBytes, *e.Message)

		claimed, err := s.ClaimBatch(ctx, ClaimOptions{Limit: 5})
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, id, claimed[0].ID)
	})

	t.Run("technology selection flags entries once", func(t *testing.T) {
		reset(t)
		ctx := context.Background()
		id := insertEntry(t, s, "P", `\runs\P\A`, 0)
		ok, err := s.MarkProcessing(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)

		n, err := s.SetDataPath(ctx, "P", `\runs\P\A`, `\runs\P\A\data`)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		selected, err := s.SelectForTechnology(ctx, 5, false)
		require.NoError(t, err)
		require.Len(t, selected, 1)
		assert.True(t, selected[0].IsProcessingTechnology)
		assert.Equal(t, `\runs\P\A\data`, *selected[0].PathDataToProcess)

		selected, err = s.SelectForTechnology(ctx, 5, false)
		require.NoError(t, err)
		assert.Empty(t, selected)

		n, err = s.SetProcessingTechnology(ctx, "P", `\runs\P\A`, false)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		selected, err = s.SelectForTechnology(ctx, 5, true)
		require.NoError(t, err)
		assert.Empty(t, selected)
	})

	t.Run("sent onward clears ready flag", func(t *testing.T) {
		reset(t)
		ctx := context.Background()
		id := insertEntry(t, s, "P", `\runs\P\A`, 0)
		_, err := pool.Exec(ctx, `UPDATE process_queue SET queue_status = 16, queue_is_ready_to_next = TRUE WHERE id = $1`, id)
		require.NoError(t, err)

		require.NoError(t, s.MarkSentOnward(ctx, id))
		e, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusSentOnward, e.Status)
		assert.False(t, e.IsReadyToNext)

		assert.True(t, errors.Is(s.MarkSentOnward(ctx, id), ErrNotFound))
	})

	t.Run("reprocess ticket flows", func(t *testing.T) {
		reset(t)
		ctx := context.Background()
		ok := insertEntry(t, s, "P", `\runs\P\A`, 0)
		failed := insertEntry(t, s, "P", `\runs\P\B`, 0)
		_, err := pool.Exec(ctx, `INSERT INTO process (id, status_id) VALUES ('P', 4)`)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, `UPDATE process_queue SET queue_status = 3, queue_technology_succeeded = TRUE WHERE id = $1`, ok)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, `UPDATE process_queue SET queue_status = 18 WHERE id = $1`, failed)
		require.NoError(t, err)

		n, err := s.ReprocessTicket(ctx, "P", queue.FlowNext)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		e, err := s.Get(ctx, ok)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusReadyForNext, e.Status)
		assert.True(t, e.IsReadyToNext)

		n, err = s.ReprocessTicket(ctx, "P", queue.FlowTechnology)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		for _, id := range []int64{ok, failed} {
			e, err := s.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, queue.StatusRegistered, e.Status)
			assert.False(t, e.TechnologySucceeded)
		}
		var processStatus int
		require.NoError(t, pool.QueryRow(ctx, `SELECT status_id FROM process WHERE id = 'P'`).Scan(&processStatus))
		assert.Equal(t, int(queue.ProcessPending), processStatus)

		_, err = s.ReprocessTicket(ctx, "P", queue.ReprocessFlow(3))
		assert.Error(t, err)
	})

	t.Run("detail results and waiting count", func(t *testing.T) {
		reset(t)
		ctx := context.Background()
		insertEntry(t, s, "P", `\runs\P\A`, 0)
		id := insertEntry(t, s, "P", `\runs\P\B`, 0)
		insertEntry(t, s, "P", `\runs\P\C`, 0)
		require.NoError(t, s.SetQueueStatus(ctx, id, queue.StatusProcessing, nil))

		n, err := s.CountWaiting(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		msg := "boom"
		require.NoError(t, s.SetQueueStatus(ctx, id, queue.StatusError, &msg))
		n, err = s.CountWaiting(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.ErrorIs(t, s.SetQueueStatus(ctx, 999, queue.StatusError, nil), ErrNotFound)

		require.NoError(t, s.SaveProcessDetail(ctx, "P", 7))
		start := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
		require.NoError(t, s.SetDetailResults(ctx, "P", 7, queue.DetailResults{
			Path: `\P\results`, Size: "1.5 KB", QtyFiles: 3, QtyTransactions: 3, ExecutionTimeStart: &start,
		}))

		var size string
		var files int
		require.NoError(t, pool.QueryRow(ctx, `SELECT size, qty_files FROM process_detail_system WHERE process_id = 'P' AND variable_id = 7`).Scan(&size, &files))
		assert.Equal(t, "1.5 KB", size)
		assert.Equal(t, 3, files)

		assert.ErrorIs(t, s.SetDetailResults(ctx, "P", 8, queue.DetailResults{}), ErrNotFound)
		require.NoError(t, s.Ping(ctx))
	})
}
