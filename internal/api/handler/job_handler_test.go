package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnguyen/collections-be/internal/api/dto"
	"github.com/dnguyen/collections-be/internal/api/handler"
	"github.com/dnguyen/collections-be/internal/api/router"
	"github.com/dnguyen/collections-be/internal/collections"
	"github.com/dnguyen/collections-be/internal/jobs"
)

const (
	testSourceID = "11111111-1111-1111-1111-111111111111"
	testTargetID = "22222222-2222-2222-2222-222222222222"
)

// syncDispatcher executes jobs synchronously so tests observe terminal
// states without polling.
type syncDispatcher struct {
	executor *jobs.Executor
}

func (d *syncDispatcher) Dispatch(ctx context.Context, jobID string) error {
	return d.executor.Run(context.Background(), jobID)
}

// noopDispatcher leaves jobs pending.
type noopDispatcher struct{}

func (noopDispatcher) Dispatch(ctx context.Context, jobID string) error { return nil }

type apiFixture struct {
	router      *gin.Engine
	store       *jobs.MemoryStore
	memberships *collections.MemoryStore
}

func newAPIFixture(t *testing.T, dispatcherFor func(*jobs.Executor) jobs.Dispatcher) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	memberships := collections.NewMemoryStore()
	memberships.CreateCollection(testSourceID, "Source List")
	memberships.CreateCollection(testTargetID, "Target List")

	store := jobs.NewMemoryStore()
	registry := jobs.NewRegistry(store, logger)
	executor := jobs.NewExecutor(&jobs.ExecutorConfig{
		Store:       store,
		Memberships: memberships,
		Logger:      logger,
	})

	r := router.SetupRouter(&handler.Dependencies{
		Logger:      logger,
		Registry:    registry,
		Collections: memberships,
		Dispatcher:  dispatcherFor(executor),
	})

	return &apiFixture{
		router:      r,
		store:       store,
		memberships: memberships,
	}
}

func syncFixture(t *testing.T) *apiFixture {
	return newAPIFixture(t, func(e *jobs.Executor) jobs.Dispatcher {
		return &syncDispatcher{executor: e}
	})
}

func pendingFixture(t *testing.T) *apiFixture {
	return newAPIFixture(t, func(*jobs.Executor) jobs.Dispatcher {
		return noopDispatcher{}
	})
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func bulkAddBody(kind string, data dto.SelectionData, key string) dto.BulkAddRequest {
	return dto.BulkAddRequest{
		SourceCollectionID: testSourceID,
		TargetCollectionID: testTargetID,
		SelectionKind:      kind,
		SelectionData:      data,
		IdempotencyKey:     key,
	}
}

func TestBulkAdd_Validation(t *testing.T) {
	f := pendingFixture(t)

	tests := []struct {
		name string
		body dto.BulkAddRequest
	}{
		{
			name: "missing source",
			body: dto.BulkAddRequest{
				TargetCollectionID: testTargetID,
				SelectionKind:      "explicit",
				SelectionData:      dto.SelectionData{IDs: []int64{1}},
			},
		},
		{
			name: "source not a uuid",
			body: dto.BulkAddRequest{
				SourceCollectionID: "not-a-uuid",
				TargetCollectionID: testTargetID,
				SelectionKind:      "explicit",
				SelectionData:      dto.SelectionData{IDs: []int64{1}},
			},
		},
		{
			name: "unknown selection kind",
			body: bulkAddBody("everything", dto.SelectionData{}, ""),
		},
		{
			name: "explicit without ids",
			body: bulkAddBody("explicit", dto.SelectionData{}, ""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/jobs/bulk-add", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestBulkAdd_SubmitAndPollToCompletion(t *testing.T) {
	f := syncFixture(t)

	require.NoError(t, f.memberships.Add(context.Background(), testTargetID, 5))

	w := f.do(t, http.MethodPost, "/api/v1/jobs/bulk-add",
		bulkAddBody("explicit", dto.SelectionData{IDs: []int64{5, 5, 7}}, ""))
	require.Equal(t, http.StatusAccepted, w.Code)

	var created dto.BulkAddResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.JobID)
	assert.Equal(t, 2, created.EstimatedTotal)

	w = f.do(t, http.MethodGet, "/api/v1/jobs/"+created.JobID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status dto.JobStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))

	assert.Equal(t, jobs.StatusCompleted, status.Status)
	assert.Equal(t, 2, status.TotalItems)
	assert.Equal(t, 2, status.ProcessedItems)
	assert.Equal(t, 1, status.AddedItems)
	assert.Equal(t, 1, status.SkippedItems)
	assert.Equal(t, 0, status.FailedItems)
	assert.InDelta(t, 100.0, status.ProgressPct, 0.001)
	assert.Empty(t, status.ErrorMessage)
}

func TestBulkAdd_IdempotentResubmission(t *testing.T) {
	f := pendingFixture(t)

	body := bulkAddBody("explicit", dto.SelectionData{IDs: []int64{1, 2}}, "retry-key")

	w := f.do(t, http.MethodPost, "/api/v1/jobs/bulk-add", body)
	require.Equal(t, http.StatusAccepted, w.Code)
	var first dto.BulkAddResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))

	// Retried submission (same key, even a different selection) returns
	// the same job without creating or dispatching a second one.
	body.SelectionData.IDs = []int64{9}
	w = f.do(t, http.MethodPost, "/api/v1/jobs/bulk-add", body)
	require.Equal(t, http.StatusOK, w.Code)
	var second dto.BulkAddResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))

	assert.Equal(t, first.JobID, second.JobID)

	all, err := f.store.List(context.Background(), jobs.ListFilter{PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBulkAdd_SourceEqualsTargetFailsAsync(t *testing.T) {
	f := syncFixture(t)

	body := bulkAddBody("explicit", dto.SelectionData{IDs: []int64{1}}, "")
	body.TargetCollectionID = testSourceID

	w := f.do(t, http.MethodPost, "/api/v1/jobs/bulk-add", body)
	require.Equal(t, http.StatusAccepted, w.Code)

	var created dto.BulkAddResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = f.do(t, http.MethodGet, "/api/v1/jobs/"+created.JobID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status dto.JobStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))

	assert.Equal(t, jobs.StatusFailed, status.Status)
	assert.NotEmpty(t, status.ErrorMessage)
	assert.Zero(t, status.ProcessedItems)
}

func TestGetJob_NotFound(t *testing.T) {
	f := pendingFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/jobs/99999999-9999-9999-9999-999999999999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelJob(t *testing.T) {
	f := pendingFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/jobs/bulk-add",
		bulkAddBody("explicit", dto.SelectionData{IDs: []int64{1}}, ""))
	require.Equal(t, http.StatusAccepted, w.Code)

	var created dto.BulkAddResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/cancel", created.JobID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var cancel dto.CancelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cancel))
	assert.Equal(t, created.JobID, cancel.JobID)
	assert.Equal(t, "Cancellation requested", cancel.Message)
}

func TestCancelJob_AlreadyTerminal(t *testing.T) {
	f := syncFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/jobs/bulk-add",
		bulkAddBody("explicit", dto.SelectionData{IDs: []int64{1}}, ""))
	require.Equal(t, http.StatusAccepted, w.Code)

	var created dto.BulkAddResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/cancel", created.JobID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelJob_NotFound(t *testing.T) {
	f := pendingFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/jobs/99999999-9999-9999-9999-999999999999/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListJobs_Pagination(t *testing.T) {
	f := pendingFixture(t)

	for i := 0; i < 5; i++ {
		w := f.do(t, http.MethodPost, "/api/v1/jobs/bulk-add",
			bulkAddBody("explicit", dto.SelectionData{IDs: []int64{int64(i)}}, ""))
		require.Equal(t, http.StatusAccepted, w.Code)
	}

	w := f.do(t, http.MethodGet, "/api/v1/jobs?page_size=3", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page1 dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page1))
	assert.Len(t, page1.Jobs, 3)
	require.NotEmpty(t, page1.NextCursor)

	w = f.do(t, http.MethodGet, "/api/v1/jobs?page_size=3&cursor="+page1.NextCursor, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page2 dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page2))
	assert.Len(t, page2.Jobs, 2)
	assert.Empty(t, page2.NextCursor)

	seen := make(map[string]bool)
	for _, j := range append(page1.Jobs, page2.Jobs...) {
		assert.False(t, seen[j.JobID], "job repeated across pages")
		seen[j.JobID] = true
	}
}

func TestGetCollectionCount(t *testing.T) {
	f := pendingFixture(t)

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, f.memberships.Add(context.Background(), testSourceID, id))
	}

	w := f.do(t, http.MethodGet, "/api/v1/collections/"+testSourceID+"/count", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.CollectionCountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, testSourceID, resp.CollectionID)
	assert.Equal(t, "Source List", resp.CollectionName)

	w = f.do(t, http.MethodGet, "/api/v1/collections/99999999-9999-9999-9999-999999999999/count", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
