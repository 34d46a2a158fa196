package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/jobs"
	"github.com/dvloznov/ledger-engine/internal/jobs/inmemory"
)

type failingPublisher struct{}

func (failingPublisher) PublishLedgerRun(ctx context.Context, job *jobs.LedgerRunJob) error {
	return errors.New("queue is closed")
}

func (failingPublisher) Close() error { return nil }

func newTestServer(t *testing.T) (*http.ServeMux, *inmemory.Store) {
	t.Helper()
	store := inmemory.NewStore()
	queue := inmemory.NewQueue(10, store)
	t.Cleanup(func() { _ = queue.Close() })

	mux := http.NewServeMux()
	NewRunsHandler(store, queue, zerolog.Nop()).Register(mux)
	mux.HandleFunc("/health", Health)
	return mux, store
}

func serve(mux http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSubmitRun_CSVBody(t *testing.T) {
	mux, store := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/runs?name=day1.csv",
		strings.NewReader("type,client,tx,amount\ndeposit,1,1,1.0\n"))
	req.Header.Set("Content-Type", "text/csv")
	rec := serve(mux, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "pending", body["status"])

	job, err := store.GetJob(context.Background(), body["job_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "day1.csv", job.InputName)
	assert.Empty(t, job.Source)
	assert.Contains(t, string(job.Input), "deposit,1,1,1.0")
}

func TestSubmitRun_ConcurrentWithWorkers(t *testing.T) {
	store := inmemory.NewStore()
	queue := inmemory.NewQueue(16, store, inmemory.WithWorkers(4))
	require.NoError(t, queue.Start(context.Background(), func(ctx context.Context, job jobs.Job) error {
		job.(*jobs.LedgerRunJob).Applied = 1
		return nil
	}))
	t.Cleanup(func() { _ = queue.Close() })

	mux := http.NewServeMux()
	NewRunsHandler(store, queue, zerolog.Nop()).Register(mux)

	ids := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/runs",
			strings.NewReader("type,client,tx,amount\ndeposit,1,1,1.0\n"))
		rec := serve(mux, req)

		require.Equal(t, http.StatusAccepted, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "pending", body["status"])
		ids = append(ids, body["job_id"].(string))
	}

	for _, id := range ids {
		require.Eventually(t, func() bool {
			job, err := store.GetJob(context.Background(), id)
			return err == nil && job.Status == jobs.JobStatusCompleted
		}, 2*time.Second, 5*time.Millisecond)
	}
}

func TestSubmitRun_GCSURI(t *testing.T) {
	mux, store := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"gcs_uri":"gs://bucket/in/tx.csv"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := serve(mux, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	job, err := store.GetJob(context.Background(), decode(t, rec)["job_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "gs://bucket/in/tx.csv", job.Source)
	assert.Equal(t, "tx.csv", job.InputName)
	assert.Nil(t, job.Input)
}

func TestSubmitRun_BadRequests(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"empty csv", "text/csv", ""},
		{"malformed json", "application/json", "{"},
		{"not a gcs uri", "application/json", `{"gcs_uri":"/tmp/tx.csv"}`},
		{"missing object", "application/json", `{"gcs_uri":"gs://bucket"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, _ := newTestServer(t)
			req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)

			rec := serve(mux, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestSubmitRun_PublishFailure(t *testing.T) {
	mux := http.NewServeMux()
	NewRunsHandler(inmemory.NewStore(), failingPublisher{}, zerolog.Nop()).Register(mux)

	rec := serve(mux, httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader("type,client,tx,amount\n")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetRun(t *testing.T) {
	mux, store := newTestServer(t)
	require.NoError(t, store.SaveJob(context.Background(), &jobs.LedgerRunJob{
		JobID:    "run-1",
		Status:   jobs.JobStatusCompleted,
		Applied:  3,
		Accounts: []domain.AccountState{{Client: 7}},
		Input:    []byte("secret"),
	}))

	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/api/runs/run-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "run-1", body["job_id"])
	assert.Equal(t, "completed", body["status"])
	assert.EqualValues(t, 3, body["applied"])
	assert.Len(t, body["accounts"], 1)
	assert.NotContains(t, body, "input")
}

func TestGetRun_NotFound(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(mux, httptest.NewRequest(http.MethodGet, "/api/runs/missing/report", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetReport(t *testing.T) {
	mux, store := newTestServer(t)
	ctx := context.Background()
	report := "client,available,held,total,locked\n1,1.0000,0.0000,1.0000,false\n"
	require.NoError(t, store.SaveJob(ctx, &jobs.LedgerRunJob{JobID: "done", Status: jobs.JobStatusCompleted, Report: []byte(report)}))
	require.NoError(t, store.SaveJob(ctx, &jobs.LedgerRunJob{JobID: "busy", Status: jobs.JobStatusRunning}))

	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/api/runs/done/report", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, report, rec.Body.String())

	rec = serve(mux, httptest.NewRequest(http.MethodGet, "/api/runs/busy/report", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(mux, httptest.NewRequest(http.MethodGet, "/api/runs/done/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns(t *testing.T) {
	mux, store := newTestServer(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []jobs.JobStatus{jobs.JobStatusCompleted, jobs.JobStatusFailed, jobs.JobStatusCompleted} {
		require.NoError(t, store.SaveJob(ctx, &jobs.LedgerRunJob{
			JobID:     string(rune('a' + i)),
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/api/runs?status=completed&limit=1&offset=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["count"])
	runs := body["runs"].([]interface{})
	assert.Equal(t, "c", runs[0].(map[string]interface{})["job_id"])
}

func TestRuns_MethodNotAllowed(t *testing.T) {
	mux, _ := newTestServer(t)

	assert.Equal(t, http.StatusMethodNotAllowed, serve(mux, httptest.NewRequest(http.MethodDelete, "/api/runs", nil)).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(mux, httptest.NewRequest(http.MethodPost, "/api/runs/x", nil)).Code)
}

func TestHealth(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}
