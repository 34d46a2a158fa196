package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-engine/internal/api/middleware"
	"github.com/dvloznov/ledger-engine/internal/gcsuploader"
	"github.com/dvloznov/ledger-engine/internal/jobs"
	"github.com/dvloznov/ledger-engine/internal/pipeline"
)

// MaxUploadBytes caps the CSV body accepted by SubmitRun.
const MaxUploadBytes = 64 << 20

const defaultInputName = "upload.csv"

// RunsHandler handles ledger run endpoints.
type RunsHandler struct {
	store     jobs.JobStore
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(store jobs.JobStore, publisher jobs.Publisher, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		store:     store,
		publisher: publisher,
		log:       log,
	}
}

// Register mounts the run endpoints on mux.
func (h *RunsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListRuns(w, r)
		case http.MethodPost:
			h.SubmitRun(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/runs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		jobID, sub, _ := strings.Cut(rest, "/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Run ID is required")
			return
		}

		switch sub {
		case "":
			h.GetRun(w, r, jobID)
		case "report":
			h.GetReport(w, r, jobID)
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	})
}

// SubmitRun handles POST /api/runs.
// A JSON body {"gcs_uri": "..."} runs a stored file; any other body is the CSV itself.
func (h *RunsHandler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	job := &jobs.LedgerRunJob{}

	if isJSON(r.Header.Get("Content-Type")) {
		var req struct {
			GCSURI string `json:"gcs_uri"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if _, _, err := gcsuploader.ParseGCSURI(req.GCSURI); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "gcs_uri must be gs://bucket/object")
			return
		}
		job.Source = req.GCSURI
		job.InputName = gcsuploader.ExtractFilenameFromGCSURI(req.GCSURI)
	} else {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			middleware.WriteError(w, http.StatusBadRequest, "Failed to read request body")
			return
		}
		if len(body) == 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Request body is empty")
			return
		}
		job.Input = body
		job.InputName = r.URL.Query().Get("name")
		if job.InputName == "" {
			job.InputName = defaultInputName
		}
	}

	if err := h.publisher.PublishLedgerRun(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue ledger run")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue ledger run")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("input", job.InputName).
		Msg("Ledger run enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetRun handles GET /api/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request, jobID string) {
	job, ok := h.lookup(w, r, jobID)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// GetReport handles GET /api/runs/{id}/report
func (h *RunsHandler) GetReport(w http.ResponseWriter, r *http.Request, jobID string) {
	job, ok := h.lookup(w, r, jobID)
	if !ok {
		return
	}

	if job.Status != jobs.JobStatusCompleted {
		middleware.WriteError(w, http.StatusConflict, "Run is "+string(job.Status))
		return
	}

	w.Header().Set("Content-Type", pipeline.ReportContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(job.Report); err != nil {
		h.log.Warn().Err(err).Str("job_id", jobID).Msg("Failed to write report")
	}
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	runs, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func (h *RunsHandler) lookup(w http.ResponseWriter, r *http.Request, jobID string) (*jobs.LedgerRunJob, bool) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Run not found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get run")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get run")
		return nil, false
	}
	return job, true
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
