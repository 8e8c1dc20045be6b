package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/quantsnap/internal/scheduler"
	"github.com/wonny/quantsnap/pkg/logger"
)

// JobRunner is the part of the scheduler the API exposes
type JobRunner interface {
	GetAllJobs() []string
	GetJobStats() map[string]scheduler.JobStats
	GetJobHistory(name string) (*scheduler.JobHistory, error)
	RunJob(name string) error
}

// JobsHandler exposes scheduled jobs when serve runs the scheduler
type JobsHandler struct {
	jobs   JobRunner
	logger *logger.Logger
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(jobs JobRunner, log *logger.Logger) *JobsHandler {
	return &JobsHandler{
		jobs:   jobs,
		logger: log,
	}
}

// GetJobs lists every job with its stats
// GET /api/jobs
func (h *JobsHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	stats := h.jobs.GetJobStats()
	out := make([]scheduler.JobStats, 0, len(stats))
	for _, name := range h.jobs.GetAllJobs() {
		out = append(out, stats[name])
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  out,
		"count": len(out),
	})
}

// GetJobHistory returns the latest results of one job, oldest first
// GET /api/jobs/{name}/history?limit=20
func (h *JobsHandler) GetJobHistory(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	history, err := h.jobs.GetJobHistory(name)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	results := history.GetLatestResults(limit)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"job":          name,
		"results":      results,
		"count":        len(results),
		"success_rate": history.GetSuccessRate(),
	})
}

// RunJob starts a job now without waiting for it
// POST /api/jobs/{name}/run
func (h *JobsHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := h.jobs.RunJob(name); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.WithField("job", name).Info("Job triggered via API")
	respondJSON(w, http.StatusAccepted, map[string]string{
		"job":    name,
		"status": "started",
	})
}
