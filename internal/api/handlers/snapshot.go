package handlers

import (
	"net/http"
	"strconv"

	"github.com/wonny/quantsnap/internal/export"
	"github.com/wonny/quantsnap/internal/storage"
	"github.com/wonny/quantsnap/pkg/logger"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// SnapshotHandler serves persisted runs read-only
// ⭐ SSOT: 스냅샷 조회 API는 여기서만
type SnapshotHandler struct {
	store  storage.Store
	logger *logger.Logger
}

// NewSnapshotHandler creates a new snapshot handler
func NewSnapshotHandler(store storage.Store, log *logger.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		store:  store,
		logger: log,
	}
}

// Health reports whether the store answers
// GET /health
func (h *SnapshotHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.WithError(err).Warn("Store ping failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unavailable",
			"service": "quantsnap",
			"error":   err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "quantsnap",
	})
}

// GetLatestSnapshot returns the latest run in the exported JSON schema
// GET /api/snapshot/latest
func (h *SnapshotHandler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	result, err := h.store.ReadLatest(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to read latest run")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve snapshot")
		return
	}
	if result == nil {
		respondError(w, http.StatusNotFound, "No snapshot yet")
		return
	}

	recent, err := h.store.RecentRuns(r.Context(), export.RecentRunsLimit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve snapshot")
		return
	}

	respondJSON(w, http.StatusOK, export.NewSnapshot(result, recent))
}

// GetLatestRun returns the latest run with indicators and statuses
// GET /api/runs/latest
func (h *SnapshotHandler) GetLatestRun(w http.ResponseWriter, r *http.Request) {
	result, err := h.store.ReadLatest(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to read latest run")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve run")
		return
	}
	if result == nil {
		respondError(w, http.StatusNotFound, "No run yet")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetRuns lists recent runs, newest first
// GET /api/runs?limit=20
func (h *SnapshotHandler) GetRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxRunsLimit {
			n = maxRunsLimit
		}
		limit = n
	}

	runs, err := h.store.RecentRuns(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}
