package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/wonny/quantsnap/internal/api/handlers"
	"github.com/wonny/quantsnap/pkg/logger"
)

// NewRouter creates and configures the HTTP router.
// metrics may be nil, in which case /metrics is not registered; jobsHandler
// may be nil when no scheduler runs in this process.
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(snapshotHandler *handlers.SnapshotHandler, jobsHandler *handlers.JobsHandler, metrics http.Handler, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", snapshotHandler.Health).Methods("GET")

	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Snapshot endpoints
	api.HandleFunc("/snapshot/latest", snapshotHandler.GetLatestSnapshot).Methods("GET")
	api.HandleFunc("/runs", snapshotHandler.GetRuns).Methods("GET")
	api.HandleFunc("/runs/latest", snapshotHandler.GetLatestRun).Methods("GET")

	// Job endpoints
	if jobsHandler != nil {
		api.HandleFunc("/jobs", jobsHandler.GetJobs).Methods("GET")
		api.HandleFunc("/jobs/{name}/history", jobsHandler.GetJobHistory).Methods("GET")
		api.HandleFunc("/jobs/{name}/run", jobsHandler.RunJob).Methods("POST")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	// dashboards may fetch from any origin
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})

	return c.Handler(r)
}

// statusRecorder captures the response code for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
