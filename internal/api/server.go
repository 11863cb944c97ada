// Package api serves job status and job submission over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/leadfetch/internal/dispatch"
	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/monitoring"
	"github.com/sells-group/leadfetch/internal/store"
)

// Store is the persistence the API reads and writes.
type Store interface {
	dispatch.Store
	GetJob(ctx context.Context, id string) (*model.CampaignJob, error)
	ListAttempts(ctx context.Context, jobID string) ([]model.JobAttempt, error)
	Ping(ctx context.Context) error
}

// Server holds the handlers' dependencies.
type Server struct {
	store         Store
	queue         dispatch.Enqueuer
	collector     *monitoring.Collector
	lookbackHours int
	origins       []string
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics enables GET /metrics backed by collector.
func WithMetrics(c *monitoring.Collector, lookbackHours int) Option {
	return func(s *Server) {
		s.collector = c
		s.lookbackHours = lookbackHours
	}
}

// WithAllowedOrigins sets the CORS allow list. Empty allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// New creates a Server.
func New(st Store, q dispatch.Enqueuer, opts ...Option) *Server {
	s := &Server{store: st, queue: q}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(requestLogger)

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.listJobs)
		r.Get("/{id}", s.getJob)
		r.Get("/{id}/attempts", s.listAttempts)
	})
	r.Post("/campaigns/{id}/jobs", s.createJob)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.JobFilter{
		CampaignID: q.Get("campaign_id"),
		UserID:     q.Get("user_id"),
		Status:     model.JobStatus(q.Get("status")),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	jobs, err := s.store.ListJobs(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list jobs", err)
		return
	}
	if jobs == nil {
		jobs = []model.CampaignJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.internalError(w, "get job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) listAttempts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetJob(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.internalError(w, "get job", err)
		return
	}
	attempts, err := s.store.ListAttempts(r.Context(), id)
	if err != nil {
		s.internalError(w, "list attempts", err)
		return
	}
	if attempts == nil {
		attempts = []model.JobAttempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	sub, err := dispatch.Submit(r.Context(), s.store, s.queue, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "campaign not found")
	case errors.Is(err, dispatch.ErrCampaignInactive):
		writeError(w, http.StatusConflict, "campaign inactive")
	case errors.Is(err, dispatch.ErrJobInFlight):
		writeError(w, http.StatusConflict, "campaign has a job in flight")
	case err != nil:
		s.internalError(w, "submit job", err)
	default:
		writeJSON(w, http.StatusAccepted, sub)
	}
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeError(w, http.StatusNotFound, "metrics disabled")
		return
	}
	snap, err := s.collector.Collect(r.Context(), s.lookbackHours)
	if err != nil {
		s.internalError(w, "collect metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	zap.L().Error("api: "+op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
