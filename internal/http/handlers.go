package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/courier-dispatch/internal/dispatch"
	"github.com/example/courier-dispatch/internal/lifecycle"
	"github.com/example/courier-dispatch/internal/location"
	"github.com/example/courier-dispatch/internal/models"
	"github.com/example/courier-dispatch/internal/storage"
)

type Server struct {
	Jobs     *lifecycle.Service
	Relay    *location.Relay
	Registry *dispatch.Registry
	logger   *slog.Logger
	mux      *mux.Router
}

func NewServer(jobs *lifecycle.Service, relay *location.Relay, registry *dispatch.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Jobs: jobs, Relay: relay, Registry: registry, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/jobs", s.handleCreateJob).Methods("POST")
	s.mux.HandleFunc("/api/v1/jobs", s.handleListJobs).Methods("GET")
	// "available" before "{id}" so the literal path wins
	s.mux.HandleFunc("/api/v1/jobs/available", s.handleListAvailable).Methods("GET")
	s.mux.HandleFunc("/api/v1/jobs/{id}", s.handleGetJob).Methods("GET")
	s.mux.HandleFunc("/api/v1/jobs/{id}/claim", s.handleClaim).Methods("POST")
	s.mux.HandleFunc("/api/v1/jobs/{id}/pickup", s.handleConfirmPickup).Methods("POST")
	s.mux.HandleFunc("/api/v1/jobs/{id}/delivery", s.handleConfirmDelivery).Methods("POST")
	s.mux.HandleFunc("/api/v1/admin/jobs/{id}/status", s.handleOverrideStatus).Methods("POST")
	s.mux.HandleFunc("/api/v1/riders/{rider_id}/location", s.handleReportLocation).Methods("POST")
	s.mux.HandleFunc("/api/v1/riders/{rider_id}/location", s.handleLatestLocation).Methods("GET")
	s.mux.HandleFunc("/ws/riders/{rider_id}", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var draft models.JobDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		s.writeError(w, badJSON(err))
		return
	}
	job, err := s.Jobs.CreateJob(r.Context(), draft)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.Jobs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minStatus, maxStatus := models.StatusOpen, models.StatusDelivered
	if v := q.Get("status_min"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, models.ErrValidation)
			return
		}
		minStatus = models.JobStatus(n)
	}
	if v := q.Get("status_max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, models.ErrValidation)
			return
		}
		maxStatus = models.JobStatus(n)
	}
	jobs, err := s.Jobs.ListByRole(r.Context(), models.ListRole(q.Get("role")), q.Get("user_id"), minStatus, maxStatus)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleListAvailable(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.Jobs.ListAvailable(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RiderID string `json:"rider_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badJSON(err))
		return
	}
	job, err := s.Jobs.Claim(r.Context(), mux.Vars(r)["id"], req.RiderID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type confirmRequest struct {
	RiderID string `json:"rider_id"`
	Image   string `json:"image"`
}

func (s *Server) handleConfirmPickup(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badJSON(err))
		return
	}
	job, err := s.Jobs.ConfirmPickup(r.Context(), mux.Vars(r)["id"], req.RiderID, req.Image)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badJSON(err))
		return
	}
	job, err := s.Jobs.ConfirmDelivery(r.Context(), mux.Vars(r)["id"], req.RiderID, req.Image)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleOverrideStatus(w http.ResponseWriter, r *http.Request) {
	var ov storage.Override
	if err := json.NewDecoder(r.Body).Decode(&ov); err != nil {
		s.writeError(w, badJSON(err))
		return
	}
	ov.JobID = mux.Vars(r)["id"]
	job, err := s.Jobs.Override(r.Context(), ov)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleReportLocation(w http.ResponseWriter, r *http.Request) {
	var report models.LocationReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		s.writeError(w, badJSON(err))
		return
	}
	if err := report.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.Relay.Report(r.Context(), mux.Vars(r)["rider_id"], *report.Latitude, *report.Longitude); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLatestLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := s.Relay.Latest(r.Context(), mux.Vars(r)["rider_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := "internal"
	status := http.StatusInternalServerError
	var te *storage.TransitionError
	switch {
	case errors.Is(err, models.ErrValidation):
		code, status = "validation_error", http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		code, status = "not_found", http.StatusNotFound
	case errors.Is(err, storage.ErrJobNotClaimable):
		code, status = "job_not_claimable", http.StatusConflict
	case errors.Is(err, storage.ErrRiderBusy):
		code, status = "rider_busy", http.StatusConflict
	case errors.As(err, &te):
		code, status = "invalid_transition", http.StatusConflict
	case errors.Is(err, storage.ErrInvalidTransition):
		code, status = "invalid_transition", http.StatusConflict
	case errors.Is(err, storage.ErrStoreUnavailable):
		code, status = "store_unavailable", http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badJSON(err error) error {
	return errors.Join(models.ErrValidation, err)
}
