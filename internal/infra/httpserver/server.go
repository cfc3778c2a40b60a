package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"civic_followup_engine/internal/app"
	"civic_followup_engine/internal/domain/complaint"
	"civic_followup_engine/internal/domain/decision"
	"civic_followup_engine/internal/domain/job"
	idb "civic_followup_engine/internal/infra/database"
)

type Intake interface {
	OnComplaintCreated(ctx context.Context, complaintID string) (*app.IntakeResult, error)
}

type Admin interface {
	UpdateComplaintStatus(ctx context.Context, actor, complaintID string, status complaint.Status, notes string) (*complaint.Complaint, error)
	ExplainComplaint(ctx context.Context, complaintID string) (*app.ComplaintExplanation, error)
	ExplainDecision(f decision.Features) decision.Explanation
	ListPending(ctx context.Context) ([]*complaint.Complaint, error)
	Timeline(ctx context.Context, complaintID string) ([]*complaint.Action, error)
}

type Jobs interface {
	PendingJobs() []job.ScheduledJob
	SweepJob() job.ScheduledJob
}

type Server struct {
	intake   Intake
	admin    Admin
	workflow app.WorkflowService
	jobs     Jobs
	logger   *logrus.Entry
}

func New(intake Intake, admin Admin, workflow app.WorkflowService, jobs Jobs, logger *logrus.Entry) *Server {
	return &Server{
		intake:   intake,
		admin:    admin,
		workflow: workflow,
		jobs:     jobs,
		logger:   logger.WithField("component", "http"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/complaints", func(r chi.Router) {
		r.Get("/pending", s.handlePending)
		r.Route("/{id}", func(r chi.Router) {
			r.Post("/intake", s.handleIntake)
			r.Post("/evaluate", s.handleEvaluate)
			r.Get("/explanation", s.handleExplanation)
			r.Get("/timeline", s.handleTimeline)
			r.Put("/status", s.handleStatus)
		})
	})
	r.Post("/decisions/explain", s.handleExplainDecision)
	r.Get("/scheduler/jobs", s.handleJobs)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Info("HTTP request")
	})
}

// complaintID validates the {id} path parameter.
func complaintID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusBadRequest, "invalid complaint id")
		return "", false
	}
	return id, true
}

func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	id, ok := complaintID(w, r)
	if !ok {
		return
	}
	result, err := s.intake.OnComplaintCreated(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, result)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	id, ok := complaintID(w, r)
	if !ok {
		return
	}
	outcome, err := s.workflow.EvaluateComplaint(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	status := http.StatusOK
	if outcome == app.OutcomeNotFound {
		status = http.StatusNotFound
	}
	respondJSON(w, status, map[string]interface{}{
		"complaint_id": id,
		"outcome":      outcome,
	})
}

func (s *Server) handleExplanation(w http.ResponseWriter, r *http.Request) {
	id, ok := complaintID(w, r)
	if !ok {
		return
	}
	explanation, err := s.admin.ExplainComplaint(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, explanation)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := complaintID(w, r)
	if !ok {
		return
	}
	actions, err := s.admin.Timeline(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	views := make([]actionView, 0, len(actions))
	for _, a := range actions {
		views = append(views, newActionView(a))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"actions": views})
}

type statusBody struct {
	Status     complaint.Status `json:"status"`
	AdminNotes string           `json:"admin_notes"`
	Actor      string           `json:"actor"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := complaintID(w, r)
	if !ok {
		return
	}
	var body statusBody
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor := body.Actor
	if actor == "" {
		actor = "api"
	}
	c, err := s.admin.UpdateComplaintStatus(r.Context(), actor, id, body.Status, body.AdminNotes)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newComplaintView(c))
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	complaints, err := s.admin.ListPending(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	views := make([]complaintView, 0, len(complaints))
	for _, c := range complaints {
		views = append(views, newComplaintView(c))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"complaints": views})
}

func (s *Server) handleExplainDecision(w http.ResponseWriter, r *http.Request) {
	var f decision.Features
	if err := decodeJSON(w, r, &f); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.NumberOfFollowups < 0 || f.DaysSinceSubmission < 0 {
		respondError(w, http.StatusBadRequest, "number_of_followups and days_since_submission must not be negative")
		return
	}
	respondJSON(w, http.StatusOK, s.admin.ExplainDecision(f))
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sweep":   s.jobs.SweepJob(),
		"pending": s.jobs.PendingJobs(),
	})
}

func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, idb.ErrComplaintNotFound):
		respondError(w, http.StatusNotFound, "complaint not found")
	case errors.Is(err, app.ErrInvalidStatus):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrStatusUnchanged), errors.Is(err, app.ErrComplaintClosed):
		respondError(w, http.StatusConflict, err.Error())
	default:
		s.logger.WithError(err).Error("Request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
