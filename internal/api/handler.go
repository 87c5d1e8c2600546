package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tutorkit/tutord/internal/performance"
	"github.com/tutorkit/tutord/internal/pipeline"
	"github.com/tutorkit/tutord/internal/policy"
	"github.com/tutorkit/tutord/internal/profile"
	"github.com/tutorkit/tutord/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// defaultAttentionThreshold flags agents whose overall score falls
// below it on the attention endpoint.
const defaultAttentionThreshold = 60

// Tutor is the slice of the pipeline the HTTP layer drives.
type Tutor interface {
	Ask(ctx context.Context, req pipeline.AskRequest) (pipeline.AskResponse, error)
	Feedback(ctx context.Context, studentID, subject, agentID, turnID string, fb policy.Feedback) error
	Train(ctx context.Context) (int, error)
}

// ProfileLoader loads per-subject student profiles.
// Implemented by profile.Engine.
type ProfileLoader interface {
	Load(ctx context.Context, studentID, subject string) (profile.SubjectPreference, error)
}

// Reporter serves per-agent performance reports.
// Implemented by performance.Aggregator.
type Reporter interface {
	Report(ctx context.Context, agentID string) (performance.Report, error)
}

// OverviewProvider serves the cached cross-agent overview.
// Implemented by performance.Registry.
type OverviewProvider interface {
	Overview(ctx context.Context) ([]performance.Overview, error)
	NeedingAttention(ctx context.Context, threshold float64) ([]performance.Overview, error)
}

// Deps holds everything the HTTP handler needs.
type Deps struct {
	Tutor     Tutor
	Profiles  ProfileLoader
	Reports   Reporter
	Overviews OverviewProvider
	Token     string
}

// NewHandler builds the authenticated HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token))

	r.Post("/ask", handleAsk(deps))
	r.Post("/feedback", handleFeedback(deps))
	r.Post("/train", handleTrain(deps))
	r.Get("/students/{student}/subjects/{subject}/profile", handleGetProfile(deps))
	r.Get("/performance", handleOverview(deps))
	r.Get("/performance/attention", handleAttention(deps))
	r.Get("/performance/{agent}", handleAgentReport(deps))

	return r
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req pipeline.AskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.StudentID == "" || req.Subject == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "student_id and subject are required")
			return
		}

		resp, err := deps.Tutor.Ask(r.Context(), req)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, resp)
	}
}

type feedbackRequest struct {
	StudentID string `json:"student_id"`
	Subject   string `json:"subject"`
	AgentID   string `json:"agent_id"`
	TurnID    string `json:"turn_id"`
	Feedback  string `json:"feedback"`
}

func handleFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req feedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.StudentID == "" || req.Subject == "" || req.TurnID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "student_id, subject and turn_id are required")
			return
		}

		fb := policy.Feedback(req.Feedback)
		if fb != policy.FeedbackLike && fb != policy.FeedbackDislike {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "feedback must be %q or %q", policy.FeedbackLike, policy.FeedbackDislike)
			return
		}

		err := deps.Tutor.Feedback(r.Context(), req.StudentID, req.Subject, req.AgentID, req.TurnID, fb)
		if errors.Is(err, storage.ErrTurnNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "turn not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record feedback: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "recorded"})
	}
}

func handleTrain(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		updates, err := deps.Tutor.Train(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "training failed: %v", err)
			return
		}
		writeJSON(w, map[string]int{"updates": updates})
	}
}

func handleGetProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		student := chi.URLParam(r, "student")
		subject := chi.URLParam(r, "subject")

		pref, err := deps.Profiles.Load(r.Context(), student, subject)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load profile: %v", err)
			return
		}
		writeJSON(w, pref)
	}
}

func handleOverview(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := deps.Overviews.Overview(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build overview: %v", err)
			return
		}
		if entries == nil {
			entries = []performance.Overview{}
		}
		writeJSON(w, entries)
	}
}

func handleAttention(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threshold := parseFloatParam(r, "threshold", defaultAttentionThreshold)

		entries, err := deps.Overviews.NeedingAttention(r.Context(), threshold)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build overview: %v", err)
			return
		}
		if entries == nil {
			entries = []performance.Overview{}
		}
		writeJSON(w, entries)
	}
}

func handleAgentReport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent := chi.URLParam(r, "agent")

		rep, err := deps.Reports.Report(r.Context(), agent)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build report: %v", err)
			return
		}
		writeJSON(w, rep)
	}
}

func parseFloatParam(r *http.Request, key string, defaultVal float64) float64 {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return defaultVal
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
