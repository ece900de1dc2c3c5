package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ksred/claude-session-manager/internal/domain"
	"github.com/ksred/claude-session-manager/internal/store"
)

// SessionsResponse is the list payload for GET /api/sessions. Total is
// the match count before limit/offset so clients can paginate.
type SessionsResponse struct {
	Sessions []*domain.Session `json:"sessions"`
	Total    int               `json:"total"`
}

// ActivityResponse is the feed payload for the activity endpoints.
type ActivityResponse struct {
	Activity []*domain.ActivityEntry `json:"activity"`
	Total    int                     `json:"total"`
}

// TokenTimelineResponse is the payload for GET /api/metrics/timeline.
// Total aggregates usage across the whole window; for a single session
// whose history fits the window it equals the session aggregate.
type TokenTimelineResponse struct {
	Timeline    []domain.TokenTimelinePoint `json:"timeline"`
	Total       domain.TokenUsage           `json:"total"`
	Hours       int                         `json:"hours"`
	Granularity domain.Granularity          `json:"granularity"`
}

// ProjectsResponse is the virtual project grouping for GET /api/projects.
type ProjectsResponse struct {
	Projects []domain.ProjectStats `json:"projects"`
	Total    int                   `json:"total"`
}

// CreateSessionRequest is the body for POST /api/sessions.
type CreateSessionRequest struct {
	ProjectName string `json:"project_name"`
	ProjectPath string `json:"project_path"`
	Model       string `json:"model"`
}

// RecordUsageRequest is the body for POST /api/sessions/{id}/usage.
type RecordUsageRequest struct {
	Usage    domain.TokenUsage `json:"token_usage"`
	Messages int               `json:"messages"`
}

// AppendActivityRequest is the body for POST /api/sessions/{id}/activity.
type AppendActivityRequest struct {
	Type   domain.ActivityType `json:"type"`
	Detail string              `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sessions, total, err := s.sessions.List(r.Context(),
		r.URL.Query().Get("status"), r.URL.Query().Get("project"), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	json.NewEncoder(w).Encode(SessionsResponse{Sessions: sessions, Total: total})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, store.NewValidationError("body", err.Error()))
		return
	}

	sess, err := s.sessions.Create(r.Context(), req.ProjectName, req.ProjectPath, req.Model)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	json.NewEncoder(w).Encode(sess)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var upd domain.SessionUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		s.writeError(w, r, store.NewValidationError("body", err.Error()))
		return
	}

	sess, err := s.sessions.Update(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	json.NewEncoder(w).Encode(sess)
}

func (s *Server) handleRestartSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Restart(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	json.NewEncoder(w).Encode(sess)
}

func (s *Server) handleRecordUsage(w http.ResponseWriter, r *http.Request) {
	var req RecordUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, store.NewValidationError("body", err.Error()))
		return
	}

	sess, err := s.sessions.RecordUsage(r.Context(), r.PathValue("id"), req.Usage, req.Messages)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	json.NewEncoder(w).Encode(sess)
}

func (s *Server) handleAppendActivity(w http.ResponseWriter, r *http.Request) {
	var req AppendActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, store.NewValidationError("body", err.Error()))
		return
	}

	entry, err := s.sessions.AppendActivity(r.Context(), r.PathValue("id"), req.Type, req.Detail)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleSessionActivity(w http.ResponseWriter, r *http.Request) {
	s.serveActivity(w, r, r.PathValue("id"))
}

func (s *Server) handleGlobalActivity(w http.ResponseWriter, r *http.Request) {
	s.serveActivity(w, r, "")
}

func (s *Server) serveActivity(w http.ResponseWriter, r *http.Request, sessionID string) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	activity, total, err := s.sessions.ListActivity(r.Context(), sessionID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	json.NewEncoder(w).Encode(ActivityResponse{Activity: activity, Total: total})
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	summary, err := s.sessions.Summary(r.Context(), 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	json.NewEncoder(w).Encode(ProjectsResponse{
		Projects: summary.ByProject,
		Total:    len(summary.ByProject),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	summary, err := s.sessions.Summary(r.Context(), hours)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	json.NewEncoder(w).Encode(summary)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", 24)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if hours <= 0 {
		hours = 24
	}

	gran, err := domain.ParseGranularity(r.URL.Query().Get("granularity"))
	if err != nil {
		s.writeError(w, r, store.NewValidationError("granularity", err.Error()))
		return
	}

	timeline, err := s.sessions.Timeline(r.Context(), r.URL.Query().Get("session_id"), hours, string(gran))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var total domain.TokenUsage
	for _, point := range timeline {
		total.Add(point.Usage)
	}

	json.NewEncoder(w).Encode(TokenTimelineResponse{
		Timeline:    timeline,
		Total:       total,
		Hours:       hours,
		Granularity: gran,
	})
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, store.NewValidationError(name, "must be an integer")
	}
	return n, nil
}
