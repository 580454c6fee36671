// Package api exposes HTTP handlers for the reward pipeline.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/rewards/internal/auth"
	"example.com/rewards/internal/domain"
	"example.com/rewards/internal/league"
	"example.com/rewards/internal/persistence"
	"example.com/rewards/internal/scoring"
)

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	activities *domain.Service
	leagues    *league.Service
	scoring    *scoring.Service
}

// NewHandler builds a Handler.
func NewHandler(activities *domain.Service, leagues *league.Service, scoringSvc *scoring.Service) *Handler {
	return &Handler{activities: activities, leagues: leagues, scoring: scoringSvc}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activitiesRoot)
	mux.HandleFunc("/v1/activities/summary", h.activitySummary)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/admin/activities/", h.adminActivity)
	mux.HandleFunc("/v1/leagues", h.leaguesRoot)
	mux.HandleFunc("/v1/leagues/", h.leagueByID)
	mux.HandleFunc("/v1/profile", h.profile)
	mux.HandleFunc("/v1/efforts", h.effortHistory)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activitiesRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.ingestActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		h.getActivity(w, r, id)
	case sub == "effort" && r.Method == http.MethodPost:
		h.calculateEffort(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) ingestActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req IngestActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = claims.Subject
	}

	activity, replay, err := h.activities.IngestActivity(r.Context(), domain.IngestInput{
		UserID:         userID,
		Source:         req.Source,
		SourceID:       req.SourceID,
		Type:           req.Type,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		DurationSec:    req.DurationSec,
		DistanceMeters: req.DistanceMeters,
		Calories:       req.Calories,
		ElevationGain:  req.ElevationGain,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPayload) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := IngestActivityResponse{
		ActivityID: activity.ID,
		Status:     string(activity.Status),
		Replay:     replay,
	}

	status := http.StatusAccepted
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite); !ok {
		return
	}

	activity, err := h.activities.GetActivity(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = claims.Subject
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.activities.ListActivities(r.Context(), userID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		items = append(items, toActivityView(a))
	}

	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) activitySummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = claims.Subject
	}

	windowDays := 30
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			windowDays = parsed
		}
	}

	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	summary, err := h.activities.Summary(r.Context(), userID, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ActivitySummaryResponse{
		Total:          summary.Total,
		Pending:        summary.Pending,
		Verified:       summary.Verified,
		Flagged:        summary.Flagged,
		Rejected:       summary.Rejected,
		TotalPoints:    summary.TotalPoints,
		TotalDistanceM: summary.TotalDistanceM,
		TotalDuration:  summary.TotalDuration,
		LastActivityAt: summary.LastActivityAt,
		WindowDays:     windowDays,
	})
}

// requireScope extracts claims and checks that at least one scope is present.
// It writes the error response itself and reports ok=false on failure.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+strings.Join(scopes, " or ")+" required")
	return nil, false
}

// IngestActivityRequest is the payload for POST /v1/activities.
type IngestActivityRequest struct {
	UserID         string    `json:"user_id,omitempty"`
	Source         string    `json:"source"`
	SourceID       string    `json:"source_id"`
	Type           string    `json:"type"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	DurationSec    int       `json:"duration_sec"`
	DistanceMeters float64   `json:"distance_m,omitempty"`
	Calories       float64   `json:"calories,omitempty"`
	ElevationGain  float64   `json:"elevation_gain_m,omitempty"`
}

// IngestActivityResponse describes the response body for ingestion.
type IngestActivityResponse struct {
	ActivityID string `json:"activity_id"`
	Status     string `json:"status"`
	Replay     bool   `json:"idempotent_replay"`
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ActivityID     string    `json:"activity_id"`
	UserID         string    `json:"user_id"`
	Source         string    `json:"source"`
	SourceID       string    `json:"source_id"`
	Type           string    `json:"type"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	DurationSec    int       `json:"duration_sec"`
	DistanceMeters float64   `json:"distance_m,omitempty"`
	Calories       float64   `json:"calories,omitempty"`
	ElevationGain  float64   `json:"elevation_gain_m,omitempty"`
	Status         string    `json:"status"`
	Processed      bool      `json:"processed"`
	FraudScore     int       `json:"fraud_score"`
	FraudReasons   []string  `json:"fraud_reasons,omitempty"`
	Points         int       `json:"points"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ActivitySummaryResponse aggregates a user's recent activity.
type ActivitySummaryResponse struct {
	Total          int        `json:"total"`
	Pending        int        `json:"pending"`
	Verified       int        `json:"verified"`
	Flagged        int        `json:"flagged"`
	Rejected       int        `json:"rejected"`
	TotalPoints    int        `json:"total_points"`
	TotalDistanceM float64    `json:"total_distance_m"`
	TotalDuration  int        `json:"total_duration_sec"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	WindowDays     int        `json:"window_days"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toActivityView(a domain.Activity) ActivityView {
	return ActivityView{
		ActivityID:     a.ID,
		UserID:         a.UserID,
		Source:         a.Source,
		SourceID:       a.SourceID,
		Type:           string(a.Type),
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		DurationSec:    a.DurationSec,
		DistanceMeters: a.DistanceMeters,
		Calories:       a.Calories,
		ElevationGain:  a.ElevationGain,
		Status:         string(a.Status),
		Processed:      a.Processed,
		FraudScore:     a.FraudScore,
		FraudReasons:   a.FraudReasons,
		Points:         a.Points,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}
