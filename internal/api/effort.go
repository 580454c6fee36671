package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"example.com/rewards/internal/auth"
	"example.com/rewards/internal/domain"
	"example.com/rewards/internal/scoring"
)

// calculateEffort handles POST /v1/activities/{id}/effort.
func (h *Handler) calculateEffort(w http.ResponseWriter, r *http.Request, activityID string) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req EffortRequest
	if r.Body != nil {
		// All fields are optional; an empty body means defaults throughout.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.scoring.CalculateEffort(r.Context(), claims.Subject, activityID, scoring.EffortInput{
		AbsoluteEffort: req.AbsoluteEffort,
		Conditions: scoring.Conditions{
			Terrain:        req.Terrain,
			Weather:        req.Weather,
			AltitudeMeters: req.AltitudeMeters,
			SleepHours:     req.SleepHours,
			RecoveryScore:  req.RecoveryScore,
		},
	})
	if err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toEffortView(*result))
}

func (h *Handler) effortHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	limit, offset := 20, 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	results, err := h.scoring.EffortHistory(r.Context(), claims.Subject, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]EffortView, 0, len(results))
	for _, res := range results {
		items = append(items, toEffortView(res))
	}
	writeJSON(w, http.StatusOK, EffortHistoryResponse{Items: items})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getProfile(w, r)
	case http.MethodPut:
		h.putProfile(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	profile, err := h.scoring.GetProfile(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "not_found", "no sport profile")
		return
	}
	writeJSON(w, http.StatusOK, toProfileView(*profile))
}

func (h *Handler) putProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	level, ok := scoring.ParseFitnessLevel(req.FitnessLevel)
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_failed", "unknown fitness level")
		return
	}

	secondary := make([]domain.ActivityType, 0, len(req.SecondarySports))
	for _, s := range req.SecondarySports {
		secondary = append(secondary, domain.ParseActivityType(s))
	}

	profile := scoring.Profile{
		UserID:          claims.Subject,
		FitnessLevel:    level,
		PrimarySport:    domain.ParseActivityType(req.PrimarySport),
		SecondarySports: secondary,
	}
	if err := h.scoring.SaveProfile(r.Context(), profile); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	stored, err := h.scoring.GetProfile(r.Context(), claims.Subject)
	if err != nil || stored == nil {
		writeJSON(w, http.StatusOK, toProfileView(profile))
		return
	}
	writeJSON(w, http.StatusOK, toProfileView(*stored))
}

// EffortRequest carries client-reported effort and conditions.
type EffortRequest struct {
	AbsoluteEffort float64  `json:"absolute_effort,omitempty"`
	Terrain        string   `json:"terrain,omitempty"`
	Weather        string   `json:"weather,omitempty"`
	AltitudeMeters float64  `json:"altitude_m,omitempty"`
	SleepHours     float64  `json:"sleep_hours,omitempty"`
	RecoveryScore  *float64 `json:"recovery_score,omitempty"`
}

// EffortView exposes a persisted effort calculation.
type EffortView struct {
	ActivityID       string    `json:"activity_id"`
	AbsoluteEffort   float64   `json:"absolute_effort"`
	RelativeEffort   float64   `json:"relative_effort"`
	EffortMultiplier float64   `json:"effort_multiplier"`
	BaseReward       int       `json:"base_reward"`
	CalculatedReward int       `json:"calculated_reward"`
	CreatedAt        time.Time `json:"created_at"`
}

// EffortHistoryResponse packages effort history results.
type EffortHistoryResponse struct {
	Items []EffortView `json:"items"`
}

// ProfileRequest is the payload for PUT /v1/profile.
type ProfileRequest struct {
	FitnessLevel    string   `json:"fitness_level"`
	PrimarySport    string   `json:"primary_sport"`
	SecondarySports []string `json:"secondary_sports,omitempty"`
}

// ProfileView exposes the stored sport profile.
type ProfileView struct {
	UserID          string    `json:"user_id"`
	FitnessLevel    string    `json:"fitness_level"`
	PrimarySport    string    `json:"primary_sport"`
	SecondarySports []string  `json:"secondary_sports,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toEffortView(e scoring.EffortResult) EffortView {
	return EffortView{
		ActivityID:       e.ActivityID,
		AbsoluteEffort:   e.AbsoluteEffort,
		RelativeEffort:   e.RelativeEffort,
		EffortMultiplier: e.EffortMultiplier,
		BaseReward:       e.BaseReward,
		CalculatedReward: e.CalculatedReward,
		CreatedAt:        e.CreatedAt,
	}
}

func toProfileView(p scoring.Profile) ProfileView {
	secondary := make([]string, 0, len(p.SecondarySports))
	for _, s := range p.SecondarySports {
		secondary = append(secondary, string(s))
	}
	return ProfileView{
		UserID:          p.UserID,
		FitnessLevel:    string(p.FitnessLevel),
		PrimarySport:    string(p.PrimarySport),
		SecondarySports: secondary,
		UpdatedAt:       p.UpdatedAt,
	}
}
