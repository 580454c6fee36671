package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"example.com/rewards/internal/auth"
	"example.com/rewards/internal/domain"
)

// adminActivity routes POST /v1/admin/activities/{id}/{approve|reject|flag}.
func (h *Handler) adminActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeActivitiesModerate)
	if !ok {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/activities/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || action == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id or action")
		return
	}

	var req ModerationRequest
	if r.Body != nil {
		// Body is optional for approve; decode errors on empty bodies are fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var (
		activity *domain.Activity
		err      error
	)
	switch action {
	case "approve":
		activity, err = h.activities.ApproveActivity(r.Context(), id, claims.Subject, req.Notes)
	case "reject":
		if strings.TrimSpace(req.Reason) == "" {
			writeError(w, http.StatusBadRequest, "validation_failed", "reason is required")
			return
		}
		activity, err = h.activities.RejectActivity(r.Context(), id, claims.Subject, req.Reason)
	case "flag":
		if strings.TrimSpace(req.Reason) == "" {
			writeError(w, http.StatusBadRequest, "validation_failed", "reason is required")
			return
		}
		activity, err = h.activities.FlagActivity(r.Context(), id, req.Reason, claims.Subject)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown action")
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, domain.ErrActivityNotFound):
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
		case errors.Is(err, domain.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "invalid_transition", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

// ModerationRequest carries the admin's notes or reason for a transition.
type ModerationRequest struct {
	Reason string `json:"reason,omitempty"`
	Notes  string `json:"notes,omitempty"`
}
