package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/rewards/internal/auth"
	"example.com/rewards/internal/league"
)

func (h *Handler) leaguesRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeLeaguesWrite)
	if !ok {
		return
	}

	var req CreateLeagueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	l, err := h.leagues.CreateLeague(r.Context(), league.CreateInput{
		Name:          req.Name,
		Description:   req.Description,
		Kind:          req.Kind,
		ScoringType:   req.ScoringType,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		ActivityTypes: req.ActivityTypes,
		Multipliers:   req.Multipliers,
		CreatedBy:     claims.Subject,
	})
	if err != nil {
		if errors.Is(err, league.ErrInvalidLeague) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toLeagueView(*l))
}

func (h *Handler) leagueByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/leagues/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing league id")
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		h.getLeague(w, r, id)
	case sub == "join" && r.Method == http.MethodPost:
		h.joinLeague(w, r, id)
	case sub == "leave" && r.Method == http.MethodPost:
		h.leaveLeague(w, r, id)
	case sub == "leaderboard" && r.Method == http.MethodGet:
		h.leaderboard(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getLeague(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeLeaguesRead, auth.ScopeLeaguesWrite); !ok {
		return
	}

	l, err := h.leagues.GetLeague(r.Context(), id)
	if err != nil {
		writeLeagueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeagueView(*l))
}

func (h *Handler) joinLeague(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeLeaguesWrite)
	if !ok {
		return
	}

	member, err := h.leagues.Join(r.Context(), id, claims.Subject)
	if err != nil {
		writeLeagueError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MemberView{
		UserID:   member.UserID,
		Score:    member.Score,
		Rank:     member.Rank,
		JoinedAt: member.JoinedAt,
	})
}

func (h *Handler) leaveLeague(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeLeaguesWrite)
	if !ok {
		return
	}

	if err := h.leagues.Leave(r.Context(), id, claims.Subject); err != nil {
		writeLeagueError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeLeaguesRead, auth.ScopeLeaguesWrite); !ok {
		return
	}

	standings, err := h.leagues.Leaderboard(r.Context(), id)
	if err != nil {
		writeLeagueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{LeagueID: id, Standings: standings})
}

func writeLeagueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, league.ErrLeagueNotFound):
		writeError(w, http.StatusNotFound, "not_found", "league not found")
	case errors.Is(err, league.ErrNotMember):
		writeError(w, http.StatusConflict, "not_member", err.Error())
	case errors.Is(err, league.ErrCreatorCannotLeave):
		writeError(w, http.StatusConflict, "creator_cannot_leave", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// CreateLeagueRequest is the payload for POST /v1/leagues.
type CreateLeagueRequest struct {
	Name          string             `json:"name"`
	Description   string             `json:"description,omitempty"`
	Kind          string             `json:"kind,omitempty"`
	ScoringType   string             `json:"scoring_type"`
	StartDate     time.Time          `json:"start_date"`
	EndDate       time.Time          `json:"end_date"`
	ActivityTypes []string           `json:"activity_types,omitempty"`
	Multipliers   map[string]float64 `json:"multipliers,omitempty"`
}

// LeagueView exposes league details.
type LeagueView struct {
	LeagueID      string             `json:"league_id"`
	Name          string             `json:"name"`
	Description   string             `json:"description,omitempty"`
	Kind          string             `json:"kind"`
	ScoringType   string             `json:"scoring_type"`
	StartDate     time.Time          `json:"start_date"`
	EndDate       time.Time          `json:"end_date"`
	ActivityTypes []string           `json:"activity_types,omitempty"`
	Multipliers   map[string]float64 `json:"multipliers,omitempty"`
	CreatedBy     string             `json:"created_by"`
	CreatedAt     time.Time          `json:"created_at"`
}

// MemberView exposes one membership.
type MemberView struct {
	UserID   string    `json:"user_id"`
	Score    float64   `json:"score"`
	Rank     int       `json:"rank"`
	JoinedAt time.Time `json:"joined_at"`
}

// LeaderboardResponse packages standings for a league.
type LeaderboardResponse struct {
	LeagueID  string            `json:"league_id"`
	Standings []league.Standing `json:"standings"`
}

func toLeagueView(l league.League) LeagueView {
	types := make([]string, 0, len(l.ActivityTypes))
	for _, t := range l.ActivityTypes {
		types = append(types, string(t))
	}
	var multipliers map[string]float64
	if len(l.Multipliers) > 0 {
		multipliers = make(map[string]float64, len(l.Multipliers))
		for t, m := range l.Multipliers {
			multipliers[string(t)] = m
		}
	}
	return LeagueView{
		LeagueID:      l.ID,
		Name:          l.Name,
		Description:   l.Description,
		Kind:          string(l.Kind),
		ScoringType:   string(l.ScoringType),
		StartDate:     l.StartDate,
		EndDate:       l.EndDate,
		ActivityTypes: types,
		Multipliers:   multipliers,
		CreatedBy:     l.CreatedBy,
		CreatedAt:     l.CreatedAt,
	}
}
