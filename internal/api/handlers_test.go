package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/rewards/internal/auth"
	"example.com/rewards/internal/domain"
	"example.com/rewards/internal/league"
	"example.com/rewards/internal/persistence/memory"
	"example.com/rewards/internal/scoring"
)

func newTestHandler() (*http.ServeMux, *memory.Store) {
	store := memory.NewStore()
	handler := NewHandler(
		domain.NewService(store),
		league.NewService(store.Leagues()),
		scoring.NewService(store, store, store, scoring.DefaultEffortRange),
	)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux, store
}

func authedRequest(t *testing.T, method, target, subject string, body interface{}, scopes ...string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)

	scopeSet := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		scopeSet[s] = struct{}{}
	}
	claims := &auth.Claims{
		Subject:   subject,
		Scopes:    scopeSet,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func ingestBody() IngestActivityRequest {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return IngestActivityRequest{
		Source:         "strava",
		SourceID:       "workout-1",
		Type:           "running",
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		DurationSec:    1800,
		DistanceMeters: 5000,
	}
}

func TestIngestActivityAccepted(t *testing.T) {
	mux, _ := newTestHandler()

	req := authedRequest(t, http.MethodPost, "/v1/activities", "user-1", ingestBody(), auth.ScopeActivitiesWrite)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp IngestActivityResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ActivityID == "" {
		t.Fatal("expected an activity id")
	}
	if resp.Status != "pending" {
		t.Fatalf("expected status pending got %s", resp.Status)
	}
	if resp.Replay {
		t.Fatal("first ingestion must not be a replay")
	}
}

func TestIngestActivityReplayReturnsOK(t *testing.T) {
	mux, _ := newTestHandler()

	first := authedRequest(t, http.MethodPost, "/v1/activities", "user-1", ingestBody(), auth.ScopeActivitiesWrite)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, first)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", rr.Code)
	}
	var created IngestActivityResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	second := authedRequest(t, http.MethodPost, "/v1/activities", "user-1", ingestBody(), auth.ScopeActivitiesWrite)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, second)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay got %d", rr.Code)
	}
	var replayed IngestActivityResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &replayed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !replayed.Replay {
		t.Fatal("expected idempotent_replay=true")
	}
	if replayed.ActivityID != created.ActivityID {
		t.Fatalf("replay returned a different activity: %s vs %s", replayed.ActivityID, created.ActivityID)
	}
}

func TestIngestActivityValidationFailure(t *testing.T) {
	mux, _ := newTestHandler()

	body := ingestBody()
	body.DurationSec = 60
	req := authedRequest(t, http.MethodPost, "/v1/activities", "user-1", body, auth.ScopeActivitiesWrite)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestIngestActivityRequiresWriteScope(t *testing.T) {
	mux, _ := newTestHandler()

	req := authedRequest(t, http.MethodPost, "/v1/activities", "user-1", ingestBody(), auth.ScopeActivitiesRead)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestGetActivityNotFound(t *testing.T) {
	mux, _ := newTestHandler()

	req := authedRequest(t, http.MethodGet, "/v1/activities/no-such-id", "user-1", nil, auth.ScopeActivitiesRead)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestActivitySummaryDefaultsWindow(t *testing.T) {
	mux, _ := newTestHandler()

	ingest := authedRequest(t, http.MethodPost, "/v1/activities", "user-1", ingestBody(), auth.ScopeActivitiesWrite)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, ingest)

	req := authedRequest(t, http.MethodGet, "/v1/activities/summary", "user-1", nil, auth.ScopeActivitiesRead)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp ActivitySummaryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.WindowDays != 30 {
		t.Fatalf("expected window_days 30 got %d", resp.WindowDays)
	}
}

func TestAdminModerationFlow(t *testing.T) {
	mux, _ := newTestHandler()

	ingest := authedRequest(t, http.MethodPost, "/v1/activities", "user-1", ingestBody(), auth.ScopeActivitiesWrite)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, ingest)
	var created IngestActivityResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	// Approving a pending activity conflicts.
	approve := authedRequest(t, http.MethodPost, "/v1/admin/activities/"+created.ActivityID+"/approve", "admin-1", nil, auth.ScopeActivitiesModerate)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, approve)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", rr.Code, rr.Body.String())
	}

	flag := authedRequest(t, http.MethodPost, "/v1/admin/activities/"+created.ActivityID+"/flag", "admin-1",
		ModerationRequest{Reason: "manual review"}, auth.ScopeActivitiesModerate)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, flag)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	approve = authedRequest(t, http.MethodPost, "/v1/admin/activities/"+created.ActivityID+"/approve", "admin-1", nil, auth.ScopeActivitiesModerate)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, approve)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var view ActivityView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.Status != "verified" {
		t.Fatalf("expected verified got %s", view.Status)
	}
}

func TestAdminRejectRequiresReason(t *testing.T) {
	mux, _ := newTestHandler()

	req := authedRequest(t, http.MethodPost, "/v1/admin/activities/act-1/reject", "admin-1", nil, auth.ScopeActivitiesModerate)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestLeagueLifecycle(t *testing.T) {
	mux, _ := newTestHandler()

	create := authedRequest(t, http.MethodPost, "/v1/leagues", "user-creator", CreateLeagueRequest{
		Name:        "Spring Distance Cup",
		ScoringType: "distance",
		StartDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC),
	}, auth.ScopeLeaguesWrite)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, create)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var created LeagueView
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.CreatedBy != "user-creator" {
		t.Fatalf("expected creator from claims got %s", created.CreatedBy)
	}

	join := authedRequest(t, http.MethodPost, "/v1/leagues/"+created.LeagueID+"/join", "user-2", nil, auth.ScopeLeaguesWrite)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, join)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	board := authedRequest(t, http.MethodGet, "/v1/leagues/"+created.LeagueID+"/leaderboard", "user-2", nil, auth.ScopeLeaguesRead)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, board)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var leaderboard LeaderboardResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &leaderboard); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(leaderboard.Standings) != 2 {
		t.Fatalf("expected 2 standings got %d", len(leaderboard.Standings))
	}

	leave := authedRequest(t, http.MethodPost, "/v1/leagues/"+created.LeagueID+"/leave", "user-creator", nil, auth.ScopeLeaguesWrite)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, leave)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for creator leave got %d", rr.Code)
	}

	leave = authedRequest(t, http.MethodPost, "/v1/leagues/"+created.LeagueID+"/leave", "user-2", nil, auth.ScopeLeaguesWrite)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, leave)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestLeagueNotFound(t *testing.T) {
	mux, _ := newTestHandler()

	req := authedRequest(t, http.MethodGet, "/v1/leagues/no-such-league", "user-1", nil, auth.ScopeLeaguesRead)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestEffortCalculationEndpoint(t *testing.T) {
	mux, _ := newTestHandler()

	ingest := authedRequest(t, http.MethodPost, "/v1/activities", "user-1", ingestBody(), auth.ScopeActivitiesWrite)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, ingest)
	var created IngestActivityResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	effort := authedRequest(t, http.MethodPost, "/v1/activities/"+created.ActivityID+"/effort", "user-1",
		EffortRequest{AbsoluteEffort: 80, Terrain: "hilly"}, auth.ScopeActivitiesWrite)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, effort)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var view EffortView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.BaseReward != 50 {
		t.Fatalf("expected base reward 50 got %d", view.BaseReward)
	}
	// Without a profile the absolute effort passes through unchanged.
	if view.RelativeEffort != 80 {
		t.Fatalf("expected relative effort 80 got %f", view.RelativeEffort)
	}
	if view.CalculatedReward != 85 {
		t.Fatalf("expected calculated reward 85 got %d", view.CalculatedReward)
	}

	history := authedRequest(t, http.MethodGet, "/v1/efforts", "user-1", nil, auth.ScopeActivitiesRead)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, history)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var resp EffortHistoryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 effort record got %d", len(resp.Items))
	}
}

func TestProfileRoundTrip(t *testing.T) {
	mux, _ := newTestHandler()

	missing := authedRequest(t, http.MethodGet, "/v1/profile", "user-1", nil, auth.ScopeActivitiesRead)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, missing)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing profile got %d", rr.Code)
	}

	put := authedRequest(t, http.MethodPut, "/v1/profile", "user-1", ProfileRequest{
		FitnessLevel:    "beginner",
		PrimarySport:    "running",
		SecondarySports: []string{"cycling"},
	}, auth.ScopeActivitiesWrite)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, put)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	get := authedRequest(t, http.MethodGet, "/v1/profile", "user-1", nil, auth.ScopeActivitiesRead)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, get)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var view ProfileView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.FitnessLevel != "beginner" || view.PrimarySport != "running" {
		t.Fatalf("unexpected profile %+v", view)
	}
}

func TestProfileRejectsUnknownFitnessLevel(t *testing.T) {
	mux, _ := newTestHandler()

	put := authedRequest(t, http.MethodPut, "/v1/profile", "user-1", ProfileRequest{
		FitnessLevel: "superhuman",
		PrimarySport: "running",
	}, auth.ScopeActivitiesWrite)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, put)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestMissingClaimsUnauthorized(t *testing.T) {
	mux, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/v1/activities/summary", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}
