// Package memory provides in-memory store implementations used by unit
// tests and local development. Semantics mirror the Postgres repository:
// every state transition is conditional and replays report false.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/rewards/internal/domain"
	"example.com/rewards/internal/events"
	"example.com/rewards/internal/league"
	"example.com/rewards/internal/scoring"
)

// Event is a recorded pipeline event, the in-memory stand-in for an outbox row.
type Event struct {
	Type    string
	Payload any
}

// Store implements the activity, league, profile, and effort store contracts.
type Store struct {
	mu            sync.RWMutex
	activities    map[string]domain.Activity
	leagues       map[string]league.League
	members       map[string][]league.Member
	contributions map[string]struct{}
	profiles      map[string]scoring.Profile
	efforts       map[string][]scoring.EffortResult
	events        []Event
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		activities:    make(map[string]domain.Activity),
		leagues:       make(map[string]league.League),
		members:       make(map[string][]league.Member),
		contributions: make(map[string]struct{}),
		profiles:      make(map[string]scoring.Profile),
		efforts:       make(map[string][]scoring.EffortResult),
	}
}

// Events returns recorded events of the given type, in emission order.
func (s *Store) Events(eventType string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, 0)
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) record(eventType string, payload any) {
	s.events = append(s.events, Event{Type: eventType, Payload: payload})
}

func (s *Store) recordStateChanged(a domain.Activity, reason string) {
	s.record(events.TypeActivityStateChanged, events.ActivityStateChanged{
		ActivityID: a.ID,
		UserID:     a.UserID,
		State:      string(a.Status),
		Reason:     reason,
		OccurredAt: a.UpdatedAt,
	})
}

// FindBySource implements domain.ActivityStore.
func (s *Store) FindBySource(_ context.Context, userID, source, sourceID string) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.activities {
		if a.UserID == userID && a.Source == source && a.SourceID == sourceID {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

// Create persists the activity and records the ingestion event.
func (s *Store) Create(_ context.Context, activity domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities[activity.ID] = activity
	s.record(events.TypeActivityIngested, events.ActivityIngested{
		ActivityID: activity.ID,
		UserID:     activity.UserID,
		Source:     activity.Source,
		Type:       string(activity.Type),
		OccurredAt: activity.CreatedAt,
	})
	s.recordStateChanged(activity, "")
	return nil
}

// Get implements domain.ActivityStore.
func (s *Store) Get(_ context.Context, activityID string) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activities[activityID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// ListByUser returns activities newest first with cursor pagination.
func (s *Store) ListByUser(_ context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.Activity, 0)
	for _, a := range s.activities {
		if a.UserID == userID {
			all = append(all, a)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartTime.Equal(all[j].StartTime) {
			return all[i].StartTime.After(all[j].StartTime)
		}
		return all[i].ID > all[j].ID
	})

	results := make([]domain.Activity, 0, limit)
	for _, a := range all {
		if cursor != nil {
			if a.StartTime.After(cursor.StartTime) || (a.StartTime.Equal(cursor.StartTime) && a.ID >= cursor.ID) {
				continue
			}
		}
		results = append(results, a)
		if len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if len(results) == limit && limit > 0 {
		last := results[len(results)-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return results, next, nil
}

// FraudHistory assembles the evaluator context from stored activities.
func (s *Store) FraudHistory(_ context.Context, userID, exceptID string, start, end time.Time) (domain.FraudHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var h domain.FraudHistory
	day := start.UTC().Truncate(24 * time.Hour)
	for _, a := range s.activities {
		if a.UserID != userID || a.ID == exceptID {
			continue
		}
		if !a.StartTime.After(end) && !a.EndTime.Before(start) {
			h.Overlapping++
		}
		if a.StartTime.UTC().Truncate(24 * time.Hour).Equal(day) {
			h.SameDay++
			h.SameDayPoints += a.Points
		}
		if a.Status == domain.StatusFlagged {
			h.FlaggedTotal++
		}
	}
	return h, nil
}

// ApplyFraudVerdict implements the pending -> verified|flagged transition.
func (s *Store) ApplyFraudVerdict(_ context.Context, activityID string, score int, reasons []string, suspicious bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[activityID]
	if !ok || a.Status != domain.StatusPending {
		return false, nil
	}

	a.FraudScore = score
	a.FraudReasons = append([]string(nil), reasons...)
	a.UpdatedAt = time.Now().UTC()
	if suspicious {
		a.Status = domain.StatusFlagged
	} else {
		a.Status = domain.StatusVerified
	}
	s.activities[activityID] = a

	if !suspicious {
		s.record(events.TypeActivityVerified, events.ActivityVerified{
			ActivityID: a.ID,
			UserID:     a.UserID,
			FraudScore: a.FraudScore,
			OccurredAt: a.UpdatedAt,
		})
	}
	s.recordStateChanged(a, "")
	return true, nil
}

// MarkProcessed awards points guarded by processed=false AND status=verified.
func (s *Store) MarkProcessed(_ context.Context, activityID string, points int, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[activityID]
	if !ok || a.Processed || a.Status != domain.StatusVerified {
		return false, nil
	}

	a.Points = points
	a.Processed = true
	a.UpdatedAt = time.Now().UTC()
	s.activities[activityID] = a

	s.record(events.TypeRewardIssued, events.RewardIssued{
		UserID:     a.UserID,
		ActivityID: a.ID,
		Amount:     points,
		Reason:     reason,
		OccurredAt: a.UpdatedAt,
	})
	s.record(events.TypeActivityScored, events.ActivityScored{
		ActivityID: a.ID,
		UserID:     a.UserID,
		Points:     points,
		OccurredAt: a.UpdatedAt,
	})
	return true, nil
}

// Approve releases a flagged activity and re-enqueues scoring.
func (s *Store) Approve(_ context.Context, activityID, _, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[activityID]
	if !ok || a.Status != domain.StatusFlagged {
		return false, nil
	}
	a.Status = domain.StatusVerified
	a.UpdatedAt = time.Now().UTC()
	s.activities[activityID] = a

	s.record(events.TypeActivityVerified, events.ActivityVerified{
		ActivityID: a.ID,
		UserID:     a.UserID,
		FraudScore: a.FraudScore,
		OccurredAt: a.UpdatedAt,
	})
	s.recordStateChanged(a, "approved")
	return true, nil
}

// Reject terminally rejects a flagged activity.
func (s *Store) Reject(_ context.Context, activityID, _, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[activityID]
	if !ok || a.Status != domain.StatusFlagged {
		return false, nil
	}
	a.Status = domain.StatusRejected
	a.UpdatedAt = time.Now().UTC()
	s.activities[activityID] = a
	s.recordStateChanged(a, reason)
	return true, nil
}

// Flag moves a pending or verified activity into manual review.
func (s *Store) Flag(_ context.Context, activityID, reason, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[activityID]
	if !ok || (a.Status != domain.StatusPending && a.Status != domain.StatusVerified) {
		return false, nil
	}
	a.Status = domain.StatusFlagged
	a.FraudReasons = append(a.FraudReasons, reason)
	a.UpdatedAt = time.Now().UTC()
	s.activities[activityID] = a
	s.recordStateChanged(a, reason)
	return true, nil
}

// SummaryByUser aggregates the user's activity since the given time.
func (s *Store) SummaryByUser(_ context.Context, userID string, since time.Time) (domain.ActivitySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary domain.ActivitySummary
	for _, a := range s.activities {
		if a.UserID != userID || a.StartTime.Before(since) {
			continue
		}
		summary.Total++
		switch a.Status {
		case domain.StatusPending:
			summary.Pending++
		case domain.StatusVerified:
			summary.Verified++
		case domain.StatusFlagged:
			summary.Flagged++
		case domain.StatusRejected:
			summary.Rejected++
		}
		summary.TotalPoints += a.Points
		summary.TotalDistanceM += a.DistanceMeters
		summary.TotalDuration += a.DurationSec
		if summary.LastActivityAt == nil || a.StartTime.After(*summary.LastActivityAt) {
			t := a.StartTime
			summary.LastActivityAt = &t
		}
	}
	return summary, nil
}

// --- league.Store ---

// CreateLeague implements league.Store.Create.
func (s *Store) CreateLeague(_ context.Context, l league.League, creator league.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leagues[l.ID] = l
	s.members[l.ID] = []league.Member{creator}
	return nil
}

// GetLeague implements league.Store.Get.
func (s *Store) GetLeague(_ context.Context, leagueID string) (*league.League, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leagues[leagueID]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

// JoinLeague implements league.Store.Join. Rejoining returns the existing
// membership without creating a second row.
func (s *Store) JoinLeague(_ context.Context, leagueID, userID string, at time.Time) (*league.Member, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.members[leagueID]
	for i := range members {
		if members[i].UserID == userID {
			m := members[i]
			return &m, false, nil
		}
	}

	member := league.Member{
		UserID:    userID,
		JoinOrder: len(members),
		JoinedAt:  at,
		Active:    true,
	}
	members = append(members, member)
	league.Rerank(members)
	s.members[leagueID] = members

	for i := range members {
		if members[i].UserID == userID {
			m := members[i]
			return &m, true, nil
		}
	}
	return &member, true, nil
}

// LeaveLeague implements league.Store.Leave (soft removal).
func (s *Store) LeaveLeague(_ context.Context, leagueID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.members[leagueID]
	found := false
	for i := range members {
		if members[i].UserID == userID && members[i].Active {
			members[i].Active = false
			found = true
		}
	}
	if !found {
		return league.ErrNotMember
	}
	league.Rerank(members)
	s.members[leagueID] = members
	return nil
}

// LeagueLeaderboard implements league.Store.Leaderboard.
func (s *Store) LeagueLeaderboard(_ context.Context, leagueID string) ([]league.Standing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := append([]league.Member(nil), s.members[leagueID]...)
	league.Rerank(members)

	standings := make([]league.Standing, 0, len(members))
	for _, m := range members {
		if !m.Active {
			continue
		}
		standings = append(standings, league.Standing{Rank: m.Rank, UserID: m.UserID, Score: m.Score})
	}
	return standings, nil
}

// ActiveLeaguesForUser implements league.Store.ActiveForUser.
func (s *Store) ActiveLeaguesForUser(_ context.Context, userID string, at time.Time) ([]league.League, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]league.League, 0)
	for id, l := range s.leagues {
		if at.Before(l.StartDate) || at.After(l.EndDate) {
			continue
		}
		for _, m := range s.members[id] {
			if m.UserID == userID && m.Active {
				out = append(out, l)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ApplyLeagueContribution implements league.Store.ApplyContribution: score
// mutation, history append, and full rerank as one atomic unit, idempotent
// per (league, activity).
func (s *Store) ApplyLeagueContribution(_ context.Context, leagueID, userID, activityID string, amount float64, date time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s|%s", leagueID, activityID)
	if _, seen := s.contributions[key]; seen {
		return false, nil
	}

	members := s.members[leagueID]
	applied := false
	for i := range members {
		if members[i].UserID == userID && members[i].Active {
			members[i].Score = league.Round2(members[i].Score + amount)
			members[i].History = append(members[i].History, league.HistoryEntry{
				Date:        date,
				Score:       amount,
				ActivityIDs: []string{activityID},
			})
			applied = true
			break
		}
	}
	if !applied {
		return false, nil
	}

	s.contributions[key] = struct{}{}
	league.Rerank(members)
	s.members[leagueID] = members
	return true, nil
}

// --- scoring.ProfileStore / scoring.EffortStore ---

// GetProfile implements scoring.ProfileStore.
func (s *Store) GetProfile(_ context.Context, userID string) (*scoring.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// UpsertProfile implements scoring.ProfileStore.
func (s *Store) UpsertProfile(_ context.Context, profile scoring.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
	return nil
}

// SaveEffort implements scoring.EffortStore.
func (s *Store) SaveEffort(_ context.Context, result scoring.EffortResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.efforts[result.UserID] = append([]scoring.EffortResult{result}, s.efforts[result.UserID]...)
	return nil
}

// ListEfforts implements scoring.EffortStore.
func (s *Store) ListEfforts(_ context.Context, userID string, limit, offset int) ([]scoring.EffortResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.efforts[userID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return append([]scoring.EffortResult(nil), all[offset:end]...), nil
}

// Leagues adapts the store to the league.Store interface.
func (s *Store) Leagues() league.Store { return leagueView{s} }

type leagueView struct{ s *Store }

func (v leagueView) Create(ctx context.Context, l league.League, creator league.Member) error {
	return v.s.CreateLeague(ctx, l, creator)
}

func (v leagueView) Get(ctx context.Context, leagueID string) (*league.League, error) {
	return v.s.GetLeague(ctx, leagueID)
}

func (v leagueView) Join(ctx context.Context, leagueID, userID string, at time.Time) (*league.Member, bool, error) {
	return v.s.JoinLeague(ctx, leagueID, userID, at)
}

func (v leagueView) Leave(ctx context.Context, leagueID, userID string) error {
	return v.s.LeaveLeague(ctx, leagueID, userID)
}

func (v leagueView) Leaderboard(ctx context.Context, leagueID string) ([]league.Standing, error) {
	return v.s.LeagueLeaderboard(ctx, leagueID)
}

func (v leagueView) ActiveForUser(ctx context.Context, userID string, at time.Time) ([]league.League, error) {
	return v.s.ActiveLeaguesForUser(ctx, userID, at)
}

func (v leagueView) ApplyContribution(ctx context.Context, leagueID, userID, activityID string, amount float64, date time.Time) (bool, error) {
	return v.s.ApplyLeagueContribution(ctx, leagueID, userID, activityID, amount, date)
}
