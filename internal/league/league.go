// Package league scores activities into competitive standings.
package league

import (
	"math"
	"sort"
	"time"

	"example.com/rewards/internal/domain"
)

// Kind distinguishes open-ended leagues from time-boxed competitions. Both
// share the same scoring engine and ranking rules.
type Kind string

const (
	KindLeague      Kind = "league"
	KindCompetition Kind = "competition"
)

// ScoringType selects the metric a contest accumulates.
type ScoringType string

const (
	ScoreDistance  ScoringType = "distance"
	ScoreElevation ScoringType = "elevation"
	ScoreDuration  ScoringType = "duration"
	ScoreCalories  ScoringType = "calories"
	ScoreFrequency ScoringType = "frequency"
	ScoreStreak    ScoringType = "streak"
)

var knownScoringTypes = map[ScoringType]struct{}{
	ScoreDistance:  {},
	ScoreElevation: {},
	ScoreDuration:  {},
	ScoreCalories:  {},
	ScoreFrequency: {},
	ScoreStreak:    {},
}

// ParseScoringType validates a scoring type string.
func ParseScoringType(raw string) (ScoringType, bool) {
	t := ScoringType(raw)
	_, ok := knownScoringTypes[t]
	return t, ok
}

// League is a scored group contest over a time window.
type League struct {
	ID            string
	Name          string
	Description   string
	Kind          Kind
	ScoringType   ScoringType
	StartDate     time.Time
	EndDate       time.Time
	ActivityTypes []domain.ActivityType // empty accepts every type
	Multipliers   map[domain.ActivityType]float64
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Accepts reports whether the league's activity-type filter and date window
// admit the activity.
func (l League) Accepts(activity domain.Activity) bool {
	if activity.StartTime.Before(l.StartDate) || activity.StartTime.After(l.EndDate) {
		return false
	}
	if len(l.ActivityTypes) == 0 {
		return true
	}
	for _, t := range l.ActivityTypes {
		if t == activity.Type {
			return true
		}
	}
	return false
}

// Multiplier returns the per-activity-type multiplier, defaulting to 1.0.
func (l League) Multiplier(t domain.ActivityType) float64 {
	if m, ok := l.Multipliers[t]; ok && m > 0 {
		return m
	}
	return 1.0
}

// Contribution computes the activity's score contribution: the league's
// metric times the per-type multiplier, rounded to 2 decimals. Activities
// failing the filter or window contribute zero.
func (l League) Contribution(activity domain.Activity) float64 {
	if !l.Accepts(activity) {
		return 0
	}

	var metric float64
	switch l.ScoringType {
	case ScoreDistance:
		metric = activity.DistanceKm()
	case ScoreElevation:
		metric = activity.ElevationGain
	case ScoreDuration:
		metric = float64(activity.DurationSec) / 60
	case ScoreCalories:
		metric = activity.Calories
	case ScoreFrequency:
		metric = 1
	case ScoreStreak:
		// Streak counting is an extension point; flat credit for now.
		metric = 1
	}

	return Round2(metric * l.Multiplier(activity.Type))
}

// HistoryEntry is one append-only scoring record on a membership.
type HistoryEntry struct {
	Date        time.Time `json:"date"`
	Score       float64   `json:"score"`
	ActivityIDs []string  `json:"activity_ids"`
}

// Member is a user's standing inside one league.
type Member struct {
	UserID    string
	Score     float64
	Rank      int
	JoinOrder int
	JoinedAt  time.Time
	Active    bool // false after leaving (soft removal)
	History   []HistoryEntry
}

// Standing is one leaderboard row.
type Standing struct {
	Rank   int     `json:"rank"`
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
}

// Rerank sorts members and reassigns ranks 1..N. The sort key is explicit:
// score descending, then join order ascending, so ties always resolve to
// the member who joined first regardless of input order. Inactive members
// sort last and keep rank 0.
func Rerank(members []Member) {
	sort.Slice(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.Active != b.Active {
			return a.Active
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.JoinOrder < b.JoinOrder
	})
	rank := 0
	for i := range members {
		if !members[i].Active {
			members[i].Rank = 0
			continue
		}
		rank++
		members[i].Rank = rank
	}
}

// Round2 rounds to two decimal places, the precision of all league scores.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
