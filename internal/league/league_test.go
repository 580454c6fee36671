package league

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/rewards/internal/domain"
)

func distanceLeague() League {
	return League{
		ID:          "league-1",
		Name:        "Spring Distance Cup",
		Kind:        KindLeague,
		ScoringType: ScoreDistance,
		StartDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 5, 31, 23, 59, 59, 0, time.UTC),
	}
}

func marchRun(distanceM float64) domain.Activity {
	return domain.Activity{
		ID:             "act-1",
		UserID:         "user-1",
		Type:           domain.TypeRunning,
		StartTime:      time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		DurationSec:    1800,
		DistanceMeters: distanceM,
	}
}

func TestAcceptsWindowAndTypeFilter(t *testing.T) {
	l := distanceLeague()

	require.True(t, l.Accepts(marchRun(5000)))

	early := marchRun(5000)
	early.StartTime = time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)
	require.False(t, l.Accepts(early))

	late := marchRun(5000)
	late.StartTime = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.False(t, l.Accepts(late))

	l.ActivityTypes = []domain.ActivityType{domain.TypeCycling}
	require.False(t, l.Accepts(marchRun(5000)))

	l.ActivityTypes = []domain.ActivityType{domain.TypeCycling, domain.TypeRunning}
	require.True(t, l.Accepts(marchRun(5000)))
}

func TestContributionMetrics(t *testing.T) {
	activity := marchRun(10000)
	activity.ElevationGain = 250
	activity.Calories = 480.5

	cases := []struct {
		scoring  ScoringType
		expected float64
	}{
		{ScoreDistance, 10},
		{ScoreElevation, 250},
		{ScoreDuration, 30},
		{ScoreCalories, 480.5},
		{ScoreFrequency, 1},
		{ScoreStreak, 1},
	}
	for _, tc := range cases {
		t.Run(string(tc.scoring), func(t *testing.T) {
			l := distanceLeague()
			l.ScoringType = tc.scoring
			require.Equal(t, tc.expected, l.Contribution(activity))
		})
	}
}

func TestContributionAppliesMultiplier(t *testing.T) {
	l := distanceLeague()
	l.Multipliers = map[domain.ActivityType]float64{domain.TypeRunning: 2.0}

	require.Equal(t, 20.0, l.Contribution(marchRun(10000)))

	// Unconfigured types default to 1.0.
	ride := marchRun(10000)
	ride.Type = domain.TypeCycling
	require.Equal(t, 10.0, l.Contribution(ride))
}

func TestContributionOutsideWindowIsZero(t *testing.T) {
	l := distanceLeague()
	activity := marchRun(10000)
	activity.StartTime = time.Date(2025, 12, 25, 9, 0, 0, 0, time.UTC)

	require.Zero(t, l.Contribution(activity))
}

func TestContributionRoundsToTwoDecimals(t *testing.T) {
	l := distanceLeague()
	l.Multipliers = map[domain.ActivityType]float64{domain.TypeRunning: 1.5}

	// 1.234 km * 1.5 = 1.851, rounded to 1.85.
	require.InDelta(t, 1.85, l.Contribution(marchRun(1234)), 1e-9)
}

func TestRerankOrdersByScoreThenJoinOrder(t *testing.T) {
	members := []Member{
		{UserID: "u-a", Score: 50, JoinOrder: 0, Active: true},
		{UserID: "u-b", Score: 100, JoinOrder: 1, Active: true},
		{UserID: "u-c", Score: 100, JoinOrder: 2, Active: true},
		{UserID: "u-d", Score: 75, JoinOrder: 3, Active: true},
	}

	Rerank(members)

	require.Equal(t, []string{"u-b", "u-c", "u-d", "u-a"}, memberIDs(members))
	for i, m := range members {
		require.Equal(t, i+1, m.Rank)
	}
}

func TestRerankInactiveMembersKeepRankZero(t *testing.T) {
	members := []Member{
		{UserID: "u-a", Score: 90, JoinOrder: 0, Active: false},
		{UserID: "u-b", Score: 10, JoinOrder: 1, Active: true},
	}

	Rerank(members)

	require.Equal(t, []string{"u-b", "u-a"}, memberIDs(members))
	require.Equal(t, 1, members[0].Rank)
	require.Zero(t, members[1].Rank)
}

func TestParseScoringType(t *testing.T) {
	st, ok := ParseScoringType("distance")
	require.True(t, ok)
	require.Equal(t, ScoreDistance, st)

	_, ok = ParseScoringType("vertical")
	require.False(t, ok)
}

func memberIDs(members []Member) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	return ids
}
