package fraud

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/rewards/internal/domain"
)

func runningActivity(distanceM float64, duration time.Duration) domain.Activity {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return domain.Activity{
		ID:             "act-1",
		UserID:         "user-1",
		Source:         "strava",
		Type:           domain.TypeRunning,
		StartTime:      start,
		EndTime:        start.Add(duration),
		DurationSec:    int(duration.Seconds()),
		DistanceMeters: distanceM,
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	activity := runningActivity(42195, 3*time.Hour)
	userCtx := Context{SameDay: 2, SameDayPoints: 120, EstimatedPoints: 200}

	first := Evaluate(activity, userCtx)
	second := Evaluate(activity, userCtx)

	require.Equal(t, first, second)
}

func TestEvaluateCleanActivity(t *testing.T) {
	v := Evaluate(runningActivity(10000, time.Hour), Context{EstimatedPoints: 100})

	require.Zero(t, v.Score)
	require.Empty(t, v.Reasons)
	require.False(t, v.Suspicious)
}

func TestEvaluateImplausibleSpeed(t *testing.T) {
	// 30 km of running in 30 minutes.
	v := Evaluate(runningActivity(30000, 30*time.Minute), Context{})

	require.Equal(t, 50, v.Score)
	require.Len(t, v.Reasons, 1)
	require.Contains(t, v.Reasons[0], "implausible speed")
	require.False(t, v.Suspicious, "a single heuristic below threshold must not flag")
}

func TestEvaluateScoreThreshold(t *testing.T) {
	activity := runningActivity(10000, time.Hour)
	activity.Source = "manual"

	// Overlap (60) plus untrusted source (10) reaches the threshold.
	v := Evaluate(activity, Context{Overlapping: 1})

	require.Equal(t, 70, v.Score)
	require.True(t, v.Suspicious)
}

func TestEvaluateReasonCountThreshold(t *testing.T) {
	activity := runningActivity(10000, time.Hour)
	activity.Source = "manual"

	// Three weak signals flag even though the score stays below 70.
	v := Evaluate(activity, Context{SameDay: 10, FlaggedTotal: 2})

	require.Less(t, v.Score, 70)
	require.Len(t, v.Reasons, 3)
	require.True(t, v.Suspicious)
}

func TestEvaluateDailyPointsCap(t *testing.T) {
	v := Evaluate(runningActivity(10000, time.Hour), Context{SameDayPoints: 450, EstimatedPoints: 100})

	require.Equal(t, 30, v.Score)
	require.Contains(t, v.Reasons[0], "daily points cap")
}

func TestEvaluateFlaggedHistoryPenaltyCapped(t *testing.T) {
	v := Evaluate(runningActivity(10000, time.Hour), Context{FlaggedTotal: 20})

	require.Equal(t, 30, v.Score, "history penalty caps at 30")
}

func TestEvaluateUnknownTypeUsesDefaults(t *testing.T) {
	activity := runningActivity(60000, time.Hour)
	activity.Type = domain.TypeOther

	// 60 km/h exceeds the 50 km/h default limit.
	v := Evaluate(activity, Context{})

	require.Equal(t, 50, v.Score)
	require.Contains(t, v.Reasons[0], "implausible speed")
}
