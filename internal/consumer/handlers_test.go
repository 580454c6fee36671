package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/rewards/internal/domain"
	"example.com/rewards/internal/events"
	"example.com/rewards/internal/league"
	"example.com/rewards/internal/persistence/memory"
)

func stageMessage(t *testing.T, eventType string, payload any) Message {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return Message{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Payload:   body,
	}
}

func ingestTestActivity(t *testing.T, store *memory.Store, distanceM float64) *domain.Activity {
	t.Helper()
	svc := domain.NewService(store)
	start := time.Now().UTC().Add(-time.Hour)
	activity, replay, err := svc.IngestActivity(context.Background(), domain.IngestInput{
		UserID:         "user-1",
		Source:         "strava",
		SourceID:       "workout-1",
		Type:           "running",
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		DurationSec:    1800,
		DistanceMeters: distanceM,
	})
	require.NoError(t, err)
	require.False(t, replay)
	return activity
}

func TestFraudHandlerVerifiesCleanActivity(t *testing.T) {
	store := memory.NewStore()
	activity := ingestTestActivity(t, store, 5000)

	handler := NewFraudHandler(store, nil)
	msg := stageMessage(t, events.TypeActivityIngested, events.ActivityIngested{
		ActivityID: activity.ID,
		UserID:     activity.UserID,
	})

	require.NoError(t, handler.Handle(context.Background(), msg))

	stored, err := store.Get(context.Background(), activity.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusVerified, stored.Status)
	require.Len(t, store.Events(events.TypeActivityVerified), 1)

	// Redelivery finds the activity already verified and changes nothing.
	require.NoError(t, handler.Handle(context.Background(), msg))
	require.Len(t, store.Events(events.TypeActivityVerified), 1)
}

func TestFraudHandlerFlagsImpossibleSpeed(t *testing.T) {
	store := memory.NewStore()
	// 150 km in 30 minutes of running trips both the speed and distance checks.
	activity := ingestTestActivity(t, store, 150000)

	handler := NewFraudHandler(store, nil)
	msg := stageMessage(t, events.TypeActivityIngested, events.ActivityIngested{
		ActivityID: activity.ID,
		UserID:     activity.UserID,
	})

	require.NoError(t, handler.Handle(context.Background(), msg))

	stored, err := store.Get(context.Background(), activity.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFlagged, stored.Status)
	require.NotEmpty(t, stored.FraudReasons)
	require.Empty(t, store.Events(events.TypeActivityVerified), "flagged activities must not advance")
}

func TestScoreHandlerIssuesRewardExactlyOnce(t *testing.T) {
	store := memory.NewStore()
	activity := ingestTestActivity(t, store, 5000)

	fraudMsg := stageMessage(t, events.TypeActivityIngested, events.ActivityIngested{
		ActivityID: activity.ID,
		UserID:     activity.UserID,
	})
	require.NoError(t, NewFraudHandler(store, nil).Handle(context.Background(), fraudMsg))

	scoreHandler := NewScoreHandler(store, nil)
	scoreMsg := stageMessage(t, events.TypeActivityVerified, events.ActivityVerified{
		ActivityID: activity.ID,
		UserID:     activity.UserID,
	})

	require.NoError(t, scoreHandler.Handle(context.Background(), scoreMsg))
	require.NoError(t, scoreHandler.Handle(context.Background(), scoreMsg))

	rewards := store.Events(events.TypeRewardIssued)
	require.Len(t, rewards, 1, "redelivery must not double-issue the reward")

	stored, err := store.Get(context.Background(), activity.ID)
	require.NoError(t, err)
	require.True(t, stored.Processed)
	// 5 km running at 10 points/km.
	require.Equal(t, 50, stored.Points)
}

func TestLeagueHandlerAppliesContributionOnce(t *testing.T) {
	store := memory.NewStore()
	activity := ingestTestActivity(t, store, 10000)

	leagues := league.NewService(store.Leagues())
	created, err := leagues.CreateLeague(context.Background(), league.CreateInput{
		Name:        "Winter Distance Cup",
		ScoringType: "distance",
		StartDate:   time.Now().UTC().Add(-24 * time.Hour),
		EndDate:     time.Now().UTC().Add(24 * time.Hour),
		Multipliers: map[string]float64{"running": 2.0},
		CreatedBy:   "user-1",
	})
	require.NoError(t, err)

	require.NoError(t, NewFraudHandler(store, nil).Handle(context.Background(), stageMessage(t, events.TypeActivityIngested, events.ActivityIngested{
		ActivityID: activity.ID,
		UserID:     activity.UserID,
	})))
	require.NoError(t, NewScoreHandler(store, nil).Handle(context.Background(), stageMessage(t, events.TypeActivityVerified, events.ActivityVerified{
		ActivityID: activity.ID,
		UserID:     activity.UserID,
	})))

	handler := NewLeagueHandler(store, leagues, nil)
	msg := stageMessage(t, events.TypeActivityScored, events.ActivityScored{
		ActivityID: activity.ID,
		UserID:     activity.UserID,
	})

	require.NoError(t, handler.Handle(context.Background(), msg))
	require.NoError(t, handler.Handle(context.Background(), msg))

	standings, err := leagues.Leaderboard(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, standings, 1)
	// 10 km at multiplier 2.0, applied exactly once.
	require.Equal(t, 20.0, standings[0].Score)
	require.Equal(t, 1, standings[0].Rank)
}
