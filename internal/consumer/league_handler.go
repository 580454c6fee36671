package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"example.com/rewards/internal/domain"
	"example.com/rewards/internal/events"
	"example.com/rewards/internal/league"
)

// LeagueHandler folds scored activities into league standings. Idempotency
// lives in the contribution store: each (league, activity) pair applies at
// most once, so replays simply count zero applied leagues.
type LeagueHandler struct {
	activities domain.ActivityStore
	leagues    *league.Service
	logger     *log.Logger
}

// NewLeagueHandler constructs a LeagueHandler.
func NewLeagueHandler(activities domain.ActivityStore, leagues *league.Service, logger *log.Logger) *LeagueHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[league] ", log.LstdFlags)
	}
	return &LeagueHandler{activities: activities, leagues: leagues, logger: logger}
}

// Handle applies one scored activity to every eligible league.
func (h *LeagueHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeActivityScored {
		return fmt.Errorf("unexpected event type: %s", msg.EventType)
	}

	var evt events.ActivityScored
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	activity, err := h.activities.Get(ctx, evt.ActivityID)
	if err != nil {
		return fmt.Errorf("load activity %s: %w", evt.ActivityID, err)
	}
	if activity == nil {
		h.logger.Printf("activity %s not found, skipping", evt.ActivityID)
		return nil
	}

	applied, err := h.leagues.ScoreActivity(ctx, *activity)
	if err != nil {
		return fmt.Errorf("score leagues for %s: %w", activity.ID, err)
	}
	if applied > 0 {
		h.logger.Printf("activity %s applied to %d league(s)", activity.ID, applied)
	}
	return nil
}
