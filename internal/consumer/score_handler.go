package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"example.com/rewards/internal/domain"
	"example.com/rewards/internal/events"
	"example.com/rewards/internal/scoring"
)

// ScoreHandler runs the reward scoring stage. The processed flag on the
// activity row is the idempotency guard: a redelivered message finds the
// flag already set and does nothing, so rewards are issued exactly once.
type ScoreHandler struct {
	store  domain.ActivityStore
	logger *log.Logger
}

// NewScoreHandler constructs a ScoreHandler.
func NewScoreHandler(store domain.ActivityStore, logger *log.Logger) *ScoreHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[score] ", log.LstdFlags)
	}
	return &ScoreHandler{store: store, logger: logger}
}

// Handle awards base points for one verified activity.
func (h *ScoreHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeActivityVerified {
		return fmt.Errorf("unexpected event type: %s", msg.EventType)
	}

	var evt events.ActivityVerified
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	activity, err := h.store.Get(ctx, evt.ActivityID)
	if err != nil {
		return fmt.Errorf("load activity %s: %w", evt.ActivityID, err)
	}
	if activity == nil {
		h.logger.Printf("activity %s not found, skipping", evt.ActivityID)
		return nil
	}
	if activity.Processed || activity.Status != domain.StatusVerified {
		return nil
	}

	points := scoring.BasePoints(*activity)
	reason := fmt.Sprintf("%s activity reward", activity.Type)

	applied, err := h.store.MarkProcessed(ctx, activity.ID, points, reason)
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", activity.ID, err)
	}
	if applied {
		h.logger.Printf("activity %s scored %d points", activity.ID, points)
	}
	return nil
}
