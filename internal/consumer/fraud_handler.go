package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"example.com/rewards/internal/domain"
	"example.com/rewards/internal/events"
	"example.com/rewards/internal/fraud"
	"example.com/rewards/internal/scoring"
)

// FraudHandler runs the fraud evaluation stage. It consumes ingestion
// messages, scores the activity against the user's surrounding history, and
// applies the verdict. Activities no longer in the pending state are skipped,
// so a redelivered message changes nothing.
type FraudHandler struct {
	store  domain.ActivityStore
	logger *log.Logger
}

// NewFraudHandler constructs a FraudHandler.
func NewFraudHandler(store domain.ActivityStore, logger *log.Logger) *FraudHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[fraud] ", log.LstdFlags)
	}
	return &FraudHandler{store: store, logger: logger}
}

// Handle evaluates one ingested activity.
func (h *FraudHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeActivityIngested {
		return fmt.Errorf("unexpected event type: %s", msg.EventType)
	}

	var evt events.ActivityIngested
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
	if activity.Status != domain.StatusPending {
		return nil
	}

	history, err := h.store.FraudHistory(ctx, activity.UserID, activity.ID, activity.StartTime, activity.EndTime)
	if err != nil {
		return fmt.Errorf("fraud history for %s: %w", activity.ID, err)
	}

	verdict := fraud.Evaluate(*activity, fraud.Context{
		Overlapping:     history.Overlapping,
		SameDay:         history.SameDay,
		SameDayPoints:   history.SameDayPoints,
		FlaggedTotal:    history.FlaggedTotal,
		EstimatedPoints: scoring.BasePoints(*activity),
	})

	applied, err := h.store.ApplyFraudVerdict(ctx, activity.ID, verdict.Score, verdict.Reasons, verdict.Suspicious)
	if err != nil {
		return fmt.Errorf("apply verdict for %s: %w", activity.ID, err)
	}
	if applied && verdict.Suspicious {
		h.logger.Printf("activity %s flagged (score=%d reasons=%v)", activity.ID, verdict.Score, verdict.Reasons)
	}
	return nil
}
