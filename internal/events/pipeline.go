// Package events defines the message payloads exchanged between pipeline stages.
package events

import "time"

// Event type names recorded in outbox rows and Kafka headers.
const (
	TypeActivityIngested     = "activity.ingested"
	TypeActivityVerified     = "activity.verified"
	TypeActivityScored       = "activity.scored"
	TypeActivityStateChanged = "activity.state_changed"
	TypeRewardIssued         = "reward.issued"
)

// ActivityIngested asks the fraud stage to evaluate a freshly persisted activity.
type ActivityIngested struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	Source     string    `json:"source"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ActivityVerified asks the reward stage to score a fraud-cleared activity.
type ActivityVerified struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	FraudScore int       `json:"fraud_score"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ActivityScored asks the league stage to fold an awarded activity into standings.
type ActivityScored struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	Points     int       `json:"points"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ActivityStateChanged tracks status transitions (pending, verified, flagged,
// rejected) for optimistic UI flows.
type ActivityStateChanged struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	State      string    `json:"state"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RewardIssued is the pipeline's output contract. The token-minting system
// consumes it at-least-once; this pipeline does not track minting success.
type RewardIssued struct {
	UserID     string    `json:"user_id"`
	ActivityID string    `json:"activity_id"`
	Amount     int       `json:"amount"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}
