// Package domain defines the business logic for the reward pipeline.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidPayload indicates the inbound provider payload failed validation.
	// Invalid payloads are rejected synchronously and never persisted.
	ErrInvalidPayload = errors.New("invalid activity payload")
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrInvalidTransition is returned when an admin action does not apply to
	// the activity's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// durationTolerance is how far the reported duration may drift from the
// start/end interval before the payload is rejected.
const durationTolerance = 5 * time.Second

// FraudHistory is the per-user context the fraud evaluator needs. All counts
// exclude the activity under evaluation.
type FraudHistory struct {
	Overlapping   int // activities overlapping the evaluated interval
	SameDay       int // activities recorded on the same calendar day
	SameDayPoints int // points already awarded that day
	FlaggedTotal  int // historically flagged activities for the user
}

// ActivitySummary aggregates a user's recorded activity.
type ActivitySummary struct {
	Total          int
	Pending        int
	Verified       int
	Flagged        int
	Rejected       int
	TotalPoints    int
	TotalDistanceM float64
	TotalDuration  int
	LastActivityAt *time.Time
}

// Cursor models the pagination token for activity listings.
type Cursor struct {
	StartTime time.Time
	ID        string
}

// ActivityStore captures persistence operations for activities. Every state
// transition is a conditional update: it returns false when the row was not
// in the expected prior state, which makes duplicate queue deliveries no-ops.
type ActivityStore interface {
	FindBySource(ctx context.Context, userID, source, sourceID string) (*Activity, error)
	Create(ctx context.Context, activity Activity) error
	Get(ctx context.Context, activityID string) (*Activity, error)
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	FraudHistory(ctx context.Context, userID, exceptID string, start, end time.Time) (FraudHistory, error)

	// ApplyFraudVerdict moves pending -> verified|flagged and records the
	// score and reasons. Verified activities get a scoring event enqueued in
	// the same transaction.
	ApplyFraudVerdict(ctx context.Context, activityID string, score int, reasons []string, suspicious bool) (bool, error)
	// MarkProcessed awards points and flips the processed flag, guarded by
	// processed=false AND status=verified. The reward event and the league
	// scoring event are enqueued in the same transaction.
	MarkProcessed(ctx context.Context, activityID string, points int, reason string) (bool, error)

	Approve(ctx context.Context, activityID, adminID, notes string) (bool, error)
	Reject(ctx context.Context, activityID, adminID, reason string) (bool, error)
	Flag(ctx context.Context, activityID, reason, adminID string) (bool, error)

	SummaryByUser(ctx context.Context, userID string, since time.Time) (ActivitySummary, error)
}

// Service orchestrates ingestion and moderation workflows.
type Service struct {
	store ActivityStore
}

// NewService constructs a Service.
func NewService(store ActivityStore) *Service {
	return &Service{store: store}
}

// IngestInput is the normalized provider payload handed to the pipeline.
type IngestInput struct {
	UserID         string
	Source         string
	SourceID       string
	Type           string
	StartTime      time.Time
	EndTime        time.Time
	DurationSec    int
	DistanceMeters float64
	Calories       float64
	ElevationGain  float64
}

// Validate checks structural payload correctness.
func (in IngestInput) Validate() error {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidPayload)
	case strings.TrimSpace(in.Source) == "":
		return fmt.Errorf("%w: source is required", ErrInvalidPayload)
	case strings.TrimSpace(in.SourceID) == "":
		return fmt.Errorf("%w: source id is required", ErrInvalidPayload)
	case in.StartTime.IsZero() || in.EndTime.IsZero():
		return fmt.Errorf("%w: start and end times are required", ErrInvalidPayload)
	case !in.EndTime.After(in.StartTime):
		return fmt.Errorf("%w: end time must be after start time", ErrInvalidPayload)
	case in.DurationSec <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidPayload)
	case in.DistanceMeters < 0 || in.Calories < 0 || in.ElevationGain < 0:
		return fmt.Errorf("%w: magnitudes must not be negative", ErrInvalidPayload)
	}

	interval := in.EndTime.Sub(in.StartTime)
	reported := time.Duration(in.DurationSec) * time.Second
	drift := interval - reported
	if drift < 0 {
		drift = -drift
	}
	if drift > durationTolerance {
		return fmt.Errorf("%w: duration does not match start/end interval", ErrInvalidPayload)
	}
	return nil
}

// IngestActivity normalizes and persists a provider payload. Replayed
// payloads (same user/source/source id) return the existing record with
// replay=true and do not enqueue another fraud check.
func (s *Service) IngestActivity(ctx context.Context, in IngestInput) (*Activity, bool, error) {
	if err := in.Validate(); err != nil {
		return nil, false, err
	}

	if existing, err := s.store.FindBySource(ctx, in.UserID, in.Source, in.SourceID); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, true, nil
	}

	now := time.Now().UTC()
	activity := Activity{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		Source:         in.Source,
		SourceID:       in.SourceID,
		Type:           ParseActivityType(in.Type),
		StartTime:      in.StartTime.UTC(),
		EndTime:        in.EndTime.UTC(),
		DurationSec:    in.DurationSec,
		DistanceMeters: in.DistanceMeters,
		Calories:       in.Calories,
		ElevationGain:  in.ElevationGain,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Create(ctx, activity); err != nil {
		return nil, false, err
	}
	return &activity, false, nil
}

// GetActivity fetches by ID.
func (s *Service) GetActivity(ctx context.Context, activityID string) (*Activity, error) {
	activity, err := s.store.Get(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// ListActivities fetches a user's activities with cursor pagination.
func (s *Service) ListActivities(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	return s.store.ListByUser(ctx, userID, cursor, limit)
}

// Summary aggregates a user's activity since the given time.
func (s *Service) Summary(ctx context.Context, userID string, since time.Time) (ActivitySummary, error) {
	return s.store.SummaryByUser(ctx, userID, since)
}

// ApproveActivity releases a flagged activity back into the pipeline. The
// store re-enqueues it for scoring in the same transaction. Approving an
// already-verified activity is a no-op.
func (s *Service) ApproveActivity(ctx context.Context, activityID, adminID, notes string) (*Activity, error) {
	applied, err := s.store.Approve(ctx, activityID, adminID, notes)
	if err != nil {
		return nil, err
	}
	return s.afterTransition(ctx, activityID, applied, StatusVerified)
}

// RejectActivity terminally rejects a flagged activity. No reward, no league score.
func (s *Service) RejectActivity(ctx context.Context, activityID, adminID, reason string) (*Activity, error) {
	applied, err := s.store.Reject(ctx, activityID, adminID, reason)
	if err != nil {
		return nil, err
	}
	return s.afterTransition(ctx, activityID, applied, StatusRejected)
}

// FlagActivity moves a pending or verified activity into manual review.
func (s *Service) FlagActivity(ctx context.Context, activityID, reason, adminID string) (*Activity, error) {
	applied, err := s.store.Flag(ctx, activityID, reason, adminID)
	if err != nil {
		return nil, err
	}
	return s.afterTransition(ctx, activityID, applied, StatusFlagged)
}

func (s *Service) afterTransition(ctx context.Context, activityID string, applied bool, want ActivityStatus) (*Activity, error) {
	activity, err := s.store.Get(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	if !applied && activity.Status != want {
		return nil, fmt.Errorf("%w: activity is %s", ErrInvalidTransition, activity.Status)
	}
	return activity, nil
}
