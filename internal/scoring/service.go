package scoring

import (
	"context"
	"math"
	"time"

	"example.com/rewards/internal/domain"
)

// EffortResult is the persisted outcome of a training-reward calculation.
// It lives alongside the activity's base points; league scores never use it.
type EffortResult struct {
	ActivityID       string
	UserID           string
	AbsoluteEffort   float64
	RelativeEffort   float64
	EffortMultiplier float64
	BaseReward       int
	CalculatedReward int
	CreatedAt        time.Time
}

// ProfileStore persists sport profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpsertProfile(ctx context.Context, profile Profile) error
}

// EffortStore persists effort calculations.
type EffortStore interface {
	SaveEffort(ctx context.Context, result EffortResult) error
	ListEfforts(ctx context.Context, userID string, limit, offset int) ([]EffortResult, error)
}

// Service computes and records training-reward efforts.
type Service struct {
	activities domain.ActivityStore
	profiles   ProfileStore
	efforts    EffortStore
	effortRng  EffortRange
}

// NewService constructs a Service.
func NewService(activities domain.ActivityStore, profiles ProfileStore, efforts EffortStore, effortRng EffortRange) *Service {
	if effortRng.Max <= effortRng.Min {
		effortRng = DefaultEffortRange
	}
	return &Service{activities: activities, profiles: profiles, efforts: efforts, effortRng: effortRng}
}

// EffortInput is the client-reported side of an effort calculation.
type EffortInput struct {
	AbsoluteEffort float64
	Conditions     Conditions
}

// CalculateEffort computes the relative effort and reward for one of the
// user's activities and persists the result.
func (s *Service) CalculateEffort(ctx context.Context, userID, activityID string, in EffortInput) (*EffortResult, error) {
	activity, err := s.activities.Get(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil || activity.UserID != userID {
		return nil, domain.ErrActivityNotFound
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	absolute := in.AbsoluteEffort
	if absolute <= 0 {
		absolute = DefaultAbsoluteEffort
	}
	relative := RelativeEffort(absolute, profile, activity.Type, in.Conditions)
	multiplier := EffortMultiplier(relative, s.effortRng)
	base := BasePoints(*activity)

	result := EffortResult{
		ActivityID:       activityID,
		UserID:           userID,
		AbsoluteEffort:   absolute,
		RelativeEffort:   relative,
		EffortMultiplier: multiplier,
		BaseReward:       base,
		CalculatedReward: int(math.Round(float64(base) * multiplier)),
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.efforts.SaveEffort(ctx, result); err != nil {
		return nil, err
	}
	return &result, nil
}

// EffortHistory lists a user's recorded effort calculations, newest first.
func (s *Service) EffortHistory(ctx context.Context, userID string, limit, offset int) ([]EffortResult, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.efforts.ListEfforts(ctx, userID, limit, offset)
}

// GetProfile returns the user's sport profile, or nil when none exists.
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	return s.profiles.GetProfile(ctx, userID)
}

// SaveProfile upserts the user's sport profile.
func (s *Service) SaveProfile(ctx context.Context, profile Profile) error {
	profile.UpdatedAt = time.Now().UTC()
	return s.profiles.UpsertProfile(ctx, profile)
}
