package league

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/rewards/internal/domain"
)

var (
	// ErrLeagueNotFound is returned when a league cannot be located.
	ErrLeagueNotFound = errors.New("league not found")
	// ErrNotMember is returned when the user has no active membership.
	ErrNotMember = errors.New("user is not a league member")
	// ErrCreatorCannotLeave guards the creator's permanent membership.
	ErrCreatorCannotLeave = errors.New("league creator cannot leave")
	// ErrInvalidLeague indicates a malformed create request.
	ErrInvalidLeague = errors.New("invalid league")
)

// Store captures persistence for leagues and memberships.
//
// ApplyContribution is the engine's one true critical section: it must add
// the amount to the member's score, append the history entry, and rerank the
// whole membership as a single atomic unit, serialized per league. It must
// be idempotent per (leagueID, activityID) and report false on replays.
type Store interface {
	Create(ctx context.Context, l League, creator Member) error
	Get(ctx context.Context, leagueID string) (*League, error)
	Join(ctx context.Context, leagueID, userID string, at time.Time) (*Member, bool, error)
	Leave(ctx context.Context, leagueID, userID string) error
	Leaderboard(ctx context.Context, leagueID string) ([]Standing, error)
	ActiveForUser(ctx context.Context, userID string, at time.Time) ([]League, error)
	ApplyContribution(ctx context.Context, leagueID, userID, activityID string, amount float64, date time.Time) (bool, error)
}

// Service orchestrates league membership and scoring.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateInput is the payload for creating a league or competition.
type CreateInput struct {
	Name          string
	Description   string
	Kind          string
	ScoringType   string
	StartDate     time.Time
	EndDate       time.Time
	ActivityTypes []string
	Multipliers   map[string]float64
	CreatedBy     string
}

// CreateLeague validates the input and persists the league with the creator
// as its first member.
func (s *Service) CreateLeague(ctx context.Context, in CreateInput) (*League, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidLeague)
	}
	scoringType, ok := ParseScoringType(in.ScoringType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown scoring type %q", ErrInvalidLeague, in.ScoringType)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() || !in.EndDate.After(in.StartDate) {
		return nil, fmt.Errorf("%w: end date must be after start date", ErrInvalidLeague)
	}
	kind := Kind(in.Kind)
	if kind != KindCompetition {
		kind = KindLeague
	}

	types := make([]domain.ActivityType, 0, len(in.ActivityTypes))
	for _, raw := range in.ActivityTypes {
		types = append(types, domain.ParseActivityType(raw))
	}
	multipliers := make(map[domain.ActivityType]float64, len(in.Multipliers))
	for raw, m := range in.Multipliers {
		multipliers[domain.ParseActivityType(raw)] = m
	}

	now := time.Now().UTC()
	l := League{
		ID:            uuid.NewString(),
		Name:          in.Name,
		Description:   in.Description,
		Kind:          kind,
		ScoringType:   scoringType,
		StartDate:     in.StartDate.UTC(),
		EndDate:       in.EndDate.UTC(),
		ActivityTypes: types,
		Multipliers:   multipliers,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	creator := Member{
		UserID:    in.CreatedBy,
		Rank:      1,
		JoinOrder: 0,
		JoinedAt:  now,
		Active:    true,
	}

	if err := s.store.Create(ctx, l, creator); err != nil {
		return nil, err
	}
	return &l, nil
}

// GetLeague fetches a league by ID.
func (s *Service) GetLeague(ctx context.Context, leagueID string) (*League, error) {
	l, err := s.store.Get(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrLeagueNotFound
	}
	return l, nil
}

// Join adds the user as an active member. Rejoining is idempotent and
// returns the existing membership.
func (s *Service) Join(ctx context.Context, leagueID, userID string) (*Member, error) {
	if _, err := s.GetLeague(ctx, leagueID); err != nil {
		return nil, err
	}
	member, _, err := s.store.Join(ctx, leagueID, userID, time.Now().UTC())
	return member, err
}

// Leave soft-removes the member. The creator cannot leave.
func (s *Service) Leave(ctx context.Context, leagueID, userID string) error {
	l, err := s.GetLeague(ctx, leagueID)
	if err != nil {
		return err
	}
	if l.CreatedBy == userID {
		return ErrCreatorCannotLeave
	}
	return s.store.Leave(ctx, leagueID, userID)
}

// Leaderboard returns the ranked standings for a league.
func (s *Service) Leaderboard(ctx context.Context, leagueID string) ([]Standing, error) {
	if _, err := s.GetLeague(ctx, leagueID); err != nil {
		return nil, err
	}
	return s.store.Leaderboard(ctx, leagueID)
}

// ScoreActivity folds a verified, rewarded activity into every league the
// user belongs to whose filter and window accept it. Idempotent per
// (league, activity); returns how many leagues actually applied the
// contribution on this delivery.
func (s *Service) ScoreActivity(ctx context.Context, activity domain.Activity) (int, error) {
	leagues, err := s.store.ActiveForUser(ctx, activity.UserID, activity.StartTime)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, l := range leagues {
		if !l.Accepts(activity) {
			continue
		}
		amount := l.Contribution(activity)
		ok, err := s.store.ApplyContribution(ctx, l.ID, activity.UserID, activity.ID, amount, activity.StartTime)
		if err != nil {
			return applied, err
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}
