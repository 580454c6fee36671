package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/rewards/internal/domain"
	"example.com/rewards/internal/scoring"
)

// ScoringRepository implements scoring.ProfileStore and scoring.EffortStore.
type ScoringRepository struct {
	pool *pgxpool.Pool
}

// NewScoringRepository constructs a ScoringRepository.
func NewScoringRepository(pool *pgxpool.Pool) *ScoringRepository {
	return &ScoringRepository{pool: pool}
}

// GetProfile returns the user's sport profile, or nil when none exists.
func (r *ScoringRepository) GetProfile(ctx context.Context, userID string) (*scoring.Profile, error) {
	var p scoring.Profile
	var secondary []string
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, fitness_level, primary_sport, secondary_sports, updated_at
         FROM sport_profiles WHERE user_id=$1`, userID).
		Scan(&p.UserID, &p.FitnessLevel, &p.PrimarySport, &secondary, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	for _, s := range secondary {
		p.SecondarySports = append(p.SecondarySports, domain.ActivityType(s))
	}
	return &p, nil
}

// UpsertProfile inserts or replaces the user's sport profile.
func (r *ScoringRepository) UpsertProfile(ctx context.Context, profile scoring.Profile) error {
	secondary := make([]string, 0, len(profile.SecondarySports))
	for _, s := range profile.SecondarySports {
		secondary = append(secondary, string(s))
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO sport_profiles (user_id, fitness_level, primary_sport, secondary_sports, updated_at)
         VALUES ($1,$2,$3,$4,$5)
         ON CONFLICT (user_id) DO UPDATE
         SET fitness_level=EXCLUDED.fitness_level,
             primary_sport=EXCLUDED.primary_sport,
             secondary_sports=EXCLUDED.secondary_sports,
             updated_at=EXCLUDED.updated_at`,
		profile.UserID, profile.FitnessLevel, profile.PrimarySport, secondary, profile.UpdatedAt)
	return err
}

// SaveEffort records one effort calculation. Recalculating the same activity
// replaces the stored result.
func (r *ScoringRepository) SaveEffort(ctx context.Context, result scoring.EffortResult) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO activity_efforts (activity_id, user_id, absolute_effort, relative_effort, effort_multiplier, base_reward, calculated_reward, created_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
         ON CONFLICT (activity_id) DO UPDATE
         SET absolute_effort=EXCLUDED.absolute_effort,
             relative_effort=EXCLUDED.relative_effort,
             effort_multiplier=EXCLUDED.effort_multiplier,
             base_reward=EXCLUDED.base_reward,
             calculated_reward=EXCLUDED.calculated_reward,
             created_at=EXCLUDED.created_at`,
		result.ActivityID, result.UserID, result.AbsoluteEffort, result.RelativeEffort,
		result.EffortMultiplier, result.BaseReward, result.CalculatedReward, result.CreatedAt)
	return err
}

// ListEfforts returns the user's effort calculations, newest first.
func (r *ScoringRepository) ListEfforts(ctx context.Context, userID string, limit, offset int) ([]scoring.EffortResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT activity_id, user_id, absolute_effort, relative_effort, effort_multiplier, base_reward, calculated_reward, created_at
         FROM activity_efforts WHERE user_id=$1
         ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]scoring.EffortResult, 0, limit)
	for rows.Next() {
		var e scoring.EffortResult
		if err := rows.Scan(&e.ActivityID, &e.UserID, &e.AbsoluteEffort, &e.RelativeEffort,
			&e.EffortMultiplier, &e.BaseReward, &e.CalculatedReward, &e.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
