package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/rewards/internal/domain"
	"example.com/rewards/internal/league"
	"example.com/rewards/internal/observability"
)

// LeagueRepository implements league.Store on Postgres. Every mutation that
// touches scores or membership takes a row lock on the league, so rank
// recomputation always sees a consistent member set.
type LeagueRepository struct {
	pool *pgxpool.Pool
}

// NewLeagueRepository constructs a LeagueRepository.
func NewLeagueRepository(pool *pgxpool.Pool) *LeagueRepository {
	return &LeagueRepository{pool: pool}
}

// Create persists the league and its creator membership in one transaction.
func (r *LeagueRepository) Create(ctx context.Context, l league.League, creator league.Member) error {
	multipliers, err := json.Marshal(l.Multipliers)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insertLeague = `INSERT INTO leagues (league_id, name, description, kind, scoring_type, start_date, end_date, activity_types, multipliers, created_by, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	types := make([]string, 0, len(l.ActivityTypes))
	for _, t := range l.ActivityTypes {
		types = append(types, string(t))
	}

	if _, err := tx.Exec(ctx, insertLeague,
		l.ID, l.Name, l.Description, l.Kind, l.ScoringType, l.StartDate, l.EndDate,
		types, multipliers, l.CreatedBy, l.CreatedAt, l.UpdatedAt,
	); err != nil {
		return err
	}

	if err := insertMember(ctx, tx, l.ID, creator); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertMember(ctx context.Context, tx pgx.Tx, leagueID string, m league.Member) error {
	history, err := json.Marshal(m.History)
	if err != nil {
		return err
	}
	const stmt = `INSERT INTO league_members (league_id, user_id, score, rank, join_order, joined_at, active, history)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = tx.Exec(ctx, stmt, leagueID, m.UserID, m.Score, m.Rank, m.JoinOrder, m.JoinedAt, m.Active, history)
	return err
}

// Get retrieves a league by ID.
func (r *LeagueRepository) Get(ctx context.Context, leagueID string) (*league.League, error) {
	return scanLeague(r.pool.QueryRow(ctx,
		`SELECT league_id, name, description, kind, scoring_type, start_date, end_date, activity_types, multipliers, created_by, created_at, updated_at
         FROM leagues WHERE league_id=$1`, leagueID))
}

func scanLeague(row pgx.Row) (*league.League, error) {
	var l league.League
	var types []string
	var multipliers []byte
	err := row.Scan(&l.ID, &l.Name, &l.Description, &l.Kind, &l.ScoringType, &l.StartDate, &l.EndDate,
		&types, &multipliers, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	for _, t := range types {
		l.ActivityTypes = append(l.ActivityTypes, domain.ActivityType(t))
	}
	if len(multipliers) > 0 {
		if err := json.Unmarshal(multipliers, &l.Multipliers); err != nil {
			return nil, err
		}
	}
	return &l, nil
}

// Join adds the user to the league, or returns the existing membership when
// the user already joined. The second return value reports whether a new
// membership was created.
func (r *LeagueRepository) Join(ctx context.Context, leagueID, userID string, at time.Time) (*league.Member, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	if err := lockLeague(ctx, tx, leagueID); err != nil {
		return nil, false, err
	}

	existing, err := loadMember(ctx, tx, leagueID, userID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, tx.Commit(ctx)
	}

	var joinOrder int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM league_members WHERE league_id=$1`, leagueID).Scan(&joinOrder); err != nil {
		return nil, false, err
	}

	member := league.Member{
		UserID:    userID,
		JoinOrder: joinOrder,
		JoinedAt:  at,
		Active:    true,
	}
	if err := insertMember(ctx, tx, leagueID, member); err != nil {
		return nil, false, err
	}

	if err := rerankLocked(ctx, tx, leagueID); err != nil {
		return nil, false, err
	}

	joined, err := loadMember(ctx, tx, leagueID, userID)
	if err != nil {
		return nil, false, err
	}
	return joined, true, tx.Commit(ctx)
}

// Leave deactivates the membership. Score history is retained.
func (r *LeagueRepository) Leave(ctx context.Context, leagueID, userID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := lockLeague(ctx, tx, leagueID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `UPDATE league_members SET active=false WHERE league_id=$1 AND user_id=$2 AND active`, leagueID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return league.ErrNotMember
	}

	if err := rerankLocked(ctx, tx, leagueID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Leaderboard returns the current standings, best rank first.
func (r *LeagueRepository) Leaderboard(ctx context.Context, leagueID string) ([]league.Standing, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT rank, user_id, score FROM league_members WHERE league_id=$1 AND active ORDER BY rank`, leagueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	standings := make([]league.Standing, 0)
	for rows.Next() {
		var s league.Standing
		if err := rows.Scan(&s.Rank, &s.UserID, &s.Score); err != nil {
			return nil, err
		}
		standings = append(standings, s)
	}
	return standings, rows.Err()
}

// ActiveForUser returns leagues whose window contains the given time and in
// which the user holds an active membership.
func (r *LeagueRepository) ActiveForUser(ctx context.Context, userID string, at time.Time) ([]league.League, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT l.league_id, l.name, l.description, l.kind, l.scoring_type, l.start_date, l.end_date, l.activity_types, l.multipliers, l.created_by, l.created_at, l.updated_at
         FROM leagues l
         JOIN league_members m ON m.league_id = l.league_id
         WHERE m.user_id=$1 AND m.active AND l.start_date <= $2 AND l.end_date >= $2
         ORDER BY l.league_id`, userID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leagues := make([]league.League, 0)
	for rows.Next() {
		l, err := scanLeague(rows)
		if err != nil {
			return nil, err
		}
		leagues = append(leagues, *l)
	}
	return leagues, rows.Err()
}

// ApplyContribution folds one activity's contribution into the member score
// and recomputes ranks, all under the league row lock. The unique constraint
// on (league_id, activity_id) makes replays no-ops.
func (r *LeagueRepository) ApplyContribution(ctx context.Context, leagueID, userID, activityID string, amount float64, date time.Time) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if err := lockLeague(ctx, tx, leagueID); err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO league_contributions (league_id, activity_id, user_id, amount, applied_at)
         VALUES ($1,$2,$3,$4,$5)
         ON CONFLICT (league_id, activity_id) DO NOTHING`,
		leagueID, activityID, userID, amount, date)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	entry, err := json.Marshal([]league.HistoryEntry{{Date: date, Score: amount, ActivityIDs: []string{activityID}}})
	if err != nil {
		return false, err
	}

	tag, err = tx.Exec(ctx,
		`UPDATE league_members
         SET score = ROUND((score + $3)::numeric, 2), history = history || $4::jsonb
         WHERE league_id=$1 AND user_id=$2 AND active`,
		leagueID, userID, amount, entry)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// The user left the league; the contribution row must not stick.
		return false, nil
	}

	if err := rerankLocked(ctx, tx, leagueID); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	observability.RecordLeagueContribution()
	return true, nil
}

func lockLeague(ctx context.Context, tx pgx.Tx, leagueID string) error {
	var id string
	if err := tx.QueryRow(ctx, `SELECT league_id FROM leagues WHERE league_id=$1 FOR UPDATE`, leagueID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return league.ErrLeagueNotFound
		}
		return err
	}
	return nil
}

func loadMember(ctx context.Context, tx pgx.Tx, leagueID, userID string) (*league.Member, error) {
	var m league.Member
	var history []byte
	err := tx.QueryRow(ctx,
		`SELECT user_id, score, rank, join_order, joined_at, active, history
         FROM league_members WHERE league_id=$1 AND user_id=$2`, leagueID, userID).
		Scan(&m.UserID, &m.Score, &m.Rank, &m.JoinOrder, &m.JoinedAt, &m.Active, &history)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &m.History); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// rerankLocked reloads all members, recomputes ranks with the shared sort,
// and writes the new ranks back. Caller must hold the league row lock.
func rerankLocked(ctx context.Context, tx pgx.Tx, leagueID string) error {
	rows, err := tx.Query(ctx,
		`SELECT user_id, score, rank, join_order, active FROM league_members WHERE league_id=$1`, leagueID)
	if err != nil {
		return err
	}

	members := make([]league.Member, 0)
	for rows.Next() {
		var m league.Member
		if err := rows.Scan(&m.UserID, &m.Score, &m.Rank, &m.JoinOrder, &m.Active); err != nil {
			rows.Close()
			return err
		}
		members = append(members, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	league.Rerank(members)

	for _, m := range members {
		if _, err := tx.Exec(ctx,
			`UPDATE league_members SET rank=$3 WHERE league_id=$1 AND user_id=$2 AND rank <> $3`,
			leagueID, m.UserID, m.Rank); err != nil {
			return err
		}
	}
	return nil
}
