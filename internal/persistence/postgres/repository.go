// Package postgres provides PostgreSQL-backed persistence for the reward
// pipeline. State transitions are conditional updates and every transition
// writes its follow-up outbox rows in the same transaction, so a crash can
// never separate a state change from the message that announces it.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/rewards/internal/domain"
	"example.com/rewards/internal/events"
	"example.com/rewards/internal/observability"
)

// Repository provides Postgres-backed persistence for activities and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activityColumns = `activity_id, user_id, source, source_id, activity_type, start_time, end_time,
        duration_sec, distance_m, calories, elevation_gain_m, status, processed, fraud_score, fraud_reasons,
        points, created_at, updated_at`

func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var a domain.Activity
	err := row.Scan(&a.ID, &a.UserID, &a.Source, &a.SourceID, &a.Type, &a.StartTime, &a.EndTime,
		&a.DurationSec, &a.DistanceMeters, &a.Calories, &a.ElevationGain, &a.Status, &a.Processed,
		&a.FraudScore, &a.FraudReasons, &a.Points, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// FindBySource returns the activity previously ingested for the
// (user, source, source_id) triple, or nil when none exists.
func (r *Repository) FindBySource(ctx context.Context, userID, source, sourceID string) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id=$1 AND source=$2 AND source_id=$3`
	return scanActivity(r.pool.QueryRow(ctx, query, userID, source, sourceID))
}

// Create persists the activity and records outbox events inside a single transaction.
func (r *Repository) Create(ctx context.Context, activity domain.Activity) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	insertActivity := `INSERT INTO activities (` + activityColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`

	_, err = tx.Exec(ctx, insertActivity,
		activity.ID,
		activity.UserID,
		activity.Source,
		activity.SourceID,
		activity.Type,
		activity.StartTime,
		activity.EndTime,
		activity.DurationSec,
		activity.DistanceMeters,
		activity.Calories,
		activity.ElevationGain,
		activity.Status,
		activity.Processed,
		activity.FraudScore,
		activity.FraudReasons,
		activity.Points,
		activity.CreatedAt,
		activity.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, activity.ID, activity.UserID, events.TypeActivityIngested, events.ActivityIngested{
		ActivityID: activity.ID,
		UserID:     activity.UserID,
		Source:     activity.Source,
		Type:       string(activity.Type),
		OccurredAt: activity.CreatedAt,
	}); err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, activity.ID, activity.UserID, events.TypeActivityStateChanged, events.ActivityStateChanged{
		ActivityID: activity.ID,
		UserID:     activity.UserID,
		State:      string(activity.Status),
		OccurredAt: activity.UpdatedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityPersisted(activity.UpdatedAt)
	return nil
}

// Get retrieves an activity by ID.
func (r *Repository) Get(ctx context.Context, activityID string) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE activity_id=$1`
	return scanActivity(r.pool.QueryRow(ctx, query, activityID))
}

// ListByUser returns activities for a user, newest first, keyset-paginated.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id=$1`

	if cursor != nil {
		query += ` AND (start_time, activity_id) < ($3, $4)`
		args = append(args, cursor.StartTime, cursor.ID)
	}

	query += ` ORDER BY start_time DESC, activity_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return results, nextCursor, nil
}

// FraudHistory gathers the user's surrounding activity for the fraud stage.
// The same stored rows always produce the same counts, which keeps the
// fraud verdict reproducible across redeliveries.
func (r *Repository) FraudHistory(ctx context.Context, userID, exceptID string, start, end time.Time) (domain.FraudHistory, error) {
	const query = `SELECT
            COUNT(*) FILTER (WHERE start_time <= $4 AND end_time >= $3),
            COUNT(*) FILTER (WHERE (start_time AT TIME ZONE 'UTC')::date = ($3::timestamptz AT TIME ZONE 'UTC')::date),
            COALESCE(SUM(points) FILTER (WHERE (start_time AT TIME ZONE 'UTC')::date = ($3::timestamptz AT TIME ZONE 'UTC')::date), 0),
            COUNT(*) FILTER (WHERE status = 'flagged')
        FROM activities WHERE user_id=$1 AND activity_id <> $2`

	var h domain.FraudHistory
	err := r.pool.QueryRow(ctx, query, userID, exceptID, start, end).
		Scan(&h.Overlapping, &h.SameDay, &h.SameDayPoints, &h.FlaggedTotal)
	return h, err
}

// ApplyFraudVerdict moves a pending activity to verified or flagged. It
// returns false without error when the activity was no longer pending, which
// is how redelivered fraud-check messages become no-ops.
func (r *Repository) ApplyFraudVerdict(ctx context.Context, activityID string, score int, reasons []string, suspicious bool) (bool, error) {
	status := domain.StatusVerified
	if suspicious {
		status = domain.StatusFlagged
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	const update = `UPDATE activities
        SET status=$2, fraud_score=$3, fraud_reasons=$4, updated_at=now()
        WHERE activity_id=$1 AND status='pending'
        RETURNING user_id, updated_at`

	var userID string
	var updatedAt time.Time
	if err := tx.QueryRow(ctx, update, activityID, status, score, reasons).Scan(&userID, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if !suspicious {
		if err := insertOutbox(ctx, tx, activityID, userID, events.TypeActivityVerified, events.ActivityVerified{
			ActivityID: activityID,
			UserID:     userID,
			FraudScore: score,
			OccurredAt: updatedAt,
		}); err != nil {
			return false, err
		}
	}

	if err := insertOutbox(ctx, tx, activityID, userID, events.TypeActivityStateChanged, events.ActivityStateChanged{
		ActivityID: activityID,
		UserID:     userID,
		State:      string(status),
		OccurredAt: updatedAt,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	observability.RecordFraudVerdict(string(status))
	return true, nil
}

// MarkProcessed awards points to a verified, unprocessed activity and
// enqueues the reward mint and league scoring messages. The processed flag
// guarantees the reward effect fires exactly once per activity.
func (r *Repository) MarkProcessed(ctx context.Context, activityID string, points int, reason string) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	const update = `UPDATE activities
        SET points=$2, processed=true, updated_at=now()
        WHERE activity_id=$1 AND status='verified' AND processed=false
        RETURNING user_id, updated_at`

	var userID string
	var updatedAt time.Time
	if err := tx.QueryRow(ctx, update, activityID, points).Scan(&userID, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if err := insertOutbox(ctx, tx, activityID, userID, events.TypeRewardIssued, events.RewardIssued{
		UserID:     userID,
		ActivityID: activityID,
		Amount:     points,
		Reason:     reason,
		OccurredAt: updatedAt,
	}); err != nil {
		return false, err
	}

	if err := insertOutbox(ctx, tx, activityID, userID, events.TypeActivityScored, events.ActivityScored{
		ActivityID: activityID,
		UserID:     userID,
		Points:     points,
		OccurredAt: updatedAt,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	observability.RecordActivityScored(updatedAt)
	return true, nil
}

// Approve releases a flagged activity back into the pipeline. Re-enqueueing
// the verified message lets the scoring stage pick the activity up again.
func (r *Repository) Approve(ctx context.Context, activityID, adminID, notes string) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	const update = `UPDATE activities
        SET status='verified', reviewed_by=$2, review_note=$3, updated_at=now()
        WHERE activity_id=$1 AND status='flagged'
        RETURNING user_id, fraud_score, updated_at`

	var userID string
	var fraudScore int
	var updatedAt time.Time
	if err := tx.QueryRow(ctx, update, activityID, adminID, notes).Scan(&userID, &fraudScore, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if err := insertOutbox(ctx, tx, activityID, userID, events.TypeActivityVerified, events.ActivityVerified{
		ActivityID: activityID,
		UserID:     userID,
		FraudScore: fraudScore,
		OccurredAt: updatedAt,
	}); err != nil {
		return false, err
	}

	if err := insertOutbox(ctx, tx, activityID, userID, events.TypeActivityStateChanged, events.ActivityStateChanged{
		ActivityID: activityID,
		UserID:     userID,
		State:      string(domain.StatusVerified),
		Reason:     "approved",
		OccurredAt: updatedAt,
	}); err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

// Reject terminally rejects a flagged activity.
func (r *Repository) Reject(ctx context.Context, activityID, adminID, reason string) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	const update = `UPDATE activities
        SET status='rejected', reviewed_by=$2, review_note=$3, updated_at=now()
        WHERE activity_id=$1 AND status='flagged'
        RETURNING user_id, updated_at`

	var userID string
	var updatedAt time.Time
	if err := tx.QueryRow(ctx, update, activityID, adminID, reason).Scan(&userID, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if err := insertOutbox(ctx, tx, activityID, userID, events.TypeActivityStateChanged, events.ActivityStateChanged{
		ActivityID: activityID,
		UserID:     userID,
		State:      string(domain.StatusRejected),
		Reason:     reason,
		OccurredAt: updatedAt,
	}); err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

// Flag sends a pending or verified activity to manual review.
func (r *Repository) Flag(ctx context.Context, activityID, reason, adminID string) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	const update = `UPDATE activities
        SET status='flagged', fraud_reasons=array_append(fraud_reasons, $2), reviewed_by=$3, updated_at=now()
        WHERE activity_id=$1 AND status IN ('pending','verified')
        RETURNING user_id, updated_at`

	var userID string
	var updatedAt time.Time
	if err := tx.QueryRow(ctx, update, activityID, reason, adminID).Scan(&userID, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if err := insertOutbox(ctx, tx, activityID, userID, events.TypeActivityStateChanged, events.ActivityStateChanged{
		ActivityID: activityID,
		UserID:     userID,
		State:      string(domain.StatusFlagged),
		Reason:     reason,
		OccurredAt: updatedAt,
	}); err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

// SummaryByUser aggregates the user's recorded activity since the given time.
func (r *Repository) SummaryByUser(ctx context.Context, userID string, since time.Time) (domain.ActivitySummary, error) {
	const query = `SELECT
            COUNT(*),
            COUNT(*) FILTER (WHERE status='pending'),
            COUNT(*) FILTER (WHERE status='verified'),
            COUNT(*) FILTER (WHERE status='flagged'),
            COUNT(*) FILTER (WHERE status='rejected'),
            COALESCE(SUM(points),0),
            COALESCE(SUM(distance_m),0),
            COALESCE(SUM(duration_sec),0),
            MAX(start_time)
        FROM activities WHERE user_id=$1 AND start_time >= $2`

	var s domain.ActivitySummary
	err := r.pool.QueryRow(ctx, query, userID, since).Scan(
		&s.Total, &s.Pending, &s.Verified, &s.Flagged, &s.Rejected,
		&s.TotalPoints, &s.TotalDistanceM, &s.TotalDuration, &s.LastActivityAt,
	)
	return s, err
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateID, userID, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := meta.PartitionKeyFn(aggregateID, userID)
	dedupeKey := fmt.Sprintf("%s:%s", aggregateID, eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"activity",
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(activityID, userID string) string
}

// Stage messages partition on user ID so a user's activities are consumed in
// order; state change notifications partition on the activity itself.
var eventCatalog = map[string]EventMetadata{
	events.TypeActivityIngested: {
		Topic:          "activity_fraud_check",
		SchemaSubject:  "activity_fraud_check-value",
		PartitionKeyFn: func(_, userID string) string { return userID },
	},
	events.TypeActivityVerified: {
		Topic:          "activity_score",
		SchemaSubject:  "activity_score-value",
		PartitionKeyFn: func(_, userID string) string { return userID },
	},
	events.TypeActivityScored: {
		Topic:          "league_score",
		SchemaSubject:  "league_score-value",
		PartitionKeyFn: func(_, userID string) string { return userID },
	},
	events.TypeRewardIssued: {
		Topic:          "reward_mint",
		SchemaSubject:  "reward_mint-value",
		PartitionKeyFn: func(_, userID string) string { return userID },
	},
	events.TypeActivityStateChanged: {
		Topic:          "activity_state_changed",
		SchemaSubject:  "activity_state_changed-value",
		PartitionKeyFn: func(activityID, _ string) string { return activityID },
	},
}
