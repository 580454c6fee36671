//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/rewards/internal/domain"
	"example.com/rewards/internal/league"
)

func startDatabase(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("rewards"),
		postgrescontainer.WithUsername("rewards"),
		postgrescontainer.WithPassword("rewards"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))
	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func testActivity(userID string) domain.Activity {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	return domain.Activity{
		ID:             uuid.NewString(),
		UserID:         userID,
		Source:         "strava",
		SourceID:       uuid.NewString(),
		Type:           domain.TypeRunning,
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		DurationSec:    1800,
		DistanceMeters: 5000,
		Status:         domain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestRepositoryPipelineTransitions(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)

	activity := testActivity(uuid.NewString())
	require.NoError(t, repo.Create(ctx, activity))

	stored, err := repo.FindBySource(ctx, activity.UserID, activity.Source, activity.SourceID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, activity.ID, stored.ID)
	require.Equal(t, domain.StatusPending, stored.Status)

	// Ingestion enqueues the fraud check and the audit event.
	require.Equal(t, 2, outboxCount(t, ctx, pool, activity.ID))

	applied, err := repo.ApplyFraudVerdict(ctx, activity.ID, 0, nil, false)
	require.NoError(t, err)
	require.True(t, applied)

	// Redelivered verdicts are no-ops.
	applied, err = repo.ApplyFraudVerdict(ctx, activity.ID, 0, nil, false)
	require.NoError(t, err)
	require.False(t, applied)

	applied, err = repo.MarkProcessed(ctx, activity.ID, 50, "running activity reward")
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = repo.MarkProcessed(ctx, activity.ID, 50, "running activity reward")
	require.NoError(t, err)
	require.False(t, applied, "the reward must be issued exactly once")

	final, err := repo.Get(ctx, activity.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusVerified, final.Status)
	require.True(t, final.Processed)
	require.Equal(t, 50, final.Points)
}

func TestRepositoryModeration(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)

	activity := testActivity(uuid.NewString())
	require.NoError(t, repo.Create(ctx, activity))

	applied, err := repo.Flag(ctx, activity.ID, "manual review", "admin-1")
	require.NoError(t, err)
	require.True(t, applied)

	// Approving a flagged activity releases it and re-enqueues scoring.
	applied, err = repo.Approve(ctx, activity.ID, "admin-1", "checked gps trace")
	require.NoError(t, err)
	require.True(t, applied)

	stored, err := repo.Get(ctx, activity.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusVerified, stored.Status)
	require.Contains(t, stored.FraudReasons, "manual review")

	// Approve only applies to flagged activities.
	applied, err = repo.Approve(ctx, activity.ID, "admin-1", "")
	require.NoError(t, err)
	require.False(t, applied)
}

func TestLeagueRepositoryContributionIdempotent(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewLeagueRepository(pool)

	now := time.Now().UTC()
	l := league.League{
		ID:          uuid.NewString(),
		Name:        "Integration Cup",
		Kind:        league.KindLeague,
		ScoringType: league.ScoreDistance,
		StartDate:   now.AddDate(0, -1, 0),
		EndDate:     now.AddDate(0, 1, 0),
		CreatedBy:   "user-creator",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	creator := league.Member{UserID: "user-creator", Rank: 1, JoinOrder: 0, JoinedAt: now, Active: true}
	require.NoError(t, repo.Create(ctx, l, creator))

	member, existing, err := repo.Join(ctx, l.ID, "user-2", now)
	require.NoError(t, err)
	require.False(t, existing)
	require.Equal(t, 1, member.JoinOrder)

	activityID := uuid.NewString()
	applied, err := repo.ApplyContribution(ctx, l.ID, "user-2", activityID, 12.5, now)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = repo.ApplyContribution(ctx, l.ID, "user-2", activityID, 12.5, now)
	require.NoError(t, err)
	require.False(t, applied, "replayed contributions must not double-count")

	standings, err := repo.Leaderboard(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, standings, 2)
	require.Equal(t, "user-2", standings[0].UserID)
	require.Equal(t, 12.5, standings[0].Score)
	require.Equal(t, 1, standings[0].Rank)
}

func outboxCount(t *testing.T, ctx context.Context, pool *pgxpool.Pool, aggregateID string) int {
	t.Helper()
	var count int
	err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE aggregate_id = $1`, aggregateID).Scan(&count)
	require.NoError(t, err)
	return count
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/postgres/migrations/0001_init.up.sql",
		"../../../db/postgres/migrations/0002_outbox_dlq_retry.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
