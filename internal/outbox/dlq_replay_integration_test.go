//go:build integration

package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/rewards/internal/events"
)

func TestDLQReplayRepublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	activityID := uuid.NewString()
	seedOutbox(t, ctx, pool, activityID, events.TypeActivityIngested, "activity_fraud_check")

	registry := &stubRegistry{id: 100}

	// 1. Initial dispatch fails and moves the message to DLQ.
	failingProducer := &stubProducer{err: errors.New("upstream kafka unavailable")}
	dispatcher := NewDispatcher(pool, failingProducer, registry, 5*time.Millisecond, 10)
	require.NoError(t, dispatcher.processBatch(ctx))

	var dlqCount int
	err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount)
	require.NoError(t, err)
	require.Equal(t, 1, dlqCount, "expected message routed to DLQ on failure")

	// 2. Requeue the DLQ entry.
	manager := NewDLQManager(pool, 5, time.Second)
	replayed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, replayed)

	err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount)
	require.NoError(t, err)
	require.Equal(t, 0, dlqCount, "expected DLQ cleared after requeue")

	// 3. Dispatch against a real broker and read the record back.
	kContainer, err := kafkaContainer.RunContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kContainer.Terminate(context.Background()) })

	brokers, err := kContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	broker := brokers[0]

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             "activity_fraud_check",
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	producer := NewKafkaProducer(brokers)
	defer producer.Close()

	dispatcher = NewDispatcher(pool, producer, registry, 5*time.Millisecond, 10)
	require.NoError(t, dispatcher.processBatch(ctx))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     "activity_fraud_check",
		Partition: 0,
		MaxWait:   time.Second,
	})
	defer reader.Close()

	readCtx, readCancel := context.WithTimeout(ctx, 45*time.Second)
	defer readCancel()

	record, err := reader.ReadMessage(readCtx)
	require.NoError(t, err)
	require.Equal(t, byte(0), record.Value[0])
	requireHeader(t, record, "event_type", events.TypeActivityIngested)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 2, published, "original failed row plus the requeued one")
}

func TestDLQQuarantineAfterRetryLimit(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	activityID := uuid.NewString()
	eventID := seedOutbox(t, ctx, pool, activityID, events.TypeActivityIngested, "activity_fraud_check")

	failingProducer := &stubProducer{err: errors.New("upstream kafka unavailable")}
	dispatcher := NewDispatcher(pool, failingProducer, &stubRegistry{id: 1}, 5*time.Millisecond, 10)
	require.NoError(t, dispatcher.processBatch(ctx))

	// Exhaust the retry budget.
	_, err := pool.Exec(ctx, `UPDATE outbox_dlq SET retry_count = 3 WHERE event_id = $1`, eventID)
	require.NoError(t, err)

	manager := NewDLQManager(pool, 3, time.Second)
	replayed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, replayed)

	var quarantinedAt *time.Time
	var reason string
	err = pool.QueryRow(ctx, `SELECT quarantined_at, quarantine_reason FROM outbox_dlq WHERE event_id = $1`, eventID).
		Scan(&quarantinedAt, &reason)
	require.NoError(t, err)
	require.NotNil(t, quarantinedAt)
	require.Equal(t, "retry limit reached", reason)
}
