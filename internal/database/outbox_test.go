package database

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxEvent_Prepare(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	event := &OutboxEvent{AggregateType: "audit_run", AggregateID: "run-1"}
	event.prepare(now)

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, OutboxStatusPending, event.Status)
	assert.Equal(t, "stream:storefront_audit", event.TargetStream)
	assert.Equal(t, now, event.CreatedAt)
	require.NotNil(t, event.NextRetryAt)
	assert.Equal(t, now, *event.NextRetryAt)

	id := uuid.New()
	later := now.Add(time.Hour)
	custom := &OutboxEvent{ID: id, TargetStream: "stream:custom", NextRetryAt: &later}
	custom.prepare(now)
	assert.Equal(t, id, custom.ID)
	assert.Equal(t, "stream:custom", custom.TargetStream)
	assert.Equal(t, later, *custom.NextRetryAt)
}

func TestNextAttempt(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		retries int
		status  string
		backoff time.Duration
	}{
		{1, OutboxStatusFailed, 2 * time.Second},
		{3, OutboxStatusFailed, 8 * time.Second},
		{MaxRetryCount, OutboxStatusDeadLetter, 32 * time.Second},
		{12, OutboxStatusDeadLetter, 300 * time.Second},
	}

	for _, tt := range tests {
		status, next := nextAttempt(tt.retries, now)
		assert.Equal(t, tt.status, status, "retries=%d", tt.retries)
		assert.Equal(t, now.Add(tt.backoff), next, "retries=%d", tt.retries)
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5433, User: "auditor", Password: "secret", Database: "audits"}
	assert.Equal(t, "postgres://auditor:secret@db:5433/audits?sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Equal(t, "postgres://auditor:secret@db:5433/audits?sslmode=require", cfg.DSN())
}

func TestOutboxRepository_InsertWithTx(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	t.Run("successful insert with transaction", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: "audit_run",
			AggregateID:   uuid.NewString(),
			EventType:     "AUDIT_COMPLETED",
			Payload:       json.RawMessage(`{"product_count":2}`),
		}

		err := db.WithTx(ctx, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		})

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, OutboxStatusPending, event.Status)
		assert.False(t, event.CreatedAt.IsZero())
	})

	t.Run("rollback on transaction failure", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: "audit_run",
			AggregateID:   uuid.NewString(),
			EventType:     "AUDIT_COMPLETED",
			Payload:       json.RawMessage(`{"product_count":0}`),
		}

		errForced := errors.New("forced rollback")
		err := db.WithTx(ctx, func(tx pgx.Tx) error {
			if err := repo.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
			return errForced
		})
		assert.ErrorIs(t, err, errForced)

		var count int
		err = db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM outbox_event WHERE id = $1", event.ID).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestOutboxRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	event := &OutboxEvent{
		AggregateType: "audit_run",
		AggregateID:   uuid.NewString(),
		EventType:     "AUDIT_COMPLETED",
		Payload:       json.RawMessage(`{"product_count":1}`),
	}
	require.NoError(t, db.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.InsertWithTx(ctx, tx, event)
	}))

	pending, err := repo.GetPending(ctx, 100)
	require.NoError(t, err)
	assert.True(t, containsEvent(pending, event.ID))

	require.NoError(t, repo.MarkFailed(ctx, event.ID, errors.New("redis down")))

	pending, err = repo.GetPending(ctx, 100)
	require.NoError(t, err)
	assert.False(t, containsEvent(pending, event.ID), "failed event waits for its retry time")

	require.NoError(t, repo.MarkProcessed(ctx, event.ID))
	assert.Error(t, repo.MarkProcessed(ctx, uuid.New()))
}

func containsEvent(events []*OutboxEvent, id uuid.UUID) bool {
	for _, e := range events {
		if e.ID == id {
			return true
		}
	}
	return false
}

// setupTestDB connects using the TEST_DB_* variables and skips the
// test when no test database is configured.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("Test database not configured")
	}

	cfg := Config{
		Host:     host,
		Port:     5432,
		User:     envOr("TEST_DB_USER", "postgres"),
		Password: os.Getenv("TEST_DB_PASSWORD"),
		Database: envOr("TEST_DB_NAME", "storefront_auditor_test"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := New(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))

	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
