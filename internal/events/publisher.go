package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// StreamPublisher appends events straight to a Redis stream. It is used when
// no database is configured; with a database the outbox relay publishes.
type StreamPublisher struct {
	redis  RedisClient
	stream string
	logger *slog.Logger
}

func NewStreamPublisher(client RedisClient, stream string, logger *slog.Logger) *StreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamPublisher{
		redis:  client,
		stream: stream,
		logger: logger.With("component", "event_publisher"),
	}
}

// Stamp fills the event metadata fields that are still empty.
func (p *AuditCompletedPayload) Stamp() {
	if p.EventID == "" {
		p.EventID = uuid.New().String()
	}
	if p.EventType == "" {
		p.EventType = string(EventTypeAuditCompleted)
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	if p.Source == "" {
		p.Source = source
	}
}

// Marshal stamps the payload and encodes it.
func (p *AuditCompletedPayload) Marshal() (json.RawMessage, error) {
	p.Stamp()
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

func (s *StreamPublisher) PublishAuditCompleted(ctx context.Context, payload *AuditCompletedPayload) error {
	data, err := payload.Marshal()
	if err != nil {
		return err
	}

	values, err := StreamValues(payload.EventID, payload.EventType, AggregateTypeAuditRun, payload.RunID, payload.Timestamp, 0, data)
	if err != nil {
		return err
	}

	if _, err := s.redis.XAdd(ctx, &redis.XAddArgs{Stream: s.stream, Values: values}).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	s.logger.Info("event published",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"run_id", payload.RunID,
		"stream", s.stream,
	)

	return nil
}

func (s *StreamPublisher) Close() error {
	return s.redis.Close()
}
