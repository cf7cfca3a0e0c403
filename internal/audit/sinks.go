package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"buddiesfinder/internal/models"
)

// Execer runs a statement against the analytics store.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

const clickhouseSchema = `
CREATE TABLE IF NOT EXISTS auth_events (
	event_id UUID,
	event_time DateTime64(3, 'UTC'),
	event_type LowCardinality(String),
	user_id Int64,
	email String,
	reason LowCardinality(String),
	factor LowCardinality(String),
	ip_address String,
	user_agent String,
	request_id String
) ENGINE = MergeTree
PARTITION BY toYYYYMM(event_time)
ORDER BY (event_type, event_time)
TTL toDateTime(event_time) + INTERVAL 180 DAY`

// ClickHouseSink appends events to the auth_events table.
type ClickHouseSink struct {
	db Execer
}

// NewClickHouseSink creates the auth_events table when missing.
func NewClickHouseSink(ctx context.Context, db Execer) (*ClickHouseSink, error) {
	if err := db.Exec(ctx, clickhouseSchema); err != nil {
		return nil, fmt.Errorf("failed to create auth_events table: %w", err)
	}
	return &ClickHouseSink{db: db}, nil
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

func (s *ClickHouseSink) Write(ctx context.Context, e *models.SecurityEvent) error {
	return s.db.Exec(ctx, `INSERT INTO auth_events
		(event_id, event_time, event_type, user_id, email, reason, factor, ip_address, user_agent, request_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.EventTime, string(e.EventType), e.UserID, e.Email, e.Reason, e.Factor,
		e.IPAddress, e.UserAgent, e.RequestID)
}

// Producer publishes keyed messages to a topic.
type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaSink publishes events as JSON keyed by account, so one account's
// events stay ordered within a partition.
type KafkaSink struct {
	producer Producer
	topic    string
}

func NewKafkaSink(producer Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, e *models.SecurityEvent) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal security event: %w", err)
	}
	key := e.Email
	if e.UserID != 0 {
		key = strconv.FormatInt(e.UserID, 10)
	}
	return s.producer.ProduceMessage(ctx, s.topic, []byte(key), value, map[string]string{
		"event_type": string(e.EventType),
	})
}
