package repository

import (
	"context"
	"database/sql"
	"fmt"

	"RecoGateway/internal/domain/models"
	"RecoGateway/internal/domain/repository"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ClickHouseAuditSink appends audit rows to a MergeTree table.
type ClickHouseAuditSink struct {
	db    execer
	table string
}

func NewClickHouseAuditSink(db execer, table string) repository.AuditSink {
	return &ClickHouseAuditSink{db: db, table: table}
}

// AuditTableDDL creates the database and the audit table if missing.
func AuditTableDDL(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	occurred_at DateTime64(3, 'UTC'),
	request_id String,
	user_id String,
	symbol LowCardinality(String),
	outcome LowCardinality(String),
	stage LowCardinality(String),
	kind LowCardinality(String),
	rationale_degraded UInt8,
	duration_ms UInt32
) ENGINE = MergeTree
PARTITION BY toYYYYMM(occurred_at)
ORDER BY (occurred_at, user_id)
TTL toDateTime(occurred_at) + INTERVAL 90 DAY`, database, table),
	}
}

func (s *ClickHouseAuditSink) Record(ctx context.Context, ev *models.AuditEvent) error {
	q := fmt.Sprintf("INSERT INTO %s (occurred_at, request_id, user_id, symbol, outcome, stage, kind, rationale_degraded, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	var degraded uint8
	if ev.RationaleDegraded {
		degraded = 1
	}
	_, err := s.db.ExecContext(ctx, q,
		ev.OccurredAt,
		ev.RequestID,
		ev.UserID,
		ev.Symbol,
		ev.Outcome,
		string(ev.Stage),
		string(ev.Kind),
		degraded,
		uint32(ev.DurationMs),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *ClickHouseAuditSink) Close() error {
	return nil
}

type publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaAuditSink publishes audit events keyed by user id, so one user's events stay ordered.
type KafkaAuditSink struct {
	producer publisher
	topic    string
}

func NewKafkaAuditSink(producer publisher, topic string) repository.AuditSink {
	return &KafkaAuditSink{producer: producer, topic: topic}
}

func (s *KafkaAuditSink) Record(ctx context.Context, ev *models.AuditEvent) error {
	return s.producer.Publish(ctx, s.topic, []byte(ev.UserID), ev)
}

func (s *KafkaAuditSink) Close() error {
	return nil
}
