package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"RecoGateway/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecer struct {
	query string
	args  []any
	err   error
}

func (f *fakeExecer) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.query = query
	f.args = args
	return nil, f.err
}

type fakePublisher struct {
	topic string
	key   []byte
	value interface{}
}

func (f *fakePublisher) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	f.topic, f.key, f.value = topic, key, value
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func sampleEvent() *models.AuditEvent {
	return &models.AuditEvent{
		RequestID:         "req-1",
		UserID:            "user-1",
		Symbol:            "AAPL",
		Outcome:           models.OutcomeFailed,
		Stage:             models.StageScoring,
		Kind:              models.KindDownstreamTimeout,
		RationaleDegraded: true,
		DurationMs:        812,
		OccurredAt:        time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestClickHouseAuditSinkRecord(t *testing.T) {
	db := &fakeExecer{}
	sink := NewClickHouseAuditSink(db, "recgw.recommendation_audit")

	require.NoError(t, sink.Record(context.Background(), sampleEvent()))
	assert.True(t, strings.HasPrefix(db.query, "INSERT INTO recgw.recommendation_audit"))
	require.Len(t, db.args, 9)
	assert.Equal(t, "req-1", db.args[1])
	assert.Equal(t, "scoring", db.args[5])
	assert.Equal(t, "downstream_timeout", db.args[6])
	assert.Equal(t, uint8(1), db.args[7])
	assert.Equal(t, uint32(812), db.args[8])
}

func TestClickHouseAuditSinkWrapsError(t *testing.T) {
	db := &fakeExecer{err: errors.New("code: 60, table does not exist")}
	sink := NewClickHouseAuditSink(db, "t")

	err := sink.Record(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.ErrorIs(t, err, db.err)
}

func TestAuditTableDDL(t *testing.T) {
	stmts := AuditTableDDL("recgw", "recommendation_audit")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[1], "recgw.recommendation_audit")
	assert.Contains(t, stmts[1], "MergeTree")
}

func TestKafkaAuditSinkKeysByUser(t *testing.T) {
	p := &fakePublisher{}
	sink := NewKafkaAuditSink(p, "recommendation-audit")

	ev := sampleEvent()
	require.NoError(t, sink.Record(context.Background(), ev))
	assert.Equal(t, "recommendation-audit", p.topic)
	assert.Equal(t, []byte("user-1"), p.key)
	assert.Same(t, ev, p.value)
}
