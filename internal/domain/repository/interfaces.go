package repository

import (
	"context"
	"time"

	"RecoGateway/internal/domain/models"
)

// AuditSink stores orchestration metadata. Implementations must be safe for concurrent use.
type AuditSink interface {
	Record(ctx context.Context, ev *models.AuditEvent) error
	Close() error
}

type Metrics interface {
	RecordRequest(outcome string, kind models.ErrorKind)
	RecordStage(stage models.Stage, d time.Duration)
	RecordDownstream(service, result string)
	RecordRateLimited(scope string)
	RecordFlagFallback(flag string)
	RecordRationaleDegraded(reason string)
}
