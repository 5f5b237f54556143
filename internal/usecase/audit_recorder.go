package usecase

import (
	"context"
	"sync"
	"time"

	"RecoGateway/internal/domain/models"
	domrepo "RecoGateway/internal/domain/repository"
	applogger "RecoGateway/pkg/logger"
)

// AuditRecorder ships AuditEvents to a sink off the request path. Record never blocks: when the
// buffer is full the event is dropped and logged.
type AuditRecorder struct {
	sink    domrepo.AuditSink
	logger  *applogger.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	events chan *models.AuditEvent
	wg     sync.WaitGroup
}

type AuditOption func(*AuditRecorder)

func WithAuditBuffer(n int) AuditOption {
	return func(r *AuditRecorder) {
		if n > 0 {
			r.events = make(chan *models.AuditEvent, n)
		}
	}
}

// WithAuditWriteTimeout bounds a single sink write.
func WithAuditWriteTimeout(d time.Duration) AuditOption {
	return func(r *AuditRecorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewAuditRecorder starts the worker. A nil sink yields a recorder that discards everything.
func NewAuditRecorder(sink domrepo.AuditSink, logger *applogger.Logger, opts ...AuditOption) *AuditRecorder {
	if logger == nil {
		logger = applogger.Nop()
	}
	r := &AuditRecorder{
		sink:    sink,
		logger:  logger,
		timeout: 2 * time.Second,
		events:  make(chan *models.AuditEvent, 1024),
	}
	for _, opt := range opts {
		opt(r)
	}
	if sink != nil {
		r.wg.Add(1)
		go r.run()
	}
	return r
}

// Record enqueues ev. Safe to call after Close.
func (r *AuditRecorder) Record(ev *models.AuditEvent) {
	if r.sink == nil || ev == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("audit buffer full, dropping event",
			applogger.String("request_id", ev.RequestID),
			applogger.String("outcome", ev.Outcome),
		)
	}
}

func (r *AuditRecorder) run() {
	defer r.wg.Done()
	for ev := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.sink.Record(ctx, ev); err != nil {
			r.logger.Error("failed to record audit event",
				applogger.String("request_id", ev.RequestID),
				applogger.Error(err),
			)
		}
		cancel()
	}
}

// Close drains queued events, then closes the sink. ctx bounds the drain.
func (r *AuditRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	if r.sink == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("audit drain interrupted", applogger.Int("pending", len(r.events)))
	}
	return r.sink.Close()
}
