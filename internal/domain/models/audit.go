package models

import "time"

// Outcomes recorded on an AuditEvent.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// AuditEvent is the metadata kept about one orchestration. It never carries the recommendation itself.
type AuditEvent struct {
	RequestID         string    `json:"request_id"`
	UserID            string    `json:"user_id"`
	Symbol            string    `json:"symbol"`
	Outcome           string    `json:"outcome"`
	Stage             Stage     `json:"stage,omitempty"`
	Kind              ErrorKind `json:"kind,omitempty"`
	RationaleDegraded bool      `json:"rationale_degraded"`
	DurationMs        int64     `json:"duration_ms"`
	OccurredAt        time.Time `json:"occurred_at"`
}
