package domain

import (
	"time"

	"github.com/google/uuid"
)

// OperationKind labels the kind of load a step performed against one table.
type OperationKind string

const (
	OpLoad            OperationKind = "load"
	OpIncrementalLoad OperationKind = "incremental_load"
	OpScd2Load        OperationKind = "scd2_load"
	OpAggregate       OperationKind = "aggregate"
)

// StepStatus is the outcome of a single audited table operation.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// AuditEntry is one per (batch, table) step. Immutable after creation except for
// finish-time/status finalization.
type AuditEntry struct {
	ID              int64         `json:"id"`
	BatchID         uuid.UUID     `json:"batch_id"`
	TableName       string        `json:"table_name"`
	Operation       OperationKind `json:"operation"`
	Status          StepStatus    `json:"status"`
	RecordsAffected int           `json:"records_affected"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	DurationMs      *int64        `json:"duration_ms,omitempty"`
	ErrorMessage    *string       `json:"error_message,omitempty"`
}

// Severity ranks recorded pipeline errors.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ErrorEntry is an append-only structured error record. Resolution fields are
// mutated later by manual intervention, never by the pipeline.
type ErrorEntry struct {
	ID          int64          `json:"id"`
	BatchID     uuid.UUID      `json:"batch_id"`
	Severity    Severity       `json:"severity"`
	ErrorCode   string         `json:"error_code"`
	Message     string         `json:"message"`
	SourceTable *string        `json:"source_table,omitempty"`
	SourceKey   *string        `json:"source_key,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	Resolved    bool           `json:"resolved"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy  *string        `json:"resolved_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
