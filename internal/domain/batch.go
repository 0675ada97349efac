package domain

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle state of an ETL batch.
type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// Terminal reports whether the status ends the batch lifecycle.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// BatchCounts aggregates row results across all steps of a batch.
type BatchCounts struct {
	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}

// Add accumulates another set of counts.
func (c *BatchCounts) Add(other BatchCounts) {
	c.Processed += other.Processed
	c.Inserted += other.Inserted
	c.Updated += other.Updated
	c.Failed += other.Failed
}

// BatchRecord is one row of the batch ledger. Created at batch start, finalized
// exactly once at batch end, never deleted.
type BatchRecord struct {
	BatchID      uuid.UUID   `json:"batch_id"`
	TenantID     uuid.UUID   `json:"tenant_id"`
	SourceSystem string      `json:"source_system"`
	Status       BatchStatus `json:"status"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
	Counts       BatchCounts `json:"counts"`
	ErrorMessage *string     `json:"error_message,omitempty"`
}

// NewBatchRecord creates a running ledger row. UUIDv7 keeps batch ids
// time-sortable.
func NewBatchRecord(tenantID uuid.UUID, sourceSystem string, startedAt time.Time) BatchRecord {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return BatchRecord{
		BatchID:      id,
		TenantID:     tenantID,
		SourceSystem: sourceSystem,
		Status:       BatchRunning,
		StartedAt:    startedAt,
	}
}
