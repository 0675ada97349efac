package etl

import (
	"context"
	"time"

	"github.com/taskfabric/warehouse/internal/domain"
	"github.com/taskfabric/warehouse/internal/metrics"
	"github.com/taskfabric/warehouse/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder persists audit and error entries. Recording is best-effort: a
// failure to log falls back to the process diagnostic stream instead of
// aborting the pipeline step it describes, and is never silently dropped.
type Recorder struct {
	repo    repository.AuditLogRepository
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

// NewRecorder wires the audit/error recorder. metrics may be nil.
func NewRecorder(repo repository.AuditLogRepository, log *zap.SugaredLogger, m *metrics.Metrics) *Recorder {
	return &Recorder{repo: repo, log: log, metrics: m}
}

// Audit records one (batch, table) step. Returns the audit id, or 0 when the
// write fell back to the diagnostic log.
func (r *Recorder) Audit(ctx context.Context, entry domain.AuditEntry) int64 {
	id, err := r.repo.RecordAudit(ctx, entry)
	if err != nil {
		r.fallback("audit record not persisted", err,
			"batch_id", entry.BatchID,
			"table", entry.TableName,
			"operation", string(entry.Operation),
			"status", string(entry.Status),
			"records_affected", entry.RecordsAffected,
		)
		return 0
	}
	return id
}

// StepAudit builds and records the audit entry for a finished step.
func (r *Recorder) StepAudit(ctx context.Context, batchID uuid.UUID, outcome StepOutcome) int64 {
	status := domain.StepCompleted
	var errText *string
	if outcome.Err != nil {
		status = domain.StepFailed
		msg := outcome.Err.Error()
		errText = &msg
	}

	finished := outcome.StartedAt.Add(outcome.Duration)
	durationMs := outcome.Duration.Milliseconds()
	return r.Audit(ctx, domain.AuditEntry{
		BatchID:         batchID,
		TableName:       outcome.Table,
		Operation:       outcome.Operation,
		Status:          status,
		RecordsAffected: outcome.Affected(),
		StartedAt:       outcome.StartedAt,
		FinishedAt:      &finished,
		DurationMs:      &durationMs,
		ErrorMessage:    errText,
	})
}

// Error records a structured pipeline error. Returns the error id, or 0 when
// the write fell back to the diagnostic log.
func (r *Recorder) Error(ctx context.Context, entry domain.ErrorEntry) int64 {
	if entry.Severity == "" {
		entry.Severity = domain.SeverityError
	}
	id, err := r.repo.RecordError(ctx, entry)
	if err != nil {
		r.fallback("error record not persisted", err,
			"batch_id", entry.BatchID,
			"error_code", entry.ErrorCode,
			"message", entry.Message,
		)
		return 0
	}
	return id
}

// RowError records a single-row transform failure against its source key.
func (r *Recorder) RowError(ctx context.Context, batchID uuid.UUID, rowErr *domain.RowTransformError) int64 {
	return r.Error(ctx, domain.ErrorEntry{
		BatchID:     batchID,
		Severity:    domain.SeverityWarning,
		ErrorCode:   "ROW_TRANSFORM",
		Message:     rowErr.Error(),
		SourceTable: &rowErr.SourceTable,
		SourceKey:   &rowErr.SourceKey,
	})
}

func (r *Recorder) fallback(msg string, err error, keysAndValues ...any) {
	if r.metrics != nil {
		r.metrics.DroppedAuditRecords.Inc()
	}
	kvs := append([]any{"error", err, "dropped_at", time.Now().UTC()}, keysAndValues...)
	r.log.Warnw(msg, kvs...)
}
