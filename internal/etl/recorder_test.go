package etl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskfabric/warehouse/internal/domain"
	"github.com/taskfabric/warehouse/internal/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestRecorderPersistsAudit(t *testing.T) {
	audits := &stubAuditRepo{}
	r := NewRecorder(audits, zap.NewNop().Sugar(), nil)

	id := r.Audit(context.Background(), domain.AuditEntry{
		BatchID:   uuid.New(),
		TableName: "dim_user",
		Operation: domain.OpScd2Load,
		Status:    domain.StepCompleted,
	})
	if id == 0 {
		t.Fatalf("expected a persisted audit id")
	}
	if len(audits.audits) != 1 {
		t.Fatalf("expected one stored entry, got %d", len(audits.audits))
	}
}

func TestRecorderFallsBackWithoutAborting(t *testing.T) {
	audits := &stubAuditRepo{
		auditErr:  errors.New("audit table unavailable"),
		recordErr: errors.New("error table unavailable"),
	}
	m := metrics.New(prometheus.NewRegistry())
	r := NewRecorder(audits, zap.NewNop().Sugar(), m)

	auditID := r.Audit(context.Background(), domain.AuditEntry{BatchID: uuid.New(), TableName: "fact_tasks"})
	if auditID != 0 {
		t.Fatalf("fallback must report id 0, got %d", auditID)
	}
	errorID := r.Error(context.Background(), domain.ErrorEntry{BatchID: uuid.New(), ErrorCode: "X", Message: "m"})
	if errorID != 0 {
		t.Fatalf("fallback must report id 0, got %d", errorID)
	}

	if got := testutil.ToFloat64(m.DroppedAuditRecords); got != 2 {
		t.Fatalf("expected 2 dropped records counted, got %v", got)
	}
}

func TestRecorderStepAuditCarriesFailure(t *testing.T) {
	audits := &stubAuditRepo{}
	r := NewRecorder(audits, zap.NewNop().Sugar(), nil)

	outcome := StepOutcome{
		Table:     "dim_project",
		Operation: domain.OpScd2Load,
		StartedAt: time.Now().UTC(),
		Duration:  25 * time.Millisecond,
		Processed: 4,
		Updated:   2,
		Err:       errors.New("reconcile aborted"),
	}
	r.StepAudit(context.Background(), uuid.New(), outcome)

	entry := audits.audits[0]
	if entry.Status != domain.StepFailed {
		t.Fatalf("failed outcome must audit as failed, got %s", entry.Status)
	}
	if entry.ErrorMessage == nil || *entry.ErrorMessage != "reconcile aborted" {
		t.Fatalf("audit must carry the step error")
	}
	if entry.DurationMs == nil || *entry.DurationMs != 25 {
		t.Fatalf("audit must carry the step duration")
	}
	if entry.RecordsAffected != 2 {
		t.Fatalf("affected rows are inserts+updates+expirations, got %d", entry.RecordsAffected)
	}
}

func TestRecorderDefaultsErrorSeverity(t *testing.T) {
	audits := &stubAuditRepo{}
	r := NewRecorder(audits, zap.NewNop().Sugar(), nil)

	r.Error(context.Background(), domain.ErrorEntry{BatchID: uuid.New(), ErrorCode: "X", Message: "m"})
	if audits.errors[0].Severity != domain.SeverityError {
		t.Fatalf("unspecified severity defaults to error, got %s", audits.errors[0].Severity)
	}
}
