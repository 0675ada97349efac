package etl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskfabric/warehouse/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type orchestratorFixture struct {
	batches  *stubBatchRepo
	audits   *stubAuditRepo
	source   *stubSourceRepo
	tasks    *stubTaskFacts
	timeLogs *stubTimeLogFacts
	aggs     *stubAggRepo
	orch     *Orchestrator
}

func newOrchestratorFixture(tenantID uuid.UUID) *orchestratorFixture {
	f := &orchestratorFixture{
		batches:  newStubBatchRepo(),
		audits:   &stubAuditRepo{},
		source:   &stubSourceRepo{tenants: []uuid.UUID{tenantID}},
		tasks:    newStubTaskFacts(),
		timeLogs: newStubTimeLogFacts(),
		aggs:     &stubAggRepo{rows: 3},
	}
	log := zap.NewNop().Sugar()
	recorder := NewRecorder(f.audits, log, nil)
	ledger := NewLedger(f.batches)

	users := newStubUserDims()
	projects := newStubProjectDims()
	statuses := newStubStatusDims()
	priorities := newStubPriorityDims()

	dimensions := NewDimensionVersioner(f.source, users, projects, statuses, priorities, newStubDateDims(), recorder, log)
	facts := NewFactSynchronizer(f.source, users, projects, statuses, priorities, f.tasks, f.timeLogs, recorder, log)
	aggregates := NewAggregateBuilder(f.aggs, recorder, log)

	f.orch = NewOrchestrator(ledger, dimensions, facts, aggregates, recorder, f.source, nil, log, "taskdb", 30)
	return f
}

func TestRunForTenantCompletes(t *testing.T) {
	tenantID := uuid.New()
	f := newOrchestratorFixture(tenantID)
	f.source.users = []domain.SourceUser{
		{ID: uuid.New(), TenantID: tenantID, Email: "ada@corp.io", FullName: "Ada", Role: "admin", IsActive: true},
	}

	record, err := f.orch.RunForTenant(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if record.Status != domain.BatchCompleted {
		t.Fatalf("expected completed batch, got %s", record.Status)
	}

	persisted := f.batches.records[record.BatchID]
	if persisted.Status != domain.BatchCompleted || persisted.FinishedAt == nil {
		t.Fatalf("ledger row must be finalized, got %+v", persisted)
	}
	if persisted.Counts.Inserted == 0 {
		t.Fatalf("counts must aggregate across steps, got %+v", persisted.Counts)
	}

	// One audit per step: dates, 4 dimensions, 2 facts, 2 aggregates.
	if len(f.audits.audits) != 9 {
		t.Fatalf("expected 9 step audits, got %d", len(f.audits.audits))
	}
	if f.aggs.dailyCalls != 1 || f.aggs.workloadCalls != 1 {
		t.Fatalf("both aggregates must rebuild exactly once")
	}
	if f.batches.locked {
		t.Fatalf("run lock must be released after the batch")
	}
}

func TestRunForTenantFailsFastAndSkipsRemainingSteps(t *testing.T) {
	tenantID := uuid.New()
	f := newOrchestratorFixture(tenantID)
	f.source.usersErr = errors.New("source connection reset")

	record, err := f.orch.RunForTenant(context.Background(), tenantID)
	if err == nil {
		t.Fatalf("expected the structural failure to propagate")
	}
	var structural *domain.StructuralError
	if !errors.As(err, &structural) {
		t.Fatalf("expected a structural error, got %T", err)
	}

	if record.Status != domain.BatchFailed {
		t.Fatalf("expected failed batch, got %s", record.Status)
	}
	persisted := f.batches.records[record.BatchID]
	if persisted.Status != domain.BatchFailed || persisted.ErrorMessage == nil {
		t.Fatalf("failed batch must be finalized with its error, got %+v", persisted)
	}

	// Users step broke; facts and aggregates never run.
	if f.tasks.listCalls != 0 {
		t.Fatalf("fact steps must be skipped after a failure")
	}
	if f.aggs.dailyCalls != 0 {
		t.Fatalf("aggregate steps must be skipped after a failure")
	}

	// The abort itself is recorded as a critical error.
	found := false
	for _, entry := range f.audits.errors {
		if entry.ErrorCode == "BATCH_ABORTED" && entry.Severity == domain.SeverityCritical {
			found = true
		}
	}
	if !found {
		t.Fatalf("batch abort must be recorded, got %+v", f.audits.errors)
	}
	if f.batches.locked {
		t.Fatalf("run lock must be released after a failed batch")
	}
}

func TestRunForTenantRejectsConcurrentBatch(t *testing.T) {
	tenantID := uuid.New()
	f := newOrchestratorFixture(tenantID)
	f.batches.locked = true

	_, err := f.orch.RunForTenant(context.Background(), tenantID)
	if !errors.Is(err, domain.ErrConcurrentBatch) {
		t.Fatalf("expected ErrConcurrentBatch, got %v", err)
	}
	if len(f.batches.records) != 0 {
		t.Fatalf("a rejected run must not write a ledger row")
	}
}

func TestRunForTenantHonorsCancellation(t *testing.T) {
	tenantID := uuid.New()
	f := newOrchestratorFixture(tenantID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	record, err := f.orch.RunForTenant(ctx, tenantID)
	if err == nil {
		t.Fatalf("expected cancellation to fail the batch")
	}
	persisted := f.batches.records[record.BatchID]
	if persisted.Status != domain.BatchFailed {
		t.Fatalf("cancelled batch must finalize as failed, got %s", persisted.Status)
	}
}

func TestRunForTenantFinalizesCancelledBatch(t *testing.T) {
	tenantID := uuid.New()
	f := newOrchestratorFixture(tenantID)

	// Cancel mid-run, right after the ledger row is written. The stub
	// repositories reject writes on a cancelled context the way pool writes
	// would, so finalization only succeeds off the cancelled context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.batches.cancelAfterCreate = cancel

	record, err := f.orch.RunForTenant(ctx, tenantID)
	if err == nil {
		t.Fatalf("expected cancellation to fail the batch")
	}

	persisted := f.batches.records[record.BatchID]
	if persisted.Status != domain.BatchFailed || persisted.FinishedAt == nil {
		t.Fatalf("cancelled batch must not stay running, got %+v", persisted)
	}
	if persisted.ErrorMessage == nil {
		t.Fatalf("finalized row must carry the cancellation cause")
	}

	found := false
	for _, entry := range f.audits.errors {
		if entry.ErrorCode == "BATCH_ABORTED" {
			found = true
		}
	}
	if !found {
		t.Fatalf("abort must still be recorded after cancellation, got %+v", f.audits.errors)
	}
	if f.batches.locked {
		t.Fatalf("run lock must be released after a cancelled batch")
	}
}

func TestRunAllSweepsEveryTenant(t *testing.T) {
	first := uuid.New()
	second := uuid.New()
	f := newOrchestratorFixture(first)
	f.source.tenants = []uuid.UUID{first, second}

	records, err := f.orch.RunAll(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected one batch per tenant, got %d", len(records))
	}
	if records[0].TenantID != first || records[1].TenantID != second {
		t.Fatalf("batches must follow tenant order")
	}
}

func TestLedgerDoubleFinalizeRejected(t *testing.T) {
	batches := newStubBatchRepo()
	ledger := NewLedger(batches)

	record, err := ledger.Begin(context.Background(), uuid.New(), "taskdb")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if err := ledger.End(context.Background(), record.BatchID, domain.BatchCompleted, domain.BatchCounts{}, nil); err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	err = ledger.End(context.Background(), record.BatchID, domain.BatchFailed, domain.BatchCounts{}, nil)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second finalize must be rejected, got %v", err)
	}

	err = ledger.End(context.Background(), uuid.New(), domain.BatchCompleted, domain.BatchCounts{}, nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown batch must be ErrNotFound, got %v", err)
	}
}

func TestLedgerHistoryWindow(t *testing.T) {
	batches := newStubBatchRepo()
	ledger := NewLedger(batches)
	now := time.Now().UTC()

	old := domain.NewBatchRecord(uuid.New(), "taskdb", now.Add(-48*time.Hour))
	recent := domain.NewBatchRecord(uuid.New(), "taskdb", now.Add(-time.Hour))
	if err := batches.Create(context.Background(), old); err != nil {
		t.Fatalf("seed old: %v", err)
	}
	if err := batches.Create(context.Background(), recent); err != nil {
		t.Fatalf("seed recent: %v", err)
	}

	records, err := ledger.History(context.Background(), 24)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 1 || records[0].BatchID != recent.BatchID {
		t.Fatalf("expected only the recent batch, got %d", len(records))
	}
}
