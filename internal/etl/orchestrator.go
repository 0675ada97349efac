package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/taskfabric/warehouse/internal/domain"
	"github.com/taskfabric/warehouse/internal/metrics"
	"github.com/taskfabric/warehouse/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orchestrator runs one full warehouse batch per tenant: calendar, dimensions,
// facts, then aggregates, in dependency order. The batch aborts on the first
// structural failure; remaining steps are skipped and the ledger row records
// partial counts plus the error.
type Orchestrator struct {
	ledger     *Ledger
	dimensions *DimensionVersioner
	facts      *FactSynchronizer
	aggregates *AggregateBuilder
	recorder   *Recorder
	source     repository.SourceRepository
	metrics    *metrics.Metrics
	log        *zap.SugaredLogger

	sourceSystem    string
	dateHorizonDays int
	now             func() time.Time
}

// NewOrchestrator wires the batch orchestrator. metrics may be nil.
func NewOrchestrator(
	ledger *Ledger,
	dimensions *DimensionVersioner,
	facts *FactSynchronizer,
	aggregates *AggregateBuilder,
	recorder *Recorder,
	source repository.SourceRepository,
	m *metrics.Metrics,
	log *zap.SugaredLogger,
	sourceSystem string,
	dateHorizonDays int,
) *Orchestrator {
	if dateHorizonDays <= 0 {
		dateHorizonDays = 365
	}
	return &Orchestrator{
		ledger:          ledger,
		dimensions:      dimensions,
		facts:           facts,
		aggregates:      aggregates,
		recorder:        recorder,
		source:          source,
		metrics:         m,
		log:             log,
		sourceSystem:    sourceSystem,
		dateHorizonDays: dateHorizonDays,
		now:             time.Now,
	}
}

// RunForTenant executes one batch for a single tenant. Exactly one batch runs
// at a time across the whole warehouse: if another holds the writer lock the
// call fails fast with domain.ErrConcurrentBatch and writes no ledger row.
func (o *Orchestrator) RunForTenant(ctx context.Context, tenantID uuid.UUID) (domain.BatchRecord, error) {
	release, err := o.ledger.AcquireRunLock(ctx)
	if err != nil {
		return domain.BatchRecord{}, err
	}
	defer release()

	batch, err := o.ledger.Begin(ctx, tenantID, o.sourceSystem)
	if err != nil {
		return domain.BatchRecord{}, &domain.PersistenceError{Op: "batch ledger create", Err: err}
	}
	batchTime := batch.StartedAt

	o.log.Infow("batch started",
		"batch_id", batch.BatchID,
		"tenant_id", tenantID,
		"source_system", o.sourceSystem,
	)

	var counts domain.BatchCounts
	steps := []func(context.Context) StepOutcome{
		func(ctx context.Context) StepOutcome {
			from := batchTime.AddDate(-1, 0, 0)
			to := batchTime.AddDate(0, 0, o.dateHorizonDays)
			return o.dimensions.LoadDates(ctx, batch, from, to)
		},
		func(ctx context.Context) StepOutcome { return o.dimensions.SyncStatuses(ctx, batch, batchTime) },
		func(ctx context.Context) StepOutcome { return o.dimensions.SyncPriorities(ctx, batch, batchTime) },
		func(ctx context.Context) StepOutcome { return o.dimensions.SyncUsers(ctx, batch, batchTime) },
		func(ctx context.Context) StepOutcome { return o.dimensions.SyncProjects(ctx, batch, batchTime) },
		func(ctx context.Context) StepOutcome { return o.facts.SyncTasks(ctx, batch) },
		func(ctx context.Context) StepOutcome { return o.facts.SyncTimeLogs(ctx, batch) },
		func(ctx context.Context) StepOutcome { return o.aggregates.BuildDailyTaskMetrics(ctx, batch, batchTime) },
		func(ctx context.Context) StepOutcome { return o.aggregates.BuildUserWorkload(ctx, batch, batchTime) },
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return o.fail(ctx, batch, counts, fmt.Errorf("batch cancelled: %w", err))
		}

		outcome := step(ctx)
		counts.Add(outcome.Counts())
		o.observeStep(outcome)

		if !outcome.Succeeded() {
			return o.fail(ctx, batch, counts, outcome.Err)
		}
	}

	if err := o.ledger.End(ctx, batch.BatchID, domain.BatchCompleted, counts, nil); err != nil {
		return batch, &domain.PersistenceError{Op: "batch ledger finalize", Err: err}
	}
	o.observeBatch(batch, domain.BatchCompleted)
	o.log.Infow("batch completed",
		"batch_id", batch.BatchID,
		"tenant_id", tenantID,
		"processed", counts.Processed,
		"inserted", counts.Inserted,
		"updated", counts.Updated,
		"failed", counts.Failed,
	)

	batch.Status = domain.BatchCompleted
	batch.Counts = counts
	return batch, nil
}

// RunAll executes one batch per tenant in sequence. The first tenant failure
// stops the sweep; completed tenants keep their finalized batches.
func (o *Orchestrator) RunAll(ctx context.Context) ([]domain.BatchRecord, error) {
	tenantIDs, err := o.source.ListTenantIDs(ctx)
	if err != nil {
		return nil, &domain.StructuralError{Op: "tenant discovery", Err: err}
	}

	records := make([]domain.BatchRecord, 0, len(tenantIDs))
	for _, tenantID := range tenantIDs {
		record, err := o.RunForTenant(ctx, tenantID)
		if err != nil {
			return records, fmt.Errorf("tenant %s: %w", tenantID, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (o *Orchestrator) fail(ctx context.Context, batch domain.BatchRecord, counts domain.BatchCounts, cause error) (domain.BatchRecord, error) {
	// The abort may be the caller's own cancellation; the error record and
	// the ledger finalize must still reach the database.
	ctx = context.WithoutCancel(ctx)
	msg := cause.Error()
	o.recorder.Error(ctx, domain.ErrorEntry{
		BatchID:   batch.BatchID,
		Severity:  domain.SeverityCritical,
		ErrorCode: "BATCH_ABORTED",
		Message:   msg,
	})

	if err := o.ledger.End(ctx, batch.BatchID, domain.BatchFailed, counts, &msg); err != nil {
		o.log.Errorw("failed batch could not be finalized",
			"batch_id", batch.BatchID,
			"finalize_error", err,
			"batch_error", msg,
		)
	}
	o.observeBatch(batch, domain.BatchFailed)
	o.log.Errorw("batch failed", "batch_id", batch.BatchID, "tenant_id", batch.TenantID, "error", msg)

	batch.Status = domain.BatchFailed
	batch.Counts = counts
	batch.ErrorMessage = &msg
	return batch, cause
}

func (o *Orchestrator) observeStep(outcome StepOutcome) {
	if o.metrics == nil {
		return
	}
	rows := o.metrics.RowsTotal
	rows.WithLabelValues(outcome.Table, "inserted").Add(float64(outcome.Inserted))
	rows.WithLabelValues(outcome.Table, "updated").Add(float64(outcome.Updated))
	rows.WithLabelValues(outcome.Table, "expired").Add(float64(outcome.Expired))
	rows.WithLabelValues(outcome.Table, "unchanged").Add(float64(outcome.Unchanged))
	rows.WithLabelValues(outcome.Table, "failed").Add(float64(outcome.Failed))
}

func (o *Orchestrator) observeBatch(batch domain.BatchRecord, status domain.BatchStatus) {
	if o.metrics == nil {
		return
	}
	finished := o.now().UTC()
	o.metrics.BatchesTotal.WithLabelValues(string(status)).Inc()
	o.metrics.BatchDuration.Observe(finished.Sub(batch.StartedAt).Seconds())
	o.metrics.LastBatchTimestamp.Set(float64(finished.Unix()))
}
