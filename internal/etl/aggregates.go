package etl

import (
	"context"
	"time"

	"github.com/taskfabric/warehouse/internal/domain"
	"github.com/taskfabric/warehouse/internal/repository"

	"go.uber.org/zap"
)

// AggregateBuilder rebuilds the pre-computed rollups from current fact state.
// Rebuilds use replace semantics, so re-running a batch day converges to the
// same rows.
type AggregateBuilder struct {
	repo     repository.AggregateRepository
	recorder *Recorder
	log      *zap.SugaredLogger
}

// NewAggregateBuilder wires the aggregate builder.
func NewAggregateBuilder(repo repository.AggregateRepository, recorder *Recorder, log *zap.SugaredLogger) *AggregateBuilder {
	return &AggregateBuilder{repo: repo, recorder: recorder, log: log}
}

// BuildDailyTaskMetrics recomputes agg_daily_task_metrics for the batch day.
func (b *AggregateBuilder) BuildDailyTaskMetrics(ctx context.Context, batch domain.BatchRecord, batchTime time.Time) StepOutcome {
	outcome := StepOutcome{Table: "agg_daily_task_metrics", Operation: domain.OpAggregate, StartedAt: time.Now().UTC()}

	rows, err := b.repo.RebuildDailyTaskMetrics(ctx, batch.TenantID, domain.DateKey(batchTime), batchTime)
	outcome.Processed = rows
	outcome.Inserted = rows
	if err != nil {
		outcome.Inserted = 0
		outcome.Err = &domain.StructuralError{Op: "daily task metrics rebuild", Err: err}
	}

	outcome.Duration = time.Since(outcome.StartedAt)
	b.recorder.StepAudit(ctx, batch.BatchID, outcome)
	return outcome
}

// BuildUserWorkload recomputes agg_user_workload for the batch day.
func (b *AggregateBuilder) BuildUserWorkload(ctx context.Context, batch domain.BatchRecord, batchTime time.Time) StepOutcome {
	outcome := StepOutcome{Table: "agg_user_workload", Operation: domain.OpAggregate, StartedAt: time.Now().UTC()}

	rows, err := b.repo.RebuildUserWorkload(ctx, batch.TenantID, domain.DateKey(batchTime), batchTime)
	outcome.Processed = rows
	outcome.Inserted = rows
	if err != nil {
		outcome.Inserted = 0
		outcome.Err = &domain.StructuralError{Op: "user workload rebuild", Err: err}
	}

	outcome.Duration = time.Since(outcome.StartedAt)
	b.recorder.StepAudit(ctx, batch.BatchID, outcome)
	return outcome
}
