package etl

import (
	"context"
	"time"

	"github.com/taskfabric/warehouse/internal/domain"
	"github.com/taskfabric/warehouse/internal/repository"

	"github.com/google/uuid"
)

// Ledger owns the batch log: every warehouse mutation in a batch references the
// ledger row it belongs to, so provenance is reconstructible afterwards.
type Ledger struct {
	repo repository.BatchLogRepository
	now  func() time.Time
}

// NewLedger wires the batch ledger service.
func NewLedger(repo repository.BatchLogRepository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Begin creates a running ledger row and returns it.
func (l *Ledger) Begin(ctx context.Context, tenantID uuid.UUID, sourceSystem string) (domain.BatchRecord, error) {
	record := domain.NewBatchRecord(tenantID, sourceSystem, l.now().UTC())
	if err := l.repo.Create(ctx, record); err != nil {
		return domain.BatchRecord{}, err
	}
	return record, nil
}

// End finalizes the ledger row exactly once. A second call fails with
// domain.ErrInvalidState; an unknown batch id with domain.ErrNotFound.
func (l *Ledger) End(ctx context.Context, batchID uuid.UUID, status domain.BatchStatus, counts domain.BatchCounts, errorMessage *string) error {
	return l.repo.Finalize(ctx, batchID, status, counts, errorMessage, l.now().UTC())
}

// AcquireRunLock takes the single-writer lock for the warehouse.
func (l *Ledger) AcquireRunLock(ctx context.Context) (func(), error) {
	return l.repo.AcquireRunLock(ctx)
}

// Latest returns the most recently started batch.
func (l *Ledger) Latest(ctx context.Context) (domain.BatchRecord, error) {
	return l.repo.Latest(ctx)
}

// History returns the batches started within the last N hours, newest first.
func (l *Ledger) History(ctx context.Context, hours int) ([]domain.BatchRecord, error) {
	if hours <= 0 {
		hours = 24
	}
	since := l.now().UTC().Add(-time.Duration(hours) * time.Hour)
	return l.repo.History(ctx, since)
}
