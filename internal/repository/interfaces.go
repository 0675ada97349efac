package repository

import (
	"context"
	"time"

	"github.com/taskfabric/warehouse/internal/domain"

	"github.com/google/uuid"
)

// DimExpiry identifies the current dimension row to expire, keyed by business
// key plus version so a concurrent writer cannot expire a different row.
type DimExpiry[K comparable] struct {
	Key       K
	Version   int
	ExpiresAt time.Time
}

// BatchLogRepository owns the batch ledger rows.
type BatchLogRepository interface {
	Create(ctx context.Context, record domain.BatchRecord) error
	// Finalize ends a running batch. Returns domain.ErrNotFound for an unknown
	// id and domain.ErrInvalidState when the batch was already finalized.
	Finalize(ctx context.Context, batchID uuid.UUID, status domain.BatchStatus, counts domain.BatchCounts, errorMessage *string, finishedAt time.Time) error
	GetByID(ctx context.Context, batchID uuid.UUID) (domain.BatchRecord, error)
	Latest(ctx context.Context) (domain.BatchRecord, error)
	History(ctx context.Context, since time.Time) ([]domain.BatchRecord, error)
	// AcquireRunLock takes the single-writer advisory lock. Returns
	// domain.ErrConcurrentBatch when another batch holds it; the returned
	// release func must be called when the batch ends.
	AcquireRunLock(ctx context.Context) (release func(), err error)
}

// AuditLogRepository persists per-step audit entries and structured errors.
type AuditLogRepository interface {
	RecordAudit(ctx context.Context, entry domain.AuditEntry) (int64, error)
	RecordError(ctx context.Context, entry domain.ErrorEntry) (int64, error)
	ListAudits(ctx context.Context, batchID uuid.UUID) ([]domain.AuditEntry, error)
	ListErrors(ctx context.Context, batchID uuid.UUID) ([]domain.ErrorEntry, error)
}

// UserDimRepository maintains the SCD Type 2 user dimension.
type UserDimRepository interface {
	ListCurrent(ctx context.Context, tenantID uuid.UUID) ([]domain.DimUser, error)
	// Reconcile applies one business key's expire-then-insert as a single
	// transaction. Either argument may be nil: expire-only tombstones an
	// upstream delete, insert-only registers a new business key.
	Reconcile(ctx context.Context, expire *DimExpiry[uuid.UUID], insert *domain.DimUser) error
	CurrentKeys(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]int64, error)
	// MaxVersion returns the highest version ever recorded for the business
	// key, 0 when the key is unseen. Keeps version numbering monotonic when a
	// tombstoned key reappears.
	MaxVersion(ctx context.Context, key uuid.UUID) (int, error)
}

// ProjectDimRepository maintains the SCD Type 2 project dimension.
type ProjectDimRepository interface {
	ListCurrent(ctx context.Context, tenantID uuid.UUID) ([]domain.DimProject, error)
	Reconcile(ctx context.Context, expire *DimExpiry[uuid.UUID], insert *domain.DimProject) error
	CurrentKeys(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]int64, error)
	MaxVersion(ctx context.Context, key uuid.UUID) (int, error)
}

// StatusDimRepository maintains the SCD Type 2 status dimension. Status codes
// are source-system wide, so no tenant scope applies.
type StatusDimRepository interface {
	ListCurrent(ctx context.Context) ([]domain.DimStatus, error)
	Reconcile(ctx context.Context, expire *DimExpiry[string], insert *domain.DimStatus) error
	CurrentKeys(ctx context.Context) (map[string]int64, error)
	MaxVersion(ctx context.Context, key string) (int, error)
}

// PriorityDimRepository maintains the SCD Type 2 priority dimension.
type PriorityDimRepository interface {
	ListCurrent(ctx context.Context) ([]domain.DimPriority, error)
	Reconcile(ctx context.Context, expire *DimExpiry[string], insert *domain.DimPriority) error
	CurrentKeys(ctx context.Context) (map[string]int64, error)
	MaxVersion(ctx context.Context, key string) (int, error)
}

// DateDimRepository loads the calendar dimension.
type DateDimRepository interface {
	// EnsureRange inserts every missing day in [from, to] and returns the
	// number of rows added.
	EnsureRange(ctx context.Context, from, to time.Time) (int, error)
}

// TaskFactRepository owns the task fact table.
type TaskFactRepository interface {
	ListExisting(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]domain.TaskFact, error)
	Insert(ctx context.Context, fact domain.TaskFact) error
	Update(ctx context.Context, fact domain.TaskFact) error
}

// TimeLogFactRepository owns the time log fact table.
type TimeLogFactRepository interface {
	ListExisting(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]domain.TimeLogFact, error)
	Insert(ctx context.Context, fact domain.TimeLogFact) error
	Update(ctx context.Context, fact domain.TimeLogFact) error
}

// AggregateRepository rebuilds the pre-computed rollups with replace semantics.
type AggregateRepository interface {
	// RebuildDailyTaskMetrics recomputes agg_daily_task_metrics for the tenant
	// at dateKey from current fact state and returns the row count written.
	RebuildDailyTaskMetrics(ctx context.Context, tenantID uuid.UUID, dateKey int, computedAt time.Time) (int, error)
	// RebuildUserWorkload recomputes agg_user_workload for the tenant at
	// dateKey and returns the row count written.
	RebuildUserWorkload(ctx context.Context, tenantID uuid.UUID, dateKey int, computedAt time.Time) (int, error)
}

// SourceRepository is the read-only view of the operational schema.
type SourceRepository interface {
	ListTenantIDs(ctx context.Context) ([]uuid.UUID, error)
	ListUsers(ctx context.Context, tenantID uuid.UUID) ([]domain.SourceUser, error)
	ListProjects(ctx context.Context, tenantID uuid.UUID) ([]domain.SourceProject, error)
	ListTasks(ctx context.Context, tenantID uuid.UUID) ([]domain.SourceTask, error)
	ListTimeEntries(ctx context.Context, tenantID uuid.UUID) ([]domain.SourceTimeEntry, error)
}
