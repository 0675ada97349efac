package etl

import (
	"context"
	"time"

	"github.com/taskfabric/warehouse/internal/domain"
	"github.com/taskfabric/warehouse/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DimensionVersioner reconciles each dimension table against its operational
// source with SCD Type 2 semantics: drift candidates are expired, new versions
// inserted, and a source snapshot applied twice converges to a fixed point.
type DimensionVersioner struct {
	source     repository.SourceRepository
	users      repository.UserDimRepository
	projects   repository.ProjectDimRepository
	statuses   repository.StatusDimRepository
	priorities repository.PriorityDimRepository
	dates      repository.DateDimRepository
	recorder   *Recorder
	log        *zap.SugaredLogger
}

// NewDimensionVersioner wires the versioner.
func NewDimensionVersioner(
	source repository.SourceRepository,
	users repository.UserDimRepository,
	projects repository.ProjectDimRepository,
	statuses repository.StatusDimRepository,
	priorities repository.PriorityDimRepository,
	dates repository.DateDimRepository,
	recorder *Recorder,
	log *zap.SugaredLogger,
) *DimensionVersioner {
	return &DimensionVersioner{
		source:     source,
		users:      users,
		projects:   projects,
		statuses:   statuses,
		priorities: priorities,
		dates:      dates,
		recorder:   recorder,
		log:        log,
	}
}

// expiryOffset keeps an expired version strictly before its successor's
// effective time so validity windows never overlap.
const expiryOffset = time.Second

// LoadDates range-loads the calendar dimension. Calendar attributes never
// change, so this is a plain idempotent load, not an SCD2 reconciliation.
func (v *DimensionVersioner) LoadDates(ctx context.Context, batch domain.BatchRecord, from, to time.Time) StepOutcome {
	outcome := StepOutcome{Table: "dim_date", Operation: domain.OpLoad, StartedAt: time.Now().UTC()}

	inserted, err := v.dates.EnsureRange(ctx, from, to)
	outcome.Inserted = inserted
	outcome.Processed = inserted
	if err != nil {
		outcome.Err = &domain.StructuralError{Op: "dim_date load", Err: err}
	}

	outcome.Duration = time.Since(outcome.StartedAt)
	v.recorder.StepAudit(ctx, batch.BatchID, outcome)
	return outcome
}

// SyncUsers reconciles the user dimension for one tenant.
func (v *DimensionVersioner) SyncUsers(ctx context.Context, batch domain.BatchRecord, batchTime time.Time) StepOutcome {
	outcome := StepOutcome{Table: "dim_user", Operation: domain.OpScd2Load, StartedAt: time.Now().UTC()}
	defer func() { v.recorder.StepAudit(ctx, batch.BatchID, outcome) }()

	sourceUsers, err := v.source.ListUsers(ctx, batch.TenantID)
	if err != nil {
		outcome.Err = &domain.StructuralError{Op: "dim_user source read", Err: err}
		outcome.Duration = time.Since(outcome.StartedAt)
		return outcome
	}
	current, err := v.users.ListCurrent(ctx, batch.TenantID)
	if err != nil {
		outcome.Err = &domain.StructuralError{Op: "dim_user current read", Err: err}
		outcome.Duration = time.Since(outcome.StartedAt)
		return outcome
	}

	bySource := make(map[uuid.UUID]domain.SourceUser, len(sourceUsers))
	for _, u := range sourceUsers {
		bySource[u.ID] = u
	}
	seen := make(map[uuid.UUID]bool, len(current))
	expiresAt := batchTime.Add(-expiryOffset)

	for _, row := range current {
		seen[row.UserID] = true
		outcome.Processed++

		src, exists := bySource[row.UserID]
		switch {
		case !exists:
			// Deleted upstream: tombstone, no replacement version.
			expire := &repository.DimExpiry[uuid.UUID]{Key: row.UserID, Version: row.Version, ExpiresAt: expiresAt}
			if err := v.users.Reconcile(ctx, expire, nil); err != nil {
				outcome.Err = err
				outcome.Duration = time.Since(outcome.StartedAt)
				return outcome
			}
			outcome.Expired++
		case row.Changed(src):
			expire := &repository.DimExpiry[uuid.UUID]{Key: row.UserID, Version: row.Version, ExpiresAt: expiresAt}
			insert := newDimUser(src, batch, batchTime, row.Version+1)
			if err := v.users.Reconcile(ctx, expire, &insert); err != nil {
				outcome.Err = err
				outcome.Duration = time.Since(outcome.StartedAt)
				return outcome
			}
			outcome.Updated++
		default:
			outcome.Unchanged++
		}
	}

	for _, src := range sourceUsers {
		if seen[src.ID] {
			continue
		}
		outcome.Processed++
		prior, err := v.users.MaxVersion(ctx, src.ID)
		if err != nil {
			outcome.Err = err
			outcome.Duration = time.Since(outcome.StartedAt)
			return outcome
		}
		insert := newDimUser(src, batch, batchTime, prior+1)
		if err := v.users.Reconcile(ctx, nil, &insert); err != nil {
			outcome.Err = err
			outcome.Duration = time.Since(outcome.StartedAt)
			return outcome
		}
		outcome.Inserted++
	}

	outcome.Duration = time.Since(outcome.StartedAt)
	return outcome
}

// SyncProjects reconciles the project dimension for one tenant.
func (v *DimensionVersioner) SyncProjects(ctx context.Context, batch domain.BatchRecord, batchTime time.Time) StepOutcome {
	outcome := StepOutcome{Table: "dim_project", Operation: domain.OpScd2Load, StartedAt: time.Now().UTC()}
	defer func() { v.recorder.StepAudit(ctx, batch.BatchID, outcome) }()

	sourceProjects, err := v.source.ListProjects(ctx, batch.TenantID)
	if err != nil {
		outcome.Err = &domain.StructuralError{Op: "dim_project source read", Err: err}
		outcome.Duration = time.Since(outcome.StartedAt)
		return outcome
	}
	current, err := v.projects.ListCurrent(ctx, batch.TenantID)
	if err != nil {
		outcome.Err = &domain.StructuralError{Op: "dim_project current read", Err: err}
		outcome.Duration = time.Since(outcome.StartedAt)
		return outcome
	}

	bySource := make(map[uuid.UUID]domain.SourceProject, len(sourceProjects))
	for _, p := range sourceProjects {
		bySource[p.ID] = p
	}
	seen := make(map[uuid.UUID]bool, len(current))
	expiresAt := batchTime.Add(-expiryOffset)

	for _, row := range current {
		seen[row.ProjectID] = true
		outcome.Processed++

		src, exists := bySource[row.ProjectID]
		switch {
		case !exists:
			expire := &repository.DimExpiry[uuid.UUID]{Key: row.ProjectID, Version: row.Version, ExpiresAt: expiresAt}
			if err := v.projects.Reconcile(ctx, expire, nil); err != nil {
				outcome.Err = err
				outcome.Duration = time.Since(outcome.StartedAt)
				return outcome
			}
			outcome.Expired++
		case row.Changed(src):
			expire := &repository.DimExpiry[uuid.UUID]{Key: row.ProjectID, Version: row.Version, ExpiresAt: expiresAt}
			insert := newDimProject(src, batch, batchTime, row.Version+1)
			if err := v.projects.Reconcile(ctx, expire, &insert); err != nil {
				outcome.Err = err
				outcome.Duration = time.Since(outcome.StartedAt)
				return outcome
			}
			outcome.Updated++
		default:
			outcome.Unchanged++
		}
	}

	for _, src := range sourceProjects {
		if seen[src.ID] {
			continue
		}
		outcome.Processed++
		prior, err := v.projects.MaxVersion(ctx, src.ID)
		if err != nil {
			outcome.Err = err
			outcome.Duration = time.Since(outcome.StartedAt)
			return outcome
		}
		insert := newDimProject(src, batch, batchTime, prior+1)
		if err := v.projects.Reconcile(ctx, nil, &insert); err != nil {
			outcome.Err = err
			outcome.Duration = time.Since(outcome.StartedAt)
			return outcome
		}
		outcome.Inserted++
	}

	outcome.Duration = time.Since(outcome.StartedAt)
	return outcome
}

// SyncStatuses reconciles the status dimension against the lifecycle catalog.
// The catalog is source-system wide; deletions never occur, but attribute
// changes (renames, terminality) version like any other drift.
func (v *DimensionVersioner) SyncStatuses(ctx context.Context, batch domain.BatchRecord, batchTime time.Time) StepOutcome {
	outcome := StepOutcome{Table: "dim_status", Operation: domain.OpScd2Load, StartedAt: time.Now().UTC()}
	defer func() { v.recorder.StepAudit(ctx, batch.BatchID, outcome) }()

	catalog := domain.StatusCatalog()
	current, err := v.statuses.ListCurrent(ctx)
	if err != nil {
		outcome.Err = &domain.StructuralError{Op: "dim_status current read", Err: err}
		outcome.Duration = time.Since(outcome.StartedAt)
		return outcome
	}

	byCode := make(map[string]domain.StatusDef, len(catalog))
	for _, def := range catalog {
		byCode[def.Code] = def
	}
	seen := make(map[string]bool, len(current))
	expiresAt := batchTime.Add(-expiryOffset)

	for _, row := range current {
		seen[row.StatusCode] = true
		outcome.Processed++

		def, exists := byCode[row.StatusCode]
		switch {
		case !exists:
			expire := &repository.DimExpiry[string]{Key: row.StatusCode, Version: row.Version, ExpiresAt: expiresAt}
			if err := v.statuses.Reconcile(ctx, expire, nil); err != nil {
				outcome.Err = err
				outcome.Duration = time.Since(outcome.StartedAt)
				return outcome
			}
			outcome.Expired++
		case row.Changed(def):
			expire := &repository.DimExpiry[string]{Key: row.StatusCode, Version: row.Version, ExpiresAt: expiresAt}
			insert := newDimStatus(def, batch, batchTime, row.Version+1)
			if err := v.statuses.Reconcile(ctx, expire, &insert); err != nil {
				outcome.Err = err
				outcome.Duration = time.Since(outcome.StartedAt)
				return outcome
			}
			outcome.Updated++
		default:
			outcome.Unchanged++
		}
	}

	for _, def := range catalog {
		if seen[def.Code] {
			continue
		}
		outcome.Processed++
		prior, err := v.statuses.MaxVersion(ctx, def.Code)
		if err != nil {
			outcome.Err = err
			outcome.Duration = time.Since(outcome.StartedAt)
			return outcome
		}
		insert := newDimStatus(def, batch, batchTime, prior+1)
		if err := v.statuses.Reconcile(ctx, nil, &insert); err != nil {
			outcome.Err = err
			outcome.Duration = time.Since(outcome.StartedAt)
			return outcome
		}
		outcome.Inserted++
	}

	outcome.Duration = time.Since(outcome.StartedAt)
	return outcome
}

// SyncPriorities reconciles the priority dimension against the catalog.
func (v *DimensionVersioner) SyncPriorities(ctx context.Context, batch domain.BatchRecord, batchTime time.Time) StepOutcome {
	outcome := StepOutcome{Table: "dim_priority", Operation: domain.OpScd2Load, StartedAt: time.Now().UTC()}
	defer func() { v.recorder.StepAudit(ctx, batch.BatchID, outcome) }()

	catalog := domain.PriorityCatalog()
	current, err := v.priorities.ListCurrent(ctx)
	if err != nil {
		outcome.Err = &domain.StructuralError{Op: "dim_priority current read", Err: err}
		outcome.Duration = time.Since(outcome.StartedAt)
		return outcome
	}

	byCode := make(map[string]domain.PriorityDef, len(catalog))
	for _, def := range catalog {
		byCode[def.Code] = def
	}
	seen := make(map[string]bool, len(current))
	expiresAt := batchTime.Add(-expiryOffset)

	for _, row := range current {
		seen[row.PriorityCode] = true
		outcome.Processed++

		def, exists := byCode[row.PriorityCode]
		switch {
		case !exists:
			expire := &repository.DimExpiry[string]{Key: row.PriorityCode, Version: row.Version, ExpiresAt: expiresAt}
			if err := v.priorities.Reconcile(ctx, expire, nil); err != nil {
				outcome.Err = err
				outcome.Duration = time.Since(outcome.StartedAt)
				return outcome
			}
			outcome.Expired++
		case row.Changed(def):
			expire := &repository.DimExpiry[string]{Key: row.PriorityCode, Version: row.Version, ExpiresAt: expiresAt}
			insert := newDimPriority(def, batch, batchTime, row.Version+1)
			if err := v.priorities.Reconcile(ctx, expire, &insert); err != nil {
				outcome.Err = err
				outcome.Duration = time.Since(outcome.StartedAt)
				return outcome
			}
			outcome.Updated++
		default:
			outcome.Unchanged++
		}
	}

	for _, def := range catalog {
		if seen[def.Code] {
			continue
		}
		outcome.Processed++
		prior, err := v.priorities.MaxVersion(ctx, def.Code)
		if err != nil {
			outcome.Err = err
			outcome.Duration = time.Since(outcome.StartedAt)
			return outcome
		}
		insert := newDimPriority(def, batch, batchTime, prior+1)
		if err := v.priorities.Reconcile(ctx, nil, &insert); err != nil {
			outcome.Err = err
			outcome.Duration = time.Since(outcome.StartedAt)
			return outcome
		}
		outcome.Inserted++
	}

	outcome.Duration = time.Since(outcome.StartedAt)
	return outcome
}

func newDimUser(src domain.SourceUser, batch domain.BatchRecord, batchTime time.Time, version int) domain.DimUser {
	return domain.DimUser{
		UserID:   src.ID,
		TenantID: src.TenantID,
		Email:    src.Email,
		FullName: src.FullName,
		Role:     src.Role,
		IsActive: src.IsActive,
		DimVersion: domain.DimVersion{
			EffectiveFrom: batchTime,
			IsCurrent:     true,
			Version:       version,
			SourceSystem:  batch.SourceSystem,
			ETLBatchID:    batch.BatchID,
		},
	}
}

func newDimProject(src domain.SourceProject, batch domain.BatchRecord, batchTime time.Time, version int) domain.DimProject {
	return domain.DimProject{
		ProjectID: src.ID,
		TenantID:  src.TenantID,
		Name:      src.Name,
		Status:    src.Status,
		OwnerID:   src.OwnerID,
		StartsOn:  src.StartsOn,
		EndsOn:    src.EndsOn,
		DimVersion: domain.DimVersion{
			EffectiveFrom: batchTime,
			IsCurrent:     true,
			Version:       version,
			SourceSystem:  batch.SourceSystem,
			ETLBatchID:    batch.BatchID,
		},
	}
}

func newDimStatus(def domain.StatusDef, batch domain.BatchRecord, batchTime time.Time, version int) domain.DimStatus {
	return domain.DimStatus{
		StatusCode: def.Code,
		StatusName: def.Name,
		IsTerminal: def.IsTerminal,
		SortOrder:  def.SortOrder,
		DimVersion: domain.DimVersion{
			EffectiveFrom: batchTime,
			IsCurrent:     true,
			Version:       version,
			SourceSystem:  batch.SourceSystem,
			ETLBatchID:    batch.BatchID,
		},
	}
}

func newDimPriority(def domain.PriorityDef, batch domain.BatchRecord, batchTime time.Time, version int) domain.DimPriority {
	return domain.DimPriority{
		PriorityCode: def.Code,
		PriorityName: def.Name,
		SortOrder:    def.SortOrder,
		DimVersion: domain.DimVersion{
			EffectiveFrom: batchTime,
			IsCurrent:     true,
			Version:       version,
			SourceSystem:  batch.SourceSystem,
			ETLBatchID:    batch.BatchID,
		},
	}
}
