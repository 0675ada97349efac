package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskfabric/warehouse/internal/domain"
	"github.com/taskfabric/warehouse/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FactSynchronizer maintains the fact tables with SCD Type 1 semantics: new
// source rows insert, drifted rows overwrite in place, unchanged rows are
// skipped. Dimension keys are re-resolved against the current versions on
// every run, so a task fact always points at the latest attribute state.
type FactSynchronizer struct {
	source   repository.SourceRepository
	users    repository.UserDimRepository
	projects repository.ProjectDimRepository
	statuses repository.StatusDimRepository
	prios    repository.PriorityDimRepository
	tasks    repository.TaskFactRepository
	timeLogs repository.TimeLogFactRepository
	recorder *Recorder
	log      *zap.SugaredLogger
	now      func() time.Time
}

// NewFactSynchronizer wires the synchronizer. now may be nil for wall clock.
func NewFactSynchronizer(
	source repository.SourceRepository,
	users repository.UserDimRepository,
	projects repository.ProjectDimRepository,
	statuses repository.StatusDimRepository,
	prios repository.PriorityDimRepository,
	tasks repository.TaskFactRepository,
	timeLogs repository.TimeLogFactRepository,
	recorder *Recorder,
	log *zap.SugaredLogger,
) *FactSynchronizer {
	return &FactSynchronizer{
		source:   source,
		users:    users,
		projects: projects,
		statuses: statuses,
		prios:    prios,
		tasks:    tasks,
		timeLogs: timeLogs,
		recorder: recorder,
		log:      log,
		now:      time.Now,
	}
}

// dimKeys holds the current-version surrogate key maps one sync pass resolves
// against. Missing references fall back to the unknown member.
type dimKeys struct {
	users      map[uuid.UUID]int64
	projects   map[uuid.UUID]int64
	statuses   map[string]int64
	priorities map[string]int64
}

func (k dimKeys) user(id *uuid.UUID) int64 {
	if id == nil {
		return domain.UnknownDimKey
	}
	if key, ok := k.users[*id]; ok {
		return key
	}
	return domain.UnknownDimKey
}

func (k dimKeys) project(id uuid.UUID) int64 {
	if key, ok := k.projects[id]; ok {
		return key
	}
	return domain.UnknownDimKey
}

func (k dimKeys) status(code string) int64 {
	if key, ok := k.statuses[code]; ok {
		return key
	}
	return domain.UnknownDimKey
}

func (k dimKeys) priority(code string) int64 {
	if key, ok := k.priorities[code]; ok {
		return key
	}
	return domain.UnknownDimKey
}

func (s *FactSynchronizer) resolveKeys(ctx context.Context, tenantID uuid.UUID) (dimKeys, error) {
	var keys dimKeys
	var err error

	if keys.users, err = s.users.CurrentKeys(ctx, tenantID); err != nil {
		return keys, &domain.StructuralError{Op: "dim_user key resolution", Err: err}
	}
	if keys.projects, err = s.projects.CurrentKeys(ctx, tenantID); err != nil {
		return keys, &domain.StructuralError{Op: "dim_project key resolution", Err: err}
	}
	if keys.statuses, err = s.statuses.CurrentKeys(ctx); err != nil {
		return keys, &domain.StructuralError{Op: "dim_status key resolution", Err: err}
	}
	if keys.priorities, err = s.prios.CurrentKeys(ctx); err != nil {
		return keys, &domain.StructuralError{Op: "dim_priority key resolution", Err: err}
	}
	return keys, nil
}

// SyncTasks reconciles fact_tasks for one tenant.
func (s *FactSynchronizer) SyncTasks(ctx context.Context, batch domain.BatchRecord) StepOutcome {
	outcome := StepOutcome{Table: "fact_tasks", Operation: domain.OpIncrementalLoad, StartedAt: time.Now().UTC()}
	defer func() { s.recorder.StepAudit(ctx, batch.BatchID, outcome) }()

	sourceTasks, err := s.source.ListTasks(ctx, batch.TenantID)
	if err != nil {
		outcome.Err = &domain.StructuralError{Op: "fact_tasks source read", Err: err}
		outcome.Duration = time.Since(outcome.StartedAt)
		return outcome
	}
	existing, err := s.tasks.ListExisting(ctx, batch.TenantID)
	if err != nil {
		outcome.Err = &domain.StructuralError{Op: "fact_tasks existing read", Err: err}
		outcome.Duration = time.Since(outcome.StartedAt)
		return outcome
	}
	keys, err := s.resolveKeys(ctx, batch.TenantID)
	if err != nil {
		outcome.Err = err
		outcome.Duration = time.Since(outcome.StartedAt)
		return outcome
	}

	now := s.now().UTC()
	for _, src := range sourceTasks {
		outcome.Processed++

		fact, err := s.buildTaskFact(src, batch, keys, now)
		if err != nil {
			var rowErr *domain.RowTransformError
			if errors.As(err, &rowErr) {
				outcome.Failed++
				s.recorder.RowError(ctx, batch.BatchID, rowErr)
				s.log.Warnw("task row skipped", "task_id", src.ID, "error", err)
				continue
			}
			outcome.Err = err
			outcome.Duration = time.Since(outcome.StartedAt)
			return outcome
		}

		prior, exists := existing[src.ID]
		switch {
		case !exists:
			if err := s.tasks.Insert(ctx, fact); err != nil {
				outcome.Err = &domain.StructuralError{Op: "fact_tasks insert", Err: err}
				outcome.Duration = time.Since(outcome.StartedAt)
				return outcome
			}
			outcome.Inserted++
		case fact.Changed(prior):
			if err := s.tasks.Update(ctx, fact); err != nil {
				outcome.Err = &domain.StructuralError{Op: "fact_tasks update", Err: err}
				outcome.Duration = time.Since(outcome.StartedAt)
				return outcome
			}
			outcome.Updated++
		default:
			outcome.Unchanged++
		}
	}

	outcome.Duration = time.Since(outcome.StartedAt)
	return outcome
}

func (s *FactSynchronizer) buildTaskFact(src domain.SourceTask, batch domain.BatchRecord, keys dimKeys, now time.Time) (domain.TaskFact, error) {
	if src.Title == "" {
		return domain.TaskFact{}, &domain.RowTransformError{
			SourceTable: "tasks",
			SourceKey:   src.ID.String(),
			Err:         fmt.Errorf("empty title"),
		}
	}
	if src.CreatedAt.IsZero() {
		return domain.TaskFact{}, &domain.RowTransformError{
			SourceTable: "tasks",
			SourceKey:   src.ID.String(),
			Err:         fmt.Errorf("missing created_at"),
		}
	}

	var dueDateKey *int
	if src.DueDate != nil {
		key := domain.DateKey(*src.DueDate)
		dueDateKey = &key
	}
	isOverdue, daysOverdue := domain.Overdue(now, src.DueDate, src.Status)

	return domain.TaskFact{
		TaskID:          src.ID,
		TenantID:        src.TenantID,
		ProjectKey:      keys.project(src.ProjectID),
		AssigneeKey:     keys.user(src.AssigneeID),
		ReporterKey:     keys.user(src.ReporterID),
		StatusKey:       keys.status(src.Status),
		PriorityKey:     keys.priority(src.Priority),
		CreatedDateKey:  domain.DateKey(src.CreatedAt),
		DueDateKey:      dueDateKey,
		Title:           src.Title,
		EstimatedHours:  src.EstimatedHours,
		ActualHours:     src.ActualHours,
		DaysInState:     domain.DaysInState(now, src.StatusChangedAt),
		IsOverdue:       isOverdue,
		DaysOverdue:     daysOverdue,
		CompletionRatio: domain.CompletionRatio(src.Status, src.EstimatedHours, src.ActualHours),
		SourceUpdatedAt: src.UpdatedAt,
		ETLBatchID:      batch.BatchID,
	}, nil
}

// SyncTimeLogs reconciles fact_time_logs for one tenant.
func (s *FactSynchronizer) SyncTimeLogs(ctx context.Context, batch domain.BatchRecord) StepOutcome {
	outcome := StepOutcome{Table: "fact_time_logs", Operation: domain.OpIncrementalLoad, StartedAt: time.Now().UTC()}
	defer func() { s.recorder.StepAudit(ctx, batch.BatchID, outcome) }()

	sourceEntries, err := s.source.ListTimeEntries(ctx, batch.TenantID)
	if err != nil {
		outcome.Err = &domain.StructuralError{Op: "fact_time_logs source read", Err: err}
		outcome.Duration = time.Since(outcome.StartedAt)
		return outcome
	}
	existing, err := s.timeLogs.ListExisting(ctx, batch.TenantID)
	if err != nil {
		outcome.Err = &domain.StructuralError{Op: "fact_time_logs existing read", Err: err}
		outcome.Duration = time.Since(outcome.StartedAt)
		return outcome
	}
	keys, err := s.resolveKeys(ctx, batch.TenantID)
	if err != nil {
		outcome.Err = err
		outcome.Duration = time.Since(outcome.StartedAt)
		return outcome
	}

	// Time entries reference the project through the task. The task facts
	// synced earlier in the batch already carry the resolved project key, so
	// reuse them instead of issuing a second operational task read.
	taskFacts, err := s.tasks.ListExisting(ctx, batch.TenantID)
	if err != nil {
		outcome.Err = &domain.StructuralError{Op: "fact_time_logs task lookup", Err: err}
		outcome.Duration = time.Since(outcome.StartedAt)
		return outcome
	}
	taskProjects := make(map[uuid.UUID]int64, len(taskFacts))
	for id, fact := range taskFacts {
		taskProjects[id] = fact.ProjectKey
	}

	for _, src := range sourceEntries {
		outcome.Processed++

		fact, err := buildTimeLogFact(src, batch, keys, taskProjects)
		if err != nil {
			var rowErr *domain.RowTransformError
			if errors.As(err, &rowErr) {
				outcome.Failed++
				s.recorder.RowError(ctx, batch.BatchID, rowErr)
				s.log.Warnw("time entry skipped", "time_entry_id", src.ID, "error", err)
				continue
			}
			outcome.Err = err
			outcome.Duration = time.Since(outcome.StartedAt)
			return outcome
		}

		prior, exists := existing[src.ID]
		switch {
		case !exists:
			if err := s.timeLogs.Insert(ctx, fact); err != nil {
				outcome.Err = &domain.StructuralError{Op: "fact_time_logs insert", Err: err}
				outcome.Duration = time.Since(outcome.StartedAt)
				return outcome
			}
			outcome.Inserted++
		case fact.Changed(prior):
			if err := s.timeLogs.Update(ctx, fact); err != nil {
				outcome.Err = &domain.StructuralError{Op: "fact_time_logs update", Err: err}
				outcome.Duration = time.Since(outcome.StartedAt)
				return outcome
			}
			outcome.Updated++
		default:
			outcome.Unchanged++
		}
	}

	outcome.Duration = time.Since(outcome.StartedAt)
	return outcome
}

func buildTimeLogFact(src domain.SourceTimeEntry, batch domain.BatchRecord, keys dimKeys, taskProjects map[uuid.UUID]int64) (domain.TimeLogFact, error) {
	if src.Hours <= 0 {
		return domain.TimeLogFact{}, &domain.RowTransformError{
			SourceTable: "time_entries",
			SourceKey:   src.ID.String(),
			Err:         fmt.Errorf("non-positive hours %.2f", src.Hours),
		}
	}
	if src.EntryDate.IsZero() {
		return domain.TimeLogFact{}, &domain.RowTransformError{
			SourceTable: "time_entries",
			SourceKey:   src.ID.String(),
			Err:         fmt.Errorf("missing entry_date"),
		}
	}

	projectKey := domain.UnknownDimKey
	if key, ok := taskProjects[src.TaskID]; ok {
		projectKey = key
	}

	// date_key and entry_date must describe the same UTC day regardless of
	// the source timestamp's zone.
	entryDate := src.EntryDate.UTC().Truncate(24 * time.Hour)
	return domain.TimeLogFact{
		TimeEntryID: src.ID,
		TenantID:    src.TenantID,
		TaskID:      src.TaskID,
		UserKey:     keys.user(&src.UserID),
		ProjectKey:  projectKey,
		DateKey:     domain.DateKey(entryDate),
		EntryDate:   entryDate,
		Hours:       src.Hours,
		ETLBatchID:  batch.BatchID,
	}, nil
}
