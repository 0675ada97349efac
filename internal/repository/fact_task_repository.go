package repository

import (
	"context"
	"fmt"

	"github.com/taskfabric/warehouse/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type taskFactRepository struct {
	pool *pgxpool.Pool
}

// NewTaskFactRepository wires the task fact repository.
func NewTaskFactRepository(pool *pgxpool.Pool) TaskFactRepository {
	return &taskFactRepository{pool: pool}
}

func (r *taskFactRepository) ListExisting(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]domain.TaskFact, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT task_fact_key, task_id, tenant_id, project_key, assignee_key, reporter_key,
		        status_key, priority_key, created_date_key, due_date_key, title,
		        estimated_hours, actual_hours, days_in_state, is_overdue, days_overdue,
		        completion_ratio, source_updated_at, etl_batch_id
		 FROM fact_tasks
		 WHERE tenant_id = $1`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list task facts: %w", err)
	}
	defer rows.Close()

	facts := map[uuid.UUID]domain.TaskFact{}
	for rows.Next() {
		var (
			fact            domain.TaskFact
			dueDateKey      pgtype.Int4
			estimatedHours  pgtype.Float8
			actualHours     pgtype.Float8
			completionRatio float64
		)
		if scanErr := rows.Scan(
			&fact.TaskFactKey,
			&fact.TaskID,
			&fact.TenantID,
			&fact.ProjectKey,
			&fact.AssigneeKey,
			&fact.ReporterKey,
			&fact.StatusKey,
			&fact.PriorityKey,
			&fact.CreatedDateKey,
			&dueDateKey,
			&fact.Title,
			&estimatedHours,
			&actualHours,
			&fact.DaysInState,
			&fact.IsOverdue,
			&fact.DaysOverdue,
			&completionRatio,
			&fact.SourceUpdatedAt,
			&fact.ETLBatchID,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan task fact: %w", scanErr)
		}

		if dueDateKey.Valid {
			v := int(dueDateKey.Int32)
			fact.DueDateKey = &v
		}
		if estimatedHours.Valid {
			v := estimatedHours.Float64
			fact.EstimatedHours = &v
		}
		if actualHours.Valid {
			v := actualHours.Float64
			fact.ActualHours = &v
		}
		fact.CompletionRatio = completionRatio

		facts[fact.TaskID] = fact
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate task facts: %w", rowsErr)
	}

	return facts, nil
}

func (r *taskFactRepository) Insert(ctx context.Context, fact domain.TaskFact) error {
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO fact_tasks (task_id, tenant_id, project_key, assignee_key, reporter_key,
		                         status_key, priority_key, created_date_key, due_date_key, title,
		                         estimated_hours, actual_hours, days_in_state, is_overdue,
		                         days_overdue, completion_ratio, source_updated_at, etl_batch_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		fact.TaskID,
		fact.TenantID,
		fact.ProjectKey,
		fact.AssigneeKey,
		fact.ReporterKey,
		fact.StatusKey,
		fact.PriorityKey,
		fact.CreatedDateKey,
		fact.DueDateKey,
		fact.Title,
		fact.EstimatedHours,
		fact.ActualHours,
		fact.DaysInState,
		fact.IsOverdue,
		fact.DaysOverdue,
		fact.CompletionRatio,
		fact.SourceUpdatedAt,
		fact.ETLBatchID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task fact: %w", err)
	}

	return nil
}

func (r *taskFactRepository) Update(ctx context.Context, fact domain.TaskFact) error {
	// updated_at is touched explicitly by this write path; the table carries
	// no update triggers.
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE fact_tasks
		 SET project_key = $2, assignee_key = $3, reporter_key = $4, status_key = $5,
		     priority_key = $6, created_date_key = $7, due_date_key = $8, title = $9,
		     estimated_hours = $10, actual_hours = $11, days_in_state = $12,
		     is_overdue = $13, days_overdue = $14, completion_ratio = $15,
		     source_updated_at = $16, etl_batch_id = $17, updated_at = now()
		 WHERE task_id = $1`,
		fact.TaskID,
		fact.ProjectKey,
		fact.AssigneeKey,
		fact.ReporterKey,
		fact.StatusKey,
		fact.PriorityKey,
		fact.CreatedDateKey,
		fact.DueDateKey,
		fact.Title,
		fact.EstimatedHours,
		fact.ActualHours,
		fact.DaysInState,
		fact.IsOverdue,
		fact.DaysOverdue,
		fact.CompletionRatio,
		fact.SourceUpdatedAt,
		fact.ETLBatchID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task fact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task fact %s: %w", fact.TaskID, domain.ErrNotFound)
	}

	return nil
}
