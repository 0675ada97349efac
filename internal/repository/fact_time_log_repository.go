package repository

import (
	"context"
	"fmt"

	"github.com/taskfabric/warehouse/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type timeLogFactRepository struct {
	pool *pgxpool.Pool
}

// NewTimeLogFactRepository wires the time log fact repository.
func NewTimeLogFactRepository(pool *pgxpool.Pool) TimeLogFactRepository {
	return &timeLogFactRepository{pool: pool}
}

func (r *timeLogFactRepository) ListExisting(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]domain.TimeLogFact, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT time_log_key, time_entry_id, tenant_id, task_id, user_key, project_key,
		        date_key, entry_date, hours, etl_batch_id
		 FROM fact_time_logs
		 WHERE tenant_id = $1`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list time log facts: %w", err)
	}
	defer rows.Close()

	facts := map[uuid.UUID]domain.TimeLogFact{}
	for rows.Next() {
		var fact domain.TimeLogFact
		if scanErr := rows.Scan(
			&fact.TimeLogKey,
			&fact.TimeEntryID,
			&fact.TenantID,
			&fact.TaskID,
			&fact.UserKey,
			&fact.ProjectKey,
			&fact.DateKey,
			&fact.EntryDate,
			&fact.Hours,
			&fact.ETLBatchID,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan time log fact: %w", scanErr)
		}
		facts[fact.TimeEntryID] = fact
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate time log facts: %w", rowsErr)
	}

	return facts, nil
}

func (r *timeLogFactRepository) Insert(ctx context.Context, fact domain.TimeLogFact) error {
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO fact_time_logs (time_entry_id, tenant_id, task_id, user_key, project_key,
		                             date_key, entry_date, hours, etl_batch_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		fact.TimeEntryID,
		fact.TenantID,
		fact.TaskID,
		fact.UserKey,
		fact.ProjectKey,
		fact.DateKey,
		fact.EntryDate,
		fact.Hours,
		fact.ETLBatchID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert time log fact: %w", err)
	}

	return nil
}

func (r *timeLogFactRepository) Update(ctx context.Context, fact domain.TimeLogFact) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE fact_time_logs
		 SET user_key = $2, project_key = $3, date_key = $4, entry_date = $5,
		     hours = $6, etl_batch_id = $7, updated_at = now()
		 WHERE time_entry_id = $1`,
		fact.TimeEntryID,
		fact.UserKey,
		fact.ProjectKey,
		fact.DateKey,
		fact.EntryDate,
		fact.Hours,
		fact.ETLBatchID,
	)
	if err != nil {
		return fmt.Errorf("failed to update time log fact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("time log fact %s: %w", fact.TimeEntryID, domain.ErrNotFound)
	}

	return nil
}
