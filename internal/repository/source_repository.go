package repository

import (
	"context"
	"fmt"

	"github.com/taskfabric/warehouse/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// sourceRepository reads the operational schema. Strictly read-only: no method
// here issues anything but SELECTs.
type sourceRepository struct {
	pool *pgxpool.Pool
}

// NewSourceRepository wires the read-only operational source.
func NewSourceRepository(pool *pgxpool.Pool) SourceRepository {
	return &sourceRepository{pool: pool}
}

func (r *sourceRepository) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", scanErr)
		}
		ids = append(ids, id)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", rowsErr)
	}

	return ids, nil
}

func (r *sourceRepository) ListUsers(ctx context.Context, tenantID uuid.UUID) ([]domain.SourceUser, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, tenant_id, email, full_name, role, is_active
		 FROM users
		 WHERE tenant_id = $1`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list source users: %w", err)
	}
	defer rows.Close()

	var users []domain.SourceUser
	for rows.Next() {
		var user domain.SourceUser
		if scanErr := rows.Scan(&user.ID, &user.TenantID, &user.Email, &user.FullName, &user.Role, &user.IsActive); scanErr != nil {
			return nil, fmt.Errorf("failed to scan source user: %w", scanErr)
		}
		users = append(users, user)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate source users: %w", rowsErr)
	}

	return users, nil
}

func (r *sourceRepository) ListProjects(ctx context.Context, tenantID uuid.UUID) ([]domain.SourceProject, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, tenant_id, name, status, owner_id, starts_on, ends_on
		 FROM projects
		 WHERE tenant_id = $1`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list source projects: %w", err)
	}
	defer rows.Close()

	var projects []domain.SourceProject
	for rows.Next() {
		var (
			project  domain.SourceProject
			ownerID  pgtype.UUID
			startsOn pgtype.Date
			endsOn   pgtype.Date
		)
		if scanErr := rows.Scan(&project.ID, &project.TenantID, &project.Name, &project.Status, &ownerID, &startsOn, &endsOn); scanErr != nil {
			return nil, fmt.Errorf("failed to scan source project: %w", scanErr)
		}
		if ownerID.Valid {
			id := uuid.UUID(ownerID.Bytes)
			project.OwnerID = &id
		}
		if startsOn.Valid {
			t := startsOn.Time
			project.StartsOn = &t
		}
		if endsOn.Valid {
			t := endsOn.Time
			project.EndsOn = &t
		}
		projects = append(projects, project)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate source projects: %w", rowsErr)
	}

	return projects, nil
}

func (r *sourceRepository) ListTasks(ctx context.Context, tenantID uuid.UUID) ([]domain.SourceTask, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, tenant_id, project_id, title, status, priority, assignee_id, reporter_id,
		        estimated_hours, actual_hours, due_date, status_changed_at, created_at, updated_at
		 FROM tasks
		 WHERE tenant_id = $1`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list source tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.SourceTask
	for rows.Next() {
		var (
			task           domain.SourceTask
			assigneeID     pgtype.UUID
			reporterID     pgtype.UUID
			estimatedHours pgtype.Float8
			actualHours    pgtype.Float8
			dueDate        pgtype.Date
		)
		if scanErr := rows.Scan(
			&task.ID,
			&task.TenantID,
			&task.ProjectID,
			&task.Title,
			&task.Status,
			&task.Priority,
			&assigneeID,
			&reporterID,
			&estimatedHours,
			&actualHours,
			&dueDate,
			&task.StatusChangedAt,
			&task.CreatedAt,
			&task.UpdatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan source task: %w", scanErr)
		}
		if assigneeID.Valid {
			id := uuid.UUID(assigneeID.Bytes)
			task.AssigneeID = &id
		}
		if reporterID.Valid {
			id := uuid.UUID(reporterID.Bytes)
			task.ReporterID = &id
		}
		if estimatedHours.Valid {
			v := estimatedHours.Float64
			task.EstimatedHours = &v
		}
		if actualHours.Valid {
			v := actualHours.Float64
			task.ActualHours = &v
		}
		if dueDate.Valid {
			t := dueDate.Time
			task.DueDate = &t
		}
		tasks = append(tasks, task)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate source tasks: %w", rowsErr)
	}

	return tasks, nil
}

func (r *sourceRepository) ListTimeEntries(ctx context.Context, tenantID uuid.UUID) ([]domain.SourceTimeEntry, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, tenant_id, task_id, user_id, entry_date, hours, updated_at
		 FROM time_entries
		 WHERE tenant_id = $1`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list source time entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.SourceTimeEntry
	for rows.Next() {
		var entry domain.SourceTimeEntry
		if scanErr := rows.Scan(&entry.ID, &entry.TenantID, &entry.TaskID, &entry.UserID, &entry.EntryDate, &entry.Hours, &entry.UpdatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan source time entry: %w", scanErr)
		}
		entries = append(entries, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate source time entries: %w", rowsErr)
	}

	return entries, nil
}
