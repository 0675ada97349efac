package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/taskfabric/warehouse/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type aggregateRepository struct {
	conn *db.Connection
}

// NewAggregateRepository wires the rollup rebuild repository.
func NewAggregateRepository(conn *db.Connection) AggregateRepository {
	return &aggregateRepository{conn: conn}
}

// RebuildDailyTaskMetrics replaces the tenant's daily metric rows for dateKey
// from current fact state. Delete-then-insert inside one transaction keeps the
// aggregate independent of its own prior values.
func (r *aggregateRepository) RebuildDailyTaskMetrics(ctx context.Context, tenantID uuid.UUID, dateKey int, computedAt time.Time) (int, error) {
	written := 0
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(
			ctx,
			`DELETE FROM agg_daily_task_metrics WHERE tenant_id = $1 AND date_key = $2`,
			tenantID,
			dateKey,
		); err != nil {
			return fmt.Errorf("failed to clear daily task metrics: %w", err)
		}

		tag, err := tx.Exec(
			ctx,
			`INSERT INTO agg_daily_task_metrics
			     (date_key, tenant_id, project_key, status_key, task_count, overdue_count,
			      total_estimated_hours, total_actual_hours, avg_completion_ratio, computed_at)
			 SELECT $2, f.tenant_id, f.project_key, f.status_key,
			        COUNT(*),
			        COUNT(*) FILTER (WHERE f.is_overdue),
			        COALESCE(SUM(f.estimated_hours), 0),
			        COALESCE(SUM(f.actual_hours), 0),
			        ROUND(AVG(f.completion_ratio), 2),
			        $3
			 FROM fact_tasks f
			 WHERE f.tenant_id = $1
			 GROUP BY f.tenant_id, f.project_key, f.status_key`,
			tenantID,
			dateKey,
			computedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to rebuild daily task metrics: %w", err)
		}
		written = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, err
	}

	return written, nil
}

// RebuildUserWorkload replaces the tenant's per-user workload rows for dateKey.
// Hours come from the time log facts for that day; open/overdue counts from
// current task facts joined to the current status dimension.
func (r *aggregateRepository) RebuildUserWorkload(ctx context.Context, tenantID uuid.UUID, dateKey int, computedAt time.Time) (int, error) {
	written := 0
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(
			ctx,
			`DELETE FROM agg_user_workload WHERE tenant_id = $1 AND date_key = $2`,
			tenantID,
			dateKey,
		); err != nil {
			return fmt.Errorf("failed to clear user workload: %w", err)
		}

		tag, err := tx.Exec(
			ctx,
			`INSERT INTO agg_user_workload
			     (date_key, tenant_id, user_key, open_task_count, overdue_task_count, logged_hours, computed_at)
			 SELECT $2, $1, u.user_key,
			        COALESCE(t.open_count, 0),
			        COALESCE(t.overdue_count, 0),
			        COALESCE(l.hours, 0),
			        $3
			 FROM dim_user u
			 LEFT JOIN (
			     SELECT f.assignee_key,
			            COUNT(*) FILTER (WHERE NOT s.is_terminal) AS open_count,
			            COUNT(*) FILTER (WHERE f.is_overdue) AS overdue_count
			     FROM fact_tasks f
			     JOIN dim_status s ON s.status_key = f.status_key
			     WHERE f.tenant_id = $1
			     GROUP BY f.assignee_key
			 ) t ON t.assignee_key = u.user_key
			 LEFT JOIN (
			     SELECT user_key, SUM(hours) AS hours
			     FROM fact_time_logs
			     WHERE tenant_id = $1 AND date_key = $2
			     GROUP BY user_key
			 ) l ON l.user_key = u.user_key
			 WHERE u.tenant_id = $1 AND u.is_current
			   AND (t.assignee_key IS NOT NULL OR l.user_key IS NOT NULL)`,
			tenantID,
			dateKey,
			computedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to rebuild user workload: %w", err)
		}
		written = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, err
	}

	return written, nil
}
