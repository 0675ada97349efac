package repository

import (
	"context"
	"fmt"

	"github.com/taskfabric/warehouse/internal/db"
	"github.com/taskfabric/warehouse/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type projectDimRepository struct {
	conn *db.Connection
}

// NewProjectDimRepository wires the SCD Type 2 project dimension repository.
func NewProjectDimRepository(conn *db.Connection) ProjectDimRepository {
	return &projectDimRepository{conn: conn}
}

func (r *projectDimRepository) ListCurrent(ctx context.Context, tenantID uuid.UUID) ([]domain.DimProject, error) {
	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT project_key, project_id, tenant_id, name, status, owner_id, starts_on, ends_on,
		        effective_from, expires_at, is_current, version, source_system, etl_batch_id
		 FROM dim_project
		 WHERE tenant_id = $1 AND is_current`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list current project dimension rows: %w", err)
	}
	defer rows.Close()

	var dims []domain.DimProject
	for rows.Next() {
		var (
			dim       domain.DimProject
			ownerID   pgtype.UUID
			startsOn  pgtype.Date
			endsOn    pgtype.Date
			expiresAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&dim.ProjectKey,
			&dim.ProjectID,
			&dim.TenantID,
			&dim.Name,
			&dim.Status,
			&ownerID,
			&startsOn,
			&endsOn,
			&dim.EffectiveFrom,
			&expiresAt,
			&dim.IsCurrent,
			&dim.Version,
			&dim.SourceSystem,
			&dim.ETLBatchID,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan project dimension row: %w", scanErr)
		}
		if ownerID.Valid {
			id := uuid.UUID(ownerID.Bytes)
			dim.OwnerID = &id
		}
		if startsOn.Valid {
			t := startsOn.Time
			dim.StartsOn = &t
		}
		if endsOn.Valid {
			t := endsOn.Time
			dim.EndsOn = &t
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			dim.ExpiresAt = &t
		}
		dims = append(dims, dim)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate project dimension rows: %w", rowsErr)
	}

	return dims, nil
}

func (r *projectDimRepository) Reconcile(ctx context.Context, expire *DimExpiry[uuid.UUID], insert *domain.DimProject) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if expire != nil {
			if err := expireDimensionRow(ctx, tx, "dim_project", "project_id", expire.Key, expire.Version, expire.ExpiresAt); err != nil {
				return err
			}
		}
		if insert != nil {
			_, err := tx.Exec(
				ctx,
				`INSERT INTO dim_project (project_id, tenant_id, name, status, owner_id, starts_on, ends_on,
				                          effective_from, expires_at, is_current, version, source_system, etl_batch_id)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, TRUE, $9, $10, $11)`,
				insert.ProjectID,
				insert.TenantID,
				insert.Name,
				insert.Status,
				insert.OwnerID,
				insert.StartsOn,
				insert.EndsOn,
				insert.EffectiveFrom,
				insert.Version,
				insert.SourceSystem,
				insert.ETLBatchID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert project dimension version: %w", err)
			}
		}
		return nil
	})
}

func (r *projectDimRepository) CurrentKeys(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT project_id, project_key FROM dim_project WHERE tenant_id = $1 AND is_current`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load project dimension keys: %w", err)
	}
	defer rows.Close()

	keys := map[uuid.UUID]int64{}
	for rows.Next() {
		var (
			id  uuid.UUID
			key int64
		)
		if scanErr := rows.Scan(&id, &key); scanErr != nil {
			return nil, fmt.Errorf("failed to scan project dimension key: %w", scanErr)
		}
		keys[id] = key
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate project dimension keys: %w", rowsErr)
	}

	return keys, nil
}

func (r *projectDimRepository) MaxVersion(ctx context.Context, key uuid.UUID) (int, error) {
	return maxDimensionVersion(ctx, r.conn, "dim_project", "project_id", key)
}
