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

type userDimRepository struct {
	conn *db.Connection
}

// NewUserDimRepository wires the SCD Type 2 user dimension repository.
func NewUserDimRepository(conn *db.Connection) UserDimRepository {
	return &userDimRepository{conn: conn}
}

func (r *userDimRepository) ListCurrent(ctx context.Context, tenantID uuid.UUID) ([]domain.DimUser, error) {
	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT user_key, user_id, tenant_id, email, full_name, role, is_active,
		        effective_from, expires_at, is_current, version, source_system, etl_batch_id
		 FROM dim_user
		 WHERE tenant_id = $1 AND is_current`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list current user dimension rows: %w", err)
	}
	defer rows.Close()

	var dims []domain.DimUser
	for rows.Next() {
		var (
			dim       domain.DimUser
			expiresAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&dim.UserKey,
			&dim.UserID,
			&dim.TenantID,
			&dim.Email,
			&dim.FullName,
			&dim.Role,
			&dim.IsActive,
			&dim.EffectiveFrom,
			&expiresAt,
			&dim.IsCurrent,
			&dim.Version,
			&dim.SourceSystem,
			&dim.ETLBatchID,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan user dimension row: %w", scanErr)
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			dim.ExpiresAt = &t
		}
		dims = append(dims, dim)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate user dimension rows: %w", rowsErr)
	}

	return dims, nil
}

func (r *userDimRepository) Reconcile(ctx context.Context, expire *DimExpiry[uuid.UUID], insert *domain.DimUser) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if expire != nil {
			if err := expireDimensionRow(ctx, tx, "dim_user", "user_id", expire.Key, expire.Version, expire.ExpiresAt); err != nil {
				return err
			}
		}
		if insert != nil {
			_, err := tx.Exec(
				ctx,
				`INSERT INTO dim_user (user_id, tenant_id, email, full_name, role, is_active,
				                       effective_from, expires_at, is_current, version, source_system, etl_batch_id)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, TRUE, $8, $9, $10)`,
				insert.UserID,
				insert.TenantID,
				insert.Email,
				insert.FullName,
				insert.Role,
				insert.IsActive,
				insert.EffectiveFrom,
				insert.Version,
				insert.SourceSystem,
				insert.ETLBatchID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert user dimension version: %w", err)
			}
		}
		return nil
	})
}

func (r *userDimRepository) CurrentKeys(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT user_id, user_key FROM dim_user WHERE tenant_id = $1 AND is_current`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load user dimension keys: %w", err)
	}
	defer rows.Close()

	keys := map[uuid.UUID]int64{}
	for rows.Next() {
		var (
			id  uuid.UUID
			key int64
		)
		if scanErr := rows.Scan(&id, &key); scanErr != nil {
			return nil, fmt.Errorf("failed to scan user dimension key: %w", scanErr)
		}
		keys[id] = key
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate user dimension keys: %w", rowsErr)
	}

	return keys, nil
}

func (r *userDimRepository) MaxVersion(ctx context.Context, key uuid.UUID) (int, error) {
	return maxDimensionVersion(ctx, r.conn, "dim_user", "user_id", key)
}
