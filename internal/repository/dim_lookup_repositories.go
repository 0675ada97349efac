package repository

import (
	"context"
	"fmt"

	"github.com/taskfabric/warehouse/internal/db"
	"github.com/taskfabric/warehouse/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Status and priority dimensions share the same small-lookup shape: source-wide
// enumerations versioned with SCD Type 2 but with string business keys.

type statusDimRepository struct {
	conn *db.Connection
}

// NewStatusDimRepository wires the SCD Type 2 status dimension repository.
func NewStatusDimRepository(conn *db.Connection) StatusDimRepository {
	return &statusDimRepository{conn: conn}
}

func (r *statusDimRepository) ListCurrent(ctx context.Context) ([]domain.DimStatus, error) {
	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT status_key, status_code, status_name, is_terminal, sort_order,
		        effective_from, expires_at, is_current, version, source_system, etl_batch_id
		 FROM dim_status
		 WHERE is_current`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list current status dimension rows: %w", err)
	}
	defer rows.Close()

	var dims []domain.DimStatus
	for rows.Next() {
		var (
			dim       domain.DimStatus
			expiresAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&dim.StatusKey,
			&dim.StatusCode,
			&dim.StatusName,
			&dim.IsTerminal,
			&dim.SortOrder,
			&dim.EffectiveFrom,
			&expiresAt,
			&dim.IsCurrent,
			&dim.Version,
			&dim.SourceSystem,
			&dim.ETLBatchID,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan status dimension row: %w", scanErr)
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			dim.ExpiresAt = &t
		}
		dims = append(dims, dim)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate status dimension rows: %w", rowsErr)
	}

	return dims, nil
}

func (r *statusDimRepository) Reconcile(ctx context.Context, expire *DimExpiry[string], insert *domain.DimStatus) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if expire != nil {
			if err := expireDimensionRow(ctx, tx, "dim_status", "status_code", expire.Key, expire.Version, expire.ExpiresAt); err != nil {
				return err
			}
		}
		if insert != nil {
			_, err := tx.Exec(
				ctx,
				`INSERT INTO dim_status (status_code, status_name, is_terminal, sort_order,
				                         effective_from, expires_at, is_current, version, source_system, etl_batch_id)
				 VALUES ($1, $2, $3, $4, $5, NULL, TRUE, $6, $7, $8)`,
				insert.StatusCode,
				insert.StatusName,
				insert.IsTerminal,
				insert.SortOrder,
				insert.EffectiveFrom,
				insert.Version,
				insert.SourceSystem,
				insert.ETLBatchID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert status dimension version: %w", err)
			}
		}
		return nil
	})
}

func (r *statusDimRepository) CurrentKeys(ctx context.Context) (map[string]int64, error) {
	return lookupCurrentKeys(ctx, r.conn, "dim_status", "status_code", "status_key")
}

type priorityDimRepository struct {
	conn *db.Connection
}

// NewPriorityDimRepository wires the SCD Type 2 priority dimension repository.
func NewPriorityDimRepository(conn *db.Connection) PriorityDimRepository {
	return &priorityDimRepository{conn: conn}
}

func (r *priorityDimRepository) ListCurrent(ctx context.Context) ([]domain.DimPriority, error) {
	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT priority_key, priority_code, priority_name, sort_order,
		        effective_from, expires_at, is_current, version, source_system, etl_batch_id
		 FROM dim_priority
		 WHERE is_current`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list current priority dimension rows: %w", err)
	}
	defer rows.Close()

	var dims []domain.DimPriority
	for rows.Next() {
		var (
			dim       domain.DimPriority
			expiresAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&dim.PriorityKey,
			&dim.PriorityCode,
			&dim.PriorityName,
			&dim.SortOrder,
			&dim.EffectiveFrom,
			&expiresAt,
			&dim.IsCurrent,
			&dim.Version,
			&dim.SourceSystem,
			&dim.ETLBatchID,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan priority dimension row: %w", scanErr)
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			dim.ExpiresAt = &t
		}
		dims = append(dims, dim)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate priority dimension rows: %w", rowsErr)
	}

	return dims, nil
}

func (r *priorityDimRepository) Reconcile(ctx context.Context, expire *DimExpiry[string], insert *domain.DimPriority) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if expire != nil {
			if err := expireDimensionRow(ctx, tx, "dim_priority", "priority_code", expire.Key, expire.Version, expire.ExpiresAt); err != nil {
				return err
			}
		}
		if insert != nil {
			_, err := tx.Exec(
				ctx,
				`INSERT INTO dim_priority (priority_code, priority_name, sort_order,
				                           effective_from, expires_at, is_current, version, source_system, etl_batch_id)
				 VALUES ($1, $2, $3, $4, NULL, TRUE, $5, $6, $7)`,
				insert.PriorityCode,
				insert.PriorityName,
				insert.SortOrder,
				insert.EffectiveFrom,
				insert.Version,
				insert.SourceSystem,
				insert.ETLBatchID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert priority dimension version: %w", err)
			}
		}
		return nil
	})
}

func (r *priorityDimRepository) CurrentKeys(ctx context.Context) (map[string]int64, error) {
	return lookupCurrentKeys(ctx, r.conn, "dim_priority", "priority_code", "priority_key")
}

func lookupCurrentKeys(ctx context.Context, conn *db.Connection, table, codeColumn, keyColumn string) (map[string]int64, error) {
	rows, err := conn.Pool.Query(
		ctx,
		fmt.Sprintf(`SELECT %s, %s FROM %s WHERE is_current`, codeColumn, keyColumn, table),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s keys: %w", table, err)
	}
	defer rows.Close()

	keys := map[string]int64{}
	for rows.Next() {
		var (
			code string
			key  int64
		)
		if scanErr := rows.Scan(&code, &key); scanErr != nil {
			return nil, fmt.Errorf("failed to scan %s key: %w", table, scanErr)
		}
		keys[code] = key
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate %s keys: %w", table, rowsErr)
	}

	return keys, nil
}

func (r *statusDimRepository) MaxVersion(ctx context.Context, key string) (int, error) {
	return maxDimensionVersion(ctx, r.conn, "dim_status", "status_code", key)
}

func (r *priorityDimRepository) MaxVersion(ctx context.Context, key string) (int, error) {
	return maxDimensionVersion(ctx, r.conn, "dim_priority", "priority_code", key)
}
