package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/taskfabric/warehouse/internal/db"

	"github.com/jackc/pgx/v5"
)

// expireDimensionRow closes the current version of one business key. The
// version predicate makes the update a no-op if another writer already
// superseded the row, which surfaces as an error instead of silently expiring
// the wrong version.
func expireDimensionRow(ctx context.Context, tx pgx.Tx, table, keyColumn string, key any, version int, expiresAt time.Time) error {
	tag, err := tx.Exec(
		ctx,
		fmt.Sprintf(
			`UPDATE %s SET expires_at = $1, is_current = FALSE
			 WHERE %s = $2 AND version = $3 AND is_current`,
			table, keyColumn,
		),
		expiresAt,
		key,
		version,
	)
	if err != nil {
		return fmt.Errorf("failed to expire %s row: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no current %s row for key %v version %d", table, key, version)
	}
	return nil
}

// maxDimensionVersion returns the highest version recorded for one business key.
func maxDimensionVersion(ctx context.Context, conn *db.Connection, table, keyColumn string, key any) (int, error) {
	var version int
	err := conn.Pool.QueryRow(
		ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(version), 0) FROM %s WHERE %s = $1`, table, keyColumn),
		key,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read max %s version: %w", table, err)
	}
	return version, nil
}
