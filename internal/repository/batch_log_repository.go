package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/taskfabric/warehouse/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// etlRunLockKey is the advisory lock id guarding single-writer batch execution.
const etlRunLockKey = 49817261

type batchLogRepository struct {
	pool *pgxpool.Pool
}

// NewBatchLogRepository wires a ledger repository backed by pgxpool.
func NewBatchLogRepository(pool *pgxpool.Pool) BatchLogRepository {
	return &batchLogRepository{pool: pool}
}

func (r *batchLogRepository) Create(ctx context.Context, record domain.BatchRecord) error {
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO etl_batch_log (batch_id, tenant_id, source_system, status, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		record.BatchID,
		record.TenantID,
		record.SourceSystem,
		string(record.Status),
		record.StartedAt,
	)
	if err != nil {
		return &domain.PersistenceError{Op: "batch ledger create", Err: err}
	}

	return nil
}

func (r *batchLogRepository) Finalize(
	ctx context.Context,
	batchID uuid.UUID,
	status domain.BatchStatus,
	counts domain.BatchCounts,
	errorMessage *string,
	finishedAt time.Time,
) error {
	var current string
	err := r.pool.QueryRow(
		ctx,
		`SELECT status FROM etl_batch_log WHERE batch_id = $1`,
		batchID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("batch %s: %w", batchID, domain.ErrNotFound)
		}
		return &domain.PersistenceError{Op: "batch ledger finalize", Err: err}
	}
	if domain.BatchStatus(current).Terminal() {
		return fmt.Errorf("batch %s already %s: %w", batchID, current, domain.ErrInvalidState)
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE etl_batch_log
		 SET status = $2,
		     finished_at = $3,
		     records_processed = $4,
		     records_inserted = $5,
		     records_updated = $6,
		     records_failed = $7,
		     error_message = $8
		 WHERE batch_id = $1 AND status = 'running'`,
		batchID,
		string(status),
		finishedAt,
		counts.Processed,
		counts.Inserted,
		counts.Updated,
		counts.Failed,
		errorMessage,
	)
	if err != nil {
		return &domain.PersistenceError{Op: "batch ledger finalize", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s finalized concurrently: %w", batchID, domain.ErrInvalidState)
	}

	return nil
}

func (r *batchLogRepository) GetByID(ctx context.Context, batchID uuid.UUID) (domain.BatchRecord, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT batch_id, tenant_id, source_system, status, started_at, finished_at,
		        records_processed, records_inserted, records_updated, records_failed, error_message
		 FROM etl_batch_log
		 WHERE batch_id = $1`,
		batchID,
	)
	record, err := scanBatchRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BatchRecord{}, fmt.Errorf("batch %s: %w", batchID, domain.ErrNotFound)
		}
		return domain.BatchRecord{}, fmt.Errorf("failed to get batch: %w", err)
	}
	return record, nil
}

func (r *batchLogRepository) Latest(ctx context.Context) (domain.BatchRecord, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT batch_id, tenant_id, source_system, status, started_at, finished_at,
		        records_processed, records_inserted, records_updated, records_failed, error_message
		 FROM etl_batch_log
		 ORDER BY started_at DESC
		 LIMIT 1`,
	)
	record, err := scanBatchRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BatchRecord{}, domain.ErrNotFound
		}
		return domain.BatchRecord{}, fmt.Errorf("failed to get latest batch: %w", err)
	}
	return record, nil
}

func (r *batchLogRepository) History(ctx context.Context, since time.Time) ([]domain.BatchRecord, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT batch_id, tenant_id, source_system, status, started_at, finished_at,
		        records_processed, records_inserted, records_updated, records_failed, error_message
		 FROM etl_batch_log
		 WHERE started_at >= $1
		 ORDER BY started_at DESC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch history: %w", err)
	}
	defer rows.Close()

	records := []domain.BatchRecord{}
	for rows.Next() {
		record, scanErr := scanBatchRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan batch record: %w", scanErr)
		}
		records = append(records, record)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate batch history: %w", rowsErr)
	}

	return records, nil
}

func (r *batchLogRepository) AcquireRunLock(ctx context.Context) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "run lock acquire", Err: err}
	}

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, etlRunLockKey).Scan(&locked); err != nil {
		conn.Release()
		return nil, &domain.PersistenceError{Op: "run lock acquire", Err: err}
	}
	if !locked {
		conn.Release()
		return nil, domain.ErrConcurrentBatch
	}

	release := func() {
		// Unlock on a background context so batch cancellation cannot strand
		// the advisory lock.
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, etlRunLockKey); err != nil {
			log.Printf("failed to release etl run lock: %v", err)
		}
		conn.Release()
	}
	return release, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatchRecord(row rowScanner) (domain.BatchRecord, error) {
	var (
		record     domain.BatchRecord
		status     string
		finishedAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&record.BatchID,
		&record.TenantID,
		&record.SourceSystem,
		&status,
		&record.StartedAt,
		&finishedAt,
		&record.Counts.Processed,
		&record.Counts.Inserted,
		&record.Counts.Updated,
		&record.Counts.Failed,
		&record.ErrorMessage,
	); err != nil {
		return domain.BatchRecord{}, err
	}

	record.Status = domain.BatchStatus(status)
	if finishedAt.Valid {
		t := finishedAt.Time
		record.FinishedAt = &t
	}

	return record, nil
}
