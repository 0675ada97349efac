package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/taskfabric/warehouse/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type auditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository wires the audit/error recorder persistence.
func NewAuditLogRepository(pool *pgxpool.Pool) AuditLogRepository {
	return &auditLogRepository{pool: pool}
}

func (r *auditLogRepository) RecordAudit(ctx context.Context, entry domain.AuditEntry) (int64, error) {
	var id int64
	err := r.pool.QueryRow(
		ctx,
		`INSERT INTO etl_audit_log (batch_id, table_name, operation, status, records_affected,
		                            started_at, finished_at, duration_ms, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		entry.BatchID,
		entry.TableName,
		string(entry.Operation),
		string(entry.Status),
		entry.RecordsAffected,
		entry.StartedAt,
		entry.FinishedAt,
		entry.DurationMs,
		entry.ErrorMessage,
	).Scan(&id)
	if err != nil {
		return 0, &domain.PersistenceError{Op: "audit record", Err: err}
	}

	return id, nil
}

func (r *auditLogRepository) RecordError(ctx context.Context, entry domain.ErrorEntry) (int64, error) {
	var contextJSON any
	if len(entry.Context) > 0 {
		encoded, err := json.Marshal(entry.Context)
		if err != nil {
			return 0, &domain.PersistenceError{Op: "error record encode", Err: err}
		}
		contextJSON = encoded
	}

	var id int64
	err := r.pool.QueryRow(
		ctx,
		`INSERT INTO etl_errors (batch_id, severity, error_code, message, source_table, source_key, context)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		entry.BatchID,
		string(entry.Severity),
		entry.ErrorCode,
		entry.Message,
		entry.SourceTable,
		entry.SourceKey,
		contextJSON,
	).Scan(&id)
	if err != nil {
		return 0, &domain.PersistenceError{Op: "error record", Err: err}
	}

	return id, nil
}

func (r *auditLogRepository) ListAudits(ctx context.Context, batchID uuid.UUID) ([]domain.AuditEntry, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, batch_id, table_name, operation, status, records_affected,
		        started_at, finished_at, duration_ms, error_message
		 FROM etl_audit_log
		 WHERE batch_id = $1
		 ORDER BY id`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.AuditEntry{}
	for rows.Next() {
		var (
			entry      domain.AuditEntry
			operation  string
			status     string
			finishedAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.BatchID,
			&entry.TableName,
			&operation,
			&status,
			&entry.RecordsAffected,
			&entry.StartedAt,
			&finishedAt,
			&entry.DurationMs,
			&entry.ErrorMessage,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", scanErr)
		}

		entry.Operation = domain.OperationKind(operation)
		entry.Status = domain.StepStatus(status)
		if finishedAt.Valid {
			t := finishedAt.Time
			entry.FinishedAt = &t
		}

		entries = append(entries, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", rowsErr)
	}

	return entries, nil
}

func (r *auditLogRepository) ListErrors(ctx context.Context, batchID uuid.UUID) ([]domain.ErrorEntry, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, batch_id, severity, error_code, message, source_table, source_key,
		        context, resolved, resolved_at, resolved_by, created_at
		 FROM etl_errors
		 WHERE batch_id = $1
		 ORDER BY id`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list error entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.ErrorEntry{}
	for rows.Next() {
		var (
			entry       domain.ErrorEntry
			severity    string
			contextJSON []byte
			resolvedAt  pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.BatchID,
			&severity,
			&entry.ErrorCode,
			&entry.Message,
			&entry.SourceTable,
			&entry.SourceKey,
			&contextJSON,
			&entry.Resolved,
			&resolvedAt,
			&entry.ResolvedBy,
			&entry.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan error entry: %w", scanErr)
		}

		entry.Severity = domain.Severity(severity)
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &entry.Context); err != nil {
				return nil, fmt.Errorf("failed to decode error context: %w", err)
			}
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			entry.ResolvedAt = &t
		}

		entries = append(entries, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate error entries: %w", rowsErr)
	}

	return entries, nil
}
