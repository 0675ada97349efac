package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/taskfabric/warehouse/internal/domain"
	"github.com/taskfabric/warehouse/internal/repository"

	"github.com/xuri/excelize/v2"
)

// Service builds the operations report workbook: one sheet per control table,
// covering the batches of a trailing window plus their audit and error rows.
type Service struct {
	batches repository.BatchLogRepository
	audits  repository.AuditLogRepository
	now     func() time.Time
}

// NewService wires the report exporter.
func NewService(batches repository.BatchLogRepository, audits repository.AuditLogRepository) *Service {
	return &Service{batches: batches, audits: audits, now: time.Now}
}

const (
	sheetBatches = "Batches"
	sheetAudit   = "Audit"
	sheetErrors  = "Errors"
)

// WriteReport streams an xlsx workbook for the batches started within the last
// N hours, newest first. hours <= 0 defaults to 24.
func (s *Service) WriteReport(ctx context.Context, w io.Writer, hours int) error {
	if hours <= 0 {
		hours = 24
	}
	since := s.now().UTC().Add(-time.Duration(hours) * time.Hour)
	batches, err := s.batches.History(ctx, since)
	if err != nil {
		return fmt.Errorf("load batch history: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := s.writeBatchSheet(f, batches); err != nil {
		return err
	}
	if err := s.writeAuditSheet(ctx, f, batches); err != nil {
		return err
	}
	if err := s.writeErrorSheet(ctx, f, batches); err != nil {
		return err
	}

	// The default sheet excelize creates is replaced by Batches.
	if idx, err := f.GetSheetIndex(sheetBatches); err == nil {
		f.SetActiveSheet(idx)
	}

	return f.Write(w)
}

func (s *Service) writeBatchSheet(f *excelize.File, batches []domain.BatchRecord) error {
	if err := f.SetSheetName(f.GetSheetName(0), sheetBatches); err != nil {
		return fmt.Errorf("rename batch sheet: %w", err)
	}
	header := []any{"batch_id", "tenant_id", "source_system", "status", "started_at", "finished_at", "processed", "inserted", "updated", "failed", "error"}
	if err := f.SetSheetRow(sheetBatches, "A1", &header); err != nil {
		return fmt.Errorf("write batch header: %w", err)
	}
	for i, b := range batches {
		row := []any{
			b.BatchID.String(),
			b.TenantID.String(),
			b.SourceSystem,
			string(b.Status),
			formatTime(&b.StartedAt),
			formatTime(b.FinishedAt),
			b.Counts.Processed,
			b.Counts.Inserted,
			b.Counts.Updated,
			b.Counts.Failed,
			deref(b.ErrorMessage),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheetBatches, cell, &row); err != nil {
			return fmt.Errorf("write batch row: %w", err)
		}
	}
	return nil
}

func (s *Service) writeAuditSheet(ctx context.Context, f *excelize.File, batches []domain.BatchRecord) error {
	if _, err := f.NewSheet(sheetAudit); err != nil {
		return fmt.Errorf("create audit sheet: %w", err)
	}
	header := []any{"batch_id", "table", "operation", "status", "records_affected", "started_at", "finished_at", "duration_ms", "error"}
	if err := f.SetSheetRow(sheetAudit, "A1", &header); err != nil {
		return fmt.Errorf("write audit header: %w", err)
	}
	line := 2
	for _, b := range batches {
		entries, err := s.audits.ListAudits(ctx, b.BatchID)
		if err != nil {
			return fmt.Errorf("load audits for %s: %w", b.BatchID, err)
		}
		for _, e := range entries {
			row := []any{
				e.BatchID.String(),
				e.TableName,
				string(e.Operation),
				string(e.Status),
				e.RecordsAffected,
				formatTime(&e.StartedAt),
				formatTime(e.FinishedAt),
				derefInt64(e.DurationMs),
				deref(e.ErrorMessage),
			}
			cell := fmt.Sprintf("A%d", line)
			if err := f.SetSheetRow(sheetAudit, cell, &row); err != nil {
				return fmt.Errorf("write audit row: %w", err)
			}
			line++
		}
	}
	return nil
}

func (s *Service) writeErrorSheet(ctx context.Context, f *excelize.File, batches []domain.BatchRecord) error {
	if _, err := f.NewSheet(sheetErrors); err != nil {
		return fmt.Errorf("create error sheet: %w", err)
	}
	header := []any{"batch_id", "severity", "error_code", "message", "source_table", "source_key", "resolved", "created_at"}
	if err := f.SetSheetRow(sheetErrors, "A1", &header); err != nil {
		return fmt.Errorf("write error header: %w", err)
	}
	line := 2
	for _, b := range batches {
		entries, err := s.audits.ListErrors(ctx, b.BatchID)
		if err != nil {
			return fmt.Errorf("load errors for %s: %w", b.BatchID, err)
		}
		for _, e := range entries {
			row := []any{
				e.BatchID.String(),
				string(e.Severity),
				e.ErrorCode,
				e.Message,
				deref(e.SourceTable),
				deref(e.SourceKey),
				e.Resolved,
				formatTime(&e.CreatedAt),
			}
			cell := fmt.Sprintf("A%d", line)
			if err := f.SetSheetRow(sheetErrors, cell, &row); err != nil {
				return fmt.Errorf("write error row: %w", err)
			}
			line++
		}
	}
	return nil
}

// FileName derives the download file name for a report generated now.
func (s *Service) FileName() string {
	stamp := s.now().UTC().Format("20060102-150405")
	return fmt.Sprintf("warehouse-report-%s.xlsx", stamp)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func derefInt64(v *int64) any {
	if v == nil {
		return ""
	}
	return *v
}
