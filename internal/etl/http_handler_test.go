package etl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/taskfabric/warehouse/internal/domain"

	"github.com/google/uuid"
)

func newTestHandler(f *orchestratorFixture) http.Handler {
	return NewHTTPHandler(f.orch, NewLedger(f.batches))
}

func TestHandleRunForTenant(t *testing.T) {
	tenantID := uuid.New()
	f := newOrchestratorFixture(tenantID)
	handler := newTestHandler(f)

	req := httptest.NewRequest(http.MethodPost, "/etl/run?tenantId="+tenantID.String(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var record domain.BatchRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if record.Status != domain.BatchCompleted || record.TenantID != tenantID {
		t.Fatalf("unexpected batch in response: %+v", record)
	}
}

func TestHandleRunRejectsBadTenant(t *testing.T) {
	f := newOrchestratorFixture(uuid.New())
	handler := newTestHandler(f)

	req := httptest.NewRequest(http.MethodPost, "/etl/run?tenantId=not-a-uuid", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleRunConflictsWhileLocked(t *testing.T) {
	tenantID := uuid.New()
	f := newOrchestratorFixture(tenantID)
	f.batches.locked = true
	handler := newTestHandler(f)

	req := httptest.NewRequest(http.MethodPost, "/etl/run?tenantId="+tenantID.String(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while another batch runs, got %d", rec.Code)
	}
}

func TestHandleBatchHistory(t *testing.T) {
	tenantID := uuid.New()
	f := newOrchestratorFixture(tenantID)
	if _, err := f.orch.RunForTenant(context.Background(), tenantID); err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	handler := newTestHandler(f)

	req := httptest.NewRequest(http.MethodGet, "/etl/batches?hours=1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var records []domain.BatchRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(records))
	}

	latest := httptest.NewRequest(http.MethodGet, "/etl/batches/latest", nil)
	latestRec := httptest.NewRecorder()
	handler.ServeHTTP(latestRec, latest)
	if latestRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for latest, got %d", latestRec.Code)
	}
}

func TestHandleLatestWithoutBatches(t *testing.T) {
	f := newOrchestratorFixture(uuid.New())
	handler := newTestHandler(f)

	req := httptest.NewRequest(http.MethodGet, "/etl/batches/latest", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with an empty ledger, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no batches") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}
