package etl

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/taskfabric/warehouse/internal/domain"

	"github.com/google/uuid"
)

// Handler exposes the batch pipeline over HTTP: trigger runs and inspect the
// ledger.
type Handler struct {
	orchestrator *Orchestrator
	ledger       *Ledger
}

// NewHTTPHandler wraps the orchestrator and ledger with pipeline endpoints.
func NewHTTPHandler(orchestrator *Orchestrator, ledger *Ledger) http.Handler {
	return &Handler{orchestrator: orchestrator, ledger: ledger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/run"):
		h.handleRun(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/batches/latest"):
		h.handleLatest(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/batches"):
		h.handleHistory(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

type runPayload struct {
	TenantID string `json:"tenantId"`
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	tenantRaw := strings.TrimSpace(r.URL.Query().Get("tenantId"))
	if tenantRaw == "" {
		var payload runPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
			tenantRaw = strings.TrimSpace(payload.TenantID)
		}
	}

	// No tenant means a full sweep over every known tenant.
	if tenantRaw == "" {
		records, err := h.orchestrator.RunAll(r.Context())
		if err != nil {
			h.writeRunError(w, records, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
		return
	}

	tenantID, err := uuid.Parse(tenantRaw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid tenantId: %v", err), http.StatusBadRequest)
		return
	}
	record, err := h.orchestrator.RunForTenant(r.Context(), tenantID)
	if err != nil {
		h.writeRunError(w, []domain.BatchRecord{record}, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) writeRunError(w http.ResponseWriter, records []domain.BatchRecord, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrConcurrentBatch) {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{
		"error":   err.Error(),
		"batches": records,
	})
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	record, err := h.ledger.Latest(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "no batches recorded", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := strings.TrimSpace(r.URL.Query().Get("hours")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "hours must be a positive integer", http.StatusBadRequest)
			return
		}
		hours = parsed
	}
	records, err := h.ledger.History(r.Context(), hours)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
