/*
handlers.go - HTTP API handlers for the payroll sync service

PURPOSE:
  Exposes the pay-run service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to payrun.Service and the SQLite store.

ENDPOINTS:
  Time entries:
    GET    /api/entries?start=&end=    Normalized entries in a period
    POST   /api/entries/import         Import a raw upstream payload
    DELETE /api/entries?start=&end=    Remove entries in a period

  Rulesets:
    GET    /api/rulesets               List rulesets (default first)
    POST   /api/rulesets               Create or replace a ruleset
    GET    /api/rulesets/{id}          Get one ruleset
    DELETE /api/rulesets/{id}          Delete a ruleset

  Runs:
    GET    /api/runs                   Sync run history
    GET    /api/runs/period            Current calendar period
    POST   /api/runs/preview           Compute a run without writing
    GET    /api/runs/preview.csv       Pay lines of a preview as CSV
    POST   /api/runs/sync              Reconcile with the payroll system

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: raw entries, rulesets and run history
  - Service: preview and sync orchestration
  - Factory: JSON to Ruleset conversion and validation

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid period, invalid ruleset, malformed payload
  - 404: Resource not found
  - 409: Scope already covered by another ruleset
  - 422: No payroll calendar to default the period from
  - 502: The payroll system failed or refused a call
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/payroll-sync/factory"
	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/ingest"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/payrun"
	"github.com/warp/payroll-sync/store/sqlite"
)

// MaxImportBytes caps an import request body.
const MaxImportBytes = 10 << 20

// DefaultRunHistory is how many runs GET /api/runs returns without ?limit.
const DefaultRunHistory = 50

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Service *payrun.Service
	Factory *factory.RulesetFactory

	// Fallback is the default ruleset when none is stored.
	Fallback payroll.Ruleset

	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer

	Today func() generic.Date

	// Scheduler, when set, reports its next check on /api/runs/period.
	Scheduler *SyncScheduler
}

// NewHandler creates a new handler with the given store and service.
func NewHandler(store *sqlite.Store, service *payrun.Service) *Handler {
	return &Handler{
		Store:    store,
		Service:  service,
		Factory:  factory.NewRulesetFactory(),
		Fallback: payroll.StandardRuleset("standard"),
		Today:    generic.Today,
	}
}

// RulesetSource reads the stored rulesets fresh for every run, so an edit
// through the API applies to the next preview.
func (h *Handler) RulesetSource() payrun.RulesetSource {
	return payrun.RulesetFunc(func(ctx context.Context) (payroll.RulesetSelector, error) {
		return h.Store.LoadBook(ctx, h.Factory, h.Fallback)
	})
}

// Health pings the database.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// TIME ENTRY HANDLERS
// =============================================================================

// ListEntries returns the normalized entries in ?start=&end=.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	period, err := periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	entries, err := h.Store.Entries(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list entries", err)
		return
	}
	if entries == nil {
		entries = []payroll.TimeEntry{}
	}
	writeJSON(w, http.StatusOK, EntriesResponse{Period: period, Entries: entries})
}

// ImportEntries stores a raw upstream payload. ?source= labels the batch.
func (h *Handler) ImportEntries(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}

	records, err := ingest.DecodeRecords(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid time entry payload", err)
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = "api"
	}
	result, err := h.Store.ImportRecords(r.Context(), source, records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store entries", err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Source: source, ImportResult: result})
}

// DeleteEntries removes the entries in ?start=&end=.
func (h *Handler) DeleteEntries(w http.ResponseWriter, r *http.Request) {
	period, err := periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	n, err := h.Store.DeleteEntries(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete entries", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

// =============================================================================
// RULESET HANDLERS
// =============================================================================

// ListRulesets returns all stored rulesets.
func (h *Handler) ListRulesets(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListRulesets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rulesets", err)
		return
	}

	dtos := make([]RulesetDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toRulesetDTO(rec))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRuleset returns one ruleset.
func (h *Handler) GetRuleset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.Store.GetRuleset(r.Context(), id)
	if errors.Is(err, sqlite.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Ruleset not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get ruleset", err)
		return
	}
	writeJSON(w, http.StatusOK, toRulesetDTO(*rec))
}

// SaveRuleset validates and stores a ruleset. The config id names the
// record; a missing id gets a generated one.
func (h *Handler) SaveRuleset(w http.ResponseWriter, r *http.Request) {
	var req SaveRulesetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Scope == "" {
		req.Scope = sqlite.ScopeDefault
	}
	switch req.Scope {
	case sqlite.ScopeDefault:
	case sqlite.ScopeJob, sqlite.ScopeEmployee:
		if req.ScopeKey == "" {
			writeError(w, http.StatusBadRequest, "scope_key is required for "+string(req.Scope)+" rulesets", nil)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "Unknown scope: "+string(req.Scope), nil)
		return
	}

	if req.Config.ID == "" {
		req.Config.ID = uuid.NewString()
	}
	if _, err := h.Factory.FromJSON(req.Config); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ruleset", err)
		return
	}
	config, err := json.Marshal(req.Config)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode ruleset", err)
		return
	}

	name := req.Name
	if name == "" {
		name = req.Config.Name
	}
	if name == "" {
		name = req.Config.ID
	}

	rec := sqlite.RulesetRecord{
		ID:         req.Config.ID,
		Name:       name,
		Scope:      req.Scope,
		ScopeKey:   req.ScopeKey,
		ConfigJSON: string(config),
	}
	if err := h.Store.SaveRuleset(r.Context(), rec); err != nil {
		if errors.Is(err, sqlite.ErrScopeTaken) {
			writeError(w, http.StatusConflict, "Scope already has a ruleset", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save ruleset", err)
		return
	}

	saved, err := h.Store.GetRuleset(r.Context(), rec.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read back ruleset", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRulesetDTO(*saved))
}

// DeleteRuleset removes a ruleset.
func (h *Handler) DeleteRuleset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.Store.DeleteRuleset(r.Context(), id)
	if errors.Is(err, sqlite.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Ruleset not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete ruleset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toRulesetDTO(rec sqlite.RulesetRecord) RulesetDTO {
	dto := RulesetDTO{
		ID:       rec.ID,
		Name:     rec.Name,
		Scope:    rec.Scope,
		ScopeKey: rec.ScopeKey,
		Version:  rec.Version,
	}
	// Stored configs were validated on the way in.
	_ = json.Unmarshal([]byte(rec.ConfigJSON), &dto.Config)
	if !rec.CreatedAt.IsZero() {
		dto.CreatedAt = rec.CreatedAt.Format(time.RFC3339)
	}
	if !rec.UpdatedAt.IsZero() {
		dto.UpdatedAt = rec.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// ListRuns returns recent sync runs, newest first. ?limit= overrides the default.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRunHistory
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListSyncRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []payrun.SyncRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// CurrentPeriod returns the calendar period containing today.
func (h *Handler) CurrentPeriod(w http.ResponseWriter, r *http.Request) {
	period, err := h.Service.CurrentPeriod(r.Context(), h.today())
	if err != nil {
		writeRunError(w, "Failed to resolve period", err)
		return
	}
	resp := PeriodResponse{Period: period, Days: period.DayCount()}
	if h.Scheduler != nil {
		if next, ok := h.Scheduler.GetNextRunTime(); ok {
			resp.NextSync = &next
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Preview computes a run for the requested period without writing.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRunRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, err := h.resolvePeriod(r.Context(), req.Start, req.End)
	if err != nil {
		writeRunError(w, "Invalid period", err)
		return
	}

	preview, err := h.Service.Preview(r.Context(), period)
	if err != nil {
		writeRunError(w, "Preview failed", err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// PreviewCSV writes the pay lines of a preview as CSV. The period comes
// from ?start=&end= or the current calendar period.
func (h *Handler) PreviewCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period, err := h.resolvePeriod(r.Context(), q.Get("start"), q.Get("end"))
	if err != nil {
		writeRunError(w, "Invalid period", err)
		return
	}

	preview, err := h.Service.Preview(r.Context(), period)
	if err != nil {
		writeRunError(w, "Preview failed", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"paylines-%s-%s.csv\"", period.Start, period.End))
	w.WriteHeader(http.StatusOK)
	if err := payrun.WriteLinesCSV(w, preview.Lines); err != nil {
		log.Printf("[API] writing CSV for %s: %v", period, err)
	}
}

// Sync reconciles the requested period with the payroll system.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRunRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, err := h.resolvePeriod(r.Context(), req.Start, req.End)
	if err != nil {
		writeRunError(w, "Invalid period", err)
		return
	}

	result, err := h.Service.Sync(r.Context(), period, payrun.SyncOptions{
		DryRun:            req.DryRun,
		SkipLeave:         req.SkipLeave,
		BlockOnUnresolved: req.BlockOnUnresolved,
	})
	if err != nil {
		writeRunError(w, "Sync failed", err)
		return
	}

	status := http.StatusOK
	if result.Blocked {
		status = http.StatusConflict
	}
	writeJSON(w, status, result)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) today() generic.Date {
	if h.Today != nil {
		return h.Today()
	}
	return generic.Today()
}

// resolvePeriod parses start and end, or defaults to the current calendar
// period when both are empty.
func (h *Handler) resolvePeriod(ctx context.Context, start, end string) (generic.Period, error) {
	if start == "" && end == "" {
		return h.Service.CurrentPeriod(ctx, h.today())
	}
	return parsePeriod(start, end)
}

func parsePeriod(start, end string) (generic.Period, error) {
	if start == "" || end == "" {
		return generic.Period{}, fmt.Errorf("%w: start and end are both required", generic.ErrInvalidPeriod)
	}
	s, err := generic.ParseDate(start)
	if err != nil {
		return generic.Period{}, fmt.Errorf("%w: start: %v", generic.ErrInvalidPeriod, err)
	}
	e, err := generic.ParseDate(end)
	if err != nil {
		return generic.Period{}, fmt.Errorf("%w: end: %v", generic.ErrInvalidPeriod, err)
	}
	return generic.NewPeriod(s, e)
}

func periodFromQuery(r *http.Request) (generic.Period, error) {
	q := r.URL.Query()
	return parsePeriod(q.Get("start"), q.Get("end"))
}

// decodeRunRequest accepts an empty body as the zero request.
func decodeRunRequest(r *http.Request) (RunRequest, error) {
	var req RunRequest
	if r.Body == nil {
		return req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	return req, nil
}

// writeRunError maps run failures to HTTP statuses.
func writeRunError(w http.ResponseWriter, message string, err error) {
	switch {
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, payrun.ErrNoCalendar):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case generic.IsExternal(err):
		writeError(w, http.StatusBadGateway, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
