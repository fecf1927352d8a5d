/*
handlers.go - HTTP API handlers for the employment engine

PURPOSE:
  Exposes the lifecycle engine via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to timeoff.Engine.

ENDPOINTS:
  Lifecycle:
    POST   /api/employees/{id}/events        Record + apply a lifecycle event
    GET    /api/employees/{id}/events        Lifecycle history
    DELETE /api/events/{id}                  Delete an event (contract ends are undone)

  Assignments:
    POST   /api/employees/{id}/assignments   Assign a policy from a date
    GET    /api/employees/{id}/assignments   ?dimension=&from=&to=&category=&policy=
    GET    /api/employees/{id}/assignments/{dimension}/{interval}/sequence

  Ledger:
    GET    /api/employees/{id}/balance       ?category=&as_of=
    GET    /api/employees/{id}/entries       ?category=
    POST   /api/employees/{id}/entries       Manual correction or removal

  Catalog:
    GET/POST /api/policies, GET /api/policies/{id}
    GET/POST /api/categories
    POST     /api/working-places
    POST     /api/presence-policies

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Catalog writes and scenario resets
  - engine: Every lifecycle, assignment and ledger operation
  - PolicyFactory: JSON to TimeOffPolicy conversion

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (go-playground/validator)
  3. Call the engine
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON with a machine-readable code:
  - 400: Validation errors, invalid input           (invalid_input)
  - 404: Unknown employee, policy, event            (not_found.<kind>)
  - 409: Lifecycle conflicts                        (conflict.*)
  - 500: Inconsistent stored state, internal errors (inconsistent_state, internal)

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/employment-engine/factory"
	"github.com/warp/employment-engine/generic"
	"github.com/warp/employment-engine/timeoff"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the API needs: the engine's store plus a reset
// for demo scenarios.
type Store interface {
	generic.TxStore
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         Store
	PolicyFactory *factory.PolicyFactory
	Clock         generic.Clock
	Logger        *slog.Logger

	validate   *validator.Validate
	engineOpts []timeoff.Option

	mu     sync.RWMutex
	engine *timeoff.Engine

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store. opts configure the
// engine (clock, logger, metrics).
func NewHandler(store Store, opts ...timeoff.Option) *Handler {
	return &Handler{
		Store:         store,
		PolicyFactory: factory.NewPolicyFactory(),
		Clock:         generic.SystemClock{},
		Logger:        slog.Default(),
		validate:      validator.New(),
		engineOpts:    opts,
		engine:        timeoff.NewEngine(store, opts...),
	}
}

// Engine returns the engine serving requests.
func (h *Handler) Engine() *timeoff.Engine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engine
}

// renewEngine drops the engine's caches after the store was reset.
func (h *Handler) renewEngine() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.engine = timeoff.NewEngine(h.Store, h.engineOpts...)
}

// =============================================================================
// LIFECYCLE EVENTS
// =============================================================================

// RecordEvent records a lifecycle event and applies it.
// POST /api/employees/{id}/events
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req RecordEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	effectiveAt, err := generic.ParseDate(req.EffectiveAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_at (use YYYY-MM-DD)", err)
		return
	}

	event := generic.Event{
		ID:             generic.EventID(req.ID),
		AccountID:      generic.AccountID(req.AccountID),
		EmployeeID:     generic.EmployeeID(chi.URLParam(r, "id")),
		Kind:           generic.EventKind(req.Kind),
		EffectiveAt:    effectiveAt,
		OccupationRate: req.OccupationRate,
	}
	if req.Hire != nil {
		event.Hire = &generic.HirePayload{
			WorkingPlaceID:   generic.PolicyID(req.Hire.WorkingPlaceID),
			PresencePolicyID: generic.PolicyID(req.Hire.PresencePolicyID),
			OccupationRate:   req.Hire.OccupationRate,
		}
		for _, id := range req.Hire.TimeOffPolicyIDs {
			event.Hire.TimeOffPolicyIDs = append(event.Hire.TimeOffPolicyIDs, generic.PolicyID(id))
		}
	}

	stored, err := h.Engine().Handle(r.Context(), event)
	if err != nil {
		writeEngineError(w, "Failed to record event", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(stored))
}

// ListEvents returns the employee's lifecycle history in order.
// GET /api/employees/{id}/events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Engine().Events(r.Context(), generic.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to list events", err)
		return
	}

	dtos := make([]EventDTO, len(events))
	for i, e := range events {
		dtos[i] = toEventDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DeleteEvent deletes a lifecycle event. Deleting a contract end reopens
// the assignments it closed and removes its end-of-contract entry.
// DELETE /api/events/{id}
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine().DeleteEvent(r.Context(), generic.EventID(chi.URLParam(r, "id"))); err != nil {
		writeEngineError(w, "Failed to delete event", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

// Assign puts a working place, presence policy or time-off policy in force.
// POST /api/employees/{id}/assignments
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if !h.decode(w, r, &req) {
		return
	}
	effectiveAt, err := generic.ParseDate(req.EffectiveAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_at (use YYYY-MM-DD)", err)
		return
	}

	result, err := h.Engine().Assign(r.Context(), timeoff.AssignRequest{
		EmployeeID:     generic.EmployeeID(chi.URLParam(r, "id")),
		Dimension:      generic.Dimension(req.Dimension),
		PolicyID:       generic.PolicyID(req.PolicyID),
		EffectiveAt:    effectiveAt,
		StartDayOrder:  req.StartDayOrder,
		OccupationRate: req.OccupationRate,
	})
	if err != nil {
		writeEngineError(w, "Failed to assign policy", err)
		return
	}
	writeJSON(w, http.StatusOK, AssignResultDTO{
		Outcome:  string(result.Outcome),
		Interval: toIntervalDTO(result.Interval),
	})
}

// ListAssignments returns the intervals overlapping [from, to). Without a
// dimension every dimension is listed.
// GET /api/employees/{id}/assignments?dimension=&from=&to=&category=&policy=
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := timeoff.PeriodQuery{
		EmployeeID:       generic.EmployeeID(chi.URLParam(r, "id")),
		PolicyID:         generic.PolicyID(q.Get("policy")),
		CategoryID:       generic.CategoryID(q.Get("category")),
		ParentCategoryID: generic.CategoryID(q.Get("parent_category")),
	}
	if from := q.Get("from"); from != "" {
		tp, err := generic.ParseDate(from)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date", err)
			return
		}
		query.From = tp
	}
	if to := q.Get("to"); to != "" {
		tp, err := generic.ParseDate(to)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date", err)
			return
		}
		query.To = &tp
	}

	dims := generic.Dimensions
	if d := q.Get("dimension"); d != "" {
		dims = []generic.Dimension{generic.Dimension(d)}
	}

	out := []IntervalDTO{}
	for _, dim := range dims {
		query.Dimension = dim
		ivs, err := h.Engine().FindInPeriod(r.Context(), query)
		if err != nil {
			writeEngineError(w, "Failed to list assignments", err)
			return
		}
		out = append(out, toIntervalDTOs(ivs)...)
	}
	writeJSON(w, http.StatusOK, out)
}

// DestroyInterval deletes one assignment interval.
// DELETE /api/employees/{id}/assignments/{dimension}/{interval}
func (h *Handler) DestroyInterval(w http.ResponseWriter, r *http.Request) {
	err := h.Engine().DestroyInterval(r.Context(),
		generic.EmployeeID(chi.URLParam(r, "id")),
		generic.Dimension(chi.URLParam(r, "dimension")),
		generic.IntervalID(chi.URLParam(r, "interval")),
	)
	if err != nil {
		writeEngineError(w, "Failed to delete interval", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSequence returns the run of adjacent same-policy intervals containing
// the given one.
// GET /api/employees/{id}/assignments/{dimension}/{interval}/sequence
func (h *Handler) GetSequence(w http.ResponseWriter, r *http.Request) {
	ivs, err := h.Engine().FindSequenceInTime(r.Context(),
		generic.EmployeeID(chi.URLParam(r, "id")),
		generic.Dimension(chi.URLParam(r, "dimension")),
		generic.IntervalID(chi.URLParam(r, "interval")),
	)
	if err != nil {
		writeEngineError(w, "Failed to find sequence", err)
		return
	}
	writeJSON(w, http.StatusOK, toIntervalDTOs(ivs))
}

// =============================================================================
// LEDGER
// =============================================================================

// GetBalance returns the running balance of a category. as_of defaults to
// today.
// GET /api/employees/{id}/balance?category=&as_of=
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	category := r.URL.Query().Get("category")
	if category == "" {
		writeError(w, http.StatusBadRequest, "category is required", nil)
		return
	}

	asOf := generic.DateOf(h.Clock.Now())
	if s := r.URL.Query().Get("as_of"); s != "" {
		tp, err := generic.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
			return
		}
		asOf = tp
	}

	amount, err := h.Engine().RunningBalance(r.Context(), generic.EmployeeID(employeeID), generic.CategoryID(category), asOf)
	if err != nil {
		writeEngineError(w, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		EmployeeID: employeeID,
		CategoryID: category,
		AsOf:       asOf.String(),
		Amount:     amount.Value,
		Unit:       string(amount.Unit),
	})
}

// ListEntries returns a category's ledger in order.
// GET /api/employees/{id}/entries?category=
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		writeError(w, http.StatusBadRequest, "category is required", nil)
		return
	}

	entries, err := h.Engine().Entries(r.Context(), generic.EmployeeID(chi.URLParam(r, "id")), generic.CategoryID(category))
	if err != nil {
		writeEngineError(w, "Failed to list entries", err)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordEntry appends a manual correction or an approved removal.
// POST /api/employees/{id}/entries
func (h *Handler) RecordEntry(w http.ResponseWriter, r *http.Request) {
	var req RecordEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	effectiveAt, err := parseEntryTime(req.EffectiveAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_at (use YYYY-MM-DD or RFC3339)", err)
		return
	}

	saved, err := h.Engine().RecordEntry(r.Context(), generic.Entry{
		ID:          generic.EntryID(req.ID),
		AccountID:   generic.AccountID(req.AccountID),
		EmployeeID:  generic.EmployeeID(chi.URLParam(r, "id")),
		CategoryID:  generic.CategoryID(req.CategoryID),
		Type:        generic.BalanceType(req.Type),
		Amount:      generic.NewAmountFromDecimal(req.Amount, generic.Unit(req.Unit)),
		EffectiveAt: effectiveAt,
		Reason:      req.Reason,
	})
	if err != nil {
		writeEngineError(w, "Failed to record entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(saved))
}

// parseEntryTime accepts a calendar date or an RFC3339 instant.
func parseEntryTime(s string) (generic.TimePoint, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil && strings.Contains(s, "T") {
		return generic.NewInstant(t), nil
	}
	return generic.ParseDate(s)
}

// =============================================================================
// CATALOG
// =============================================================================

// ListPolicies returns the account's time-off policies.
// GET /api/policies?account_id=
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Store.ListTimeOffPolicies(r.Context(), generic.AccountID(r.URL.Query().Get("account_id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list policies", err)
		return
	}

	dtos := make([]factory.PolicyJSON, len(policies))
	for i := range policies {
		dtos[i] = h.PolicyFactory.ToJSON(&policies[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPolicy returns a single time-off policy.
// GET /api/policies/{id}
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.Store.GetTimeOffPolicy(r.Context(), generic.PolicyID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to get policy", err)
		return
	}
	writeJSON(w, http.StatusOK, h.PolicyFactory.ToJSON(&policy))
}

// CreatePolicy creates or replaces a time-off policy from its JSON form.
// Existing assignments keep their ledger until the next recomputation.
// POST /api/policies
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var pj factory.PolicyJSON
	if err := json.NewDecoder(r.Body).Decode(&pj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	policy, err := h.PolicyFactory.FromJSON(pj)
	if err != nil {
		writeEngineError(w, "Invalid policy", err)
		return
	}
	if _, err := h.Store.GetCategory(r.Context(), policy.CategoryID); err != nil {
		writeEngineError(w, "Invalid policy", err)
		return
	}
	if err := h.Store.SaveTimeOffPolicy(r.Context(), *policy); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.PolicyFactory.ToJSON(policy))
}

// ListCategories returns the account's time-off categories.
// GET /api/categories?account_id=
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Store.ListCategories(r.Context(), generic.AccountID(r.URL.Query().Get("account_id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list categories", err)
		return
	}

	dtos := make([]factory.CategoryJSON, len(cats))
	for i, c := range cats {
		dtos[i] = factory.CategoryJSON{
			ID:        string(c.ID),
			AccountID: string(c.AccountID),
			Name:      c.Name,
			ParentID:  string(c.ParentID),
			System:    c.System,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCategory creates or replaces a time-off category.
// POST /api/categories
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var cj factory.CategoryJSON
	if err := json.NewDecoder(r.Body).Decode(&cj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cat, err := h.PolicyFactory.CategoryFromJSON(cj)
	if err != nil {
		writeEngineError(w, "Invalid category", err)
		return
	}
	if err := h.Store.SaveCategory(r.Context(), *cat); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save category", err)
		return
	}
	writeJSON(w, http.StatusCreated, cj)
}

// CreateWorkingPlace creates or replaces a working place.
// POST /api/working-places
func (h *Handler) CreateWorkingPlace(w http.ResponseWriter, r *http.Request) {
	var req WorkingPlaceRequest
	if !h.decode(w, r, &req) {
		return
	}
	wp := generic.WorkingPlace{ID: generic.PolicyID(req.ID), AccountID: generic.AccountID(req.AccountID), Name: req.Name}
	if err := h.Store.SaveWorkingPlace(r.Context(), wp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save working place", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// CreatePresencePolicy creates or replaces a presence policy.
// POST /api/presence-policies
func (h *Handler) CreatePresencePolicy(w http.ResponseWriter, r *http.Request) {
	var req PresencePolicyRequest
	if !h.decode(w, r, &req) {
		return
	}
	pp := generic.PresencePolicy{
		ID:          generic.PolicyID(req.ID),
		AccountID:   generic.AccountID(req.AccountID),
		Name:        req.Name,
		HoursPerDay: req.HoursPerDay,
	}
	if err := h.Store.SavePresencePolicy(r.Context(), pp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save presence policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body. It writes the 400 response and
// returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make([]string, len(ve))
			for i, fe := range ve {
				fields[i] = fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag())
			}
			err = errors.New(strings.Join(fields, "; "))
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Code: "invalid_input", Details: err.Error()})
		return false
	}
	return true
}

// statusOf maps the engine's error taxonomy to HTTP.
func statusOf(err error) int {
	switch {
	case errors.Is(err, generic.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, generic.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, message string, err error) {
	writeJSON(w, statusOf(err), ErrorResponse{
		Error:   message,
		Code:    generic.ErrorCode(err),
		Details: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if status == http.StatusBadRequest {
		resp.Code = "invalid_input"
	}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
