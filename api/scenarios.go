/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	employment histories. Every scenario goes through the engine, so the
	intervals and ledger it leaves behind are exactly what the API would
	produce for the same calls.

AVAILABLE SCENARIOS:

	hire-end-rehire:  Hired 2024-03-01, contract ends 2024-09-01, rehired 2025-01-15
	mid-year-hire:    Hired 2024-07-01, prorated vacation
	part-time-switch: Full time from 2024-03-01, half time from 2024-07-01

HOW SCENARIOS WORK:
 1. Reset database (clear all data) and renew the engine
 2. Create the demo catalog from policy JSON via the factory
 3. Record lifecycle events through the engine

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "hire-end-rehire"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - timeoff/factory.go: Policy JSON presets
  - factory/policy.go: JSON parsing
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/employment-engine/factory"
	"github.com/warp/employment-engine/generic"
	"github.com/warp/employment-engine/timeoff"
)

// DemoAccount owns every scenario record.
const DemoAccount = "demo"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "hire-end-rehire",
		Name:        "Hire, Contract End, Rehire",
		Description: "Vacation prorated on hire, unearned days removed at contract end, previous policies restored on rehire",
	},
	{
		ID:          "mid-year-hire",
		Name:        "Mid-Year Hire",
		Description: "Hired on 1 July of a leap year: 184/366 of the yearly allowance",
	},
	{
		ID:          "part-time-switch",
		Name:        "Part-Time Switch",
		Description: "Occupation rate drops to 50% mid-year, the difference is prorated",
	},
}

var scenarioLoaders = map[string]func(*Handler, context.Context) error{
	"hire-end-rehire":  (*Handler).loadHireEndRehireScenario,
	"mid-year-hire":    (*Handler).loadMidYearHireScenario,
	"part-time-switch": (*Handler).loadPartTimeSwitchScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(h, ctx); err != nil {
		writeEngineError(w, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Logger.Info("scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.renewEngine()

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// Demo catalog IDs.
const (
	demoVacationPolicy = "demo-vacation-25d"
	demoSickPolicy     = "demo-sick"
	demoSickCategory   = "demo-sick"
	demoOffice         = "demo-office"
	demoFullTime       = "demo-full-time"
)

// seedCatalog creates the demo categories and policies: 25 vacation days a
// year (in minutes, 8h days) and 10 sick days reset every January.
func (h *Handler) seedCatalog(ctx context.Context) error {
	vacation, err := h.PolicyFactory.ParseCategory(timeoff.VacationCategoryJSON(DemoAccount))
	if err != nil {
		return err
	}
	sick, err := h.PolicyFactory.CategoryFromJSON(factory.CategoryJSON{ID: demoSickCategory, AccountID: DemoAccount, Name: "sick"})
	if err != nil {
		return err
	}
	for _, c := range []*generic.Category{vacation, sick} {
		if err := h.Store.SaveCategory(ctx, *c); err != nil {
			return err
		}
	}

	policies := []string{
		timeoff.VacationPolicyJSON(DemoAccount, demoVacationPolicy, string(vacation.ID), "12000", "minutes"),
		timeoff.SickLeaveJSON(DemoAccount, demoSickPolicy, demoSickCategory, "10", "days"),
	}
	for _, pj := range policies {
		if err := h.createPolicyFromJSON(ctx, pj); err != nil {
			return err
		}
	}

	if err := h.Store.SaveWorkingPlace(ctx, generic.WorkingPlace{ID: demoOffice, AccountID: DemoAccount, Name: "Head Office"}); err != nil {
		return err
	}
	return h.Store.SavePresencePolicy(ctx, generic.PresencePolicy{
		ID:          demoFullTime,
		AccountID:   DemoAccount,
		Name:        "Full time",
		HoursPerDay: generic.MustParseDecimal("8"),
	})
}

func (h *Handler) createPolicyFromJSON(ctx context.Context, jsonStr string) error {
	policy, err := h.PolicyFactory.ParsePolicy(jsonStr)
	if err != nil {
		return err
	}
	return h.Store.SaveTimeOffPolicy(ctx, *policy)
}

func demoHire(id generic.EventID, employeeID generic.EmployeeID, on string) generic.Event {
	return generic.Event{
		ID:          id,
		AccountID:   DemoAccount,
		EmployeeID:  employeeID,
		Kind:        generic.EventHired,
		EffectiveAt: generic.MustParseDate(on),
		Hire: &generic.HirePayload{
			WorkingPlaceID:   demoOffice,
			PresencePolicyID: demoFullTime,
			TimeOffPolicyIDs: []generic.PolicyID{demoVacationPolicy, demoSickPolicy},
		},
	}
}

// record applies events in order through the engine.
func (h *Handler) record(ctx context.Context, events ...generic.Event) error {
	engine := h.Engine()
	for _, e := range events {
		if _, err := engine.Handle(ctx, e); err != nil {
			return fmt.Errorf("%s %s: %w", e.Kind, e.ID, err)
		}
	}
	return nil
}

func (h *Handler) loadHireEndRehireScenario(ctx context.Context) error {
	if err := h.seedCatalog(ctx); err != nil {
		return err
	}
	const emp = "emp-001"
	return h.record(ctx,
		demoHire("emp-001-hire", emp, "2024-03-01"),
		generic.Event{ID: "emp-001-end", AccountID: DemoAccount, EmployeeID: emp, Kind: generic.EventContractEnd, EffectiveAt: generic.MustParseDate("2024-09-01")},
		// No payload: the policies in force before the contract end come back.
		generic.Event{ID: "emp-001-rehire", AccountID: DemoAccount, EmployeeID: emp, Kind: generic.EventHired, EffectiveAt: generic.MustParseDate("2025-01-15")},
	)
}

func (h *Handler) loadMidYearHireScenario(ctx context.Context) error {
	if err := h.seedCatalog(ctx); err != nil {
		return err
	}
	return h.record(ctx, demoHire("emp-002-hire", "emp-002", "2024-07-01"))
}

func (h *Handler) loadPartTimeSwitchScenario(ctx context.Context) error {
	if err := h.seedCatalog(ctx); err != nil {
		return err
	}
	half := generic.MustParseDecimal("0.5")
	return h.record(ctx,
		demoHire("emp-003-hire", "emp-003", "2024-03-01"),
		generic.Event{ID: "emp-003-part-time", AccountID: DemoAccount, EmployeeID: "emp-003", Kind: generic.EventWorkContractChange, EffectiveAt: generic.MustParseDate("2024-07-01"), OccupationRate: &half},
	)
}
