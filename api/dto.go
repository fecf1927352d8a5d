/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Events:       RecordEventRequest, HireDTO, EventDTO
  Assignments:  AssignRequest, AssignResultDTO, IntervalDTO
  Ledger:       RecordEntryRequest, EntryDTO, BalanceDTO
  Catalog:      WorkingPlaceRequest, PresencePolicyRequest (policies and
                categories reuse factory.PolicyJSON / factory.CategoryJSON)
  Scenarios:    ScenarioDTO, LoadScenarioRequest
  Errors:       ErrorResponse

VALIDATION:
  Request types carry go-playground/validator tags. Handlers call
  validate.Struct before converting to domain types; domain rules
  (lifecycle conflicts, unknown policies) are left to the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON, CategoryJSON
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/employment-engine/generic"
)

// =============================================================================
// EVENTS
// =============================================================================

// RecordEventRequest records a lifecycle event for the employee in the URL.
type RecordEventRequest struct {
	ID             string           `json:"id,omitempty"`
	AccountID      string           `json:"account_id" validate:"required"`
	Kind           string           `json:"kind" validate:"required,oneof=hired contract_end work_contract_change marriage divorce birth other"`
	EffectiveAt    string           `json:"effective_at" validate:"required,datetime=2006-01-02"`
	Hire           *HireDTO         `json:"hire,omitempty"`
	OccupationRate *decimal.Decimal `json:"occupation_rate,omitempty"`
}

// HireDTO lists the assignments a hire opens.
type HireDTO struct {
	WorkingPlaceID   string           `json:"working_place_id,omitempty"`
	PresencePolicyID string           `json:"presence_policy_id,omitempty"`
	TimeOffPolicyIDs []string         `json:"time_off_policy_ids,omitempty"`
	OccupationRate   *decimal.Decimal `json:"occupation_rate,omitempty"`
}

// EventDTO represents a lifecycle event in API responses.
type EventDTO struct {
	ID               string           `json:"id"`
	AccountID        string           `json:"account_id"`
	EmployeeID       string           `json:"employee_id"`
	Kind             string           `json:"kind"`
	EffectiveAt      string           `json:"effective_at"`
	Hire             *HireDTO         `json:"hire,omitempty"`
	OccupationRate   *decimal.Decimal `json:"occupation_rate,omitempty"`
	LinkedIntervalID string           `json:"linked_interval_id,omitempty"`
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

// AssignRequest puts a policy in force from a date.
type AssignRequest struct {
	Dimension      string           `json:"dimension" validate:"required,oneof=working_place presence_policy time_off_policy"`
	PolicyID       string           `json:"policy_id" validate:"required"`
	EffectiveAt    string           `json:"effective_at" validate:"required,datetime=2006-01-02"`
	StartDayOrder  int              `json:"start_day_order,omitempty" validate:"gte=0"`
	OccupationRate *decimal.Decimal `json:"occupation_rate,omitempty"`
}

// IntervalDTO represents an assignment interval. EffectiveTill is exclusive
// and omitted for the current interval.
type IntervalDTO struct {
	ID             string           `json:"id"`
	Dimension      string           `json:"dimension"`
	PolicyID       string           `json:"policy_id"`
	CategoryID     string           `json:"category_id,omitempty"`
	EffectiveAt    string           `json:"effective_at"`
	EffectiveTill  *string          `json:"effective_till,omitempty"`
	OccupationRate *decimal.Decimal `json:"occupation_rate,omitempty"`
	StartDayOrder  int              `json:"start_day_order,omitempty"`
	EventID        string           `json:"event_id,omitempty"`
}

// AssignResultDTO reports the interval in force at the assignment date.
type AssignResultDTO struct {
	Outcome  string      `json:"outcome"`
	Interval IntervalDTO `json:"interval"`
}

// =============================================================================
// LEDGER
// =============================================================================

// RecordEntryRequest appends a manual correction or a time-off removal.
type RecordEntryRequest struct {
	ID          string          `json:"id,omitempty"`
	AccountID   string          `json:"account_id" validate:"required"`
	CategoryID  string          `json:"category_id" validate:"required"`
	Type        string          `json:"type" validate:"required,oneof=manual removal"`
	Amount      decimal.Decimal `json:"amount"`
	Unit        string          `json:"unit" validate:"required,oneof=minutes hours days"`
	EffectiveAt string          `json:"effective_at" validate:"required"`
	Reason      string          `json:"reason,omitempty"`
}

// EntryDTO represents a ledger entry.
type EntryDTO struct {
	ID          string          `json:"id"`
	CategoryID  string          `json:"category_id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Unit        string          `json:"unit"`
	EffectiveAt string          `json:"effective_at"`
	EventID     string          `json:"event_id,omitempty"`
	IntervalID  string          `json:"interval_id,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

// BalanceDTO is the running balance of one category on a date.
type BalanceDTO struct {
	EmployeeID string          `json:"employee_id"`
	CategoryID string          `json:"category_id"`
	AsOf       string          `json:"as_of"`
	Amount     decimal.Decimal `json:"amount"`
	Unit       string          `json:"unit"`
}

// =============================================================================
// CATALOG
// =============================================================================

type WorkingPlaceRequest struct {
	ID        string `json:"id" validate:"required"`
	AccountID string `json:"account_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
}

type PresencePolicyRequest struct {
	ID          string          `json:"id" validate:"required"`
	AccountID   string          `json:"account_id" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	HoursPerDay decimal.Decimal `json:"hours_per_day"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse represents an API error. Code is machine-readable
// (conflict.before_hire, not_found.employee, ...).
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEventDTO(e generic.Event) EventDTO {
	dto := EventDTO{
		ID:               string(e.ID),
		AccountID:        string(e.AccountID),
		EmployeeID:       string(e.EmployeeID),
		Kind:             string(e.Kind),
		EffectiveAt:      e.EffectiveAt.String(),
		OccupationRate:   e.OccupationRate,
		LinkedIntervalID: string(e.LinkedIntervalID),
	}
	if e.Hire != nil {
		hire := &HireDTO{
			WorkingPlaceID:   string(e.Hire.WorkingPlaceID),
			PresencePolicyID: string(e.Hire.PresencePolicyID),
			OccupationRate:   e.Hire.OccupationRate,
		}
		for _, id := range e.Hire.TimeOffPolicyIDs {
			hire.TimeOffPolicyIDs = append(hire.TimeOffPolicyIDs, string(id))
		}
		dto.Hire = hire
	}
	return dto
}

func toIntervalDTO(iv generic.Interval) IntervalDTO {
	dto := IntervalDTO{
		ID:             string(iv.ID),
		Dimension:      string(iv.Dimension),
		PolicyID:       string(iv.PolicyID),
		CategoryID:     string(iv.CategoryID),
		EffectiveAt:    iv.EffectiveAt.String(),
		OccupationRate: iv.OccupationRate,
		StartDayOrder:  iv.StartDayOrder,
		EventID:        string(iv.EventID),
	}
	if iv.EffectiveTill != nil {
		till := iv.EffectiveTill.String()
		dto.EffectiveTill = &till
	}
	return dto
}

func toIntervalDTOs(ivs []generic.Interval) []IntervalDTO {
	out := make([]IntervalDTO, len(ivs))
	for i, iv := range ivs {
		out[i] = toIntervalDTO(iv)
	}
	return out
}

func toEntryDTO(e generic.Entry) EntryDTO {
	return EntryDTO{
		ID:          string(e.ID),
		CategoryID:  string(e.CategoryID),
		Type:        string(e.Type),
		Amount:      e.Amount.Value,
		Unit:        string(e.Amount.Unit),
		EffectiveAt: e.EffectiveAt.String(),
		EventID:     string(e.EventID),
		IntervalID:  string(e.IntervalID),
		Reason:      e.Reason,
	}
}
