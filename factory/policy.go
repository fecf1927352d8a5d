/*
Package factory provides JSON to Go policy conversion.

PURPOSE:
  Converts the JSON payloads of the policy-management collaborator into
  generic.TimeOffPolicy and generic.Category values, validating them on
  the way in. Policies are read-mostly for the engine; this is the only
  place their wire shape is known.

JSON SCHEMA:
  {
    "id": "vac-2400",
    "account_id": "acme",
    "category_id": "acme-vacation",
    "name": "Vacation",
    "policy_type": "balancer",      // balancer | counter
    "amount": "2400",               // number or string
    "unit": "minutes",              // days | hours | minutes
    "start_day": 1,
    "start_month": 1,
    "active": true,                 // default true
    "reset": false
  }

VALIDATION:
  - id, category_id required
  - policy_type one of balancer/counter
  - amount not negative
  - start_day/start_month a real calendar day (29 February allowed)

USAGE:
  factory := NewPolicyFactory()
  policy, err := factory.ParsePolicy(jsonString)

  // From a domain preset
  jsonStr := timeoff.VacationPolicyJSON("acme", "vac-2400", "acme-vacation", "2400", "minutes")
  policy, err := factory.ParsePolicy(jsonStr)

SEE ALSO:
  - generic/policy.go: TimeOffPolicy type definition
  - timeoff/factory.go: JSON presets
  - timeoff/policies.go: Go presets
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/employment-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a time-off policy.
type PolicyJSON struct {
	ID         string          `json:"id"`
	AccountID  string          `json:"account_id"`
	CategoryID string          `json:"category_id"`
	Name       string          `json:"name"`
	PolicyType string          `json:"policy_type"`
	Amount     decimal.Decimal `json:"amount"`
	Unit       string          `json:"unit"`
	StartDay   int             `json:"start_day,omitempty"`   // default 1
	StartMonth int             `json:"start_month,omitempty"` // default 1
	Active     *bool           `json:"active,omitempty"`      // default true
	Reset      bool            `json:"reset,omitempty"`
}

// CategoryJSON is the JSON representation of a time-off category.
type CategoryJSON struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	ParentID  string `json:"parent_id,omitempty"`
	System    bool   `json:"system,omitempty"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to Go structs.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON string into a TimeOffPolicy.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (*generic.TimeOffPolicy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON validates pj and converts it to a TimeOffPolicy.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (*generic.TimeOffPolicy, error) {
	if pj.ID == "" {
		return nil, &generic.ValidationError{Field: "id", Message: "required"}
	}
	if pj.CategoryID == "" {
		return nil, &generic.ValidationError{Field: "category_id", Message: "required"}
	}
	policyType, err := parsePolicyType(pj.PolicyType)
	if err != nil {
		return nil, err
	}
	if pj.Amount.IsNegative() {
		return nil, &generic.ValidationError{Field: "amount", Message: "must not be negative"}
	}
	day, month, err := parseCycleStart(pj.StartDay, pj.StartMonth)
	if err != nil {
		return nil, err
	}

	active := true
	if pj.Active != nil {
		active = *pj.Active
	}
	name := pj.Name
	if name == "" {
		name = pj.ID
	}

	return &generic.TimeOffPolicy{
		ID:         generic.PolicyID(pj.ID),
		AccountID:  generic.AccountID(pj.AccountID),
		CategoryID: generic.CategoryID(pj.CategoryID),
		Name:       name,
		Type:       policyType,
		Amount:     generic.NewAmountFromDecimal(pj.Amount, parseUnit(pj.Unit)),
		StartDay:   day,
		StartMonth: month,
		Active:     active,
		Reset:      pj.Reset,
	}, nil
}

// ToJSON converts a TimeOffPolicy to PolicyJSON.
func (f *PolicyFactory) ToJSON(policy *generic.TimeOffPolicy) PolicyJSON {
	active := policy.Active
	return PolicyJSON{
		ID:         string(policy.ID),
		AccountID:  string(policy.AccountID),
		CategoryID: string(policy.CategoryID),
		Name:       policy.Name,
		PolicyType: string(policy.Type),
		Amount:     policy.Amount.Value,
		Unit:       string(policy.Amount.Unit),
		StartDay:   policy.StartDay,
		StartMonth: int(policy.StartMonth),
		Active:     &active,
		Reset:      policy.Reset,
	}
}

// ParseCategory parses a JSON string into a Category.
func (f *PolicyFactory) ParseCategory(jsonStr string) (*generic.Category, error) {
	var cj CategoryJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, fmt.Errorf("failed to parse category JSON: %w", err)
	}
	return f.CategoryFromJSON(cj)
}

// CategoryFromJSON validates cj and converts it to a Category.
func (f *PolicyFactory) CategoryFromJSON(cj CategoryJSON) (*generic.Category, error) {
	if cj.ID == "" {
		return nil, &generic.ValidationError{Field: "id", Message: "required"}
	}
	if cj.Name == "" {
		return nil, &generic.ValidationError{Field: "name", Message: "required"}
	}
	if cj.ParentID == cj.ID {
		return nil, &generic.ValidationError{Field: "parent_id", Message: "a category cannot be its own parent"}
	}
	return &generic.Category{
		ID:        generic.CategoryID(cj.ID),
		AccountID: generic.AccountID(cj.AccountID),
		Name:      cj.Name,
		ParentID:  generic.CategoryID(cj.ParentID),
		System:    cj.System,
	}, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseUnit(s string) generic.Unit {
	switch s {
	case "hours":
		return generic.UnitHours
	case "minutes":
		return generic.UnitMinutes
	default:
		return generic.UnitDays
	}
}

func parsePolicyType(s string) (generic.PolicyType, error) {
	switch s {
	case "balancer", "":
		return generic.PolicyBalancer, nil
	case "counter":
		return generic.PolicyCounter, nil
	default:
		return "", &generic.ValidationError{Field: "policy_type", Message: "unknown policy type " + s}
	}
}

func parseCycleStart(day, month int) (int, time.Month, error) {
	if day == 0 {
		day = 1
	}
	if month == 0 {
		month = 1
	}
	if month < 1 || month > 12 {
		return 0, 0, &generic.ValidationError{Field: "start_month", Message: fmt.Sprintf("%d is not a month", month)}
	}
	// 2024 is a leap year, so 29 February passes.
	last := time.Date(2024, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day < 1 || day > last {
		return 0, 0, &generic.ValidationError{Field: "start_day", Message: fmt.Sprintf("%d is not a day of month %d", day, month)}
	}
	return day, time.Month(month), nil
}
