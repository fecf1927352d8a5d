/*
policies.go - Pre-built time-off catalog entries

PURPOSE:
  Ready-to-use categories and policies for the common cases. Tests, the
  demo scenarios and new accounts start from these.

AVAILABLE POLICIES:
  VacationPolicy:   Balancer on the calendar year, prorated on hire
  SickLeavePolicy:  Balancer that resets every 1 January
  BonusDaysPolicy:  Counter crediting a flat amount each cycle

CUSTOMIZATION:
  These are starting points. Set StartDay/StartMonth for a fiscal-year
  cycle, Reset to cancel carry-over, Active=false to stop accrual.

EXAMPLE:
  vacation := timeoff.VacationCategory("acme")
  policy := timeoff.VacationPolicy("acme", "vac-2400", vacation.ID,
      generic.NewAmountFromInt(2400, generic.UnitMinutes))

SEE ALSO:
  - factory.go: The same presets as JSON payloads
  - generic/policy.go: TimeOffPolicy type definition
*/
package timeoff

import (
	"time"

	"github.com/warp/employment-engine/generic"
)

// =============================================================================
// CATEGORIES
// =============================================================================

// VacationCategory returns the account's system vacation category, the one
// end-of-contract entries are written to.
func VacationCategory(accountID generic.AccountID) generic.Category {
	return generic.Category{
		ID:        generic.CategoryID(string(accountID) + "-vacation"),
		AccountID: accountID,
		Name:      generic.VacationCategoryName,
		System:    true,
	}
}

// Category returns a custom category.
func Category(accountID generic.AccountID, id generic.CategoryID, name string) generic.Category {
	return generic.Category{ID: id, AccountID: accountID, Name: name}
}

// =============================================================================
// COMMON TIME-OFF POLICIES
// =============================================================================

// VacationPolicy returns a calendar-year balancer granting amount per year.
func VacationPolicy(accountID generic.AccountID, id generic.PolicyID, categoryID generic.CategoryID, amount generic.Amount) generic.TimeOffPolicy {
	return generic.TimeOffPolicy{
		ID:         id,
		AccountID:  accountID,
		CategoryID: categoryID,
		Name:       "Vacation",
		Type:       generic.PolicyBalancer,
		Amount:     amount,
		StartDay:   1,
		StartMonth: time.January,
		Active:     true,
	}
}

// SickLeavePolicy returns a calendar-year balancer whose balance is reset
// each year.
func SickLeavePolicy(accountID generic.AccountID, id generic.PolicyID, categoryID generic.CategoryID, amount generic.Amount) generic.TimeOffPolicy {
	p := VacationPolicy(accountID, id, categoryID, amount)
	p.Name = "Sick Leave"
	p.Reset = true
	return p
}

// BonusDaysPolicy returns a counter crediting amount on every cycle start.
func BonusDaysPolicy(accountID generic.AccountID, id generic.PolicyID, categoryID generic.CategoryID, amount generic.Amount, startDay int, startMonth time.Month) generic.TimeOffPolicy {
	return generic.TimeOffPolicy{
		ID:         id,
		AccountID:  accountID,
		CategoryID: categoryID,
		Name:       "Bonus Days",
		Type:       generic.PolicyCounter,
		Amount:     amount,
		StartDay:   startDay,
		StartMonth: startMonth,
		Active:     true,
	}
}
