/*
policy.go - Policies an employee can be assigned to

PURPOSE:
  The three assignable dimensions each have their own policy record:
  working places, presence policies and time-off policies. Only time-off
  policies carry accrual rules; the other two are plain references.

TIME-OFF POLICY TYPES:
  counter:
    - Flat recurring credit: Amount at each cycle start, no proration
  balancer:
    - Annual allowance prorated over the remaining part of the cycle
      when an assignment starts mid-year

CYCLE:
  StartDay/StartMonth anchor the yearly accrual cycle (1 January for a
  calendar-year policy). Reset policies cancel the running balance at each
  cycle start before the new allowance is credited.

SEE ALSO:
  - interval.go: How policies are assigned over time
  - factory/policy.go: JSON payloads from the policy-management collaborator
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIME-OFF CATEGORY
// =============================================================================

// VacationCategoryName identifies the category that carries end-of-contract
// adjustments.
const VacationCategoryName = "vacation"

type Category struct {
	ID        CategoryID
	AccountID AccountID
	Name      string
	ParentID  CategoryID // optional grouping
	System    bool
}

func (c Category) IsVacation() bool { return c.Name == VacationCategoryName }

// =============================================================================
// TIME-OFF POLICY
// =============================================================================

type PolicyType string

const (
	PolicyCounter  PolicyType = "counter"
	PolicyBalancer PolicyType = "balancer"
)

type TimeOffPolicy struct {
	ID         PolicyID
	AccountID  AccountID
	CategoryID CategoryID
	Name       string
	Type       PolicyType
	Amount     Amount // annual allowance (balancer) or per-cycle credit (counter)
	StartDay   int
	StartMonth time.Month
	Active     bool
	Reset      bool
}

// Cycle returns the yearly accrual cycle of the policy.
func (p TimeOffPolicy) Cycle() Cycle {
	return Cycle{StartDay: p.StartDay, StartMonth: p.StartMonth}
}

// Allowance returns the policy amount scaled by an occupation rate. A nil
// rate means full time.
func (p TimeOffPolicy) Allowance(occupationRate *decimal.Decimal) Amount {
	if occupationRate == nil {
		return p.Amount
	}
	return p.Amount.Mul(*occupationRate)
}

// =============================================================================
// WORKING PLACE / PRESENCE POLICY
// =============================================================================

type WorkingPlace struct {
	ID        PolicyID
	AccountID AccountID
	Name      string
}

type PresencePolicy struct {
	ID          PolicyID
	AccountID   AccountID
	Name        string
	HoursPerDay decimal.Decimal
}
