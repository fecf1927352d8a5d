/*
Package timeoff provides time-off policy presets as JSON payloads.

These build the JSON the policy-management collaborator sends, for tests
and demo scenarios. They construct JSON directly to avoid import cycles
with the factory package.

USAGE:
  import "github.com/warp/employment-engine/timeoff"

  jsonStr := timeoff.VacationPolicyJSON("acme", "vac-2400", "acme-vacation", "2400", "minutes")
  policy, err := factory.NewPolicyFactory().ParsePolicy(jsonStr)
*/
package timeoff

import (
	"encoding/json"

	"github.com/warp/employment-engine/generic"
)

// VacationPolicyJSON returns JSON for a calendar-year vacation balancer.
func VacationPolicyJSON(accountID, id, categoryID, amount, unit string) string {
	return policyJSON(map[string]interface{}{
		"id":          id,
		"account_id":  accountID,
		"category_id": categoryID,
		"name":        "Vacation",
		"policy_type": "balancer",
		"amount":      amount,
		"unit":        unit,
		"start_day":   1,
		"start_month": 1,
		"active":      true,
	})
}

// SickLeaveJSON returns JSON for a sick-leave balancer reset every year.
func SickLeaveJSON(accountID, id, categoryID, amount, unit string) string {
	return policyJSON(map[string]interface{}{
		"id":          id,
		"account_id":  accountID,
		"category_id": categoryID,
		"name":        "Sick Leave",
		"policy_type": "balancer",
		"amount":      amount,
		"unit":        unit,
		"start_day":   1,
		"start_month": 1,
		"active":      true,
		"reset":       true,
	})
}

// BonusDaysJSON returns JSON for a counter credited on startDay/startMonth.
func BonusDaysJSON(accountID, id, categoryID, amount, unit string, startDay, startMonth int) string {
	return policyJSON(map[string]interface{}{
		"id":          id,
		"account_id":  accountID,
		"category_id": categoryID,
		"name":        "Bonus Days",
		"policy_type": "counter",
		"amount":      amount,
		"unit":        unit,
		"start_day":   startDay,
		"start_month": startMonth,
		"active":      true,
	})
}

// VacationCategoryJSON returns JSON for the account's vacation category.
func VacationCategoryJSON(accountID string) string {
	c := VacationCategory(generic.AccountID(accountID))
	return policyJSON(map[string]interface{}{
		"id":         string(c.ID),
		"account_id": accountID,
		"name":       c.Name,
		"system":     true,
	})
}

func policyJSON(pj map[string]interface{}) string {
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}
