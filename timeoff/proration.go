/*
proration.go - Calendar-year proration of time-off allowances

PURPOSE:
  Pure functions turning an annual allowance into the share earned over the
  remaining part of a calendar year. No I/O, no clock.

FORMULAS:
  hired:                allowance × remaining / daysInYear
  contract end:        -previous × remaining / daysInYear
  work contract change: (current - previous) × remaining / daysInYear
                        (current, unchanged, when the change is on 1 January)

  remaining counts the reference date itself through 31 December.

PRECISION:
  Day counts are integers and the multiplication happens before the division,
  so results carry no float drift.

EXAMPLE:
  HiredProration(2400 min, 2024-07-01)
    2024 is a leap year (366 days), 184 days remain
    2400 × 184 / 366 = 1206.557...

SEE ALSO:
  - accrual.go: Uses these to price assignation entries
  - ledger.go: Uses ContractEndProration for end-of-contract entries
*/
package timeoff

import (
	"github.com/shopspring/decimal"
	"github.com/warp/employment-engine/generic"
)

// DaysInYear returns 366 for leap years, 365 otherwise.
func DaysInYear(date generic.TimePoint) int {
	return generic.DaysBetween(generic.StartOfYear(date.Year()), generic.StartOfYear(date.Year()+1))
}

// DaysUntilYearEnd counts the days from date through 31 December, inclusive.
func DaysUntilYearEnd(date generic.TimePoint) int {
	return generic.DaysBetween(date.Date(), generic.EndOfYear(date.Year())) + 1
}

// HiredProration is the share of currentAllowance earned from date to year end.
func HiredProration(currentAllowance generic.Amount, date generic.TimePoint) generic.Amount {
	return prorate(currentAllowance, date)
}

// ContractEndProration removes the unearned remainder of previousAllowance.
func ContractEndProration(previousAllowance generic.Amount, date generic.TimePoint) generic.Amount {
	return prorate(previousAllowance, date).Neg()
}

// WorkContractChangeProration prorates the difference between two annual
// allowances. On 1 January the new allowance applies in full.
func WorkContractChangeProration(currentAllowance, previousAllowance generic.Amount, date generic.TimePoint) generic.Amount {
	if date.IsJanuaryFirst() {
		return currentAllowance
	}
	return prorate(currentAllowance.Sub(previousAllowance), date)
}

func prorate(allowance generic.Amount, date generic.TimePoint) generic.Amount {
	remaining := decimal.NewFromInt(int64(DaysUntilYearEnd(date)))
	days := decimal.NewFromInt(int64(DaysInYear(date)))
	return allowance.Mul(remaining).Div(days)
}
