package timeoff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/employment-engine/generic"
	"github.com/warp/employment-engine/timeoff"
)

func minutes(n int) generic.Amount { return generic.NewAmountFromInt(n, generic.UnitMinutes) }

func assertAmount(t *testing.T, want string, got generic.Amount, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, want, got.Value.Round(2).StringFixed(2), msgAndArgs...)
}

func TestDaysInYear(t *testing.T) {
	assert.Equal(t, 366, timeoff.DaysInYear(generic.MustParseDate("2024-06-01")))
	assert.Equal(t, 365, timeoff.DaysInYear(generic.MustParseDate("2025-06-01")))
}

func TestDaysUntilYearEnd_IncludesReferenceDay(t *testing.T) {
	assert.Equal(t, 1, timeoff.DaysUntilYearEnd(generic.MustParseDate("2024-12-31")))
	assert.Equal(t, 184, timeoff.DaysUntilYearEnd(generic.MustParseDate("2024-07-01")))
	assert.Equal(t, 366, timeoff.DaysUntilYearEnd(generic.MustParseDate("2024-01-01")))
}

func TestHiredProration(t *testing.T) {
	// GIVEN: 2400 minutes a year, hired on 2024-07-01 (leap year, 184 days left)
	// THEN: 2400 × 184 / 366
	got := timeoff.HiredProration(minutes(2400), generic.MustParseDate("2024-07-01"))
	assertAmount(t, "1206.56", got)
	assert.Equal(t, generic.UnitMinutes, got.Unit)

	// Non-leap year, 306 days left out of 365
	assertAmount(t, "306.00", timeoff.HiredProration(generic.NewAmountFromInt(365, generic.UnitDays), generic.MustParseDate("2025-03-01")))
}

func TestContractEndProration_IsNegative(t *testing.T) {
	// 122 days left after 2024-09-01 inclusive: 2400 × 122 / 366 = 800
	got := timeoff.ContractEndProration(minutes(2400), generic.MustParseDate("2024-09-01"))
	assertAmount(t, "-800.00", got)
}

func TestWorkContractChangeProration(t *testing.T) {
	// GIVEN: allowance drops from 2400 to 1200 on 2024-07-01
	got := timeoff.WorkContractChangeProration(minutes(1200), minutes(2400), generic.MustParseDate("2024-07-01"))

	// THEN: the difference is prorated
	assertAmount(t, "-603.28", got)
}

func TestWorkContractChangeProration_JanuaryFirst(t *testing.T) {
	// On 1 January the new allowance applies in full, the old one is ignored.
	got := timeoff.WorkContractChangeProration(minutes(1200), minutes(2400), generic.MustParseDate("2025-01-01"))
	assertAmount(t, "1200.00", got)
}
