/*
Package generic holds the data model of the employment engine.

PURPOSE:
  Domain types and pure algorithms shared by the engine, the stores and the
  HTTP layer. Nothing in this package performs I/O; persistence is described
  by the interfaces in store.go and implemented in generic/store and
  store/sqlite.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A signed quantity with a unit (minutes, hours, days)
  - Entry: One adjustment in an employee's balance ledger
  - BalanceType: Why an entry exists (assignation, addition, end_of_contract...)
  - Employee: The owner of intervals, entries and lifecycle events

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere money-like quantities are involved
  2. Type Safety: distinct ID types for employees, policies, categories, events
  3. Explicit tenancy: every record carries its AccountID

SEE ALSO:
  - interval.go: Policy assignment intervals and their algebra
  - event.go: Lifecycle events
  - policy.go: Time-off policies and categories
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays    Unit = "days"
	UnitHours   Unit = "hours"
	UnitMinutes Unit = "minutes"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

func NewAmountFromDecimal(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Div(s decimal.Decimal) Amount { return Amount{Value: a.Value.Div(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) && a.Unit == b.Unit }
func (a Amount) String() string               { return a.Value.String() + " " + string(a.Unit) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type EmployeeID string
type PolicyID string
type CategoryID string
type EventID string
type IntervalID string
type EntryID string

// =============================================================================
// EMPLOYEE
// =============================================================================

// Employee is a person under an account. Employment state is derived from
// lifecycle events, never stored.
type Employee struct {
	ID        EmployeeID
	AccountID AccountID
	Name      string
}

// =============================================================================
// LEDGER ENTRY - One signed balance adjustment
// =============================================================================

type BalanceType string

const (
	BalanceAssignation   BalanceType = "assignation"     // Start of a time-off policy interval
	BalanceAddition      BalanceType = "addition"        // Cycle anniversary credit
	BalanceRemoval       BalanceType = "removal"         // Time taken off (written by the request collaborator)
	BalanceEndOfContract BalanceType = "end_of_contract" // Unearned remainder removed at contract end
	BalanceReset         BalanceType = "reset"           // Running balance cancelled at cycle start
	BalanceManual        BalanceType = "manual"          // Admin correction
)

// IsGenerated reports whether entries of this type are derived from
// assignment intervals and therefore rebuilt on recomputation.
func (bt BalanceType) IsGenerated() bool {
	switch bt {
	case BalanceAssignation, BalanceAddition, BalanceReset:
		return true
	default:
		return false
	}
}

// Valid reports whether bt is one of the known balance types.
func (bt BalanceType) Valid() bool {
	switch bt {
	case BalanceAssignation, BalanceAddition, BalanceRemoval, BalanceEndOfContract, BalanceReset, BalanceManual:
		return true
	default:
		return false
	}
}

// Entry is a row of the balance ledger. Entries for an (employee, category)
// pair are totally ordered by EffectiveAt, then Seq.
type Entry struct {
	ID          EntryID
	AccountID   AccountID
	EmployeeID  EmployeeID
	CategoryID  CategoryID
	Type        BalanceType
	Amount      Amount
	EffectiveAt TimePoint

	// Back-references to what produced the entry (optional)
	EventID    EventID
	IntervalID IntervalID

	Reason string
	Seq    int64 // insertion order, assigned by the store
}

// EntryLess orders entries by effective time, breaking ties by insertion order.
func EntryLess(a, b Entry) bool {
	if !a.EffectiveAt.Equal(b.EffectiveAt) {
		return a.EffectiveAt.Before(b.EffectiveAt)
	}
	return a.Seq < b.Seq
}
