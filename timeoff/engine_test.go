package timeoff_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/employment-engine/generic"
	"github.com/warp/employment-engine/generic/store"
	"github.com/warp/employment-engine/timeoff"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	acme  generic.AccountID  = "acme"
	alice generic.EmployeeID = "alice"
)

var today = time.Date(2025, time.June, 30, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx      context.Context
	store    *store.TxMemory
	engine   *timeoff.Engine
	vacation generic.Category
	sick     generic.Category
}

func sequence(prefix string) func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("%s-%d", prefix, n.Add(1)) }
}

func newFixture(t *testing.T, opts ...timeoff.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewTxMemory()

	vacation := timeoff.VacationCategory(acme)
	sick := timeoff.Category(acme, "acme-sick", "sick")
	require.NoError(t, s.SaveCategory(ctx, vacation))
	require.NoError(t, s.SaveCategory(ctx, sick))
	require.NoError(t, s.SaveTimeOffPolicy(ctx, timeoff.VacationPolicy(acme, "vac-2400", vacation.ID, minutes(2400))))
	require.NoError(t, s.SaveTimeOffPolicy(ctx, timeoff.SickLeavePolicy(acme, "sick-10", sick.ID, generic.NewAmountFromInt(10, generic.UnitDays))))
	require.NoError(t, s.SaveWorkingPlace(ctx, generic.WorkingPlace{ID: "office-a", AccountID: acme, Name: "Office A"}))
	require.NoError(t, s.SaveWorkingPlace(ctx, generic.WorkingPlace{ID: "office-b", AccountID: acme, Name: "Office B"}))
	require.NoError(t, s.SavePresencePolicy(ctx, generic.PresencePolicy{ID: "full-time", AccountID: acme, Name: "Full time", HoursPerDay: generic.MustParseDecimal("8")}))

	base := []timeoff.Option{
		timeoff.WithClock(generic.FixedClock{At: today}),
		timeoff.WithIDGenerator(sequence("id")),
	}
	return &fixture{
		ctx:      ctx,
		store:    s,
		engine:   timeoff.NewEngine(s, append(base, opts...)...),
		vacation: vacation,
		sick:     sick,
	}
}

func date(s string) generic.TimePoint { return generic.MustParseDate(s) }

func hireEvent(id generic.EventID, on string, policies ...generic.PolicyID) generic.Event {
	if len(policies) == 0 {
		policies = []generic.PolicyID{"vac-2400"}
	}
	return generic.Event{
		ID:          id,
		AccountID:   acme,
		EmployeeID:  alice,
		Kind:        generic.EventHired,
		EffectiveAt: date(on),
		Hire: &generic.HirePayload{
			WorkingPlaceID:   "office-a",
			PresencePolicyID: "full-time",
			TimeOffPolicyIDs: policies,
		},
	}
}

func contractEnd(id generic.EventID, on string) generic.Event {
	return generic.Event{ID: id, AccountID: acme, EmployeeID: alice, Kind: generic.EventContractEnd, EffectiveAt: date(on)}
}

func (f *fixture) hire(t *testing.T, id generic.EventID, on string, policies ...generic.PolicyID) {
	t.Helper()
	_, err := f.engine.Handle(f.ctx, hireEvent(id, on, policies...))
	require.NoError(t, err)
}

func (f *fixture) endContract(t *testing.T, id generic.EventID, on string) {
	t.Helper()
	_, err := f.engine.Handle(f.ctx, contractEnd(id, on))
	require.NoError(t, err)
}

func (f *fixture) entries(t *testing.T, cat generic.CategoryID) []generic.Entry {
	t.Helper()
	entries, err := f.engine.Entries(f.ctx, alice, cat)
	require.NoError(t, err)
	return entries
}

func (f *fixture) balance(t *testing.T, cat generic.CategoryID, asOf string) generic.Amount {
	t.Helper()
	b, err := f.engine.RunningBalance(f.ctx, alice, cat, date(asOf))
	require.NoError(t, err)
	return b
}

func (f *fixture) intervals(t *testing.T, dim generic.Dimension) []generic.Interval {
	t.Helper()
	ivs, err := f.engine.FindInPeriod(f.ctx, timeoff.PeriodQuery{EmployeeID: alice, Dimension: dim, From: date("2000-01-01")})
	require.NoError(t, err)
	return ivs
}

func ofType(entries []generic.Entry, bt generic.BalanceType) []generic.Entry {
	var out []generic.Entry
	for _, e := range entries {
		if e.Type == bt {
			out = append(out, e)
		}
	}
	return out
}

// entryView drops the store-assigned sequence number.
type entryView struct {
	ID     generic.EntryID
	Type   generic.BalanceType
	Amount string
	At     string
}

func views(entries []generic.Entry) []entryView {
	out := make([]entryView, len(entries))
	for i, e := range entries {
		out[i] = entryView{ID: e.ID, Type: e.Type, Amount: e.Amount.Value.String(), At: e.EffectiveAt.String()}
	}
	return out
}

func assertTill(t *testing.T, iv generic.Interval, want string) {
	t.Helper()
	require.NotNil(t, iv.EffectiveTill, "expected %s to be closed", iv)
	assert.Equal(t, want, iv.EffectiveTill.String())
}

// =============================================================================
// HIRE
// =============================================================================

func TestHire_OpensAssignmentsAndAccrues(t *testing.T) {
	// GIVEN: an employee hired on 2024-03-01 with office, presence and vacation
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	// THEN: one current interval per dimension
	at, err := f.engine.AssignmentsAt(f.ctx, alice, date("2024-03-01"))
	require.NoError(t, err)
	assert.Len(t, at, 3)
	for _, iv := range at {
		assert.True(t, iv.IsOpen(), "%s should be current", iv)
	}

	// AND: a prorated assignation plus the 2025 addition
	entries := f.entries(t, f.vacation.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, generic.BalanceAssignation, entries[0].Type)
	assertAmount(t, "2006.56", entries[0].Amount) // 2400 × 306 / 366
	assert.Equal(t, generic.BalanceAddition, entries[1].Type)
	assertAmount(t, "2400.00", entries[1].Amount)
	assert.Equal(t, "2025-01-01", entries[1].EffectiveAt.Date().String())

	assertAmount(t, "2006.56", f.balance(t, f.vacation.ID, "2024-12-31"))
	assertAmount(t, "4406.56", f.balance(t, f.vacation.ID, "2025-06-30"))

	// AND: the event links to the time-off interval
	event, err := f.store.GetEvent(f.ctx, "hire")
	require.NoError(t, err)
	vac := f.intervals(t, generic.DimensionTimeOffPolicy)
	require.Len(t, vac, 1)
	assert.Equal(t, vac[0].ID, event.LinkedIntervalID)
}

func TestHire_CreatesEmployee(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	emp, err := f.store.GetEmployee(f.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, acme, emp.AccountID)
}

func TestHire_AdditionsStopAtClock(t *testing.T) {
	f := newFixture(t, timeoff.WithClock(generic.FixedClock{At: time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)}))
	f.hire(t, "hire", "2024-03-01")

	assert.Empty(t, ofType(f.entries(t, f.vacation.ID), generic.BalanceAddition))
}

func TestHire_UnknownPolicyRollsBack(t *testing.T) {
	// GIVEN: a hire payload referencing a policy that does not exist
	f := newFixture(t)

	// WHEN: the hire is handled
	_, err := f.engine.Handle(f.ctx, hireEvent("hire", "2024-03-01", "missing"))

	// THEN: not found, and nothing was written
	require.Error(t, err)
	assert.True(t, generic.IsNotFound(err))
	_, err = f.store.GetEmployee(f.ctx, alice)
	assert.True(t, generic.IsNotFound(err), "employee creation must be rolled back")
	_, err = f.store.GetEvent(f.ctx, "hire")
	assert.True(t, generic.IsNotFound(err), "event must be rolled back")
	assert.Empty(t, f.intervals(t, generic.DimensionWorkingPlace))
}

// =============================================================================
// ASSIGN
// =============================================================================

func TestAssign_BeforeHireConflict(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	_, err := f.engine.Assign(f.ctx, timeoff.AssignRequest{
		EmployeeID:  alice,
		Dimension:   generic.DimensionWorkingPlace,
		PolicyID:    "office-b",
		EffectiveAt: date("2024-02-01"),
	})

	require.ErrorIs(t, err, generic.ErrConflict)
	assert.Equal(t, generic.CodeBeforeHire, generic.ErrorCode(err))
}

func TestAssign_UnknownEmployee(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Assign(f.ctx, timeoff.AssignRequest{
		EmployeeID:  "nobody",
		Dimension:   generic.DimensionWorkingPlace,
		PolicyID:    "office-a",
		EffectiveAt: date("2024-02-01"),
	})

	assert.ErrorIs(t, err, generic.ErrNotFound)
	assert.Equal(t, "not_found.employee", generic.ErrorCode(err))
}

func TestAssign_InvalidDimension(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	_, err := f.engine.Assign(f.ctx, timeoff.AssignRequest{EmployeeID: alice, Dimension: "desk", PolicyID: "x", EffectiveAt: date("2024-04-01")})

	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestAssign_SamePolicyIsNoop(t *testing.T) {
	// GIVEN: vacation in force since the hire
	var intervalCalls, ledgerCalls int
	f := newFixture(t,
		timeoff.WithAssignmentObserver(timeoff.AssignmentObserverFunc(func(context.Context, generic.EmployeeID, generic.Change) error {
			intervalCalls++
			return nil
		})),
		timeoff.WithLedgerObserver(timeoff.LedgerObserverFunc(func(context.Context, timeoff.LedgerChange) error {
			ledgerCalls++
			return nil
		})),
	)
	f.hire(t, "hire", "2024-03-01")
	before := views(f.entries(t, f.vacation.ID))
	intervalCalls, ledgerCalls = 0, 0

	// WHEN: the same policy is assigned again mid-year
	res, err := f.engine.Assign(f.ctx, timeoff.AssignRequest{
		EmployeeID:  alice,
		Dimension:   generic.DimensionTimeOffPolicy,
		PolicyID:    "vac-2400",
		EffectiveAt: date("2024-06-01"),
	})

	// THEN: nothing changes and nobody is notified
	require.NoError(t, err)
	assert.Equal(t, generic.AssignNoop, res.Outcome)
	assert.Equal(t, before, views(f.entries(t, f.vacation.ID)))
	assert.Len(t, f.intervals(t, generic.DimensionTimeOffPolicy), 1)
	assert.Zero(t, intervalCalls)
	assert.Zero(t, ledgerCalls)
}

func TestAssign_WorkingPlaceTruncatesPrevious(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	res, err := f.engine.Assign(f.ctx, timeoff.AssignRequest{
		EmployeeID:  alice,
		Dimension:   generic.DimensionWorkingPlace,
		PolicyID:    "office-b",
		EffectiveAt: date("2024-06-01"),
	})
	require.NoError(t, err)
	assert.Equal(t, generic.AssignCreated, res.Outcome)

	ivs := f.intervals(t, generic.DimensionWorkingPlace)
	require.Len(t, ivs, 2)
	assertTill(t, ivs[0], "2024-06-01")
	assert.Equal(t, generic.PolicyID("office-b"), ivs[1].PolicyID)
	assert.True(t, ivs[1].IsOpen())

	// Working places never touch the ledger.
	assert.Len(t, f.entries(t, f.vacation.ID), 2)
}

func TestAssign_StartDayOrderMovesAccrualStart(t *testing.T) {
	// GIVEN: vacation assigned on the hire date
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	// WHEN: the same assignment is set to start on its second occurrence
	res, err := f.engine.Assign(f.ctx, timeoff.AssignRequest{
		EmployeeID:    alice,
		Dimension:     generic.DimensionTimeOffPolicy,
		PolicyID:      "vac-2400",
		EffectiveAt:   date("2024-03-01"),
		StartDayOrder: 2,
	})

	// THEN: only metadata changed, and accrual starts on 2025-01-01 in full
	require.NoError(t, err)
	assert.Equal(t, generic.AssignMetadata, res.Outcome)
	entries := f.entries(t, f.vacation.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, generic.BalanceAssignation, entries[0].Type)
	assert.Equal(t, "2025-01-01", entries[0].EffectiveAt.Date().String())
	assertAmount(t, "2400.00", entries[0].Amount)
	assertAmount(t, "0.00", f.balance(t, f.vacation.ID, "2024-12-31"))
}

// =============================================================================
// CONTRACT END
// =============================================================================

func TestContractEnd_ClosesAssignmentsAndWritesEndOfContract(t *testing.T) {
	// GIVEN: hired 2024-03-01 with 2400 minutes of vacation
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	// WHEN: the contract ends on 2024-09-01
	f.endContract(t, "end", "2024-09-01")

	// THEN: every dimension is closed at 2024-08-31
	for _, dim := range generic.Dimensions {
		ivs := f.intervals(t, dim)
		require.Len(t, ivs, 1, dim)
		assertTill(t, ivs[0], "2024-08-31")
	}

	// AND: the 2025 addition is gone and the unearned remainder is removed
	entries := f.entries(t, f.vacation.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, generic.BalanceAssignation, entries[0].Type)
	eoc := entries[1]
	assert.Equal(t, generic.BalanceEndOfContract, eoc.Type)
	assertAmount(t, "-800.00", eoc.Amount) // 2400 × 122 / 366
	assert.Equal(t, "end", string(eoc.EventID))
	assert.True(t, eoc.EffectiveAt.Time.Equal(entries[0].EffectiveAt.Time.Add(timeoff.DefaultEndOfContractOffset)),
		"end of contract is anchored on the last vacation entry")

	assertAmount(t, "1206.56", f.balance(t, f.vacation.ID, "2025-06-30"))

	// AND: the event links to the closed working-place interval
	event, err := f.store.GetEvent(f.ctx, "end")
	require.NoError(t, err)
	assert.Equal(t, f.intervals(t, generic.DimensionWorkingPlace)[0].ID, event.LinkedIntervalID)
}

func TestContractEnd_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")
	f.endContract(t, "end", "2024-09-01")

	entries := views(f.entries(t, f.vacation.ID))
	intervals := f.intervals(t, generic.DimensionTimeOffPolicy)

	// WHEN: the same event is processed again
	f.endContract(t, "end", "2024-09-01")

	// THEN: same entries, same intervals
	assert.Equal(t, entries, views(f.entries(t, f.vacation.ID)))
	assert.Equal(t, intervals, f.intervals(t, generic.DimensionTimeOffPolicy))
}

func TestContractEnd_DeletesManualEntriesAfterBoundary(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	_, err := f.engine.RecordEntry(f.ctx, generic.Entry{EmployeeID: alice, CategoryID: f.vacation.ID, Type: generic.BalanceRemoval, Amount: minutes(-480), EffectiveAt: date("2024-05-02")})
	require.NoError(t, err)
	_, err = f.engine.RecordEntry(f.ctx, generic.Entry{EmployeeID: alice, CategoryID: f.vacation.ID, Type: generic.BalanceManual, Amount: minutes(60), EffectiveAt: date("2024-10-01")})
	require.NoError(t, err)

	f.endContract(t, "end", "2024-09-01")

	entries := f.entries(t, f.vacation.ID)
	assert.Len(t, ofType(entries, generic.BalanceRemoval), 1, "entries before the boundary survive")
	assert.Empty(t, ofType(entries, generic.BalanceManual), "entries after the boundary go")

	// The end-of-contract entry anchors on the latest entry at or before the contract date.
	eoc := ofType(entries, generic.BalanceEndOfContract)
	require.Len(t, eoc, 1)
	assert.Equal(t, "2024-05-02", eoc[0].EffectiveAt.Date().String())
}

func TestContractEnd_BeforeHireConflict(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	_, err := f.engine.Handle(f.ctx, contractEnd("end", "2024-01-01"))

	require.ErrorIs(t, err, generic.ErrConflict)
	assert.Equal(t, generic.CodeBeforeHire, generic.ErrorCode(err))
	_, err = f.store.GetEvent(f.ctx, "end")
	assert.True(t, generic.IsNotFound(err), "rejected event is not stored")
}

func TestAssign_InsideUnemploymentConflict(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")
	f.endContract(t, "end", "2024-09-01")

	_, err := f.engine.Assign(f.ctx, timeoff.AssignRequest{
		EmployeeID:  alice,
		Dimension:   generic.DimensionWorkingPlace,
		PolicyID:    "office-b",
		EffectiveAt: date("2024-10-01"),
	})

	require.ErrorIs(t, err, generic.ErrConflict)
	assert.Equal(t, generic.CodeUnemployed, generic.ErrorCode(err))
}

func TestContractEnd_WhileUnemployedConflict(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")
	f.endContract(t, "end", "2024-09-01")

	_, err := f.engine.Handle(f.ctx, contractEnd("end-2", "2024-10-01"))

	require.ErrorIs(t, err, generic.ErrConflict)
	assert.Equal(t, generic.CodeUnemployed, generic.ErrorCode(err))
	_, err = f.store.GetEvent(f.ctx, "end-2")
	assert.True(t, generic.IsNotFound(err), "rejected event is not stored")
}

func TestContractEnd_RerunAfterRehireKeepsLaterEmployment(t *testing.T) {
	// GIVEN: a first employment ended, a rehire with a booked absence, and a second end
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")
	f.endContract(t, "end", "2024-09-01")
	f.hire(t, "rehire", "2025-01-15")
	_, err := f.engine.RecordEntry(f.ctx, generic.Entry{EmployeeID: alice, CategoryID: f.vacation.ID, Type: generic.BalanceRemoval, Amount: minutes(-480), EffectiveAt: date("2025-02-03")})
	require.NoError(t, err)
	f.endContract(t, "end-2", "2025-06-01")
	before := views(f.entries(t, f.vacation.ID))

	// WHEN: the first contract end is processed again
	f.endContract(t, "end", "2024-09-01")

	// THEN: the second employment keeps its entries
	entries := f.entries(t, f.vacation.ID)
	assert.Equal(t, before, views(entries))
	require.Len(t, entries, 5)
	assert.Len(t, ofType(entries, generic.BalanceRemoval), 1)
	eoc := ofType(entries, generic.BalanceEndOfContract)
	require.Len(t, eoc, 2)
	assertAmount(t, "-1407.12", eoc[1].Amount) // 2400 × 214 / 365
	assert.Equal(t, "2025-02-03", eoc[1].EffectiveAt.Date().String())
}

// =============================================================================
// REHIRE
// =============================================================================

func TestRehire_WithPayload(t *testing.T) {
	// GIVEN: hired, contract ended on 2024-09-01
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")
	f.endContract(t, "end", "2024-09-01")

	// WHEN: rehired on 2025-01-15
	f.hire(t, "rehire", "2025-01-15")

	// THEN: a second vacation interval opens with a fresh proration
	ivs := f.intervals(t, generic.DimensionTimeOffPolicy)
	require.Len(t, ivs, 2)
	assertTill(t, ivs[0], "2024-08-31")
	assert.Equal(t, "2025-01-15", ivs[1].EffectiveAt.String())
	assert.True(t, ivs[1].IsOpen())

	assignations := ofType(f.entries(t, f.vacation.ID), generic.BalanceAssignation)
	require.Len(t, assignations, 2)
	assertAmount(t, "2307.95", assignations[1].Amount) // 2400 × 351 / 365

	assertAmount(t, "3514.50", f.balance(t, f.vacation.ID, "2025-06-30"))
}

func TestRehire_WithoutPayloadRestoresPreviousPolicies(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")
	f.endContract(t, "end", "2024-09-01")

	_, err := f.engine.Handle(f.ctx, generic.Event{ID: "rehire", AccountID: acme, EmployeeID: alice, Kind: generic.EventHired, EffectiveAt: date("2025-01-15")})
	require.NoError(t, err)

	at, err := f.engine.AssignmentsAt(f.ctx, alice, date("2025-01-15"))
	require.NoError(t, err)
	require.Len(t, at, 3)
	policies := map[generic.Dimension]generic.PolicyID{}
	for _, iv := range at {
		policies[iv.Dimension] = iv.PolicyID
	}
	assert.Equal(t, generic.PolicyID("office-a"), policies[generic.DimensionWorkingPlace])
	assert.Equal(t, generic.PolicyID("full-time"), policies[generic.DimensionPresencePolicy])
	assert.Equal(t, generic.PolicyID("vac-2400"), policies[generic.DimensionTimeOffPolicy])
}

func TestHire_WhileEmployedConflict(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	_, err := f.engine.Handle(f.ctx, hireEvent("hire-2", "2024-06-01"))

	require.ErrorIs(t, err, generic.ErrConflict)
	assert.Equal(t, generic.CodeEmployed, generic.ErrorCode(err))
	assert.Len(t, f.intervals(t, generic.DimensionTimeOffPolicy), 1)
	_, err = f.store.GetEvent(f.ctx, "hire-2")
	assert.True(t, generic.IsNotFound(err), "rejected event is not stored")
}

// =============================================================================
// CONTRACT END DELETION
// =============================================================================

func TestDeleteContractEnd_RestoresState(t *testing.T) {
	// GIVEN: a processed contract end
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")
	before := views(f.entries(t, f.vacation.ID))
	f.endContract(t, "end", "2024-09-01")

	// WHEN: the contract end is deleted
	require.NoError(t, f.engine.DeleteEvent(f.ctx, "end"))

	// THEN: assignments are current again and the ledger is as before
	for _, dim := range generic.Dimensions {
		ivs := f.intervals(t, dim)
		require.Len(t, ivs, 1, dim)
		assert.True(t, ivs[0].IsOpen(), "%s should be reopened", dim)
	}
	assert.Equal(t, before, views(f.entries(t, f.vacation.ID)))
	assertAmount(t, "4406.56", f.balance(t, f.vacation.ID, "2025-06-30"))

	_, err := f.store.GetEvent(f.ctx, "end")
	assert.True(t, generic.IsNotFound(err))
}

func TestOnContractEndDeleted_RejectsOtherKinds(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	err := f.engine.OnContractEndDeleted(f.ctx, "hire")

	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestDeleteEvent_HireIsConflict(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	err := f.engine.DeleteEvent(f.ctx, "hire")

	require.ErrorIs(t, err, generic.ErrConflict)
	assert.Equal(t, generic.CodeHireInUse, generic.ErrorCode(err))
}

func TestDeleteEvent_RecordOnlyKinds(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")
	_, err := f.engine.Handle(f.ctx, generic.Event{ID: "wedding", AccountID: acme, EmployeeID: alice, Kind: generic.EventMarriage, EffectiveAt: date("2024-06-10")})
	require.NoError(t, err)

	events, err := f.engine.Events(f.ctx, alice)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	require.NoError(t, f.engine.DeleteEvent(f.ctx, "wedding"))
	events, err = f.engine.Events(f.ctx, alice)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

// =============================================================================
// WORK CONTRACT CHANGE
// =============================================================================

func TestWorkContractChange_ProratesDifference(t *testing.T) {
	// GIVEN: full time since 2024-03-01
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	// WHEN: the occupation rate drops to 50% on 2024-07-01
	half := generic.MustParseDecimal("0.5")
	_, err := f.engine.Handle(f.ctx, generic.Event{ID: "part-time", AccountID: acme, EmployeeID: alice, Kind: generic.EventWorkContractChange, EffectiveAt: date("2024-07-01"), OccupationRate: &half})
	require.NoError(t, err)

	// THEN: the vacation interval is split at the change
	ivs := f.intervals(t, generic.DimensionTimeOffPolicy)
	require.Len(t, ivs, 2)
	assertTill(t, ivs[0], "2024-07-01")
	require.NotNil(t, ivs[1].OccupationRate)
	assert.True(t, ivs[1].OccupationRate.Equal(half))

	// AND: the new assignation removes the prorated difference
	entries := f.entries(t, f.vacation.ID)
	assignations := ofType(entries, generic.BalanceAssignation)
	require.Len(t, assignations, 2)
	assertAmount(t, "-603.28", assignations[1].Amount) // (1200 - 2400) × 184 / 366

	additions := ofType(entries, generic.BalanceAddition)
	require.Len(t, additions, 1)
	assertAmount(t, "1200.00", additions[0].Amount)

	assertAmount(t, "2603.28", f.balance(t, f.vacation.ID, "2025-06-30"))
}

func TestWorkContractChange_BeforeContractEndUpdatesEndOfContract(t *testing.T) {
	// GIVEN: a processed contract end on 2024-09-01
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")
	f.endContract(t, "end", "2024-09-01")

	// WHEN: a rate change dated inside the employment arrives late
	half := generic.MustParseDecimal("0.5")
	_, err := f.engine.Handle(f.ctx, generic.Event{ID: "part-time", AccountID: acme, EmployeeID: alice, Kind: generic.EventWorkContractChange, EffectiveAt: date("2024-06-01"), OccupationRate: &half})
	require.NoError(t, err)

	// THEN: the end-of-contract entry removes the reduced allowance
	entries := f.entries(t, f.vacation.ID)
	assignations := ofType(entries, generic.BalanceAssignation)
	require.Len(t, assignations, 2)
	assertAmount(t, "-701.64", assignations[1].Amount) // (1200 - 2400) × 214 / 366
	eoc := ofType(entries, generic.BalanceEndOfContract)
	require.Len(t, eoc, 1)
	assertAmount(t, "-400.00", eoc[0].Amount) // 1200 × 122 / 366
	assert.True(t, eoc[0].EffectiveAt.Time.Equal(assignations[1].EffectiveAt.Time.Add(timeoff.DefaultEndOfContractOffset)))
}

func TestWorkContractChange_RequiresRate(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	_, err := f.engine.Handle(f.ctx, generic.Event{ID: "wcc", AccountID: acme, EmployeeID: alice, Kind: generic.EventWorkContractChange, EffectiveAt: date("2024-07-01")})

	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

// =============================================================================
// INTERVAL DESTRUCTION
// =============================================================================

func TestDestroyInterval_WorkingPlace(t *testing.T) {
	// GIVEN: office-b assigned from 2024-06-01
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")
	res, err := f.engine.Assign(f.ctx, timeoff.AssignRequest{EmployeeID: alice, Dimension: generic.DimensionWorkingPlace, PolicyID: "office-b", EffectiveAt: date("2024-06-01")})
	require.NoError(t, err)

	// WHEN: the office-b interval is destroyed
	require.NoError(t, f.engine.DestroyInterval(f.ctx, alice, generic.DimensionWorkingPlace, res.Interval.ID))

	// THEN: only the truncated office-a interval is left
	ivs := f.intervals(t, generic.DimensionWorkingPlace)
	require.Len(t, ivs, 1)
	assert.Equal(t, generic.PolicyID("office-a"), ivs[0].PolicyID)
	assertTill(t, ivs[0], "2024-06-01")
}

func TestDestroyInterval_TimeOffReplaysLedger(t *testing.T) {
	// GIVEN: a sick-leave policy assigned from the hire date
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")
	res, err := f.engine.Assign(f.ctx, timeoff.AssignRequest{EmployeeID: alice, Dimension: generic.DimensionTimeOffPolicy, PolicyID: "sick-10", EffectiveAt: date("2024-03-01")})
	require.NoError(t, err)
	require.NotEmpty(t, f.entries(t, f.sick.ID))

	// WHEN: the interval is destroyed
	require.NoError(t, f.engine.DestroyInterval(f.ctx, alice, generic.DimensionTimeOffPolicy, res.Interval.ID))

	// THEN: its generated entries are gone and vacation is untouched
	assert.Empty(t, f.entries(t, f.sick.ID))
	assert.Len(t, f.intervals(t, generic.DimensionTimeOffPolicy), 1)
	assertAmount(t, "4406.56", f.balance(t, f.vacation.ID, "2025-06-30"))
}

func TestDestroyInterval_Errors(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	err := f.engine.DestroyInterval(f.ctx, alice, generic.DimensionWorkingPlace, "missing")
	assert.ErrorIs(t, err, generic.ErrNotFound)

	err = f.engine.DestroyInterval(f.ctx, alice, "desk", "missing")
	assert.ErrorIs(t, err, generic.ErrInvalidInput)

	// Another employee's interval is not reachable.
	own := f.intervals(t, generic.DimensionWorkingPlace)[0]
	err = f.engine.DestroyInterval(f.ctx, "bob", generic.DimensionWorkingPlace, own.ID)
	assert.ErrorIs(t, err, generic.ErrNotFound)
	assert.Len(t, f.intervals(t, generic.DimensionWorkingPlace), 1)
}

// =============================================================================
// RESET POLICIES / MANUAL ENTRIES
// =============================================================================

func TestResetPolicy_CancelsBalanceEachCycle(t *testing.T) {
	// GIVEN: 2 sick days recorded in 2024
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")
	_, err := f.engine.RecordEntry(f.ctx, generic.Entry{
		EmployeeID:  alice,
		CategoryID:  f.sick.ID,
		Type:        generic.BalanceRemoval,
		Amount:      generic.NewAmountFromInt(-2, generic.UnitDays),
		EffectiveAt: date("2024-05-02"),
	})
	require.NoError(t, err)

	// WHEN: a sick-leave policy resetting every 1 January is assigned from the hire date
	_, err = f.engine.Assign(f.ctx, timeoff.AssignRequest{EmployeeID: alice, Dimension: generic.DimensionTimeOffPolicy, PolicyID: "sick-10", EffectiveAt: date("2024-03-01")})
	require.NoError(t, err)

	// THEN: on 2025-01-01 the leftover is cancelled and a full year credited
	entries := f.entries(t, f.sick.ID)
	resets := ofType(entries, generic.BalanceReset)
	require.Len(t, resets, 1)
	assertAmount(t, "-6.36", resets[0].Amount) // -(10 × 306 / 366 - 2)
	assertAmount(t, "10.00", f.balance(t, f.sick.ID, "2025-06-30"))
	assertAmount(t, "6.36", f.balance(t, f.sick.ID, "2024-12-31"))
}

func TestRecordEntry_OnlyManualAndRemoval(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	_, err := f.engine.RecordEntry(f.ctx, generic.Entry{EmployeeID: alice, CategoryID: f.vacation.ID, Type: generic.BalanceAddition, Amount: minutes(1), EffectiveAt: date("2024-05-02")})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)

	_, err = f.engine.RecordEntry(f.ctx, generic.Entry{EmployeeID: alice, CategoryID: "unknown", Type: generic.BalanceManual, Amount: minutes(1), EffectiveAt: date("2024-05-02")})
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestRecordEntry_SurvivesReplay(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")

	saved, err := f.engine.RecordEntry(f.ctx, generic.Entry{EmployeeID: alice, CategoryID: f.vacation.ID, Type: generic.BalanceManual, Amount: minutes(100), EffectiveAt: date("2024-06-01"), Reason: "correction"})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, acme, saved.AccountID)

	half := generic.MustParseDecimal("0.5")
	_, err = f.engine.Handle(f.ctx, generic.Event{ID: "wcc", AccountID: acme, EmployeeID: alice, Kind: generic.EventWorkContractChange, EffectiveAt: date("2024-05-01"), OccupationRate: &half})
	require.NoError(t, err)

	manual := ofType(f.entries(t, f.vacation.ID), generic.BalanceManual)
	require.Len(t, manual, 1)
	assert.Equal(t, saved.ID, manual[0].ID)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestFindInPeriod_Filters(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01", "vac-2400", "sick-10")

	to := date("2024-03-01")
	none, err := f.engine.FindInPeriod(f.ctx, timeoff.PeriodQuery{EmployeeID: alice, Dimension: generic.DimensionTimeOffPolicy, From: date("2024-01-01"), To: &to})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none, "the window is exclusive of its end")

	sick, err := f.engine.FindInPeriod(f.ctx, timeoff.PeriodQuery{EmployeeID: alice, Dimension: generic.DimensionTimeOffPolicy, From: date("2024-01-01"), CategoryID: f.sick.ID})
	require.NoError(t, err)
	require.Len(t, sick, 1)
	assert.Equal(t, generic.PolicyID("sick-10"), sick[0].PolicyID)

	_, err = f.engine.FindInPeriod(f.ctx, timeoff.PeriodQuery{EmployeeID: alice, Dimension: "desk"})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestFindSequenceInTime(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")
	_, err := f.engine.Assign(f.ctx, timeoff.AssignRequest{EmployeeID: alice, Dimension: generic.DimensionWorkingPlace, PolicyID: "office-b", EffectiveAt: date("2024-06-01")})
	require.NoError(t, err)

	ivs := f.intervals(t, generic.DimensionWorkingPlace)
	require.Len(t, ivs, 2)
	run, err := f.engine.FindSequenceInTime(f.ctx, alice, generic.DimensionWorkingPlace, ivs[1].ID)
	require.NoError(t, err)
	require.Len(t, run, 1)
	assert.Equal(t, ivs[1].ID, run[0].ID)

	_, err = f.engine.FindSequenceInTime(f.ctx, "bob", generic.DimensionWorkingPlace, ivs[1].ID)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestRunningBalance_CacheInvalidatedByWrites(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "hire", "2024-03-01")
	assertAmount(t, "4406.56", f.balance(t, f.vacation.ID, "2025-06-30"))

	_, err := f.engine.RecordEntry(f.ctx, generic.Entry{EmployeeID: alice, CategoryID: f.vacation.ID, Type: generic.BalanceRemoval, Amount: minutes(-406), EffectiveAt: date("2025-02-03")})
	require.NoError(t, err)

	assertAmount(t, "4000.56", f.balance(t, f.vacation.ID, "2025-06-30"))
	assertAmount(t, "4406.56", f.balance(t, f.vacation.ID, "2025-02-02"))
}

// =============================================================================
// OBSERVERS / METRICS / CONCURRENCY
// =============================================================================

func TestObservers_NotifiedAfterCommit(t *testing.T) {
	var changes []generic.Change
	var ledger []timeoff.LedgerChange
	f := newFixture(t,
		timeoff.WithAssignmentObserver(timeoff.AssignmentObserverFunc(func(_ context.Context, _ generic.EmployeeID, c generic.Change) error {
			changes = append(changes, c)
			return nil
		})),
		timeoff.WithLedgerObserver(timeoff.LedgerObserverFunc(func(_ context.Context, c timeoff.LedgerChange) error {
			ledger = append(ledger, c)
			return errors.New("downstream unavailable")
		})),
	)

	// An observer error does not fail the operation.
	f.hire(t, "hire", "2024-03-01")

	require.Len(t, changes, 1)
	assert.Len(t, changes[0].Upserts, 3)
	require.Len(t, ledger, 1)
	assert.Equal(t, f.vacation.ID, ledger[0].CategoryID)
	assert.Len(t, ledger[0].Saved, 2)

	// A failed operation notifies nobody.
	_, err := f.engine.Handle(f.ctx, contractEnd("early", "2024-01-01"))
	require.Error(t, err)
	assert.Len(t, changes, 1)
	assert.Len(t, ledger, 1)
}

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, timeoff.WithMetrics(timeoff.NewPrometheusMetrics(reg, "test")))

	f.hire(t, "hire", "2024-03-01")
	_, err := f.engine.Handle(f.ctx, contractEnd("early", "2024-01-01"))
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "test_engine_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series for hired/success, one for contract_end/conflict")

	count, err = testutil.GatherAndCount(reg, "test_ledger_regenerated_entries_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEngine_ConcurrentEmployees(t *testing.T) {
	f := newFixture(t, timeoff.WithIDGenerator(sequence("c")))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev := hireEvent(generic.EventID(fmt.Sprintf("hire-%d", i)), "2024-03-01")
			ev.EmployeeID = generic.EmployeeID(fmt.Sprintf("emp-%d", i))
			_, err := f.engine.Handle(f.ctx, ev)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for i := 0; i < 10; i++ {
		b, err := f.engine.RunningBalance(f.ctx, generic.EmployeeID(fmt.Sprintf("emp-%d", i)), f.vacation.ID, date("2025-06-30"))
		require.NoError(t, err)
		assertAmount(t, "4406.56", b)
	}
}

func TestRefreshAccruals_WritesEntriesThatFellDue(t *testing.T) {
	// GIVEN: a hire processed while the clock was still in 2024
	f := newFixture(t, timeoff.WithClock(generic.FixedClock{At: time.Date(2024, time.December, 30, 0, 0, 0, 0, time.UTC)}))
	f.hire(t, "hire", "2024-03-01")
	require.Len(t, f.entries(t, f.vacation.ID), 1)

	// WHEN: the same store is refreshed after 1 January
	later := timeoff.NewEngine(f.store, timeoff.WithClock(generic.FixedClock{At: today}))
	n, err := later.RefreshAccruals(f.ctx, alice)
	require.NoError(t, err)

	// THEN: the 2025 addition is written once
	assert.Equal(t, 1, n)
	entries, err := later.Entries(f.ctx, alice, f.vacation.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, generic.BalanceAddition, entries[1].Type)
	assert.True(t, entries[1].EffectiveAt.Date().Equal(date("2025-01-01")))

	n, err = later.RefreshAccruals(f.ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, n, "a current ledger is left untouched")
}

func TestRefreshAccruals_UnknownEmployee(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.RefreshAccruals(f.ctx, "nobody")
	assert.True(t, generic.IsNotFound(err))
}
