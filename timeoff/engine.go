/*
Package timeoff implements the effective-dated assignment and balance engine.

PURPOSE:
  The Engine is the single entry point for everything that changes an
  employee's assignments or balances:

    Assign                 put a policy in force from a date
    Handle                 record a lifecycle event and react to it
    OnHire                 (re)open assignments at a hire date
    OnContractEnd          close assignments, trim the ledger, add the
                           end-of-contract entry
    OnContractEndDeleted   undo a contract end
    OnWorkContractChange   re-rate time-off assignments

  and the read side (query.go): FindInPeriod, FindSequenceInTime,
  RunningBalance.

UNIT OF WORK:
  Every write operation:
    1. takes the employee's exclusive lock
    2. runs inside one store transaction (all or nothing)
    3. invalidates the employee's cached balances
    4. notifies observers, only once the transaction committed

  Operations on different employees run in parallel.

IDEMPOTENCE:
  Interval plans are computed against the current series and ledger entries
  carry deterministic IDs, so re-running an operation on an already
  processed employee converges to the same state.

SEE ALSO:
  - lifecycle.go: What each event kind does
  - assignments.go: Interval Store
  - ledger.go: Balance Ledger Engine
*/
package timeoff

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/warp/employment-engine/generic"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store   generic.TxStore
	clock   generic.Clock
	logger  *slog.Logger
	metrics Metrics

	assignmentObservers []AssignmentObserver
	ledgerObservers     []LedgerObserver
	eventDeleter        EventDeleter

	eocOffset time.Duration
	newID     func() string

	locks *employeeLocks
	cache *balanceCache
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(clock generic.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func WithAssignmentObserver(o AssignmentObserver) Option {
	return func(e *Engine) { e.assignmentObservers = append(e.assignmentObservers, o) }
}

func WithLedgerObserver(o LedgerObserver) Option {
	return func(e *Engine) { e.ledgerObservers = append(e.ledgerObservers, o) }
}

func WithEventDeleter(d EventDeleter) Option {
	return func(e *Engine) { e.eventDeleter = d }
}

// WithEndOfContractOffset sets the gap between the last vacation entry and
// the end-of-contract entry.
func WithEndOfContractOffset(d time.Duration) Option {
	return func(e *Engine) { e.eocOffset = d }
}

// WithIDGenerator replaces uuid.NewString for new intervals and events.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

func NewEngine(store generic.TxStore, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		clock:        generic.SystemClock{},
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:      NopMetrics{},
		eventDeleter: storeEventDeleter{},
		eocOffset:    DefaultEndOfContractOffset,
		newID:        uuid.NewString,
		locks:        newEmployeeLocks(),
		cache:        newBalanceCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// txn carries the tx-scoped services of one operation.
type txn struct {
	engine      *Engine
	store       generic.Store
	assignments *Assignments
	ledger      *Ledger

	intervals generic.Change
	event     generic.Event
	noop      bool
}

func (e *Engine) newTxn(s generic.Store) *txn {
	return &txn{
		engine:      e,
		store:       s,
		assignments: NewAssignments(s, e.intervalID),
		ledger:      NewLedger(s, e.clock, e.eocOffset),
	}
}

func (e *Engine) intervalID() generic.IntervalID { return generic.IntervalID(e.newID()) }

func (e *Engine) run(ctx context.Context, op string, employeeID generic.EmployeeID, fn func(*txn) error) (*txn, error) {
	start := time.Now()
	unlock := e.locks.Lock(employeeID)

	var t *txn
	err := e.store.WithTx(ctx, func(s generic.Store) error {
		t = e.newTxn(s)
		return fn(t)
	})
	if err == nil {
		for _, c := range t.ledger.Changes() {
			e.cache.invalidate(balanceKey{employeeID: c.EmployeeID, categoryID: c.CategoryID})
		}
	}

	// Observers may query the engine, so they run without the employee lock.
	unlock()

	elapsed := time.Since(start)
	e.metrics.RecordOperation(op, resultOf(err, t), elapsed)
	if err != nil {
		e.logFailure(op, employeeID, err)
		return nil, err
	}
	e.metrics.RecordRegeneratedEntries(op, t.ledger.Regenerated())
	e.logger.Info("engine operation",
		"op", op,
		"employee", employeeID,
		"noop", t.noop,
		"duration", elapsed,
	)
	e.notify(ctx, employeeID, t)
	return t, nil
}

func (e *Engine) logFailure(op string, employeeID generic.EmployeeID, err error) {
	var inconsistent *generic.InconsistentStateError
	if errors.As(err, &inconsistent) {
		e.logger.Error("inconsistent state, operation rolled back",
			"op", op,
			"employee", employeeID,
			"detail", inconsistent.Detail,
		)
		return
	}
	e.logger.Debug("engine operation rejected", "op", op, "employee", employeeID, "error", err)
}

func resultOf(err error, t *txn) string {
	switch {
	case err == nil && t != nil && t.noop:
		return "noop"
	case err == nil:
		return "success"
	case errors.Is(err, generic.ErrConflict):
		return "conflict"
	case errors.Is(err, generic.ErrNotFound):
		return "not_found"
	case errors.Is(err, generic.ErrInconsistentState):
		return "inconsistent"
	case errors.Is(err, generic.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

// notify runs after commit. Observer failures are logged, never returned.
func (e *Engine) notify(ctx context.Context, employeeID generic.EmployeeID, t *txn) {
	if !t.intervals.IsEmpty() {
		for _, o := range e.assignmentObservers {
			if err := o.IntervalsChanged(ctx, employeeID, t.intervals); err != nil {
				e.logger.Warn("assignment observer failed", "employee", employeeID, "error", err)
			}
		}
	}
	for _, change := range t.ledger.Changes() {
		for _, o := range e.ledgerObservers {
			if err := o.LedgerChanged(ctx, change); err != nil {
				e.logger.Warn("ledger observer failed", "employee", employeeID, "category", change.CategoryID, "error", err)
			}
		}
	}
}

// =============================================================================
// INBOUND OPERATIONS
// =============================================================================

// AssignResult reports the interval in force at the assignment date.
type AssignResult struct {
	Interval generic.Interval
	Outcome  generic.AssignOutcome
}

// Assign puts a policy in force from req.EffectiveAt and recomputes the
// ledger when a time-off assignment actually changed.
func (e *Engine) Assign(ctx context.Context, req AssignRequest) (AssignResult, error) {
	var plan generic.AssignPlan
	_, err := e.run(ctx, "assign", req.EmployeeID, func(t *txn) error {
		var err error
		plan, err = t.assign(ctx, req)
		t.noop = plan.Outcome == generic.AssignNoop
		return err
	})
	if err != nil {
		return AssignResult{}, err
	}
	return AssignResult{Interval: plan.Interval, Outcome: plan.Outcome}, nil
}

// Handle records a lifecycle event (when not stored yet) and applies it.
// Kinds without an effect on assignments are only recorded.
func (e *Engine) Handle(ctx context.Context, event generic.Event) (generic.Event, error) {
	if !event.Kind.Valid() {
		return generic.Event{}, &generic.ValidationError{Field: "kind", Message: "unknown event kind " + string(event.Kind)}
	}
	if event.EmployeeID == "" {
		return generic.Event{}, &generic.ValidationError{Field: "employee_id", Message: "required"}
	}
	if event.ID == "" {
		event.ID = generic.EventID(e.newID())
	}
	event.EffectiveAt = event.EffectiveAt.Date()

	t, err := e.run(ctx, string(event.Kind), event.EmployeeID, func(t *txn) error {
		return t.handle(ctx, event)
	})
	if err != nil {
		return generic.Event{}, err
	}
	return t.event, nil
}

func (t *txn) handle(ctx context.Context, event generic.Event) error {
	switch event.Kind {
	case generic.EventHired:
		return t.onHire(ctx, event)
	case generic.EventContractEnd:
		return t.onContractEnd(ctx, event)
	case generic.EventWorkContractChange:
		return t.onWorkContractChange(ctx, event)
	case generic.EventMarriage, generic.EventDivorce, generic.EventBirth, generic.EventOther:
		return t.recordOnly(ctx, event)
	default:
		return &generic.ValidationError{Field: "kind", Message: "unknown event kind " + string(event.Kind)}
	}
}

func (e *Engine) handleKind(ctx context.Context, event generic.Event, kind generic.EventKind) error {
	if event.Kind == "" {
		event.Kind = kind
	}
	if event.Kind != kind {
		return &generic.ValidationError{Field: "kind", Message: "expected " + string(kind) + " event"}
	}
	_, err := e.Handle(ctx, event)
	return err
}

// OnHire applies a hired event.
func (e *Engine) OnHire(ctx context.Context, event generic.Event) error {
	return e.handleKind(ctx, event, generic.EventHired)
}

// OnContractEnd applies a contract_end event. Running it again for the same
// event leaves the state unchanged.
func (e *Engine) OnContractEnd(ctx context.Context, event generic.Event) error {
	return e.handleKind(ctx, event, generic.EventContractEnd)
}

// OnWorkContractChange applies a work_contract_change event.
func (e *Engine) OnWorkContractChange(ctx context.Context, event generic.Event) error {
	return e.handleKind(ctx, event, generic.EventWorkContractChange)
}

// OnContractEndDeleted undoes a contract end and deletes the event.
func (e *Engine) OnContractEndDeleted(ctx context.Context, eventID generic.EventID) error {
	event, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	_, err = e.run(ctx, "contract_end_deleted", event.EmployeeID, func(t *txn) error {
		return t.onContractEndDeleted(ctx, eventID)
	})
	return err
}

// DeleteEvent removes a lifecycle event. Contract ends are undone first;
// hire events cannot be deleted.
func (e *Engine) DeleteEvent(ctx context.Context, eventID generic.EventID) error {
	event, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	switch event.Kind {
	case generic.EventContractEnd:
		return e.OnContractEndDeleted(ctx, eventID)
	case generic.EventHired:
		return &generic.ConflictError{
			Code:    generic.CodeHireInUse,
			Message: "hire events anchor the employment history and cannot be deleted",
		}
	default:
		_, err = e.run(ctx, "delete_event", event.EmployeeID, func(t *txn) error {
			stored, err := t.store.GetEvent(ctx, eventID)
			if err != nil {
				return err
			}
			return e.eventDeleter.DeleteEvent(ctx, t.store, stored)
		})
		return err
	}
}

// DestroyInterval deletes one assignment interval of the employee. Its
// neighbours are not stretched over the hole; a time-off interval's category
// is replayed from the interval start.
func (e *Engine) DestroyInterval(ctx context.Context, employeeID generic.EmployeeID, dim generic.Dimension, intervalID generic.IntervalID) error {
	if !dim.Valid() {
		return &generic.ValidationError{Field: "dimension", Message: "unknown dimension " + string(dim)}
	}
	_, err := e.run(ctx, "destroy_interval", employeeID, func(t *txn) error {
		return t.destroyInterval(ctx, employeeID, dim, intervalID)
	})
	return err
}

// RefreshAccruals writes the cycle entries that fell due since the
// employee's ledger was last generated and returns how many were written.
func (e *Engine) RefreshAccruals(ctx context.Context, employeeID generic.EmployeeID) (int, error) {
	t, err := e.run(ctx, "refresh_accruals", employeeID, func(t *txn) error {
		return t.refreshAccruals(ctx, employeeID)
	})
	if err != nil {
		return 0, err
	}
	return t.ledger.Regenerated(), nil
}

// RecordEntry appends a manual or removal entry written by a collaborator
// (admin correction, approved time-off request). Replay keeps these.
func (e *Engine) RecordEntry(ctx context.Context, entry generic.Entry) (generic.Entry, error) {
	if entry.Type != generic.BalanceManual && entry.Type != generic.BalanceRemoval {
		return generic.Entry{}, &generic.ValidationError{Field: "type", Message: "only manual and removal entries can be recorded"}
	}
	if entry.ID == "" {
		entry.ID = generic.EntryID(e.newID())
	}
	if entry.EffectiveAt.Granularity != generic.GranularityInstant {
		entry.EffectiveAt = entry.EffectiveAt.Add(0)
	}
	var saved generic.Entry
	_, err := e.run(ctx, "record_entry", entry.EmployeeID, func(t *txn) error {
		emp, err := t.requireEmployee(ctx, entry.EmployeeID)
		if err != nil {
			return err
		}
		if _, err := t.store.GetCategory(ctx, entry.CategoryID); err != nil {
			return err
		}
		entry.AccountID = emp.AccountID
		saved, err = t.ledger.save(ctx, entry)
		return err
	})
	return saved, err
}
