/*
store.go - Persistence interfaces for the employment engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  EmployeeStore:  Employees
  CatalogStore:   Categories, time-off policies, working places, presence policies
  EventStore:     Lifecycle events (immutable except the interval link)
  IntervalStore:  Assignment intervals, one table per dimension
  LedgerStore:    Balance entries
  Store:          All of the above
  TxStore:        Store + atomic multi-table writes

MUTATION CONTRACT:
  Intervals and ledger entries are rewritten by the engine: SaveInterval and
  SaveEntry are upserts keyed by ID, Delete* remove rows. Every engine
  operation runs its reads and writes inside one WithTx call, so a failed
  operation leaves no partial state.

MISSING ROWS:
  Get* methods return a *NotFoundError (errors.Is(err, ErrNotFound)).

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - timeoff/engine.go: The only writer of intervals and generated entries
*/
package generic

import "context"

// =============================================================================
// STORE - Per-concern interfaces
// =============================================================================

type EmployeeStore interface {
	GetEmployee(ctx context.Context, id EmployeeID) (Employee, error)
	SaveEmployee(ctx context.Context, e Employee) error
	ListEmployees(ctx context.Context) ([]Employee, error)
}

type CatalogStore interface {
	GetCategory(ctx context.Context, id CategoryID) (Category, error)
	SaveCategory(ctx context.Context, c Category) error
	ListCategories(ctx context.Context, accountID AccountID) ([]Category, error)

	GetTimeOffPolicy(ctx context.Context, id PolicyID) (TimeOffPolicy, error)
	SaveTimeOffPolicy(ctx context.Context, p TimeOffPolicy) error
	ListTimeOffPolicies(ctx context.Context, accountID AccountID) ([]TimeOffPolicy, error)

	GetWorkingPlace(ctx context.Context, id PolicyID) (WorkingPlace, error)
	SaveWorkingPlace(ctx context.Context, w WorkingPlace) error

	GetPresencePolicy(ctx context.Context, id PolicyID) (PresencePolicy, error)
	SavePresencePolicy(ctx context.Context, p PresencePolicy) error
}

type EventStore interface {
	// SaveEvent inserts an event. A zero Seq is replaced by the next
	// creation number; the stored event is returned.
	SaveEvent(ctx context.Context, e Event) (Event, error)
	GetEvent(ctx context.Context, id EventID) (Event, error)

	// Events returns the employee's events in lifecycle order.
	Events(ctx context.Context, employeeID EmployeeID) ([]Event, error)

	LinkInterval(ctx context.Context, eventID EventID, intervalID IntervalID) error
	DeleteEvent(ctx context.Context, id EventID) error
}

type IntervalStore interface {
	// Intervals returns one series ordered by EffectiveAt. categoryID is
	// ignored for working places and presence policies.
	Intervals(ctx context.Context, employeeID EmployeeID, dim Dimension, categoryID CategoryID) ([]Interval, error)

	// IntervalsOf returns every interval of a dimension, all categories.
	IntervalsOf(ctx context.Context, employeeID EmployeeID, dim Dimension) ([]Interval, error)

	GetInterval(ctx context.Context, dim Dimension, id IntervalID) (Interval, error)
	SaveInterval(ctx context.Context, iv Interval) error
	DeleteInterval(ctx context.Context, dim Dimension, id IntervalID) error
}

type LedgerStore interface {
	// Entries returns the ledger of one (employee, category), ordered by
	// EffectiveAt then Seq.
	Entries(ctx context.Context, employeeID EmployeeID, categoryID CategoryID) ([]Entry, error)

	// SaveEntry upserts by ID. New entries get the next Seq.
	SaveEntry(ctx context.Context, e Entry) (Entry, error)
	DeleteEntry(ctx context.Context, id EntryID) error

	// EntryCategories lists the categories the employee has entries in.
	EntryCategories(ctx context.Context, employeeID EmployeeID) ([]CategoryID, error)
}

// Store combines every persistence concern.
type Store interface {
	EmployeeStore
	CatalogStore
	EventStore
	IntervalStore
	LedgerStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
