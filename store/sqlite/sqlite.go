/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.TxStore using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  generic.Store:    Employees, catalog, events, intervals, ledger entries
  generic.TxStore:  Store + WithTx

KEY TABLES:
  employees:                   Employee records
  categories:                  Time-off categories
  time_off_policies:           Accrual rules per category
  working_places:              Working place catalog
  presence_policies:           Presence policy catalog
  events:                      Lifecycle events (hired, contract_end, ...)
  working_place_intervals:     Assignment series, one table per dimension
  presence_policy_intervals
  time_off_policy_intervals
  balance_entries:             The balance ledger

INDEXES:
  - idx_<dimension>_intervals_current: at most one open interval per
    series (partial unique index on effective_till IS NULL)
  - idx_balance_entries_employee_category: ledger reads (hot path)
  - idx_events_employee: lifecycle history

CONCURRENCY:
  One connection (SetMaxOpenConns(1)), so ":memory:" databases are shared
  by every call and writers are serialized. WithTx runs all reads and writes
  of an engine operation on the same *sql.Tx.

TIME ENCODING:
  Calendar dates are stored as YYYY-MM-DD. Ledger instants use a fixed-width
  UTC layout so that lexical order is chronological order.

USAGE:
  store, err := sqlite.New("./data/employment.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := timeoff.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/employment-engine/generic"
)

// instantLayout is fixed width so stored instants sort lexically.
const instantLayout = "2006-01-02T15:04:05.000000000Z"

const dateLayout = "2006-01-02"

// intervalTables maps each dimension to its table.
var intervalTables = map[generic.Dimension]string{
	generic.DimensionWorkingPlace:   "working_place_intervals",
	generic.DimensionPresencePolicy: "presence_policy_intervals",
	generic.DimensionTimeOffPolicy:  "time_off_policy_intervals",
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements generic.TxStore using SQLite.
type Store struct {
	*queries
	db *sql.DB
	mu sync.Mutex
}

var _ generic.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: &queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Employees
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT ''
	);

	-- Catalog
	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		name TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		system BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_categories_account
		ON categories(account_id);

	CREATE TABLE IF NOT EXISTS time_off_policies (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		category_id TEXT NOT NULL,
		name TEXT NOT NULL,
		policy_type TEXT NOT NULL,
		amount_value TEXT NOT NULL,
		amount_unit TEXT NOT NULL,
		start_day INTEGER NOT NULL,
		start_month INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		reset BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_time_off_policies_account
		ON time_off_policies(account_id);

	CREATE TABLE IF NOT EXISTS working_places (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS presence_policies (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		name TEXT NOT NULL,
		hours_per_day TEXT NOT NULL DEFAULT '0'
	);

	-- Lifecycle events
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		seq INTEGER NOT NULL,
		hire_json TEXT,
		occupation_rate TEXT,
		linked_interval_id TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_events_employee
		ON events(employee_id, effective_at, seq);

	-- Balance ledger
	CREATE TABLE IF NOT EXISTS balance_entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		category_id TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		amount_value TEXT NOT NULL,
		amount_unit TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		event_id TEXT NOT NULL DEFAULT '',
		interval_id TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		seq INTEGER NOT NULL
	);

	-- Composite index for running balances (hot path)
	CREATE INDEX IF NOT EXISTS idx_balance_entries_employee_category
		ON balance_entries(employee_id, category_id, effective_at, seq);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	for _, dim := range generic.Dimensions {
		table := intervalTables[dim]
		ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			employee_id TEXT NOT NULL,
			policy_id TEXT NOT NULL,
			category_id TEXT NOT NULL DEFAULT '',
			effective_at TEXT NOT NULL,
			effective_till TEXT,
			occupation_rate TEXT,
			start_day_order INTEGER NOT NULL DEFAULT 0,
			event_id TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_series
			ON %[1]s(employee_id, category_id, effective_at);

		-- At most one current interval per series
		CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_current
			ON %[1]s(employee_id, category_id)
			WHERE effective_till IS NULL;
		`, table)
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"balance_entries", "events", "employees", "categories", "time_off_policies", "working_places", "presence_policies"}
	for _, dim := range generic.Dimensions {
		tables = append(tables, intervalTables[dim])
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// QUERIES - generic.Store over a *sql.DB or a *sql.Tx
// =============================================================================

type queries struct {
	q querier
}

var _ generic.Store = (*queries)(nil)

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

func (s *queries) GetEmployee(ctx context.Context, id generic.EmployeeID) (generic.Employee, error) {
	var e generic.Employee
	err := s.q.QueryRowContext(ctx,
		"SELECT id, account_id, name FROM employees WHERE id = ?", id,
	).Scan(&e.ID, &e.AccountID, &e.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Employee{}, generic.NotFound("employee", id)
	}
	return e, err
}

func (s *queries) SaveEmployee(ctx context.Context, e generic.Employee) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO employees (id, account_id, name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET account_id = excluded.account_id, name = excluded.name
	`, e.ID, e.AccountID, e.Name)
	return err
}

func (s *queries) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT id, account_id, name FROM employees ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var out []generic.Employee
	for rows.Next() {
		var e generic.Employee
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Name); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// CATALOG STORE
// =============================================================================

func (s *queries) GetCategory(ctx context.Context, id generic.CategoryID) (generic.Category, error) {
	var c generic.Category
	err := s.q.QueryRowContext(ctx,
		"SELECT id, account_id, name, parent_id, system FROM categories WHERE id = ?", id,
	).Scan(&c.ID, &c.AccountID, &c.Name, &c.ParentID, &c.System)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Category{}, generic.NotFound("category", id)
	}
	return c, err
}

func (s *queries) SaveCategory(ctx context.Context, c generic.Category) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO categories (id, account_id, name, parent_id, system) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			name = excluded.name,
			parent_id = excluded.parent_id,
			system = excluded.system
	`, c.ID, c.AccountID, c.Name, c.ParentID, c.System)
	return err
}

func (s *queries) ListCategories(ctx context.Context, accountID generic.AccountID) ([]generic.Category, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT id, account_id, name, parent_id, system FROM categories WHERE account_id = ? ORDER BY name, id", accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.Category
	for rows.Next() {
		var c generic.Category
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Name, &c.ParentID, &c.System); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const policyColumns = "id, account_id, category_id, name, policy_type, amount_value, amount_unit, start_day, start_month, active, reset"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (generic.TimeOffPolicy, error) {
	var (
		p           generic.TimeOffPolicy
		amountValue string
		amountUnit  string
		startMonth  int
	)
	err := row.Scan(&p.ID, &p.AccountID, &p.CategoryID, &p.Name, &p.Type,
		&amountValue, &amountUnit, &p.StartDay, &startMonth, &p.Active, &p.Reset)
	if err != nil {
		return p, err
	}
	p.Amount = parseAmount(amountValue, amountUnit)
	p.StartMonth = time.Month(startMonth)
	return p, nil
}

func (s *queries) GetTimeOffPolicy(ctx context.Context, id generic.PolicyID) (generic.TimeOffPolicy, error) {
	p, err := scanPolicy(s.q.QueryRowContext(ctx, "SELECT "+policyColumns+" FROM time_off_policies WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return generic.TimeOffPolicy{}, generic.NotFound("time_off_policy", id)
	}
	return p, err
}

func (s *queries) SaveTimeOffPolicy(ctx context.Context, p generic.TimeOffPolicy) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO time_off_policies (`+policyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			category_id = excluded.category_id,
			name = excluded.name,
			policy_type = excluded.policy_type,
			amount_value = excluded.amount_value,
			amount_unit = excluded.amount_unit,
			start_day = excluded.start_day,
			start_month = excluded.start_month,
			active = excluded.active,
			reset = excluded.reset
	`, p.ID, p.AccountID, p.CategoryID, p.Name, p.Type,
		p.Amount.Value.String(), p.Amount.Unit, p.StartDay, int(p.StartMonth), p.Active, p.Reset)
	return err
}

func (s *queries) ListTimeOffPolicies(ctx context.Context, accountID generic.AccountID) ([]generic.TimeOffPolicy, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+policyColumns+" FROM time_off_policies WHERE account_id = ? ORDER BY name, id", accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.TimeOffPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *queries) GetWorkingPlace(ctx context.Context, id generic.PolicyID) (generic.WorkingPlace, error) {
	var w generic.WorkingPlace
	err := s.q.QueryRowContext(ctx,
		"SELECT id, account_id, name FROM working_places WHERE id = ?", id,
	).Scan(&w.ID, &w.AccountID, &w.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.WorkingPlace{}, generic.NotFound("working_place", id)
	}
	return w, err
}

func (s *queries) SaveWorkingPlace(ctx context.Context, w generic.WorkingPlace) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO working_places (id, account_id, name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET account_id = excluded.account_id, name = excluded.name
	`, w.ID, w.AccountID, w.Name)
	return err
}

func (s *queries) GetPresencePolicy(ctx context.Context, id generic.PolicyID) (generic.PresencePolicy, error) {
	var (
		p     generic.PresencePolicy
		hours string
	)
	err := s.q.QueryRowContext(ctx,
		"SELECT id, account_id, name, hours_per_day FROM presence_policies WHERE id = ?", id,
	).Scan(&p.ID, &p.AccountID, &p.Name, &hours)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.PresencePolicy{}, generic.NotFound("presence_policy", id)
	}
	if err != nil {
		return generic.PresencePolicy{}, err
	}
	p.HoursPerDay = generic.MustParseDecimal(hours)
	return p, nil
}

func (s *queries) SavePresencePolicy(ctx context.Context, p generic.PresencePolicy) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO presence_policies (id, account_id, name, hours_per_day) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			name = excluded.name,
			hours_per_day = excluded.hours_per_day
	`, p.ID, p.AccountID, p.Name, p.HoursPerDay.String())
	return err
}

// =============================================================================
// EVENT STORE
// =============================================================================

const eventColumns = "id, account_id, employee_id, kind, effective_at, seq, hire_json, occupation_rate, linked_interval_id"

func (s *queries) SaveEvent(ctx context.Context, e generic.Event) (generic.Event, error) {
	if e.Seq == 0 {
		if err := s.q.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) + 1 FROM events").Scan(&e.Seq); err != nil {
			return generic.Event{}, fmt.Errorf("next event seq: %w", err)
		}
	}

	var hireJSON sql.NullString
	if e.Hire != nil {
		b, err := json.Marshal(e.Hire)
		if err != nil {
			return generic.Event{}, fmt.Errorf("encode hire payload: %w", err)
		}
		hireJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.AccountID, e.EmployeeID, e.Kind, formatDate(e.EffectiveAt), e.Seq,
		hireJSON, nullDecimal(e.OccupationRate), e.LinkedIntervalID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.Event{}, &generic.ValidationError{Field: "id", Message: "event " + string(e.ID) + " already exists"}
		}
		return generic.Event{}, fmt.Errorf("failed to save event: %w", err)
	}
	return e, nil
}

func scanEvent(row rowScanner) (generic.Event, error) {
	var (
		e           generic.Event
		effectiveAt string
		hireJSON    sql.NullString
		rate        sql.NullString
	)
	err := row.Scan(&e.ID, &e.AccountID, &e.EmployeeID, &e.Kind, &effectiveAt, &e.Seq, &hireJSON, &rate, &e.LinkedIntervalID)
	if err != nil {
		return e, err
	}
	if e.EffectiveAt, err = generic.ParseDate(effectiveAt); err != nil {
		return e, fmt.Errorf("event %s: %w", e.ID, err)
	}
	if hireJSON.Valid && hireJSON.String != "" {
		e.Hire = &generic.HirePayload{}
		if err := json.Unmarshal([]byte(hireJSON.String), e.Hire); err != nil {
			return e, fmt.Errorf("event %s hire payload: %w", e.ID, err)
		}
	}
	e.OccupationRate = parseNullDecimal(rate)
	return e, nil
}

func (s *queries) GetEvent(ctx context.Context, id generic.EventID) (generic.Event, error) {
	e, err := scanEvent(s.q.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Event{}, generic.NotFound("event", id)
	}
	return e, err
}

func (s *queries) Events(ctx context.Context, employeeID generic.EmployeeID) ([]generic.Event, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE employee_id = ? ORDER BY effective_at, seq", employeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []generic.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *queries) LinkInterval(ctx context.Context, eventID generic.EventID, intervalID generic.IntervalID) error {
	res, err := s.q.ExecContext(ctx, "UPDATE events SET linked_interval_id = ? WHERE id = ?", intervalID, eventID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return generic.NotFound("event", eventID)
	}
	return nil
}

func (s *queries) DeleteEvent(ctx context.Context, id generic.EventID) error {
	_, err := s.q.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	return err
}

// =============================================================================
// INTERVAL STORE
// =============================================================================

const intervalColumns = "id, account_id, employee_id, policy_id, category_id, effective_at, effective_till, occupation_rate, start_day_order, event_id"

func tableFor(dim generic.Dimension) (string, error) {
	table, ok := intervalTables[dim]
	if !ok {
		return "", &generic.ValidationError{Field: "dimension", Message: "unknown dimension " + string(dim)}
	}
	return table, nil
}

func scanInterval(row rowScanner, dim generic.Dimension) (generic.Interval, error) {
	var (
		iv          generic.Interval
		effectiveAt string
		till        sql.NullString
		rate        sql.NullString
	)
	err := row.Scan(&iv.ID, &iv.AccountID, &iv.EmployeeID, &iv.PolicyID, &iv.CategoryID,
		&effectiveAt, &till, &rate, &iv.StartDayOrder, &iv.EventID)
	if err != nil {
		return iv, err
	}
	iv.Dimension = dim
	if iv.EffectiveAt, err = generic.ParseDate(effectiveAt); err != nil {
		return iv, fmt.Errorf("interval %s: %w", iv.ID, err)
	}
	if till.Valid {
		t, err := generic.ParseDate(till.String)
		if err != nil {
			return iv, fmt.Errorf("interval %s: %w", iv.ID, err)
		}
		iv.EffectiveTill = &t
	}
	iv.OccupationRate = parseNullDecimal(rate)
	return iv, nil
}

func (s *queries) queryIntervals(ctx context.Context, dim generic.Dimension, where string, args ...any) ([]generic.Interval, error) {
	table, err := tableFor(dim)
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+intervalColumns+" FROM "+table+" WHERE "+where+" ORDER BY effective_at, category_id", args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var out []generic.Interval
	for rows.Next() {
		iv, err := scanInterval(rows, dim)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (s *queries) Intervals(ctx context.Context, employeeID generic.EmployeeID, dim generic.Dimension, categoryID generic.CategoryID) ([]generic.Interval, error) {
	if dim != generic.DimensionTimeOffPolicy {
		return s.queryIntervals(ctx, dim, "employee_id = ?", employeeID)
	}
	return s.queryIntervals(ctx, dim, "employee_id = ? AND category_id = ?", employeeID, categoryID)
}

func (s *queries) IntervalsOf(ctx context.Context, employeeID generic.EmployeeID, dim generic.Dimension) ([]generic.Interval, error) {
	return s.queryIntervals(ctx, dim, "employee_id = ?", employeeID)
}

func (s *queries) GetInterval(ctx context.Context, dim generic.Dimension, id generic.IntervalID) (generic.Interval, error) {
	ivs, err := s.queryIntervals(ctx, dim, "id = ?", id)
	if err != nil {
		return generic.Interval{}, err
	}
	if len(ivs) == 0 {
		return generic.Interval{}, generic.NotFound("interval", id)
	}
	return ivs[0], nil
}

// SaveInterval upserts by ID. A second open interval in one series violates
// the partial unique index and is reported as an overlap conflict.
func (s *queries) SaveInterval(ctx context.Context, iv generic.Interval) error {
	table, err := tableFor(iv.Dimension)
	if err != nil {
		return err
	}
	var till sql.NullString
	if iv.EffectiveTill != nil {
		till = sql.NullString{String: formatDate(*iv.EffectiveTill), Valid: true}
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO `+table+` (`+intervalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			policy_id = excluded.policy_id,
			category_id = excluded.category_id,
			effective_at = excluded.effective_at,
			effective_till = excluded.effective_till,
			occupation_rate = excluded.occupation_rate,
			start_day_order = excluded.start_day_order,
			event_id = excluded.event_id
	`, iv.ID, iv.AccountID, iv.EmployeeID, iv.PolicyID, iv.CategoryID,
		formatDate(iv.EffectiveAt), till, nullDecimal(iv.OccupationRate), iv.StartDayOrder, iv.EventID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &generic.ConflictError{
				Code:    generic.CodeOverlap,
				Message: fmt.Sprintf("employee %s already has a current %s interval", iv.EmployeeID, iv.Dimension),
			}
		}
		return fmt.Errorf("failed to save interval: %w", err)
	}
	return nil
}

func (s *queries) DeleteInterval(ctx context.Context, dim generic.Dimension, id generic.IntervalID) error {
	table, err := tableFor(dim)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	return err
}

// =============================================================================
// LEDGER STORE
// =============================================================================

const entryColumns = "id, account_id, employee_id, category_id, entry_type, amount_value, amount_unit, effective_at, event_id, interval_id, reason, seq"

func (s *queries) Entries(ctx context.Context, employeeID generic.EmployeeID, categoryID generic.CategoryID) ([]generic.Entry, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM balance_entries
		WHERE employee_id = ? AND category_id = ?
		ORDER BY effective_at ASC, seq ASC
	`, employeeID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var out []generic.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row rowScanner) (generic.Entry, error) {
	var (
		e           generic.Entry
		amountValue string
		amountUnit  string
		effectiveAt string
	)
	err := row.Scan(&e.ID, &e.AccountID, &e.EmployeeID, &e.CategoryID, &e.Type,
		&amountValue, &amountUnit, &effectiveAt, &e.EventID, &e.IntervalID, &e.Reason, &e.Seq)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}
	e.Amount = parseAmount(amountValue, amountUnit)
	t, err := time.Parse(instantLayout, effectiveAt)
	if err != nil {
		return e, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	e.EffectiveAt = generic.NewInstant(t)
	return e, nil
}

// SaveEntry upserts by ID. An existing entry keeps its sequence number.
func (s *queries) SaveEntry(ctx context.Context, e generic.Entry) (generic.Entry, error) {
	err := s.q.QueryRowContext(ctx, "SELECT seq FROM balance_entries WHERE id = ?", e.ID).Scan(&e.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		err = s.q.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) + 1 FROM balance_entries").Scan(&e.Seq)
	}
	if err != nil {
		return generic.Entry{}, fmt.Errorf("entry seq: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO balance_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entry_type = excluded.entry_type,
			amount_value = excluded.amount_value,
			amount_unit = excluded.amount_unit,
			effective_at = excluded.effective_at,
			event_id = excluded.event_id,
			interval_id = excluded.interval_id,
			reason = excluded.reason
	`, e.ID, e.AccountID, e.EmployeeID, e.CategoryID, e.Type,
		e.Amount.Value.String(), e.Amount.Unit, formatInstant(e.EffectiveAt),
		e.EventID, e.IntervalID, e.Reason, e.Seq)
	if err != nil {
		return generic.Entry{}, fmt.Errorf("failed to save entry: %w", err)
	}
	return e, nil
}

func (s *queries) DeleteEntry(ctx context.Context, id generic.EntryID) error {
	_, err := s.q.ExecContext(ctx, "DELETE FROM balance_entries WHERE id = ?", id)
	return err
}

func (s *queries) EntryCategories(ctx context.Context, employeeID generic.EmployeeID) ([]generic.CategoryID, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT DISTINCT category_id FROM balance_entries WHERE employee_id = ? ORDER BY category_id", employeeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.CategoryID
	for rows.Next() {
		var id generic.CategoryID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatDate(tp generic.TimePoint) string {
	return tp.Time.UTC().Format(dateLayout)
}

func formatInstant(tp generic.TimePoint) string {
	return tp.Time.UTC().Format(instantLayout)
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid || s.String == "" {
		return nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func parseAmount(value, unit string) generic.Amount {
	return generic.Amount{
		Value: generic.MustParseDecimal(value),
		Unit:  generic.Unit(unit),
	}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
