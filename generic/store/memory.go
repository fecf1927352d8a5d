// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/employment-engine/generic"
)

// =============================================================================
// MEMORY STATE - Unlocked implementation shared by Memory and tx views
// =============================================================================

type state struct {
	employees        map[generic.EmployeeID]generic.Employee
	categories       map[generic.CategoryID]generic.Category
	timeOffPolicies  map[generic.PolicyID]generic.TimeOffPolicy
	workingPlaces    map[generic.PolicyID]generic.WorkingPlace
	presencePolicies map[generic.PolicyID]generic.PresencePolicy
	events           map[generic.EventID]generic.Event
	intervals        map[generic.Dimension]map[generic.IntervalID]generic.Interval
	entries          map[generic.EntryID]generic.Entry
	eventSeq         int64
	entrySeq         int64
}

func newState() *state {
	s := &state{
		employees:        make(map[generic.EmployeeID]generic.Employee),
		categories:       make(map[generic.CategoryID]generic.Category),
		timeOffPolicies:  make(map[generic.PolicyID]generic.TimeOffPolicy),
		workingPlaces:    make(map[generic.PolicyID]generic.WorkingPlace),
		presencePolicies: make(map[generic.PolicyID]generic.PresencePolicy),
		events:           make(map[generic.EventID]generic.Event),
		intervals:        make(map[generic.Dimension]map[generic.IntervalID]generic.Interval),
		entries:          make(map[generic.EntryID]generic.Entry),
	}
	for _, dim := range generic.Dimensions {
		s.intervals[dim] = make(map[generic.IntervalID]generic.Interval)
	}
	return s
}

func (s *state) clone() *state {
	c := &state{
		employees:        cloneMap(s.employees),
		categories:       cloneMap(s.categories),
		timeOffPolicies:  cloneMap(s.timeOffPolicies),
		workingPlaces:    cloneMap(s.workingPlaces),
		presencePolicies: cloneMap(s.presencePolicies),
		events:           cloneMap(s.events),
		intervals:        make(map[generic.Dimension]map[generic.IntervalID]generic.Interval),
		entries:          cloneMap(s.entries),
		eventSeq:         s.eventSeq,
		entrySeq:         s.entrySeq,
	}
	for dim, ivs := range s.intervals {
		c.intervals[dim] = cloneMap(ivs)
	}
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Employees

func (s *state) GetEmployee(_ context.Context, id generic.EmployeeID) (generic.Employee, error) {
	e, ok := s.employees[id]
	if !ok {
		return generic.Employee{}, generic.NotFound("employee", id)
	}
	return e, nil
}

func (s *state) SaveEmployee(_ context.Context, e generic.Employee) error {
	s.employees[e.ID] = e
	return nil
}

func (s *state) ListEmployees(_ context.Context) ([]generic.Employee, error) {
	out := make([]generic.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Catalog

func (s *state) GetCategory(_ context.Context, id generic.CategoryID) (generic.Category, error) {
	c, ok := s.categories[id]
	if !ok {
		return generic.Category{}, generic.NotFound("category", id)
	}
	return c, nil
}

func (s *state) SaveCategory(_ context.Context, c generic.Category) error {
	s.categories[c.ID] = c
	return nil
}

func (s *state) ListCategories(_ context.Context, accountID generic.AccountID) ([]generic.Category, error) {
	var out []generic.Category
	for _, c := range s.categories {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *state) GetTimeOffPolicy(_ context.Context, id generic.PolicyID) (generic.TimeOffPolicy, error) {
	p, ok := s.timeOffPolicies[id]
	if !ok {
		return generic.TimeOffPolicy{}, generic.NotFound("policy", id)
	}
	return p, nil
}

func (s *state) SaveTimeOffPolicy(_ context.Context, p generic.TimeOffPolicy) error {
	s.timeOffPolicies[p.ID] = p
	return nil
}

func (s *state) ListTimeOffPolicies(_ context.Context, accountID generic.AccountID) ([]generic.TimeOffPolicy, error) {
	var out []generic.TimeOffPolicy
	for _, p := range s.timeOffPolicies {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *state) GetWorkingPlace(_ context.Context, id generic.PolicyID) (generic.WorkingPlace, error) {
	w, ok := s.workingPlaces[id]
	if !ok {
		return generic.WorkingPlace{}, generic.NotFound("working_place", id)
	}
	return w, nil
}

func (s *state) SaveWorkingPlace(_ context.Context, w generic.WorkingPlace) error {
	s.workingPlaces[w.ID] = w
	return nil
}

func (s *state) GetPresencePolicy(_ context.Context, id generic.PolicyID) (generic.PresencePolicy, error) {
	p, ok := s.presencePolicies[id]
	if !ok {
		return generic.PresencePolicy{}, generic.NotFound("presence_policy", id)
	}
	return p, nil
}

func (s *state) SavePresencePolicy(_ context.Context, p generic.PresencePolicy) error {
	s.presencePolicies[p.ID] = p
	return nil
}

// Events

func (s *state) SaveEvent(_ context.Context, e generic.Event) (generic.Event, error) {
	if e.Seq == 0 {
		s.eventSeq++
		e.Seq = s.eventSeq
	} else if e.Seq > s.eventSeq {
		s.eventSeq = e.Seq
	}
	s.events[e.ID] = e
	return e, nil
}

func (s *state) GetEvent(_ context.Context, id generic.EventID) (generic.Event, error) {
	e, ok := s.events[id]
	if !ok {
		return generic.Event{}, generic.NotFound("event", id)
	}
	return e, nil
}

func (s *state) Events(_ context.Context, employeeID generic.EmployeeID) ([]generic.Event, error) {
	var out []generic.Event
	for _, e := range s.events {
		if e.EmployeeID == employeeID {
			out = append(out, e)
		}
	}
	generic.SortEvents(out)
	return out, nil
}

func (s *state) LinkInterval(_ context.Context, eventID generic.EventID, intervalID generic.IntervalID) error {
	e, ok := s.events[eventID]
	if !ok {
		return generic.NotFound("event", eventID)
	}
	e.LinkedIntervalID = intervalID
	s.events[eventID] = e
	return nil
}

func (s *state) DeleteEvent(_ context.Context, id generic.EventID) error {
	delete(s.events, id)
	return nil
}

// Intervals

func (s *state) Intervals(_ context.Context, employeeID generic.EmployeeID, dim generic.Dimension, categoryID generic.CategoryID) ([]generic.Interval, error) {
	var out []generic.Interval
	for _, iv := range s.intervals[dim] {
		if iv.EmployeeID != employeeID {
			continue
		}
		if dim == generic.DimensionTimeOffPolicy && iv.CategoryID != categoryID {
			continue
		}
		out = append(out, iv)
	}
	sortIntervals(out)
	return out, nil
}

func (s *state) IntervalsOf(_ context.Context, employeeID generic.EmployeeID, dim generic.Dimension) ([]generic.Interval, error) {
	var out []generic.Interval
	for _, iv := range s.intervals[dim] {
		if iv.EmployeeID == employeeID {
			out = append(out, iv)
		}
	}
	sortIntervals(out)
	return out, nil
}

func (s *state) GetInterval(_ context.Context, dim generic.Dimension, id generic.IntervalID) (generic.Interval, error) {
	iv, ok := s.intervals[dim][id]
	if !ok {
		return generic.Interval{}, generic.NotFound("interval", id)
	}
	return iv, nil
}

func (s *state) SaveInterval(_ context.Context, iv generic.Interval) error {
	if !iv.Dimension.Valid() {
		return &generic.ValidationError{Field: "dimension", Message: "unknown dimension " + string(iv.Dimension)}
	}
	s.intervals[iv.Dimension][iv.ID] = iv
	return nil
}

func (s *state) DeleteInterval(_ context.Context, dim generic.Dimension, id generic.IntervalID) error {
	delete(s.intervals[dim], id)
	return nil
}

func sortIntervals(ivs []generic.Interval) {
	sort.Slice(ivs, func(i, j int) bool {
		if !ivs[i].EffectiveAt.Equal(ivs[j].EffectiveAt) {
			return ivs[i].EffectiveAt.Before(ivs[j].EffectiveAt)
		}
		return ivs[i].CategoryID < ivs[j].CategoryID
	})
}

// Ledger

func (s *state) Entries(_ context.Context, employeeID generic.EmployeeID, categoryID generic.CategoryID) ([]generic.Entry, error) {
	var out []generic.Entry
	for _, e := range s.entries {
		if e.EmployeeID == employeeID && e.CategoryID == categoryID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return generic.EntryLess(out[i], out[j]) })
	return out, nil
}

func (s *state) SaveEntry(_ context.Context, e generic.Entry) (generic.Entry, error) {
	if existing, ok := s.entries[e.ID]; ok {
		e.Seq = existing.Seq
	} else {
		s.entrySeq++
		e.Seq = s.entrySeq
	}
	s.entries[e.ID] = e
	return e, nil
}

func (s *state) DeleteEntry(_ context.Context, id generic.EntryID) error {
	delete(s.entries, id)
	return nil
}

func (s *state) EntryCategories(_ context.Context, employeeID generic.EmployeeID) ([]generic.CategoryID, error) {
	seen := make(map[generic.CategoryID]bool)
	var out []generic.CategoryID
	for _, e := range s.entries {
		if e.EmployeeID == employeeID && !seen[e.CategoryID] {
			seen[e.CategoryID] = true
			out = append(out, e.CategoryID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a mutex-guarded Store.
type Memory struct {
	mu sync.Mutex
	st *state
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

func locked[T any](m *Memory, fn func(*state) (T, error)) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.st)
}

func lockedErr(m *Memory, fn func(*state) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.st)
}

func (m *Memory) GetEmployee(ctx context.Context, id generic.EmployeeID) (generic.Employee, error) {
	return locked(m, func(s *state) (generic.Employee, error) { return s.GetEmployee(ctx, id) })
}

func (m *Memory) SaveEmployee(ctx context.Context, e generic.Employee) error {
	return lockedErr(m, func(s *state) error { return s.SaveEmployee(ctx, e) })
}

func (m *Memory) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	return locked(m, func(s *state) ([]generic.Employee, error) { return s.ListEmployees(ctx) })
}

func (m *Memory) GetCategory(ctx context.Context, id generic.CategoryID) (generic.Category, error) {
	return locked(m, func(s *state) (generic.Category, error) { return s.GetCategory(ctx, id) })
}

func (m *Memory) SaveCategory(ctx context.Context, c generic.Category) error {
	return lockedErr(m, func(s *state) error { return s.SaveCategory(ctx, c) })
}

func (m *Memory) ListCategories(ctx context.Context, accountID generic.AccountID) ([]generic.Category, error) {
	return locked(m, func(s *state) ([]generic.Category, error) { return s.ListCategories(ctx, accountID) })
}

func (m *Memory) GetTimeOffPolicy(ctx context.Context, id generic.PolicyID) (generic.TimeOffPolicy, error) {
	return locked(m, func(s *state) (generic.TimeOffPolicy, error) { return s.GetTimeOffPolicy(ctx, id) })
}

func (m *Memory) SaveTimeOffPolicy(ctx context.Context, p generic.TimeOffPolicy) error {
	return lockedErr(m, func(s *state) error { return s.SaveTimeOffPolicy(ctx, p) })
}

func (m *Memory) ListTimeOffPolicies(ctx context.Context, accountID generic.AccountID) ([]generic.TimeOffPolicy, error) {
	return locked(m, func(s *state) ([]generic.TimeOffPolicy, error) { return s.ListTimeOffPolicies(ctx, accountID) })
}

func (m *Memory) GetWorkingPlace(ctx context.Context, id generic.PolicyID) (generic.WorkingPlace, error) {
	return locked(m, func(s *state) (generic.WorkingPlace, error) { return s.GetWorkingPlace(ctx, id) })
}

func (m *Memory) SaveWorkingPlace(ctx context.Context, w generic.WorkingPlace) error {
	return lockedErr(m, func(s *state) error { return s.SaveWorkingPlace(ctx, w) })
}

func (m *Memory) GetPresencePolicy(ctx context.Context, id generic.PolicyID) (generic.PresencePolicy, error) {
	return locked(m, func(s *state) (generic.PresencePolicy, error) { return s.GetPresencePolicy(ctx, id) })
}

func (m *Memory) SavePresencePolicy(ctx context.Context, p generic.PresencePolicy) error {
	return lockedErr(m, func(s *state) error { return s.SavePresencePolicy(ctx, p) })
}

func (m *Memory) SaveEvent(ctx context.Context, e generic.Event) (generic.Event, error) {
	return locked(m, func(s *state) (generic.Event, error) { return s.SaveEvent(ctx, e) })
}

func (m *Memory) GetEvent(ctx context.Context, id generic.EventID) (generic.Event, error) {
	return locked(m, func(s *state) (generic.Event, error) { return s.GetEvent(ctx, id) })
}

func (m *Memory) Events(ctx context.Context, employeeID generic.EmployeeID) ([]generic.Event, error) {
	return locked(m, func(s *state) ([]generic.Event, error) { return s.Events(ctx, employeeID) })
}

func (m *Memory) LinkInterval(ctx context.Context, eventID generic.EventID, intervalID generic.IntervalID) error {
	return lockedErr(m, func(s *state) error { return s.LinkInterval(ctx, eventID, intervalID) })
}

func (m *Memory) DeleteEvent(ctx context.Context, id generic.EventID) error {
	return lockedErr(m, func(s *state) error { return s.DeleteEvent(ctx, id) })
}

func (m *Memory) Intervals(ctx context.Context, employeeID generic.EmployeeID, dim generic.Dimension, categoryID generic.CategoryID) ([]generic.Interval, error) {
	return locked(m, func(s *state) ([]generic.Interval, error) { return s.Intervals(ctx, employeeID, dim, categoryID) })
}

func (m *Memory) IntervalsOf(ctx context.Context, employeeID generic.EmployeeID, dim generic.Dimension) ([]generic.Interval, error) {
	return locked(m, func(s *state) ([]generic.Interval, error) { return s.IntervalsOf(ctx, employeeID, dim) })
}

func (m *Memory) GetInterval(ctx context.Context, dim generic.Dimension, id generic.IntervalID) (generic.Interval, error) {
	return locked(m, func(s *state) (generic.Interval, error) { return s.GetInterval(ctx, dim, id) })
}

func (m *Memory) SaveInterval(ctx context.Context, iv generic.Interval) error {
	return lockedErr(m, func(s *state) error { return s.SaveInterval(ctx, iv) })
}

func (m *Memory) DeleteInterval(ctx context.Context, dim generic.Dimension, id generic.IntervalID) error {
	return lockedErr(m, func(s *state) error { return s.DeleteInterval(ctx, dim, id) })
}

func (m *Memory) Entries(ctx context.Context, employeeID generic.EmployeeID, categoryID generic.CategoryID) ([]generic.Entry, error) {
	return locked(m, func(s *state) ([]generic.Entry, error) { return s.Entries(ctx, employeeID, categoryID) })
}

func (m *Memory) SaveEntry(ctx context.Context, e generic.Entry) (generic.Entry, error) {
	return locked(m, func(s *state) (generic.Entry, error) { return s.SaveEntry(ctx, e) })
}

func (m *Memory) DeleteEntry(ctx context.Context, id generic.EntryID) error {
	return lockedErr(m, func(s *state) error { return s.DeleteEntry(ctx, id) })
}

func (m *Memory) EntryCategories(ctx context.Context, employeeID generic.EmployeeID) ([]generic.CategoryID, error) {
	return locked(m, func(s *state) ([]generic.CategoryID, error) { return s.EntryCategories(ctx, employeeID) })
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.st.clone()
	if err := fn(tm.st); err != nil {
		tm.st = snapshot
		return err
	}
	return nil
}
