package timeoff

import (
	"context"

	"github.com/warp/employment-engine/generic"
)

// =============================================================================
// OBSERVERS - Notified after a successful commit, never inside it
// =============================================================================

// AssignmentObserver is told which intervals an operation rewrote.
type AssignmentObserver interface {
	IntervalsChanged(ctx context.Context, employeeID generic.EmployeeID, change generic.Change) error
}

// LedgerObserver is told which entries an operation rewrote.
type LedgerObserver interface {
	LedgerChanged(ctx context.Context, change LedgerChange) error
}

// EventDeleter removes a lifecycle event once the engine has undone its
// effects. It runs inside the operation's transaction.
type EventDeleter interface {
	DeleteEvent(ctx context.Context, store generic.EventStore, event generic.Event) error
}

// storeEventDeleter deletes the event row.
type storeEventDeleter struct{}

func (storeEventDeleter) DeleteEvent(ctx context.Context, store generic.EventStore, event generic.Event) error {
	return store.DeleteEvent(ctx, event.ID)
}

// AssignmentObserverFunc adapts a function to AssignmentObserver.
type AssignmentObserverFunc func(ctx context.Context, employeeID generic.EmployeeID, change generic.Change) error

func (f AssignmentObserverFunc) IntervalsChanged(ctx context.Context, employeeID generic.EmployeeID, change generic.Change) error {
	return f(ctx, employeeID, change)
}

// LedgerObserverFunc adapts a function to LedgerObserver.
type LedgerObserverFunc func(ctx context.Context, change LedgerChange) error

func (f LedgerObserverFunc) LedgerChanged(ctx context.Context, change LedgerChange) error {
	return f(ctx, change)
}
