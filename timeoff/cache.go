package timeoff

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/shopspring/decimal"
	"github.com/warp/employment-engine/generic"
)

// =============================================================================
// EMPLOYEE LOCKS - Serialize operations on one employee
// =============================================================================

// employeeLocks hands out one RWMutex per employee. Writers (lifecycle and
// assignment operations) take the write lock; reads of derived state take
// the read lock so they never observe a half-invalidated cache.
type employeeLocks struct {
	m *xsync.Map[generic.EmployeeID, *sync.RWMutex]
}

func newEmployeeLocks() *employeeLocks {
	return &employeeLocks{m: xsync.NewMap[generic.EmployeeID, *sync.RWMutex]()}
}

func (l *employeeLocks) get(id generic.EmployeeID) *sync.RWMutex {
	mu, _ := l.m.LoadOrStore(id, &sync.RWMutex{})
	return mu
}

func (l *employeeLocks) Lock(id generic.EmployeeID) func() {
	mu := l.get(id)
	mu.Lock()
	return mu.Unlock
}

func (l *employeeLocks) RLock(id generic.EmployeeID) func() {
	mu := l.get(id)
	mu.RLock()
	return mu.RUnlock
}

// =============================================================================
// BALANCE CACHE - Materialized running totals per (employee, category)
// =============================================================================

type balanceKey struct {
	employeeID generic.EmployeeID
	categoryID generic.CategoryID
}

type balancePoint struct {
	at    generic.TimePoint // calendar date
	total decimal.Decimal   // running total at the end of that date
}

type runningTotals struct {
	unit   generic.Unit
	points []balancePoint
}

// balanceCache memoizes running totals. Any write to a pair's entries
// invalidates that pair.
type balanceCache struct {
	m *xsync.Map[balanceKey, runningTotals]
}

func newBalanceCache() *balanceCache {
	return &balanceCache{m: xsync.NewMap[balanceKey, runningTotals]()}
}

func (c *balanceCache) lookup(k balanceKey, asOf generic.TimePoint) (generic.Amount, bool) {
	rt, ok := c.m.Load(k)
	if !ok {
		return generic.Amount{}, false
	}
	return rt.at(asOf), true
}

func (c *balanceCache) store(k balanceKey, entries []generic.Entry) runningTotals {
	rt := buildRunningTotals(entries)
	c.m.Store(k, rt)
	return rt
}

func (c *balanceCache) invalidate(k balanceKey) { c.m.Delete(k) }

func buildRunningTotals(entries []generic.Entry) runningTotals {
	rt := runningTotals{unit: generic.UnitDays}
	total := decimal.Zero
	for i, e := range entries {
		if i == 0 {
			rt.unit = e.Amount.Unit
		}
		total = total.Add(e.Amount.Value)
		day := e.EffectiveAt.Date()
		if n := len(rt.points); n > 0 && rt.points[n-1].at.Equal(day) {
			rt.points[n-1].total = total
			continue
		}
		rt.points = append(rt.points, balancePoint{at: day, total: total})
	}
	return rt
}

// at returns the total of entries dated on or before asOf.
func (rt runningTotals) at(asOf generic.TimePoint) generic.Amount {
	day := asOf.Date()
	i := sort.Search(len(rt.points), func(i int) bool { return rt.points[i].at.After(day) })
	if i == 0 {
		return generic.Amount{Value: decimal.Zero, Unit: rt.unit}
	}
	return generic.Amount{Value: rt.points[i-1].total, Unit: rt.unit}
}
