package generic

import (
	"time"
)

// =============================================================================
// TIME POINT - Calendar dates for assignments, instants for ledger ordering
// =============================================================================

type TimePoint struct {
	Time        time.Time
	Granularity Granularity
}

type Granularity int

const (
	GranularityDay Granularity = iota
	GranularityHour
	// GranularityInstant keeps the full timestamp. Ledger entries use it so
	// that several entries on the same calendar day keep a stable order.
	GranularityInstant
)

const dateLayout = "2006-01-02"

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), Granularity: GranularityDay}
}

func NewInstant(t time.Time) TimePoint {
	return TimePoint{Time: t.UTC(), Granularity: GranularityInstant}
}

// ParseDate parses an ISO-8601 calendar date (YYYY-MM-DD) or an RFC3339
// timestamp, truncating the latter to its UTC date.
func ParseDate(s string) (TimePoint, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return NewTimePoint(t.Year(), t.Month(), t.Day()), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return TimePoint{}, err
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for fixtures; it panics on malformed input.
func MustParseDate(s string) TimePoint {
	tp, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

// DateOf returns the UTC calendar date containing t.
func DateOf(t time.Time) TimePoint {
	t = t.UTC()
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

func (tp TimePoint) normalize() time.Time {
	switch tp.Granularity {
	case GranularityDay:
		return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
	case GranularityHour:
		return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), tp.Time.Hour(), 0, 0, 0, time.UTC)
	default:
		return tp.Time
	}
}

// Date drops any time-of-day component.
func (tp TimePoint) Date() TimePoint { return DateOf(tp.Time) }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint   { return TimePoint{Time: tp.Time.AddDate(0, 0, n), Granularity: tp.Granularity} }
func (tp TimePoint) AddMonths(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, n, 0), Granularity: tp.Granularity} }
func (tp TimePoint) AddYears(n int) TimePoint  { return TimePoint{Time: tp.Time.AddDate(n, 0, 0), Granularity: tp.Granularity} }

// Add shifts the point by d and promotes it to instant granularity.
func (tp TimePoint) Add(d time.Duration) TimePoint {
	return TimePoint{Time: tp.normalize().Add(d), Granularity: GranularityInstant}
}

// Properties
func (tp TimePoint) Year() int          { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month  { return tp.Time.Month() }
func (tp TimePoint) Day() int           { return tp.Time.Day() }
func (tp TimePoint) IsZero() bool       { return tp.Time.IsZero() }
func (tp TimePoint) IsJanuaryFirst() bool { return tp.Month() == time.January && tp.Day() == 1 }

func (tp TimePoint) String() string {
	switch tp.Granularity {
	case GranularityDay:
		return tp.Time.Format(dateLayout)
	case GranularityHour:
		return tp.Time.Format("2006-01-02 15:00")
	default:
		return tp.Time.Format(time.RFC3339)
	}
}

// MinTime returns the earlier of two points.
func MinTime(a, b TimePoint) TimePoint {
	if b.Before(a) {
		return b
	}
	return a
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock provides the current time. Replay of recurring ledger entries never
// runs past Clock.Now().
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Used by tests and scenarios.
type FixedClock struct{ At time.Time }

func (c FixedClock) Now() time.Time { return c.At }

// =============================================================================
// TIME UTILITIES
// =============================================================================

func DaysBetween(from, to TimePoint) int { return int(to.normalize().Sub(from.normalize()).Hours() / 24) }
func StartOfYear(year int) TimePoint     { return NewTimePoint(year, time.January, 1) }
func EndOfYear(year int) TimePoint       { return NewTimePoint(year, time.December, 31) }
