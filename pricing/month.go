package pricing

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH - Calendar month, the engine's unit of time
// =============================================================================

// Month identifies a calendar month. Every price, index point, schedule entry
// and report row in the engine is keyed by one. The zero value is "unset".
type Month struct {
	Year int
	Mon  time.Month
}

func NewMonth(year int, mon time.Month) Month {
	return Month{Year: year, Mon: mon}
}

// ParseMonth parses "2006-01" style strings.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return Month{Year: t.Year(), Mon: t.Month()}, nil
}

// index maps a month onto a continuous scale so arithmetic and ordering
// never juggle (year, month) pairs.
func (m Month) index() int { return m.Year*12 + int(m.Mon) - 1 }

// Comparison
func (m Month) Before(other Month) bool        { return m.index() < other.index() }
func (m Month) After(other Month) bool         { return m.index() > other.index() }
func (m Month) Equal(other Month) bool         { return m.index() == other.index() }
func (m Month) BeforeOrEqual(other Month) bool { return m.index() <= other.index() }
func (m Month) AfterOrEqual(other Month) bool  { return m.index() >= other.index() }
func (m Month) IsZero() bool                   { return m.Year == 0 && m.Mon == 0 }

// Arithmetic
func (m Month) AddMonths(n int) Month {
	idx := m.index() + n
	y, rem := idx/12, idx%12
	if rem < 0 {
		y--
		rem += 12
	}
	return Month{Year: y, Mon: time.Month(rem + 1)}
}

// MonthsBetween returns the signed whole-month distance from m to other.
func MonthsBetween(m, other Month) int { return other.index() - m.index() }

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Mon)) }

// MarshalText/UnmarshalText let Month be used directly in JSON config and
// report payloads as "2025-01".
func (m Month) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Month) UnmarshalText(b []byte) error {
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// =============================================================================
// MONTH RANGE - Inclusive [From, To] reporting window
// =============================================================================

type MonthRange struct {
	From Month
	To   Month
}

func NewMonthRange(from, to Month) (MonthRange, error) {
	if to.Before(from) {
		return MonthRange{}, ErrInvalidRange
	}
	return MonthRange{From: from, To: to}, nil
}

// Contains reports whether m falls inside the inclusive range.
func (r MonthRange) Contains(m Month) bool {
	return m.AfterOrEqual(r.From) && m.BeforeOrEqual(r.To)
}

// Len returns the number of months in the range.
func (r MonthRange) Len() int { return MonthsBetween(r.From, r.To) + 1 }

// Months materializes the range in ascending order.
func (r MonthRange) Months() []Month {
	out := make([]Month, 0, r.Len())
	for m := r.From; m.BeforeOrEqual(r.To); m = m.AddMonths(1) {
		out = append(out, m)
	}
	return out
}

func (r MonthRange) String() string { return r.From.String() + ".." + r.To.String() }
