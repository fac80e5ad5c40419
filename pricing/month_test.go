package pricing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/warp/bizcase-engine/pricing"
)

// =============================================================================
// PARSING & FORMATTING
// =============================================================================

func TestParseMonth(t *testing.T) {
	// GIVEN: A "2006-01" style string
	// WHEN: Parsing it
	// THEN: Year and month round-trip through String()

	m, err := pricing.ParseMonth("2025-03")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Year != 2025 || m.Mon != time.March {
		t.Errorf("expected 2025-03, got %+v", m)
	}
	if m.String() != "2025-03" {
		t.Errorf("expected string 2025-03, got %q", m.String())
	}
}

func TestParseMonth_Invalid(t *testing.T) {
	// GIVEN: Malformed month strings
	// WHEN: Parsing them
	// THEN: Each fails

	for _, bad := range []string{"", "2025", "2025-13", "202503", "2025-03-01", "march 2025"} {
		if _, err := pricing.ParseMonth(bad); err == nil {
			t.Errorf("expected %q to fail parsing", bad)
		}
	}
}

func TestMonth_TextMarshalling(t *testing.T) {
	// GIVEN: A month
	// WHEN: Marshalling and unmarshalling as text
	// THEN: The value survives; bad text errors

	m := month(2025, time.July)
	b, err := m.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "2025-07" {
		t.Errorf("expected 2025-07, got %q", b)
	}

	var back pricing.Month
	if err := back.UnmarshalText(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(m) {
		t.Errorf("expected %s back, got %s", m, back)
	}

	if err := back.UnmarshalText([]byte("not-a-month")); err == nil {
		t.Error("expected unmarshal of garbage to fail")
	}
}

// =============================================================================
// ARITHMETIC & ORDERING
// =============================================================================

func TestMonth_AddMonths(t *testing.T) {
	// GIVEN: Months near year boundaries
	// WHEN: Adding positive, zero and negative offsets
	// THEN: Year rollover is handled in both directions

	cases := []struct {
		start pricing.Month
		n     int
		want  pricing.Month
	}{
		{month(2025, time.November), 3, month(2026, time.February)},
		{month(2025, time.January), -1, month(2024, time.December)},
		{month(2025, time.June), 0, month(2025, time.June)},
		{month(2025, time.January), 24, month(2027, time.January)},
		{month(2025, time.March), -15, month(2023, time.December)},
	}
	for _, tc := range cases {
		if got := tc.start.AddMonths(tc.n); !got.Equal(tc.want) {
			t.Errorf("%s + %d: expected %s, got %s", tc.start, tc.n, tc.want, got)
		}
	}
}

func TestMonthsBetween(t *testing.T) {
	// GIVEN: Two months
	// WHEN: Measuring the signed distance
	// THEN: Forward is positive, backward negative, same is zero

	jan := month(2025, time.January)
	apr := month(2025, time.April)

	if got := pricing.MonthsBetween(jan, apr); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := pricing.MonthsBetween(apr, jan); got != -3 {
		t.Errorf("expected -3, got %d", got)
	}
	if got := pricing.MonthsBetween(jan, jan); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	if got := pricing.MonthsBetween(month(2024, time.November), month(2025, time.February)); got != 3 {
		t.Errorf("expected 3 across the year boundary, got %d", got)
	}
}

func TestMonth_Ordering(t *testing.T) {
	// GIVEN: December and the following January
	// WHEN: Comparing them
	// THEN: Ordering respects the year, not just the month number

	dec24 := month(2024, time.December)
	jan25 := month(2025, time.January)

	if !dec24.Before(jan25) {
		t.Error("expected 2024-12 before 2025-01")
	}
	if !jan25.After(dec24) {
		t.Error("expected 2025-01 after 2024-12")
	}
	if !dec24.BeforeOrEqual(dec24) || !dec24.AfterOrEqual(dec24) || !dec24.Equal(dec24) {
		t.Error("expected a month to compare equal to itself")
	}
	if jan25.Equal(dec24) {
		t.Error("expected different months to not be equal")
	}
}

// =============================================================================
// RANGES
// =============================================================================

func TestNewMonthRange_EndBeforeStart(t *testing.T) {
	// GIVEN: To before From
	// WHEN: Constructing the range
	// THEN: ErrInvalidRange

	_, err := pricing.NewMonthRange(month(2025, time.June), month(2025, time.January))
	if !errors.Is(err, pricing.ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}

	if _, err := pricing.NewMonthRange(month(2025, time.June), month(2025, time.June)); err != nil {
		t.Errorf("expected a single-month range to be valid, got %v", err)
	}
}

func TestMonthRange_Months(t *testing.T) {
	// GIVEN: A range crossing a year boundary
	// WHEN: Materializing it
	// THEN: Every month appears exactly once, in order, inclusive of both ends

	rng := pricing.MonthRange{From: month(2025, time.November), To: month(2026, time.February)}
	months := rng.Months()

	want := []pricing.Month{
		month(2025, time.November),
		month(2025, time.December),
		month(2026, time.January),
		month(2026, time.February),
	}
	if len(months) != len(want) {
		t.Fatalf("expected %d months, got %d", len(want), len(months))
	}
	for i := range want {
		if !months[i].Equal(want[i]) {
			t.Errorf("month %d: expected %s, got %s", i, want[i], months[i])
		}
	}
	if rng.Len() != 4 {
		t.Errorf("expected Len 4, got %d", rng.Len())
	}
}

func TestMonthRange_Contains(t *testing.T) {
	// GIVEN: A range
	// WHEN: Testing months around its bounds
	// THEN: Both ends are inclusive

	rng := pricing.MonthRange{From: month(2025, time.February), To: month(2025, time.April)}

	if rng.Contains(month(2025, time.January)) {
		t.Error("expected month before the range to be excluded")
	}
	if !rng.Contains(month(2025, time.February)) || !rng.Contains(month(2025, time.April)) {
		t.Error("expected both range ends to be included")
	}
	if rng.Contains(month(2025, time.May)) {
		t.Error("expected month after the range to be excluded")
	}
}
