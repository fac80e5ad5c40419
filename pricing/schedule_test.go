package pricing_test

import (
	"testing"
	"time"

	"github.com/warp/bizcase-engine/pricing"
)

func TestSchedule_MonthlyDuration(t *testing.T) {
	// GIVEN: A monthly line starting 2025-01 for 3 months
	// WHEN: Expanding its schedule
	// THEN: Exactly 2025-01, 2025-02 and 2025-03 are active

	line := boqLine("line-1", "10", "100", "60", month(2025, time.January), 3)

	sched := line.Schedule()
	months := sched.Months()
	if len(months) != 3 {
		t.Fatalf("expected 3 active months, got %d", len(months))
	}
	want := []pricing.Month{month(2025, time.January), month(2025, time.February), month(2025, time.March)}
	for i, m := range want {
		if !months[i].Equal(m) {
			t.Errorf("month %d: expected %s, got %s", i, m, months[i])
		}
	}

	if line.ActiveIn(month(2024, time.December)) {
		t.Error("expected the month before start to be inactive")
	}
	if !line.ActiveIn(month(2025, time.January)) {
		t.Error("expected the start month to be active")
	}
	if !line.ActiveIn(month(2025, time.March)) {
		t.Error("expected the last scheduled month to be active")
	}
	if line.ActiveIn(month(2025, time.April)) {
		t.Error("expected the month after the schedule to be inactive")
	}
}

func TestSchedule_ShortDurationsDefaultToOneMonth(t *testing.T) {
	// GIVEN: Monthly lines with durations 0 and -5
	// WHEN: Expanding their schedules
	// THEN: Each covers exactly its start month

	for _, duration := range []int{0, -5} {
		line := boqLine("line-1", "10", "100", "60", month(2025, time.June), duration)

		sched := line.Schedule()
		if sched.Len() != 1 {
			t.Errorf("duration %d: expected 1 active month, got %d", duration, sched.Len())
		}
		if !sched.From.Equal(month(2025, time.June)) || !sched.To.Equal(month(2025, time.June)) {
			t.Errorf("duration %d: expected schedule pinned to 2025-06, got %s", duration, sched)
		}
	}
}

func TestSchedule_OnceIgnoresDuration(t *testing.T) {
	// GIVEN: A one-off line carrying a 12-month duration
	// WHEN: Expanding its schedule
	// THEN: Only the start month is active

	line := boqLine("line-1", "1", "5000", "3000", month(2025, time.March), 12)
	line.Frequency = pricing.FrequencyOnce

	sched := line.Schedule()
	if sched.Len() != 1 {
		t.Fatalf("expected 1 active month, got %d", sched.Len())
	}
	if !line.ActiveIn(month(2025, time.March)) {
		t.Error("expected the start month to be active")
	}
	if line.ActiveIn(month(2025, time.April)) {
		t.Error("expected the month after start to be inactive")
	}
}

func TestSchedule_EventFrequenciesChargeOnce(t *testing.T) {
	// GIVEN: per_shipment and per_tonne lines
	// WHEN: Expanding their schedules
	// THEN: Each is a single-month charge at its start

	for _, freq := range []pricing.LineFrequency{pricing.FrequencyPerShipment, pricing.FrequencyPerTonne} {
		line := boqLine("line-1", "40", "25", "18", month(2025, time.September), 6)
		line.Frequency = freq

		sched := line.Schedule()
		if sched.Len() != 1 {
			t.Errorf("%s: expected 1 active month, got %d", freq, sched.Len())
		}
		if !sched.From.Equal(month(2025, time.September)) {
			t.Errorf("%s: expected schedule at 2025-09, got %s", freq, sched)
		}
	}
}

func TestScenarioWindow(t *testing.T) {
	// GIVEN: A scenario starting 2025-01 for 12 months, and one with no
	//        declared duration
	// WHEN: Deriving the default reporting window
	// THEN: The first spans the full year; the second covers a single month

	s := pricing.Scenario{Start: month(2025, time.January), DurationMonths: 12}
	w := s.Window()
	if !w.From.Equal(month(2025, time.January)) || !w.To.Equal(month(2025, time.December)) {
		t.Errorf("expected window 2025-01..2025-12, got %s", w)
	}
	if w.Len() != 12 {
		t.Errorf("expected 12 months, got %d", w.Len())
	}

	bare := pricing.Scenario{Start: month(2026, time.May)}
	if bare.Window().Len() != 1 {
		t.Errorf("expected a duration-less scenario to default to 1 month, got %d", bare.Window().Len())
	}
}
