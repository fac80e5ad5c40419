/*
schedule.go - Schedule expander

PURPOSE:
  Expands a line's (frequency, start, duration) into the concrete months in
  which it contributes revenue/cost.

RULES:
  - monthly: active for max(1, duration) consecutive months from the start
    month. A duration of 0 or less defaults to a single month.
  - everything else (once, per_shipment, per_tonne, ...): a single-month
    charge exactly at the start month.
*/
package pricing

// Schedule returns the inclusive range of months the line is active in.
func (l Line) Schedule() MonthRange {
	if l.Frequency == FrequencyMonthly {
		months := l.DurationMonths
		if months < 1 {
			months = 1
		}
		return MonthRange{From: l.Start, To: l.Start.AddMonths(months - 1)}
	}
	return MonthRange{From: l.Start, To: l.Start}
}

// ActiveIn reports whether the line contributes in month m.
func (l Line) ActiveIn(m Month) bool { return l.Schedule().Contains(m) }
