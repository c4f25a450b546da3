package schedule

import "time"

// Recurrence patterns accepted by GenerateSeries.
const (
	PatternWeekly   = "weekly"
	PatternBiweekly = "biweekly"
	PatternMonthly  = "monthly"
)

// ValidPattern reports whether pattern is one of the supported values.
func ValidPattern(pattern string) bool {
	switch pattern {
	case PatternWeekly, PatternBiweekly, PatternMonthly:
		return true
	default:
		return false
	}
}

// GenerateSeries returns the ordered occurrence dates for a recurring
// series. The first date is always start; subsequent dates step by 7 days
// (weekly), 14 days (biweekly) or one clamped calendar month (monthly).
// Generation is inclusive of end's calendar day and stops once a stepped
// date passes it. An unknown pattern steps weekly. When start is after
// end the series is empty.
func GenerateSeries(start, end time.Time, pattern string) []time.Time {
	start = truncateToDate(start)
	end = truncateToDate(end)

	dates := make([]time.Time, 0, 8)
	for current := start; !current.After(end); {
		dates = append(dates, current)

		switch pattern {
		case PatternBiweekly:
			current = current.AddDate(0, 0, 14)
		case PatternMonthly:
			current = addMonthClamped(current)
		default:
			current = current.AddDate(0, 0, 7)
		}
	}
	return dates
}

// addMonthClamped advances one calendar month, clamping the day of month
// to the target month's length instead of letting Go normalize the
// overflow (Jan 31 becomes Feb 29, not Mar 2).
func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, t.Location())
	if last := daysInMonth(firstOfNext.Year(), firstOfNext.Month()); day > last {
		day = last
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day, 0, 0, 0, 0, t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
