package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultDurationMinutes is assumed when a session has no stored duration.
const DefaultDurationMinutes = 60

// TimeToMinutes parses an HH:MM wall-clock string into minutes since midnight.
func TimeToMinutes(clock string) (int, error) {
	parts := strings.Split(strings.TrimSpace(clock), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", clock)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid time %q: hour out of range", clock)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid time %q: minute out of range", clock)
	}

	return hours*60 + minutes, nil
}

// MinutesToTime renders minutes since midnight back as HH:MM.
func MinutesToTime(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Overlaps reports whether the half-open intervals [startA, startA+durA)
// and [startB, startB+durB) intersect. Intervals that only touch at an
// endpoint do not overlap. A non-positive duration falls back to
// DefaultDurationMinutes.
func Overlaps(startA, durA, startB, durB int) bool {
	if durA <= 0 {
		durA = DefaultDurationMinutes
	}
	if durB <= 0 {
		durB = DefaultDurationMinutes
	}
	return startA < startB+durB && startB < startA+durA
}
