package matching

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Le520407/swift-fix-pro-sub002/internal/model"
)

// Availability outcomes. A provider with no declared schedule is unknown,
// not unavailable.
const (
	availUnknown   = 60
	availWrongDay  = 20
	availNoOverlap = 40
	availBase      = 90
	availError     = 50
)

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("bad clock time %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("bad clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return h*60 + m, nil
}

// windowsOverlap applies the half-open interval test: [9:00,10:00) and
// [10:00,11:00) do not overlap.
func windowsOverlap(reqStart, reqEnd, availStart, availEnd int) bool {
	return !(reqEnd <= availStart || reqStart >= availEnd)
}

// scheduleOutcome scores the pure schedule-vs-slot part of availability.
// full reports whether the workload discount still applies.
func scheduleOutcome(schedule []model.ScheduleEntry, slot model.TimeSlot) (score float64, full bool, err error) {
	if len(schedule) == 0 {
		return availUnknown, false, nil
	}

	reqStart, err := parseClock(slot.Start)
	if err != nil {
		return 0, false, err
	}
	reqEnd, err := parseClock(slot.End)
	if err != nil {
		return 0, false, err
	}

	day := slot.Date.Weekday()
	for _, entry := range schedule {
		if entry.Day != day || !entry.Available {
			continue
		}
		availStart, err := parseClock(entry.Start)
		if err != nil {
			return 0, false, err
		}
		availEnd, err := parseClock(entry.End)
		if err != nil {
			return 0, false, err
		}
		if windowsOverlap(reqStart, reqEnd, availStart, availEnd) {
			return availBase, true, nil
		}
		return availNoOverlap, false, nil
	}
	return availWrongDay, false, nil
}

// workloadMultiplier discounts providers already loaded with near-term jobs.
func workloadMultiplier(upcomingJobs int) float64 {
	switch {
	case upcomingJobs >= 5:
		return 0.7
	case upcomingJobs >= 3:
		return 0.85
	default:
		return 1.0
	}
}

// AvailabilityScore evaluates a provider's declared weekly schedule against
// the job's requested slot, then applies the current-workload discount.
// upcomingJobs is the count of the provider's ASSIGNED / IN_PROGRESS jobs in
// the next 7 days; pass workloadErr when that count could not be obtained.
// Any failure yields the safe default of 50.
func AvailabilityScore(schedule []model.ScheduleEntry, slot model.TimeSlot, upcomingJobs int, workloadErr error) float64 {
	score, full, err := scheduleOutcome(schedule, slot)
	if err != nil {
		return availError
	}
	if !full {
		return score
	}
	if workloadErr != nil {
		return availError
	}
	return math.Round(score * workloadMultiplier(upcomingJobs))
}
