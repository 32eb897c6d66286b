package matching_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Le520407/swift-fix-pro-sub002/internal/matching"
	"github.com/Le520407/swift-fix-pro-sub002/internal/model"
)

// 2025-06-02 is a Monday.
var monday = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func mondaySchedule() []model.ScheduleEntry {
	return []model.ScheduleEntry{
		{Day: time.Monday, Start: "09:00", End: "17:00", Available: true},
	}
}

func slotOn(date time.Time, start, end string) model.TimeSlot {
	return model.TimeSlot{Date: date, Start: start, End: end}
}

func TestAvailabilityScore_NoScheduleIsUnknown(t *testing.T) {
	got := matching.AvailabilityScore(nil, slotOn(monday, "10:00", "11:00"), 0, nil)
	assert.Equal(t, 60.0, got)
}

func TestAvailabilityScore_FullOverlapNoWorkload(t *testing.T) {
	got := matching.AvailabilityScore(mondaySchedule(), slotOn(monday, "10:00", "11:00"), 0, nil)
	assert.Equal(t, 90.0, got)
}

func TestAvailabilityScore_WrongDay(t *testing.T) {
	tuesday := monday.AddDate(0, 0, 1)
	got := matching.AvailabilityScore(mondaySchedule(), slotOn(tuesday, "10:00", "11:00"), 0, nil)
	assert.Equal(t, 20.0, got)
}

func TestAvailabilityScore_DayListedButMarkedUnavailable(t *testing.T) {
	schedule := []model.ScheduleEntry{
		{Day: time.Monday, Start: "09:00", End: "17:00", Available: false},
	}
	got := matching.AvailabilityScore(schedule, slotOn(monday, "10:00", "11:00"), 0, nil)
	assert.Equal(t, 20.0, got)
}

func TestAvailabilityScore_NoTimeOverlap(t *testing.T) {
	got := matching.AvailabilityScore(mondaySchedule(), slotOn(monday, "18:00", "19:00"), 0, nil)
	assert.Equal(t, 40.0, got)
}

// Half-open windows: [09:00,12:00) and [11:00,13:00) overlap;
// [09:00,10:00) and [10:00,11:00) do not.
func TestAvailabilityScore_HalfOpenBoundaries(t *testing.T) {
	schedule := []model.ScheduleEntry{
		{Day: time.Monday, Start: "09:00", End: "12:00", Available: true},
	}
	got := matching.AvailabilityScore(schedule, slotOn(monday, "11:00", "13:00"), 0, nil)
	assert.Equal(t, 90.0, got, "partial overlap counts as overlap")

	schedule = []model.ScheduleEntry{
		{Day: time.Monday, Start: "09:00", End: "10:00", Available: true},
	}
	got = matching.AvailabilityScore(schedule, slotOn(monday, "10:00", "11:00"), 0, nil)
	assert.Equal(t, 40.0, got, "touching boundaries must not overlap")
}

func TestAvailabilityScore_WorkloadDiscount(t *testing.T) {
	cases := []struct {
		upcoming int
		want     float64
	}{
		{0, 90},
		{2, 90},
		{3, 77}, // 90 × 0.85, rounded
		{4, 77},
		{5, 63}, // 90 × 0.7
		{12, 63},
	}
	for _, c := range cases {
		got := matching.AvailabilityScore(mondaySchedule(), slotOn(monday, "10:00", "11:00"), c.upcoming, nil)
		assert.Equal(t, c.want, got, "upcoming=%d", c.upcoming)
	}
}

// The workload discount only matters when the schedule matches; a failed
// workload count degrades to the safe default instead.
func TestAvailabilityScore_WorkloadErrorFallsBackTo50(t *testing.T) {
	err := errors.New("count query timed out")
	got := matching.AvailabilityScore(mondaySchedule(), slotOn(monday, "10:00", "11:00"), 0, err)
	assert.Equal(t, 50.0, got)

	// Wrong-day outcome never consults the workload count.
	tuesday := monday.AddDate(0, 0, 1)
	got = matching.AvailabilityScore(mondaySchedule(), slotOn(tuesday, "10:00", "11:00"), 0, err)
	assert.Equal(t, 20.0, got)
}

func TestAvailabilityScore_MalformedClockTimes(t *testing.T) {
	got := matching.AvailabilityScore(mondaySchedule(), slotOn(monday, "ten", "11:00"), 0, nil)
	assert.Equal(t, 50.0, got)

	schedule := []model.ScheduleEntry{
		{Day: time.Monday, Start: "25:00", End: "26:00", Available: true},
	}
	got = matching.AvailabilityScore(schedule, slotOn(monday, "10:00", "11:00"), 0, nil)
	assert.Equal(t, 50.0, got)
}
