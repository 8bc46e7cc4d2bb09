// Package slotgrid turns a venue's daily opening window into the fixed
// one-hour slot grid that every hold and booking is expressed in.
package slotgrid

import (
	"fmt"
	"strings"
	"time"

	"github.com/kirinyoku/slotgo/internal/domain"
)

const (
	clockLayout = "3:04 PM"

	// SlotMinutes is the fixed slot duration.
	SlotMinutes = 60

	endOfDay = 24 * 60
)

// ParseClock parses an "h:mm AM/PM" string into minutes since midnight.
func ParseClock(s string) (int, error) {
	const op = "slotgrid.ParseClock"

	t, err := time.Parse(clockLayout, strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid time %q: %w", op, s, err)
	}

	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes since midnight as "h:mm AM/PM".
func FormatClock(minutes int) string {
	minutes %= endOfDay
	t := time.Date(0, 1, 1, minutes/60, minutes%60, 0, 0, time.UTC)
	return t.Format(clockLayout)
}

// Generate returns the contiguous one-hour slots covering [open, close) for
// the given playable area. A trailing partial hour is not emitted. A close
// time of "12:00 AM" is read as end of day. Empty open or close means the day
// is closed and yields no slots.
func Generate(open, close string, area int) ([]domain.TimeSlot, error) {
	const op = "slotgrid.Generate"

	if strings.TrimSpace(open) == "" || strings.TrimSpace(close) == "" {
		return nil, nil
	}

	start, err := ParseClock(open)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	end, err := ParseClock(close)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if end == 0 && start > 0 {
		end = endOfDay
	}

	var out []domain.TimeSlot
	for t := start; t+SlotMinutes <= end; t += SlotMinutes {
		out = append(out, domain.TimeSlot{
			StartTime:    FormatClock(t),
			EndTime:      FormatClock(t + SlotMinutes),
			PlayableArea: area,
		})
	}

	return out, nil
}

// ForDay generates the grid for a day schedule, or nil when it is closed.
func ForDay(day domain.DaySchedule, area int) ([]domain.TimeSlot, error) {
	if !day.Open {
		return nil, nil
	}
	return Generate(day.OpenTime, day.CloseTime, area)
}

// StartsBefore reports whether the slot starts earlier than the given minute
// of the day.
func StartsBefore(slot domain.TimeSlot, minute int) bool {
	start, err := ParseClock(slot.StartTime)
	if err != nil {
		return false
	}
	return start < minute
}

// Valid reports whether the slot is exactly one grid step long.
func Valid(slot domain.TimeSlot) bool {
	start, err := ParseClock(slot.StartTime)
	if err != nil {
		return false
	}
	end, err := ParseClock(slot.EndTime)
	if err != nil {
		return false
	}
	if end == 0 && start > 0 {
		end = endOfDay
	}
	return end-start == SlotMinutes
}
