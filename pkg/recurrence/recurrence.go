package recurrence

import (
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Frequency is the cadence of a recurring schedule.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Valid reports whether f is one of the supported cadences.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Default time-of-day used whenever the stored value cannot be parsed.
// A broken schedule must degrade to "tomorrow at 09:00", never to "never".
const (
	DefaultHour   = 9
	DefaultMinute = 0
)

// Spec is a fully resolved recurring slot definition. TimeOfDay and timezone
// strings from storage are converted before reaching this struct, so the
// resolver itself never touches I/O or parsing.
type Spec struct {
	Frequency  Frequency
	Hour       int
	Minute     int
	DayOfWeek  *int // 0=Sunday .. 6=Saturday, weekly only
	DayOfMonth *int // 1..31, monthly only, clamped to shorter months
	Location   *time.Location
}

// ParseTimeOfDay parses "HH:MM" (a trailing ":SS" is tolerated and ignored)
// into an hour/minute pair. Malformed or out-of-range input yields the
// 09:00 default instead of an error.
func ParseTimeOfDay(s string) (hour, minute int) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return DefaultHour, DefaultMinute
	}
	h, errH := strconv.Atoi(strings.TrimSpace(parts[0]))
	m, errM := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return DefaultHour, DefaultMinute
	}
	return h, m
}

// Resolve computes the offset-th occurrence of spec as a UTC instant.
// Offset 0 is the next occurrence strictly after now; offset n advances n
// full periods from that anchor without re-running the "already passed"
// check. All wall-clock math happens in spec.Location so the local HH:MM is
// preserved across DST transitions; only the final result is converted to
// UTC.
//
// Resolve never fails: unknown frequencies fall back to "tomorrow + offset
// days at 09:00 local", logged as a recoverable condition.
func Resolve(spec Spec, offset int, now time.Time) time.Time {
	if offset < 0 {
		offset = 0
	}
	loc := spec.Location
	if loc == nil {
		loc = time.UTC
	}
	if spec.Hour < 0 || spec.Hour > 23 || spec.Minute < 0 || spec.Minute > 59 {
		spec.Hour, spec.Minute = DefaultHour, DefaultMinute
	}

	year, month, day := now.In(loc).Date()
	candidate := time.Date(year, month, day, spec.Hour, spec.Minute, 0, 0, loc)

	switch spec.Frequency {
	case FrequencyDaily:
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate.AddDate(0, 0, offset).UTC()

	case FrequencyWeekly:
		if spec.DayOfWeek == nil || *spec.DayOfWeek < 0 || *spec.DayOfWeek > 6 {
			// Degraded mode: no usable weekday, shift whole weeks from
			// today's time-of-day.
			if !candidate.After(now) {
				candidate = candidate.AddDate(0, 0, 7)
			}
			return candidate.AddDate(0, 0, 7*offset).UTC()
		}
		delta := (*spec.DayOfWeek - int(candidate.Weekday()) + 7) % 7
		if delta == 0 && !candidate.After(now) {
			delta = 7
		}
		candidate = candidate.AddDate(0, 0, delta)
		return candidate.AddDate(0, 0, 7*offset).UTC()

	case FrequencyMonthly:
		anchorDay := day
		if spec.DayOfMonth != nil && *spec.DayOfMonth >= 1 && *spec.DayOfMonth <= 31 {
			anchorDay = *spec.DayOfMonth
		}
		slot := monthSlot(year, month, 0, anchorDay, spec.Hour, spec.Minute, loc)
		if !slot.After(now) {
			// Roll to next month and clamp against THAT month's day count.
			slot = monthSlot(year, month, 1, anchorDay, spec.Hour, spec.Minute, loc)
		}
		return monthSlot(slot.Year(), slot.Month(), offset, anchorDay, spec.Hour, spec.Minute, loc).UTC()
	}

	logrus.Warnf("[RECURRENCE] Unknown frequency %q, falling back to daily at %02d:%02d", spec.Frequency, DefaultHour, DefaultMinute)
	return time.Date(year, month, day+1+offset, DefaultHour, DefaultMinute, 0, 0, loc).UTC()
}

// monthSlot returns the slot in the month monthsAhead after year/month,
// with day clamped to the target month's length. Anchoring on day 1 before
// clamping avoids the classic day-31 overflow that skips a month.
func monthSlot(year int, month time.Month, monthsAhead, day, hour, minute int, loc *time.Location) time.Time {
	anchor := time.Date(year, time.Month(int(month)+monthsAhead), 1, hour, minute, 0, 0, loc)
	if last := daysIn(anchor.Year(), anchor.Month()); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(anchor.Year(), anchor.Month(), day, hour, minute, 0, 0, loc)
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
