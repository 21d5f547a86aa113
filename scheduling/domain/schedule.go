package domain

import (
	"time"

	"github.com/castrel/postflow/pkg/recurrence"
)

// ScheduleSpec is the single recurring-schedule definition a user has.
// NextRunAt is the slot reserved for the next newly created post, i.e. the
// occurrence at offset = current backlog length. It is recomputed on every
// reconciliation.
type ScheduleSpec struct {
	UserID     string               `json:"user_id"`
	Frequency  recurrence.Frequency `json:"frequency"`
	TimeOfDay  string               `json:"time_of_day"` // "HH:MM", interpreted in Timezone
	DayOfWeek  *int                 `json:"day_of_week,omitempty"`
	DayOfMonth *int                 `json:"day_of_month,omitempty"`
	Timezone   string               `json:"timezone"` // IANA name
	NextRunAt  time.Time            `json:"next_run_at"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Recurrence converts the stored spec into the pure resolver form. Timezone
// and time-of-day parsing are fail-open: a spec that went bad in storage
// still resolves to a usable slot instead of stalling the user's queue.
func (s *ScheduleSpec) Recurrence() recurrence.Spec {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil || s.Timezone == "" {
		loc = time.UTC
	}
	hour, minute := recurrence.ParseTimeOfDay(s.TimeOfDay)
	return recurrence.Spec{
		Frequency:  s.Frequency,
		Hour:       hour,
		Minute:     minute,
		DayOfWeek:  s.DayOfWeek,
		DayOfMonth: s.DayOfMonth,
		Location:   loc,
	}
}
