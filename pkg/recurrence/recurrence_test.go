package recurrence

import (
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func mustUTC(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad test timestamp %q: %v", value, err)
	}
	return ts.UTC()
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in         string
		hour, mins int
	}{
		{"09:00", 9, 0},
		{"23:59", 23, 59},
		{"0:05", 0, 5},
		{"14:30:45", 14, 30}, // seconds tolerated, ignored
		{" 7 : 15 ", 7, 15},
		{"", 9, 0},
		{"12", 9, 0},
		{"24:00", 9, 0},
		{"12:60", 9, 0},
		{"-1:30", 9, 0},
		{"ab:cd", 9, 0},
		{"12:xx", 9, 0},
	}
	for _, tc := range tests {
		h, m := ParseTimeOfDay(tc.in)
		if h != tc.hour || m != tc.mins {
			t.Errorf("ParseTimeOfDay(%q) = %02d:%02d, want %02d:%02d", tc.in, h, m, tc.hour, tc.mins)
		}
	}
}

func TestResolveDailyAlreadyPassed(t *testing.T) {
	spec := Spec{Frequency: FrequencyDaily, Hour: 9, Minute: 0, Location: time.UTC}
	now := mustUTC(t, "2024-01-01T10:00:00Z")

	got := Resolve(spec, 0, now)
	want := mustUTC(t, "2024-01-02T09:00:00Z")
	if !got.Equal(want) {
		t.Errorf("offset 0 = %v, want %v", got, want)
	}
}

func TestResolveDailyNotYetPassed(t *testing.T) {
	spec := Spec{Frequency: FrequencyDaily, Hour: 9, Minute: 0, Location: time.UTC}
	now := mustUTC(t, "2024-01-01T08:00:00Z")

	if got, want := Resolve(spec, 0, now), mustUTC(t, "2024-01-01T09:00:00Z"); !got.Equal(want) {
		t.Errorf("offset 0 = %v, want %v", got, want)
	}
	if got, want := Resolve(spec, 2, now), mustUTC(t, "2024-01-03T09:00:00Z"); !got.Equal(want) {
		t.Errorf("offset 2 = %v, want %v", got, want)
	}
}

func TestResolveWeeklySameDay(t *testing.T) {
	// 2024-01-01 is a Monday.
	spec := Spec{Frequency: FrequencyWeekly, Hour: 9, Minute: 0, DayOfWeek: intPtr(1), Location: time.UTC}
	now := mustUTC(t, "2024-01-01T08:00:00Z")

	if got, want := Resolve(spec, 0, now), mustUTC(t, "2024-01-01T09:00:00Z"); !got.Equal(want) {
		t.Errorf("offset 0 = %v, want %v (today's slot has not passed)", got, want)
	}
	if got, want := Resolve(spec, 1, now), mustUTC(t, "2024-01-08T09:00:00Z"); !got.Equal(want) {
		t.Errorf("offset 1 = %v, want %v", got, want)
	}

	// Same spec, one minute after the slot: the whole sequence shifts a week.
	late := mustUTC(t, "2024-01-01T09:01:00Z")
	if got, want := Resolve(spec, 0, late), mustUTC(t, "2024-01-08T09:00:00Z"); !got.Equal(want) {
		t.Errorf("offset 0 after slot = %v, want %v", got, want)
	}
}

func TestResolveWeeklyAdvanceToTargetWeekday(t *testing.T) {
	// Monday now, Friday (5) target: next slot is this Friday, not +1 day.
	spec := Spec{Frequency: FrequencyWeekly, Hour: 12, Minute: 0, DayOfWeek: intPtr(5), Location: time.UTC}
	now := mustUTC(t, "2024-01-01T15:00:00Z")

	if got, want := Resolve(spec, 0, now), mustUTC(t, "2024-01-05T12:00:00Z"); !got.Equal(want) {
		t.Errorf("offset 0 = %v, want %v", got, want)
	}
}

func TestResolveWeeklyDegradedWithoutWeekday(t *testing.T) {
	spec := Spec{Frequency: FrequencyWeekly, Hour: 9, Minute: 0, Location: time.UTC}
	now := mustUTC(t, "2024-01-01T10:00:00Z")

	// No weekday: pure +1 week shift from today's time-of-day.
	if got, want := Resolve(spec, 0, now), mustUTC(t, "2024-01-08T09:00:00Z"); !got.Equal(want) {
		t.Errorf("offset 0 = %v, want %v", got, want)
	}
	if got, want := Resolve(spec, 1, now), mustUTC(t, "2024-01-15T09:00:00Z"); !got.Equal(want) {
		t.Errorf("offset 1 = %v, want %v", got, want)
	}
}

func TestResolveMonthlyClampPerTargetMonth(t *testing.T) {
	// Day 31 across Feb-Jun 2024: each month clamps independently.
	spec := Spec{Frequency: FrequencyMonthly, Hour: 9, Minute: 0, DayOfMonth: intPtr(31), Location: time.UTC}
	now := mustUTC(t, "2024-02-01T00:00:00Z")

	want := []string{
		"2024-02-29T09:00:00Z", // leap February
		"2024-03-31T09:00:00Z",
		"2024-04-30T09:00:00Z",
		"2024-05-31T09:00:00Z",
		"2024-06-30T09:00:00Z",
	}
	for i, w := range want {
		got := Resolve(spec, i, now)
		if !got.Equal(mustUTC(t, w)) {
			t.Errorf("offset %d = %v, want %v", i, got, w)
		}
	}
}

func TestResolveMonthlyClampNonLeapFebruary(t *testing.T) {
	spec := Spec{Frequency: FrequencyMonthly, Hour: 9, Minute: 0, DayOfMonth: intPtr(31), Location: time.UTC}
	now := mustUTC(t, "2023-02-01T00:00:00Z")

	if got, want := Resolve(spec, 0, now), mustUTC(t, "2023-02-28T09:00:00Z"); !got.Equal(want) {
		t.Errorf("offset 0 = %v, want %v", got, want)
	}
}

func TestResolveMonthlyRollsIntoNextMonthWhenPassed(t *testing.T) {
	// Jan 31 slot already passed: the re-clamp must happen in February,
	// not by naively adding a month to a day-31 date.
	spec := Spec{Frequency: FrequencyMonthly, Hour: 9, Minute: 0, DayOfMonth: intPtr(31), Location: time.UTC}
	now := mustUTC(t, "2024-01-31T10:00:00Z")

	if got, want := Resolve(spec, 0, now), mustUTC(t, "2024-02-29T09:00:00Z"); !got.Equal(want) {
		t.Errorf("offset 0 = %v, want %v", got, want)
	}
	if got, want := Resolve(spec, 1, now), mustUTC(t, "2024-03-31T09:00:00Z"); !got.Equal(want) {
		t.Errorf("offset 1 = %v, want %v", got, want)
	}
}

func TestResolveMonthlyDegradedWithoutDay(t *testing.T) {
	spec := Spec{Frequency: FrequencyMonthly, Hour: 9, Minute: 0, Location: time.UTC}
	now := mustUTC(t, "2024-01-15T10:00:00Z")

	// Anchors on today's day-of-month once today's slot has passed.
	if got, want := Resolve(spec, 0, now), mustUTC(t, "2024-02-15T09:00:00Z"); !got.Equal(want) {
		t.Errorf("offset 0 = %v, want %v", got, want)
	}
}

func TestResolveDSTSpringForward(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// DST starts 2024-03-10 in America/New_York (02:00 -> 03:00).
	spec := Spec{Frequency: FrequencyDaily, Hour: 2, Minute: 30, Location: loc}
	now := time.Date(2024, 3, 8, 0, 0, 0, 0, loc)

	before := Resolve(spec, 0, now) // Mar 8, EST
	after := Resolve(spec, 3, now)  // Mar 11, EDT

	if h, m := before.In(loc).Hour(), before.In(loc).Minute(); h != 2 || m != 30 {
		t.Errorf("pre-transition slot = %02d:%02d local, want 02:30", h, m)
	}
	if h, m := after.In(loc).Hour(), after.In(loc).Minute(); h != 2 || m != 30 {
		t.Errorf("post-transition slot = %02d:%02d local, want 02:30", h, m)
	}
	if want := mustUTC(t, "2024-03-08T07:30:00Z"); !before.Equal(want) {
		t.Errorf("pre-transition = %v, want %v", before, want)
	}
	// One hour less of UTC distance than naive +72h arithmetic.
	if want := mustUTC(t, "2024-03-11T06:30:00Z"); !after.Equal(want) {
		t.Errorf("post-transition = %v, want %v", after, want)
	}
}

func TestResolveMonotonic(t *testing.T) {
	now := mustUTC(t, "2024-01-20T11:00:00Z")
	specs := map[string]Spec{
		"daily":   {Frequency: FrequencyDaily, Hour: 9, Minute: 0, Location: time.UTC},
		"weekly":  {Frequency: FrequencyWeekly, Hour: 9, Minute: 0, DayOfWeek: intPtr(3), Location: time.UTC},
		"monthly": {Frequency: FrequencyMonthly, Hour: 9, Minute: 0, DayOfMonth: intPtr(31), Location: time.UTC},
	}
	for name, spec := range specs {
		prev := Resolve(spec, 0, now)
		if !prev.After(now) {
			t.Errorf("%s: offset 0 (%v) not after now (%v)", name, prev, now)
		}
		for i := 1; i < 24; i++ {
			next := Resolve(spec, i, now)
			if !next.After(prev) {
				t.Errorf("%s: offset %d (%v) not after offset %d (%v)", name, i, next, i-1, prev)
			}
			prev = next
		}
	}
}

func TestResolveUnknownFrequencyFallsBack(t *testing.T) {
	spec := Spec{Frequency: "hourly", Hour: 14, Minute: 0, Location: time.UTC}
	now := mustUTC(t, "2024-01-01T10:00:00Z")

	// Tomorrow + offset days at 09:00, regardless of the configured time.
	if got, want := Resolve(spec, 0, now), mustUTC(t, "2024-01-02T09:00:00Z"); !got.Equal(want) {
		t.Errorf("offset 0 = %v, want %v", got, want)
	}
	if got, want := Resolve(spec, 2, now), mustUTC(t, "2024-01-04T09:00:00Z"); !got.Equal(want) {
		t.Errorf("offset 2 = %v, want %v", got, want)
	}
}

func TestResolveDefaultsOnBadInput(t *testing.T) {
	// Nil location and out-of-range time degrade instead of failing.
	spec := Spec{Frequency: FrequencyDaily, Hour: 99, Minute: -5}
	now := mustUTC(t, "2024-01-01T10:00:00Z")

	if got, want := Resolve(spec, 0, now), mustUTC(t, "2024-01-02T09:00:00Z"); !got.Equal(want) {
		t.Errorf("offset 0 = %v, want %v", got, want)
	}

	if got := Resolve(spec, -3, now); !got.Equal(Resolve(spec, 0, now)) {
		t.Errorf("negative offset should clamp to 0, got %v", got)
	}
}
