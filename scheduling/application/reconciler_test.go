package application

import (
	"testing"
	"time"

	"github.com/castrel/postflow/pkg/recurrence"
	"github.com/castrel/postflow/scheduling/domain"
)

func backlogOf(ids ...string) []*domain.ScheduledPost {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	posts := make([]*domain.ScheduledPost, 0, len(ids))
	for i, id := range ids {
		posts = append(posts, &domain.ScheduledPost{
			ID:        id,
			UserID:    "u1",
			Status:    domain.PostStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return posts
}

func TestReconcilePreservesBacklogOrder(t *testing.T) {
	spec := recurrence.Spec{
		Frequency: recurrence.FrequencyDaily,
		Hour:      9,
		Location:  time.UTC,
	}
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	assignments, next := Reconcile(spec, backlogOf("a", "b", "c"), now)

	if len(assignments) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(assignments))
	}
	for i, id := range []string{"a", "b", "c"} {
		if assignments[i].PostID != id {
			t.Fatalf("assignment %d: expected post %s, got %s", i, id, assignments[i].PostID)
		}
	}
	for i := 1; i < len(assignments); i++ {
		if !assignments[i].RunAt.After(assignments[i-1].RunAt) {
			t.Fatalf("slots not strictly increasing: %v then %v", assignments[i-1].RunAt, assignments[i].RunAt)
		}
	}
	if !next.After(assignments[2].RunAt) {
		t.Fatalf("next slot %v should come after the last assignment %v", next, assignments[2].RunAt)
	}
}

func TestReconcileMatchesResolverOffsets(t *testing.T) {
	spec := recurrence.Spec{
		Frequency: recurrence.FrequencyDaily,
		Hour:      9,
		Location:  time.UTC,
	}
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	assignments, next := Reconcile(spec, backlogOf("a", "b"), now)

	for i, a := range assignments {
		want := recurrence.Resolve(spec, i, now)
		if !a.RunAt.Equal(want) {
			t.Fatalf("post %d: got %v, want occurrence %v", i, a.RunAt, want)
		}
	}
	if want := recurrence.Resolve(spec, 2, now); !next.Equal(want) {
		t.Fatalf("next slot: got %v, want %v", next, want)
	}
}

func TestReconcileIsDeterministic(t *testing.T) {
	dow := 2
	spec := recurrence.Spec{
		Frequency: recurrence.FrequencyWeekly,
		Hour:      18,
		Minute:    30,
		DayOfWeek: &dow,
		Location:  time.UTC,
	}
	now := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	backlog := backlogOf("a", "b", "c", "d")

	first, firstNext := Reconcile(spec, backlog, now)
	second, secondNext := Reconcile(spec, backlog, now)

	if !firstNext.Equal(secondNext) {
		t.Fatalf("next slot changed between runs: %v vs %v", firstNext, secondNext)
	}
	for i := range first {
		if !first[i].RunAt.Equal(second[i].RunAt) {
			t.Fatalf("slot %d changed between runs: %v vs %v", i, first[i].RunAt, second[i].RunAt)
		}
	}
}

func TestReconcileEmptyBacklog(t *testing.T) {
	spec := recurrence.Spec{
		Frequency: recurrence.FrequencyDaily,
		Hour:      9,
		Location:  time.UTC,
	}
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	assignments, next := Reconcile(spec, nil, now)

	if len(assignments) != 0 {
		t.Fatalf("expected no assignments, got %d", len(assignments))
	}
	// 09:00 has not passed yet, so the reserved slot is still today.
	want := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next slot: got %v, want %v", next, want)
	}
}
