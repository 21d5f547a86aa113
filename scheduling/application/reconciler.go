package application

import (
	"time"

	"github.com/castrel/postflow/pkg/recurrence"
	"github.com/castrel/postflow/scheduling/domain"
)

// Assignment pairs a backlog post with its recomputed run time.
type Assignment struct {
	PostID string
	RunAt  time.Time
}

// Reconcile maps the backlog (ordered by creation time) onto consecutive
// occurrences: post i gets offset i, and the returned next-run slot is the
// occurrence at offset len(backlog), reserved for the next post the user
// creates. Pure function of its inputs, so re-running a reconciliation with
// the same spec and backlog snapshot always produces identical slots.
func Reconcile(spec recurrence.Spec, backlog []*domain.ScheduledPost, now time.Time) ([]Assignment, time.Time) {
	assignments := make([]Assignment, 0, len(backlog))
	for i, post := range backlog {
		assignments = append(assignments, Assignment{
			PostID: post.ID,
			RunAt:  recurrence.Resolve(spec, i, now),
		})
	}
	return assignments, recurrence.Resolve(spec, len(backlog), now)
}
