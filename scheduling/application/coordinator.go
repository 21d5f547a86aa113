package application

import (
	"context"
	"time"

	"github.com/castrel/postflow/pkg/recurrence"
	"github.com/castrel/postflow/scheduling/domain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// txState tracks where a reconciliation transaction is, so a failure log
// names the exact step that forced the rollback.
type txState int

const (
	stateBegin txState = iota
	stateReadBacklog
	stateComputeSlots
	statePersistSpec
	statePersistPosts
	stateCommit
)

func (s txState) String() string {
	switch s {
	case stateBegin:
		return "begin"
	case stateReadBacklog:
		return "read_backlog"
	case stateComputeSlots:
		return "compute_slots"
	case statePersistSpec:
		return "persist_spec"
	case statePersistPosts:
		return "persist_posts"
	case stateCommit:
		return "commit"
	}
	return "unknown"
}

// Coordinator drives reconciliations through their storage transaction.
// Every entry point here is all-or-nothing: a failure at any state rolls the
// whole batch back, so the backlog is never left half-migrated to a new
// cadence.
type Coordinator struct {
	runner domain.TxRunner
}

func NewCoordinator(runner domain.TxRunner) *Coordinator {
	return &Coordinator{runner: runner}
}

// Reconcile re-sequences the user's entire pending backlog onto spec and
// persists the new next-run slot. Returns the number of posts updated.
// spec.NextRunAt is set as a side effect on success.
func (c *Coordinator) Reconcile(ctx context.Context, spec *domain.ScheduleSpec, now time.Time) (int, error) {
	updated := 0
	state := stateBegin
	err := c.runner.RunInTx(ctx, spec.UserID, func(tx domain.ReconciliationTx) error {
		state = stateReadBacklog
		backlog, err := tx.PendingBacklog(ctx, spec.UserID)
		if err != nil {
			return err
		}

		state = stateComputeSlots
		assignments, next := Reconcile(spec.Recurrence(), backlog, now)
		spec.NextRunAt = next

		state = statePersistSpec
		if err := tx.SaveSpec(ctx, spec); err != nil {
			return err
		}

		state = statePersistPosts
		for _, a := range assignments {
			if err := tx.AssignRunAt(ctx, a.PostID, a.RunAt, spec.Timezone); err != nil {
				return err
			}
		}

		state = stateCommit
		updated = len(assignments)
		return nil
	})
	if err != nil {
		logrus.WithError(err).Errorf("[RECONCILE] Rolled back at state %q for user %s", state, spec.UserID)
		return 0, err
	}
	logrus.Debugf("[RECONCILE] User %s: %d posts re-sequenced, next slot %s", spec.UserID, updated, spec.NextRunAt.Format(time.RFC3339))
	return updated, nil
}

// AppendPost creates a new pending post on the reserved next-run slot and
// advances the reservation, all in one transaction. The stored NextRunAt is
// honored while it still satisfies the backlog invariants; a stale
// reservation (e.g. already in the past) is recomputed instead.
func (c *Coordinator) AppendPost(ctx context.Context, spec *domain.ScheduleSpec, contentID string, now time.Time) (*domain.ScheduledPost, error) {
	var created *domain.ScheduledPost
	err := c.runner.RunInTx(ctx, spec.UserID, func(tx domain.ReconciliationTx) error {
		backlog, err := tx.PendingBacklog(ctx, spec.UserID)
		if err != nil {
			return err
		}

		rec := spec.Recurrence()
		runAt := spec.NextRunAt
		if !validReservation(runAt, backlog, now) {
			runAt = recurrence.Resolve(rec, len(backlog), now)
		}

		post := &domain.ScheduledPost{
			ID:        uuid.New().String(),
			UserID:    spec.UserID,
			ContentID: contentID,
			RunAt:     runAt,
			Timezone:  spec.Timezone,
			Status:    domain.PostStatusPending,
			CreatedAt: now.UTC(),
			UpdatedAt: now.UTC(),
		}
		if err := tx.CreatePost(ctx, post); err != nil {
			return err
		}

		spec.NextRunAt = recurrence.Resolve(rec, len(backlog)+1, now)
		if err := tx.SaveSpec(ctx, spec); err != nil {
			return err
		}
		created = post
		return nil
	})
	if err != nil {
		logrus.WithError(err).Errorf("[RECONCILE] Failed to append post for user %s", spec.UserID)
		return nil, err
	}
	return created, nil
}

// RemovePost deletes a pending post and re-sequences the remaining backlog so
// no slot is left gaping. Returns the number of posts re-sequenced.
func (c *Coordinator) RemovePost(ctx context.Context, spec *domain.ScheduleSpec, postID string, now time.Time) (int, error) {
	updated := 0
	err := c.runner.RunInTx(ctx, spec.UserID, func(tx domain.ReconciliationTx) error {
		if err := tx.DeletePost(ctx, postID); err != nil {
			return err
		}
		backlog, err := tx.PendingBacklog(ctx, spec.UserID)
		if err != nil {
			return err
		}
		assignments, next := Reconcile(spec.Recurrence(), backlog, now)
		spec.NextRunAt = next
		if err := tx.SaveSpec(ctx, spec); err != nil {
			return err
		}
		for _, a := range assignments {
			if err := tx.AssignRunAt(ctx, a.PostID, a.RunAt, spec.Timezone); err != nil {
				return err
			}
		}
		updated = len(assignments)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// validReservation reports whether the stored next-run slot still suits a new
// post: strictly in the future and after every backlog slot.
func validReservation(runAt time.Time, backlog []*domain.ScheduledPost, now time.Time) bool {
	if runAt.IsZero() || !runAt.After(now) {
		return false
	}
	for _, post := range backlog {
		if !runAt.After(post.RunAt) {
			return false
		}
	}
	return true
}
