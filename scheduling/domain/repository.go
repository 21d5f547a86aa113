package domain

import (
	"context"
	"time"
)

// PostFilter narrows List queries.
type PostFilter struct {
	UserID string
	Status *PostStatus
	Limit  int
	Offset int
}

// ScheduleRepository persists the one-per-user schedule spec.
type ScheduleRepository interface {
	GetSpec(ctx context.Context, userID string) (*ScheduleSpec, error)
	SaveSpec(ctx context.Context, spec *ScheduleSpec) error
}

// PostRepository covers the non-transactional post queries.
type PostRepository interface {
	GetByID(ctx context.Context, id string) (*ScheduledPost, error)
	List(ctx context.Context, filter PostFilter) ([]*ScheduledPost, error)
	CountPending(ctx context.Context, userID string) (int64, error)

	// Dispatcher side: due backlog and status transitions. The dispatcher is
	// the sole writer of Status.
	ListDue(ctx context.Context, before time.Time, limit int) ([]*ScheduledPost, error)
	NextPendingRun(ctx context.Context) (*time.Time, error)
	UpdateStatus(ctx context.Context, id string, status PostStatus, errMsg string) error
}

// ReconciliationTx is the unit of work a reconciliation runs in. Everything
// here happens inside one storage transaction; a failure anywhere rolls the
// whole batch back.
type ReconciliationTx interface {
	PendingBacklog(ctx context.Context, userID string) ([]*ScheduledPost, error) // created_at asc
	SaveSpec(ctx context.Context, spec *ScheduleSpec) error
	AssignRunAt(ctx context.Context, postID string, runAt time.Time, timezone string) error
	CreatePost(ctx context.Context, post *ScheduledPost) error
	DeletePost(ctx context.Context, id string) error
}

// TxRunner opens the transaction boundary. Implementations serialize
// concurrent transactions for the same user (advisory lock on Postgres).
type TxRunner interface {
	RunInTx(ctx context.Context, userID string, fn func(tx ReconciliationTx) error) error
}
