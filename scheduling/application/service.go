package application

import (
	"context"
	"sync"
	"time"

	pkgError "github.com/castrel/postflow/pkg/error"
	"github.com/castrel/postflow/pkg/recurrence"
	"github.com/castrel/postflow/scheduling/domain"
	"github.com/castrel/postflow/validations"
	"github.com/sirupsen/logrus"
)

// reconcileLockTTL bounds a distributed reconciliation lock so a crashed
// instance cannot wedge a user's schedule forever.
const reconcileLockTTL = 30 * time.Second

// DistributedLocker serializes reconciliations for the same user across
// instances. Implemented by the Valkey client; nil means single-instance
// deployment and the in-process mutex is enough.
type DistributedLocker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) bool
	ReleaseLock(ctx context.Context, key string)
}

// DispatchNotifier wakes dispatcher instances after slots move.
type DispatchNotifier interface {
	SignalDispatch(ctx context.Context)
}

// ScheduleService is the entry point for every schedule and backlog
// operation. Same-user requests serialize on a per-user mutex (and the
// optional distributed lock); different users run independently.
type ScheduleService struct {
	specs    domain.ScheduleRepository
	posts    domain.PostRepository
	coord    *Coordinator
	locker   DistributedLocker
	notifier DispatchNotifier
	nowFunc  func() time.Time

	userLocks sync.Map // userID -> *sync.Mutex
}

// Option tweaks optional service collaborators.
type Option func(*ScheduleService)

func WithDistributedLocker(locker DistributedLocker) Option {
	return func(s *ScheduleService) { s.locker = locker }
}

func WithDispatchNotifier(notifier DispatchNotifier) Option {
	return func(s *ScheduleService) { s.notifier = notifier }
}

// WithNowFunc fixes the clock, used by tests.
func WithNowFunc(now func() time.Time) Option {
	return func(s *ScheduleService) { s.nowFunc = now }
}

func NewScheduleService(specs domain.ScheduleRepository, posts domain.PostRepository, coord *Coordinator, opts ...Option) *ScheduleService {
	s := &ScheduleService{
		specs:   specs,
		posts:   posts,
		coord:   coord,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ScheduleService) lockUser(ctx context.Context, userID string) (func(), error) {
	muAny, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()

	if s.locker == nil {
		return mu.Unlock, nil
	}
	key := "lock:reconcile:" + userID
	if !s.locker.AcquireLock(ctx, key, reconcileLockTTL) {
		mu.Unlock()
		return nil, pkgError.ConflictError("another reconciliation is in progress for this user")
	}
	// Release must go through even when the request context was cancelled
	// mid-reconciliation, or the lock lingers for the whole TTL.
	releaseCtx := context.WithoutCancel(ctx)
	return func() {
		s.locker.ReleaseLock(releaseCtx, key)
		mu.Unlock()
	}, nil
}

// UpdateSchedule replaces the user's recurring schedule and re-sequences the
// whole pending backlog onto the new cadence.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, request domain.UpdateScheduleRequest) (*domain.UpdateScheduleResult, error) {
	if err := validations.ValidateUpdateSchedule(ctx, request); err != nil {
		return nil, err
	}
	if request.Timezone == "" {
		request.Timezone = "UTC"
	}

	spec := &domain.ScheduleSpec{
		UserID:     request.UserID,
		Frequency:  recurrence.Frequency(request.Frequency),
		TimeOfDay:  request.TimeOfDay,
		DayOfWeek:  request.DayOfWeek,
		DayOfMonth: request.DayOfMonth,
		Timezone:   request.Timezone,
	}
	if existing, err := s.specs.GetSpec(ctx, request.UserID); err == nil {
		spec.CreatedAt = existing.CreatedAt
	}

	unlock, err := s.lockUser(ctx, request.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	updated, err := s.coord.Reconcile(ctx, spec, s.nowFunc())
	if err != nil {
		return nil, err
	}
	s.signalDispatch(ctx)

	logrus.Infof("[SCHEDULE] User %s switched to %s cadence, %d posts re-sequenced", spec.UserID, spec.Frequency, updated)
	return &domain.UpdateScheduleResult{
		NextRunAt:         spec.NextRunAt.UTC().Format(time.RFC3339),
		UpdatedPostsCount: updated,
	}, nil
}

// GetSchedule returns the user's current schedule spec.
func (s *ScheduleService) GetSchedule(ctx context.Context, userID string) (*domain.ScheduleSpec, error) {
	if userID == "" {
		return nil, pkgError.ValidationError("user_id: cannot be blank")
	}
	return s.specs.GetSpec(ctx, userID)
}

// ReconcileUser re-runs reconciliation against the stored spec. Idempotent:
// with an unchanged backlog it recomputes the exact same slots.
func (s *ScheduleService) ReconcileUser(ctx context.Context, userID string) (*domain.UpdateScheduleResult, error) {
	if userID == "" {
		return nil, pkgError.ValidationError("user_id: cannot be blank")
	}
	spec, err := s.specs.GetSpec(ctx, userID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	updated, err := s.coord.Reconcile(ctx, spec, s.nowFunc())
	if err != nil {
		return nil, err
	}
	s.signalDispatch(ctx)

	return &domain.UpdateScheduleResult{
		NextRunAt:         spec.NextRunAt.UTC().Format(time.RFC3339),
		UpdatedPostsCount: updated,
	}, nil
}

// CreatePost queues a post onto the reserved next slot. Requires an existing
// schedule: without one there is no cadence to place the post on.
func (s *ScheduleService) CreatePost(ctx context.Context, request domain.CreatePostRequest) (*domain.ScheduledPost, error) {
	if err := validations.ValidateCreatePost(ctx, request); err != nil {
		return nil, err
	}
	spec, err := s.specs.GetSpec(ctx, request.UserID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockUser(ctx, request.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	post, err := s.coord.AppendPost(ctx, spec, request.ContentID, s.nowFunc())
	if err != nil {
		return nil, err
	}
	s.signalDispatch(ctx)
	return post, nil
}

// ListPosts returns posts for a user, optionally filtered by status,
// ordered by creation time.
func (s *ScheduleService) ListPosts(ctx context.Context, filter domain.PostFilter) ([]*domain.ScheduledPost, error) {
	if filter.UserID == "" {
		return nil, pkgError.ValidationError("user_id: cannot be blank")
	}
	return s.posts.List(ctx, filter)
}

// DeletePost removes a pending post and closes the gap it leaves in the
// backlog. Posts that already published (or failed) are immutable history.
func (s *ScheduleService) DeletePost(ctx context.Context, postID string) error {
	if postID == "" {
		return pkgError.ValidationError("id: cannot be blank")
	}
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if !post.Pending() {
		return domain.ErrPostNotPending
	}
	spec, err := s.specs.GetSpec(ctx, post.UserID)
	if err != nil {
		return err
	}

	unlock, err := s.lockUser(ctx, post.UserID)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.coord.RemovePost(ctx, spec, postID, s.nowFunc()); err != nil {
		return err
	}
	s.signalDispatch(ctx)
	return nil
}

// UserStatus is the per-user view exposed by the status endpoint.
type UserStatus struct {
	UserID       string     `json:"user_id"`
	PendingCount int64      `json:"pending_count"`
	NextRunAt    *time.Time `json:"next_run_at,omitempty"`
}

// Status summarizes a user's queue.
func (s *ScheduleService) Status(ctx context.Context, userID string) (*UserStatus, error) {
	if userID == "" {
		return nil, pkgError.ValidationError("user_id: cannot be blank")
	}
	count, err := s.posts.CountPending(ctx, userID)
	if err != nil {
		return nil, err
	}
	status := &UserStatus{UserID: userID, PendingCount: count}
	if spec, err := s.specs.GetSpec(ctx, userID); err == nil {
		next := spec.NextRunAt.UTC()
		status.NextRunAt = &next
	}
	return status, nil
}

func (s *ScheduleService) signalDispatch(ctx context.Context) {
	if s.notifier != nil {
		s.notifier.SignalDispatch(ctx)
	}
}
