package application

import (
	"context"
	"sync"
	"time"

	"github.com/castrel/postflow/pkg/postworker"
	"github.com/castrel/postflow/scheduling/domain"
	"github.com/sirupsen/logrus"
)

// Publisher delivers one due post to the platform integrations. The actual
// LinkedIn/Facebook/Instagram calls live behind this boundary; the scheduling
// core only decides WHEN a post leaves the backlog.
type Publisher interface {
	Publish(ctx context.Context, post *domain.ScheduledPost) error
}

// LogPublisher is the built-in stand-in used until a real platform
// integration is configured. It succeeds unconditionally.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, post *domain.ScheduledPost) error {
	logrus.Infof("[PUBLISH] Post %s (user %s, content %s) due at %s", post.ID, post.UserID, post.ContentID, post.RunAt.Format(time.RFC3339))
	return nil
}

// Dispatcher moves matured posts out of the backlog: it polls for
// run_at <= now, hands each post to the user-pinned worker pool, and records
// the outcome. It is the sole writer of post status.
type Dispatcher struct {
	posts     domain.PostRepository
	pool      *postworker.Pool
	publisher Publisher
	batch     int
	safety    time.Duration

	wake chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

func NewDispatcher(posts domain.PostRepository, pool *postworker.Pool, publisher Publisher, batch int, safety time.Duration) *Dispatcher {
	if batch <= 0 {
		batch = 100
	}
	if safety <= 0 {
		safety = 5 * time.Minute
	}
	return &Dispatcher{
		posts:     posts,
		pool:      pool,
		publisher: publisher,
		batch:     batch,
		safety:    safety,
		wake:      make(chan struct{}, 1),
		inflight:  make(map[string]struct{}),
	}
}

// Wake nudges the loop to re-scan immediately, e.g. after a reconciliation
// moved slots earlier. Non-blocking; coalesces repeated signals.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run executes the adaptive dispatch loop until ctx is cancelled. Sleeps
// until the next known slot, clamped between one second and one hour, with a
// safety ticker covering clock drift and writes from other instances.
func (d *Dispatcher) Run(ctx context.Context) {
	logrus.Infof("[DISPATCH] Worker started (batch %d, safety interval %s)", d.batch, d.safety)

	safetyTicker := time.NewTicker(d.safety)
	defer safetyTicker.Stop()

	for {
		nextAt := d.dispatchDue(ctx)

		sleep := time.Hour
		if nextAt != nil {
			sleep = time.Until(*nextAt)
			if sleep < time.Second {
				sleep = time.Second
			}
			if sleep > time.Hour {
				sleep = time.Hour
			}
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			logrus.Info("[DISPATCH] Worker stopped")
			return
		case <-d.wake:
			timer.Stop()
		case <-safetyTicker.C:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// dispatchDue enqueues every matured post and returns the run time of the
// next pending one, nil when the backlog is empty.
func (d *Dispatcher) dispatchDue(ctx context.Context) *time.Time {
	due, err := d.posts.ListDue(ctx, time.Now().UTC(), d.batch)
	if err != nil {
		logrus.WithError(err).Error("[DISPATCH] Failed to list due posts")
		return nil
	}

	for _, post := range due {
		if !d.markInflight(post.ID) {
			continue // already queued on a worker
		}
		p := post
		ok := d.pool.TryDispatch(postworker.PublishJob{
			UserID:  p.UserID,
			PostID:  p.ID,
			Handler: func(jobCtx context.Context) error { return d.publish(jobCtx, p) },
		})
		if !ok {
			// Queue pressure: leave the post pending, the next pass retries.
			d.clearInflight(p.ID)
		}
	}

	next, err := d.posts.NextPendingRun(ctx)
	if err != nil {
		logrus.WithError(err).Error("[DISPATCH] Failed to peek next pending run")
		return nil
	}
	return next
}

func (d *Dispatcher) publish(ctx context.Context, post *domain.ScheduledPost) error {
	defer d.clearInflight(post.ID)

	err := d.publisher.Publish(ctx, post)
	if err != nil {
		logrus.WithError(err).Errorf("[DISPATCH] Post %s failed to publish", post.ID)
		if updateErr := d.posts.UpdateStatus(ctx, post.ID, domain.PostStatusFailed, err.Error()); updateErr != nil {
			logrus.WithError(updateErr).Errorf("[DISPATCH] Could not record failure for post %s", post.ID)
		}
		return err
	}

	if err := d.posts.UpdateStatus(ctx, post.ID, domain.PostStatusPosted, ""); err != nil {
		logrus.WithError(err).Errorf("[DISPATCH] Could not record success for post %s", post.ID)
		return err
	}
	logrus.Infof("[DISPATCH] Post %s published for user %s", post.ID, post.UserID)
	return nil
}

func (d *Dispatcher) markInflight(id string) bool {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()
	if _, exists := d.inflight[id]; exists {
		return false
	}
	d.inflight[id] = struct{}{}
	return true
}

func (d *Dispatcher) clearInflight(id string) {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()
	delete(d.inflight, id)
}
