package domain

import "time"

type PostStatus string

const (
	PostStatusPending PostStatus = "pending"
	PostStatusPosted  PostStatus = "posted"
	PostStatusFailed  PostStatus = "failed"
)

// ScheduledPost is one queued publication. CreatedAt is immutable and defines
// the backlog order; RunAt is owned exclusively by the reconciler while the
// post is pending, and frozen once the dispatcher moves the status on.
type ScheduledPost struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	ContentID string     `json:"content_id"`
	RunAt     time.Time  `json:"run_at"`
	Timezone  string     `json:"timezone"` // display copy of the spec's timezone at assignment time
	Status    PostStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Pending reports whether the post still belongs to the backlog.
func (p *ScheduledPost) Pending() bool {
	return p.Status == PostStatusPending
}
