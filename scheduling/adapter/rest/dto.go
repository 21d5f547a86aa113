package rest

import "time"

// UpdateScheduleBody mirrors the wire shape of a schedule change.
type UpdateScheduleBody struct {
	UserID     string `json:"user_id"`
	Frequency  string `json:"frequency"`
	TimeOfDay  string `json:"time_of_day"`
	DayOfWeek  *int   `json:"day_of_week"`
	DayOfMonth *int   `json:"day_of_month"`
	Timezone   string `json:"timezone"`
}

// CreatePostBody queues a new post.
type CreatePostBody struct {
	UserID    string `json:"user_id"`
	ContentID string `json:"content_id"`
}

// StatusResult adds human-readable timing to the service status.
type StatusResult struct {
	UserID       string     `json:"user_id"`
	PendingCount int64      `json:"pending_count"`
	NextRunAt    *time.Time `json:"next_run_at,omitempty"`
	NextRunIn    string     `json:"next_run_in,omitempty"`
}
