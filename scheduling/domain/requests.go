package domain

// UpdateScheduleRequest is the logical "change my cadence" request, transport
// agnostic. DayOfWeek/DayOfMonth are pointers so "absent" and "zero" stay
// distinguishable for validation.
type UpdateScheduleRequest struct {
	UserID     string `json:"user_id"`
	Frequency  string `json:"frequency"`
	TimeOfDay  string `json:"time_of_day"`
	DayOfWeek  *int   `json:"day_of_week,omitempty"`
	DayOfMonth *int   `json:"day_of_month,omitempty"`
	Timezone   string `json:"timezone"`
}

// UpdateScheduleResult reports the reconciliation outcome.
type UpdateScheduleResult struct {
	NextRunAt         string `json:"next_run_at"` // ISO-8601 UTC
	UpdatedPostsCount int    `json:"updated_posts_count"`
}

// CreatePostRequest queues a new post onto the user's backlog.
type CreatePostRequest struct {
	UserID    string `json:"user_id"`
	ContentID string `json:"content_id"`
}
