package domain

import "errors"

var (
	// ErrScheduleNotFound is returned when a user has no schedule configured yet.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrPostNotFound is returned when a scheduled post does not exist.
	ErrPostNotFound = errors.New("scheduled post not found")

	// ErrPostNotPending is returned when mutating a post that already left the backlog.
	ErrPostNotPending = errors.New("scheduled post is no longer pending")
)
