package rest

import (
	"errors"

	pkgError "github.com/castrel/postflow/pkg/error"
	"github.com/castrel/postflow/pkg/postworker"
	"github.com/castrel/postflow/pkg/utils"
	"github.com/castrel/postflow/scheduling/application"
	"github.com/castrel/postflow/scheduling/domain"
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
)

// ScheduleHandler exposes the scheduling core over HTTP.
type ScheduleHandler struct {
	service *application.ScheduleService
	pool    *postworker.Pool
}

func NewScheduleHandler(service *application.ScheduleService, pool *postworker.Pool) *ScheduleHandler {
	return &ScheduleHandler{service: service, pool: pool}
}

// RegisterRoutes mounts the scheduling routes on the given router group.
func (h *ScheduleHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/schedule", h.GetSchedule)
	router.Put("/schedule", h.UpdateSchedule)
	router.Post("/schedule/reconcile", h.Reconcile)

	router.Post("/posts", h.CreatePost)
	router.Get("/posts", h.ListPosts)
	router.Delete("/posts/:id", h.DeletePost)

	router.Get("/status", h.Status)
	router.Get("/workers/stats", h.WorkerStats)
}

// UpdateSchedule replaces the user's cadence and re-sequences the backlog.
func (h *ScheduleHandler) UpdateSchedule(c *fiber.Ctx) error {
	var body UpdateScheduleBody
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, pkgError.ValidationError("invalid request body"))
	}

	result, err := h.service.UpdateSchedule(c.UserContext(), domain.UpdateScheduleRequest{
		UserID:     body.UserID,
		Frequency:  body.Frequency,
		TimeOfDay:  body.TimeOfDay,
		DayOfWeek:  body.DayOfWeek,
		DayOfMonth: body.DayOfMonth,
		Timezone:   body.Timezone,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(utils.ResponseData{
		Status:  fiber.StatusOK,
		Code:    "SUCCESS",
		Message: "Schedule updated",
		Results: result,
	})
}

// GetSchedule returns the user's current spec.
func (h *ScheduleHandler) GetSchedule(c *fiber.Ctx) error {
	spec, err := h.service.GetSchedule(c.UserContext(), c.Query("user_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  fiber.StatusOK,
		Code:    "SUCCESS",
		Message: "Schedule retrieved",
		Results: spec,
	})
}

// Reconcile re-runs the backlog reconciliation against the stored spec.
func (h *ScheduleHandler) Reconcile(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		var body struct {
			UserID string `json:"user_id"`
		}
		_ = c.BodyParser(&body)
		userID = body.UserID
	}

	result, err := h.service.ReconcileUser(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  fiber.StatusOK,
		Code:    "SUCCESS",
		Message: "Backlog reconciled",
		Results: result,
	})
}

// CreatePost queues a post onto the next reserved slot.
func (h *ScheduleHandler) CreatePost(c *fiber.Ctx) error {
	var body CreatePostBody
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, pkgError.ValidationError("invalid request body"))
	}

	post, err := h.service.CreatePost(c.UserContext(), domain.CreatePostRequest{
		UserID:    body.UserID,
		ContentID: body.ContentID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  fiber.StatusCreated,
		Code:    "SUCCESS",
		Message: "Post scheduled",
		Results: post,
	})
}

// ListPosts lists a user's posts, optionally filtered by status.
func (h *ScheduleHandler) ListPosts(c *fiber.Ctx) error {
	filter := domain.PostFilter{
		UserID: c.Query("user_id"),
		Limit:  c.QueryInt("limit", 100),
		Offset: c.QueryInt("offset", 0),
	}
	if status := c.Query("status"); status != "" {
		st := domain.PostStatus(status)
		filter.Status = &st
	}

	posts, err := h.service.ListPosts(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  fiber.StatusOK,
		Code:    "SUCCESS",
		Message: "Posts retrieved",
		Results: fiber.Map{"posts": posts, "count": len(posts)},
	})
}

// DeletePost drops a pending post and closes the backlog gap.
func (h *ScheduleHandler) DeletePost(c *fiber.Ctx) error {
	if err := h.service.DeletePost(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  fiber.StatusOK,
		Code:    "SUCCESS",
		Message: "Post removed and backlog re-sequenced",
	})
}

// Status summarizes a user's queue.
func (h *ScheduleHandler) Status(c *fiber.Ctx) error {
	status, err := h.service.Status(c.UserContext(), c.Query("user_id"))
	if err != nil {
		return respondError(c, err)
	}

	result := StatusResult{
		UserID:       status.UserID,
		PendingCount: status.PendingCount,
		NextRunAt:    status.NextRunAt,
	}
	if status.NextRunAt != nil {
		result.NextRunIn = humanize.Time(*status.NextRunAt)
	}
	return c.JSON(utils.ResponseData{
		Status:  fiber.StatusOK,
		Code:    "SUCCESS",
		Message: "Status retrieved",
		Results: result,
	})
}

// WorkerStats exposes publish worker pool metrics.
func (h *ScheduleHandler) WorkerStats(c *fiber.Ctx) error {
	if h.pool == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(utils.ResponseData{
			Status:  fiber.StatusServiceUnavailable,
			Code:    "POOL_NOT_RUNNING",
			Message: "Publish worker pool is not running",
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  fiber.StatusOK,
		Code:    "SUCCESS",
		Message: "Worker stats retrieved",
		Results: h.pool.GetStats(),
	})
}

// respondError maps application errors onto HTTP responses. Validation
// errors name the offending field; persistence faults stay generic so no
// internal detail leaks.
func respondError(c *fiber.Ctx, err error) error {
	typed, ok := err.(pkgError.GenericError)
	if !ok {
		switch {
		case errors.Is(err, domain.ErrScheduleNotFound), errors.Is(err, domain.ErrPostNotFound):
			typed = pkgError.NotFoundError(err.Error())
		case errors.Is(err, domain.ErrPostNotPending):
			typed = pkgError.ConflictError(err.Error())
		default:
			typed = pkgError.InternalServerError("The operation could not be completed")
		}
	}
	return c.Status(typed.StatusCode()).JSON(utils.ResponseData{
		Status:  typed.StatusCode(),
		Code:    typed.ErrCode(),
		Message: typed.Error(),
	})
}
