package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kbassist/backend/internal/feedback"
	"github.com/kbassist/backend/internal/middleware/validation"
	"github.com/kbassist/backend/internal/storage/models"
)

type FeedbackService interface {
	Submit(ctx context.Context, queryID string, rating int, comment string) (*models.Feedback, error)
	Get(ctx context.Context, id int64) (*models.Feedback, error)
	Recent(ctx context.Context, limit int) ([]models.Feedback, error)
	Update(ctx context.Context, id int64, rating int, comment string) error
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*models.FeedbackStats, error)
}

type FeedbackHandler struct {
	service FeedbackService
}

func NewFeedbackHandler(service FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{service: service}
}

type feedbackView struct {
	ID        int64     `json:"id"`
	QueryID   string    `json:"queryId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toFeedbackView(f *models.Feedback) feedbackView {
	return feedbackView{
		ID:        f.ID,
		QueryID:   f.QueryID,
		Rating:    f.Rating,
		Comment:   f.Comment,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func (h *FeedbackHandler) Submit(c *fiber.Ctx) error {
	req := validation.Body[validation.FeedbackRequest](c)
	if req == nil || req.Rating == nil {
		return fmt.Errorf("%w: missing feedback body", ErrValidation)
	}

	f, err := h.service.Submit(c.UserContext(), req.QueryID, *req.Rating, req.Comment)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Feedback submitted successfully",
		"id":      f.ID,
	})
}

func (h *FeedbackHandler) Get(c *fiber.Ctx) error {
	id, err := feedbackID(c)
	if err != nil {
		return err
	}

	f, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toFeedbackView(f))
}

func (h *FeedbackHandler) Recent(c *fiber.Ctx) error {
	items, err := h.service.Recent(c.UserContext(), c.QueryInt("limit", feedback.DefaultRecentLimit))
	if err != nil {
		return err
	}

	views := make([]feedbackView, len(items))
	for i := range items {
		views[i] = toFeedbackView(&items[i])
	}
	return c.JSON(fiber.Map{"feedback": views})
}

func (h *FeedbackHandler) Update(c *fiber.Ctx) error {
	id, err := feedbackID(c)
	if err != nil {
		return err
	}
	req := validation.Body[validation.FeedbackRequest](c)
	if req == nil || req.Rating == nil {
		return fmt.Errorf("%w: missing feedback body", ErrValidation)
	}

	if err := h.service.Update(c.UserContext(), id, *req.Rating, req.Comment); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Feedback updated successfully"})
}

func (h *FeedbackHandler) Delete(c *fiber.Ctx) error {
	id, err := feedbackID(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Feedback deleted successfully"})
}

func (h *FeedbackHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func feedbackID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id must be a positive integer", ErrValidation)
	}
	return int64(id), nil
}
