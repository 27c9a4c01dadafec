package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kbassist/backend/internal/knowledge"
	"github.com/kbassist/backend/internal/middleware/validation"
	"github.com/kbassist/backend/internal/storage/models"
)

type KnowledgeService interface {
	Ingest(ctx context.Context, req knowledge.IngestRequest) (*models.KnowledgeDocument, error)
	Update(ctx context.Context, id, content string) (*models.KnowledgeDocument, error)
	Remove(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.KnowledgeDocument, error)
	List(ctx context.Context, language, category string) ([]models.KnowledgeDocument, error)
	Search(ctx context.Context, query string, filters map[string]string) ([]knowledge.SearchHit, error)
}

type KnowledgeHandler struct {
	service KnowledgeService
}

func NewKnowledgeHandler(service KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{service: service}
}

type documentView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	Language  string    `json:"language"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toDocumentView(d *models.KnowledgeDocument, withContent bool) documentView {
	v := documentView{
		ID:        d.ID,
		Title:     d.Title,
		Language:  d.Language,
		Category:  d.Category,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if withContent {
		v.Content = d.Content
	}
	return v
}

func (h *KnowledgeHandler) Create(c *fiber.Ctx) error {
	req := validation.Body[validation.DocumentRequest](c)
	if req == nil {
		return fmt.Errorf("%w: missing document body", ErrValidation)
	}

	doc, err := h.service.Ingest(c.UserContext(), knowledge.IngestRequest{
		Title:    req.Title,
		Content:  req.Content,
		Language: req.Language,
		Category: req.Category,
	})
	if errors.Is(err, knowledge.ErrDuplicate) && doc != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":    "Conflict",
			"message":  err.Error(),
			"document": toDocumentView(doc, false),
		})
	}
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(toDocumentView(doc, false))
}

func (h *KnowledgeHandler) List(c *fiber.Ctx) error {
	docs, err := h.service.List(c.UserContext(), c.Query("language"), c.Query("category"))
	if err != nil {
		return err
	}

	views := make([]documentView, len(docs))
	for i := range docs {
		views[i] = toDocumentView(&docs[i], false)
	}
	return c.JSON(fiber.Map{"documents": views})
}

func (h *KnowledgeHandler) Get(c *fiber.Ctx) error {
	doc, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toDocumentView(doc, true))
}

func (h *KnowledgeHandler) Update(c *fiber.Ctx) error {
	req := validation.Body[validation.DocumentRequest](c)
	if req == nil {
		return fmt.Errorf("%w: missing document body", ErrValidation)
	}

	doc, err := h.service.Update(c.UserContext(), c.Params("id"), req.Content)
	if err != nil {
		return err
	}
	return c.JSON(toDocumentView(doc, false))
}

func (h *KnowledgeHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Remove(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Document removed successfully"})
}

func (h *KnowledgeHandler) Search(c *fiber.Ctx) error {
	req := validation.Body[validation.SearchRequest](c)
	if req == nil {
		return fmt.Errorf("%w: missing search body", ErrValidation)
	}

	hits, err := h.service.Search(c.UserContext(), req.Query, map[string]string{
		"language": req.Language,
		"category": req.Category,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"results": hits})
}
