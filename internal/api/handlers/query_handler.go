package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kbassist/backend/internal/llm"
	"github.com/kbassist/backend/internal/middleware/auth"
	"github.com/kbassist/backend/internal/middleware/validation"
	"github.com/kbassist/backend/internal/query"
	"github.com/kbassist/backend/internal/storage/models"
)

type QueryResolver interface {
	Resolve(ctx context.Context, req query.Request) (*query.Response, error)
}

type QueryLogReader interface {
	GetQueryLogs(ctx context.Context, from, to time.Time) ([]models.QueryRecord, error)
	GetQueriesNeedingReview(ctx context.Context, limit int) ([]models.QueryRecord, error)
}

type QueryHandler struct {
	resolver QueryResolver
	logs     QueryLogReader
	timeout  time.Duration
}

func NewQueryHandler(resolver QueryResolver, logs QueryLogReader, timeout time.Duration) *QueryHandler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &QueryHandler{
		resolver: resolver,
		logs:     logs,
		timeout:  timeout,
	}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	req := validation.Body[validation.QueryRequest](c)
	if req == nil {
		return fmt.Errorf("%w: missing query body", ErrValidation)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	resp, err := h.resolver.Resolve(ctx, toPipelineRequest(req, auth.UserID(c)))
	if err != nil {
		return err
	}

	return c.JSON(resp)
}

// GetQueryLogs lists resolved queries between from and to (RFC3339). The
// range defaults to the last 24 hours.
func (h *QueryHandler) GetQueryLogs(c *fiber.Ctx) error {
	to := time.Now()
	from := to.Add(-24 * time.Hour)

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("%w: from must be RFC3339", ErrValidation)
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("%w: to must be RFC3339", ErrValidation)
		}
		to = t
	}
	if from.After(to) {
		return fmt.Errorf("%w: from is after to", ErrValidation)
	}

	records, err := h.logs.GetQueryLogs(c.UserContext(), from, to)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"queries": toQueryLogViews(records),
		"count":   len(records),
	})
}

func (h *QueryHandler) GetReviewQueue(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		return fmt.Errorf("%w: limit must be between 1 and 500", ErrValidation)
	}

	records, err := h.logs.GetQueriesNeedingReview(c.UserContext(), limit)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"queries": toQueryLogViews(records),
		"count":   len(records),
	})
}

type queryLogView struct {
	ID          string                `json:"id"`
	UserID      string                `json:"userId,omitempty"`
	Query       string                `json:"query"`
	Language    string                `json:"language"`
	Response    string                `json:"response"`
	Source      models.ResponseSource `json:"source"`
	Confidence  float64               `json:"confidence"`
	NeedsReview bool                  `json:"needsReview"`
	LatencyMS   int                   `json:"latencyMs"`
	CreatedAt   time.Time             `json:"createdAt"`
}

func toQueryLogViews(records []models.QueryRecord) []queryLogView {
	out := make([]queryLogView, len(records))
	for i, r := range records {
		out[i] = queryLogView{
			ID:          r.ID,
			UserID:      r.UserID,
			Query:       r.QueryText,
			Language:    r.Language,
			Response:    r.Response,
			Source:      r.Source,
			Confidence:  r.Confidence,
			NeedsReview: r.NeedsReview,
			LatencyMS:   r.LatencyMS,
			CreatedAt:   r.CreatedAt,
		}
	}
	return out
}

func toPipelineRequest(req *validation.QueryRequest, userID string) query.Request {
	out := query.Request{
		Query:    req.Query,
		Language: req.Language,
		UserID:   userID,
	}
	if req.Context != nil {
		out.Context = llm.CallerContext{
			CustomerID:           req.Context.CustomerID,
			AccountType:          req.Context.AccountType,
			PreviousInteractions: req.Context.PreviousInteractions,
		}
	}
	return out
}
