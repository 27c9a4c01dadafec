package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const bodyKey = "validated_body"

const (
	MinQueryLength   = 3
	MaxQueryLength   = 500
	MaxCommentLength = 1000
	MaxSearchLength  = 500
)

var (
	xssPattern      = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)
	languagePattern = regexp.MustCompile(`^[a-zA-Z]{2}$`)
)

type CallerContext struct {
	CustomerID           string   `json:"customerId"`
	AccountType          string   `json:"accountType"`
	PreviousInteractions []string `json:"previousInteractions"`
}

type QueryRequest struct {
	Query    string         `json:"query"`
	Language string         `json:"language"`
	Context  *CallerContext `json:"context"`
}

type FeedbackRequest struct {
	QueryID string `json:"queryId"`
	Rating  *int   `json:"rating"`
	Comment string `json:"comment"`
}

type DocumentRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Language string `json:"language"`
	Category string `json:"category"`
}

type SearchRequest struct {
	Query    string `json:"query"`
	Language string `json:"language"`
	Category string `json:"category"`
}

type Config struct {
	MaxDocumentSize     int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func (cfg *Config) normalize() {
	if cfg.MaxDocumentSize == 0 {
		cfg.MaxDocumentSize = 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
}

// ContentType rejects write requests whose body is not an allowed type.
func ContentType(cfg Config) fiber.Handler {
	cfg.normalize()

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType == "" {
			return c.Next()
		}
		for _, allowed := range cfg.AllowedContentTypes {
			if strings.Contains(contentType, allowed) {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"error": "Unsupported content type",
		})
	}
}

// Query validates the body of a query request.
func Query(cfg Config) fiber.Handler {
	cfg.normalize()

	return func(c *fiber.Ctx) error {
		var req QueryRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if msg := ValidateQuery(&req); msg != "" {
			return badRequest(c, msg)
		}

		if containsXSS(req.Query) {
			cfg.Logger.Warn("Potential XSS attempt", zap.String("ip", c.IP()))
			return badRequest(c, "Invalid query content")
		}

		c.Locals(bodyKey, &req)
		return c.Next()
	}
}

// ValidateQuery checks a query request and returns a client-facing message,
// or "" when the request is valid. The query is trimmed and the language
// lower-cased in place.
func ValidateQuery(req *QueryRequest) string {
	req.Query = sanitizeString(req.Query)
	n := utf8.RuneCountInString(req.Query)
	switch {
	case req.Query == "":
		return `"query" is required`
	case n < MinQueryLength:
		return fmt.Sprintf(`"query" length must be at least %d characters long`, MinQueryLength)
	case n > MaxQueryLength:
		return fmt.Sprintf(`"query" length must be less than or equal to %d characters long`, MaxQueryLength)
	case req.Language == "":
		return `"language" is required`
	case !languagePattern.MatchString(req.Language):
		return `"language" must be a 2 letter code`
	}
	req.Language = strings.ToLower(req.Language)
	return ""
}

// Feedback validates the body of a feedback submission or update. Updates
// carry the id in the path, so queryId is only required when requireQueryID
// is set.
func Feedback(cfg Config, requireQueryID bool) fiber.Handler {
	cfg.normalize()

	return func(c *fiber.Ctx) error {
		var req FeedbackRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if msg := validateFeedback(&req, requireQueryID); msg != "" {
			return badRequest(c, msg)
		}
		if containsXSS(req.Comment) {
			cfg.Logger.Warn("Potential XSS attempt", zap.String("ip", c.IP()))
			return badRequest(c, "Invalid comment content")
		}

		c.Locals(bodyKey, &req)
		return c.Next()
	}
}

func validateFeedback(req *FeedbackRequest, requireQueryID bool) string {
	if requireQueryID {
		if req.QueryID == "" {
			return `"queryId" is required`
		}
		if _, err := uuid.Parse(req.QueryID); err != nil {
			return `"queryId" must be a valid GUID`
		}
	}
	switch {
	case req.Rating == nil:
		return `"rating" is required`
	case *req.Rating < 1:
		return `"rating" must be greater than or equal to 1`
	case *req.Rating > 5:
		return `"rating" must be less than or equal to 5`
	case utf8.RuneCountInString(req.Comment) > MaxCommentLength:
		return fmt.Sprintf(`"comment" length must be less than or equal to %d characters long`, MaxCommentLength)
	}
	return ""
}

// Document validates knowledge base writes. Content may be HTML.
func Document(cfg Config, requireMetadata bool) fiber.Handler {
	cfg.normalize()

	return func(c *fiber.Ctx) error {
		var req DocumentRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if strings.TrimSpace(req.Content) == "" {
			return badRequest(c, `"content" is required`)
		}
		if len(req.Content) > cfg.MaxDocumentSize {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "Document content exceeds maximum size",
			})
		}
		if requireMetadata || req.Language != "" {
			if !languagePattern.MatchString(req.Language) {
				return badRequest(c, `"language" must be a 2 letter code`)
			}
			req.Language = strings.ToLower(req.Language)
		}

		c.Locals(bodyKey, &req)
		return c.Next()
	}
}

func Search(cfg Config) fiber.Handler {
	cfg.normalize()

	return func(c *fiber.Ctx) error {
		var req SearchRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		req.Query = sanitizeString(req.Query)
		if req.Query == "" {
			return badRequest(c, `"query" is required`)
		}
		if utf8.RuneCountInString(req.Query) > MaxSearchLength {
			return badRequest(c, fmt.Sprintf(`"query" length must be less than or equal to %d characters long`, MaxSearchLength))
		}
		if req.Language != "" && !languagePattern.MatchString(req.Language) {
			return badRequest(c, `"language" must be a 2 letter code`)
		}
		req.Language = strings.ToLower(req.Language)

		c.Locals(bodyKey, &req)
		return c.Next()
	}
}

// Body returns the request validated by an upstream validator, or nil.
func Body[T any](c *fiber.Ctx) *T {
	v, _ := c.Locals(bodyKey).(*T)
	return v
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

func sanitizeString(input string) string {
	input = strings.TrimSpace(input)
	return strings.ReplaceAll(input, "\x00", "")
}
