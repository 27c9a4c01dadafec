package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kbassist/backend/internal/analytics"
)

type AnalyticsReporter interface {
	Report() analytics.Report
}

type AnalyticsHandler struct {
	reporter AnalyticsReporter
}

func NewAnalyticsHandler(reporter AnalyticsReporter) *AnalyticsHandler {
	return &AnalyticsHandler{reporter: reporter}
}

func (h *AnalyticsHandler) Report(c *fiber.Ctx) error {
	return c.JSON(h.reporter.Report())
}
