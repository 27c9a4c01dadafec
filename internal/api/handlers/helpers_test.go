package handlers_test

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/gomega"

	"github.com/kbassist/backend/internal/api/handlers"
)

func newApp(isProduction bool) *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler(isProduction)})
}

func do(app *fiber.App, method, path, body string) (int, map[string]any) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())

	out := map[string]any{}
	if len(raw) > 0 {
		Expect(json.Unmarshal(raw, &out)).To(Succeed())
	}
	return resp.StatusCode, out
}
