// Package translation wraps the remote translation backend. Translation is a
// soft-degrade capability: every failure returns the input text unchanged.
package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/metrics"
	"github.com/kbassist/backend/pkg/logger"
)

var errEmptyTranslation = errors.New("translation backend returned empty text")

type Client struct {
	apiURL          string
	apiKey          string
	workingLanguage string
	httpClient      *http.Client
}

type translateRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
}

func NewClient(apiURL, apiKey, workingLanguage string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		apiURL:          apiURL,
		apiKey:          apiKey,
		workingLanguage: strings.ToLower(workingLanguage),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) WorkingLanguage() string {
	return c.workingLanguage
}

// Translate renders text in targetLanguage. A target equal to the working
// language returns text without a remote call.
func (c *Client) Translate(ctx context.Context, text, targetLanguage string) string {
	target := strings.ToLower(targetLanguage)
	if target == c.workingLanguage {
		return text
	}
	return c.translateOrOriginal(ctx, text, c.workingLanguage, target)
}

// ToWorkingLanguage renders text written in sourceLanguage in the working
// language. Text already in the working language is returned as is.
func (c *Client) ToWorkingLanguage(ctx context.Context, text, sourceLanguage string) string {
	source := strings.ToLower(sourceLanguage)
	if source == c.workingLanguage {
		return text
	}
	return c.translateOrOriginal(ctx, text, source, c.workingLanguage)
}

func (c *Client) translateOrOriginal(ctx context.Context, text, source, target string) string {
	translated, err := c.call(ctx, text, source, target)
	if err != nil {
		metrics.TranslationFailures.WithLabelValues(target).Inc()
		logger.Error("Translation failed, returning original text",
			zap.Error(err),
			zap.String("source_language", source),
			zap.String("target_language", target),
		)
		return text
	}
	return translated
}

func (c *Client) call(ctx context.Context, text, source, target string) (string, error) {
	if c.apiURL == "" {
		return "", errors.New("translation backend not configured")
	}

	body, err := json.Marshal(translateRequest{
		Text:           text,
		SourceLanguage: source,
		TargetLanguage: target,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", fmt.Errorf("translation API error: status %d", resp.StatusCode)
	}

	var result translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.TranslatedText == "" {
		return "", errEmptyTranslation
	}

	logger.Debug("Text translated",
		zap.String("source_language", source),
		zap.String("target_language", target),
		zap.Int("length", len(result.TranslatedText)),
	)

	return result.TranslatedText, nil
}
