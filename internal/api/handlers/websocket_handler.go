package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/middleware/auth"
	"github.com/kbassist/backend/internal/middleware/validation"
	"github.com/kbassist/backend/internal/query"
	"github.com/kbassist/backend/pkg/logger"
)

type WebSocketHandler struct {
	resolver QueryResolver
	timeout  time.Duration
}

func NewWebSocketHandler(resolver QueryResolver, timeout time.Duration) *WebSocketHandler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &WebSocketHandler{
		resolver: resolver,
		timeout:  timeout,
	}
}

type jsonWriter interface {
	WriteJSON(v interface{}) error
}

type wsQueryMessage struct {
	Type string `json:"type"`
	validation.QueryRequest
}

// HandleConnection answers "query" messages on one connection, streaming each
// answer word by word followed by a "complete" message.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	userID, _ := c.Locals(auth.UserIDKey).(string)
	logger.Info("WebSocket connection established", zap.String("user_id", userID))

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("user_id", userID))
	}()

	for {
		var msg wsQueryMessage
		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		h.handleMessage(c, &msg, userID)
	}
}

// handleMessage answers one inbound message. Messages other than "query"
// are ignored.
func (h *WebSocketHandler) handleMessage(w jsonWriter, msg *wsQueryMessage, userID string) {
	if msg.Type != "query" {
		return
	}

	if problem := validation.ValidateQuery(&msg.QueryRequest); problem != "" {
		h.sendError(w, problem)
		return
	}

	if err := h.streamResponse(w, &msg.QueryRequest, userID); err != nil {
		logger.Error("Failed to stream response", zap.Error(err))
		h.sendError(w, "Failed to process query")
	}
}

func (h *WebSocketHandler) streamResponse(c jsonWriter, req *validation.QueryRequest, userID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.sendChunk(c, "status", "Processing query..."); err != nil {
		return err
	}

	resp, err := h.resolver.Resolve(ctx, toPipelineRequest(req, userID))
	if err != nil {
		return err
	}

	words := splitIntoWords(resp.Text)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return h.sendComplete(c, resp)
}

func (h *WebSocketHandler) sendChunk(c jsonWriter, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendComplete(c jsonWriter, resp *query.Response) error {
	msg := map[string]interface{}{
		"type":    "complete",
		"queryId": resp.QueryID,
		"source":  resp.Source,
	}
	if resp.Confidence != nil {
		msg["confidence"] = *resp.Confidence
	}
	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c jsonWriter, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

func splitIntoWords(text string) []string {
	words := []string{}
	current := []rune{}

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if len(current) > 0 {
				words = append(words, string(current))
				current = current[:0]
			}
			if char == '\n' {
				words = append(words, "\n")
			}
			continue
		}
		current = append(current, char)
	}

	if len(current) > 0 {
		words = append(words, string(current))
	}

	return words
}
