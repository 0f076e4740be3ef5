package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/concierge-agent/backend/internal/llm"
	"github.com/concierge-agent/backend/internal/workflow"
	"github.com/concierge-agent/backend/pkg/logger"
)

type WebSocketHandler struct {
	controller *workflow.Controller
}

func NewWebSocketHandler(controller *workflow.Controller) *WebSocketHandler {
	return &WebSocketHandler{
		controller: controller,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	// Turns run under a connection-scoped context so an in-flight LLM call
	// is cancelled once the read loop exits.
	ctx, cancel := context.WithCancel(context.Background())

	defer func() {
		cancel()
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type        string        `json:"type"`
			Content     string        `json:"content"`
			PageContext string        `json:"page_context"`
			History     []chatMessage `json:"history"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "query" {
			continue
		}

		if msg.Content == "" {
			h.sendError(c, "Query is required")
			continue
		}

		logger.Info("Processing WebSocket query",
			zap.String("page_context", msg.PageContext),
		)

		history := make([]llm.Message, 0, len(msg.History))
		for _, m := range msg.History {
			history = append(history, llm.Message{Role: m.Role, Content: m.Content})
		}

		err = h.streamResponse(ctx, c, msg.Content, msg.PageContext, history)
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to generate a response")
		}
	}
}

func (h *WebSocketHandler) streamResponse(ctx context.Context, c *websocket.Conn, query, pageContext string, history []llm.Message) error {
	h.sendChunk(c, "status", "Thinking...")

	result, err := h.controller.Respond(ctx, query, pageContext, history)
	if err != nil {
		return err
	}

	words := splitIntoWords(result.ResponseText)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}

		err := h.sendChunk(c, "chunk", chunk)
		if err != nil {
			return err
		}
	}

	return h.sendComplete(c, result)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, result *workflow.Result) error {
	msg := map[string]interface{}{
		"type":       "complete",
		"turn_id":    result.TurnID,
		"confidence": result.Confidence,
		"status":     result.Status,
		"cache_hit":  result.CacheHit,
		"latency_ms": result.LatencyMS,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
