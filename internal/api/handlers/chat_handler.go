package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/concierge-agent/backend/internal/llm"
	"github.com/concierge-agent/backend/internal/workflow"
	"github.com/concierge-agent/backend/pkg/logger"
)

type ChatHandler struct {
	controller *workflow.Controller
}

func NewChatHandler(controller *workflow.Controller) *ChatHandler {
	return &ChatHandler{
		controller: controller,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Query       string        `json:"query"`
	PageContext string        `json:"page_context"`
	History     []chatMessage `json:"history"`
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var req chatRequest

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	history := make([]llm.Message, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	result, err := h.controller.Respond(c.Context(), req.Query, req.PageContext, history)
	if err != nil {
		logger.Error("Failed to process turn", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate a response",
		})
	}

	return c.JSON(fiber.Map{
		"turn_id":      result.TurnID,
		"response":     result.ResponseText,
		"confidence":   result.Confidence,
		"status":       result.Status,
		"iterations":   result.Iterations,
		"cache_hit":    result.CacheHit,
		"pii_detected": result.PIIDetected,
		"latency_ms":   result.LatencyMS,
	})
}
