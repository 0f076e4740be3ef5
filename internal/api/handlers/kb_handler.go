package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/concierge-agent/backend/internal/kb"
	"github.com/concierge-agent/backend/pkg/logger"
)

type KBHandler struct {
	ingestor *kb.Ingestor
}

func NewKBHandler(ingestor *kb.Ingestor) *KBHandler {
	return &KBHandler{
		ingestor: ingestor,
	}
}

func (h *KBHandler) UploadArticle(c *fiber.Ctx) error {
	var req struct {
		Title   string `json:"title"`
		Topic   string `json:"topic"`
		Content string `json:"content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Title == "" || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Title and content are required",
		})
	}

	article, err := h.ingestor.IngestArticle(c.Context(), req.Title, req.Topic, req.Content)
	if err != nil {
		logger.Error("Failed to ingest article", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest article",
		})
	}

	return c.JSON(fiber.Map{
		"id":    article.ID,
		"slug":  article.Slug,
		"topic": article.Topic,
	})
}
