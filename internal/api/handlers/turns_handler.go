package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/concierge-agent/backend/internal/storage/sqlite"
	"github.com/concierge-agent/backend/pkg/logger"
)

// TurnsHandler exposes recent turn telemetry so caching decisions can be
// audited: every row carries pii_detected and cached together.
type TurnsHandler struct {
	db *sqlite.Client
}

func NewTurnsHandler(db *sqlite.Client) *TurnsHandler {
	return &TurnsHandler{
		db: db,
	}
}

func (h *TurnsHandler) ListRecentTurns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	turns, err := h.db.GetRecentTurns(c.Context(), limit)
	if err != nil {
		logger.Error("Failed to load recent turns", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load recent turns",
		})
	}

	out := make([]fiber.Map, 0, len(turns))
	for _, turn := range turns {
		out = append(out, fiber.Map{
			"id":           turn.ID,
			"query":        turn.Query,
			"page_context": turn.PageContext,
			"status":       turn.Status,
			"confidence":   turn.Confidence,
			"iterations":   turn.Iterations,
			"issue_count":  turn.IssueCount,
			"pii_detected": turn.PIIDetected,
			"cached":       turn.Cached,
			"cache_hit":    turn.CacheHit,
			"latency_ms":   turn.LatencyMS,
			"created_at":   turn.CreatedAt.Unix(),
		})
	}

	return c.JSON(fiber.Map{
		"turns": out,
	})
}
