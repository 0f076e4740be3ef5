package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/concierge-agent/backend/internal/storage/models"
	"github.com/concierge-agent/backend/internal/storage/sqlite"
)

var consultationKeywords = []string{"consult", "book", "schedule", "appointment", "talk to", "speak with", "meeting"}

// RequestConsultation records visitor interest and returns grounding text
// describing the consultation offer.
type RequestConsultation struct {
	db *sqlite.Client
}

func NewRequestConsultation(db *sqlite.Client) *RequestConsultation {
	return &RequestConsultation{db: db}
}

func (t *RequestConsultation) Name() string {
	return NameRequestConsultation
}

func (t *RequestConsultation) Applicable(req Request) bool {
	return containsAny(req.Query, consultationKeywords)
}

func (t *RequestConsultation) Invoke(ctx context.Context, req Request) (string, error) {
	consultation := &models.Consultation{
		ID:          uuid.New().String(),
		PageContext: req.PageContext,
		Topic:       req.PageContext,
		Note:        "requested from chat",
		CreatedAt:   time.Now(),
	}

	if err := t.db.InsertConsultation(ctx, consultation); err != nil {
		return "", fmt.Errorf("failed to record consultation request: %w", err)
	}

	return "Consultations are free, 30 minutes, and held over video call. " +
		"The team follows up within one business day to schedule a time.", nil
}
