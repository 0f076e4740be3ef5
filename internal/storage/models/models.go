package models

import "time"

type KBArticle struct {
	ID        string
	Slug      string
	Title     string
	Topic     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type KBChunk struct {
	ID         string
	ArticleID  string
	ChunkIndex int
	Text       string
	CreatedAt  time.Time
}

type PricingPlan struct {
	ID          string
	Name        string
	Topic       string
	PriceUSD    string
	BillingUnit string
	Description string
	Active      bool
	CreatedAt   time.Time
}

type Consultation struct {
	ID          string
	PageContext string
	Topic       string
	Note        string
	CreatedAt   time.Time
}

// TurnRecord is the per-turn telemetry row. PIIDetected and Cached together
// let downstream audits confirm that no PII-flagged turn was ever cached.
type TurnRecord struct {
	ID          string
	Query       string
	PageContext string
	Status      string
	Confidence  float64
	Iterations  int
	IssueCount  int
	PIIDetected bool
	Cached      bool
	CacheHit    bool
	LatencyMS   int
	CreatedAt   time.Time
}
