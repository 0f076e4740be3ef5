package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/concierge-agent/backend/internal/storage/models"
	"github.com/concierge-agent/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kb_articles (
		id TEXT PRIMARY KEY,
		slug TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		topic TEXT,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_articles_topic ON kb_articles(topic);

	CREATE TABLE IF NOT EXISTS kb_chunks (
		id TEXT PRIMARY KEY,
		article_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (article_id) REFERENCES kb_articles(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_article ON kb_chunks(article_id);

	CREATE TABLE IF NOT EXISTS pricing_plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		topic TEXT,
		price_usd TEXT NOT NULL,
		billing_unit TEXT,
		description TEXT,
		active INTEGER DEFAULT 1,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_plans_topic ON pricing_plans(topic);
	CREATE INDEX IF NOT EXISTS idx_plans_active ON pricing_plans(active);

	CREATE TABLE IF NOT EXISTS consultations (
		id TEXT PRIMARY KEY,
		page_context TEXT,
		topic TEXT,
		note TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_consultations_created ON consultations(created_at);

	CREATE TABLE IF NOT EXISTS turn_records (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		page_context TEXT,
		status TEXT NOT NULL,
		confidence REAL,
		iterations INTEGER,
		issue_count INTEGER,
		pii_detected INTEGER DEFAULT 0,
		cached INTEGER DEFAULT 0,
		cache_hit INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_created ON turn_records(created_at);
	CREATE INDEX IF NOT EXISTS idx_turns_status ON turn_records(status);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertArticle(ctx context.Context, article *models.KBArticle) error {
	query := `
		INSERT INTO kb_articles (id, slug, title, topic, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			title = excluded.title,
			topic = excluded.topic,
			content = excluded.content,
			updated_at = excluded.updated_at
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		article.ID,
		article.Slug,
		article.Title,
		article.Topic,
		article.Content,
		article.CreatedAt.Unix(),
		article.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert article: %w", err)
	}

	logger.Debug("Article inserted", zap.String("article_id", article.ID), zap.String("slug", article.Slug))
	return nil
}

func (c *Client) InsertChunk(ctx context.Context, chunk *models.KBChunk) error {
	query := `INSERT INTO kb_chunks (id, article_id, chunk_index, text, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(
		ctx,
		query,
		chunk.ID,
		chunk.ArticleID,
		chunk.ChunkIndex,
		chunk.Text,
		chunk.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	return nil
}

// SearchChunks is the keyword fallback used when the vector store is not
// configured. Each query term must match somewhere in the chunk text.
func (c *Client) SearchChunks(ctx context.Context, terms []string, limit int) ([]models.KBChunk, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, article_id, chunk_index, text, created_at FROM kb_chunks WHERE 1=1`)

	args := make([]interface{}, 0, len(terms)+1)
	for _, term := range terms {
		sb.WriteString(` AND text LIKE ?`)
		args = append(args, "%"+term+"%")
	}
	sb.WriteString(` LIMIT ?`)
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.KBChunk
	for rows.Next() {
		var chunk models.KBChunk
		var createdAt int64

		err := rows.Scan(&chunk.ID, &chunk.ArticleID, &chunk.ChunkIndex, &chunk.Text, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		chunk.CreatedAt = time.Unix(createdAt, 0)
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

func (c *Client) InsertPricingPlan(ctx context.Context, plan *models.PricingPlan) error {
	query := `
		INSERT INTO pricing_plans (id, name, topic, price_usd, billing_unit, description, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price_usd = excluded.price_usd,
			billing_unit = excluded.billing_unit,
			description = excluded.description,
			active = excluded.active
	`

	active := 0
	if plan.Active {
		active = 1
	}

	_, err := c.db.ExecContext(
		ctx,
		query,
		plan.ID,
		plan.Name,
		plan.Topic,
		plan.PriceUSD,
		plan.BillingUnit,
		plan.Description,
		active,
		plan.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert pricing plan: %w", err)
	}

	return nil
}

func (c *Client) GetPricingPlans(ctx context.Context, topic string) ([]models.PricingPlan, error) {
	query := `SELECT id, name, topic, price_usd, billing_unit, description, created_at FROM pricing_plans WHERE active = 1`
	args := []interface{}{}

	if topic != "" {
		query += ` AND topic = ?`
		args = append(args, topic)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get pricing plans: %w", err)
	}
	defer rows.Close()

	var plans []models.PricingPlan
	for rows.Next() {
		var p models.PricingPlan
		var createdAt int64

		err := rows.Scan(&p.ID, &p.Name, &p.Topic, &p.PriceUSD, &p.BillingUnit, &p.Description, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		p.Active = true
		p.CreatedAt = time.Unix(createdAt, 0)
		plans = append(plans, p)
	}

	return plans, rows.Err()
}

func (c *Client) InsertConsultation(ctx context.Context, consultation *models.Consultation) error {
	query := `INSERT INTO consultations (id, page_context, topic, note, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(
		ctx,
		query,
		consultation.ID,
		consultation.PageContext,
		consultation.Topic,
		consultation.Note,
		consultation.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert consultation: %w", err)
	}

	logger.Info("Consultation recorded",
		zap.String("consultation_id", consultation.ID),
		zap.String("page_context", consultation.PageContext),
	)

	return nil
}

func (c *Client) InsertTurnRecord(ctx context.Context, record *models.TurnRecord) error {
	query := `
		INSERT INTO turn_records (id, query, page_context, status, confidence, iterations,
			issue_count, pii_detected, cached, cache_hit, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		record.ID,
		record.Query,
		record.PageContext,
		record.Status,
		record.Confidence,
		record.Iterations,
		record.IssueCount,
		boolToInt(record.PIIDetected),
		boolToInt(record.Cached),
		boolToInt(record.CacheHit),
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert turn record: %w", err)
	}

	return nil
}

func (c *Client) GetRecentTurns(ctx context.Context, limit int) ([]models.TurnRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, query, page_context, status, confidence, iterations, issue_count,
			pii_detected, cached, cache_hit, latency_ms, created_at
		FROM turn_records
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent turns: %w", err)
	}
	defer rows.Close()

	var records []models.TurnRecord
	for rows.Next() {
		var r models.TurnRecord
		var createdAt int64
		var piiDetected, cached, cacheHit int

		err := rows.Scan(&r.ID, &r.Query, &r.PageContext, &r.Status, &r.Confidence,
			&r.Iterations, &r.IssueCount, &piiDetected, &cached, &cacheHit, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.PIIDetected = piiDetected == 1
		r.Cached = cached == 1
		r.CacheHit = cacheHit == 1
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
