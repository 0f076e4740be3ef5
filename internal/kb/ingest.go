package kb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/concierge-agent/backend/internal/storage/models"
	"github.com/concierge-agent/backend/internal/storage/sqlite"
	"github.com/concierge-agent/backend/internal/vector/milvus"
	"github.com/concierge-agent/backend/pkg/logger"
)

// Embedder turns chunk text into a vector for semantic indexing.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Ingestor writes knowledge base articles into SQLite and, when a vector
// store is configured, indexes each chunk in Milvus. The vector index is
// optional; keyword search over SQLite works without it.
type Ingestor struct {
	db           *sqlite.Client
	vectorDB     *milvus.Client
	embedder     Embedder
	chunkWords   int
	overlapWords int
}

func NewIngestor(db *sqlite.Client, vectorDB *milvus.Client, embedder Embedder) *Ingestor {
	return &Ingestor{
		db:           db,
		vectorDB:     vectorDB,
		embedder:     embedder,
		chunkWords:   180,
		overlapWords: 20,
	}
}

// IngestArticle stores one article and its chunks. Vector indexing failures
// on individual chunks are logged and skipped; the SQLite copy is
// authoritative.
func (in *Ingestor) IngestArticle(ctx context.Context, title, topic, content string) (*models.KBArticle, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("article content is empty")
	}

	now := time.Now()
	article := &models.KBArticle{
		ID:        uuid.New().String(),
		Slug:      slugify(title),
		Title:     title,
		Topic:     topic,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := in.db.InsertArticle(ctx, article); err != nil {
		return nil, fmt.Errorf("failed to insert article: %w", err)
	}

	chunks := chunkText(content, in.chunkWords, in.overlapWords)

	var vectorChunks []milvus.Chunk
	for i, text := range chunks {
		chunk := &models.KBChunk{
			ID:         fmt.Sprintf("%s_chunk_%d", article.ID, i),
			ArticleID:  article.ID,
			ChunkIndex: i,
			Text:       text,
			CreatedAt:  now,
		}

		if err := in.db.InsertChunk(ctx, chunk); err != nil {
			return nil, fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}

		if in.vectorDB == nil || in.embedder == nil {
			continue
		}

		embedding, err := in.embedder.GenerateEmbedding(ctx, text)
		if err != nil {
			logger.Warn("Failed to embed chunk, skipping vector index",
				zap.String("chunk_id", chunk.ID),
				zap.Error(err),
			)
			continue
		}

		vectorChunks = append(vectorChunks, milvus.Chunk{
			ID:        chunk.ID,
			Embedding: embedding,
			Text:      text,
			ArticleID: article.ID,
			Topic:     topic,
			Timestamp: now,
		})
	}

	if len(vectorChunks) > 0 {
		if err := in.vectorDB.Insert(ctx, vectorChunks); err != nil {
			logger.Warn("Failed to index chunks in vector store",
				zap.String("article_id", article.ID),
				zap.Error(err),
			)
		}
	}

	logger.Info("Article ingested",
		zap.String("article_id", article.ID),
		zap.String("topic", topic),
		zap.Int("chunks", len(chunks)),
		zap.Int("indexed", len(vectorChunks)),
	)

	return article, nil
}

func chunkText(content string, chunkWords, overlapWords int) []string {
	words := strings.Fields(content)
	if len(words) <= chunkWords {
		return []string{strings.Join(words, " ")}
	}

	step := chunkWords - overlapWords
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + chunkWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}

	return chunks
}

func slugify(title string) string {
	var sb strings.Builder
	lastDash := true

	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				sb.WriteRune('-')
				lastDash = true
			}
		}
	}

	return strings.TrimSuffix(sb.String(), "-")
}
