package tools

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/concierge-agent/backend/internal/storage/sqlite"
	"github.com/concierge-agent/backend/internal/vector/milvus"
	"github.com/concierge-agent/backend/pkg/logger"
)

// Embedder produces a query embedding for semantic KB search.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// KBSearch retrieves knowledge-base passages. It prefers semantic search
// over the vector store and falls back to SQLite keyword matching when the
// vector store is unconfigured or the semantic path fails.
type KBSearch struct {
	db       *sqlite.Client
	vector   *milvus.Client
	embedder Embedder
	topK     int
}

func NewKBSearch(db *sqlite.Client, vector *milvus.Client, embedder Embedder) *KBSearch {
	return &KBSearch{
		db:       db,
		vector:   vector,
		embedder: embedder,
		topK:     5,
	}
}

func (t *KBSearch) Name() string {
	return NameSearchKB
}

func (t *KBSearch) Applicable(_ Request) bool {
	return true
}

func (t *KBSearch) Invoke(ctx context.Context, req Request) (string, error) {
	if t.vector != nil && t.embedder != nil {
		text, err := t.semanticSearch(ctx, req)
		if err == nil {
			return text, nil
		}
		logger.Warn("Semantic KB search failed, falling back to keyword search", zap.Error(err))
	}

	return t.keywordSearch(ctx, req)
}

func (t *KBSearch) semanticSearch(ctx context.Context, req Request) (string, error) {
	embedding, err := t.embedder.GenerateEmbedding(ctx, req.Query)
	if err != nil {
		return "", fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := t.vector.Search(ctx, embedding, t.topK, "")
	if err != nil {
		return "", err
	}

	if len(results) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("Knowledge base passages:\n")
	for _, result := range results {
		fmt.Fprintf(&sb, "- %s\n", result.Text)
	}

	return sb.String(), nil
}

func (t *KBSearch) keywordSearch(ctx context.Context, req Request) (string, error) {
	chunks, err := t.db.SearchChunks(ctx, keywordTerms(req.Query), t.topK)
	if err != nil {
		return "", fmt.Errorf("keyword search failed: %w", err)
	}

	if len(chunks) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("Knowledge base passages:\n")
	for _, chunk := range chunks {
		fmt.Fprintf(&sb, "- %s\n", chunk.Text)
	}

	return sb.String(), nil
}

var stopwords = map[string]bool{
	"what": true, "when": true, "where": true, "which": true, "who": true,
	"how": true, "does": true, "do": true, "can": true, "your": true,
	"you": true, "the": true, "a": true, "an": true, "is": true, "are": true,
	"about": true, "with": true, "have": true, "this": true, "that": true,
	"much": true, "many": true, "there": true, "offer": true, "tell": true,
	"me": true, "more": true, "please": true,
}

// keywordTerms keeps the discriminating words of a query; question words
// and filler match every chunk and would make the AND query useless.
func keywordTerms(query string) []string {
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, "?!.,;:'\"")
		if len(word) < 3 || stopwords[word] {
			continue
		}
		terms = append(terms, word)
		if len(terms) == 4 {
			break
		}
	}
	return terms
}
