package kb

import (
	"context"
	"strings"
	"testing"

	"github.com/concierge-agent/backend/internal/storage/sqlite"
)

func newTestDB(t *testing.T) *sqlite.Client {
	t.Helper()

	db, err := sqlite.NewClient(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	return db
}

func TestIngestArticle(t *testing.T) {
	db := newTestDB(t)
	in := NewIngestor(db, nil, nil)

	article, err := in.IngestArticle(context.Background(), "Our Design Services", "services",
		"We offer branding, web design, and product design services for startups.")
	if err != nil {
		t.Fatalf("IngestArticle: %v", err)
	}

	if article.Slug != "our-design-services" {
		t.Errorf("slug = %q, want our-design-services", article.Slug)
	}

	chunks, err := db.SearchChunks(context.Background(), []string{"branding"}, 10)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if chunks[0].ArticleID != article.ID {
		t.Errorf("chunk article = %q, want %q", chunks[0].ArticleID, article.ID)
	}
}

func TestIngestArticleRejectsEmpty(t *testing.T) {
	in := NewIngestor(newTestDB(t), nil, nil)

	if _, err := in.IngestArticle(context.Background(), "Empty", "services", "   \n"); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestChunkText(t *testing.T) {
	words := make([]string, 500)
	for i := range words {
		words[i] = "word"
	}
	content := strings.Join(words, " ")

	chunks := chunkText(content, 180, 20)

	if len(chunks) < 3 {
		t.Fatalf("chunks = %d, want at least 3", len(chunks))
	}
	for i, chunk := range chunks {
		n := len(strings.Fields(chunk))
		if n > 180 {
			t.Errorf("chunk %d has %d words, cap is 180", i, n)
		}
	}

	short := chunkText("just a few words", 180, 20)
	if len(short) != 1 {
		t.Errorf("short content chunks = %d, want 1", len(short))
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Our Design Services", "our-design-services"},
		{"Pricing: Plans & Add-ons", "pricing-plans-add-ons"},
		{"  FAQ  ", "faq"},
	}

	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
