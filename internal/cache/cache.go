package cache

import (
	"context"
	"strings"
	"time"

	"github.com/concierge-agent/backend/pkg/utils"
)

// DefaultTTL is the fixed entry lifetime. Expiry is checked lazily on Get;
// Sweep exists for proactive cleanup but correctness never depends on it.
const DefaultTTL = 30 * 24 * time.Hour

type Entry struct {
	Key          string
	PageContext  string
	Query        string
	ResponseText string
	QualityScore float64
	CachedAt     time.Time
	HitCount     int64
}

// Store is the quality-gated response cache. Admission policy (PII-clean and
// blocking-clean) is asserted by the workflow controller; the store does not
// re-validate. Get and Put are atomic with respect to a single key, and a
// live Get increments the entry's hit count by exactly one.
type Store interface {
	Get(ctx context.Context, pageContext, query string) (*Entry, bool, error)
	Put(ctx context.Context, pageContext, query, responseText string, qualityScore float64) error
	Sweep(ctx context.Context) (int, error)
}

// NormalizeQuery case-folds, trims, and collapses internal whitespace.
// Lookup is exact-key after normalization; near-duplicate phrasings do not
// share entries.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// EntryKey derives the storage key from page context and normalized query.
func EntryKey(pageContext, query string) string {
	return utils.Fingerprint(pageContext + "\x00" + NormalizeQuery(query))
}
