package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/concierge-agent/backend/internal/cache"
	"github.com/concierge-agent/backend/internal/cache/memory"
	"github.com/concierge-agent/backend/internal/llm"
	"github.com/concierge-agent/backend/internal/pii"
	"github.com/concierge-agent/backend/internal/reflection"
	"github.com/concierge-agent/backend/internal/storage/models"
)

type fakeGenerator struct {
	drafts []string
	err    error
	calls  int
}

func (g *fakeGenerator) GenerateDraft(_ context.Context, _ string, _ map[string]string, _ []llm.Message, _ string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	idx := g.calls - 1
	if idx >= len(g.drafts) {
		idx = len(g.drafts) - 1
	}
	return g.drafts[idx], nil
}

type fakeReflector struct {
	verdicts [][]reflection.Issue
	err      error
	calls    int
}

func (r *fakeReflector) Evaluate(_ context.Context, _ string, _ map[string]string) ([]reflection.Issue, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	idx := r.calls - 1
	if idx >= len(r.verdicts) {
		idx = len(r.verdicts) - 1
	}
	return r.verdicts[idx], nil
}

type fakeTools struct {
	outputs map[string]string
	calls   int
}

func (t *fakeTools) Collect(_ context.Context, _, _ string) map[string]string {
	t.calls++
	return t.outputs
}

type cleanScanner struct{}

func (cleanScanner) Scan(text string) (string, []pii.Detection) {
	return text, nil
}

var blockingIssue = reflection.Issue{
	CheckID:  "follow_up_marker",
	Message:  "response does not end with a follow-up question",
	Severity: reflection.SeverityBlocking,
}

func newTestController(store cache.Store, gen *fakeGenerator, ref *fakeReflector, scanner Scanner) *Controller {
	if scanner == nil {
		scanner = cleanScanner{}
	}
	return NewController(store, &fakeTools{outputs: map[string]string{"search_kb": "We offer design services."}}, gen, ref, scanner, nil)
}

func TestRespondCleanPass(t *testing.T) {
	store := memory.NewStore(0)
	gen := &fakeGenerator{drafts: []string{"We offer design services. Do you have any other questions?"}}
	ref := &fakeReflector{verdicts: [][]reflection.Issue{nil}}

	c := newTestController(store, gen, ref, nil)

	result, err := c.Respond(context.Background(), "What services do you offer?", "services", nil)
	if err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}

	if result.Status != StatusPassed {
		t.Errorf("status = %q, want %q", result.Status, StatusPassed)
	}
	if result.Confidence != ConfidencePassed {
		t.Errorf("confidence = %v, want %v", result.Confidence, ConfidencePassed)
	}
	if result.Iterations != 0 {
		t.Errorf("iterations = %d, want 0", result.Iterations)
	}
	if !result.Cached {
		t.Error("clean passing response should be cached")
	}
	if result.CacheHit {
		t.Error("first turn should not be a cache hit")
	}

	entry, ok, err := store.Get(context.Background(), "services", "What services do you offer?")
	if err != nil || !ok {
		t.Fatalf("expected cached entry, ok=%v err=%v", ok, err)
	}
	if entry.ResponseText != result.ResponseText {
		t.Errorf("cached text = %q, want %q", entry.ResponseText, result.ResponseText)
	}
	if entry.QualityScore != ConfidencePassed {
		t.Errorf("quality score = %v, want %v", entry.QualityScore, ConfidencePassed)
	}
}

func TestRespondRegeneratesUntilClean(t *testing.T) {
	gen := &fakeGenerator{drafts: []string{"Bad draft.", "We offer design services. Any other questions?"}}
	ref := &fakeReflector{verdicts: [][]reflection.Issue{
		{blockingIssue},
		nil,
	}}

	c := newTestController(memory.NewStore(0), gen, ref, nil)

	result, err := c.Respond(context.Background(), "what do you do", "home", nil)
	if err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}

	if result.Status != StatusPassed {
		t.Errorf("status = %q, want %q", result.Status, StatusPassed)
	}
	if result.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", result.Iterations)
	}
	if gen.calls != 2 {
		t.Errorf("generator called %d times, want 2", gen.calls)
	}
}

func TestRespondIterationCapAcceptsWithIssues(t *testing.T) {
	store := memory.NewStore(0)
	gen := &fakeGenerator{drafts: []string{"Still bad."}}
	ref := &fakeReflector{verdicts: [][]reflection.Issue{{blockingIssue}}}

	c := newTestController(store, gen, ref, nil)

	result, err := c.Respond(context.Background(), "pricing please", "pricing", nil)
	if err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}

	if result.Status != StatusAcceptedWithIssues {
		t.Errorf("status = %q, want %q", result.Status, StatusAcceptedWithIssues)
	}
	if result.Confidence != ConfidenceAcceptedWithIssues {
		t.Errorf("confidence = %v, want %v", result.Confidence, ConfidenceAcceptedWithIssues)
	}
	if result.Iterations != MaxIterations {
		t.Errorf("iterations = %d, want %d", result.Iterations, MaxIterations)
	}
	// 1 initial generation plus MaxIterations regenerations.
	if gen.calls != MaxIterations+1 {
		t.Errorf("generator called %d times, want %d", gen.calls, MaxIterations+1)
	}
	if result.Cached {
		t.Error("accepted_with_issues response must not be cached")
	}

	if _, ok, _ := store.Get(context.Background(), "pricing", "pricing please"); ok {
		t.Error("cache should be empty after accepted_with_issues turn")
	}
}

func TestRespondToolsCollectedOnce(t *testing.T) {
	tools := &fakeTools{outputs: map[string]string{"get_pricing": "- Starter: $500 per project"}}
	gen := &fakeGenerator{drafts: []string{"Draft one.", "Draft two.", "Draft three.", "Draft four."}}
	ref := &fakeReflector{verdicts: [][]reflection.Issue{{blockingIssue}}}

	c := NewController(memory.NewStore(0), tools, gen, ref, cleanScanner{}, nil)

	if _, err := c.Respond(context.Background(), "how much", "pricing", nil); err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}

	if tools.calls != 1 {
		t.Errorf("tools collected %d times, want 1", tools.calls)
	}
}

func TestRespondPIIRedactedAndNeverCached(t *testing.T) {
	store := memory.NewStore(0)
	gen := &fakeGenerator{drafts: []string{"You can reach us at test@example.com. Any other questions?"}}
	ref := &fakeReflector{verdicts: [][]reflection.Issue{nil}}

	c := newTestController(store, gen, ref, pii.NewFilter(false))

	result, err := c.Respond(context.Background(), "how do I contact you", "contact", nil)
	if err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}

	if !result.PIIDetected {
		t.Error("expected PII detection")
	}
	if strings.Contains(result.ResponseText, "test@example.com") {
		t.Errorf("response still contains the address: %q", result.ResponseText)
	}
	if !strings.Contains(result.ResponseText, pii.Placeholder) {
		t.Errorf("response missing placeholder: %q", result.ResponseText)
	}
	if result.Cached {
		t.Error("redacted response must not be cached")
	}
	if _, ok, _ := store.Get(context.Background(), "contact", "how do I contact you"); ok {
		t.Error("cache should be empty after a redacted turn")
	}
}

func TestRespondCacheHitShortCircuits(t *testing.T) {
	store := memory.NewStore(0)
	if err := store.Put(context.Background(), "pricing", "How much is the starter plan?", "The Starter plan is $500 per project. Any other questions?", ConfidencePassed); err != nil {
		t.Fatalf("Put: %v", err)
	}

	gen := &fakeGenerator{drafts: []string{"should not be used"}}
	ref := &fakeReflector{verdicts: [][]reflection.Issue{nil}}

	c := newTestController(store, gen, ref, nil)

	result, err := c.Respond(context.Background(), "how much IS the starter   plan?", "pricing", nil)
	if err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}

	if !result.CacheHit {
		t.Fatal("expected cache hit")
	}
	if result.Status != StatusPassed {
		t.Errorf("status = %q, want %q", result.Status, StatusPassed)
	}
	if result.Confidence != ConfidencePassed {
		t.Errorf("confidence = %v, want %v", result.Confidence, ConfidencePassed)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times on a cache hit, want 0", gen.calls)
	}
	if ref.calls != 0 {
		t.Errorf("reflector called %d times on a cache hit, want 0", ref.calls)
	}
}

type capturingTurnStore struct {
	records []*models.TurnRecord
}

func (s *capturingTurnStore) InsertTurnRecord(_ context.Context, record *models.TurnRecord) error {
	s.records = append(s.records, record)
	return nil
}

func TestTurnTelemetryRedactsQuery(t *testing.T) {
	turns := &capturingTurnStore{}
	gen := &fakeGenerator{drafts: []string{"We offer design services. Any other questions?"}}
	ref := &fakeReflector{verdicts: [][]reflection.Issue{nil}}

	c := NewController(memory.NewStore(0), &fakeTools{outputs: map[string]string{}}, gen, ref, pii.NewFilter(false), turns)

	query := "my email is test@example.com, can you help?"
	if _, err := c.Respond(context.Background(), query, "contact", nil); err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}

	if len(turns.records) != 1 {
		t.Fatalf("records = %d, want 1", len(turns.records))
	}
	recorded := turns.records[0].Query
	if strings.Contains(recorded, "test@example.com") {
		t.Errorf("telemetry still holds the address: %q", recorded)
	}
	if !strings.Contains(recorded, pii.Placeholder) {
		t.Errorf("telemetry query missing placeholder: %q", recorded)
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string, string) (*cache.Entry, bool, error) {
	return nil, false, errors.New("backend down")
}

func (failingStore) Put(context.Context, string, string, string, float64) error {
	return errors.New("backend down")
}

func (failingStore) Sweep(context.Context) (int, error) {
	return 0, errors.New("backend down")
}

func TestRespondCacheFailureDegradesToMiss(t *testing.T) {
	gen := &fakeGenerator{drafts: []string{"We offer design services. Any other questions?"}}
	ref := &fakeReflector{verdicts: [][]reflection.Issue{nil}}

	c := newTestController(failingStore{}, gen, ref, nil)

	result, err := c.Respond(context.Background(), "what do you do", "home", nil)
	if err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}

	if result.CacheHit {
		t.Error("failed lookup must read as a miss")
	}
	if result.Status != StatusPassed {
		t.Errorf("status = %q, want %q", result.Status, StatusPassed)
	}
	if result.Cached {
		t.Error("failed write must not be reported as cached")
	}
}

func TestRespondGenerationFailureIsFatal(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	ref := &fakeReflector{verdicts: [][]reflection.Issue{nil}}

	c := newTestController(memory.NewStore(0), gen, ref, nil)

	if _, err := c.Respond(context.Background(), "hello", "home", nil); err == nil {
		t.Fatal("expected error when generation fails")
	}
}

func TestRespondReflectionFailureIsFatal(t *testing.T) {
	gen := &fakeGenerator{drafts: []string{"Draft."}}
	ref := &fakeReflector{err: errors.New("verifier unavailable")}

	c := newTestController(memory.NewStore(0), gen, ref, nil)

	if _, err := c.Respond(context.Background(), "hello", "home", nil); err == nil {
		t.Fatal("expected error when reflection fails")
	}
}

func TestRespondHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &fakeGenerator{drafts: []string{"Draft."}}
	ref := &fakeReflector{verdicts: [][]reflection.Issue{nil}}

	c := newTestController(memory.NewStore(0), gen, ref, nil)

	if _, err := c.Respond(ctx, "hello", "home", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times after cancellation, want 0", gen.calls)
	}
}

func TestRepeatedLookupsAreIdempotent(t *testing.T) {
	store := memory.NewStore(0)
	gen := &fakeGenerator{drafts: []string{"We offer design services. Any other questions?"}}
	ref := &fakeReflector{verdicts: [][]reflection.Issue{nil}}

	c := newTestController(store, gen, ref, nil)

	first, err := c.Respond(context.Background(), "What services do you offer?", "services", nil)
	if err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}

	for i := 0; i < 3; i++ {
		result, err := c.Respond(context.Background(), "What services do you offer?", "services", nil)
		if err != nil {
			t.Fatalf("Respond returned error: %v", err)
		}
		if !result.CacheHit {
			t.Fatalf("lookup %d missed the cache", i+1)
		}
		if result.ResponseText != first.ResponseText {
			t.Errorf("lookup %d text = %q, want %q", i+1, result.ResponseText, first.ResponseText)
		}
	}

	if gen.calls != 1 {
		t.Errorf("generator called %d times across repeated lookups, want 1", gen.calls)
	}
}
