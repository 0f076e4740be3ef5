package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/concierge-agent/backend/internal/cache"
	"github.com/concierge-agent/backend/internal/llm"
	"github.com/concierge-agent/backend/internal/metrics"
	"github.com/concierge-agent/backend/internal/pii"
	"github.com/concierge-agent/backend/internal/reflection"
	"github.com/concierge-agent/backend/internal/storage/models"
	"github.com/concierge-agent/backend/pkg/logger"
)

// Generator produces a draft answer from the query, grounding, history, and
// the corrective feedback accumulated across regeneration attempts.
type Generator interface {
	GenerateDraft(ctx context.Context, query string, grounding map[string]string, history []llm.Message, feedback string) (string, error)
}

// Reflector validates a draft against the check list.
type Reflector interface {
	Evaluate(ctx context.Context, response string, toolOutputs map[string]string) ([]reflection.Issue, error)
}

// ToolRunner collects grounding text from the applicable tools. Tool
// failures are handled inside the runner; Collect never fails the turn.
type ToolRunner interface {
	Collect(ctx context.Context, query, pageContext string) map[string]string
}

// Scanner detects and redacts personal data in the final draft.
type Scanner interface {
	Scan(text string) (string, []pii.Detection)
}

// TurnStore persists per-turn telemetry. Optional; nil disables it.
type TurnStore interface {
	InsertTurnRecord(ctx context.Context, record *models.TurnRecord) error
}

// Controller runs one turn through the LOOKUP, GENERATE, REFLECT, ACCEPT,
// END state machine. All collaborators are injected; the cache is the only
// state shared between concurrent turns.
type Controller struct {
	cache         cache.Store
	tools         ToolRunner
	generator     Generator
	reflector     Reflector
	scanner       Scanner
	turns         TurnStore
	maxIterations int
}

func NewController(cacheStore cache.Store, tools ToolRunner, generator Generator, reflector Reflector, scanner Scanner, turns TurnStore) *Controller {
	return &Controller{
		cache:         cacheStore,
		tools:         tools,
		generator:     generator,
		reflector:     reflector,
		scanner:       scanner,
		turns:         turns,
		maxIterations: MaxIterations,
	}
}

// Respond answers one visitor query. The caller always receives a final
// response plus its status; only an LLM call failure produces an error
// instead of text.
func (c *Controller) Respond(ctx context.Context, query, pageContext string, history []llm.Message) (*Result, error) {
	startTime := time.Now()

	if pageContext == "" {
		pageContext = "unknown"
	}

	t := &turn{
		id:          uuid.New().String(),
		query:       query,
		pageContext: pageContext,
		history:     history,
		status:      StatusInProgress,
		confidence:  ConfidenceRegenerating,
	}

	logger.Info("Turn started",
		zap.String("turn_id", t.id),
		zap.String("page_context", pageContext),
	)

	current := stateLookup
	for current != stateEnd {
		if err := ctx.Err(); err != nil {
			// Caller cancelled; discard partial work, cache untouched.
			return nil, err
		}

		var err error
		switch current {
		case stateLookup:
			current = c.lookup(ctx, t)
		case stateGenerate:
			current, err = c.generate(ctx, t)
		case stateReflect:
			current, err = c.reflect(ctx, t)
		case stateAccept:
			current = c.accept(ctx, t)
		}

		if err != nil {
			t.status = StatusFailed
			c.record(t, startTime)
			return nil, err
		}
	}

	result := &Result{
		TurnID:       t.id,
		ResponseText: t.draft,
		Confidence:   t.confidence,
		Status:       t.status,
		Issues:       t.issues,
		Iterations:   t.iterations,
		CacheHit:     t.cacheHit,
		Cached:       t.cached,
		PIIDetected:  t.piiDetected,
		LatencyMS:    int(time.Since(startTime).Milliseconds()),
	}

	c.record(t, startTime)

	logger.Info("Turn completed",
		zap.String("turn_id", t.id),
		zap.String("status", string(t.status)),
		zap.Float64("confidence", t.confidence),
		zap.Int("iterations", t.iterations),
		zap.Bool("cache_hit", t.cacheHit),
		zap.Int("latency_ms", result.LatencyMS),
	)

	return result, nil
}

func (c *Controller) lookup(ctx context.Context, t *turn) state {
	entry, ok, err := c.cache.Get(ctx, t.pageContext, t.query)
	if err != nil {
		// Backend trouble is a miss; the cache is an optimization, not a
		// correctness dependency.
		logger.Warn("Cache lookup failed, treating as miss", zap.Error(err))
		metrics.CacheMisses.Inc()
		return stateGenerate
	}
	if !ok {
		metrics.CacheMisses.Inc()
		return stateGenerate
	}

	metrics.CacheHits.Inc()

	t.draft = entry.ResponseText
	t.confidence = entry.QualityScore
	t.status = StatusPassed
	t.cacheHit = true

	logger.Info("Cache hit, skipping generation",
		zap.String("turn_id", t.id),
		zap.Int64("hit_count", entry.HitCount),
	)

	return stateEnd
}

func (c *Controller) generate(ctx context.Context, t *turn) (state, error) {
	if t.toolOutputs == nil {
		t.toolOutputs = c.tools.Collect(ctx, t.query, t.pageContext)
	}

	draft, err := c.generator.GenerateDraft(ctx, t.query, t.toolOutputs, t.history, t.feedback)
	if err != nil {
		return stateEnd, fmt.Errorf("generation failed: %w", err)
	}

	t.draft = draft
	return stateReflect, nil
}

func (c *Controller) reflect(ctx context.Context, t *turn) (state, error) {
	issues, err := c.reflector.Evaluate(ctx, t.draft, t.toolOutputs)
	if err != nil {
		return stateEnd, fmt.Errorf("reflection failed: %w", err)
	}

	t.issues = issues

	if !reflection.HasBlocking(issues) {
		t.status = StatusPassed
		t.confidence = ConfidencePassed
		return stateAccept, nil
	}

	if t.iterations < c.maxIterations {
		t.iterations++
		t.feedback = reflection.Feedback(issues)
		t.confidence = ConfidenceRegenerating

		logger.Info("Draft rejected, regenerating",
			zap.String("turn_id", t.id),
			zap.Int("iteration", t.iterations),
			zap.Int("blocking_issues", len(issues)),
		)

		return stateGenerate, nil
	}

	// Iteration cap reached; ship the best draft we have at lower
	// confidence rather than loop forever.
	t.status = StatusAcceptedWithIssues
	t.confidence = ConfidenceAcceptedWithIssues

	logger.Warn("Iteration cap reached, accepting draft with issues",
		zap.String("turn_id", t.id),
		zap.Int("blocking_issues", len(issues)),
	)

	return stateAccept, nil
}

func (c *Controller) accept(ctx context.Context, t *turn) state {
	clean, detections := c.scanner.Scan(t.draft)
	if len(detections) > 0 {
		t.draft = clean
		t.piiDetected = true
		metrics.PIIDetections.Add(float64(len(detections)))

		logger.Info("PII redacted, caching suppressed",
			zap.String("turn_id", t.id),
			zap.Int("detections", len(detections)),
		)
	}

	if !t.piiDetected && t.status == StatusPassed && t.iterations <= c.maxIterations {
		if err := c.cache.Put(ctx, t.pageContext, t.query, t.draft, t.confidence); err != nil {
			logger.Warn("Cache write failed, dropping", zap.Error(err))
		} else {
			t.cached = true
		}
	}

	return stateEnd
}

func (c *Controller) record(t *turn, startTime time.Time) {
	metrics.TurnsTotal.WithLabelValues(string(t.status)).Inc()
	metrics.ConfidenceScore.Observe(t.confidence)
	metrics.ReflectionIterations.Observe(float64(t.iterations))
	metrics.TurnDuration.Observe(time.Since(startTime).Seconds())

	if c.turns == nil {
		return
	}

	// Telemetry is best effort and must not block or fail the turn. The
	// visitor's raw query may itself carry personal data, so it is scanned
	// before it is persisted; the filter only ever sees the draft otherwise.
	recordedQuery, _ := c.scanner.Scan(t.query)

	record := &models.TurnRecord{
		ID:          t.id,
		Query:       recordedQuery,
		PageContext: t.pageContext,
		Status:      string(t.status),
		Confidence:  t.confidence,
		Iterations:  t.iterations,
		IssueCount:  len(t.issues),
		PIIDetected: t.piiDetected,
		Cached:      t.cached,
		CacheHit:    t.cacheHit,
		LatencyMS:   int(time.Since(startTime).Milliseconds()),
		CreatedAt:   time.Now(),
	}

	recordCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.turns.InsertTurnRecord(recordCtx, record); err != nil {
		logger.Warn("Failed to record turn telemetry", zap.Error(err))
	}
}
