package reflection

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/concierge-agent/backend/pkg/logger"
)

// ClaimVerifier compares factual assertions in a response against grounding
// text and returns the unsupported ones. The production implementation is
// the LLM client; tests inject a fake.
type ClaimVerifier interface {
	VerifyClaims(ctx context.Context, response string, grounding map[string]string) ([]string, error)
}

type Config struct {
	MinLength             int
	MaxLength             int
	FollowUpMarker        string
	ForbiddenServiceTerms []string
	BrandVocabulary       []string
	PricingTerms          []string
	ContactTerms          []string
	BulletThreshold       int
	ParagraphLimit        int
}

func DefaultConfig() Config {
	return Config{
		MinLength:             20,
		MaxLength:             2500,
		FollowUpMarker:        "any other questions",
		ForbiddenServiceTerms: defaultForbiddenServiceTerms,
		BrandVocabulary:       defaultBrandVocabulary,
		PricingTerms:          defaultPricingTerms,
		ContactTerms:          defaultContactTerms,
		BulletThreshold:       500,
		ParagraphLimit:        800,
	}
}

func (cfg *Config) normalize() {
	defaults := DefaultConfig()
	if cfg.MinLength == 0 {
		cfg.MinLength = defaults.MinLength
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = defaults.MaxLength
	}
	if cfg.FollowUpMarker == "" {
		cfg.FollowUpMarker = defaults.FollowUpMarker
	}
	if cfg.ForbiddenServiceTerms == nil {
		cfg.ForbiddenServiceTerms = defaults.ForbiddenServiceTerms
	}
	if cfg.BrandVocabulary == nil {
		cfg.BrandVocabulary = defaults.BrandVocabulary
	}
	if cfg.PricingTerms == nil {
		cfg.PricingTerms = defaults.PricingTerms
	}
	if cfg.ContactTerms == nil {
		cfg.ContactTerms = defaults.ContactTerms
	}
	if cfg.BulletThreshold == 0 {
		cfg.BulletThreshold = defaults.BulletThreshold
	}
	if cfg.ParagraphLimit == 0 {
		cfg.ParagraphLimit = defaults.ParagraphLimit
	}
}

// Engine validates a draft response against the check list. Deterministic
// checks run first in fixed order; the claim verifier is the expensive step
// and only runs when the deterministic checks found nothing blocking.
type Engine struct {
	cfg      Config
	checks   []check
	verifier ClaimVerifier
}

func NewEngine(verifier ClaimVerifier, cfg Config) *Engine {
	cfg.normalize()

	return &Engine{
		cfg:      cfg,
		checks:   deterministicChecks(),
		verifier: verifier,
	}
}

// Evaluate is a pure function of its inputs: the same draft and tool outputs
// always produce the same deterministic issues. Verifier failure is an LLM
// call failure and is surfaced to the caller rather than swallowed.
func (e *Engine) Evaluate(ctx context.Context, response string, toolOutputs map[string]string) ([]Issue, error) {
	grounding := newGroundingView(toolOutputs)

	var issues []Issue
	for _, c := range e.checks {
		for _, msg := range c.fn(e.cfg, response, grounding) {
			issues = append(issues, Issue{CheckID: c.id, Message: msg, Severity: c.severity})
		}
	}

	if HasBlocking(issues) {
		logger.Debug("Reflection found blocking issues, skipping claim verification",
			zap.Int("issues", len(issues)),
		)
		return issues, nil
	}

	if e.verifier != nil {
		claims, err := e.verifier.VerifyClaims(ctx, response, toolOutputs)
		if err != nil {
			return nil, fmt.Errorf("claim verification failed: %w", err)
		}

		for _, claim := range claims {
			issues = append(issues, Issue{
				CheckID:  CheckClaims,
				Message:  fmt.Sprintf("unsupported claim: %s", claim),
				Severity: SeverityBlocking,
			})
		}
	}

	logger.Debug("Reflection completed", zap.Int("issues", len(issues)))

	return issues, nil
}

// Feedback folds blocking issues into a corrective instruction for the next
// generation attempt. Advisory issues are retained for observability only.
func Feedback(issues []Issue) string {
	var sb []byte
	for _, issue := range issues {
		if issue.Severity != SeverityBlocking {
			continue
		}
		sb = append(sb, "- "...)
		sb = append(sb, issue.Message...)
		sb = append(sb, '\n')
	}
	return string(sb)
}
