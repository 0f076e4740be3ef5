package tools

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/concierge-agent/backend/pkg/logger"
)

const (
	NameSearchKB            = "search_kb"
	NameGetPricing          = "get_pricing"
	NameRequestConsultation = "request_consultation"
)

// Request carries what a tool needs to produce grounding text for one turn.
type Request struct {
	Query       string
	PageContext string
}

type Tool interface {
	Name() string
	// Applicable decides whether the tool should run for this turn.
	Applicable(req Request) bool
	// Invoke returns grounding text. Failures are recoverable upstream.
	Invoke(ctx context.Context, req Request) (string, error)
}

// Runner invokes every applicable tool with an independent timeout and
// collects grounding text by tool name. A tool failure or timeout drops
// that tool's grounding and never aborts the turn.
type Runner struct {
	tools   []Tool
	timeout time.Duration
}

func NewRunner(timeout time.Duration, tools ...Tool) *Runner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Runner{tools: tools, timeout: timeout}
}

func (r *Runner) Collect(ctx context.Context, query, pageContext string) map[string]string {
	req := Request{Query: query, PageContext: pageContext}
	outputs := make(map[string]string)

	for _, tool := range r.tools {
		if !tool.Applicable(req) {
			continue
		}

		toolCtx, cancel := context.WithTimeout(ctx, r.timeout)
		text, err := tool.Invoke(toolCtx, req)
		cancel()

		if err != nil {
			logger.Warn("Tool invocation failed, continuing without its grounding",
				zap.String("tool", tool.Name()),
				zap.Error(err),
			)
			continue
		}

		if strings.TrimSpace(text) == "" {
			continue
		}

		outputs[tool.Name()] = text
	}

	logger.Debug("Tool grounding collected",
		zap.Int("tools", len(outputs)),
		zap.String("page_context", pageContext),
	)

	return outputs
}

func containsAny(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
