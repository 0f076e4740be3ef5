package workflow

import (
	"github.com/concierge-agent/backend/internal/llm"
	"github.com/concierge-agent/backend/internal/reflection"
)

type Status string

const (
	StatusInProgress         Status = "in_progress"
	StatusPassed             Status = "passed"
	StatusAcceptedWithIssues Status = "accepted_with_issues"
	StatusFailed             Status = "failed"
)

// Confidence is determined entirely by how the turn ended; no other values
// are ever produced.
const (
	ConfidencePassed             = 0.9
	ConfidenceAcceptedWithIssues = 0.5
	ConfidenceRegenerating       = 0.3
)

// MaxIterations caps regeneration attempts per turn. It is a hard ceiling:
// a draft still failing after the last regeneration is accepted with issues.
const MaxIterations = 3

type state int

const (
	stateLookup state = iota
	stateGenerate
	stateReflect
	stateAccept
	stateEnd
)

// turn is the mutable per-request record. It lives for one Respond call and
// is never shared between goroutines.
type turn struct {
	id          string
	query       string
	pageContext string
	history     []llm.Message

	toolOutputs map[string]string
	draft       string
	feedback    string
	iterations  int
	issues      []reflection.Issue

	status      Status
	confidence  float64
	cacheHit    bool
	cached      bool
	piiDetected bool
}

type Result struct {
	TurnID       string
	ResponseText string
	Confidence   float64
	Status       Status
	Issues       []reflection.Issue
	Iterations   int
	CacheHit     bool
	Cached       bool
	PIIDetected  bool
	LatencyMS    int
}
