package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/concierge-agent/backend/internal/metrics"
	"github.com/concierge-agent/backend/pkg/circuitbreaker"
	"github.com/concierge-agent/backend/pkg/logger"
	"github.com/concierge-agent/backend/pkg/retry"
)

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

type Message struct {
	Role    string
	Content string
}

type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(apiKey, model, embeddingModel string, temperature float32, maxTokens, timeoutSec int) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	if timeoutSec <= 0 {
		timeoutSec = 30
	}

	logger.Info("LLM client initialized",
		zap.String("model", model),
		zap.String("embedding_model", embeddingModel),
	)

	return &Client{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		temperature:    temperature,
		maxTokens:      maxTokens,
		timeout:        time.Duration(timeoutSec) * time.Second,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.SystemPrompt,
	})
	for _, m := range req.Messages {
		role := m.Role
		if role != openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			metrics.LLMTokensUsed.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var embedding []float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(c.embeddingModel),
				},
			)

			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}

			if len(resp.Data) == 0 {
				return fmt.Errorf("embedding response was empty")
			}

			embedding = make([]float32, len(resp.Data[0].Embedding))
			copy(embedding, resp.Data[0].Embedding)

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return embedding, nil
}

// GenerateDraft produces a draft answer grounded by tool outputs. Feedback
// from a prior reflection pass, when present, is appended as a corrective
// instruction so the model can repair the flagged problems.
func (c *Client) GenerateDraft(ctx context.Context, query string, grounding map[string]string, history []Message, feedback string) (string, error) {
	systemPrompt := `You are a friendly website concierge for a professional services agency.

Your responses must:
1. Answer ONLY from the provided grounding material
2. Quote prices exactly as written in the grounding material
3. Invite the visitor to book a consultation when discussing pricing or plans
4. Close by asking whether the visitor has any other questions
5. Say so plainly when the grounding material does not cover the question

Be warm, concise, and concrete.`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Visitor question: %s\n\nGrounding material:\n%s", query, formatGrounding(grounding))
	if feedback != "" {
		fmt.Fprintf(&sb, "\n\nYour previous draft had problems. Fix all of them:\n%s", feedback)
	}

	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, Message{Role: openai.ChatMessageRoleUser, Content: sb.String()})

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     messages,
	})

	if err != nil {
		return "", fmt.Errorf("failed to generate draft: %w", err)
	}

	logger.Info("Draft generated",
		zap.Int("draft_length", len(resp.Content)),
		zap.Bool("with_feedback", feedback != ""),
	)

	return resp.Content, nil
}

// VerifyClaims returns the factual assertions in response that the grounding
// material does not support. An empty slice means every claim checked out.
func (c *Client) VerifyClaims(ctx context.Context, response string, grounding map[string]string) ([]string, error) {
	systemPrompt := `You are a strict fact checker. Compare every factual assertion in the response
against the grounding material. An assertion is unsupported if the grounding
material neither states it nor directly implies it. Greetings, questions, and
offers to help are not factual assertions.

Return JSON only:
{"unsupported_claims": ["claim one", "claim two"]}

Return {"unsupported_claims": []} when everything is supported.`

	userPrompt := fmt.Sprintf("Response:\n%s\n\nGrounding material:\n%s", response, formatGrounding(grounding))

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []Message{{Role: openai.ChatMessageRoleUser, Content: userPrompt}},
		Temperature:  0.1,
		MaxTokens:    500,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to verify claims: %w", err)
	}

	claims, err := parseClaimVerdict(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse claim verdict: %w", err)
	}

	logger.Debug("Claims verified", zap.Int("unsupported", len(claims)))

	return claims, nil
}

func formatGrounding(grounding map[string]string) string {
	if len(grounding) == 0 {
		return "No grounding material available."
	}

	names := make([]string, 0, len(grounding))
	for name := range grounding {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "[%s]\n%s\n\n", name, grounding[name])
	}

	return strings.TrimSpace(sb.String())
}

func parseClaimVerdict(content string) ([]string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	// The model occasionally wraps the object in prose; recover the JSON body.
	if start := strings.Index(content, "{"); start > 0 {
		content = content[start:]
	}
	if end := strings.LastIndex(content, "}"); end >= 0 {
		content = content[:end+1]
	}

	var verdict struct {
		UnsupportedClaims []string `json:"unsupported_claims"`
	}

	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return nil, err
	}

	return verdict.UnsupportedClaims, nil
}
