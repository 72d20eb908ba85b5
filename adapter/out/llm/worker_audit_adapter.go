package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"triage_worker/core/domain"
	"triage_worker/pkg/apperr"
)

// AuditConfig holds the audit fallback adapter configuration.
type AuditConfig struct {
	APIKey     string
	Model      string
	Timeout    time.Duration
	Categories []string // allowed category ids the verdict must come from
	Intents    []string // allowed intent labels
}

// AuditAdapter implements out.AuditFallback over a chat completion
// constrained to the category and intent enums. Deliberate refusals come
// back as a typed outcome, never as an error.
type AuditAdapter struct {
	client     *openai.Client
	model      string
	timeout    time.Duration
	categories []string
	intents    []string
	allowed    map[string]bool
	cb         *gobreaker.CircuitBreaker
}

// DefaultAuditModel is the chat model used when none is configured.
const DefaultAuditModel = "gpt-4o-mini"

// NewAuditAdapter creates the adapter.
func NewAuditAdapter(cfg AuditConfig) *AuditAdapter {
	if cfg.Model == "" {
		cfg.Model = DefaultAuditModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	allowed := make(map[string]bool, len(cfg.Categories))
	for _, id := range cfg.Categories {
		allowed[id] = true
	}
	return &AuditAdapter{
		client:     openai.NewClient(cfg.APIKey),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		categories: cfg.Categories,
		intents:    cfg.Intents,
		allowed:    allowed,
		cb:         newBreaker("audit_fallback"),
	}
}

const auditSystemPrompt = `You are an email triage auditor. Classify the conversation into exactly one
of the allowed categories and intents. If the content is too ambiguous or
does not belong to any category, refuse instead of guessing.
Respond with JSON only: {"label": "", "intent": "", "confidence": 0.0,
"refused": false, "reason": ""}`

type auditVerdict struct {
	Label      string  `json:"label"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Refused    bool    `json:"refused"`
	Reason     string  `json:"reason"`
}

// ClassifyOrRefuse asks the external model for a verdict on a borderline
// thread. The primary pipeline's top-K scores are included as context.
func (a *AuditAdapter) ClassifyOrRefuse(ctx context.Context, thread *domain.EmailThread, topK []domain.CategoryScore) (domain.AuditOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result, err := a.cb.Execute(func() (any, error) {
		return a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: a.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: auditSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: a.buildPrompt(thread, topK)},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Temperature: 0,
		})
	})
	if err != nil {
		return domain.AuditOutcome{}, classifyAuditError(err)
	}

	resp := result.(openai.ChatCompletionResponse)
	if len(resp.Choices) == 0 {
		return domain.AuditOutcome{}, apperr.AuditFallbackFailed("empty_response", nil)
	}

	var verdict auditVerdict
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &verdict); err != nil {
		return domain.AuditOutcome{}, apperr.AuditFallbackFailed("malformed_response", err)
	}

	if verdict.Refused {
		reason := verdict.Reason
		if reason == "" {
			reason = "refused_without_reason"
		}
		return domain.AuditOutcome{Refused: true, Reason: reason}, nil
	}
	if !a.allowed[verdict.Label] {
		// A verdict outside the enum is as good as a refusal.
		return domain.AuditOutcome{Refused: true, Reason: "label_outside_taxonomy"}, nil
	}
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}

	return domain.AuditOutcome{
		Label:      verdict.Label,
		Intent:     verdict.Intent,
		Confidence: verdict.Confidence,
	}, nil
}

func (a *AuditAdapter) buildPrompt(thread *domain.EmailThread, topK []domain.CategoryScore) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Allowed categories: %s\n", strings.Join(a.categories, ", "))
	fmt.Fprintf(&b, "Allowed intents: %s\n\n", strings.Join(a.intents, ", "))
	if len(topK) > 0 {
		b.WriteString("Primary pipeline scores:\n")
		for _, score := range topK {
			fmt.Fprintf(&b, "- %s: %.3f\n", score.CategoryID, score.Similarity)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Subject: %s\n\n%s", thread.Subject, thread.MergedBody)
	return b.String()
}

func classifyAuditError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.AuditFallbackFailed("timeout", err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return apperr.AuditFallbackFailed("circuit_open", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusBadRequest {
		ae := apperr.AuditFallbackFailed("rejected_request", err)
		ae.Transient = false
		return ae
	}
	return apperr.AuditFallbackFailed("request_failed", err)
}
