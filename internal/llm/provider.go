// Package llm wraps the external language-model collaborator spec §1 treats
// as out of scope ("only its prompt/response contract matters") behind a
// small interface, grounded on the teacher's internal/provider package. The
// concrete implementation binds cloudwego/eino's claude chat model; callers
// that construct a ClaudeCompleter without an API key get a nil-safe degraded mode
// that always falls through to the rule-based extractor in internal/metadata.
package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// DefaultModel mirrors the teacher provider's default (spec names no
// specific model; Sonnet is the reasonable default for structured extraction
// and explanation tasks).
const DefaultModel = "claude-sonnet-4-20250514"

// Completer is the minimal contract the Dialogue/Evaluation workers need from
// a language model: a single non-streaming text completion given a system
// prompt and a user message.
type Completer interface {
	// Complete returns the model's raw text reply, or an error if the call
	// failed or no provider is configured (IsUnavailable(err) distinguishes
	// the latter so callers degrade instead of failing the request).
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// UnavailableError indicates no LLM provider is configured (spec's "degraded
// mode": ANTHROPIC_API_KEY unset). It is not a transient failure — retrying
// will not help until configuration changes.
type UnavailableError struct{}

func (e *UnavailableError) Error() string { return "no LLM provider configured" }

// IsUnavailable reports whether err is an *UnavailableError.
func IsUnavailable(err error) bool {
	_, ok := err.(*UnavailableError)
	return ok
}

// ClaudeCompleter implements Completer against Anthropic Claude via eino.
type ClaudeCompleter struct {
	chatModel model.ToolCallingChatModel
	modelID   string
}

// NewClaudeCompleter builds a ClaudeCompleter. apiKey == "" is valid: the
// returned Completer always returns *UnavailableError, letting callers run
// in degraded mode without a nil-pointer special case at every call site.
func NewClaudeCompleter(ctx context.Context, apiKey, modelID string) (*ClaudeCompleter, error) {
	if apiKey == "" {
		return &ClaudeCompleter{}, nil
	}
	if modelID == "" {
		modelID = DefaultModel
	}

	chatModel, err := claude.NewChatModel(ctx, &claude.Config{
		APIKey:    apiKey,
		Model:     modelID,
		MaxTokens: 2048,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create claude chat model: %w", err)
	}

	return &ClaudeCompleter{chatModel: chatModel, modelID: modelID}, nil
}

// Complete sends a single system+user turn and returns the reply text.
func (c *ClaudeCompleter) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if c.chatModel == nil {
		return "", &UnavailableError{}
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userMessage),
	}

	reply, err := c.chatModel.Generate(ctx, messages, model.WithTemperature(0.2))
	if err != nil {
		return "", fmt.Errorf("claude generate: %w", err)
	}
	return reply.Content, nil
}
