// Package ai turns free-form project prompts into structured suggestion
// items via an LLM backend. The service layer only sees the Generator
// interface; the OpenAI client stays behind it.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/unforkableco/fabrikator/pkg/logger"
)

// ProposedItem is one context-tagged payload produced by the generator.
// Context matches the suggestion item contexts (materials, 3d, wiring,
// document).
type ProposedItem struct {
	Context string         `json:"context"`
	Payload map[string]any `json:"payload"`
}

// Generator produces suggestion items from a prompt.
type Generator interface {
	Generate(ctx context.Context, projectName, prompt string) ([]ProposedItem, error)
}

const systemPrompt = `You are a hardware project assistant. Given a project description,
propose concrete artifacts as a JSON array. Each element must be an object with
a "context" field ("materials", "3d", "wiring" or "document") and a "payload"
object holding the artifact fields. Respond with the JSON array only.`

// OpenAIGenerator implements Generator on top of the OpenAI chat API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

// NewOpenAIGenerator builds a generator for the given API key and model.
// The model defaults to gpt-4o-mini when empty.
func NewOpenAIGenerator(apiKey, model string) (*OpenAIGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("ai: api key is required")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    logger.WithModule("ai"),
	}, nil
}

// Generate asks the model for suggestion items and parses its JSON reply.
func (g *OpenAIGenerator) Generate(ctx context.Context, projectName, prompt string) ([]ProposedItem, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Project: %s\n\n%s", projectName, prompt)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("ai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("ai: empty completion")
	}

	items, err := ParseItems(resp.Choices[0].Message.Content)
	if err != nil {
		g.log.Warn("unparseable completion", zap.Error(err))
		return nil, err
	}
	return items, nil
}

// ParseItems decodes a model reply into proposed items. It tolerates
// replies wrapped in markdown code fences.
func ParseItems(raw string) ([]ProposedItem, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(raw, "```")
		raw = strings.TrimSpace(raw)
	}

	var items []ProposedItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("ai: decode items: %w", err)
	}

	out := make([]ProposedItem, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Context) == "" || item.Payload == nil {
			continue
		}
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil, errors.New("ai: no usable items in completion")
	}
	return out, nil
}
