package tagger

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hyperjump/wakeru/internal/models"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-5-haiku-20241022"

// ErrAPIKeyRequired is returned when a hosted model has no API key.
var ErrAPIKeyRequired = errors.New("API key required")

// AnthropicTagger asks a Claude model for entities as JSON.
type AnthropicTagger struct {
	client       anthropic.Client
	model        anthropic.Model
	labels       []string
	segmentChars int
}

// NewAnthropicTagger creates a tagger. The SDK's own retries are disabled; a failed call
// fails the document.
func NewAnthropicTagger(apiKey, baseURL, model string, labels []string, segmentChars int) (*AnthropicTagger, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY", ErrAPIKeyRequired)
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicTagger{
		client:       anthropic.NewClient(opts...),
		model:        anthropic.Model(model),
		labels:       labels,
		segmentChars: segmentChars,
	}, nil
}

// Tag sends each segment of text in turn and concatenates the mentions.
func (t *AnthropicTagger) Tag(ctx context.Context, text string) ([]models.RawEntityMention, error) {
	mentions := []models.RawEntityMention{}
	for _, seg := range Split(text, t.segmentChars) {
		prompt, err := renderPrompt(t.labels, seg.Text)
		if err != nil {
			return nil, err
		}
		message, err := t.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     t.model,
			MaxTokens: 4096,
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("messages: %w", err)
		}
		if len(message.Content) == 0 {
			return nil, errors.New("unexpected response format: no content blocks")
		}
		content := message.Content[0]
		if content.Type != "text" {
			return nil, fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
		}
		found, err := parseEntities(content.Text)
		if err != nil {
			return nil, err
		}
		mentions = append(mentions, found...)
	}
	return mentions, nil
}

// Close is a no-op for AnthropicTagger.
func (t *AnthropicTagger) Close() error { return nil }
