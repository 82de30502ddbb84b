package tagger

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperjump/wakeru/internal/models"
)

// DefaultOpenAIModel is used when no chat model is configured.
const DefaultOpenAIModel = openai.GPT4oMini

// OpenAITagger asks an OpenAI-compatible chat model for entities in JSON mode.
type OpenAITagger struct {
	client       *openai.Client
	model        string
	labels       []string
	segmentChars int
}

// NewOpenAITagger creates a tagger. apiKey may be empty only with a baseURL (e.g. Ollama).
func NewOpenAITagger(apiKey, baseURL, model string, labels []string, segmentChars int) (*OpenAITagger, error) {
	if apiKey == "" && baseURL == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAITagger{
		client:       openai.NewClientWithConfig(cfg),
		model:        model,
		labels:       labels,
		segmentChars: segmentChars,
	}, nil
}

// Tag sends each segment of text in turn and concatenates the mentions.
func (t *OpenAITagger) Tag(ctx context.Context, text string) ([]models.RawEntityMention, error) {
	mentions := []models.RawEntityMention{}
	for _, seg := range Split(text, t.segmentChars) {
		prompt, err := renderPrompt(t.labels, seg.Text)
		if err != nil {
			return nil, err
		}
		resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: t.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
			Temperature:    0,
		})
		if err != nil {
			return nil, fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("chat completion: no choices returned")
		}
		found, err := parseEntities(resp.Choices[0].Message.Content)
		if err != nil {
			return nil, err
		}
		mentions = append(mentions, found...)
	}
	return mentions, nil
}

// Close is a no-op for OpenAITagger.
func (t *OpenAITagger) Close() error { return nil }
