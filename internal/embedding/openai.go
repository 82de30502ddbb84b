package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperjump/wakeru/pkg/utils"
)

// DefaultOpenAIModel is used when no model name is configured.
const DefaultOpenAIModel = string(openai.SmallEmbedding3)

// openAIMaxChars keeps a document inside the embedding endpoint's token limit.
const openAIMaxChars = 24000

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel

	mu         sync.Mutex
	dimensions int
}

// NewOpenAIEmbedder creates an embedder. apiKey may be empty only when baseURL points at a
// server that does not authenticate (e.g. Ollama).
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int) (*OpenAIEmbedder, error) {
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
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      openai.EmbeddingModel(model),
		dimensions: dimensions,
	}, nil
}

// Embed embeds one text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds all texts in one request; results follow input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = utils.TruncateRunes(t, openAIMaxChars)
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: input,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("create embeddings: unexpected index %d", d.Index)
		}
		vec := append([]float32(nil), d.Embedding...)
		utils.NormalizeL2(vec)
		out[d.Index] = vec
	}
	for i, vec := range out {
		if len(vec) == 0 {
			return nil, fmt.Errorf("create embeddings: no embedding returned for input %d", i)
		}
	}
	e.mu.Lock()
	e.dimensions = len(out[0])
	e.mu.Unlock()
	return out, nil
}

// Dimensions returns the configured dimension, or the one observed in the last response.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
