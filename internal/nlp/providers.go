package nlp

import (
	"errors"
	"fmt"
	"os"

	"github.com/hyperjump/wakeru/internal/config"
	"github.com/hyperjump/wakeru/internal/embedding"
	"github.com/hyperjump/wakeru/internal/tagger"
)

// ErrUnknownProvider is returned for a chain entry with an unrecognized provider.
var ErrUnknownProvider = errors.New("unknown provider")

// OpenTagger constructs the tagger described by m.
func OpenTagger(m config.ModelConfig) (tagger.Tagger, error) {
	var (
		t   tagger.Tagger
		err error
	)
	switch m.Provider {
	case config.ProviderONNX:
		var o *tagger.ONNXTagger
		if o, err = tagger.NewONNXTagger(m.ModelPath, m.TokenizerPath, m.Labels, m.MaxSeqLen, m.SegmentChars); err == nil {
			t = o
		}
	case config.ProviderOpenAI:
		var o *tagger.OpenAITagger
		if o, err = tagger.NewOpenAITagger(apiKey(m), m.BaseURL, m.Model, m.Labels, m.SegmentChars); err == nil {
			t = o
		}
	case config.ProviderAnthropic:
		var a *tagger.AnthropicTagger
		if a, err = tagger.NewAnthropicTagger(apiKey(m), m.BaseURL, m.Model, m.Labels, m.SegmentChars); err == nil {
			t = a
		}
	case config.ProviderGazetteer:
		var g *tagger.Gazetteer
		if g, err = tagger.LoadGazetteer(m.TermsPath); err == nil {
			t = g
		}
	default:
		err = fmt.Errorf("%w %q for tagger", ErrUnknownProvider, m.Provider)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// OpenEmbedder constructs the embedder described by m.
func OpenEmbedder(m config.ModelConfig) (embedding.Embedder, error) {
	e, err := openEmbedder(m)
	if err != nil {
		return nil, err
	}
	if m.ChunkWords > 0 {
		return embedding.NewChunkedEmbedder(e, m.ChunkWords, m.ChunkOverlap), nil
	}
	return e, nil
}

func openEmbedder(m config.ModelConfig) (embedding.Embedder, error) {
	switch m.Provider {
	case config.ProviderONNX:
		e, err := embedding.NewONNXEmbedder(m.ModelPath, m.TokenizerPath, m.Dimensions, m.MaxSeqLen)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderOpenAI:
		e, err := embedding.NewOpenAIEmbedder(apiKey(m), m.BaseURL, m.Model, m.Dimensions)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderHash:
		return embedding.NewHashEmbedder(m.Dimensions), nil
	}
	return nil, fmt.Errorf("%w %q for embedder", ErrUnknownProvider, m.Provider)
}

func apiKey(m config.ModelConfig) string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}
