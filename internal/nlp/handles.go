// Package nlp loads the entity tagger and document embedder once at startup, walking each
// configured fallback chain, and hands the result to the rest of the program as Handles.
package nlp

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/wakeru/internal/config"
	"github.com/hyperjump/wakeru/internal/embedding"
	"github.com/hyperjump/wakeru/internal/tagger"
)

// Kind names a model role.
type Kind string

const (
	KindTagger   Kind = "tagger"
	KindEmbedder Kind = "embedder"
)

// Attempt records one chain entry that failed to load.
type Attempt struct {
	ModelID  string `json:"model_id"`
	Provider string `json:"provider"`
	Err      error  `json:"-"`
}

// ModelUnavailableError means no entry of a chain could be loaded.
type ModelUnavailableError struct {
	Kind     Kind
	Attempts []Attempt
}

func (e *ModelUnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("no %s model configured", e.Kind)
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.ModelID, a.Err)
	}
	return fmt.Sprintf("no %s model available (%s)", e.Kind, strings.Join(parts, "; "))
}

// Loaded is the winning entry of a chain.
type Loaded[T any] struct {
	Value    T
	ModelID  string
	Fallback bool
	Attempts []Attempt
}

// LoadChain tries each entry in order and returns the first that opens. Every failure is
// logged; success on a later entry is logged as a fallback.
func LoadChain[T any](kind Kind, chain []config.ModelConfig, open func(config.ModelConfig) (T, error), logger *zap.Logger) (*Loaded[T], error) {
	var attempts []Attempt
	for i, m := range chain {
		v, err := open(m)
		if err != nil {
			logger.Warn("model failed to load",
				zap.String("kind", string(kind)),
				zap.String("model", m.Name()),
				zap.String("provider", m.Provider),
				zap.Error(err))
			attempts = append(attempts, Attempt{ModelID: m.Name(), Provider: m.Provider, Err: err})
			continue
		}
		loaded := &Loaded[T]{Value: v, ModelID: m.Name(), Fallback: i > 0, Attempts: attempts}
		if loaded.Fallback {
			logger.Warn("model loaded from fallback",
				zap.String("kind", string(kind)),
				zap.String("model", m.Name()),
				zap.Int("failed_attempts", len(attempts)))
		} else {
			logger.Info("model loaded",
				zap.String("kind", string(kind)),
				zap.String("model", m.Name()))
		}
		return loaded, nil
	}
	err := &ModelUnavailableError{Kind: kind, Attempts: attempts}
	logger.Error("no model available", zap.String("kind", string(kind)), zap.Error(err))
	return nil, err
}

// Handles owns the loaded models. A nil Tagger or Embedder means that kind is unavailable
// and the matching error says why.
type Handles struct {
	Tagger      *Loaded[tagger.Tagger]
	Embedder    *Loaded[embedding.Embedder]
	TaggerErr   error
	EmbedderErr error
}

// Open loads both chains from cfg. It never fails; unavailability is kept on the Handles
// and reported when a batch needs the missing kind.
func Open(cfg *config.Config, logger *zap.Logger) *Handles {
	h := &Handles{}
	maxChars := cfg.Tagger.MaxChars
	h.Tagger, h.TaggerErr = LoadChain(KindTagger, cfg.Tagger.Models, func(m config.ModelConfig) (tagger.Tagger, error) {
		t, err := OpenTagger(m)
		if err != nil {
			return nil, err
		}
		return tagger.Limited{Tagger: t, MaxChars: maxChars}, nil
	}, logger)

	cache := embedding.NewEmbeddingCache(cfg.Embedding.CacheSize)
	h.Embedder, h.EmbedderErr = LoadChain(KindEmbedder, cfg.Embedding.Models, func(m config.ModelConfig) (embedding.Embedder, error) {
		e, err := OpenEmbedder(m)
		if err != nil {
			return nil, err
		}
		return embedding.NewCachedEmbedder(e, m.Name(), cache), nil
	}, logger)
	return h
}

// TaggerOrErr returns the tagger and its model id, or the unavailability error.
func (h *Handles) TaggerOrErr() (tagger.Tagger, string, error) {
	if h.Tagger == nil {
		return nil, "", unavailable(KindTagger, h.TaggerErr)
	}
	return h.Tagger.Value, h.Tagger.ModelID, nil
}

// EmbedderOrErr returns the embedder and its model id, or the unavailability error.
func (h *Handles) EmbedderOrErr() (embedding.Embedder, string, error) {
	if h.Embedder == nil {
		return nil, "", unavailable(KindEmbedder, h.EmbedderErr)
	}
	return h.Embedder.Value, h.Embedder.ModelID, nil
}

func unavailable(kind Kind, err error) error {
	if err == nil {
		return &ModelUnavailableError{Kind: kind}
	}
	return err
}

// Close releases every loaded model.
func (h *Handles) Close() error {
	var firstErr error
	if h.Tagger != nil {
		if err := h.Tagger.Value.Close(); err != nil {
			firstErr = err
		}
	}
	if h.Embedder != nil {
		if err := h.Embedder.Value.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ModelStatus summarizes one kind for status output.
type ModelStatus struct {
	Kind      Kind      `json:"kind"`
	Available bool      `json:"available"`
	ModelID   string    `json:"model_id,omitempty"`
	Fallback  bool      `json:"fallback"`
	Failed    []Attempt `json:"failed,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Status reports what was loaded for each kind.
func (h *Handles) Status() []ModelStatus {
	return []ModelStatus{
		statusOf(KindTagger, h.Tagger, h.TaggerErr),
		statusOf(KindEmbedder, h.Embedder, h.EmbedderErr),
	}
}

func statusOf[T any](kind Kind, l *Loaded[T], err error) ModelStatus {
	if l == nil {
		s := ModelStatus{Kind: kind}
		if err != nil {
			s.Error = err.Error()
			var mu *ModelUnavailableError
			if errors.As(err, &mu) {
				s.Failed = mu.Attempts
			}
		}
		return s
	}
	return ModelStatus{Kind: kind, Available: true, ModelID: l.ModelID, Fallback: l.Fallback, Failed: l.Attempts}
}
