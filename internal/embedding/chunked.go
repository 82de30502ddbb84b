package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/wakeru/pkg/utils"
)

// ChunkedEmbedder embeds long documents as the normalized mean of overlapping word windows,
// so models with a short input limit still see the whole text.
type ChunkedEmbedder struct {
	inner        Embedder
	chunkWords   int
	chunkOverlap int
}

// NewChunkedEmbedder wraps inner. Texts of at most chunkWords words are embedded directly.
func NewChunkedEmbedder(inner Embedder, chunkWords, chunkOverlap int) *ChunkedEmbedder {
	if chunkOverlap < 0 || chunkOverlap >= chunkWords {
		chunkOverlap = 0
	}
	return &ChunkedEmbedder{inner: inner, chunkWords: chunkWords, chunkOverlap: chunkOverlap}
}

// Chunks splits text into windows of size words overlapping by overlap words.
func Chunks(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if size <= 0 || len(words) <= size {
		return []string{strings.Join(words, " ")}
	}
	step := size - overlap
	if step <= 0 {
		step = 1
	}
	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end >= len(words) {
			break
		}
	}
	return chunks
}

// Embed embeds every window of text and returns their unit-length mean.
func (c *ChunkedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	chunks := Chunks(text, c.chunkWords, c.chunkOverlap)
	if len(chunks) <= 1 {
		return c.inner.Embed(ctx, text)
	}
	vecs, err := c.inner.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, err
	}
	mean := make([]float32, len(vecs[0]))
	for i, v := range vecs {
		if len(v) != len(mean) {
			return nil, fmt.Errorf("chunk %d: got %d dimensions, want %d", i, len(v), len(mean))
		}
		for j, x := range v {
			mean[j] += x
		}
	}
	n := float32(len(vecs))
	for j := range mean {
		mean[j] /= n
	}
	utils.NormalizeL2(mean)
	return mean, nil
}

// EmbedBatch embeds texts in order.
func (c *ChunkedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, c, texts)
}

// Dimensions returns the wrapped embedder's dimension.
func (c *ChunkedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Close closes the wrapped embedder.
func (c *ChunkedEmbedder) Close() error { return c.inner.Close() }
