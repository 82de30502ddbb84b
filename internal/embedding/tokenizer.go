package embedding

import (
	"fmt"
	"strings"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids),
// padded or cut to exactly maxTokens.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer is a word-split tokenizer with hash-based token IDs, used when a model
// ships without tokenizer.json.
type SimpleTokenizer struct{}

// Tokenize splits text into words and produces padded token IDs up to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs, attentionMask, tokenTypeIDs = make([]int64, maxTokens), make([]int64, maxTokens), make([]int64, maxTokens)

	inputIDs[0] = 101 // [CLS]
	attentionMask[0] = 1

	pos := 1
	for _, word := range strings.Fields(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(HashString(word) % 30000)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = 102 // [SEP]
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// HashString returns a deterministic non-negative hash for use as a simple token ID.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}

// HFTokenizer wraps a Hugging Face tokenizer.json.
type HFTokenizer struct {
	tk *tokenizer.Tokenizer
}

// LoadHFTokenizer reads a tokenizer.json file.
func LoadHFTokenizer(path string) (*HFTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	return &HFTokenizer{tk: tk}, nil
}

// Tokenize encodes text with special tokens, then pads or cuts to maxTokens.
// On encoding failure it falls back to an empty [CLS] [SEP] sequence.
func (t *HFTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs, attentionMask, tokenTypeIDs = make([]int64, maxTokens), make([]int64, maxTokens), make([]int64, maxTokens)
	enc, err := t.tk.EncodeSingle(text, true)
	if err != nil {
		return (&SimpleTokenizer{}).Tokenize("", maxTokens)
	}
	for i := 0; i < len(enc.Ids) && i < maxTokens; i++ {
		inputIDs[i] = int64(enc.Ids[i])
		attentionMask[i] = 1
		if i < len(enc.TypeIds) {
			tokenTypeIDs[i] = int64(enc.TypeIds[i])
		}
	}
	return inputIDs, attentionMask, tokenTypeIDs
}
