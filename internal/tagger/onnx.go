//go:build cgo
// +build cgo

package tagger

import (
	"context"
	"fmt"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/wakeru/internal/models"
	"github.com/hyperjump/wakeru/internal/onnxrt"
)

// ONNXTagger runs a BERT token-classification model exported to ONNX. It takes
// input_ids, attention_mask and token_type_ids of shape [1, n] and returns "logits" of
// shape [1, n, len(labels)]; labels are the model's id2label in index order.
type ONNXTagger struct {
	session      *ort.DynamicAdvancedSession
	tk           *tokenizer.Tokenizer
	labels       []string
	maxSeqLen    int
	segmentChars int
	mu           sync.Mutex
}

// NewONNXTagger loads the model and its tokenizer.json.
func NewONNXTagger(modelPath, tokenizerPath string, labels []string, maxSeqLen, segmentChars int) (*ONNXTagger, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("onnx tagger %s: no labels configured", modelPath)
	}
	if err := onnxrt.Init(); err != nil {
		return nil, err
	}
	tk, err := pretrained.FromFile(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", tokenizerPath, err)
	}
	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"logits"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	if maxSeqLen <= 0 {
		maxSeqLen = 512
	}
	return &ONNXTagger{
		session:      session,
		tk:           tk,
		labels:       labels,
		maxSeqLen:    maxSeqLen,
		segmentChars: segmentChars,
	}, nil
}

// Tag classifies every token segment by segment and decodes the BIO tags into spans.
func (t *ONNXTagger) Tag(ctx context.Context, text string) ([]models.RawEntityMention, error) {
	mentions := []models.RawEntityMention{}
	for _, seg := range Split(text, t.segmentChars) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tokens, err := t.classify(seg)
		if err != nil {
			return nil, err
		}
		mentions = append(mentions, DecodeBIO(text, tokens)...)
	}
	return mentions, nil
}

func (t *ONNXTagger) classify(seg Segment) ([]Token, error) {
	enc, err := t.tk.EncodeSingle(seg.Text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	n := len(enc.Ids)
	if n > t.maxSeqLen {
		n = t.maxSeqLen
	}
	if n == 0 {
		return nil, nil
	}
	ids := make([]int64, n)
	mask := make([]int64, n)
	types := make([]int64, n)
	for i := 0; i < n; i++ {
		ids[i] = int64(enc.Ids[i])
		mask[i] = 1
		if i < len(enc.TypeIds) {
			types[i] = int64(enc.TypeIds[i])
		}
	}

	shape := ort.NewShape(1, int64(n))
	idsT, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer idsT.Destroy()
	maskT, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer maskT.Destroy()
	typesT, err := ort.NewTensor(shape, types)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	defer typesT.Destroy()
	numLabels := len(t.labels)
	logitsT, err := ort.NewTensor(ort.NewShape(1, int64(n), int64(numLabels)), make([]float32, n*numLabels))
	if err != nil {
		return nil, fmt.Errorf("failed to create logits tensor: %w", err)
	}
	defer logitsT.Destroy()

	t.mu.Lock()
	err = t.session.Run([]ort.ArbitraryTensor{idsT, maskT, typesT}, []ort.ArbitraryTensor{logitsT})
	t.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	logits := logitsT.GetData()
	tokens := make([]Token, n)
	for i := 0; i < n; i++ {
		best := argmax(logits[i*numLabels : (i+1)*numLabels])
		tok := Token{Tag: t.labels[best]}
		if i < len(enc.Offsets) && len(enc.Offsets[i]) == 2 {
			tok.Start = seg.Offset + enc.Offsets[i][0]
			tok.End = seg.Offset + enc.Offsets[i][1]
		}
		if i < len(enc.SpecialTokenMask) && enc.SpecialTokenMask[i] == 1 {
			tok.Special = true
		}
		tokens[i] = tok
	}
	return tokens, nil
}

// Close destroys the session.
func (t *ONNXTagger) Close() error {
	if t.session == nil {
		return nil
	}
	err := t.session.Destroy()
	t.session = nil
	return err
}
