//go:build !cgo
// +build !cgo

package tagger

import (
	"context"

	"github.com/hyperjump/wakeru/internal/models"
	"github.com/hyperjump/wakeru/internal/onnxrt"
)

// ONNXTagger stub type when built without CGO (see onnx.go for real implementation).
type ONNXTagger struct{}

// NewONNXTagger returns an error when built without CGO (ONNX not available).
func NewONNXTagger(_, _ string, _ []string, _, _ int) (*ONNXTagger, error) {
	return nil, onnxrt.ErrUnavailable
}

func (t *ONNXTagger) Tag(context.Context, string) ([]models.RawEntityMention, error) {
	return nil, onnxrt.ErrUnavailable
}

func (t *ONNXTagger) Close() error { return nil }
