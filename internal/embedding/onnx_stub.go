//go:build !cgo

package embedding

import (
	"errors"

	"github.com/hyperjump/rulebook/internal/config"
	"go.uber.org/zap"
)

// ErrONNXUnavailable is returned by NewONNXEmbedder in builds without CGO.
var ErrONNXUnavailable = errors.New("onnx embedder requires cgo and the onnxruntime library")

// NewONNXEmbedder returns ErrONNXUnavailable when built without CGO.
func NewONNXEmbedder(_ config.EmbeddingConfig, _ *zap.Logger) (Embedder, error) {
	return nil, ErrONNXUnavailable
}
