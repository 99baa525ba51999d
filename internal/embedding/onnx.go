//go:build cgo

package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/rulebook/internal/config"
	"github.com/hyperjump/rulebook/internal/vector"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

var (
	ortOnce    sync.Once
	errORTInit error
)

func initRuntime() error {
	ortOnce.Do(func() {
		if err := ort.InitializeEnvironment(); err != nil {
			errORTInit = fmt.Errorf("initialize onnx runtime: %w", err)
		}
	})
	return errORTInit
}

// onnxIO holds the bound input and output tensors of one session.
type onnxIO struct {
	inputIDs, attentionMask, tokenTypeIDs *ort.Tensor[int64]
	output                                *ort.Tensor[float32]
}

func newONNXIO(maxTokens, dimensions int) (*onnxIO, error) {
	tensors := &onnxIO{}
	inShape := ort.NewShape(1, int64(maxTokens))
	var err error
	if tensors.inputIDs, err = ort.NewEmptyTensor[int64](inShape); err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	if tensors.attentionMask, err = ort.NewEmptyTensor[int64](inShape); err != nil {
		tensors.destroy()
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	if tensors.tokenTypeIDs, err = ort.NewEmptyTensor[int64](inShape); err != nil {
		tensors.destroy()
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	if tensors.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions))); err != nil {
		tensors.destroy()
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	return tensors, nil
}

func (o *onnxIO) inputs() []ort.ArbitraryTensor {
	return []ort.ArbitraryTensor{o.inputIDs, o.attentionMask, o.tokenTypeIDs}
}

func (o *onnxIO) destroy() {
	for _, t := range []*ort.Tensor[int64]{o.inputIDs, o.attentionMask, o.tokenTypeIDs} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if o.output != nil {
		_ = o.output.Destroy()
	}
}

// ONNXEmbedder runs a local sentence-embedding model through ONNX Runtime. The model must take
// input_ids, attention_mask and token_type_ids and return a pooled "output" of cfg.Dimensions.
// Runs are serialized on one session.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	tensors    *onnxIO
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int
	cache      *EmbeddingCache
	logger     *zap.Logger
}

// NewONNXEmbedder loads the model at cfg.ModelPath. logger may be nil.
func NewONNXEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (*ONNXEmbedder, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("onnx embedder: model_path is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("onnx embedder: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := initRuntime(); err != nil {
		return nil, err
	}
	maxTokens := cfg.MaxTokens
	if maxTokens < 2 {
		maxTokens = defaultInput
	}
	tensors, err := newONNXIO(maxTokens, cfg.Dimensions)
	if err != nil {
		return nil, err
	}
	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"}, []string{"output"},
		tensors.inputs(), []ort.ArbitraryTensor{tensors.output}, nil)
	if err != nil {
		tensors.destroy()
		return nil, fmt.Errorf("load onnx model %s: %w", cfg.ModelPath, err)
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	logger.Info("onnx embedder ready",
		zap.String("model", cfg.ModelPath),
		zap.Int("dimensions", cfg.Dimensions),
		zap.Int("max_tokens", maxTokens))
	return &ONNXEmbedder{
		session:    session,
		tensors:    tensors,
		tokenizer:  HashTokenizer{},
		dimensions: cfg.Dimensions,
		maxTokens:  maxTokens,
		cache:      NewEmbeddingCache(cacheSize),
		logger:     logger,
	}, nil
}

// Embed returns the normalized embedding for text, using the cache when available.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec, err := e.run(text)
	if err != nil {
		e.logger.Error("onnx inference failed", zap.Error(err))
		return nil, err
	}
	e.cache.Set(text, vec)
	return vec, nil
}

func (e *ONNXEmbedder) run(text string) ([]float32, error) {
	enc := e.tokenizer.Encode(text, e.maxTokens)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errors.New("onnx embedder is closed")
	}
	copy(e.tensors.inputIDs.GetData(), enc.InputIDs)
	copy(e.tensors.attentionMask.GetData(), enc.AttentionMask)
	copy(e.tensors.tokenTypeIDs.GetData(), enc.TokenTypeIDs)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	vec := append([]float32(nil), e.tensors.output.GetData()[:e.dimensions]...)
	vector.Normalize(vec)
	return vec, nil
}

// EmbedBatch embeds texts one run at a time, stopping at the first error or cancellation.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d of %d: %w", i+1, len(texts), err)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and its tensors. Later calls to Embed fail.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	e.tensors.destroy()
	return err
}
