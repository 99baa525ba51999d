package main

import (
	"fmt"

	"github.com/hyperjump/rulebook/internal/config"
	"github.com/hyperjump/rulebook/internal/embedding"
	"github.com/hyperjump/rulebook/internal/extract"
	"github.com/hyperjump/rulebook/internal/indexer"
	"github.com/hyperjump/rulebook/internal/llm"
	"github.com/hyperjump/rulebook/internal/metrics"
	"github.com/hyperjump/rulebook/internal/query"
	"github.com/hyperjump/rulebook/internal/service"
	"github.com/hyperjump/rulebook/internal/storage"
	"github.com/hyperjump/rulebook/internal/volume"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// components holds the long-lived objects a command needs.
type components struct {
	embedder embedding.Embedder
	service  *service.Service
	registry *prometheus.Registry
	logger   *zap.Logger
}

func newMetrics() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg, metrics.New(reg)
}

func newSelector(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*volume.Selector, error) {
	completer, err := llm.NewOpenAICompleter(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	return selectorFor(cfg, completer, logger, m), nil
}

func selectorFor(cfg *config.Config, completer llm.Completer, logger *zap.Logger, m *metrics.Metrics) *volume.Selector {
	return volume.NewSelector(completer,
		volume.WithLogger(logger),
		volume.WithMetrics(m),
		volume.WithConcurrency(cfg.Query.VolumeConcurrency))
}

func newComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	completer, err := llm.NewOpenAICompleter(cfg.LLM, logger)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}
	reg, m := newMetrics()
	store := storage.NewIndexStore(logger)

	builder := indexer.NewBuilder(extract.NewExtractor(), embedder, store, cfg.Index,
		indexer.WithLogger(logger),
		indexer.WithMetrics(m))
	factory := &query.Factory{
		Store:          store,
		Embedder:       embedder,
		Synthesizer:    query.NewLLMSynthesizer(completer),
		Logger:         logger,
		RetrievalMode:  cfg.Query.RetrievalMode,
		KeywordWeight:  cfg.Query.KeywordWeight,
		SemanticWeight: cfg.Query.SemanticWeight,
	}
	selector := selectorFor(cfg, completer, logger, m)

	svc := service.New(cfg, builder, factory, selector,
		service.WithLogger(logger),
		service.WithMetrics(m))
	return &components{embedder: embedder, service: svc, registry: reg, logger: logger}, nil
}

// Close releases engines and the embedder.
func (c *components) Close() {
	c.service.Close()
	if err := c.embedder.Close(); err != nil {
		c.logger.Warn("embedder close failed", zap.Error(err))
	}
}
