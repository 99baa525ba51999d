package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/rulebook/internal/config"
	"github.com/hyperjump/rulebook/internal/embedding"
	"github.com/hyperjump/rulebook/internal/extract"
	"github.com/hyperjump/rulebook/internal/metadata"
	"github.com/hyperjump/rulebook/internal/metrics"
	"github.com/hyperjump/rulebook/internal/models"
	"github.com/hyperjump/rulebook/internal/storage"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

const embedBatchSize = 64

// File outcomes.
const (
	FileLoaded  = "loaded"
	FileSkipped = "skipped"
	FileFailed  = "failed"
)

// Build outcomes.
const (
	StatusBuilt   = "built"
	StatusSkipped = "skipped"
)

// FileResult is the outcome of loading one source file.
type FileResult struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Documents int    `json:"documents"`
	Err       error  `json:"-"`
	Error     string `json:"error,omitempty"`
}

// BuildReport summarizes one build.
type BuildReport struct {
	Kind     models.IndexKind `json:"kind"`
	Path     string           `json:"path"`
	Files    []FileResult     `json:"files"`
	Loaded   int              `json:"loaded"`
	Skipped  int              `json:"skipped"`
	Failed   int              `json:"failed"`
	Nodes    int              `json:"nodes"`
	Status   string           `json:"status"`
	Duration time.Duration    `json:"duration_ns"`
}

// Builder builds and persists indexes from a directory of source files.
type Builder struct {
	loader    extract.Loader
	embedder  embedding.Embedder
	store     *storage.IndexStore
	cfg       config.IndexConfig
	extractor *metadata.Extractor
	scorer    *metadata.Scorer
	enricher  *metadata.Enricher
	clock     metadata.Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock sets the clock used for importance scoring and build timestamps.
func WithClock(c metadata.Clock) BuilderOption {
	return func(b *Builder) { b.clock = c }
}

// WithMetrics records build metrics.
func WithMetrics(m *metrics.Metrics) BuilderOption {
	return func(b *Builder) { b.metrics = m }
}

// NewBuilder creates a builder.
func NewBuilder(loader extract.Loader, embedder embedding.Embedder, store *storage.IndexStore, cfg config.IndexConfig, opts ...BuilderOption) *Builder {
	b := &Builder{
		loader:   loader,
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		enricher: metadata.NewEnricher(),
		clock:    metadata.SystemClock{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.extractor = metadata.NewExtractor(metadata.WithLogger(b.logger))
	b.scorer = metadata.NewScorer(b.clock)
	return b
}

// Build runs the build mode for kind.
func (b *Builder) Build(ctx context.Context, kind models.IndexKind, dataDir, indexPath string) (*BuildReport, error) {
	switch kind {
	case models.IndexHierarchical:
		return b.BuildHierarchical(ctx, dataDir, indexPath)
	case models.IndexTraditional:
		return b.BuildTraditional(ctx, dataDir, indexPath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIndexKind, kind)
	}
}

// BuildHierarchical builds the multi-tier index. Rulebook files get full metadata extraction;
// other files carry only their filename.
func (b *Builder) BuildHierarchical(ctx context.Context, dataDir, indexPath string) (*BuildReport, error) {
	return b.build(ctx, models.IndexHierarchical, dataDir, indexPath, func(docs []*models.Document) []*models.Node {
		chunker := NewHierarchicalChunker(b.cfg.ChunkSizes, b.cfg.ChunkOverlap)
		var nodes []*models.Node
		for _, doc := range docs {
			nodes = append(nodes, chunker.Chunk(doc)...)
		}
		for _, n := range nodes {
			b.enricher.Enrich(n)
		}
		return nodes
	})
}

// BuildTraditional builds the flat index: one node per document with loader metadata only.
func (b *Builder) BuildTraditional(ctx context.Context, dataDir, indexPath string) (*BuildReport, error) {
	return b.build(ctx, models.IndexTraditional, dataDir, indexPath, func(docs []*models.Document) []*models.Node {
		nodes := make([]*models.Node, 0, len(docs))
		for _, doc := range docs {
			nodes = append(nodes, &models.Node{
				ID:         doc.ID,
				DocumentID: doc.ID,
				Text:       doc.Text,
				Metadata:   doc.Metadata.Clone(),
			})
		}
		return nodes
	})
}

func (b *Builder) build(ctx context.Context, kind models.IndexKind, dataDir, indexPath string, toNodes func([]*models.Document) []*models.Node) (_ *BuildReport, err error) {
	start := time.Now()
	report := &BuildReport{Kind: kind, Path: indexPath}
	b.logger.Info("starting index build",
		zap.String("kind", string(kind)),
		zap.String("data_dir", dataDir),
		zap.String("index_path", indexPath))

	defer func() {
		report.Duration = time.Since(start)
		status := report.Status
		if err != nil {
			status = "failed"
		}
		b.metrics.RecordBuild(string(kind), status, map[string]int{
			FileLoaded:  report.Loaded,
			FileSkipped: report.Skipped,
			FileFailed:  report.Failed,
		}, report.Nodes, report.Duration)
	}()

	docs, err := b.loadAll(ctx, kind, dataDir, report)
	if err != nil {
		return nil, err
	}

	if len(docs) == 0 {
		b.logger.Warn("no valid documents found, index not built",
			zap.String("kind", string(kind)),
			zap.String("data_dir", dataDir),
			zap.Int("failed", report.Failed))
		report.Status = StatusSkipped
		return report, nil
	}

	nodes := toNodes(docs)
	b.logger.Info("generated nodes", zap.String("kind", string(kind)), zap.Int("nodes", len(nodes)))
	if err := b.embed(ctx, nodes); err != nil {
		return nil, err
	}

	files := make([]string, 0, len(report.Files))
	for _, f := range report.Files {
		if f.Status == FileLoaded {
			files = append(files, f.Filename)
		}
	}
	snap := &storage.Snapshot{
		Manifest: storage.Manifest{
			Kind:    kind,
			BuiltAt: b.clock.Now().UTC(),
			Files:   files,
		},
		Documents: docs,
		Nodes:     nodes,
	}
	if kind == models.IndexHierarchical {
		snap.Manifest.ChunkSizes = b.cfg.ChunkSizes
		snap.Manifest.ChunkOverlap = b.cfg.ChunkOverlap
	}
	if err := b.store.Persist(ctx, snap, indexPath); err != nil {
		b.logger.Error("failed to persist index", zap.String("path", indexPath), zap.Error(err))
		return nil, fmt.Errorf("%w to %s: %w", ErrPersist, indexPath, err)
	}

	report.Nodes = len(nodes)
	report.Status = StatusBuilt
	b.logger.Info("index built",
		zap.String("kind", string(kind)),
		zap.String("path", indexPath),
		zap.Int("documents", len(docs)),
		zap.Int("nodes", len(nodes)),
		zap.Duration("elapsed", time.Since(start)))
	return report, nil
}

// sourceFiles lists the regular files directly inside dataDir with an allowed extension, sorted by name.
func (b *Builder) sourceFiles(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !extensionAllowed(filepath.Ext(e.Name()), b.cfg.Extensions) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// loadAll loads every source file on a worker pool. Documents come back in file order
// whatever the scheduling.
func (b *Builder) loadAll(ctx context.Context, kind models.IndexKind, dataDir string, report *BuildReport) ([]*models.Document, error) {
	names, err := b.sourceFiles(dataDir)
	if err != nil {
		return nil, err
	}

	workers := b.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create loader pool: %w", err)
	}
	defer pool.Release()

	results := make([]FileResult, len(names))
	perFile := make([][]*models.Document, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		i, name := i, name
		wg.Add(1)
		task := func() {
			defer wg.Done()
			perFile[i], results[i] = b.loadFile(ctx, kind, filepath.Join(dataDir, name))
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			results[i] = FileResult{Filename: name, Status: FileFailed, Err: err, Error: err.Error()}
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var docs []*models.Document
	for i, r := range results {
		switch r.Status {
		case FileLoaded:
			report.Loaded++
		case FileSkipped:
			report.Skipped++
		case FileFailed:
			report.Failed++
		}
		docs = append(docs, perFile[i]...)
	}
	report.Files = results
	return docs, nil
}

func (b *Builder) loadFile(ctx context.Context, kind models.IndexKind, path string) ([]*models.Document, FileResult) {
	name := filepath.Base(path)
	res := FileResult{Filename: name}
	docs, err := b.loader.Load(ctx, path)
	if err != nil {
		b.logger.Error("error processing document", zap.String("file", name), zap.Error(err))
		res.Status, res.Err, res.Error = FileFailed, err, err.Error()
		return nil, res
	}
	var kept []*models.Document
	for _, doc := range docs {
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		if kind == models.IndexHierarchical {
			b.annotate(doc, name)
		}
		kept = append(kept, doc)
	}
	if len(kept) == 0 {
		b.logger.Warn("document has no text", zap.String("file", name))
		res.Status = FileSkipped
		return nil, res
	}
	b.logger.Debug("loaded document objects", zap.String("file", name), zap.Int("documents", len(kept)))
	res.Status, res.Documents = FileLoaded, len(kept)
	return kept, res
}

// annotate attaches document-level metadata for the hierarchical build.
func (b *Builder) annotate(doc *models.Document, name string) {
	pattern := strings.ToLower(b.cfg.RulebookPattern)
	if pattern == "" || !strings.Contains(strings.ToLower(name), pattern) {
		doc.Metadata = models.NodeMetadata{Filename: name}
		return
	}
	extracted := b.extractor.Extract(doc.Text)
	doc.Metadata.Filename = name
	doc.Metadata.ExtractedMetadata.Merge(extracted)
	doc.Metadata.HierarchyLevel = metadata.Classify(extracted)
	if metadata.ShouldTag(extracted) {
		doc.Metadata.SearchTags = metadata.GenerateTags(extracted, doc.Text)
	}
	doc.Metadata.RegulatoryImportance = b.scorer.Score(extracted, doc.Text)
}

func (b *Builder) embed(ctx context.Context, nodes []*models.Node) error {
	for start := 0; start < len(nodes); start += embedBatchSize {
		end := min(start+embedBatchSize, len(nodes))
		texts := make([]string, end-start)
		for i, n := range nodes[start:end] {
			texts[i] = n.Text
		}
		vecs, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(vecs) != len(texts) {
			return errors.New("embedder returned a different number of vectors than texts")
		}
		for i, n := range nodes[start:end] {
			n.Embedding = vecs[i]
		}
		b.logger.Debug("embedded nodes", zap.Int("done", end), zap.Int("total", len(nodes)))
	}
	return nil
}

func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
