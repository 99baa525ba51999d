// Package service ties index builds, volume selection and query engines together behind the
// operations the HTTP server and CLI expose.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/rulebook/internal/config"
	"github.com/hyperjump/rulebook/internal/indexer"
	"github.com/hyperjump/rulebook/internal/metrics"
	"github.com/hyperjump/rulebook/internal/models"
	"github.com/hyperjump/rulebook/internal/query"
	"github.com/hyperjump/rulebook/internal/retrieval"
	"github.com/hyperjump/rulebook/internal/storage"
	"github.com/hyperjump/rulebook/internal/volume"
	"go.uber.org/zap"
)

// Service owns the engine registry and serializes rebuilds per index path.
type Service struct {
	cfg      *config.Config
	builder  *indexer.Builder
	factory  *query.Factory
	selector *volume.Selector
	registry *Registry
	store    *storage.IndexStore
	locks    pathLocks
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records query metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a service. No engine is loaded until LoadExisting or Rebuild.
func New(cfg *config.Config, builder *indexer.Builder, factory *query.Factory, selector *volume.Selector, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		builder:  builder,
		factory:  factory,
		selector: selector,
		store:    factory.Store,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry = NewRegistry(s.logger)
	return s
}

// Registry returns the engine registry.
func (s *Service) Registry() *Registry { return s.registry }

func (s *Service) indexPath(kind models.IndexKind) (string, error) {
	path := s.cfg.Storage.IndexPath(kind)
	if path == "" {
		return "", fmt.Errorf("%w: %q", indexer.ErrUnknownIndexKind, kind)
	}
	return path, nil
}

// Rebuild builds the index of kind from the data directory and swaps in a fresh engine.
// A skipped build leaves the current index and engine in place.
func (s *Service) Rebuild(ctx context.Context, kind models.IndexKind) (*indexer.BuildReport, error) {
	path, err := s.indexPath(kind)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.lock(path)
	defer unlock()

	report, err := s.builder.Build(ctx, kind, s.cfg.Storage.DataDir, path)
	if err != nil {
		return nil, err
	}
	if report.Status != indexer.StatusBuilt {
		s.logger.Warn("build skipped, keeping current engine", zap.String("kind", string(kind)))
		return report, nil
	}
	engine, err := s.factory.Load(ctx, kind, path, s.cfg.Query.TopK)
	if err != nil {
		return report, err
	}
	s.registry.Set(kind, engine)
	return report, nil
}

// LoadExisting loads an engine for every kind whose index exists on disk. Kinds without an
// index are skipped; a kind whose index fails to load is reported and the rest still load.
func (s *Service) LoadExisting(ctx context.Context) error {
	var errs []error
	for _, kind := range []models.IndexKind{models.IndexHierarchical, models.IndexTraditional} {
		path, _ := s.indexPath(kind)
		if !s.store.Exists(path) {
			s.logger.Info("no existing index", zap.String("kind", string(kind)), zap.String("path", path))
			continue
		}
		unlock := s.locks.lock(path)
		engine, err := s.factory.Load(ctx, kind, path, s.cfg.Query.TopK)
		unlock()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.registry.Set(kind, engine)
	}
	return errors.Join(errs...)
}

// SelectVolumes scores the volume registry against q.
func (s *Service) SelectVolumes(ctx context.Context, q string, beamWidth int) ([]volume.Scored, error) {
	return s.selector.Select(ctx, q, beamWidth)
}

// Volumes returns the volume registry.
func (s *Service) Volumes() []volume.Descriptor {
	return s.selector.Volumes()
}

// Query answers req against its index kind. Unless skipped, volume selection narrows retrieval
// to the selected volumes' source files.
func (s *Service) Query(ctx context.Context, req *models.QueryRequest) (_ *models.QueryResponse, err error) {
	start := time.Now()
	if err := req.Validate(s.cfg.Query.BeamWidth); err != nil {
		return nil, err
	}
	sources := 0
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordQuery(string(req.Kind), status, sources, time.Since(start))
	}()

	engine, release, err := s.registry.Acquire(req.Kind)
	if err != nil {
		return nil, err
	}
	defer release()

	resp := &models.QueryResponse{Query: req.Query, Kind: req.Kind}
	var filters retrieval.Filters
	if !req.SkipVolumeSelection {
		selected, err := s.selector.Select(ctx, req.Query, req.BeamWidth)
		if err != nil {
			return nil, fmt.Errorf("volume selection: %w", err)
		}
		for _, v := range selected {
			resp.Volumes = append(resp.Volumes, models.VolumeScore{
				Name:   v.Descriptor.Name,
				Number: v.Descriptor.Number,
				Score:  v.Score,
			})
		}
		filters = volume.Filters(selected)
	}
	filters = mergeFilters(filters, req.Filters)

	out, err := engine.Query(ctx, req.Query, filters)
	if err != nil {
		return nil, err
	}
	resp.Answer = out.Answer
	resp.Sources = out.Sources
	if req.TopK > 0 && len(resp.Sources) > req.TopK {
		resp.Sources = resp.Sources[:req.TopK]
	}
	if resp.Sources == nil {
		resp.Sources = []*models.ScoredNode{}
	}
	sources = len(resp.Sources)
	resp.QueryTime = time.Since(start).Milliseconds()
	return resp, nil
}

// mergeFilters unions the allowed values of a and b per key.
func mergeFilters(a retrieval.Filters, b map[string][]string) retrieval.Filters {
	if len(b) == 0 {
		return a
	}
	out := make(retrieval.Filters, len(a)+len(b))
	for k, v := range a {
		out[k] = append([]string(nil), v...)
	}
	for k, v := range b {
		out[k] = append(out[k], v...)
	}
	return out
}

// SaveDocument writes r into the data directory as name and returns the stored path.
func (s *Service) SaveDocument(name string, r io.Reader) (string, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidFilename
	}
	if err := os.MkdirAll(s.cfg.Storage.DataDir, 0755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	dest := filepath.Join(s.cfg.Storage.DataDir, name)
	tmp, err := os.CreateTemp(s.cfg.Storage.DataDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("store upload: %w", err)
	}
	s.logger.Info("document saved", zap.String("path", dest))
	return dest, nil
}

// ClearDocuments deletes every source document in the data directory. Built indexes and
// loaded engines are left alone until the next rebuild.
func (s *Service) ClearDocuments() error {
	dir := s.cfg.Storage.DataDir
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear data dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("recreate data dir: %w", err)
	}
	s.logger.Info("cleared documents", zap.String("data_dir", dir))
	return nil
}

// IndexStatus describes one index kind.
type IndexStatus struct {
	Kind     models.IndexKind  `json:"kind"`
	Path     string            `json:"path"`
	Exists   bool              `json:"exists"`
	Loaded   bool              `json:"loaded"`
	Manifest *storage.Manifest `json:"manifest,omitempty"`
}

// Status is a snapshot of the service state.
type Status struct {
	DataDir        string        `json:"data_dir"`
	Documents      int           `json:"documents"`
	DiskUsageBytes int64         `json:"disk_usage_bytes"`
	Indexes        []IndexStatus `json:"indexes"`
}

// Status reports the data directory and each index kind.
func (s *Service) Status() (*Status, error) {
	st := &Status{DataDir: s.cfg.Storage.DataDir}
	entries, err := os.ReadDir(st.DataDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			st.Documents++
		}
	}
	paths := []string{st.DataDir}
	for _, kind := range []models.IndexKind{models.IndexHierarchical, models.IndexTraditional} {
		path, _ := s.indexPath(kind)
		paths = append(paths, path)
		is := IndexStatus{Kind: kind, Path: path, Exists: s.store.Exists(path)}
		if engine, release, err := s.registry.Acquire(kind); err == nil {
			m := engine.Manifest()
			is.Loaded, is.Manifest = true, &m
			release()
		}
		st.Indexes = append(st.Indexes, is)
	}
	usage, err := storage.DiskUsageBytes(paths...)
	if err != nil {
		s.logger.Warn("failed to compute disk usage", zap.Error(err))
	}
	st.DiskUsageBytes = usage
	return st, nil
}

// Close releases every loaded engine.
func (s *Service) Close() {
	s.registry.Close()
}
