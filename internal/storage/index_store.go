package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/rulebook/internal/keyword"
	"github.com/hyperjump/rulebook/internal/models"
	"github.com/hyperjump/rulebook/internal/vector"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Files inside an index directory.
const (
	ManifestFile = "manifest.yaml"
	NodesFile    = "nodes.db"
	VectorsFile  = "vectors.bin"
	KeywordDir   = "keyword"
)

// ManifestVersion is bumped when the on-disk layout changes.
const ManifestVersion = 1

// ErrNoIndex is returned by Load when the directory holds no index manifest.
var ErrNoIndex = errors.New("no index at path")

// Manifest describes a persisted index.
type Manifest struct {
	Version      int              `yaml:"version" json:"version"`
	Kind         models.IndexKind `yaml:"kind" json:"kind"`
	BuiltAt      time.Time        `yaml:"built_at" json:"built_at"`
	Documents    int              `yaml:"documents" json:"documents"`
	Nodes        int              `yaml:"nodes" json:"nodes"`
	Dimensions   int              `yaml:"dimensions" json:"dimensions"`
	ChunkSizes   []int            `yaml:"chunk_sizes,omitempty" json:"chunk_sizes,omitempty"`
	ChunkOverlap int              `yaml:"chunk_overlap,omitempty" json:"chunk_overlap,omitempty"`
	Files        []string         `yaml:"files" json:"files"`
}

// Snapshot is everything a build hands to Persist. Every node must carry its embedding.
type Snapshot struct {
	Manifest  Manifest
	Documents []*models.Document
	Nodes     []*models.Node
}

// Index is a loaded, read-only index.
type Index struct {
	Manifest Manifest
	Nodes    []*models.Node
	Vectors  *vector.MemoryIndex
	Keyword  *keyword.BleveIndex
	Path     string

	byID map[string]*models.Node
}

// Node returns the node with id, or nil.
func (ix *Index) Node(id string) *models.Node {
	return ix.byID[id]
}

// Close releases the keyword index.
func (ix *Index) Close() error {
	if ix.Keyword != nil {
		return ix.Keyword.Close()
	}
	return nil
}

// IndexStore writes and reads whole index directories.
type IndexStore struct {
	logger *zap.Logger
}

// NewIndexStore creates an index store. logger may be nil.
func NewIndexStore(logger *zap.Logger) *IndexStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexStore{logger: logger}
}

// Exists reports whether path holds a persisted index.
func (s *IndexStore) Exists(path string) bool {
	_, err := os.Stat(filepath.Join(path, ManifestFile))
	return err == nil
}

// Persist writes snap into a fresh sibling staging directory and then swaps it into place.
// The previous index at path stays intact until the swap, and is restored if the swap fails.
func (s *IndexStore) Persist(ctx context.Context, snap *Snapshot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index parent: %w", err)
	}
	staging := siblingPath(path, "staging")
	if err := os.Mkdir(staging, 0755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	if err := s.write(ctx, snap, staging); err != nil {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			s.logger.Warn("failed to remove staging dir", zap.String("path", staging), zap.Error(rmErr))
		}
		return err
	}
	if err := s.swap(staging, path); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	s.logger.Info("index persisted",
		zap.String("path", path),
		zap.String("kind", string(snap.Manifest.Kind)),
		zap.Int("nodes", len(snap.Nodes)))
	return nil
}

func (s *IndexStore) write(ctx context.Context, snap *Snapshot, dir string) error {
	dims := 0
	if len(snap.Nodes) > 0 {
		dims = len(snap.Nodes[0].Embedding)
	}
	if dims == 0 {
		return errors.New("nodes carry no embeddings")
	}

	db, err := NewSQLiteStorage(filepath.Join(dir, NodesFile))
	if err != nil {
		return err
	}
	if err := db.InsertDocuments(ctx, snap.Documents); err != nil {
		_ = db.Close()
		return fmt.Errorf("store documents: %w", err)
	}
	if err := db.InsertNodes(ctx, snap.Nodes); err != nil {
		_ = db.Close()
		return fmt.Errorf("store nodes: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close node store: %w", err)
	}

	vecs, err := vector.NewMemoryIndex(dims)
	if err != nil {
		return err
	}
	ids := make([]string, len(snap.Nodes))
	embeddings := make([][]float32, len(snap.Nodes))
	for i, n := range snap.Nodes {
		ids[i] = n.ID
		embeddings[i] = n.Embedding
	}
	if err := vecs.Add(ctx, ids, embeddings); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}
	if err := vecs.Save(filepath.Join(dir, VectorsFile)); err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}

	kw, err := keyword.NewBleveIndex(filepath.Join(dir, KeywordDir))
	if err != nil {
		return err
	}
	if err := kw.IndexNodes(ctx, snap.Nodes); err != nil {
		_ = kw.Close()
		return fmt.Errorf("index keywords: %w", err)
	}
	if err := kw.Close(); err != nil {
		return fmt.Errorf("close keyword index: %w", err)
	}

	m := snap.Manifest
	m.Version = ManifestVersion
	m.Documents = len(snap.Documents)
	m.Nodes = len(snap.Nodes)
	m.Dimensions = dims
	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	// manifest last: its presence marks a complete index
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func (s *IndexStore) swap(staging, path string) error {
	var old string
	if _, err := os.Stat(path); err == nil {
		old = siblingPath(path, "old")
		if err := os.Rename(path, old); err != nil {
			return fmt.Errorf("move previous index aside: %w", err)
		}
	}
	if err := os.Rename(staging, path); err != nil {
		if old != "" {
			if rbErr := os.Rename(old, path); rbErr != nil {
				s.logger.Error("failed to restore previous index", zap.String("path", old), zap.Error(rbErr))
			}
		}
		return fmt.Errorf("move staged index into place: %w", err)
	}
	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			s.logger.Warn("failed to remove previous index", zap.String("path", old), zap.Error(err))
		}
	}
	return nil
}

// Load opens the index at path. Nodes are read fully into memory; the keyword index stays open
// until Close.
func (s *IndexStore) Load(ctx context.Context, path string) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(path, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNoIndex)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("unsupported index version %d", m.Version)
	}

	db, err := NewSQLiteStorage(filepath.Join(path, NodesFile))
	if err != nil {
		return nil, err
	}
	nodes, err := db.ListNodes(ctx)
	_ = db.Close()
	if err != nil {
		return nil, fmt.Errorf("read nodes: %w", err)
	}
	if len(nodes) != m.Nodes {
		return nil, fmt.Errorf("manifest lists %d nodes, store has %d", m.Nodes, len(nodes))
	}

	vecs, err := vector.OpenMemoryIndex(filepath.Join(path, VectorsFile))
	if err != nil {
		return nil, err
	}
	if vecs.Size() != len(nodes) {
		return nil, fmt.Errorf("vector count %d does not match node count %d", vecs.Size(), len(nodes))
	}

	kw, err := keyword.OpenBleveIndex(filepath.Join(path, KeywordDir))
	if err != nil {
		return nil, err
	}

	ix := &Index{
		Manifest: m,
		Nodes:    nodes,
		Vectors:  vecs,
		Keyword:  kw,
		Path:     path,
		byID:     make(map[string]*models.Node, len(nodes)),
	}
	for _, n := range nodes {
		ix.byID[n.ID] = n
	}
	s.logger.Debug("index loaded", zap.String("path", path), zap.Int("nodes", len(nodes)))
	return ix, nil
}

func siblingPath(path, suffix string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+suffix+"-"+uuid.NewString()[:8])
}
