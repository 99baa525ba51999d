package service

import (
	"sort"
	"sync"

	"github.com/hyperjump/rulebook/internal/models"
	"github.com/hyperjump/rulebook/internal/query"
	"go.uber.org/zap"
)

type handle struct {
	engine *query.Engine
	refs   sync.WaitGroup
}

// Registry holds the live engine per index kind. Readers acquire an engine and release it when
// done; a swapped-out engine is closed once its last reader releases it.
type Registry struct {
	mu      sync.RWMutex
	handles map[models.IndexKind]*handle
	retired sync.WaitGroup
	logger  *zap.Logger
}

// NewRegistry creates an empty registry. logger may be nil.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{handles: make(map[models.IndexKind]*handle), logger: logger}
}

// Acquire returns the engine for kind and a release func the caller must call when done.
func (r *Registry) Acquire(kind models.IndexKind) (*query.Engine, func(), error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[kind]
	if !ok {
		return nil, nil, ErrEngineNotReady
	}
	h.refs.Add(1)
	return h.engine, h.refs.Done, nil
}

// Set installs engine for kind, retiring the previous one.
func (r *Registry) Set(kind models.IndexKind, engine *query.Engine) {
	r.mu.Lock()
	old := r.handles[kind]
	r.handles[kind] = &handle{engine: engine}
	r.mu.Unlock()
	r.logger.Info("query engine set", zap.String("kind", string(kind)))
	if old != nil {
		r.retire(kind, old)
	}
}

// Remove drops the engine for kind, if any.
func (r *Registry) Remove(kind models.IndexKind) {
	r.mu.Lock()
	old, ok := r.handles[kind]
	delete(r.handles, kind)
	r.mu.Unlock()
	if ok {
		r.retire(kind, old)
	}
}

// Kinds returns the kinds with a loaded engine, sorted.
func (r *Registry) Kinds() []models.IndexKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]models.IndexKind, 0, len(r.handles))
	for k := range r.handles {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Close removes every engine and waits until all of them are closed.
func (r *Registry) Close() {
	for _, k := range r.Kinds() {
		r.Remove(k)
	}
	r.retired.Wait()
}

func (r *Registry) retire(kind models.IndexKind, h *handle) {
	r.retired.Add(1)
	go func() {
		defer r.retired.Done()
		h.refs.Wait()
		if err := h.engine.Close(); err != nil {
			r.logger.Warn("failed to close retired engine", zap.String("kind", string(kind)), zap.Error(err))
		}
	}()
}
