// Package identity resolves scraped brand and model names to stable
// storage ids.
package identity

import (
	"context"
	"strconv"
	"sync"

	"github.com/motorscan/motorscan/internal/errors"
	"github.com/motorscan/motorscan/internal/normalize"
)

// Store is the persistence surface the resolver needs. Both operations are
// atomic insert-if-absent-else-fetch, so concurrent resolvers converge on
// one row per name.
type Store interface {
	GetOrCreateBrand(ctx context.Context, name string) (int64, error)
	GetOrCreateModel(ctx context.Context, brandID int64, name string) (int64, error)
}

// Resolver caches name→id lookups in front of the store. Ids are
// append-only, so cached entries never go stale within a process.
type Resolver struct {
	store Store

	mu     sync.RWMutex
	brands map[string]int64
	models map[string]int64
}

// New creates a Resolver backed by the given store.
func New(store Store) *Resolver {
	return &Resolver{
		store:  store,
		brands: make(map[string]int64),
		models: make(map[string]int64),
	}
}

// Resolve maps a brand and model name pair to their ids, creating rows for
// names never seen before. Lookups key on the normalized name, so spelling
// variants of one brand resolve to one id.
func (r *Resolver) Resolve(ctx context.Context, brandName, modelName string) (int64, int64, error) {
	brandKey := normalize.NormalizeName(brandName)
	if brandKey == "" {
		return 0, 0, errors.NewValidationError("brand", "empty brand name")
	}
	modelKey := normalize.NormalizeName(modelName)
	if modelKey == "" {
		return 0, 0, errors.NewValidationError("model", "empty model name")
	}

	brandID, err := r.resolveBrand(ctx, brandKey, brandName)
	if err != nil {
		return 0, 0, err
	}

	modelID, err := r.resolveModel(ctx, brandID, modelKey, modelName)
	if err != nil {
		return 0, 0, err
	}

	return brandID, modelID, nil
}

func (r *Resolver) resolveBrand(ctx context.Context, key, name string) (int64, error) {
	r.mu.RLock()
	id, ok := r.brands[key]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := r.store.GetOrCreateBrand(ctx, name)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.brands[key] = id
	r.mu.Unlock()
	return id, nil
}

func (r *Resolver) resolveModel(ctx context.Context, brandID int64, key, name string) (int64, error) {
	scoped := strconv.FormatInt(brandID, 10) + ":" + key

	r.mu.RLock()
	id, ok := r.models[scoped]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := r.store.GetOrCreateModel(ctx, brandID, name)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.models[scoped] = id
	r.mu.Unlock()
	return id, nil
}

// CacheSize reports how many brand and model entries are cached.
func (r *Resolver) CacheSize() (brands, models int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.brands), len(r.models)
}
