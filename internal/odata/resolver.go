package odata

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DefaultMatchThreshold is the inclusive upper bound on the dissimilarity
// score of an acceptable match. Candidates scoring above it are treated as
// unrelated and the lookup reports not-found.
const DefaultMatchThreshold = 0.6

// CatalogLister is the slice of Client the resolver needs.
type CatalogLister interface {
	ListEntities(ctx context.Context) ([]EntityDefinition, error)
}

// ResolutionRecorder receives index build outcomes and per-lookup hit/miss
// results. Implemented by instrumentation.Metrics.
type ResolutionRecorder interface {
	RecordEntityIndexBuild(ctx context.Context, result string)
	RecordEntityResolution(ctx context.Context, matched bool)
}

// Resolver answers fuzzy entity name lookups against the data entity catalog.
//
// The catalog index is built once per process lifetime, on first use. If the
// enumeration fails the resolver caches an empty index and every lookup
// reports not-found until restart; it never surfaces the enumeration error.
// Once built the index is immutable and shared without locking on the read
// path.
type Resolver struct {
	catalog   CatalogLister
	logger    *slog.Logger
	threshold float64
	recorder  ResolutionRecorder

	group   singleflight.Group
	mu      sync.RWMutex
	entries []EntityDefinition
	built   bool
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger used by the resolver.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// WithThreshold overrides the match acceptance threshold. Intended for tests.
func WithThreshold(threshold float64) ResolverOption {
	return func(r *Resolver) { r.threshold = threshold }
}

// WithResolutionRecorder sets the recorder notified about index builds and
// lookup outcomes.
func WithResolutionRecorder(rec ResolutionRecorder) ResolverOption {
	return func(r *Resolver) { r.recorder = rec }
}

// NewResolver creates a resolver over the given catalog.
func NewResolver(catalog CatalogLister, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		catalog:   catalog,
		logger:    slog.Default(),
		threshold: DefaultMatchThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindBestMatch resolves an approximate entity name to the exact entity
// locator. It returns ok=false when no indexed entry scores within the
// acceptance threshold, or when the index could not be built. Repeated calls
// with the same query against the same index are deterministic; among equal
// scores the first indexed entry wins.
func (r *Resolver) FindBestMatch(ctx context.Context, query string) (string, bool) {
	locator, ok := r.findBestMatch(ctx, query)
	if r.recorder != nil {
		r.recorder.RecordEntityResolution(ctx, ok)
	}
	return locator, ok
}

func (r *Resolver) findBestMatch(ctx context.Context, query string) (string, bool) {
	entries := r.index(ctx)
	if len(entries) == 0 || query == "" {
		return "", false
	}

	bestScore := 2.0
	bestLocator := ""
	for _, e := range entries {
		score := entryScore(query, e)
		// Strict less-than keeps the first indexed entry among ties.
		if score < bestScore {
			bestScore = score
			bestLocator = e.URL
		}
	}

	if bestScore > r.threshold {
		return "", false
	}
	return bestLocator, true
}

// Entities returns the indexed catalog, building it on first use. The
// returned slice must be treated as read-only.
func (r *Resolver) Entities(ctx context.Context) []EntityDefinition {
	return r.index(ctx)
}

// index returns the entity index, building it exactly once. Concurrent first
// calls share a single enumeration fetch.
func (r *Resolver) index(ctx context.Context) []EntityDefinition {
	if entries, ok := r.snapshot(); ok {
		return entries
	}

	v, _, _ := r.group.Do("index", func() (interface{}, error) {
		if entries, ok := r.snapshot(); ok {
			return entries, nil
		}

		entries, err := r.catalog.ListEntities(ctx)
		if err != nil {
			// Degrade gracefully: cache an empty index so lookups report
			// not-found instead of repeating a failing enumeration.
			r.logger.Warn("entity catalog enumeration failed, caching empty index",
				"error", err)
			entries = nil
			if r.recorder != nil {
				r.recorder.RecordEntityIndexBuild(ctx, "failure")
			}
		} else {
			r.logger.Info("entity index built", "entities", len(entries))
			if r.recorder != nil {
				r.recorder.RecordEntityIndexBuild(ctx, "success")
			}
		}

		r.store(entries)
		return entries, nil
	})
	if entries, ok := v.([]EntityDefinition); ok {
		return entries
	}
	return nil
}

func (r *Resolver) snapshot() ([]EntityDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries, r.built
}

func (r *Resolver) store(entries []EntityDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = entries
	r.built = true
}

// entryScore is the dissimilarity of a query against one catalog entry,
// taking the better of the name and locator comparisons.
func entryScore(query string, e EntityDefinition) float64 {
	nameScore := dissimilarity(query, e.Name)
	urlScore := dissimilarity(query, e.URL)
	if urlScore < nameScore {
		return urlScore
	}
	return nameScore
}
