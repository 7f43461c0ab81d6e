// Package taxonomy resolves classifier labels to disease/pest knowledge
// records, creating placeholder records on first sight.
package taxonomy

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/agroguard/leafguard-go/internal/datastore"
)

const (
	cacheTTL     = 15 * time.Minute
	cacheCleanup = 30 * time.Minute
)

// Resolver maps class labels to taxonomy entries. Lookups go through an
// in-memory cache; the create-if-absent path is an atomic upsert in the
// datastore, so concurrent first sightings of a label converge on one row.
type Resolver struct {
	ds    datastore.Interface
	cache *cache.Cache
}

// NewResolver creates a Resolver backed by the given datastore.
func NewResolver(ds datastore.Interface) *Resolver {
	return &Resolver{
		ds:    ds,
		cache: cache.New(cacheTTL, cacheCleanup),
	}
}

// Resolve returns the taxonomy entry for a class label, creating a
// placeholder entry (display name = label, other fields empty) if the label
// has never been seen before.
func (r *Resolver) Resolve(label string) (datastore.TaxonomyEntry, error) {
	if cached, found := r.cache.Get(label); found {
		return cached.(datastore.TaxonomyEntry), nil
	}

	entry, err := r.ds.ResolveTaxonomyEntry(label)
	if err != nil {
		return datastore.TaxonomyEntry{}, err
	}

	r.cache.Set(label, entry, cache.DefaultExpiration)
	return entry, nil
}

// Invalidate drops a label from the cache. Called when curators edit an
// entry so the next detection sees the updated guidance.
func (r *Resolver) Invalidate(label string) {
	r.cache.Delete(label)
}
