package pipeline

import (
	"maps"
	"slices"
	"sync"

	"github.com/oceanco2/intake/intake/pkg/crossover"
)

// Registry holds the samples of validated datasets so new datasets can be scanned against them.
// Stored slices are never modified; snapshots share them.
type Registry struct {
	mu      sync.RWMutex
	samples map[string][]crossover.Sample
}

func NewRegistry() *Registry {
	return &Registry{samples: make(map[string][]crossover.Sample)}
}

// Put stores a copy of a dataset's samples, replacing any earlier ones.
func (r *Registry) Put(dataset string, samples []crossover.Sample) {
	cp := slices.Clone(samples)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[dataset] = cp
}

func (r *Registry) Remove(dataset string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.samples, dataset)
}

func (r *Registry) Get(dataset string) ([]crossover.Sample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.samples[dataset]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.samples)
}

// Snapshot returns the current datasets. The caller must not modify the returned slices.
func (r *Registry) Snapshot() map[string][]crossover.Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.samples)
}
