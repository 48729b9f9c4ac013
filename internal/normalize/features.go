package normalize

import (
	"sort"
	"sync"
)

// FeatureSet is the append-only vocabulary of boolean equipment flags known
// for one source. Listing payloads only name the features a vehicle *has*;
// to keep the persisted column set stable, every record emits all known
// names explicitly, true or false. The set grows for the lifetime of the
// process and is shared by all workers of a run.
type FeatureSet struct {
	mu    sync.Mutex
	names map[string]struct{}
}

// NewFeatureSet creates a FeatureSet, optionally seeded with an already
// known vocabulary.
func NewFeatureSet(seed ...string) *FeatureSet {
	names := make(map[string]struct{}, len(seed))
	for _, n := range seed {
		names[n] = struct{}{}
	}
	return &FeatureSet{names: names}
}

// Add records any unseen feature names. Names are never removed.
func (s *FeatureSet) Add(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if n == "" {
			continue
		}
		s.names[n] = struct{}{}
	}
}

// Snapshot returns a sorted copy of the known names. Callers iterate the
// copy so normalization never holds the lock.
func (s *FeatureSet) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of known feature names.
func (s *FeatureSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}
