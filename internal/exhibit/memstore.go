package exhibit

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store] that preserves insertion order.
// The zero value is ready to use.
type MemStore struct {
	mu       sync.RWMutex
	features []Feature
}

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Add implements [Store.Add].
func (s *MemStore) Add(_ context.Context, feature Feature) (Feature, error) {
	if feature.ID == "" {
		feature.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.features {
		if f.ID == feature.ID {
			return Feature{}, ErrDuplicateID
		}
		if strings.EqualFold(f.Name, feature.Name) {
			return Feature{}, ErrDuplicateName
		}
	}
	s.features = append(s.features, cloneFeature(feature))
	return feature, nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(_ context.Context, id string) (Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return Feature{}, ErrNotFound
	}
	return cloneFeature(s.features[i]), nil
}

// List implements [Store.List].
func (s *MemStore) List(_ context.Context) ([]Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Feature, len(s.features))
	for i, f := range s.features {
		out[i] = cloneFeature(f)
	}
	return out, nil
}

// Update implements [Store.Update].
func (s *MemStore) Update(_ context.Context, feature Feature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(feature.ID)
	if i < 0 {
		return ErrNotFound
	}
	s.features[i] = cloneFeature(feature)
	return nil
}

// Remove implements [Store.Remove].
func (s *MemStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	s.features = slices.Delete(s.features, i, i+1)
	return nil
}

// BulkImport implements [Store.BulkImport].
func (s *MemStore) BulkImport(ctx context.Context, features []Feature) (int, error) {
	count := 0
	for _, f := range features {
		if _, err := s.Add(ctx, f); err != nil {
			return count, fmt.Errorf("exhibit: bulk import at index %d (name %q): %w", count, f.Name, err)
		}
		count++
	}
	return count, nil
}

// Replace swaps the whole catalog for features. It is used by hot reload:
// the new catalog is built and validated in a scratch store first, so a
// broken file never leaves the live store half-populated.
func (s *MemStore) Replace(ctx context.Context, features []Feature) (int, error) {
	scratch := NewMemStore()
	n, err := scratch.BulkImport(ctx, features)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.features = scratch.features
	s.mu.Unlock()
	return n, nil
}

// Len returns the number of features in the store.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.features)
}

// indexOf returns the position of id or -1. Must be called with s.mu held.
func (s *MemStore) indexOf(id string) int {
	return slices.IndexFunc(s.features, func(f Feature) bool { return f.ID == id })
}

func cloneFeature(f Feature) Feature {
	f.Tags = slices.Clone(f.Tags)
	return f
}
