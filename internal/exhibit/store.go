package exhibit

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get, Update and Remove when the requested
// feature does not exist.
var ErrNotFound = errors.New("feature not found")

// ErrDuplicateID is returned by Add when a feature with the same ID exists.
var ErrDuplicateID = errors.New("feature with that ID already exists")

// ErrDuplicateName is returned by Add when a feature with the same name
// (case-insensitive) exists. Names must be unique because visitors address
// features by name.
var ErrDuplicateName = errors.New("feature with that name already exists")

// Store manages the feature catalog.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// Add appends a feature. A missing ID is generated.
	// Returns [ErrDuplicateID] or [ErrDuplicateName] on conflicts.
	Add(ctx context.Context, feature Feature) (Feature, error)

	// Get retrieves a feature by ID. Returns [ErrNotFound] when absent.
	Get(ctx context.Context, id string) (Feature, error)

	// List returns every feature in catalog (insertion) order.
	List(ctx context.Context) ([]Feature, error)

	// Update replaces an existing feature in place, keeping its position.
	// Returns [ErrNotFound] when no feature with that ID exists.
	Update(ctx context.Context, feature Feature) error

	// Remove deletes a feature by ID. Returns [ErrNotFound] when absent.
	Remove(ctx context.Context, id string) error

	// BulkImport adds features one by one, stopping at the first error.
	// Returns the number imported.
	BulkImport(ctx context.Context, features []Feature) (int, error)
}
