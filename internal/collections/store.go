// Package collections defines the narrow membership contract the job
// engine depends on, plus an in-memory implementation for tests and
// local development. The durable implementation lives in
// internal/storage/postgres.
package collections

import (
	"context"
	"errors"
)

// ErrCollectionNotFound is returned when a collection id does not resolve.
var ErrCollectionNotFound = errors.New("collection not found")

// Store exposes set-membership primitives over company collections.
// Each operation is individually atomic; the engine never requires a
// cross-operation transaction because its accounting tolerates
// interleaved external mutation of the target collection.
type Store interface {
	// Exists reports whether the collection id resolves.
	Exists(ctx context.Context, collectionID string) (bool, error)

	// Name returns the collection's display name, or
	// ErrCollectionNotFound.
	Name(ctx context.Context, collectionID string) (string, error)

	// Contains reports whether the company is already a member of the
	// collection.
	Contains(ctx context.Context, collectionID string, companyID int64) (bool, error)

	// Add inserts the company into the collection. Adding a company
	// that is already present is a safe no-op, so a retried add after a
	// crash cannot double-count or fail.
	Add(ctx context.Context, collectionID string, companyID int64) error

	// ListMembers returns the collection's current membership as a
	// stable ordered sequence of company ids.
	ListMembers(ctx context.Context, collectionID string) ([]int64, error)

	// Count returns the collection's current membership cardinality.
	Count(ctx context.Context, collectionID string) (int, error)
}
