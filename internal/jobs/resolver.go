package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dnguyen/collections-be/internal/collections"
)

// Resolver turns a job's selection into a concrete ordered sequence of
// company ids to process, plus the authoritative total for progress
// reporting. Resolution is restartable from scratch, never resumable
// mid-sequence.
type Resolver struct {
	store collections.Store
}

// NewResolver creates a resolver over the given membership store.
func NewResolver(store collections.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve produces the id sequence for a job's selection.
//
// Explicit selections return the deduplicated input, preserving order
// of first occurrence. All-matching selections re-derive the sequence
// from the source collection's membership at resolution time; whatever
// snapshot count the caller supplied at submission is advisory only and
// never trusted here, because the source may have mutated since.
func (r *Resolver) Resolve(ctx context.Context, sourceCollectionID string, sel Selection) ([]int64, error) {
	switch sel.Kind {
	case SelectionExplicit:
		return dedupIDs(sel.IDs), nil

	case SelectionAllMatching:
		ids, err := r.store.ListMembers(ctx, sourceCollectionID)
		if err != nil {
			if errors.Is(err, collections.ErrCollectionNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceCollectionID)
			}
			return nil, fmt.Errorf("failed to list source collection members: %w", err)
		}
		return ids, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSelection, sel.Kind)
	}
}

// dedupIDs removes duplicates while preserving order of first occurrence.
func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
