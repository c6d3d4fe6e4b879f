package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnguyen/collections-be/internal/collections"
)

func TestResolver_Resolve_Explicit(t *testing.T) {
	tests := []struct {
		name string
		ids  []int64
		want []int64
	}{
		{
			name: "preserves order",
			ids:  []int64{3, 1, 2},
			want: []int64{3, 1, 2},
		},
		{
			name: "deduplicates keeping first occurrence",
			ids:  []int64{5, 5, 7},
			want: []int64{5, 7},
		},
		{
			name: "empty selection",
			ids:  []int64{},
			want: []int64{},
		},
		{
			name: "all duplicates",
			ids:  []int64{9, 9, 9},
			want: []int64{9},
		},
	}

	store := collections.NewMemoryStore()
	resolver := NewResolver(store)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.Resolve(context.Background(), "ignored", Selection{
				Kind: SelectionExplicit,
				IDs:  tt.ids,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_Resolve_AllMatching(t *testing.T) {
	store := collections.NewMemoryStore()
	store.CreateCollection("source-1", "My List")
	for _, id := range []int64{10, 20, 30} {
		require.NoError(t, store.Add(context.Background(), "source-1", id))
	}

	resolver := NewResolver(store)

	// The snapshot count supplied at submission is advisory only; the
	// resolver re-derives the sequence from current membership.
	got, err := resolver.Resolve(context.Background(), "source-1", Selection{
		Kind:            SelectionAllMatching,
		TotalAtSnapshot: 999,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, got)
}

func TestResolver_Resolve_SourceNotFound(t *testing.T) {
	resolver := NewResolver(collections.NewMemoryStore())

	_, err := resolver.Resolve(context.Background(), "missing", Selection{
		Kind: SelectionAllMatching,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceNotFound))
}

func TestResolver_Resolve_UnknownKind(t *testing.T) {
	resolver := NewResolver(collections.NewMemoryStore())

	_, err := resolver.Resolve(context.Background(), "source-1", Selection{
		Kind: "bogus",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSelection))
}
