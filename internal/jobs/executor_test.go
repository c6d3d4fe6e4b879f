package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnguyen/collections-be/internal/collections"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const (
	sourceID = "11111111-1111-1111-1111-111111111111"
	targetID = "22222222-2222-2222-2222-222222222222"
)

// hookedMemberships wraps a membership store with per-operation hooks
// for failure injection and mid-run cancellation.
type hookedMemberships struct {
	collections.Store
	addErr   func(companyID int64) error
	afterAdd func(companyID int64)
}

func (h *hookedMemberships) Add(ctx context.Context, collectionID string, companyID int64) error {
	if h.addErr != nil {
		if err := h.addErr(companyID); err != nil {
			return err
		}
	}
	if err := h.Store.Add(ctx, collectionID, companyID); err != nil {
		return err
	}
	if h.afterAdd != nil {
		h.afterAdd(companyID)
	}
	return nil
}

type executorFixture struct {
	store       *MemoryStore
	registry    *Registry
	memberships *collections.MemoryStore
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()

	memberships := collections.NewMemoryStore()
	memberships.CreateCollection(sourceID, "Source List")
	memberships.CreateCollection(targetID, "Target List")

	store := NewMemoryStore()
	return &executorFixture{
		store:       store,
		registry:    NewRegistry(store, testLogger()),
		memberships: memberships,
	}
}

func (f *executorFixture) executor(memberships collections.Store) *Executor {
	return NewExecutor(&ExecutorConfig{
		Store:       f.store,
		Memberships: memberships,
		Logger:      testLogger(),
	})
}

func (f *executorFixture) createJob(t *testing.T, sel Selection) *Job {
	t.Helper()
	job, _, err := f.registry.CreateOrGet(context.Background(), NewJobParams{
		SourceCollectionID: sourceID,
		TargetCollectionID: targetID,
		Selection:          sel,
	})
	require.NoError(t, err)
	return job
}

func assertCounterInvariant(t *testing.T, job *Job) {
	t.Helper()
	c := job.Counters
	assert.Equal(t, c.Processed, c.Added+c.Skipped+c.Failed,
		"processed must equal added+skipped+failed")
	assert.LessOrEqual(t, c.Processed, c.Total)
}

func TestExecutor_Run_ExplicitDedupAndSkip(t *testing.T) {
	f := newExecutorFixture(t)

	// Target already contains 5; [5, 5, 7] dedups to two items.
	require.NoError(t, f.memberships.Add(context.Background(), targetID, 5))

	job := f.createJob(t, Selection{Kind: SelectionExplicit, IDs: []int64{5, 5, 7}})
	require.NoError(t, f.executor(f.memberships).Run(context.Background(), job.ID))

	got, err := f.store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 2, got.Counters.Total)
	assert.Equal(t, 2, got.Counters.Processed)
	assert.Equal(t, 1, got.Counters.Added)
	assert.Equal(t, 1, got.Counters.Skipped)
	assert.Equal(t, 0, got.Counters.Failed)
	assertCounterInvariant(t, got)

	added, err := f.memberships.Contains(context.Background(), targetID, 7)
	require.NoError(t, err)
	assert.True(t, added)
}

func TestExecutor_Run_AllMatchingOverridesSnapshot(t *testing.T) {
	f := newExecutorFixture(t)

	// Source holds 100 companies; 70 are already in the target.
	for id := int64(1); id <= 100; id++ {
		require.NoError(t, f.memberships.Add(context.Background(), sourceID, id))
	}
	for id := int64(1); id <= 70; id++ {
		require.NoError(t, f.memberships.Add(context.Background(), targetID, id))
	}

	// The submitted snapshot count is deliberately wrong.
	job := f.createJob(t, Selection{Kind: SelectionAllMatching, TotalAtSnapshot: 7})
	require.NoError(t, f.executor(f.memberships).Run(context.Background(), job.ID))

	got, err := f.store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Counters.Total)
	assert.Equal(t, 100, got.Counters.Processed)
	assert.Equal(t, 30, got.Counters.Added)
	assert.Equal(t, 70, got.Counters.Skipped)
	assert.Equal(t, 0, got.Counters.Failed)
	assertCounterInvariant(t, got)
	assert.InDelta(t, 100.0, got.ProgressPct(), 0.001)
}

func TestExecutor_Run_SourceEqualsTarget(t *testing.T) {
	f := newExecutorFixture(t)

	job, _, err := f.registry.CreateOrGet(context.Background(), NewJobParams{
		SourceCollectionID: sourceID,
		TargetCollectionID: sourceID,
		Selection:          Selection{Kind: SelectionExplicit, IDs: []int64{1, 2}},
	})
	require.NoError(t, err)

	require.NoError(t, f.executor(f.memberships).Run(context.Background(), job.ID))

	got, err := f.store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
	assert.Contains(t, got.ErrorMessage, "same")
	assert.Zero(t, got.Counters.Processed)
	assert.Zero(t, got.Counters.Added)
}

func TestExecutor_Run_UnknownSource(t *testing.T) {
	f := newExecutorFixture(t)

	job, _, err := f.registry.CreateOrGet(context.Background(), NewJobParams{
		SourceCollectionID: "33333333-3333-3333-3333-333333333333",
		TargetCollectionID: targetID,
		Selection:          Selection{Kind: SelectionAllMatching},
	})
	require.NoError(t, err)

	require.NoError(t, f.executor(f.memberships).Run(context.Background(), job.ID))

	got, err := f.store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
	assert.Zero(t, got.Counters.Processed)
}

func TestExecutor_Run_ItemFailureIsNotFatal(t *testing.T) {
	f := newExecutorFixture(t)

	for id := int64(1); id <= 5; id++ {
		require.NoError(t, f.memberships.Add(context.Background(), sourceID, id))
	}

	// Company 3 cannot be added; everything else succeeds.
	hooked := &hookedMemberships{
		Store: f.memberships,
		addErr: func(companyID int64) error {
			if companyID == 3 {
				return fmt.Errorf("constraint violation")
			}
			return nil
		},
	}

	job := f.createJob(t, Selection{Kind: SelectionAllMatching})
	require.NoError(t, f.executor(hooked).Run(context.Background(), job.ID))

	got, err := f.store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, got.Status, "per-item failures do not fail the job")
	assert.Equal(t, 5, got.Counters.Processed)
	assert.Equal(t, 4, got.Counters.Added)
	assert.Equal(t, 1, got.Counters.Failed)
	assert.Contains(t, got.ErrorMessage, "company 3")
	assertCounterInvariant(t, got)
}

func TestExecutor_Run_CancellationBetweenItems(t *testing.T) {
	f := newExecutorFixture(t)

	for id := int64(1); id <= 10; id++ {
		require.NoError(t, f.memberships.Add(context.Background(), sourceID, id))
	}

	job := f.createJob(t, Selection{Kind: SelectionAllMatching})

	// Request cancellation right after the first successful add; the
	// executor observes the flag before the next item.
	hooked := &hookedMemberships{
		Store: f.memberships,
		afterAdd: func(int64) {
			_ = f.store.RequestCancel(context.Background(), job.ID)
		},
	}

	require.NoError(t, f.executor(hooked).Run(context.Background(), job.ID))

	got, err := f.store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 1, got.Counters.Processed)
	assert.Less(t, got.Counters.Processed, got.Counters.Total)
	assertCounterInvariant(t, got)

	// No rollback: the item added before cancellation stays added.
	stillThere, err := f.memberships.Contains(context.Background(), targetID, 1)
	require.NoError(t, err)
	assert.True(t, stillThere)

	// Terminal state freezes counters; observing twice yields the same values.
	again, err := f.store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Counters, again.Counters)
	assert.Equal(t, got.Status, again.Status)
}

func TestExecutor_Run_CancelBeforeFirstItem(t *testing.T) {
	f := newExecutorFixture(t)

	for id := int64(1); id <= 3; id++ {
		require.NoError(t, f.memberships.Add(context.Background(), sourceID, id))
	}

	job := f.createJob(t, Selection{Kind: SelectionAllMatching})
	require.NoError(t, f.store.RequestCancel(context.Background(), job.ID))

	require.NoError(t, f.executor(f.memberships).Run(context.Background(), job.ID))

	got, err := f.store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, got.Status)
	assert.Zero(t, got.Counters.Processed)
}

func TestExecutor_Run_EmptySelectionCompletes(t *testing.T) {
	f := newExecutorFixture(t)

	job := f.createJob(t, Selection{Kind: SelectionExplicit, IDs: []int64{}})
	require.NoError(t, f.executor(f.memberships).Run(context.Background(), job.ID))

	got, err := f.store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, got.Status)
	assert.Zero(t, got.Counters.Total)
	assert.Zero(t, got.Counters.Processed)
	assert.InDelta(t, 0.0, got.ProgressPct(), 0.001)
}

func TestExecutor_Run_ClaimConflict(t *testing.T) {
	f := newExecutorFixture(t)

	job := f.createJob(t, Selection{Kind: SelectionExplicit, IDs: []int64{1}})

	_, err := f.store.Claim(context.Background(), job.ID)
	require.NoError(t, err)

	err = f.executor(f.memberships).Run(context.Background(), job.ID)
	assert.True(t, errors.Is(err, ErrJobNotClaimable))
}

func TestExecutor_Run_JobNotFound(t *testing.T) {
	f := newExecutorFixture(t)

	err := f.executor(f.memberships).Run(context.Background(), "no-such-job")
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestExecutor_Run_InvariantHoldsDuringRun(t *testing.T) {
	f := newExecutorFixture(t)

	for id := int64(1); id <= 20; id++ {
		require.NoError(t, f.memberships.Add(context.Background(), sourceID, id))
	}

	job := f.createJob(t, Selection{Kind: SelectionAllMatching})

	// Observe the job after every add; the single-step counter update
	// must never expose a torn snapshot.
	hooked := &hookedMemberships{
		Store: f.memberships,
		afterAdd: func(int64) {
			got, err := f.store.GetByID(context.Background(), job.ID)
			require.NoError(t, err)
			assertCounterInvariant(t, got)
		},
	}

	require.NoError(t, f.executor(hooked).Run(context.Background(), job.ID))

	got, err := f.store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 20, got.Counters.Added)
}
