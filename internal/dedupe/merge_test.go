package dedupe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/expert-registry/internal/model"
	"github.com/sells-group/expert-registry/internal/resilience"
)

// fakeMergeStore keeps experts in a map and records reassignments.
type fakeMergeStore struct {
	experts     map[string]*model.ExpertRecord
	reassigned  [][2]string
	reassignErr error
}

func (f *fakeMergeStore) GetExpert(_ context.Context, id string) (*model.ExpertRecord, error) {
	e, ok := f.experts[id]
	if !ok {
		return nil, resilience.ErrNotFound
	}
	return e, nil
}

func (f *fakeMergeStore) ReassignSourcesAndDelete(_ context.Context, survivorID, retiredID string) error {
	if f.reassignErr != nil {
		return f.reassignErr
	}
	f.reassigned = append(f.reassigned, [2]string{survivorID, retiredID})
	delete(f.experts, retiredID)
	return nil
}

func newFakeMergeStore(experts ...*model.ExpertRecord) *fakeMergeStore {
	f := &fakeMergeStore{experts: make(map[string]*model.ExpertRecord)}
	for _, e := range experts {
		f.experts[e.ID] = e
	}
	return f
}

func TestMerge_MoreCompleteSurvives(t *testing.T) {
	full := expert("full", "Jane Smith", "Acme", "CFO")
	sparse := expert("sparse", "Jane Smith", "", "")
	store := newFakeMergeStore(full, sparse)

	survivor, err := NewMerger(store).Merge(context.Background(), "sparse", "full")
	require.NoError(t, err)
	assert.Equal(t, "full", survivor.ID)
	require.Len(t, store.reassigned, 1)
	assert.Equal(t, [2]string{"full", "sparse"}, store.reassigned[0])
}

func TestMerge_OrderIndependentSurvivor(t *testing.T) {
	// Same surviving record (and therefore same field values) regardless of
	// argument order.
	for _, args := range [][2]string{{"full", "sparse"}, {"sparse", "full"}} {
		store := newFakeMergeStore(
			expert("full", "Jane Smith", "Acme", "CFO"),
			expert("sparse", "Jane Smith", "Acme", ""),
		)
		survivor, err := NewMerger(store).Merge(context.Background(), args[0], args[1])
		require.NoError(t, err)
		assert.Equal(t, "full", survivor.ID)
		assert.Equal(t, "CFO", survivor.CanonicalTitle)
	}
}

func TestMerge_TieFavorsFirst(t *testing.T) {
	store := newFakeMergeStore(
		expert("a", "Jane Smith", "Acme", ""),
		expert("b", "Jane Smith", "Acme Inc", ""),
	)
	survivor, err := NewMerger(store).Merge(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a", survivor.ID)
}

func TestMerge_NotFoundNoMutation(t *testing.T) {
	store := newFakeMergeStore(expert("a", "Jane Smith", "Acme", "CFO"))

	_, err := NewMerger(store).Merge(context.Background(), "a", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))
	assert.Empty(t, store.reassigned)
}

func TestMerge_ReassignFailurePropagates(t *testing.T) {
	store := newFakeMergeStore(
		expert("a", "Jane Smith", "Acme", "CFO"),
		expert("b", "Jane Smith", "", ""),
	)
	store.reassignErr = errors.New("tx aborted")

	_, err := NewMerger(store).Merge(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reassign sources")
}
