package dedupe

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/expert-registry/internal/model"
)

// MergeStore is the slice of the store the merge resolver needs.
type MergeStore interface {
	GetExpert(ctx context.Context, id string) (*model.ExpertRecord, error)
	ReassignSourcesAndDelete(ctx context.Context, survivorID, retiredID string) error
}

// Merger collapses two expert records into one, keeping the more complete
// record and moving every source row of the loser onto the survivor.
type Merger struct {
	store MergeStore
}

// NewMerger creates a Merger backed by the given store.
func NewMerger(s MergeStore) *Merger {
	return &Merger{store: s}
}

// Merge resolves the pair (idA, idB) into a single surviving record. The
// record with the higher completeness (non-empty name, employer, title)
// survives; on a tie the first argument survives. Source reassignment and
// loser deletion happen in one store transaction, so there is no state
// where sources reference a deleted record. If either record is missing
// the merge fails with resilience.ErrNotFound and performs no mutation.
func (m *Merger) Merge(ctx context.Context, idA, idB string) (*model.ExpertRecord, error) {
	a, err := m.store.GetExpert(ctx, idA)
	if err != nil {
		return nil, eris.Wrapf(err, "dedupe: merge: load expert %s", idA)
	}
	b, err := m.store.GetExpert(ctx, idB)
	if err != nil {
		return nil, eris.Wrapf(err, "dedupe: merge: load expert %s", idB)
	}

	survivor, loser := a, b
	if b.Completeness() > a.Completeness() {
		survivor, loser = b, a
	}

	if err := m.store.ReassignSourcesAndDelete(ctx, survivor.ID, loser.ID); err != nil {
		return nil, eris.Wrapf(err, "dedupe: merge: reassign sources %s <- %s", survivor.ID, loser.ID)
	}

	zap.L().Info("merged experts",
		zap.String("survivor_id", survivor.ID),
		zap.String("retired_id", loser.ID),
		zap.String("survivor_name", survivor.CanonicalName),
	)
	return survivor, nil
}
