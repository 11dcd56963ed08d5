package memory

import (
	"context"
	"errors"
	"sort"

	"pet-custody-escrow/internal/domain/eventlog"
)

type eventlogRepo struct {
	store *Store
}

func NewEventLogRepo(s *Store) eventlog.Repository {
	return &eventlogRepo{store: s}
}

// Append asigna la sequence bajo el lock del store: monotónica y sin huecos.
// Un rollback de InTx restaura también el counter.
func (r *eventlogRepo) Append(ctx context.Context, f eventlog.Fact) (eventlog.Fact, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if f.Type == "" || f.AggregateID == "" {
		return eventlog.Fact{}, errors.New("fact type and aggregate id required")
	}

	r.store.seq++
	f.Sequence = r.store.seq
	r.store.facts = append(r.store.facts, f)
	return f, nil
}

func (r *eventlogRepo) ListByAggregate(ctx context.Context, aggregateID string) ([]eventlog.Fact, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]eventlog.Fact, 0)
	for _, f := range r.store.facts {
		if f.AggregateID == aggregateID {
			out = append(out, f)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}
