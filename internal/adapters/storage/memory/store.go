package memory

import (
	"context"
	"sync"

	"pet-custody-escrow/internal/domain/adoption"
	"pet-custody-escrow/internal/domain/custody"
	"pet-custody-escrow/internal/domain/escrow"
	"pet-custody-escrow/internal/domain/eventlog"
	"pet-custody-escrow/internal/domain/pets"
	"pet-custody-escrow/internal/domain/users"
)

// Store es el backend in-memory para dev y tests. Un solo estado compartido
// por todos los repos, con transacciones por snapshot: InTx serializa,
// copia los maps y los restaura si fn falla. Así el write de estado y el
// append del fact quedan atómicos igual que en Postgres.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	usersByID      map[string]users.User
	petsByID       map[string]pets.Pet
	requestsByID   map[string]adoption.Request
	agreementsByID map[string]custody.Agreement
	escrowsByID    map[string]escrow.Account

	facts []eventlog.Fact
	seq   int64
}

func NewStore() *Store {
	return &Store{
		usersByID:      make(map[string]users.User),
		petsByID:       make(map[string]pets.Pet),
		requestsByID:   make(map[string]adoption.Request),
		agreementsByID: make(map[string]custody.Agreement),
		escrowsByID:    make(map[string]escrow.Account),
	}
}

type txKey struct{}

// InTx serializa la transacción y restaura el snapshot completo (incluida
// la sequence del event log: un rollback no puede dejar huecos). Anidar
// InTx reusa la transacción activa, igual que el backend Postgres.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	users      map[string]users.User
	pets       map[string]pets.Pet
	requests   map[string]adoption.Request
	agreements map[string]custody.Agreement
	escrows    map[string]escrow.Account
	facts      []eventlog.Fact
	seq        int64
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return snapshot{
		users:      copyMap(s.usersByID),
		pets:       copyMap(s.petsByID),
		requests:   copyMap(s.requestsByID),
		agreements: copyMap(s.agreementsByID),
		escrows:    copyMap(s.escrowsByID),
		facts:      append([]eventlog.Fact(nil), s.facts...),
		seq:        s.seq,
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.usersByID = snap.users
	s.petsByID = snap.pets
	s.requestsByID = snap.requests
	s.agreementsByID = snap.agreements
	s.escrowsByID = snap.escrows
	s.facts = snap.facts
	s.seq = snap.seq
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
