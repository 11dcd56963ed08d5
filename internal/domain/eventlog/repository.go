package eventlog

import "context"

// Repository es el store append-only de facts.
//
// Append asigna la sequence bajo el punto único de serialización del store
// (transacción en Postgres, counter bajo lock en memoria) y nunca escribe
// parcialmente. No existe update ni delete: el log es la fuente de verdad
// para auditoría y replay.
type Repository interface {
	Append(ctx context.Context, f Fact) (Fact, error)
	ListByAggregate(ctx context.Context, aggregateID string) ([]Fact, error)
}
