package eventlog

import "time"

// Fact es un registro inmutable del event log: describe una transición de
// estado ya comprometida. Nunca se actualiza ni se borra.
type Fact struct {
	// Sequence es asignada por el store al insertar: estrictamente creciente
	// y sin huecos para una instancia dada del store.
	Sequence int64

	Type        FactType
	AggregateID string

	// Payload es data estructurada opaca (se persiste como JSON).
	Payload map[string]any

	RecordedAt time.Time
}
