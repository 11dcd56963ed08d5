package postgres

import (
	"context"
	"encoding/json"

	"pet-custody-escrow/internal/domain/eventlog"
)

type EventLogRepo struct {
	db *DB
}

func NewEventLogRepo(db *DB) *EventLogRepo {
	return &EventLogRepo{db: db}
}

// Append inserta el fact con sequence = max+1 dentro de la tx del caller.
// El UNIQUE sobre sequence hace que dos appenders concurrentes colisionen en
// vez de dejar huecos; los engines serializan por mascota, así que en la
// práctica no compiten.
func (r *EventLogRepo) Append(ctx context.Context, f eventlog.Fact) (eventlog.Fact, error) {
	payload, err := json.Marshal(f.Payload)
	if err != nil {
		return eventlog.Fact{}, err
	}

	row := r.db.q(ctx).QueryRowContext(ctx, `
		INSERT INTO eventlog_facts (
			sequence,
			type, aggregate_id,
			payload, recorded_at
		) VALUES (
			(SELECT COALESCE(MAX(sequence), 0) + 1 FROM eventlog_facts),
			$1, $2, $3, $4
		)
		RETURNING sequence
	`,
		string(f.Type),
		f.AggregateID,
		payload,
		f.RecordedAt,
	)

	if err := row.Scan(&f.Sequence); err != nil {
		return eventlog.Fact{}, err
	}
	return f, nil
}

func (r *EventLogRepo) ListByAggregate(ctx context.Context, aggregateID string) ([]eventlog.Fact, error) {
	rows, err := r.db.q(ctx).QueryContext(ctx, `
		SELECT sequence, type, aggregate_id, payload, recorded_at
		FROM eventlog_facts
		WHERE aggregate_id = $1
		ORDER BY sequence ASC
	`, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]eventlog.Fact, 0)
	for rows.Next() {
		var f eventlog.Fact
		var typ string
		var payload []byte

		if err := rows.Scan(
			&f.Sequence,
			&typ,
			&f.AggregateID,
			&payload,
			&f.RecordedAt,
		); err != nil {
			return nil, err
		}

		f.Type = eventlog.FactType(typ)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &f.Payload); err != nil {
				return nil, err
			}
		}

		out = append(out, f)
	}

	return out, rows.Err()
}
