package eventlog

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// Append registra un fact. Los engines lo llaman como ÚLTIMO paso de una
// transición, dentro de la misma transacción que el write de estado.
func (s *Service) Append(ctx context.Context, typ FactType, aggregateID string, payload map[string]any) (Fact, error) {
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return Fact{}, ErrInvalidInput
	}
	if !typ.Known() {
		return Fact{}, ErrInvalidInput
	}

	return s.repo.Append(ctx, Fact{
		Type:        typ,
		AggregateID: aggregateID,
		Payload:     payload,
		RecordedAt:  s.now(),
	})
}

// ListByAggregate devuelve los facts de un agregado ordenados por sequence.
func (s *Service) ListByAggregate(ctx context.Context, aggregateID string) ([]Fact, error) {
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByAggregate(ctx, aggregateID)
}
