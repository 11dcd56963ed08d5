package pets

import (
	"context"
	"errors"
	"strings"
	"time"

	"pet-custody-escrow/internal/domain/eventlog"
	"pet-custody-escrow/internal/ports/storage"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
)

type Service struct {
	repo Repository
	log  *eventlog.Service
	tx   storage.TxRunner
	now  func() time.Time
}

func NewService(repo Repository, log *eventlog.Service, tx storage.TxRunner) *Service {
	return &Service{
		repo: repo,
		log:  log,
		tx:   tx,
		now:  time.Now,
	}
}

type ListInput struct {
	Name        string
	Species     Species
	Breed       string
	Age         int
	Description string
}

// Create lista una mascota nueva. Nace AVAILABLE; el status a partir de ahí
// lo derivan los engines de adoption/custody.
func (s *Service) Create(ctx context.Context, ownerUserID string, in ListInput) (Pet, error) {
	if strings.TrimSpace(ownerUserID) == "" {
		return Pet{}, ErrInvalidInput
	}
	if strings.TrimSpace(in.Name) == "" {
		return Pet{}, ErrInvalidInput
	}
	if !in.Species.Valid() {
		return Pet{}, ErrInvalidInput
	}
	if in.Age < 0 {
		return Pet{}, ErrInvalidInput
	}

	now := s.now()
	p := Pet{
		ID:          uuid.NewString(),
		OwnerUserID: ownerUserID,
		Name:        strings.TrimSpace(in.Name),
		Species:     in.Species,
		Breed:       strings.TrimSpace(in.Breed),
		Age:         in.Age,
		Description: strings.TrimSpace(in.Description),
		Status:      StatusAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, p); err != nil {
			return err
		}
		_, err := s.log.Append(ctx, eventlog.FactPetListed, p.ID, map[string]any{
			"name":    p.Name,
			"species": string(p.Species),
		})
		return err
	})
	if err != nil {
		return Pet{}, err
	}
	return p, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Pet, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Pet, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListByOwner(ctx context.Context, ownerUserID string) ([]Pet, error) {
	return s.repo.ListByOwner(ctx, ownerUserID)
}

// SetStatus existe para los engines; no hay endpoint que lo exponga.
// El caller es responsable de invocarlo dentro del per-pet lock y de la
// transacción de su transición.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidInput
	}
	return s.repo.UpdateStatus(ctx, id, status)
}
