package adoption

import (
	"context"
	"errors"
	"strings"
	"time"

	"pet-custody-escrow/internal/domain/eventlog"
	"pet-custody-escrow/internal/domain/pets"
	"pet-custody-escrow/internal/platform/metrics"
	"pet-custody-escrow/internal/ports/auth"
	"pet-custody-escrow/internal/ports/storage"
	"pet-custody-escrow/internal/workflow"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("adoption request not found")
	ErrInvalidTransition = errors.New("invalid request transition")
	ErrNotOwner          = errors.New("only the pet owner can decide the request")
	ErrNotAdopter        = errors.New("only the adopter can cancel the request")
)

type Deps struct {
	Repo    Repository
	Pets    *pets.Service
	Log     *eventlog.Service
	Flow    *workflow.Orchestrator
	Tx      storage.TxRunner
	Metrics *metrics.Metrics
}

type Service struct {
	repo    Repository
	pets    *pets.Service
	log     *eventlog.Service
	flow    *workflow.Orchestrator
	tx      storage.TxRunner
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		repo:    d.Repo,
		pets:    d.Pets,
		log:     d.Log,
		flow:    d.Flow,
		tx:      d.Tx,
		metrics: d.Metrics,
		now:     time.Now,
	}
}

type RequestInput struct {
	PetID string
	Notes string
}

// Request crea una solicitud PENDING y marca la mascota como PENDING.
func (s *Service) Request(ctx context.Context, actor workflow.Actor, in RequestInput) (Request, error) {
	if err := s.flow.Authorize(actor, workflow.ActionAdoptionRequest); err != nil {
		return Request{}, err
	}

	petID := strings.TrimSpace(in.PetID)
	if petID == "" {
		return Request{}, ErrInvalidInput
	}

	p, err := s.pets.GetByID(ctx, petID)
	if err != nil {
		return Request{}, ErrNotFound
	}
	if p.OwnerUserID == actor.ID {
		return Request{}, ErrInvalidInput
	}

	now := s.now()
	req := Request{
		ID:        uuid.NewString(),
		PetID:     petID,
		AdopterID: actor.ID,
		OwnerID:   p.OwnerUserID,
		Notes:     strings.TrimSpace(in.Notes),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.flow.Do(ctx, petID, func(ctx context.Context) error {
		if err := s.flow.CanTransition(ctx, petID, workflow.ActionAdoptionRequest); err != nil {
			return err
		}
		// Una mascota adoptada o en custodia no se vuelve a solicitar aunque
		// sus requests históricos sean terminales.
		p, err := s.pets.GetByID(ctx, petID)
		if err != nil {
			return ErrNotFound
		}
		if p.Status != pets.StatusAvailable {
			return workflow.ErrPetUnavailable
		}

		return s.tx.InTx(ctx, func(ctx context.Context) error {
			if err := s.repo.Create(ctx, req); err != nil {
				return err
			}
			if err := s.pets.SetStatus(ctx, petID, pets.StatusPending); err != nil {
				return err
			}
			_, err := s.log.Append(ctx, eventlog.FactAdoptionRequested, req.ID, map[string]any{
				"pet_id":     req.PetID,
				"adopter_id": req.AdopterID,
			})
			return err
		})
	})
	if err != nil {
		return Request{}, err
	}
	s.metrics.Transition("adoption", "request", "pending")
	return req, nil
}

// Approve: owner-only, PENDING -> APPROVED, mascota ADOPTED. Sin escrow.
func (s *Service) Approve(ctx context.Context, actor workflow.Actor, requestID string) (Request, error) {
	return s.decide(ctx, actor, requestID, decision{
		action:    workflow.ActionAdoptionApprove,
		target:    StatusApproved,
		petStatus: pets.StatusAdopted,
		fact:      eventlog.FactAdoptionApproved,
		byOwner:   true,
		metric:    "approve",
	})
}

// Reject: owner-only, PENDING -> REJECTED, mascota vuelve a AVAILABLE.
func (s *Service) Reject(ctx context.Context, actor workflow.Actor, requestID string) (Request, error) {
	return s.decide(ctx, actor, requestID, decision{
		action:    workflow.ActionAdoptionReject,
		target:    StatusRejected,
		petStatus: pets.StatusAvailable,
		fact:      eventlog.FactAdoptionRejected,
		byOwner:   true,
		metric:    "reject",
	})
}

// Cancel: adopter-only, PENDING -> CANCELLED, mascota vuelve a AVAILABLE.
func (s *Service) Cancel(ctx context.Context, actor workflow.Actor, requestID string) (Request, error) {
	return s.decide(ctx, actor, requestID, decision{
		action:    workflow.ActionAdoptionCancel,
		target:    StatusCancelled,
		petStatus: pets.StatusAvailable,
		fact:      eventlog.FactAdoptionCancelled,
		byOwner:   false,
		metric:    "cancel",
	})
}

func (s *Service) GetByID(ctx context.Context, id string) (Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Request{}, ErrNotFound
	}
	return r, nil
}

type decision struct {
	action    workflow.Action
	target    Status
	petStatus pets.Status
	fact      eventlog.FactType
	byOwner   bool
	metric    string
}

// decide concentra las tres salidas del state machine: mismo esqueleto,
// cambian destino, fact y quién puede decidir.
func (s *Service) decide(ctx context.Context, actor workflow.Actor, requestID string, d decision) (Request, error) {
	if err := s.flow.Authorize(actor, d.action); err != nil {
		return Request{}, err
	}

	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return Request{}, ErrNotFound
	}

	var out Request
	err = s.flow.Do(ctx, req.PetID, func(ctx context.Context) error {
		req, err := s.repo.GetByID(ctx, requestID)
		if err != nil {
			return ErrNotFound
		}
		out = req

		// ADMIN puede destrabar requests ajenos.
		if actor.Role != auth.RoleAdmin {
			if d.byOwner && req.OwnerID != actor.ID {
				return ErrNotOwner
			}
			if !d.byOwner && req.AdopterID != actor.ID {
				return ErrNotAdopter
			}
		}

		if req.Status == d.target {
			return nil // idempotente
		}
		if req.Status != StatusPending {
			return ErrInvalidTransition
		}

		req.Status = d.target
		req.UpdatedAt = s.now()
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			if err := s.repo.Update(ctx, req); err != nil {
				return err
			}
			if err := s.pets.SetStatus(ctx, req.PetID, d.petStatus); err != nil {
				return err
			}
			_, err := s.log.Append(ctx, d.fact, req.ID, map[string]any{
				"pet_id": req.PetID,
			})
			if err != nil {
				return err
			}
			out = req
			return nil
		})
	})
	if err != nil {
		return out, err
	}
	s.metrics.Transition("adoption", d.metric, string(d.target))
	return out, nil
}
