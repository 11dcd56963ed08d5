package custody

import (
	"context"
	"errors"
	"strings"
	"time"

	"pet-custody-escrow/internal/domain/escrow"
	"pet-custody-escrow/internal/domain/eventlog"
	"pet-custody-escrow/internal/domain/pets"
	"pet-custody-escrow/internal/platform/metrics"
	"pet-custody-escrow/internal/ports/storage"
	"pet-custody-escrow/internal/workflow"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("agreement not found")
	ErrInvalidTransition = errors.New("invalid agreement transition")
	ErrNoKeeperKey       = errors.New("keeper has no registered ledger key")
	// ErrEscrowNotHeld: activate requiere el depósito confirmado en el ledger.
	ErrEscrowNotHeld = errors.New("escrow deposit not held yet")
	// ErrNotDue: complete solo aplica a partir de EndDate.
	ErrNotDue = errors.New("agreement end date not reached")
)

// KeyDirectory resuelve la public key de un usuario en el ledger.
type KeyDirectory interface {
	KeyOf(ctx context.Context, userID string) (string, error)
}

type Deps struct {
	Repo    Repository
	Pets    *pets.Service
	Escrow  *escrow.Service
	Log     *eventlog.Service
	Keys    KeyDirectory
	Flow    *workflow.Orchestrator
	Tx      storage.TxRunner
	Metrics *metrics.Metrics
}

type Service struct {
	repo    Repository
	pets    *pets.Service
	escrow  *escrow.Service
	log     *eventlog.Service
	keys    KeyDirectory
	flow    *workflow.Orchestrator
	tx      storage.TxRunner
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		repo:    d.Repo,
		pets:    d.Pets,
		escrow:  d.Escrow,
		log:     d.Log,
		keys:    d.Keys,
		flow:    d.Flow,
		tx:      d.Tx,
		metrics: d.Metrics,
		now:     time.Now,
	}
}

type CreateInput struct {
	PetID         string
	KeeperID      string
	DepositAmount float64
	StartDate     time.Time
	EndDate       time.Time
	Terms         string
}

// Create abre un agreement en PENDING y pide el hold del depósito.
//
// El agreement y su fact CUSTODY_CREATED se comprometen bajo el per-pet lock;
// el hold contra el ledger corre después, fuera del lock (ver escrow.OpenHold).
func (s *Service) Create(ctx context.Context, actor workflow.Actor, in CreateInput) (Agreement, error) {
	if err := s.flow.Authorize(actor, workflow.ActionCustodyCreate); err != nil {
		return Agreement{}, err
	}

	petID := strings.TrimSpace(in.PetID)
	keeperID := strings.TrimSpace(in.KeeperID)
	if petID == "" || keeperID == "" {
		return Agreement{}, ErrInvalidInput
	}
	if in.DepositAmount <= 0 {
		return Agreement{}, ErrInvalidInput
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() || !in.EndDate.After(in.StartDate) {
		return Agreement{}, ErrInvalidInput
	}

	p, err := s.pets.GetByID(ctx, petID)
	if err != nil {
		return Agreement{}, ErrNotFound
	}
	if keeperID == p.OwnerUserID {
		return Agreement{}, ErrInvalidInput
	}

	// El keeper necesita key registrada ANTES de crear nada: si no puede
	// depositar, no queremos un agreement huérfano sin escrow.
	if _, err := s.keys.KeyOf(ctx, keeperID); err != nil {
		return Agreement{}, ErrNoKeeperKey
	}

	now := s.now()
	a := Agreement{
		ID:            uuid.NewString(),
		PetID:         petID,
		OwnerID:       p.OwnerUserID,
		KeeperID:      keeperID,
		DepositAmount: in.DepositAmount,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Terms:         strings.TrimSpace(in.Terms),
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.flow.Do(ctx, petID, func(ctx context.Context) error {
		if err := s.flow.CanTransition(ctx, petID, workflow.ActionCustodyCreate); err != nil {
			return err
		}
		// Una mascota adoptada o en custodia no entra a un agreement nuevo
		// aunque sus requests/agreements históricos sean terminales.
		p, err := s.pets.GetByID(ctx, petID)
		if err != nil {
			return ErrNotFound
		}
		if p.Status != pets.StatusAvailable {
			return workflow.ErrPetUnavailable
		}

		return s.tx.InTx(ctx, func(ctx context.Context) error {
			if err := s.repo.Create(ctx, a); err != nil {
				return err
			}
			_, err := s.log.Append(ctx, eventlog.FactCustodyCreated, a.ID, map[string]any{
				"pet_id":         a.PetID,
				"keeper_id":      a.KeeperID,
				"deposit_amount": a.DepositAmount,
			})
			return err
		})
	})
	if err != nil {
		return Agreement{}, err
	}
	s.metrics.Transition("custody", "create", "pending")

	// Hold del depósito. Si el ledger lo rechaza de forma permanente, el
	// agreement queda PENDING sin escrow; el caller puede terminarlo o
	// reintentar el create (OpenHold es idempotente por agreement).
	if _, err := s.escrow.OpenHold(ctx, escrow.OpenHoldInput{
		AgreementID: a.ID,
		PetID:       a.PetID,
		DepositorID: a.KeeperID,
		Amount:      a.DepositAmount,
	}); err != nil {
		return a, err
	}

	return a, nil
}

// Activate transiciona PENDING -> ACTIVE. Solo válido con el escrow HELD:
// el estado del agreement nunca se adelanta a la verdad del ledger.
func (s *Service) Activate(ctx context.Context, actor workflow.Actor, agreementID string) (Agreement, error) {
	if err := s.flow.Authorize(actor, workflow.ActionCustodyActivate); err != nil {
		return Agreement{}, err
	}

	a, err := s.repo.GetByID(ctx, agreementID)
	if err != nil {
		return Agreement{}, ErrNotFound
	}

	var out Agreement
	err = s.flow.Do(ctx, a.PetID, func(ctx context.Context) error {
		a, err := s.repo.GetByID(ctx, agreementID)
		if err != nil {
			return ErrNotFound
		}
		out = a

		if a.Status == StatusActive {
			return nil // idempotente
		}
		if a.Status != StatusPending {
			return ErrInvalidTransition
		}

		acct, err := s.escrow.GetByAgreement(ctx, a.ID)
		if err != nil || acct.Status != escrow.StatusHeld {
			return ErrEscrowNotHeld
		}

		a.Status = StatusActive
		a.UpdatedAt = s.now()
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			if err := s.repo.Update(ctx, a); err != nil {
				return err
			}
			if err := s.pets.SetStatus(ctx, a.PetID, pets.StatusInCustody); err != nil {
				return err
			}
			_, err := s.log.Append(ctx, eventlog.FactCustodyActivated, a.ID, map[string]any{
				"pet_id":    a.PetID,
				"escrow_id": acct.ID,
			})
			if err != nil {
				return err
			}
			out = a
			return nil
		})
	})
	if err != nil {
		return out, err
	}
	s.metrics.Transition("custody", "activate", "active")
	return out, nil
}

// Complete cierra una custodia cumplida: ACTIVE -> COMPLETED a partir de
// EndDate. Libera el depósito hacia el owner y devuelve la mascota a
// AVAILABLE. Re-entrante: si el agreement ya está COMPLETED pero el release
// quedó en vuelo, vuelve a empujar la liberación.
func (s *Service) Complete(ctx context.Context, actor workflow.Actor, agreementID string) (Agreement, error) {
	if err := s.flow.Authorize(actor, workflow.ActionCustodyComplete); err != nil {
		return Agreement{}, err
	}

	var out Agreement
	err := s.flow.Do(ctx, s.petOf(ctx, agreementID), func(ctx context.Context) error {
		a, err := s.repo.GetByID(ctx, agreementID)
		if err != nil {
			return ErrNotFound
		}
		out = a

		if a.Status == StatusCompleted {
			return nil // idempotente; el release se reintenta abajo
		}
		if a.Status != StatusActive {
			return ErrInvalidTransition
		}
		if s.now().Before(a.EndDate) {
			return ErrNotDue
		}

		a.Status = StatusCompleted
		a.UpdatedAt = s.now()
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			if err := s.repo.Update(ctx, a); err != nil {
				return err
			}
			if err := s.pets.SetStatus(ctx, a.PetID, pets.StatusAvailable); err != nil {
				return err
			}
			_, err := s.log.Append(ctx, eventlog.FactCustodyCompleted, a.ID, map[string]any{
				"pet_id": a.PetID,
			})
			if err != nil {
				return err
			}
			out = a
			return nil
		})
	})
	if err != nil {
		return out, err
	}
	s.metrics.Transition("custody", "complete", "completed")

	if err := s.releaseDeposit(ctx, out); err != nil {
		return out, err
	}
	return out, nil
}

// Terminate corta un agreement PENDING o ACTIVE y devuelve el depósito al
// keeper. Restaura la mascota a AVAILABLE.
func (s *Service) Terminate(ctx context.Context, actor workflow.Actor, agreementID, reason string) (Agreement, error) {
	if err := s.flow.Authorize(actor, workflow.ActionCustodyTerminate); err != nil {
		return Agreement{}, err
	}

	var out Agreement
	err := s.flow.Do(ctx, s.petOf(ctx, agreementID), func(ctx context.Context) error {
		a, err := s.repo.GetByID(ctx, agreementID)
		if err != nil {
			return ErrNotFound
		}
		out = a

		if a.Status == StatusTerminated {
			return nil // idempotente; el refund se reintenta abajo
		}
		if a.Status != StatusPending && a.Status != StatusActive {
			return ErrInvalidTransition
		}

		a.Status = StatusTerminated
		a.TerminationReason = strings.TrimSpace(reason)
		a.UpdatedAt = s.now()
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			if err := s.repo.Update(ctx, a); err != nil {
				return err
			}
			if err := s.pets.SetStatus(ctx, a.PetID, pets.StatusAvailable); err != nil {
				return err
			}
			_, err := s.log.Append(ctx, eventlog.FactCustodyTerminated, a.ID, map[string]any{
				"pet_id": a.PetID,
				"reason": a.TerminationReason,
			})
			if err != nil {
				return err
			}
			out = a
			return nil
		})
	})
	if err != nil {
		return out, err
	}
	s.metrics.Transition("custody", "terminate", "terminated")

	if err := s.refundDeposit(ctx, out); err != nil {
		return out, err
	}
	return out, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Agreement, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Agreement{}, ErrNotFound
	}
	return a, nil
}

// releaseDeposit empuja el release del escrow hacia la key del owner.
// Tolera agreements sin escrow (hold nunca abierto) y escrows ya terminales.
func (s *Service) releaseDeposit(ctx context.Context, a Agreement) error {
	acct, err := s.escrow.GetByAgreement(ctx, a.ID)
	if err != nil {
		if errors.Is(err, escrow.ErrNotFound) {
			return nil
		}
		return err
	}
	if acct.Status.Terminal() {
		return nil
	}

	ownerKey, err := s.keys.KeyOf(ctx, a.OwnerID)
	if err != nil {
		return escrow.ErrNoDepositorKey
	}
	_, err = s.escrow.Release(ctx, acct.ID, ownerKey)
	return err
}

func (s *Service) refundDeposit(ctx context.Context, a Agreement) error {
	acct, err := s.escrow.GetByAgreement(ctx, a.ID)
	if err != nil {
		if errors.Is(err, escrow.ErrNotFound) {
			return nil
		}
		return err
	}

	// Un hold todavía en vuelo puede haber confirmado del lado del ledger:
	// un intento de confirmación antes de decidir evita dejar fondos
	// retenidos sin refund.
	if acct.Status == escrow.StatusPendingHold && acct.HoldTxRef != "" {
		acct, err = s.escrow.ConfirmHold(ctx, acct.ID)
		if err != nil && !errors.Is(err, escrow.ErrTransitionFailed) {
			return err
		}
	}
	if acct.Status != escrow.StatusHeld {
		return nil
	}

	_, err = s.escrow.Refund(ctx, acct.ID)
	return err
}

// SettleHeld empuja la salida pendiente de un escrow HELD cuyo agreement ya
// cerró: refund si TERMINATED, release si COMPLETED. Cubre el caso en que el
// cierre corrió con el hold todavía sin confirmar en el ledger y el escrow
// quedó HELD sin salida en vuelo. El reconciler lo invoca en cada sweep.
func (s *Service) SettleHeld(ctx context.Context, acct escrow.Account) (bool, error) {
	a, err := s.repo.GetByID(ctx, acct.AgreementID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	switch a.Status {
	case StatusTerminated:
		return true, s.refundDeposit(ctx, a)
	case StatusCompleted:
		return true, s.releaseDeposit(ctx, a)
	default:
		return false, nil
	}
}

// petOf resuelve el pet de un agreement para tomar su lock; si el agreement
// no existe, el Do igualmente corre y el fn interno devuelve ErrNotFound.
func (s *Service) petOf(ctx context.Context, agreementID string) string {
	a, err := s.repo.GetByID(ctx, agreementID)
	if err != nil {
		return "unknown:" + agreementID
	}
	return a.PetID
}
