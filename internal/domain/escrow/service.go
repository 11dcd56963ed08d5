package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pet-custody-escrow/internal/domain/eventlog"
	"pet-custody-escrow/internal/platform/metrics"
	"pet-custody-escrow/internal/ports/ledger"
	"pet-custody-escrow/internal/ports/storage"
	"pet-custody-escrow/internal/workflow"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("escrow not found")
	ErrInvalidTransition = errors.New("invalid escrow transition")
	// ErrTransitionFailed: el ledger respondió Failed, o se agotó el
	// presupuesto de reintentos. El escrow queda en su estado previo,
	// elegible para retry manual o del reconciler.
	ErrTransitionFailed = errors.New("escrow transition failed")
	ErrNoDepositorKey   = errors.New("depositor has no registered ledger key")
)

// errStillPending marca una confirmación aún en vuelo dentro del poll.
var errStillPending = errors.New("confirmation still pending")

// KeyDirectory resuelve la public key de un usuario en el ledger.
// users.Service lo satisface.
type KeyDirectory interface {
	KeyOf(ctx context.Context, userID string) (string, error)
}

// RetryPolicy acota los reintentos contra el ledger (fallas transitorias y
// polls de confirmación).
type RetryPolicy struct {
	MaxAttempts uint64
	Base        time.Duration
	Ceiling     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Base:        500 * time.Millisecond,
		Ceiling:     30 * time.Second,
	}
}

type Deps struct {
	Repo    Repository
	Gateway ledger.Gateway
	Log     *eventlog.Service
	Keys    KeyDirectory
	Flow    *workflow.Orchestrator
	Tx      storage.TxRunner
	Metrics *metrics.Metrics
	Retry   RetryPolicy
}

type Service struct {
	repo    Repository
	gw      ledger.Gateway
	log     *eventlog.Service
	keys    KeyDirectory
	flow    *workflow.Orchestrator
	tx      storage.TxRunner
	metrics *metrics.Metrics
	retry   RetryPolicy
	now     func() time.Time
}

func NewService(d Deps) *Service {
	if d.Retry.MaxAttempts == 0 {
		d.Retry = DefaultRetryPolicy()
	}
	return &Service{
		repo:    d.Repo,
		gw:      d.Gateway,
		log:     d.Log,
		keys:    d.Keys,
		flow:    d.Flow,
		tx:      d.Tx,
		metrics: d.Metrics,
		retry:   d.Retry,
		now:     time.Now,
	}
}

type OpenHoldInput struct {
	AgreementID string
	PetID       string
	DepositorID string
	Amount      float64
}

// OpenHold abre (o retoma) el escrow de un agreement.
//
// Idempotente: si ya existe la cuenta del agreement, continúa desde donde
// quedó en vez de duplicar el hold — el mismo OpenHold dos veces produce
// exactamente un efecto en el ledger y un fact ESCROW_HELD.
//
// El submit y el poll de confirmación ocurren FUERA del per-pet lock; el
// lock se re-adquiere solo para comprometer cada escritura de estado.
func (s *Service) OpenHold(ctx context.Context, in OpenHoldInput) (Account, error) {
	if in.AgreementID == "" || in.PetID == "" || in.DepositorID == "" {
		return Account{}, ErrInvalidInput
	}
	if in.Amount <= 0 {
		return Account{}, ErrInvalidInput
	}

	fromKey, err := s.keys.KeyOf(ctx, in.DepositorID)
	if err != nil {
		return Account{}, ErrNoDepositorKey
	}

	acct, err := s.repo.GetByAgreement(ctx, in.AgreementID)
	switch {
	case err == nil:
		// Retry de una apertura previa: no crear otra cuenta.
	case errors.Is(err, ErrNotFound):
		acct = Account{
			ID:          uuid.NewString(),
			AgreementID: in.AgreementID,
			PetID:       in.PetID,
			DepositorID: in.DepositorID,
			Amount:      in.Amount,
			Status:      StatusPendingHold,
			CreatedAt:   s.now(),
			UpdatedAt:   s.now(),
		}
		err = s.flow.Do(ctx, acct.PetID, func(ctx context.Context) error {
			return s.tx.InTx(ctx, func(ctx context.Context) error {
				return s.repo.Create(ctx, acct)
			})
		})
		if err != nil {
			return Account{}, err
		}
	default:
		return Account{}, err
	}

	if acct.Status != StatusPendingHold {
		// Ya avanzó (HELD o terminal): nada que hacer.
		return acct, nil
	}

	if acct.HoldTxRef == "" {
		ref, err := s.submitHold(ctx, acct, fromKey)
		if err != nil {
			return acct, err
		}
		acct.HoldTxRef = ref
		acct.UpdatedAt = s.now()
		if err := s.persist(ctx, &acct); err != nil {
			return acct, err
		}
	}

	// Un intento de confirmación inmediata; si sigue pendiente, el
	// reconciler la retoma con su propio ritmo.
	return s.ConfirmHold(ctx, acct.ID)
}

func (s *Service) submitHold(ctx context.Context, acct Account, fromKey string) (string, error) {
	var ref string
	err := s.withBackoff(ctx, func() error {
		var err error
		ref, err = s.gw.SubmitHold(ctx, acct.Amount, fromKey, acct.ID)
		return err
	})
	if err != nil {
		s.metrics.LedgerOp(ledger.OpHold, "error")
		return "", mapLedgerErr(err)
	}
	s.metrics.LedgerOp(ledger.OpHold, "ok")
	return ref, nil
}

// ConfirmHold observa la finalidad del hold y, si el ledger confirmó,
// compromete PENDING_HOLD -> HELD con su fact. Seguro ante confirmaciones
// duplicadas o tardías: un escrow ya HELD es un no-op.
func (s *Service) ConfirmHold(ctx context.Context, escrowID string) (Account, error) {
	acct, err := s.repo.GetByID(ctx, escrowID)
	if err != nil {
		return Account{}, err
	}
	if acct.Status != StatusPendingHold {
		return acct, nil
	}
	if acct.HoldTxRef == "" {
		return acct, ErrInvalidTransition
	}

	status, err := s.gw.Confirm(ctx, acct.HoldTxRef)
	if err != nil {
		return acct, mapLedgerErr(err)
	}

	switch status {
	case ledger.StatusPending:
		return acct, nil
	case ledger.StatusFailed:
		// El hold no prosperó: se descarta la referencia para que un retry
		// re-emita la transacción (misma idempotency key, sin doble gasto).
		acct.HoldTxRef = ""
		acct.UpdatedAt = s.now()
		if err := s.persist(ctx, &acct); err != nil {
			return acct, err
		}
		s.metrics.Transition("escrow", "hold", "failed")
		return acct, ErrTransitionFailed
	case ledger.StatusConfirmed:
		return s.commitHeld(ctx, acct.ID)
	default:
		return acct, fmt.Errorf("unexpected ledger status %q", status)
	}
}

func (s *Service) commitHeld(ctx context.Context, escrowID string) (Account, error) {
	var out Account
	err := s.flowDoByEscrow(ctx, escrowID, func(ctx context.Context, acct Account) error {
		if acct.Status == StatusHeld {
			out = acct
			return nil
		}
		if acct.Status != StatusPendingHold {
			out = acct
			return ErrInvalidTransition
		}

		acct.Status = StatusHeld
		acct.UpdatedAt = s.now()
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			if err := s.repo.Update(ctx, acct); err != nil {
				return err
			}
			_, err := s.log.Append(ctx, eventlog.FactEscrowHeld, acct.ID, map[string]any{
				"agreement_id": acct.AgreementID,
				"amount":       acct.Amount,
				"tx_ref":       acct.HoldTxRef,
			})
			if err != nil {
				return err
			}
			out = acct
			return nil
		})
	})
	if err != nil {
		return out, err
	}
	s.metrics.Transition("escrow", "hold", "held")
	return out, nil
}

// Release libera los fondos retenidos hacia toKey. Solo válido desde HELD.
func (s *Service) Release(ctx context.Context, escrowID, toKey string) (Account, error) {
	if toKey == "" {
		return Account{}, ErrInvalidInput
	}
	return s.exit(ctx, escrowID, ExitRelease, toKey)
}

// Refund devuelve los fondos al depositante. Solo válido desde HELD.
func (s *Service) Refund(ctx context.Context, escrowID string) (Account, error) {
	acct, err := s.repo.GetByID(ctx, escrowID)
	if err != nil {
		return Account{}, err
	}
	toKey, err := s.keys.KeyOf(ctx, acct.DepositorID)
	if err != nil {
		return acct, ErrNoDepositorKey
	}
	return s.exit(ctx, escrowID, ExitRefund, toKey)
}

// exit implementa la salida desde HELD (release y refund son simétricos:
// cambia el destino y el fact).
func (s *Service) exit(ctx context.Context, escrowID string, kind ExitKind, toKey string) (Account, error) {
	acct, err := s.repo.GetByID(ctx, escrowID)
	if err != nil {
		return Account{}, err
	}

	// Idempotencia de cara al caller.
	if acct.Status == StatusReleased && kind == ExitRelease {
		return acct, nil
	}
	if acct.Status == StatusRefunded && kind == ExitRefund {
		return acct, nil
	}
	if acct.Status != StatusHeld {
		return acct, ErrInvalidTransition
	}
	if acct.ExitKind != "" && acct.ExitKind != kind {
		// Ya hay una salida opuesta en vuelo; release y refund son
		// mutuamente excluyentes.
		return acct, ErrInvalidTransition
	}

	if acct.ExitTxRef == "" {
		var ref string
		err = s.withBackoff(ctx, func() error {
			var err error
			ref, err = s.gw.SubmitRelease(ctx, acct.HoldTxRef, toKey, acct.ID)
			return err
		})
		if err != nil {
			s.metrics.LedgerOp(string(kind), "error")
			return acct, mapLedgerErr(err)
		}
		s.metrics.LedgerOp(string(kind), "ok")

		acct.ExitTxRef = ref
		acct.ExitKind = kind
		acct.ExitToKey = toKey
		acct.UpdatedAt = s.now()
		if err := s.persist(ctx, &acct); err != nil {
			return acct, err
		}
	}

	// Poll acotado; si la confirmación tarda más que el presupuesto, el
	// escrow queda HELD con la salida en vuelo y el reconciler la retoma.
	err = s.withBackoff(ctx, func() error {
		status, err := s.gw.Confirm(ctx, acct.ExitTxRef)
		if err != nil {
			return err
		}
		switch status {
		case ledger.StatusConfirmed:
			return nil
		case ledger.StatusPending:
			return errStillPending
		default:
			return backoff.Permanent(ErrTransitionFailed)
		}
	})
	if err != nil {
		if errors.Is(err, ErrTransitionFailed) {
			// Failed definitivo: limpiar la salida para permitir retry.
			acct.ExitTxRef = ""
			acct.ExitKind = ""
			acct.ExitToKey = ""
			acct.UpdatedAt = s.now()
			if perr := s.persist(ctx, &acct); perr != nil {
				return acct, perr
			}
			s.metrics.Transition("escrow", string(kind), "failed")
			return acct, ErrTransitionFailed
		}
		return acct, mapLedgerErr(err)
	}

	return s.commitExit(ctx, acct.ID, kind)
}

// ConfirmExit la usa el reconciler para una salida (release/refund) en vuelo.
func (s *Service) ConfirmExit(ctx context.Context, escrowID string) (Account, error) {
	acct, err := s.repo.GetByID(ctx, escrowID)
	if err != nil {
		return Account{}, err
	}
	if acct.Status.Terminal() {
		return acct, nil
	}
	if acct.Status != StatusHeld || acct.ExitTxRef == "" {
		return acct, ErrInvalidTransition
	}

	status, err := s.gw.Confirm(ctx, acct.ExitTxRef)
	if err != nil {
		return acct, mapLedgerErr(err)
	}

	switch status {
	case ledger.StatusPending:
		return acct, nil
	case ledger.StatusFailed:
		kind := acct.ExitKind
		acct.ExitTxRef = ""
		acct.ExitKind = ""
		acct.ExitToKey = ""
		acct.UpdatedAt = s.now()
		if err := s.persist(ctx, &acct); err != nil {
			return acct, err
		}
		s.metrics.Transition("escrow", string(kind), "failed")
		return acct, ErrTransitionFailed
	case ledger.StatusConfirmed:
		return s.commitExit(ctx, acct.ID, acct.ExitKind)
	default:
		return acct, fmt.Errorf("unexpected ledger status %q", status)
	}
}

func (s *Service) commitExit(ctx context.Context, escrowID string, kind ExitKind) (Account, error) {
	target := StatusReleased
	fact := eventlog.FactEscrowReleased
	if kind == ExitRefund {
		target = StatusRefunded
		fact = eventlog.FactEscrowRefunded
	}

	var out Account
	err := s.flowDoByEscrow(ctx, escrowID, func(ctx context.Context, acct Account) error {
		if acct.Status == target {
			out = acct
			return nil
		}
		if acct.Status != StatusHeld {
			out = acct
			return ErrInvalidTransition
		}

		acct.Status = target
		acct.UpdatedAt = s.now()
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			if err := s.repo.Update(ctx, acct); err != nil {
				return err
			}
			_, err := s.log.Append(ctx, fact, acct.ID, map[string]any{
				"agreement_id": acct.AgreementID,
				"amount":       acct.Amount,
				"tx_ref":       acct.ExitTxRef,
				"to_key":       acct.ExitToKey,
			})
			if err != nil {
				return err
			}
			out = acct
			return nil
		})
	})
	if err != nil {
		return out, err
	}
	s.metrics.Transition("escrow", string(kind), string(target))
	return out, nil
}

func (s *Service) GetByAgreement(ctx context.Context, agreementID string) (Account, error) {
	return s.repo.GetByAgreement(ctx, agreementID)
}

func (s *Service) GetByID(ctx context.Context, id string) (Account, error) {
	return s.repo.GetByID(ctx, id)
}

// Unsettled expone las cuentas con transacciones en vuelo (para el reconciler).
func (s *Service) Unsettled(ctx context.Context) ([]Account, error) {
	return s.repo.ListUnsettled(ctx)
}

// flowDoByEscrow re-lee la cuenta adentro del per-pet lock y corre fn con el
// estado fresco: la relectura es lo que hace idempotente a un commit tardío.
func (s *Service) flowDoByEscrow(ctx context.Context, escrowID string, fn func(ctx context.Context, acct Account) error) error {
	acct, err := s.repo.GetByID(ctx, escrowID)
	if err != nil {
		return err
	}
	return s.flow.Do(ctx, acct.PetID, func(ctx context.Context) error {
		fresh, err := s.repo.GetByID(ctx, escrowID)
		if err != nil {
			return err
		}
		return fn(ctx, fresh)
	})
}

func (s *Service) persist(ctx context.Context, acct *Account) error {
	a := *acct
	return s.flow.Do(ctx, a.PetID, func(ctx context.Context) error {
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			return s.repo.Update(ctx, a)
		})
	})
}

// withBackoff reintenta op ante fallas transitorias del ledger, con backoff
// exponencial y presupuesto acotado. Errores permanentes cortan de inmediato.
func (s *Service) withBackoff(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retry.Base
	bo.MaxInterval = s.retry.Ceiling

	return backoff.Retry(func() error {
		err := op()
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ledger.ErrUnavailable):
			return err
		case errors.Is(err, errStillPending):
			return err
		default:
			return backoff.Permanent(err)
		}
	}, backoff.WithContext(backoff.WithMaxRetries(bo, s.retry.MaxAttempts), ctx))
}

// mapLedgerErr traduce errores del gateway a la taxonomía del engine.
// Transitorios agotados se reportan como transición fallida (retryable);
// los permanentes (fondos/key) se propagan tal cual.
func mapLedgerErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrUnavailable), errors.Is(err, errStillPending):
		return fmt.Errorf("%w: %v", ErrTransitionFailed, err)
	default:
		return err
	}
}
