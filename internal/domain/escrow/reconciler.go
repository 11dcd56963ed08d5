package escrow

import (
	"context"
	"errors"
	"time"

	"pet-custody-escrow/internal/platform/logger"
	"pet-custody-escrow/internal/platform/metrics"
)

// Settler decide la salida de un escrow HELD sin transacción en vuelo cuyo
// agreement pudo haber cerrado mientras el hold confirmaba (terminate con el
// hold todavía pendiente en el ledger). custody.Service lo satisface.
// Devuelve true si empujó una salida; false si el agreement sigue abierto.
type Settler interface {
	SettleHeld(ctx context.Context, acct Account) (bool, error)
}

// Reconciler retoma las confirmaciones de ledger en vuelo: holds en
// PENDING_HOLD, salidas (release/refund) pendientes y escrows HELD cuyo
// agreement ya cerró. Corre fuera de todo per-pet lock; cada commit re-entra
// por el orchestrator vía el service.
type Reconciler struct {
	svc      *Service
	settler  Settler
	interval time.Duration
	log      logger.Logger
	metrics  *metrics.Metrics
}

func NewReconciler(svc *Service, settler Settler, interval time.Duration, log logger.Logger, m *metrics.Metrics) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Reconciler{
		svc:      svc,
		settler:  settler,
		interval: interval,
		log:      log,
		metrics:  m,
	}
}

// Run bloquea hasta que ctx se cancele. Pensado para `go rec.Run(ctx)`.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep hace una pasada sobre las cuentas no asentadas.
// Exportado para poder dispararlo determinísticamente en tests.
func (r *Reconciler) Sweep(ctx context.Context) {
	accounts, err := r.svc.Unsettled(ctx)
	if err != nil {
		r.metrics.Reconcile("list_error")
		r.log.Error("reconciler: list unsettled", map[string]any{"err": err.Error()})
		return
	}

	for _, acct := range accounts {
		acted, err := r.reconcile(ctx, acct)
		switch {
		case err == nil:
			if acted {
				r.metrics.Reconcile("ok")
			}
		case errors.Is(err, ErrTransitionFailed):
			r.metrics.Reconcile("failed")
			r.log.Warn("reconciler: ledger rejected transition", map[string]any{
				"escrow_id": acct.ID,
			})
		default:
			r.metrics.Reconcile("error")
			r.log.Error("reconciler: confirm", map[string]any{
				"escrow_id": acct.ID,
				"err":       err.Error(),
			})
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context, acct Account) (bool, error) {
	acted := false

	if acct.Status == StatusPendingHold {
		if acct.HoldTxRef == "" {
			return false, nil
		}
		fresh, err := r.svc.ConfirmHold(ctx, acct.ID)
		if err != nil {
			return true, err
		}
		acted = fresh.Status == StatusHeld
		// Si el hold recién confirmó, seguir de largo: el agreement pudo
		// haber cerrado mientras tanto y la salida queda por empujar.
		acct = fresh
	}

	if acct.Status != StatusHeld {
		return acted, nil
	}
	if acct.ExitTxRef != "" {
		_, err := r.svc.ConfirmExit(ctx, acct.ID)
		return true, err
	}
	if r.settler == nil {
		return acted, nil
	}
	settled, err := r.settler.SettleHeld(ctx, acct)
	return acted || settled, err
}
