package postgres

import (
	"context"
	"database/sql"
	"strings"

	"pet-custody-escrow/internal/domain/escrow"
)

type EscrowRepo struct {
	db *DB
}

func NewEscrowRepo(db *DB) *EscrowRepo {
	return &EscrowRepo{db: db}
}

func (r *EscrowRepo) Create(ctx context.Context, a escrow.Account) error {
	_, err := r.db.q(ctx).ExecContext(ctx, `
		INSERT INTO escrow_accounts (
			id, agreement_id, pet_id, depositor_id,
			amount, status,
			hold_tx_ref, exit_tx_ref, exit_kind, exit_to_key,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		a.ID,
		a.AgreementID,
		a.PetID,
		a.DepositorID,
		a.Amount,
		string(a.Status),
		a.HoldTxRef,
		a.ExitTxRef,
		string(a.ExitKind),
		a.ExitToKey,
		a.CreatedAt,
		a.UpdatedAt,
	)
	return err
}

func (r *EscrowRepo) Update(ctx context.Context, a escrow.Account) error {
	res, err := r.db.q(ctx).ExecContext(ctx, `
		UPDATE escrow_accounts
		SET
			status = $2,
			hold_tx_ref = $3,
			exit_tx_ref = $4,
			exit_kind = $5,
			exit_to_key = $6,
			updated_at = $7
		WHERE id = $1
	`,
		a.ID,
		string(a.Status),
		a.HoldTxRef,
		a.ExitTxRef,
		string(a.ExitKind),
		a.ExitToKey,
		a.UpdatedAt,
	)
	if err != nil {
		return err
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return escrow.ErrNotFound
	}
	return nil
}

func (r *EscrowRepo) GetByID(ctx context.Context, id string) (escrow.Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return escrow.Account{}, escrow.ErrNotFound
	}
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *EscrowRepo) GetByAgreement(ctx context.Context, agreementID string) (escrow.Account, error) {
	agreementID = strings.TrimSpace(agreementID)
	if agreementID == "" {
		return escrow.Account{}, escrow.ErrNotFound
	}
	return r.getOne(ctx, `WHERE agreement_id = $1`, agreementID)
}

func (r *EscrowRepo) getOne(ctx context.Context, where string, arg any) (escrow.Account, error) {
	row := r.db.q(ctx).QueryRowContext(ctx, `
		SELECT
			id, agreement_id, pet_id, depositor_id,
			amount, status,
			hold_tx_ref, exit_tx_ref, exit_kind, exit_to_key,
			created_at, updated_at
		FROM escrow_accounts
	`+where, arg)

	a, err := scanEscrow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return escrow.Account{}, escrow.ErrNotFound
		}
		return escrow.Account{}, err
	}
	return a, nil
}

// ListUnsettled devuelve las cuentas no terminales que el reconciler debe
// mirar: holds pendientes de confirmar y todo HELD (con salida en vuelo, o
// sin ella pero con un agreement posiblemente cerrado).
func (r *EscrowRepo) ListUnsettled(ctx context.Context) ([]escrow.Account, error) {
	rows, err := r.db.q(ctx).QueryContext(ctx, `
		SELECT
			id, agreement_id, pet_id, depositor_id,
			amount, status,
			hold_tx_ref, exit_tx_ref, exit_kind, exit_to_key,
			created_at, updated_at
		FROM escrow_accounts
		WHERE (status = 'PENDING_HOLD' AND hold_tx_ref <> '')
		   OR status = 'HELD'
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]escrow.Account, 0)
	for rows.Next() {
		a, err := scanEscrow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	return out, rows.Err()
}

func scanEscrow(scan func(...any) error) (escrow.Account, error) {
	var a escrow.Account
	var status, exitKind string

	if err := scan(
		&a.ID,
		&a.AgreementID,
		&a.PetID,
		&a.DepositorID,
		&a.Amount,
		&status,
		&a.HoldTxRef,
		&a.ExitTxRef,
		&exitKind,
		&a.ExitToKey,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return escrow.Account{}, err
	}

	a.Status = escrow.Status(status)
	a.ExitKind = escrow.ExitKind(exitKind)
	return a, nil
}
