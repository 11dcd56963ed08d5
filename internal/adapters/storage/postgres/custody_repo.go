package postgres

import (
	"context"
	"database/sql"
	"strings"

	"pet-custody-escrow/internal/domain/custody"
)

type CustodyRepo struct {
	db *DB
}

func NewCustodyRepo(db *DB) *CustodyRepo {
	return &CustodyRepo{db: db}
}

func (r *CustodyRepo) Create(ctx context.Context, a custody.Agreement) error {
	_, err := r.db.q(ctx).ExecContext(ctx, `
		INSERT INTO custody_agreements (
			id, pet_id,
			owner_id, keeper_id,
			deposit_amount, start_date, end_date, terms,
			status, termination_reason,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		a.ID,
		a.PetID,
		a.OwnerID,
		a.KeeperID,
		a.DepositAmount,
		a.StartDate,
		a.EndDate,
		a.Terms,
		string(a.Status),
		a.TerminationReason,
		a.CreatedAt,
		a.UpdatedAt,
	)
	return err
}

func (r *CustodyRepo) Update(ctx context.Context, a custody.Agreement) error {
	res, err := r.db.q(ctx).ExecContext(ctx, `
		UPDATE custody_agreements
		SET
			status = $2,
			termination_reason = $3,
			updated_at = $4
		WHERE id = $1
	`,
		a.ID,
		string(a.Status),
		a.TerminationReason,
		a.UpdatedAt,
	)
	if err != nil {
		return err
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return custody.ErrNotFound
	}
	return nil
}

func (r *CustodyRepo) GetByID(ctx context.Context, id string) (custody.Agreement, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return custody.Agreement{}, custody.ErrNotFound
	}

	row := r.db.q(ctx).QueryRowContext(ctx, `
		SELECT
			id, pet_id,
			owner_id, keeper_id,
			deposit_amount, start_date, end_date, terms,
			status, termination_reason,
			created_at, updated_at
		FROM custody_agreements
		WHERE id = $1
	`, id)

	var a custody.Agreement
	var status string
	if err := row.Scan(
		&a.ID,
		&a.PetID,
		&a.OwnerID,
		&a.KeeperID,
		&a.DepositAmount,
		&a.StartDate,
		&a.EndDate,
		&a.Terms,
		&status,
		&a.TerminationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return custody.Agreement{}, custody.ErrNotFound
		}
		return custody.Agreement{}, err
	}

	a.Status = custody.Status(status)
	return a, nil
}

func (r *CustodyRepo) HasOpenAgreementForPet(ctx context.Context, petID string) (bool, error) {
	var exists bool
	err := r.db.q(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM custody_agreements
			WHERE pet_id = $1 AND status IN ('PENDING', 'ACTIVE')
		)
	`, petID).Scan(&exists)
	return exists, err
}
