package postgres

import (
	"context"
	"database/sql"
	"strings"

	"pet-custody-escrow/internal/domain/adoption"
)

type AdoptionRepo struct {
	db *DB
}

func NewAdoptionRepo(db *DB) *AdoptionRepo {
	return &AdoptionRepo{db: db}
}

func (r *AdoptionRepo) Create(ctx context.Context, req adoption.Request) error {
	_, err := r.db.q(ctx).ExecContext(ctx, `
		INSERT INTO adoption_requests (
			id, pet_id,
			adopter_id, owner_id,
			notes, status,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		req.ID,
		req.PetID,
		req.AdopterID,
		req.OwnerID,
		req.Notes,
		string(req.Status),
		req.CreatedAt,
		req.UpdatedAt,
	)
	return err
}

func (r *AdoptionRepo) Update(ctx context.Context, req adoption.Request) error {
	res, err := r.db.q(ctx).ExecContext(ctx, `
		UPDATE adoption_requests
		SET status = $2, notes = $3, updated_at = $4
		WHERE id = $1
	`,
		req.ID,
		string(req.Status),
		req.Notes,
		req.UpdatedAt,
	)
	if err != nil {
		return err
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return adoption.ErrNotFound
	}
	return nil
}

func (r *AdoptionRepo) GetByID(ctx context.Context, id string) (adoption.Request, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return adoption.Request{}, adoption.ErrNotFound
	}

	row := r.db.q(ctx).QueryRowContext(ctx, `
		SELECT
			id, pet_id,
			adopter_id, owner_id,
			notes, status,
			created_at, updated_at
		FROM adoption_requests
		WHERE id = $1
	`, id)

	var req adoption.Request
	var status string
	if err := row.Scan(
		&req.ID,
		&req.PetID,
		&req.AdopterID,
		&req.OwnerID,
		&req.Notes,
		&status,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return adoption.Request{}, adoption.ErrNotFound
		}
		return adoption.Request{}, err
	}

	req.Status = adoption.Status(status)
	return req, nil
}

func (r *AdoptionRepo) HasOpenRequestForPet(ctx context.Context, petID string) (bool, error) {
	var exists bool
	err := r.db.q(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM adoption_requests
			WHERE pet_id = $1 AND status = 'PENDING'
		)
	`, petID).Scan(&exists)
	return exists, err
}
