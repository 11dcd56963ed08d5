package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"pet-custody-escrow/internal/domain/pets"
)

type PetsRepo struct {
	db *DB
}

func NewPetsRepo(db *DB) *PetsRepo {
	return &PetsRepo{db: db}
}

func (r *PetsRepo) Create(ctx context.Context, p pets.Pet) error {
	_, err := r.db.q(ctx).ExecContext(ctx, `
		INSERT INTO pets (
			id, owner_user_id,
			name, species, breed, age, description,
			status,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		p.ID,
		p.OwnerUserID,
		p.Name,
		string(p.Species),
		p.Breed,
		p.Age,
		p.Description,
		string(p.Status),
		p.CreatedAt,
		p.UpdatedAt,
	)
	return err
}

func (r *PetsRepo) GetByID(ctx context.Context, id string) (pets.Pet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return pets.Pet{}, ErrNotFound
	}

	row := r.db.q(ctx).QueryRowContext(ctx, `
		SELECT
			id, owner_user_id,
			name, species, breed, age, description,
			status,
			created_at, updated_at
		FROM pets
		WHERE id = $1
	`, id)

	p, err := scanPet(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return pets.Pet{}, ErrNotFound
		}
		return pets.Pet{}, err
	}
	return p, nil
}

func (r *PetsRepo) List(ctx context.Context) ([]pets.Pet, error) {
	return r.list(ctx, `
		SELECT
			id, owner_user_id,
			name, species, breed, age, description,
			status,
			created_at, updated_at
		FROM pets
		ORDER BY created_at DESC, id
	`)
}

func (r *PetsRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]pets.Pet, error) {
	return r.list(ctx, `
		SELECT
			id, owner_user_id,
			name, species, breed, age, description,
			status,
			created_at, updated_at
		FROM pets
		WHERE owner_user_id = $1
		ORDER BY created_at DESC, id
	`, ownerUserID)
}

func (r *PetsRepo) UpdateStatus(ctx context.Context, id string, status pets.Status) error {
	res, err := r.db.q(ctx).ExecContext(ctx, `
		UPDATE pets
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, string(status), time.Now())
	if err != nil {
		return err
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PetsRepo) list(ctx context.Context, query string, args ...any) ([]pets.Pet, error) {
	rows, err := r.db.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]pets.Pet, 0)
	for rows.Next() {
		p, err := scanPet(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	return out, rows.Err()
}

func scanPet(scan func(...any) error) (pets.Pet, error) {
	var p pets.Pet
	var species, status string

	if err := scan(
		&p.ID,
		&p.OwnerUserID,
		&p.Name,
		&species,
		&p.Breed,
		&p.Age,
		&p.Description,
		&status,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return pets.Pet{}, err
	}

	p.Species = pets.Species(species)
	p.Status = pets.Status(status)
	return p, nil
}
