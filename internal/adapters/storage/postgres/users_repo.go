package postgres

import (
	"context"
	"database/sql"
	"strings"

	"pet-custody-escrow/internal/domain/users"
)

type UsersRepo struct {
	db *DB
}

func NewUsersRepo(db *DB) *UsersRepo {
	return &UsersRepo{db: db}
}

func (r *UsersRepo) Create(ctx context.Context, u users.User) error {
	_, err := r.db.q(ctx).ExecContext(ctx, `
		INSERT INTO users (
			id, email,
			first_name, last_name,
			role, stellar_public_key,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		u.ID,
		u.Email,
		u.FirstName,
		u.LastName,
		string(u.Role),
		u.StellarPublicKey,
		u.CreatedAt,
	)
	return err
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (users.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return users.User{}, ErrNotFound
	}

	return r.scanOne(r.db.q(ctx).QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, role, stellar_public_key, created_at
		FROM users
		WHERE id = $1
	`, id))
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (users.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return users.User{}, ErrNotFound
	}

	return r.scanOne(r.db.q(ctx).QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, role, stellar_public_key, created_at
		FROM users
		WHERE email = $1
	`, email))
}

func (r *UsersRepo) scanOne(row *sql.Row) (users.User, error) {
	var u users.User
	var role string
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&role,
		&u.StellarPublicKey,
		&u.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return users.User{}, ErrNotFound
		}
		return users.User{}, err
	}
	u.Role = users.Role(role)
	return u, nil
}
