package users

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
	ErrNoLedgerKey  = errors.New("user has no registered ledger key")
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

type RegisterInput struct {
	Email            string
	FirstName        string
	LastName         string
	Role             Role
	StellarPublicKey string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, ErrInvalidInput
	}

	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return User{}, ErrInvalidInput
	}

	u := User{
		ID:               uuid.NewString(),
		Email:            email,
		FirstName:        strings.TrimSpace(in.FirstName),
		LastName:         strings.TrimSpace(in.LastName),
		Role:             role,
		StellarPublicKey: strings.TrimSpace(in.StellarPublicKey),
		CreatedAt:        s.now(),
	}

	// Alta + fact en la misma transacción.
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, u); err != nil {
			return err
		}
		_, err := s.log.Append(ctx, eventlog.FactUserRegistered, u.ID, map[string]any{
			"email": u.Email,
		})
		return err
	})
	if err != nil {
		return User{}, err
	}

	return u, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

// KeyOf devuelve la public key del usuario en el ledger, o ErrNoLedgerKey.
// Lo usan custody/escrow para validar antes de mover fondos.
func (s *Service) KeyOf(ctx context.Context, userID string) (string, error) {
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.StellarPublicKey == "" {
		return "", ErrNoLedgerKey
	}
	return u.StellarPublicKey, nil
}
