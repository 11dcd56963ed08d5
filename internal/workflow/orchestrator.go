package workflow

import (
	"context"
	"errors"
	"sync"

	"pet-custody-escrow/internal/ports/auth"
)

var (
	// ErrPetUnavailable: la mascota ya tiene un request/agreement no terminal.
	ErrPetUnavailable = errors.New("pet unavailable")
	// ErrForbidden: el rol del actor no cubre la acción.
	ErrForbidden = errors.New("forbidden")
)

// Action identifica una transición cross-entity para el guard y para la
// tabla de capacidades.
type Action string

const (
	ActionAdoptionRequest Action = "adoption.request"
	ActionAdoptionApprove Action = "adoption.approve"
	ActionAdoptionReject  Action = "adoption.reject"
	ActionAdoptionCancel  Action = "adoption.cancel"

	ActionCustodyCreate    Action = "custody.create"
	ActionCustodyActivate  Action = "custody.activate"
	ActionCustodyComplete  Action = "custody.complete"
	ActionCustodyTerminate Action = "custody.terminate"
)

// Actor es quien intenta la transición (claims ya autenticados).
type Actor struct {
	ID   string
	Role auth.Role
}

// AdoptionGuard y CustodyGuard son reads puros sobre los repos de cada engine.
// El orchestrator los usa para el invariante cross-entity: a lo sumo un
// request no terminal Y a lo sumo un agreement no terminal por mascota.
type AdoptionGuard interface {
	HasOpenRequestForPet(ctx context.Context, petID string) (bool, error)
}

type CustodyGuard interface {
	HasOpenAgreementForPet(ctx context.Context, petID string) (bool, error)
}

// capabilities enumera los roles habilitados por acción (chequeo único en el
// boundary del orchestrator; los engines no re-chequean roles).
var capabilities = map[Action][]auth.Role{
	ActionAdoptionRequest: {auth.RoleUser, auth.RoleShelter, auth.RoleAdmin},
	ActionAdoptionApprove: {auth.RoleShelter, auth.RoleAdmin},
	ActionAdoptionReject:  {auth.RoleShelter, auth.RoleAdmin},
	ActionAdoptionCancel:  {auth.RoleUser, auth.RoleShelter, auth.RoleAdmin},

	ActionCustodyCreate:    {auth.RoleShelter, auth.RoleAdmin},
	ActionCustodyActivate:  {auth.RoleShelter, auth.RoleAdmin},
	ActionCustodyComplete:  {auth.RoleShelter, auth.RoleAdmin},
	ActionCustodyTerminate: {auth.RoleShelter, auth.RoleAdmin},
}

// Orchestrator coordina transiciones que ningún engine puede garantizar solo:
// serializa por mascota, valida el invariante adoption-vs-custody y aplica
// la tabla de capacidades.
type Orchestrator struct {
	adoption AdoptionGuard
	custody  CustodyGuard

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(adoption AdoptionGuard, custody CustodyGuard) *Orchestrator {
	return &Orchestrator{
		adoption: adoption,
		custody:  custody,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Do ejecuta fn bajo el lock lógico de la mascota: a lo sumo una transición
// in-flight por pet. La confirmación de ledger NUNCA debe esperar adentro de
// fn; el caller hace poll afuera y re-entra con Do para comprometer.
func (o *Orchestrator) Do(ctx context.Context, petID string, fn func(ctx context.Context) error) error {
	if petID == "" {
		return errors.New("pet id required")
	}

	mu := o.lockFor(petID)
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

func (o *Orchestrator) lockFor(petID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	mu, ok := o.locks[petID]
	if !ok {
		mu = &sync.Mutex{}
		o.locks[petID] = mu
	}
	return mu
}

// CanTransition es un read puro: responde si la acción es admisible para la
// mascota dado el invariante cross-entity. Los engines lo llaman ANTES de
// mutar, ya adentro del per-pet lock.
func (o *Orchestrator) CanTransition(ctx context.Context, petID string, action Action) error {
	switch action {
	case ActionAdoptionRequest, ActionCustodyCreate:
		openReq, err := o.adoption.HasOpenRequestForPet(ctx, petID)
		if err != nil {
			return err
		}
		if openReq {
			return ErrPetUnavailable
		}

		openAgr, err := o.custody.HasOpenAgreementForPet(ctx, petID)
		if err != nil {
			return err
		}
		if openAgr {
			return ErrPetUnavailable
		}
		return nil
	default:
		// Las demás acciones operan sobre una entidad ya existente; el state
		// machine del engine decide.
		return nil
	}
}

// Authorize aplica la tabla de capacidades para el actor.
func (o *Orchestrator) Authorize(actor Actor, action Action) error {
	allowed, ok := capabilities[action]
	if !ok {
		return ErrForbidden
	}
	for _, r := range allowed {
		if actor.Role == r {
			return nil
		}
	}
	return ErrForbidden
}
