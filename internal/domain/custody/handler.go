package custody

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"pet-custody-escrow/internal/domain/escrow"
	"pet-custody-escrow/internal/domain/users"
	"pet-custody-escrow/internal/middleware"
	"pet-custody-escrow/internal/ports/auth"
	"pet-custody-escrow/internal/ports/ledger"
	"pet-custody-escrow/internal/workflow"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, usersSvc *users.Service) {
	r.Route("/custody-agreements", func(cr chi.Router) {
		cr.Post("/", createAgreementHandler(svc, usersSvc))
		cr.Get("/{agreementID}", getAgreementHandler(svc))

		cr.Post("/{agreementID}/activate", transitionHandler(svc, usersSvc, "activate"))
		cr.Post("/{agreementID}/complete", transitionHandler(svc, usersSvc, "complete"))
		cr.Post("/{agreementID}/terminate", terminateAgreementHandler(svc, usersSvc))
	})
}

type createAgreementRequest struct {
	PetID         string  `json:"pet_id"`
	KeeperID      string  `json:"keeper_id"`
	DepositAmount float64 `json:"deposit_amount"`
	StartDate     string  `json:"start_date"` // RFC3339
	EndDate       string  `json:"end_date"`   // RFC3339
	Terms         string  `json:"terms"`
}

type terminateRequest struct {
	Reason string `json:"reason"`
}

type agreementResponse struct {
	ID                string    `json:"id"`
	PetID             string    `json:"pet_id"`
	OwnerID           string    `json:"owner_id"`
	KeeperID          string    `json:"keeper_id"`
	DepositAmount     float64   `json:"deposit_amount"`
	StartDate         time.Time `json:"start_date"`
	EndDate           time.Time `json:"end_date"`
	Terms             string    `json:"terms"`
	Status            Status    `json:"status"`
	TerminationReason string    `json:"termination_reason,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// createAgreementHandler godoc
// @Summary Crear custody agreement
// @Description Crea el agreement en PENDING y abre el hold del depósito en escrow. Requiere rol SHELTER o ADMIN y que el keeper tenga key de ledger registrada.
// @Tags custody
// @Accept json
// @Produce json
// @Param payload body createAgreementRequest true "Datos del agreement; fechas en RFC3339"
// @Success 201 {object} agreementResponse
// @Failure 400 {string} string "invalid json / datos inválidos"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 409 {string} string "pet unavailable"
// @Failure 422 {string} string "fondos insuficientes / key inválida"
// @Failure 502 {string} string "ledger no disponible"
// @Router /custody-agreements [post]
func createAgreementHandler(svc *Service, usersSvc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := resolveActor(w, r, usersSvc)
		if !ok {
			return
		}

		var req createAgreementRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		start, err := time.Parse(time.RFC3339, req.StartDate)
		if err != nil {
			http.Error(w, "start_date must be RFC3339", http.StatusBadRequest)
			return
		}
		end, err := time.Parse(time.RFC3339, req.EndDate)
		if err != nil {
			http.Error(w, "end_date must be RFC3339", http.StatusBadRequest)
			return
		}

		a, err := svc.Create(r.Context(), actor, CreateInput{
			PetID:         req.PetID,
			KeeperID:      req.KeeperID,
			DepositAmount: req.DepositAmount,
			StartDate:     start,
			EndDate:       end,
			Terms:         req.Terms,
		})
		if err != nil {
			writeAgreementError(w, err, a)
			return
		}

		writeJSON(w, http.StatusCreated, toAgreementResponse(a))
	}
}

func getAgreementHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		a, err := svc.GetByID(r.Context(), chi.URLParam(r, "agreementID"))
		if err != nil {
			http.Error(w, "agreement not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, toAgreementResponse(a))
	}
}

// transitionHandler cubre activate y complete (mismo shape: sin body).
func transitionHandler(svc *Service, usersSvc *users.Service, op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := resolveActor(w, r, usersSvc)
		if !ok {
			return
		}

		id := chi.URLParam(r, "agreementID")

		var (
			a   Agreement
			err error
		)
		switch op {
		case "activate":
			a, err = svc.Activate(r.Context(), actor, id)
		case "complete":
			a, err = svc.Complete(r.Context(), actor, id)
		}
		if err != nil {
			writeAgreementError(w, err, a)
			return
		}

		writeJSON(w, http.StatusOK, toAgreementResponse(a))
	}
}

func terminateAgreementHandler(svc *Service, usersSvc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := resolveActor(w, r, usersSvc)
		if !ok {
			return
		}

		var req terminateRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req) // body opcional
		}

		a, err := svc.Terminate(r.Context(), actor, chi.URLParam(r, "agreementID"), req.Reason)
		if err != nil {
			writeAgreementError(w, err, a)
			return
		}

		writeJSON(w, http.StatusOK, toAgreementResponse(a))
	}
}

// resolveActor arma el actor del workflow desde los claims; si el token no
// trae rol (modo dev), lo resuelve contra el repo de usuarios.
func resolveActor(w http.ResponseWriter, r *http.Request, usersSvc *users.Service) (workflow.Actor, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return workflow.Actor{}, false
	}

	role := claims.Role
	if role == "" {
		u, err := usersSvc.GetByID(r.Context(), claims.UserID)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return workflow.Actor{}, false
		}
		role = auth.Role(u.Role)
	}

	return workflow.Actor{ID: claims.UserID, Role: role}, true
}

// writeAgreementError mapea la taxonomía de errores a HTTP e incluye el
// estado actual de la entidad para que el cliente reconcilie sin re-query.
func writeAgreementError(w http.ResponseWriter, err error, a Agreement) {
	type errResponse struct {
		Error         string `json:"error"`
		CurrentStatus Status `json:"current_status,omitempty"`
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoKeeperKey):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, workflow.ErrPetUnavailable),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrEscrowNotHeld),
		errors.Is(err, escrow.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, ErrNotDue):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInvalidKey),
		errors.Is(err, escrow.ErrNoDepositorKey):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, escrow.ErrTransitionFailed):
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errResponse{
		Error:         err.Error(),
		CurrentStatus: a.Status,
	})
}

func toAgreementResponse(a Agreement) agreementResponse {
	return agreementResponse{
		ID:                a.ID,
		PetID:             a.PetID,
		OwnerID:           a.OwnerID,
		KeeperID:          a.KeeperID,
		DepositAmount:     a.DepositAmount,
		StartDate:         a.StartDate,
		EndDate:           a.EndDate,
		Terms:             a.Terms,
		Status:            a.Status,
		TerminationReason: a.TerminationReason,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

// writeJSON está duplicado intencionalmente en handlers de distintos módulos
// para evitar crear paquetes/helpers compartidos demasiado pronto.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
