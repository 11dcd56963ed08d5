package adoption

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"pet-custody-escrow/internal/domain/users"
	"pet-custody-escrow/internal/middleware"
	"pet-custody-escrow/internal/ports/auth"
	"pet-custody-escrow/internal/workflow"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, usersSvc *users.Service) {
	r.Route("/adoption-requests", func(ar chi.Router) {
		ar.Post("/", createRequestHandler(svc, usersSvc))
		ar.Get("/{requestID}", getRequestHandler(svc))

		ar.Post("/{requestID}/approve", decisionHandler(svc, usersSvc, "approve"))
		ar.Post("/{requestID}/reject", decisionHandler(svc, usersSvc, "reject"))
		ar.Post("/{requestID}/cancel", decisionHandler(svc, usersSvc, "cancel"))
	})
}

type createRequestRequest struct {
	PetID string `json:"pet_id"`
	Notes string `json:"notes"`
}

type requestResponse struct {
	ID        string    `json:"id"`
	PetID     string    `json:"pet_id"`
	AdopterID string    `json:"adopter_id"`
	OwnerID   string    `json:"owner_id"`
	Notes     string    `json:"notes"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// createRequestHandler godoc
// @Summary Solicitar adopción
// @Description Crea un request PENDING y deja la mascota en PENDING. Falla con 409 si la mascota ya tiene un request o agreement no terminal.
// @Tags adoption
// @Accept json
// @Produce json
// @Param payload body createRequestRequest true "Mascota y notas del adoptante"
// @Success 201 {object} requestResponse
// @Failure 400 {string} string "invalid json / datos inválidos"
// @Failure 401 {string} string "unauthorized"
// @Failure 409 {string} string "pet unavailable"
// @Router /adoption-requests [post]
func createRequestHandler(svc *Service, usersSvc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := resolveActor(w, r, usersSvc)
		if !ok {
			return
		}

		var req createRequestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		out, err := svc.Request(r.Context(), actor, RequestInput{
			PetID: req.PetID,
			Notes: req.Notes,
		})
		if err != nil {
			writeRequestError(w, err, out)
			return
		}

		writeJSON(w, http.StatusCreated, toRequestResponse(out))
	}
}

func getRequestHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		out, err := svc.GetByID(r.Context(), chi.URLParam(r, "requestID"))
		if err != nil {
			http.Error(w, "request not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, toRequestResponse(out))
	}
}

func decisionHandler(svc *Service, usersSvc *users.Service, op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := resolveActor(w, r, usersSvc)
		if !ok {
			return
		}

		id := chi.URLParam(r, "requestID")

		var (
			out Request
			err error
		)
		switch op {
		case "approve":
			out, err = svc.Approve(r.Context(), actor, id)
		case "reject":
			out, err = svc.Reject(r.Context(), actor, id)
		case "cancel":
			out, err = svc.Cancel(r.Context(), actor, id)
		}
		if err != nil {
			writeRequestError(w, err, out)
			return
		}

		writeJSON(w, http.StatusOK, toRequestResponse(out))
	}
}

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

func writeRequestError(w http.ResponseWriter, err error, req Request) {
	type errResponse struct {
		Error         string `json:"error"`
		CurrentStatus Status `json:"current_status,omitempty"`
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrForbidden),
		errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrNotAdopter):
		status = http.StatusForbidden
	case errors.Is(err, workflow.ErrPetUnavailable), errors.Is(err, ErrInvalidTransition):
		status = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errResponse{
		Error:         err.Error(),
		CurrentStatus: req.Status,
	})
}

func toRequestResponse(r Request) requestResponse {
	return requestResponse{
		ID:        r.ID,
		PetID:     r.PetID,
		AdopterID: r.AdopterID,
		OwnerID:   r.OwnerID,
		Notes:     r.Notes,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// writeJSON está duplicado intencionalmente en handlers de distintos módulos
// para evitar crear paquetes/helpers compartidos demasiado pronto.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
