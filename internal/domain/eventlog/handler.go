package eventlog

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"pet-custody-escrow/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Get("/events", listEventsHandler(svc))
}

// factResponse representa un fact del event log devuelto por la API.
type factResponse struct {
	Sequence    int64          `json:"sequence"`
	Type        FactType       `json:"type"`
	AggregateID string         `json:"aggregate_id"`
	Payload     map[string]any `json:"payload,omitempty"`
	RecordedAt  time.Time      `json:"recorded_at"`
}

// listEventsHandler godoc
// @Summary Auditar facts de un agregado
// @Description Devuelve el event log de un agregado, ordenado por sequence, para auditoría y replay.
// @Tags events
// @Produce json
// @Param aggregateId query string true "ID del agregado (pet, request, agreement o escrow)"
// @Success 200 {array} factResponse
// @Failure 400 {string} string "aggregateId requerido"
// @Router /events [get]
func listEventsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		aggregateID := strings.TrimSpace(r.URL.Query().Get("aggregateId"))
		if aggregateID == "" {
			http.Error(w, "aggregateId is required", http.StatusBadRequest)
			return
		}

		facts, err := svc.ListByAggregate(r.Context(), aggregateID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]factResponse, 0, len(facts))
		for _, f := range facts {
			out = append(out, factResponse{
				Sequence:    f.Sequence,
				Type:        f.Type,
				AggregateID: f.AggregateID,
				Payload:     f.Payload,
				RecordedAt:  f.RecordedAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(out)
	}
}
