// Package httpapi exposes a small operational surface over a running host:
// instance listing, addressed control commands and Prometheus metrics. It is
// not part of the negotiation path.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/factory"
)

// NewHandler builds the router for one host.
func NewHandler(host *factory.Host) http.Handler {
	s := &server{host: host}
	r := chi.NewRouter()
	r.Get("/instances", s.listInstances)
	r.Post("/instances/{name}/control", s.control)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type server struct {
	host *factory.Host
}

func (s *server) listInstances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"instances": s.host.Instances()})
}

func (s *server) control(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	response, err := s.host.Bus().Control(r.Context(), name, params)
	if err != nil {
		http.Error(w, err.Error(), controlStatus(err))
		return
	}
	writeJSON(w, response)
}

// controlStatus maps the bus's sentinel errors to HTTP statuses.
func controlStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrComponentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotControllable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrControlTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Printf("response encode error: %v\n", err)
	}
}
