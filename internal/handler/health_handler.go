// internal/handler/health_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/unclebandit/charityng-backend/internal/logger"
)

// PingFunc checks a backing store.
type PingFunc func(ctx context.Context) error

// HealthHandler serves liveness and store readiness probes.
type HealthHandler struct {
	Driver string
	Ping   PingFunc
}

func NewHealthHandler(driver string, ping PingFunc) *HealthHandler {
	return &HealthHandler{Driver: driver, Ping: ping}
}

// Health reports that the process is up.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Database pings the configured store with a short timeout.
func (h *HealthHandler) Database(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{"status": "ok", "driver": h.Driver}

	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			logger.FromContext(r.Context()).WithError(err).Warn("store health check failed")
			status = http.StatusServiceUnavailable
			body["status"] = "unavailable"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
