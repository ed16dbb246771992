package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/carelink/telehealth-signaling/internal/config"
	"github.com/carelink/telehealth-signaling/internal/metrics"
	"github.com/carelink/telehealth-signaling/internal/registry"
)

// HTTPHandler handles the operational HTTP surface
type HTTPHandler struct {
	cfg      *config.Config
	registry *registry.Registry
	metrics  metrics.Collector
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(cfg *config.Config, reg *registry.Registry, m metrics.Collector) *HTTPHandler {
	return &HTTPHandler{
		cfg:      cfg,
		registry: reg,
		metrics:  m,
	}
}

// SetupRoutes sets up HTTP routes
func (h *HTTPHandler) SetupRoutes(r *mux.Router) {
	r.HandleFunc("/", h.handleRoot).Methods("GET")
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/status", h.handleStatus).Methods("GET")
	r.Handle("/metrics", h.metrics.Handler()).Methods("GET")
}

// handleRoot answers the browser check that the relay is up
func (h *HTTPHandler) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Telehealth signaling relay is running.\n"))
}

// handleHealth handles health check requests
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UnixNano() / int64(time.Millisecond),
	})
}

// handleStatus handles status check requests
func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"service":     h.cfg.Service.Name,
		"environment": h.cfg.Service.Environment,
		"connections": h.registry.ConnectionCount(),
		"rooms":       h.registry.RoomCount(),
		"calls":       h.registry.CallCount(),
		"timestamp":   time.Now().UnixNano() / int64(time.Millisecond),
	})
}
