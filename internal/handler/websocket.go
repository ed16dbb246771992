package handler

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/carelink/telehealth-signaling/internal/config"
	"github.com/carelink/telehealth-signaling/internal/hub"
)

// WebSocketHandler accepts WebSocket connections and hands them to the hub
type WebSocketHandler struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cfg *config.Config, h *hub.Hub) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:   cfg.WebSocket.BufferSize,
		WriteBufferSize:  cfg.WebSocket.BufferSize,
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			// Allow all origins if configured
			if len(cfg.HTTP.AllowedOrigins) == 1 && cfg.HTTP.AllowedOrigins[0] == "*" {
				return true
			}

			// Check against allowed origins
			for _, allowed := range cfg.HTTP.AllowedOrigins {
				if allowed == origin {
					return true
				}
			}

			return false
		},
	}

	return &WebSocketHandler{
		hub:      h,
		upgrader: upgrader,
	}
}

// ServeHTTP upgrades the HTTP request and registers the connection
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	h.hub.Add(conn)
}
