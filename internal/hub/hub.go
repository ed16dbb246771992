package hub

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carelink/telehealth-signaling/internal/config"
	"github.com/carelink/telehealth-signaling/internal/metrics"
	"github.com/carelink/telehealth-signaling/internal/model"
	"github.com/carelink/telehealth-signaling/internal/registry"
	"github.com/carelink/telehealth-signaling/internal/router"
)

// inboundFrame is a raw frame read from one client's connection
type inboundFrame struct {
	senderID string
	data     []byte
}

// client represents a connected WebSocket client
type client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string
	send chan []byte
}

// Hub is the transport boundary: it owns the id-to-connection map and runs a
// single loop that serializes registration, unregistration and inbound
// dispatch. Per-room and per-pair delivery order follow from that serialized
// loop plus each client's ordered send queue.
type Hub struct {
	cfg      config.WebSocketConfig
	registry *registry.Registry
	router   *router.Router
	metrics  metrics.Collector

	// Registered clients, touched only by the run loop
	clients map[string]*client

	// Register requests from accepted connections
	register chan *client

	// Unregister requests from closing connections
	unregister chan *client

	// Inbound frames from client read pumps
	inbound chan inboundFrame

	// Stop channel
	stopChan chan struct{}
}

// NewHub creates a new hub
func NewHub(cfg config.WebSocketConfig, reg *registry.Registry, rt *router.Router, m metrics.Collector) *Hub {
	return &Hub{
		cfg:        cfg,
		registry:   reg,
		router:     rt,
		metrics:    m,
		clients:    make(map[string]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		inbound:    make(chan inboundFrame),
		stopChan:   make(chan struct{}),
	}
}

// Run starts the hub loop
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c.id] = c
			h.metrics.ClientConnected()
			log.Printf("Client connected: %s", c.id)

			// The id push must be the first thing the client receives.
			frame := encodeFrame(model.TypeAssignedID, model.AssignedID{ID: c.id})
			c.send <- frame
			h.metrics.MessageSent(model.TypeAssignedID, len(frame))

			go c.writePump()
			go c.readPump()

		case c := <-h.unregister:
			h.dropClient(c.id)

		case f := <-h.inbound:
			for _, p := range h.router.Dispatch(f.senderID, f.data) {
				h.deliver(p)
			}

		case <-h.stopChan:
			for id, c := range h.clients {
				c.conn.Close()
				close(c.send)
				delete(h.clients, id)
			}
			return
		}
	}
}

// Shutdown closes every client connection and stops the run loop.
func (h *Hub) Shutdown() {
	close(h.stopChan)
}

// Add hands an accepted connection to the hub. The registry issues the id
// before the client is announced to the run loop.
func (h *Hub) Add(conn *websocket.Conn) {
	c := &client{
		hub:  h,
		conn: conn,
		id:   h.registry.Add(),
		send: make(chan []byte, h.cfg.SendQueueSize),
	}

	select {
	case h.register <- c:
	case <-h.stopChan:
		conn.Close()
	}
}

// dropClient unregisters a client once: removes it from the map, runs the
// router's disconnect cleanup and delivers any resulting pushes. A second
// drop for the same id is a no-op.
func (h *Hub) dropClient(id string) {
	c, ok := h.clients[id]
	if !ok {
		return
	}

	delete(h.clients, id)
	close(c.send)

	for _, p := range h.router.Disconnect(id) {
		h.deliver(p)
	}

	h.metrics.ClientDisconnected()
	log.Printf("Client disconnected: %s", id)
}

// deliver enqueues one push on the target's send queue. A client that cannot
// keep up loses the message rather than blocking the loop; delivery is
// best-effort on a live connection.
func (h *Hub) deliver(p router.Push) {
	c, ok := h.clients[p.TargetID]
	if !ok || len(p.Data) == 0 {
		return
	}

	select {
	case c.send <- p.Data:
		h.metrics.MessageSent(p.Type, len(p.Data))
	default:
		log.Printf("Client %s send queue full, dropping %s", p.TargetID, p.Type)
		h.metrics.MessageDropped(p.Type, "queue_full")
	}
}

// readPump pumps frames from the WebSocket connection into the hub loop
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopChan:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		select {
		case c.hub.inbound <- inboundFrame{senderID: c.id, data: message}:
		case <-c.hub.stopChan:
			return
		}
	}
}

// writePump pumps frames from the send queue to the WebSocket connection
func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encodeFrame(msgType string, v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Failed to encode %s frame: %v", msgType, err)
		return nil
	}
	frame, err := json.Marshal(model.Envelope{Type: msgType, Data: data})
	if err != nil {
		log.Printf("Failed to encode %s frame: %v", msgType, err)
		return nil
	}
	return frame
}
