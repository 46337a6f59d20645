package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/gerun/internal/alloc"
)

const (
	// Time allowed to write a message to a peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from a peer
	pongWait = 60 * time.Second

	// Ping cadence; must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Subscribers only listen; inbound frames are capped small
	maxMessageSize = 512

	// Outbound buffer per client; a client this far behind is dropped
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients
		}
		return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
	},
}

// PlanHub fans each computed allocation plan out to websocket subscribers.
// Slow clients are disconnected rather than allowed to stall the broadcast.
type PlanHub struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
	count      atomic.Int64
	metrics    *MetricsRegistry
}

// NewPlanHub creates a hub; Run must be started for it to deliver anything
func NewPlanHub(metrics *MetricsRegistry) *PlanHub {
	return &PlanHub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, 16),
		metrics:    metrics,
	}
}

// Run owns the client set until the context is cancelled, then closes every
// connection
func (h *PlanHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			log.Info().Msg("plan hub stopped")
			return

		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			if h.metrics != nil {
				h.metrics.IncWSClients()
			}
			log.Debug().Int("clients", len(h.clients)).Msg("plan subscriber joined")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.Debug().Int("clients", len(h.clients)).Msg("plan subscriber left")
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Buffer full: the client cannot keep up
					h.drop(client)
					log.Warn().Msg("slow plan subscriber dropped")
				}
			}
		}
	}
}

// drop removes a client from the set and closes its send channel
func (h *PlanHub) drop(client *wsClient) {
	delete(h.clients, client)
	close(client.send)
	h.count.Store(int64(len(h.clients)))
	if h.metrics != nil {
		h.metrics.DecWSClients()
	}
}

// BroadcastPlan queues a plan for delivery to all subscribers. Never blocks
// the caller: when the hub's queue is full the plan is skipped.
func (h *PlanHub) BroadcastPlan(plan *alloc.AllocationPlan) {
	payload, err := json.Marshal(plan)
	if err != nil {
		log.Error().Err(err).Msg("plan broadcast marshal failed")
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		log.Warn().Msg("plan broadcast queue full, plan skipped")
	}
}

// ClientCount returns the number of connected subscribers
func (h *PlanHub) ClientCount() int {
	return int(h.count.Load())
}

// ServeWS upgrades the request and attaches the connection to the hub
func (h *PlanHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// wsClient is one subscriber connection; readPump and writePump are its only
// readers and writers
type wsClient struct {
	hub  *PlanHub
	conn *websocket.Conn
	send chan []byte
}

// readPump discards inbound frames, serving only to detect disconnects and
// answer pings
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
	}
}

// writePump relays broadcast frames and keeps the connection alive with pings
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
