package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/api"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/metrics"
)

const (
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before the connection is
	// considered dead. pingPeriod must stay below it.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16

	eventSnapshot = "snapshot"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string               `json:"event"`
	Data  api.SnapshotResponse `json:"data"`
}

// Hub tracks connected clients and broadcasts snapshots of src to them.
type Hub struct {
	src      api.Source
	interval time.Duration
	notify   chan struct{}

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	backend string // empty means all backends
}

// New creates a Hub that reads from src and broadcasts every interval.
func New(src api.Source, interval time.Duration) *Hub {
	return &Hub{
		src:      src,
		interval: interval,
		notify:   make(chan struct{}, 1),
		clients:  make(map[*client]struct{}),
	}
}

// Run broadcasts on every tick and on every Notify until ctx is cancelled,
// then closes all connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcast()
		case <-h.notify:
			h.broadcast()
		}
	}
}

// Notify requests a broadcast outside the regular tick. It never blocks.
func (h *Hub) Notify() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// ServeHTTP upgrades the connection, sends the current snapshot and then
// serves broadcasts until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{
		conn:    conn,
		send:    make(chan []byte, sendBufSize),
		backend: r.URL.Query().Get("backend"),
	}
	h.register(c)
	defer h.unregister(c)
	slog.Debug("stream client connected", "remote", r.RemoteAddr, "backend", c.backend)

	if data, err := encode(api.BuildSnapshot(h.src), c.backend); err == nil {
		h.mu.RLock()
		if _, ok := h.clients[c]; ok {
			select {
			case c.send <- data:
			default:
			}
		}
		h.mu.RUnlock()
	}

	go c.writePump()
	c.readPump()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	metrics.StreamClients.Set(float64(len(h.clients)))
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	metrics.StreamClients.Set(float64(len(h.clients)))
	h.mu.Unlock()
}

// broadcast sends the current snapshot to every client. Sends happen under
// the read lock so a client's channel cannot be closed mid-send; clients
// whose buffer is full are dropped afterwards.
func (h *Hub) broadcast() {
	snap := api.BuildSnapshot(h.src)
	cache := make(map[string][]byte)

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		data, ok := cache[c.backend]
		if !ok {
			var err error
			if data, err = encode(snap, c.backend); err != nil {
				slog.Warn("stream encode failed", "err", err)
				continue
			}
			cache[c.backend] = data
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Debug("stream client too slow, disconnecting")
		h.unregister(c)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.StreamClients.Set(0)
}

// encode marshals snap, restricted to one backend when backend is set.
func encode(snap api.SnapshotResponse, backend string) ([]byte, error) {
	if backend != "" {
		filtered := make([]api.BackendResponse, 0, 1)
		for _, b := range snap.Backends {
			if b.Identity.Name == backend {
				filtered = append(filtered, b)
			}
		}
		snap.Backends = filtered
	}
	return json.Marshal(Message{Event: eventSnapshot, Data: snap})
}

// writePump forwards queued messages to the connection and sends pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes control frames and returns when the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
