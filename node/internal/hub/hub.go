package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"github.com/freshwatch/freshwatch/pkg/types"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; apply CORS at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the envelope sent to clients for every update.
type Message struct {
	Event string       `json:"event"`
	Data  EditionEvent `json:"data"`
}

// EditionEvent describes one freshness update.
type EditionEvent struct {
	ID         string `json:"id"`
	URI        string `json:"uri"`
	Edition    int64  `json:"edition"`
	KnownGood  bool   `json:"known_good"`
	NewSlotToo bool   `json:"new_slot_too"`
}

// Registry is the subscription surface the hub needs.
type Registry interface {
	Subscribe(k types.Key, sub types.Subscriber, runBackground bool) error
	Unsubscribe(k types.ClearKey, sub types.Subscriber)
}

// Hub manages WebSocket clients, each subscribed to one key.
type Hub struct {
	reg Registry

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client is one connected WebSocket client and its registry subscription.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	key    types.Key
	binary bool
	send   chan []byte
}

// New creates a Hub subscribing clients through reg.
func New(reg Registry) *Hub {
	return &Hub{
		reg:     reg,
		clients: make(map[*client]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ServeHTTP upgrades the connection and subscribes it to the key named by the
// key query parameter. Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, err := types.ParseKey(q.Get("key"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	background, _ := strconv.ParseBool(q.Get("background"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		key:    key,
		binary: q.Get("format") == "cbor",
		send:   make(chan []byte, sendBufSize),
	}
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	if err := h.reg.Subscribe(key, c, background); err != nil {
		slog.Warn("hub: subscribe failed", "key", key.ID(), "err", err)
		return
	}
	defer h.reg.Unsubscribe(key.Clear(), c)

	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// OnFoundEdition implements types.Subscriber.
func (c *client) OnFoundEdition(u types.Update) {
	data, err := c.encode(Message{
		Event: "edition",
		Data: EditionEvent{
			ID:         u.Key.ID(),
			URI:        u.Key.URI(),
			Edition:    int64(u.Edition),
			KnownGood:  u.KnownGood,
			NewSlotToo: u.NewSlotToo,
		},
	})
	if err != nil {
		slog.Error("hub: encode message", "err", err)
		return
	}

	// send is only closed under the write lock, so sending under the read
	// lock cannot hit a closed channel.
	c.hub.mu.RLock()
	_, live := c.hub.clients[c]
	full := false
	if live {
		select {
		case c.send <- data:
		default:
			full = true
		}
	}
	c.hub.mu.RUnlock()

	if full {
		slog.Warn("hub: client too slow, disconnecting", "key", c.key.ID())
		c.hub.unregister(c)
	}
}

func (c *client) encode(m Message) ([]byte, error) {
	if c.binary {
		return cbor.Marshal(m)
	}
	return json.Marshal(m)
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	frame := websocket.TextMessage
	if c.binary {
		frame = websocket.BinaryMessage
	}
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(frame, msg); err != nil {
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

// readPump reads frames from the connection to process control messages (pong,
// close) and detect disconnects. Blocks until the connection closes.
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
