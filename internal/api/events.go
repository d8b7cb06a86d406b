package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/tabhost/internal/metrics"
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans events out to connected websocket clients. Emit never blocks: a
// client whose buffer is full misses the event.
type Hub struct {
	buffer  int
	metrics *metrics.Metrics
	log     *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	done    chan struct{}
	once    sync.Once
}

type client struct {
	id   string
	send chan models.Event
}

// NewHub creates a hub with a per-client buffer of the given size
func NewHub(buffer int, m *metrics.Metrics, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		buffer:  buffer,
		metrics: m,
		log:     log.Named("events"),
		clients: make(map[*client]struct{}),
		done:    make(chan struct{}),
	}
}

// Close ends every open stream
func (h *Hub) Close() {
	h.once.Do(func() { close(h.done) })
}

// Emit queues ev for every client
func (h *Hub) Emit(ev models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
			if h.metrics != nil {
				h.metrics.EventsSent.Inc()
			}
		default:
			if h.metrics != nil {
				h.metrics.EventsDropped.Inc()
			}
			h.log.Warn("client too slow, event dropped",
				zap.String("client", c.id),
				zap.String("type", string(ev.Type)))
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(n))
	}
	h.log.Info("event client connected", zap.String("client", c.id))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(n))
	}
	h.log.Info("event client disconnected", zap.String("client", c.id))
}

// ServeWS upgrades the request and streams events until the client goes away
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()

	c := &client{id: clientID(r), send: make(chan models.Event, h.buffer)}
	h.register(c)
	defer h.unregister(c)

	// the reader only watches for the close; clients send nothing
	closed := make(chan error, 1)
	go func() {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closed <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Debug("failed to write event", zap.String("client", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case err := <-closed:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("event client error", zap.String("client", c.id), zap.Error(err))
			}
			return
		case <-h.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}
