package broadcast

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds what terminals may send; they only send control frames.
	maxMessageSize = 512

	clientBufferSize    = 256
	broadcastBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Terminals are served from other origins (displays, tablets); CORS is
	// handled at the router.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub pushes events to websocket clients. Run must be called for events to be
// delivered.
type Hub struct {
	logger *slog.Logger

	clients    map[*hubClient]bool
	broadcast  chan Event
	register   chan *hubClient
	unregister chan *hubClient
	done       chan struct{}

	connected atomic.Int64
	now       func() time.Time
}

type hubClient struct {
	hub     *Hub
	conn    *websocket.Conn
	receive chan Event
}

// NewHub creates a websocket hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*hubClient]bool),
		broadcast:  make(chan Event, broadcastBufferSize),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		done:       make(chan struct{}),
		now:        time.Now,
	}
}

// Run delivers events to clients until ctx is cancelled, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			close(c.receive)
			delete(h.clients, c)
		}
		h.connected.Store(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = true
			h.connected.Add(1)
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.receive)
				h.connected.Add(-1)
			}
		case ev := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.receive <- ev:
				default:
					// Client is too far behind; drop it and let it reconnect.
					close(c.receive)
					delete(h.clients, c)
					h.connected.Add(-1)
				}
			}
		}
	}
}

// Publish implements Publisher. If the hub's queue is full the event is
// dropped rather than blocking the caller.
func (h *Hub) Publish(name string, payload any) {
	ev := Event{Name: name, Payload: payload, At: h.now().UTC()}
	select {
	case h.broadcast <- ev:
	case <-h.done:
	default:
		h.logger.Warn("websocket hub queue full, dropping event", "event", name)
	}
}

// Clients returns the number of connected websocket clients.
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

// Accept upgrades the request to a websocket, sends the initial events to the
// new client, and registers it for subsequent broadcasts.
func (h *Hub) Accept(w http.ResponseWriter, r *http.Request, initial ...Event) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &hubClient{hub: h, conn: conn, receive: make(chan Event, clientBufferSize)}
	for _, ev := range initial {
		c.receive <- ev
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return nil
	}

	go c.writePump(h.logger)
	go c.readPump()
	return nil
}

// readPump discards client messages and keeps the read deadline fresh so that
// pongs are processed and dead peers are detected.
func (c *hubClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *hubClient) writePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.receive:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				logger.Debug("websocket write failed", "event", ev.Name, "error", err)
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
