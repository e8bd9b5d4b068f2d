package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"lifedash/internal/chart"
	"lifedash/internal/dashboard"
	"lifedash/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Message is what the hub pushes to browsers.
type Message struct {
	Type  string           `json:"type"`
	State *dashboard.State `json:"state,omitempty"`
	Event *chart.Event     `json:"event,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans dashboard changes out to every connected websocket.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	clients    map[*client]struct{}
	upgrader   websocket.Upgrader
	log        *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		log: log.With("component", "ws_hub"),
	}
}

// Run serves register, unregister and broadcast until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			metrics.WSClients.Set(0)
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			metrics.WSClients.Set(float64(len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				metrics.WSClients.Set(float64(len(h.clients)))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow reader; drop it rather than stall playback
					delete(h.clients, c)
					close(c.send)
					metrics.WSClients.Set(float64(len(h.clients)))
				}
			}
		}
	}
}

// Publish queues msg for every client. It never blocks; when the queue is
// full the message is dropped and clients catch up on the next state.
func (h *Hub) Publish(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("ws_encode_error", "err", err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.log.Warn("ws_broadcast_dropped", "type", msg.Type)
	}
}

// PublishState and PublishEvent adapt the hub to controller and surface subscriptions.
func (h *Hub) PublishState(st dashboard.State) {
	h.Publish(Message{Type: "state", State: &st})
}

func (h *Hub) PublishEvent(ev chart.Event) {
	h.Publish(Message{Type: "chart", Event: &ev})
}

// Serve upgrades the request and pumps messages until the peer goes away.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("ws_upgrade_error", "err", err)
		return nil
	}
	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- cl:
	case <-h.done:
		conn.Close()
		return nil
	}

	go h.writePump(cl)
	h.readPump(cl)
	return nil
}

func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("ws_read_error", "err", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
