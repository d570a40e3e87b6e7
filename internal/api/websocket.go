package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/droverdev/drover/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024
)

// wsRequest is what a client may send: subscribe/unsubscribe to a task's
// events, or "*" for everything.
type wsRequest struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id,omitempty"`
}

// WSHandler streams engine events to dashboard clients.
type WSHandler struct {
	upgrader  websocket.Upgrader
	publisher events.Publisher
	logger    *slog.Logger

	mu    sync.Mutex
	conns map[*wsConn]struct{}
}

type wsConn struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	closed sync.Once

	mu     sync.Mutex
	taskID string
	events <-chan events.Event
}

// NewWSHandler creates the websocket endpoint.
func NewWSHandler(pub events.Publisher, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		publisher: pub,
		logger:    logger,
		conns:     make(map[*wsConn]struct{}),
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsConn{
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go h.readPump(c)
	go h.writePump(c)
}

func (h *WSHandler) readPump(c *wsConn) {
	defer h.close(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.logger.Warn("malformed websocket request", "error", err)
			continue
		}

		switch req.Type {
		case "subscribe":
			h.subscribe(c, req.TaskID)
		case "unsubscribe":
			h.unsubscribe(c)
		}
	}
}

func (h *WSHandler) writePump(c *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.close(c)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// subscribe points the connection's forwarder at a task's event stream.
func (h *WSHandler) subscribe(c *wsConn, taskID string) {
	if taskID == "" {
		taskID = events.GlobalTaskID
	}

	h.unsubscribe(c)

	ch := h.publisher.Subscribe(taskID)
	c.mu.Lock()
	c.taskID = taskID
	c.events = ch
	c.mu.Unlock()

	go func() {
		for ev := range ch {
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			select {
			case c.send <- data:
			case <-c.done:
				return
			default:
				// Slow client; drop rather than stall the publisher.
			}
		}
	}()
}

func (h *WSHandler) unsubscribe(c *wsConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events != nil {
		h.publisher.Unsubscribe(c.taskID, c.events)
		c.events = nil
		c.taskID = ""
	}
}

func (h *WSHandler) close(c *wsConn) {
	c.closed.Do(func() {
		h.unsubscribe(c)
		close(c.done)
		_ = c.conn.Close()

		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
	})
}
