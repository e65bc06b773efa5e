package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are vetted by corsMiddleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSClient is one event stream connection.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]struct{}
}

// wsRequest is a frame received from a client.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// handleEvents upgrades to the event stream. A comma separated channels
// query parameter subscribes before the first event is sent.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	c.subscribe(strings.Split(r.URL.Query().Get("channels"), ","))

	s.hub.Register(c)
	go c.writeLoop()
	go c.readLoop()
}

func (c *WSClient) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if c.hub.readLimit > 0 {
		c.conn.SetReadLimit(c.hub.readLimit)
	}
	idle := c.hub.pingInterval + c.hub.pongTimeout
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }
	_ = extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("event stream read failed", "error", err)
			}
			return
		}
		_ = extend()
		c.handleRequest(data)
	}
}

// writeLoop owns every write to the connection. It exits when the hub
// closes the send channel or a write fails.
func (c *WSClient) writeLoop() {
	ping := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongTimeout))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = write(websocket.CloseMessage, nil)
				return
			}
			if write(websocket.TextMessage, data) != nil {
				return
			}
		case <-ping.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleRequest(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var p WSSubscribePayload
		if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &p) != nil {
			c.reply(req.ID, WSTypeError, errorPayload("invalid "+req.Type+" payload"))
			return
		}
		if req.Type == WSTypeSubscribe {
			c.subscribe(p.Channels)
			c.reply(req.ID, WSTypeResponse, map[string]any{"subscribed": p.Channels})
		} else {
			c.unsubscribe(p.Channels)
			c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": p.Channels})
		}
	default:
		c.reply(req.ID, WSTypeError, errorPayload("unknown message type: "+req.Type))
	}
}

func (c *WSClient) subscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if ch = strings.TrimSpace(ch); ch != "" {
			c.subscriptions[ch] = struct{}{}
		}
	}
}

func (c *WSClient) unsubscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.subscriptions, strings.TrimSpace(ch))
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// offer queues data without blocking. The caller holds the hub read lock.
func (c *WSClient) offer(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{Type: msgType, ID: id, Timestamp: timestamp(), Payload: payload})
	if err != nil {
		return
	}
	c.hub.deliver(c, data)
}

func errorPayload(msg string) map[string]string {
	return map[string]string{"message": msg}
}
