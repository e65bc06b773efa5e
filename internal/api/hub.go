package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/device"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/config"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/logging"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
)

// Frame types on the event stream.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Event channels a client can subscribe to.
const (
	ChannelDevice  = "device"
	ChannelDecoder = "decoder"
	ChannelTask    = "task"
)

const (
	wsSendBufferSize = 256

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// WSMessage is a frame sent to event stream clients. Events carry
// EventType as "<channel>.<event>"; replies echo the request ID.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload lists the channels of a subscribe or unsubscribe
// request.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub fans registry events out to event stream clients. It is a
// device.Observer and never blocks the caller: a client whose buffer is
// full misses the event.
type Hub struct {
	logger       *logging.Logger
	pingInterval time.Duration
	pongTimeout  time.Duration
	readLimit    int64

	// mu guards clients; a client's send channel is written only under
	// the read lock and closed only under the write lock.
	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

var _ device.Observer = (*Hub)(nil)

// NewHub builds a hub from the api.websocket settings.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	h := &Hub{
		logger:       logger,
		pingInterval: time.Duration(cfg.PingInterval) * time.Second,
		pongTimeout:  time.Duration(cfg.PongTimeout) * time.Second,
		readLimit:    int64(cfg.MaxMessageSize),
		clients:      make(map[*WSClient]struct{}),
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}
	if h.pongTimeout <= 0 {
		h.pongTimeout = defaultPongTimeout
	}
	return h
}

// Run waits for ctx and then drops every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Register starts delivering events to c.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("event client connected", "clients", n)
}

// Unregister stops delivery and closes c's send channel. Calling it twice
// is harmless.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("event client disconnected", "clients", n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends one event to every client subscribed to channel.
func (h *Hub) Broadcast(channel, eventType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel + "." + eventType,
		Timestamp: timestamp(),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.isSubscribed(channel) {
			c.offer(data)
		}
	}
}

// deliver queues data for c unless c has already been dropped.
func (h *Hub) deliver(c *WSClient, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		c.offer(data)
	}
}

func (h *Hub) OnDeviceEvent(ev device.DeviceEvent) {
	h.Broadcast(ChannelDevice, string(ev.Type), ev)
}

func (h *Hub) OnDecoderEvent(ev device.DecoderEvent) {
	h.Broadcast(ChannelDecoder, string(ev.Type), ev)
}

func (h *Hub) OnTaskChanged(info task.Info) {
	h.Broadcast(ChannelTask, info.Status, info)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
