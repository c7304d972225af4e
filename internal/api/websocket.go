package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openddc/ddc-core/internal/auth"
	"github.com/openddc/ddc-core/internal/bridges/ddc"
	"github.com/openddc/ddc-core/internal/display"
	"github.com/openddc/ddc-core/internal/infrastructure/config"
	"github.com/openddc/ddc-core/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Event channels clients can subscribe to.
const (
	ChannelDisplayState  = "display.state_changed"
	ChannelDisplayHealth = "display.health_changed"
	ChannelPresetApplied = "preset.applied"
)

// wsSendBufferSize is the per-client outbound queue length. A client that
// falls this far behind starts losing events rather than blocking the hub.
const wsSendBufferSize = 256

// WSMessage is the envelope for every WebSocket frame in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload carries the channel list for subscribe/unsubscribe.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub tracks connected WebSocket clients and fans events out to them.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewHub creates a hub. Run must be called for lifecycle management.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client. Only the goroutine that actually removes
// the client closes its send channel, so a double unregister is safe.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if present {
		close(c.send)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every client subscribed to the channel.
// The payload is marshalled once and shared.
func (h *Hub) Broadcast(channel string, payload any) {
	msg := WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("broadcast marshal failed", "error", err, "channel", channel)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if c.isSubscribed(channel) {
			c.trySend(data)
		}
	}
}

// closeAll disconnects every client.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
}

// WSClient is one connected WebSocket session.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// Identity inherited from the ticket that opened the connection.
	userID string
	role   auth.Role

	mu            sync.Mutex
	subscriptions map[string]struct{}
}

// isSubscribed reports whether the client subscribed to the channel.
func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// trySend queues a frame without blocking. Frames to a full or closed
// client are dropped; the read deadline will reap dead connections.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		// Send on a closed channel can race a concurrent unregister.
		_ = recover()
	}()
	select {
	case c.send <- data:
	default:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens via the ticket: only an authenticated
	// API caller can mint one, and each is single use.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// handleWebSocket upgrades a ticket-bearing request to a WebSocket session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}

	entry, ok := s.wsTickets.consume(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		userID:        entry.userID,
		role:          entry.role,
		subscriptions: make(map[string]struct{}),
	}

	s.hub.Register(client)
	s.logger.Info("websocket connected",
		"user_id", client.userID,
		"role", client.role,
		"clients", s.hub.ClientCount(),
	)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg, s.logger)
}

// readPump consumes frames from the client until the connection dies.
func (c *WSClient) readPump(cfg config.WebSocketConfig, logger *logging.Logger) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}

	deadline := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	if deadline <= 0 {
		deadline = 40 * time.Second
	}
	c.conn.SetReadDeadline(time.Now().Add(deadline)) //nolint:errcheck // deadline on live conn
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read error", "error", err, "user_id", c.userID)
			}
			return
		}
		// Any inbound traffic proves the peer is alive.
		c.conn.SetReadDeadline(time.Now().Add(deadline)) //nolint:errcheck // deadline on live conn

		c.handleMessage(data)
	}
}

// writePump moves frames from the send queue to the connection and keeps
// the connection alive with pings.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	interval := time.Duration(cfg.PingInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck // best-effort close
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound frame.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(msg.ID, "invalid message format")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(msg)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(msg)
	case WSTypePing:
		c.sendMessage(WSMessage{Type: WSTypePong, ID: msg.ID})
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// subscribePayload re-marshals the generic payload into the typed form.
func subscribePayload(msg WSMessage) (WSSubscribePayload, error) {
	var payload WSSubscribePayload
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return payload, err
	}
	err = json.Unmarshal(raw, &payload)
	return payload, err
}

func (c *WSClient) handleSubscribe(msg WSMessage) {
	payload, err := subscribePayload(msg)
	if err != nil || len(payload.Channels) == 0 {
		c.sendError(msg.ID, "subscribe requires a channels list")
		return
	}

	c.mu.Lock()
	for _, channel := range payload.Channels {
		c.subscriptions[channel] = struct{}{}
	}
	c.mu.Unlock()

	c.sendMessage(WSMessage{
		Type:    WSTypeResponse,
		ID:      msg.ID,
		Payload: map[string]any{"subscribed": payload.Channels},
	})
}

func (c *WSClient) handleUnsubscribe(msg WSMessage) {
	payload, err := subscribePayload(msg)
	if err != nil || len(payload.Channels) == 0 {
		c.sendError(msg.ID, "unsubscribe requires a channels list")
		return
	}

	c.mu.Lock()
	for _, channel := range payload.Channels {
		delete(c.subscriptions, channel)
	}
	c.mu.Unlock()

	c.sendMessage(WSMessage{
		Type:    WSTypeResponse,
		ID:      msg.ID,
		Payload: map[string]any{"unsubscribed": payload.Channels},
	})
}

func (c *WSClient) sendMessage(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendMessage(WSMessage{
		Type:    WSTypeError,
		ID:      id,
		Payload: map[string]any{"message": message},
	})
}

// subscribeStateUpdates wires bridge state topics into the hub, the
// display registry, telemetry and the state history log.
func (s *Server) subscribeStateUpdates() error {
	topic := s.topics.AllBridgeStates()
	return s.mqtt.Subscribe(topic, 1, func(topic string, payload []byte) error {
		s.handleStateMessage(payload)
		return nil
	})
}

// handleStateMessage processes one bridge state update. Errors are logged
// rather than returned: a state message is a fact about the monitor, and
// redelivering it cannot make a failing write succeed.
func (s *Server) handleStateMessage(payload []byte) {
	var msg ddc.StateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("unparseable state message", "error", err)
		return
	}

	if s.hub != nil {
		s.hub.Broadcast(ChannelDisplayState, msg)
	}

	ctx := context.Background()
	d, err := s.resolveStateTarget(ctx, msg)
	if err != nil {
		s.logger.Debug("state update for unknown display",
			"display_id", msg.DisplayID,
			"address", msg.Address,
		)
		return
	}

	s.recordFeatureChanges(ctx, d, msg.State)

	if err := s.registry.SetDisplayState(ctx, d.ID, display.State(msg.State)); err != nil {
		s.logger.Error("state update failed", "error", err, "display_id", d.ID)
		return
	}

	// A state report is proof of life. Flip the display online if the
	// last record said otherwise.
	if d.HealthStatus != display.HealthStatusOnline {
		if err := s.registry.SetDisplayHealth(ctx, d.ID, display.HealthStatusOnline); err != nil {
			s.logger.Error("health update failed", "error", err, "display_id", d.ID)
		} else {
			if s.hub != nil {
				s.hub.Broadcast(ChannelDisplayHealth, map[string]any{
					"display_id":    d.ID,
					"health_status": display.HealthStatusOnline,
				})
			}
			if s.influx != nil {
				s.influx.WriteDisplayHealth(d.ID, true)
			}
		}
	}
}

// resolveStateTarget finds the registered display a state message refers
// to, preferring the explicit display ID and falling back to the bus
// address for bridges that have not learnt core IDs yet.
func (s *Server) resolveStateTarget(ctx context.Context, msg ddc.StateMessage) (*display.Display, error) {
	if msg.DisplayID != "" {
		d, err := s.registry.GetDisplay(ctx, msg.DisplayID)
		if err == nil {
			return d, nil
		}
	}
	if msg.Address == "" {
		return nil, display.ErrDisplayNotFound
	}
	return s.registry.GetDisplayByBus(ctx, msg.Address)
}

// recordFeatureChanges diffs the incoming state against the cached state,
// writing telemetry points and history rows for features that moved.
func (s *Server) recordFeatureChanges(ctx context.Context, d *display.Display, state map[string]any) {
	for key, raw := range state {
		value, ok := numericState(raw)
		if !ok {
			continue
		}

		var oldValue *int
		if prev, ok := numericState(d.State[key]); ok {
			if prev == value {
				continue
			}
			oldValue = &prev
		}

		code := codeForStateKey(key)

		if s.influx != nil {
			// Bridges do not report the feature maximum in state
			// messages, so the max field is omitted.
			s.influx.WriteFeatureValue(d.ID, code, value, 0)
		}

		if s.stateHistory != nil {
			change := display.FeatureChange{
				Feature:  key,
				Code:     code,
				OldValue: oldValue,
				NewValue: value,
				Source:   display.HistorySourceMQTT,
			}
			if err := s.stateHistory.RecordChange(ctx, d.ID, change); err != nil {
				s.logger.Error("history record failed", "error", err, "display_id", d.ID, "code", code)
			}
		}
	}
}

// codeForStateKey maps a state map key back to its VCP code text.
// Known feature names resolve through the VCP table; unknown codes come
// through as "vcp_<code>" keys.
func codeForStateKey(key string) string {
	if code, ok := ddc.CodeForCommand(key); ok {
		return code
	}
	if rest, ok := strings.CutPrefix(key, "vcp_"); ok {
		return rest
	}
	return key
}

// numericState coerces the JSON decode types that appear in state maps.
func numericState(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
