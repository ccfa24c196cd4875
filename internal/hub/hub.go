// Package hub owns the WebSocket connection registry. It guarantees at most
// one live connection per user: registering a new connection force-closes the
// previous one (last-writer-wins, no grace period). Everything above this
// layer addresses users by identity, never by connection.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Loonyc-c/flint-sub001/internal/event"
	"github.com/Loonyc-c/flint-sub001/pkg/logger"
	"github.com/Loonyc-c/flint-sub001/pkg/metrics"
)

// Close reason sent to a connection that is replaced by a newer one for the
// same user
const CloseReasonSessionReplaced = "session_replaced"

// Hub manages one live WebSocket connection per user
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client

	metrics *metrics.Metrics

	// Lifecycle callbacks, set once before any connection is served.
	// onDisconnect fires only when the departing connection was still the
	// user's current one.
	onConnect    func(userID uuid.UUID)
	onDisconnect func(userID uuid.UUID)

	// dispatch handles one decoded inbound event
	dispatch func(client *Client, eventType string, payload json.RawMessage)
}

// NewHub creates a new connection hub
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*Client),
		metrics: m,
	}
}

// SetCallbacks wires the connect/disconnect lifecycle hooks
func (h *Hub) SetCallbacks(onConnect, onDisconnect func(userID uuid.UUID)) {
	h.onConnect = onConnect
	h.onDisconnect = onDisconnect
}

// SetDispatch wires the inbound event dispatcher
func (h *Hub) SetDispatch(dispatch func(client *Client, eventType string, payload json.RawMessage)) {
	h.dispatch = dispatch
}

// register installs a client as the user's current connection, kicking any
// prior one
func (h *Hub) register(client *Client) {
	h.mu.Lock()
	prev := h.clients[client.userID]
	h.clients[client.userID] = client
	h.mu.Unlock()

	if prev != nil {
		logger.Info("replacing existing connection",
			zap.String("user_id", client.userID.String()))
		prev.closeWithReason(CloseReasonSessionReplaced)
	}

	if h.metrics != nil {
		h.metrics.ConnectionOpened()
	}

	if h.onConnect != nil {
		h.onConnect(client.userID)
	}
}

// unregister clears the mapping only if it still points at this client, so a
// kicked connection cannot tear down its replacement
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	current := h.clients[client.userID] == client
	if current {
		delete(h.clients, client.userID)
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ConnectionClosed()
	}

	if current && h.onDisconnect != nil {
		h.onDisconnect(client.userID)
	}
}

// IsConnected reports whether a user currently has a live connection
func (h *Hub) IsConnected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// Send delivers an event to a user's current connection. A disconnected user
// simply misses the event; per-match ordering is preserved because each
// user's events flow through their single client's send queue in emit order.
func (h *Hub) Send(userID uuid.UUID, evt event.Event) {
	h.mu.RLock()
	client := h.clients[userID]
	h.mu.RUnlock()

	if client == nil {
		logger.Debug("dropping event for offline user",
			zap.String("user_id", userID.String()),
			zap.String("event_type", evt.Type))
		return
	}

	data, err := json.Marshal(evt)
	if err != nil {
		logger.Error("failed to marshal outbound event",
			zap.String("event_type", evt.Type),
			zap.Error(err))
		return
	}

	if h.metrics != nil {
		h.metrics.EventSent(evt.Type)
	}

	client.enqueue(data)
}

// Broadcast delivers an event to every connected user
func (h *Hub) Broadcast(evt event.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		logger.Error("failed to marshal broadcast event",
			zap.String("event_type", evt.Type),
			zap.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	if h.metrics != nil {
		h.metrics.EventSent(evt.Type)
	}

	for _, client := range clients {
		client.enqueue(data)
	}
}

// ConnectionCount returns the number of live connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
