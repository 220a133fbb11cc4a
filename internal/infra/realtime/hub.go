package realtime

import (
	"context"
	"log/slog"
	"sync"
)

const clientBuffer = 32

// Hub tracks the live connections of every user on this instance.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	closed  bool
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[string]map[*Client]struct{})}
}

// Client is one subscription. Its channel is closed on Unsubscribe, when the
// client falls behind, or when the hub closes.
type Client struct {
	UserID string
	send   chan []byte
}

func (c *Client) Messages() <-chan []byte {
	return c.send
}

func (h *Hub) Subscribe(userID string) *Client {
	c := &Client{UserID: userID, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(c.send)
		return c
	}
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	if h.logger != nil {
		h.logger.Debug("realtime client registered", "user_id", userID)
	}
	return c
}

func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	conns, ok := h.clients[c.UserID]
	if !ok {
		return
	}
	if _, exists := conns[c]; !exists {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.clients, c.UserID)
	}
}

// Deliver queues payload for every connection of userID and returns how many
// accepted it. Clients with a full buffer are dropped.
func (h *Hub) Deliver(userID string, payload []byte) int {
	var slow []*Client
	delivered := 0
	h.mu.RLock()
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	if len(slow) > 0 {
		h.mu.Lock()
		for _, c := range slow {
			h.removeLocked(c)
		}
		h.mu.Unlock()
		if h.logger != nil {
			h.logger.Warn("realtime clients dropped", "user_id", userID, "count", len(slow))
		}
	}
	return delivered
}

// Notify delivers locally. It satisfies Fanout for single-instance setups.
func (h *Hub) Notify(_ context.Context, userID string, payload []byte) error {
	h.Deliver(userID, payload)
	return nil
}

func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close disconnects every client and rejects new subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, conns := range h.clients {
		for c := range conns {
			close(c.send)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
}
