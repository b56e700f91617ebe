package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"tollbooth/backend/services/toll-controller/internal/service"
)

// Hub tracks status clients and fans out snapshots.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub builds an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Add registers a client.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = c
}

// Remove drops a client.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends snap to every client.
func (h *Hub) Broadcast(snap service.StatusSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		h.logger.Error("encode status snapshot", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.Send(data)
	}
}

// Run broadcasts each update until ctx ends or updates is closed.
func (h *Hub) Run(ctx context.Context, updates <-chan service.StatusSnapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			h.Broadcast(snap)
		}
	}
}
