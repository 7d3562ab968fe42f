package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/christmas-fire/squadup/internal/models"
	"go.uber.org/zap"
)

// Hub is the in-process fan-out channel. It tracks which connections are
// subscribed to which groups and copies each published event to every
// subscriber's send buffer without waiting on the connection.
type Hub struct {
	clients    map[*Client]bool
	groups     map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		groups:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.Named("hub"),
	}
}

// Run processes connection registration until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("client registered", zap.String("client", client.id))

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// Register and Unregister give up once Run has returned.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	for groupID := range client.groups {
		h.leave(client, groupID)
	}
	delete(h.clients, client)
	close(client.send)
	h.log.Debug("client unregistered", zap.String("client", client.id))
}

// Subscribe adds client to the group's broadcast set. A client may be
// subscribed to any number of groups.
func (h *Hub) Subscribe(client *Client, groupID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.groups[groupID]
	if !ok {
		set = make(map[*Client]struct{})
		h.groups[groupID] = set
	}
	set[client] = struct{}{}
	client.groups[groupID] = struct{}{}
}

func (h *Hub) Unsubscribe(client *Client, groupID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(client, groupID)
}

func (h *Hub) leave(client *Client, groupID string) {
	if set, ok := h.groups[groupID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.groups, groupID)
		}
	}
	delete(client.groups, groupID)
}

// Publish delivers event to every current subscriber of groupID, the sender's
// own connections included. A group with no subscribers is a no-op.
func (h *Hub) Publish(_ context.Context, groupID string, event models.Event) error {
	data, err := models.EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.EventKind(), err)
	}
	h.Broadcast(groupID, data)
	return nil
}

// Broadcast copies an already encoded frame to the group's subscribers and
// reports how many accepted it. Subscribers with a full buffer miss it.
func (h *Hub) Broadcast(groupID string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.groups[groupID] {
		select {
		case client.send <- data:
			delivered++
		default:
			h.log.Warn("client send channel full, dropping event",
				zap.String("client", client.id),
				zap.String("user_id", client.UserID),
				zap.String("group_id", groupID))
		}
	}
	return delivered
}

func (h *Hub) Subscribers(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[groupID])
}
