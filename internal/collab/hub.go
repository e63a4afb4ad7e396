// Package collab streams hit results to websocket clients. Each connection
// owns a view session on its floor's engine; clients on the same floor
// share a room for hover presence and floor update notices.
package collab

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/studiospace/plankit/internal/engine"
)

type Room struct {
	floorID  string
	clients  map[string]*Client // clientID -> client
	presence *PresenceManager
}

func NewRoom(floorID string) *Room {
	return &Room{
		floorID:  floorID,
		clients:  make(map[string]*Client),
		presence: NewPresenceManager(),
	}
}

type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]*Room // floorID -> room
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes joins and leaves until ctx is cancelled. Clients still
// connected at that point are closed.
func (h *Hub) Run(ctx context.Context) error {
	defer h.closeAll()
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-ctx.Done():
			return nil
		}
	}
}

func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Clients returns the number of connected clients on a floor.
func (h *Hub) Clients(floorID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room, ok := h.rooms[floorID]; ok {
		return len(room.clients)
	}
	return 0
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	close(h.done)
	for id, room := range h.rooms {
		for _, c := range room.clients {
			c.close()
		}
		delete(h.rooms, id)
	}
	h.mu.Unlock()
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.FloorID]
	if !ok {
		room = NewRoom(client.FloorID)
		h.rooms[client.FloorID] = room
	}
	room.clients[client.ClientID] = client
	h.mu.Unlock()

	stateMsg := room.presence.StateMessage()
	if stateMsg != nil {
		client.Send(stateMsg)
	}

	joinPayload, _ := json.Marshal(PresenceJoinPayload{
		ClientID:    client.ClientID,
		DisplayName: client.DisplayName,
	})
	joinMsg := &Message{
		Type:     TypePresenceJoin,
		ClientID: client.ClientID,
		UserID:   client.UserID,
		Payload:  joinPayload,
	}
	h.broadcastToRoom(client.FloorID, joinMsg, client.ClientID)

	slog.Info("client joined", "client", client.ClientID, "user", client.UserID, "floor", client.FloorID)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.FloorID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := room.clients[client.ClientID]; !ok {
		h.mu.Unlock()
		return
	}

	delete(room.clients, client.ClientID)
	client.close()
	room.presence.Remove(client.ClientID)

	if len(room.clients) == 0 {
		delete(h.rooms, client.FloorID)
	}
	h.mu.Unlock()

	leavePayload, _ := json.Marshal(PresenceLeavePayload{
		ClientID: client.ClientID,
	})
	leaveMsg := &Message{
		Type:     TypePresenceLeave,
		ClientID: client.ClientID,
		UserID:   client.UserID,
		Payload:  leavePayload,
	}
	h.broadcastToRoom(client.FloorID, leaveMsg, "")

	slog.Info("client left", "client", client.ClientID, "user", client.UserID, "floor", client.FloorID)
}

// updatePresence records sender's presence and tells the rest of the room
// when the hovered space changed.
func (h *Hub) updatePresence(sender *Client, presence *PresencePayload) {
	presence.DisplayName = sender.DisplayName

	h.mu.RLock()
	room, ok := h.rooms[sender.FloorID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	if !room.presence.Update(sender.ClientID, presence) {
		return
	}

	outPayload, _ := json.Marshal(presence)
	outMsg := &Message{
		Type:     TypePresenceUpdate,
		ClientID: sender.ClientID,
		UserID:   sender.UserID,
		Payload:  outPayload,
	}
	h.broadcastToRoom(sender.FloorID, outMsg, sender.ClientID)
}

// FloorUpdated tells every client on the snapshot's floor that a new
// snapshot was published.
func (h *Hub) FloorUpdated(s *engine.Snapshot) {
	payload, _ := json.Marshal(FloorUpdatedPayload{
		Version: s.Version,
		Spaces:  s.Set.Len(),
	})
	h.broadcastToRoom(s.Floor.ID, &Message{
		Type:    TypeFloorUpdated,
		FloorID: s.Floor.ID,
		Payload: payload,
	}, "")
}

func (h *Hub) broadcastToRoom(floorID string, msg *Message, excludeClientID string) {
	h.mu.RLock()
	room, ok := h.rooms[floorID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	clients := make([]*Client, 0, len(room.clients))
	for _, c := range room.clients {
		if c.ClientID != excludeClientID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Send(msg)
	}
}
