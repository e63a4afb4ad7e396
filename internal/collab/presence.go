package collab

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// PresenceManager tracks what each client in a room is hovering over.
type PresenceManager struct {
	mu        sync.RWMutex
	presences map[string]*PresencePayload // clientID -> presence
}

func NewPresenceManager() *PresenceManager {
	return &PresenceManager{
		presences: make(map[string]*PresencePayload),
	}
}

// Update stores p and reports whether the hovered space changed.
func (pm *PresenceManager) Update(clientID string, p *PresencePayload) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	prev, ok := pm.presences[clientID]
	pm.presences[clientID] = p
	return !ok || prev.HoverSpaceID != p.HoverSpaceID
}

func (pm *PresenceManager) Remove(clientID string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.presences, clientID)
}

func (pm *PresenceManager) GetAll() map[string]*PresencePayload {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	result := make(map[string]*PresencePayload, len(pm.presences))
	for k, v := range pm.presences {
		result[k] = v
	}
	return result
}

func (pm *PresenceManager) StateMessage() *Message {
	all := pm.GetAll()
	payload, err := json.Marshal(PresenceStatePayload{Presences: all})
	if err != nil {
		slog.Error("marshal presence state", "error", err)
		return nil
	}
	return &Message{
		Type:    TypePresenceState,
		Payload: payload,
	}
}
