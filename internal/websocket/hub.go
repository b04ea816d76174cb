package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Event is a live-sync notification pushed to a family's connected devices
// when a ledger entry, redemption, or child balance changes.
type Event struct {
	Type    string `json:"type"`
	Entity  string `json:"entity"`
	Action  string `json:"action"`
	ID      int64  `json:"id,omitempty"`
	ChildID int64  `json:"child_id,omitempty"`
}

// NewEvent creates an Event with the Type field derived from entity and action.
func NewEvent(entity, action string, id, childID int64) Event {
	return Event{
		Type:    fmt.Sprintf("%s_%s", entity, action),
		Entity:  entity,
		Action:  action,
		ID:      id,
		ChildID: childID,
	}
}

// Hub maintains active connections grouped by family (parent account id) and
// fans events out to the matching group only. A parent's devices and their
// children's devices share one group.
type Hub struct {
	mu       sync.RWMutex
	families map[int64]map[*Client]struct{}
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		families: make(map[int64]map[*Client]struct{}),
		logger:   logger.With("component", "websocket"),
	}
}

// Register adds a client to its family's group.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	group, ok := h.families[c.familyID]
	if !ok {
		group = make(map[*Client]struct{})
		h.families[c.familyID] = group
	}
	group[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client and closes its send channel. Empty groups are
// dropped so the map does not accumulate departed families.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if group, ok := h.families[c.familyID]; ok {
		if _, ok := group[c]; ok {
			delete(group, c)
			close(c.send)
		}
		if len(group) == 0 {
			delete(h.families, c.familyID)
		}
	}
	h.mu.Unlock()
}

// Broadcast sends an event to every device of one family.
func (h *Hub) Broadcast(familyID int64, evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("marshal event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.families[familyID] {
		select {
		case c.send <- data:
		default:
			// client buffer full, drop rather than block the sender
		}
	}
}

// ClientCount returns the number of connected clients across all families.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, group := range h.families {
		n += len(group)
	}
	return n
}
