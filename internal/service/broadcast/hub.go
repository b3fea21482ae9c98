package broadcast

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// PublishResult counts the outcome of one fan-out.
type PublishResult struct {
	SentTo  int
	Dropped int
}

// Hub keeps connected clients and the rooms they subscribe to. Delivery is
// fire-and-forget: every target gets an independent non-blocking send.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]struct{} // roomID -> set of clientIDs
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]struct{}),
	}
}

// Register adds a client. A client already registered under the same id is
// closed and replaced.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	old, exists := h.clients[c.ID]
	h.clients[c.ID] = c
	h.mu.Unlock()

	if exists && old != c {
		old.Close()
	}
	log.Debug().Str("module", "service.broadcast").Str("client", c.ID).Msg("client registered")
}

// Unregister removes the client from the hub and from every room, then
// closes it. A newer client registered under the same id is left alone.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	cur, ok := h.clients[c.ID]
	current := ok && cur == c
	if current {
		delete(h.clients, c.ID)
		for roomID, members := range h.rooms {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	h.mu.Unlock()

	c.Close()
	if current {
		log.Debug().Str("module", "service.broadcast").Str("client", c.ID).Msg("client unregistered")
	}
}

// Subscribe adds the client to a room's fan-out set.
func (h *Hub) Subscribe(roomID, clientID string) {
	h.SubscribeIf(roomID, clientID, nil)
}

// SubscribeIf subscribes the client only while guard holds. The guard runs
// under the hub lock, so a DropRoom issued after the guard turned false can
// not be overtaken by the subscription.
func (h *Hub) SubscribeIf(roomID, clientID string, guard func() bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[clientID]; !ok {
		return false
	}
	if guard != nil && !guard() {
		return false
	}
	members := h.rooms[roomID]
	if members == nil {
		members = make(map[string]struct{})
		h.rooms[roomID] = members
	}
	members[clientID] = struct{}{}
	return true
}

// Unsubscribe removes the client from a room's fan-out set.
func (h *Hub) Unsubscribe(roomID, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[roomID]
	if members == nil {
		return
	}
	delete(members, clientID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// DropRoom forgets every subscription of a room.
func (h *Hub) DropRoom(roomID string) {
	h.mu.Lock()
	delete(h.rooms, roomID)
	h.mu.Unlock()
}

// SendTo delivers an event to one client.
func (h *Hub) SendTo(clientID string, evt Event) PublishResult {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return PublishResult{}
	}
	return h.deliver(evt, []*Client{c})
}

// ToRoom delivers an event to every subscriber of the room.
func (h *Hub) ToRoom(roomID string, evt Event) PublishResult {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for id := range h.rooms[roomID] {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	return h.deliver(evt, targets)
}

// ToAll delivers an event to every connected client.
func (h *Hub) ToAll(evt Event) PublishResult {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	return h.deliver(evt, targets)
}

func (h *Hub) deliver(evt Event, targets []*Client) PublishResult {
	res := PublishResult{}
	if len(targets) == 0 {
		return res
	}

	frame, err := evt.Encode()
	if err != nil {
		log.Error().Str("module", "service.broadcast").Str("event", evt.Type).Err(err).Msg("encode event failed")
		return res
	}

	for _, c := range targets {
		if err := c.TrySend(frame); err != nil {
			res.Dropped++
			log.Warn().Str("module", "service.broadcast").Str("client", c.ID).Str("event", evt.Type).Err(err).Msg("frame dropped")
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "service.broadcast").Str("event", evt.Type).Int("sent_to", res.SentTo).Int("dropped", res.Dropped).Msg("broadcast result")
	return res
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of subscribers of a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// CloseAll closes every client and clears all subscriptions.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
