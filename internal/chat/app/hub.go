package app

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"medlink_chat_service/internal/chat/domain"
	"medlink_chat_service/pkg/logger"
)

// Broadcaster is the outbound transport consumed by the use cases: address
// all connections of a user, all connections subscribed to a conversation,
// or everyone. Delivery is best effort; a failure to reach one stale
// connection is never surfaced to third parties.
type Broadcaster interface {
	ToUser(userID string, evt domain.Event)
	// ToConversation fans out to the conversation's subscribers.
	// excludeConnID, when non-empty, skips the originating connection.
	ToConversation(conversationID string, evt domain.Event, excludeConnID string)
	Everyone(evt domain.Event)
}

// Hub is the single-process broadcast domain: every live connection of
// this process, indexed by connection, by user and by joined conversation.
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]*Client
	userClients map[string]map[string]*Client
	rooms       map[string]map[string]*Client
	clientRooms map[string]map[string]struct{}
}

// NewHub create an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		userClients: make(map[string]map[string]*Client),
		rooms:       make(map[string]map[string]*Client),
		clientRooms: make(map[string]map[string]struct{}),
	}
}

// Register tracks a new connection.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.ID] = c
	byUser := h.userClients[c.UserID]
	if byUser == nil {
		byUser = make(map[string]*Client)
		h.userClients[c.UserID] = byUser
	}
	byUser[c.ID] = c
	h.clientRooms[c.ID] = make(map[string]struct{})
}

// Unregister drops a connection and all its conversation subscriptions.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)

	if byUser := h.userClients[c.UserID]; byUser != nil {
		delete(byUser, c.ID)
		if len(byUser) == 0 {
			delete(h.userClients, c.UserID)
		}
	}

	for roomID := range h.clientRooms[c.ID] {
		h.leaveLocked(roomID, c.ID)
	}
	delete(h.clientRooms, c.ID)
}

// Join subscribes the connection to a conversation channel. Idempotent, no
// persistence.
func (h *Hub) Join(conversationID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; !ok {
		return
	}

	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[string]*Client)
		h.rooms[conversationID] = room
	}
	room[c.ID] = c
	h.clientRooms[c.ID][conversationID] = struct{}{}
}

// ToUser delivers the event to every connection of the user.
func (h *Hub) ToUser(userID string, evt domain.Event) {
	payload, ok := marshalEvent(evt)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.userClients[userID] {
		_ = c.Send(payload)
	}
}

// ToConversation delivers the event to every connection subscribed to the
// conversation, optionally skipping the originating connection.
func (h *Hub) ToConversation(conversationID string, evt domain.Event, excludeConnID string) {
	payload, ok := marshalEvent(evt)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID, c := range h.rooms[conversationID] {
		if connID == excludeConnID {
			continue
		}
		_ = c.Send(payload)
	}
}

// Everyone delivers the event to all live connections of this process.
func (h *Hub) Everyone(evt domain.Event) {
	payload, ok := marshalEvent(evt)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		_ = c.Send(payload)
	}
}

func (h *Hub) leaveLocked(conversationID, connID string) {
	room := h.rooms[conversationID]
	if room == nil {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
}

func marshalEvent(evt domain.Event) ([]byte, bool) {
	payload, err := json.Marshal(evt)
	if err != nil {
		logger.Log.Error("marshal event", zap.String("event", evt.Event), zap.Error(err))
		return nil, false
	}
	return payload, true
}
