package domain

import "time"

// Action websocket request action
type Action string

const (
	// ActionJoinConversation subscribe the connection to a conversation channel
	ActionJoinConversation Action = "join_conversation"
	// ActionSendMessage persist and fan out one message
	ActionSendMessage Action = "send_message"
	// ActionTyping start the typing indicator
	ActionTyping Action = "typing"
	// ActionStopTyping stop the typing indicator
	ActionStopTyping Action = "stop_typing"
	// ActionMarkRead flip unread messages of a conversation to read
	ActionMarkRead Action = "mark_read"
	// ActionGetUserStatus query a user's presence
	ActionGetUserStatus Action = "get_user_status"
)

// Request is the inbound websocket frame. Which fields matter depends on
// the action.
type Request struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id,omitempty"`
	ReceiverID     string `json:"receiver_id,omitempty"`
	Body           string `json:"body,omitempty"`
	Kind           string `json:"kind,omitempty"`
	UserID         string `json:"user_id,omitempty"`
}

// Outbound event names.
const (
	// EventJoinedConversation ack for join_conversation
	EventJoinedConversation = "joined_conversation"
	// EventMessage a newly persisted message
	EventMessage = "message"
	// EventMessageRead read-receipt for a conversation
	EventMessageRead = "message_read"
	// EventUserTyping a participant started typing
	EventUserTyping = "user_typing"
	// EventUserStopTyping a participant stopped typing
	EventUserStopTyping = "user_stop_typing"
	// EventUserStatusChanged presence transition, sent globally
	EventUserStatusChanged = "user_status_changed"
	// EventUserOnline user gained its first live connection
	EventUserOnline = "user_online"
	// EventUserOffline user lost its last live connection
	EventUserOffline = "user_offline"
	// EventError scoped failure for the originating connection only
	EventError = "error"
)

// Event is the outbound envelope written to websocket clients.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// SenderInfo display fields attached to an outbound message.
type SenderInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// JoinedConversationEvent payload for joined_conversation.
type JoinedConversationEvent struct {
	ConversationID string `json:"conversation_id"`
}

// MessageEvent payload for message.
type MessageEvent struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Body           string      `json:"body,omitempty"`
	Sender         SenderInfo  `json:"sender"`
	CreatedAt      time.Time   `json:"created_at"`
	Kind           MessageKind `json:"kind"`
	IsRead         bool        `json:"is_read"`
}

// MessageReadEvent payload for message_read. MessageID is set when the
// receipt was triggered by a single send; bulk mark_read leaves it empty.
type MessageReadEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	UserID         string `json:"user_id"`
}

// TypingEvent payload for user_typing and user_stop_typing.
type TypingEvent struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// UserStatusChangedEvent payload for user_status_changed.
type UserStatusChangedEvent struct {
	UserID   string     `json:"user_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// UserOnlineEvent payload for user_online.
type UserOnlineEvent struct {
	UserID string `json:"user_id"`
}

// UserOfflineEvent payload for user_offline.
type UserOfflineEvent struct {
	UserID   string    `json:"user_id"`
	LastSeen time.Time `json:"last_seen"`
}

// ErrorEvent payload for error.
type ErrorEvent struct {
	Message string `json:"message"`
}

// NewErrorEvent wraps a failure for the originating connection.
func NewErrorEvent(err error) Event {
	return Event{Event: EventError, Data: ErrorEvent{Message: err.Error()}}
}
