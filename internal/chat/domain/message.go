package domain

import (
	"time"

	"medlink_chat_service/pkg/errs"
)

// MessageKind enumerates message payload types.
type MessageKind string

const (
	// KindText plain text message
	KindText MessageKind = "TEXT"
	// KindFile message referencing an uploaded file
	KindFile MessageKind = "FILE"
	// KindVideo message referencing an uploaded video
	KindVideo MessageKind = "VIDEO"
)

// ParseMessageKind validates a wire-level kind. Empty defaults to TEXT.
func ParseMessageKind(s string) (MessageKind, error) {
	switch MessageKind(s) {
	case "":
		return KindText, nil
	case KindText, KindFile, KindVideo:
		return MessageKind(s), nil
	default:
		return "", errs.InvalidArgument("unknown message kind %q", s)
	}
}

// Message is immutable once created except for the IsRead transition.
// Within a conversation messages are totally ordered by CreatedAt, ties
// broken by ID.
type Message struct {
	ID             string      `bson:"_id" json:"id"`
	ConversationID string      `bson:"conversation_id" json:"conversation_id"`
	SenderID       string      `bson:"sender_id" json:"sender_id"`
	Body           string      `bson:"body,omitempty" json:"body,omitempty"`
	Kind           MessageKind `bson:"kind" json:"kind"`
	CreatedAt      time.Time   `bson:"created_at" json:"created_at"`
	IsRead         bool        `bson:"is_read" json:"is_read"`
}

// SendTarget is a tagged variant: a message goes either to an existing
// conversation or directly to a receiver when no conversation exists yet.
// This replaces the two nullable DTO fields so "neither" and "both" are
// rejected at the boundary.
type SendTarget struct {
	conversationID string
	receiverID     string
}

// TargetConversation addresses an existing conversation.
func TargetConversation(conversationID string) SendTarget {
	return SendTarget{conversationID: conversationID}
}

// TargetUser addresses a counterpart; the conversation is resolved or
// created on demand.
func TargetUser(receiverID string) SendTarget {
	return SendTarget{receiverID: receiverID}
}

// NewSendTarget builds a target from wire-level optional fields, requiring
// exactly one of them.
func NewSendTarget(conversationID, receiverID string) (SendTarget, error) {
	switch {
	case conversationID != "" && receiverID != "":
		return SendTarget{}, errs.InvalidArgument("provide either conversation_id or receiver_id, not both")
	case conversationID != "":
		return TargetConversation(conversationID), nil
	case receiverID != "":
		return TargetUser(receiverID), nil
	default:
		return SendTarget{}, errs.InvalidArgument("either conversation_id or receiver_id is required")
	}
}

// ConversationID returns the addressed conversation, if any.
func (t SendTarget) ConversationID() (string, bool) {
	return t.conversationID, t.conversationID != ""
}

// ReceiverID returns the addressed counterpart, if any.
func (t SendTarget) ReceiverID() (string, bool) {
	return t.receiverID, t.receiverID != ""
}
