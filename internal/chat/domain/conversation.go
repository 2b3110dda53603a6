package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"medlink_chat_service/pkg/errs"
)

// Conversation is a durable chat between a fixed participant set. It is
// created on first message exchange and never implicitly deleted here.
type Conversation struct {
	ID             string    `json:"id"`
	ParticipantIDs []string  `json:"participant_ids"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return lo.Contains(c.ParticipantIDs, userID)
}

// Counterpart returns the other member of a two-party conversation, or ""
// for group conversations.
func (c *Conversation) Counterpart(userID string) string {
	if len(c.ParticipantIDs) != 2 {
		return ""
	}
	for _, id := range c.ParticipantIDs {
		if id != userID {
			return id
		}
	}
	return ""
}

// NormalizeParticipants dedupes and sorts a participant set. A conversation
// needs at least two distinct members.
func NormalizeParticipants(ids []string) ([]string, error) {
	ids = lo.Uniq(lo.Filter(ids, func(id string, _ int) bool { return id != "" }))
	if len(ids) < 2 {
		return nil, errs.InvalidArgument("conversation needs at least two distinct participants")
	}
	sort.Strings(ids)
	return ids, nil
}

// ParticipantKey builds the normalized lookup key used by the store's
// uniqueness constraint, so two concurrent first messages between the same
// set cannot create two conversations.
func ParticipantKey(normalized []string) string {
	return strings.Join(normalized, ":")
}

// ConversationSummary is one row of a user's conversation list, ordered by
// UpdatedAt descending.
type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	LastMessage  *Message     `json:"last_message,omitempty"`
	UnreadCount  int64        `json:"unread_count"`
}
