package app

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"medlink_chat_service/internal/chat/domain"
	"medlink_chat_service/internal/chat/repository"
	"medlink_chat_service/pkg/logger"
)

// relayChannel carries broadcast frames between coordinating processes.
const relayChannel = "chat:events"

// relayFrame is one mirrored broadcast. NodeID keeps a process from
// replaying its own frames.
type relayFrame struct {
	NodeID        string       `json:"node_id"`
	Scope         string       `json:"scope"`
	Target        string       `json:"target,omitempty"`
	ExcludeConnID string       `json:"exclude_conn_id,omitempty"`
	Event         domain.Event `json:"event"`
}

const (
	scopeUser         = "user"
	scopeConversation = "conversation"
	scopeAll          = "all"
)

// RelayBroadcaster extends the single-process Hub across nodes: every
// broadcast is applied locally and mirrored over pub/sub so peer processes
// can replay it into their own hubs. Connection-id exclusions pass through
// untouched; a peer never holds the excluded connection.
type RelayBroadcaster struct {
	local  *Hub
	pubsub repository.PubSub
	nodeID string
}

// NewRelayBroadcaster create RelayBroadcaster.
func NewRelayBroadcaster(local *Hub, pubsub repository.PubSub, nodeID string) *RelayBroadcaster {
	return &RelayBroadcaster{local: local, pubsub: pubsub, nodeID: nodeID}
}

// Start subscribes to peer frames until ctx is done.
func (r *RelayBroadcaster) Start(ctx context.Context) {
	r.pubsub.Subscribe(ctx, relayChannel, r.apply)
}

// ToUser delivers locally and mirrors to peers.
func (r *RelayBroadcaster) ToUser(userID string, evt domain.Event) {
	r.local.ToUser(userID, evt)
	r.publish(relayFrame{NodeID: r.nodeID, Scope: scopeUser, Target: userID, Event: evt})
}

// ToConversation delivers locally and mirrors to peers.
func (r *RelayBroadcaster) ToConversation(conversationID string, evt domain.Event, excludeConnID string) {
	r.local.ToConversation(conversationID, evt, excludeConnID)
	r.publish(relayFrame{
		NodeID:        r.nodeID,
		Scope:         scopeConversation,
		Target:        conversationID,
		ExcludeConnID: excludeConnID,
		Event:         evt,
	})
}

// Everyone delivers locally and mirrors to peers.
func (r *RelayBroadcaster) Everyone(evt domain.Event) {
	r.local.Everyone(evt)
	r.publish(relayFrame{NodeID: r.nodeID, Scope: scopeAll, Event: evt})
}

func (r *RelayBroadcaster) publish(f relayFrame) {
	payload, err := json.Marshal(f)
	if err != nil {
		logger.Log.Error("marshal relay frame", zap.Error(err))
		return
	}
	if err := r.pubsub.Publish(context.Background(), relayChannel, payload); err != nil {
		logger.Log.Warn("publish relay frame", zap.Error(err))
	}
}

func (r *RelayBroadcaster) apply(payload []byte) {
	var f relayFrame
	if err := json.Unmarshal(payload, &f); err != nil {
		logger.Log.Warn("unmarshal relay frame", zap.Error(err))
		return
	}
	if f.NodeID == r.nodeID {
		return
	}

	switch f.Scope {
	case scopeUser:
		r.local.ToUser(f.Target, f.Event)
	case scopeConversation:
		r.local.ToConversation(f.Target, f.Event, f.ExcludeConnID)
	case scopeAll:
		r.local.Everyone(f.Event)
	}
}
