package app

import (
	"context"
	"encoding/json"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"medlink_chat_service/internal/chat/domain"
	"medlink_chat_service/pkg/errs"
	"medlink_chat_service/pkg/logger"
	"medlink_chat_service/pkg/middlewares"
)

// ChatWebsocketHandler is the connection coordinator: it owns the
// connection lifecycle and is the sole caller into the other components on
// behalf of a live connection.
type ChatWebsocketHandler struct {
	hub        *Hub
	cast       Broadcaster
	presenceUC *PresenceUseCase
	convUC     *ConversationUseCase
	messageUC  *MessageUseCase
	typing     *TypingTracker
}

// NewChatWebsocketHandler create ChatWebsocketHandler.
func NewChatWebsocketHandler(
	hub *Hub,
	cast Broadcaster,
	presenceUC *PresenceUseCase,
	convUC *ConversationUseCase,
	messageUC *MessageUseCase,
	typing *TypingTracker,
) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		hub:        hub,
		cast:       cast,
		presenceUC: presenceUC,
		convUC:     convUC,
		messageUC:  messageUC,
		typing:     typing,
	}
}

// HandleConnection is the websocket entry point. The JWT middleware has
// already verified the credential before the upgrade; a connection that
// reaches this point without a user id is rejected before registration.
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	userID, ok := conn.Locals(middlewares.TokenUserID).(string)
	if !ok || userID == "" {
		payload, _ := json.Marshal(domain.NewErrorEvent(errs.Unauthenticated("missing identity")))
		_ = conn.WriteMessage(websocket.TextMessage, payload)
		_ = conn.Close()
		return
	}

	client := NewClient(userID, conn)
	logger.Log.Info("websocket connected",
		zap.String("user_id", userID), zap.String("conn_id", client.ID))

	h.hub.Register(client)
	client.Start()
	h.presenceUC.Connect(ctx, userID, client.ID)

	defer func() {
		h.hub.Unregister(client)
		h.presenceUC.Disconnect(ctx, userID, client.ID)
		client.Close()
		logger.Log.Info("websocket disconnected",
			zap.String("user_id", userID), zap.String("conn_id", client.ID))
	}()

	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Warn("websocket read", zap.String("user_id", userID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		h.dispatch(ctx, client, raw)
	}
}

// dispatch handles one inbound event. Failures never cross connection
// boundaries: they are turned into a single error event for the
// originating connection only.
func (h *ChatWebsocketHandler) dispatch(ctx context.Context, client *Client, raw []byte) {
	var req domain.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		h.sendError(client, errs.InvalidArgument("malformed request"))
		return
	}

	var err error
	switch domain.Action(req.Action) {
	case domain.ActionJoinConversation:
		err = h.joinConversation(ctx, client, req.ConversationID)
	case domain.ActionSendMessage:
		err = h.sendMessage(ctx, client, req)
	case domain.ActionTyping:
		err = h.startTyping(client, req.ConversationID)
	case domain.ActionStopTyping:
		err = h.stopTyping(client, req.ConversationID)
	case domain.ActionMarkRead:
		_, err = h.messageUC.MarkRead(ctx, req.ConversationID, client.UserID)
	case domain.ActionGetUserStatus:
		err = h.userStatus(ctx, client, req.UserID)
	default:
		err = errs.InvalidArgument("unknown action %q", req.Action)
	}

	if err != nil {
		logger.Log.Warn("websocket action failed",
			zap.String("user_id", client.UserID),
			zap.String("action", req.Action),
			zap.Error(err))
		h.sendError(client, err)
	}
}

func (h *ChatWebsocketHandler) joinConversation(ctx context.Context, client *Client, conversationID string) error {
	if conversationID == "" {
		return errs.InvalidArgument("conversation_id is required")
	}
	conv, err := h.convUC.Require(ctx, conversationID, client.UserID)
	if err != nil {
		return err
	}

	h.hub.Join(conv.ID, client)
	return h.sendEvent(client, domain.Event{
		Event: domain.EventJoinedConversation,
		Data:  domain.JoinedConversationEvent{ConversationID: conv.ID},
	})
}

func (h *ChatWebsocketHandler) sendMessage(ctx context.Context, client *Client, req domain.Request) error {
	target, err := domain.NewSendTarget(req.ConversationID, req.ReceiverID)
	if err != nil {
		return err
	}
	kind, err := domain.ParseMessageKind(req.Kind)
	if err != nil {
		return err
	}
	_, err = h.messageUC.Send(ctx, client.UserID, target, req.Body, kind)
	return err
}

func (h *ChatWebsocketHandler) startTyping(client *Client, conversationID string) error {
	if conversationID == "" {
		return errs.InvalidArgument("conversation_id is required")
	}
	if h.typing.Start(conversationID, client.UserID) {
		h.cast.ToConversation(conversationID, domain.Event{Event: domain.EventUserTyping, Data: domain.TypingEvent{
			ConversationID: conversationID,
			UserID:         client.UserID,
		}}, client.ID)
	}
	return nil
}

func (h *ChatWebsocketHandler) stopTyping(client *Client, conversationID string) error {
	if conversationID == "" {
		return errs.InvalidArgument("conversation_id is required")
	}
	if h.typing.Stop(conversationID, client.UserID) {
		h.cast.ToConversation(conversationID, domain.Event{Event: domain.EventUserStopTyping, Data: domain.TypingEvent{
			ConversationID: conversationID,
			UserID:         client.UserID,
		}}, client.ID)
	}
	return nil
}

func (h *ChatWebsocketHandler) userStatus(ctx context.Context, client *Client, userID string) error {
	if userID == "" {
		return errs.InvalidArgument("user_id is required")
	}
	status, err := h.presenceUC.Status(ctx, userID)
	if err != nil {
		return err
	}
	return h.sendEvent(client, domain.Event{Event: domain.EventUserStatusChanged, Data: domain.UserStatusChangedEvent{
		UserID:   status.UserID,
		IsOnline: status.IsOnline,
		LastSeen: status.LastSeen,
	}})
}

func (h *ChatWebsocketHandler) sendEvent(client *Client, evt domain.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return client.Send(payload)
}

func (h *ChatWebsocketHandler) sendError(client *Client, err error) {
	_ = h.sendEvent(client, domain.NewErrorEvent(err))
}
