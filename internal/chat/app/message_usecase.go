package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medlink_chat_service/internal/chat/domain"
	"medlink_chat_service/internal/chat/repository"
	"medlink_chat_service/pkg/errs"
	"medlink_chat_service/pkg/logger"
)

// MessageUseCase validates, persists and routes one message: resolve the
// target conversation, write the message, compute delivery state and emit
// to every interested connection.
type MessageUseCase struct {
	convs    *ConversationUseCase
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	userRepo repository.UserRepository
	presence *PresenceTracker
	cast     Broadcaster
}

// NewMessageUseCase init MessageUseCase.
func NewMessageUseCase(
	convs *ConversationUseCase,
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	presence *PresenceTracker,
	cast Broadcaster,
) *MessageUseCase {
	return &MessageUseCase{
		convs:    convs,
		convRepo: convRepo,
		msgRepo:  msgRepo,
		userRepo: userRepo,
		presence: presence,
		cast:     cast,
	}
}

// Send persists one message and fans it out. The target is either an
// existing conversation or a receiver; in the latter case the conversation
// is found or created on demand. When the receiver is online at the moment
// of send, the read-receipt transition runs immediately and the emitted
// payload already carries is_read=true.
func (uc *MessageUseCase) Send(ctx context.Context, senderID string, target domain.SendTarget, body string, kind domain.MessageKind) (*domain.Message, error) {
	if kind == domain.KindText && body == "" {
		return nil, errs.InvalidArgument("body is required for TEXT messages")
	}

	conv, receiverID, err := uc.resolveTarget(ctx, senderID, target)
	if err != nil {
		return nil, err
	}

	// "online" is deliberately coarse here: any live connection of the
	// receiver counts, whether or not the conversation is open on it.
	isRead := receiverID != "" && uc.presence.IsOnline(receiverID)

	now := time.Now().UTC()
	msg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Body:           body,
		Kind:           kind,
		CreatedAt:      now,
		IsRead:         isRead,
	}

	if err := uc.msgRepo.Insert(ctx, msg); err != nil {
		return nil, err
	}
	if err := uc.convRepo.Touch(ctx, conv.ID, now); err != nil {
		logger.Log.Warn("touch conversation", zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	evt := domain.Event{Event: domain.EventMessage, Data: domain.MessageEvent{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Body:           msg.Body,
		Sender:         uc.senderInfo(ctx, senderID),
		CreatedAt:      msg.CreatedAt,
		Kind:           msg.Kind,
		IsRead:         msg.IsRead,
	}}

	// Conversation channel first (including the sender's subscribed
	// devices), then the per-user channels in case receiver or sender
	// have not joined the conversation channel yet.
	uc.cast.ToConversation(conv.ID, evt, "")
	if receiverID != "" {
		uc.cast.ToUser(receiverID, evt)
	}
	uc.cast.ToUser(senderID, evt)

	if isRead {
		if _, err := uc.msgRepo.MarkRead(ctx, conv.ID, receiverID); err != nil {
			logger.Log.Warn("immediate read receipt", zap.String("conversation_id", conv.ID), zap.Error(err))
		} else {
			uc.cast.ToConversation(conv.ID, domain.Event{Event: domain.EventMessageRead, Data: domain.MessageReadEvent{
				ConversationID: conv.ID,
				MessageID:      msg.ID,
				UserID:         receiverID,
			}}, "")
		}
	}

	return msg, nil
}

// Fetch returns a page of the conversation's messages ascending by
// created_at. The caller must be a participant.
func (uc *MessageUseCase) Fetch(ctx context.Context, userID, conversationID string, offset, limit int64) ([]domain.Message, error) {
	if _, err := uc.convs.Require(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return uc.msgRepo.Find(ctx, conversationID, offset, limit)
}

// MarkRead flips every unread message of the conversation not sent by the
// reader and broadcasts one read-receipt. Idempotent: once nothing is left
// unread, repeated calls affect zero messages and emit nothing.
func (uc *MessageUseCase) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	conv, err := uc.convs.Require(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}

	count, err := uc.msgRepo.MarkRead(ctx, conv.ID, readerID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		uc.cast.ToConversation(conv.ID, domain.Event{Event: domain.EventMessageRead, Data: domain.MessageReadEvent{
			ConversationID: conv.ID,
			UserID:         readerID,
		}}, "")
	}
	return count, nil
}

// UnreadCount counts messages of the conversation not sent by the user and
// still unread.
func (uc *MessageUseCase) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	if _, err := uc.convs.Require(ctx, conversationID, userID); err != nil {
		return 0, err
	}
	return uc.msgRepo.CountUnread(ctx, conversationID, userID)
}

// resolveTarget maps the send target onto a conversation the sender
// belongs to, returning the direct counterpart when one is known.
func (uc *MessageUseCase) resolveTarget(ctx context.Context, senderID string, target domain.SendTarget) (*domain.Conversation, string, error) {
	if conversationID, ok := target.ConversationID(); ok {
		conv, err := uc.convs.Require(ctx, conversationID, senderID)
		if err != nil {
			return nil, "", err
		}
		return conv, conv.Counterpart(senderID), nil
	}

	receiverID, _ := target.ReceiverID()
	if receiverID == senderID {
		return nil, "", errs.InvalidArgument("cannot send a message to yourself")
	}
	if _, err := uc.userRepo.FindByID(ctx, receiverID); err != nil {
		return nil, "", err
	}

	conv, err := uc.convs.FindOrCreate(ctx, []string{senderID, receiverID})
	if err != nil {
		return nil, "", err
	}
	return conv, receiverID, nil
}

func (uc *MessageUseCase) senderInfo(ctx context.Context, senderID string) domain.SenderInfo {
	sender, err := uc.userRepo.FindByID(ctx, senderID)
	if err != nil {
		logger.Log.Warn("load sender profile", zap.String("user_id", senderID), zap.Error(err))
		return domain.SenderInfo{ID: senderID}
	}
	return domain.SenderInfo{ID: sender.ID, Name: sender.DisplayName(), Avatar: sender.Avatar}
}
