package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medlink_chat_service/internal/chat/domain"
	"medlink_chat_service/internal/chat/repository"
	"medlink_chat_service/pkg/errs"
	"medlink_chat_service/pkg/logger"
)

// ConversationUseCase resolves conversations by participant set and serves
// the conversation list.
type ConversationUseCase struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
}

// NewConversationUseCase init ConversationUseCase.
func NewConversationUseCase(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
) *ConversationUseCase {
	return &ConversationUseCase{convRepo: convRepo, msgRepo: msgRepo}
}

// FindOrCreate returns the conversation whose membership exactly equals the
// given participant set, creating it when absent. Idempotent: the same set
// in any order maps to the same conversation, and concurrent identical
// calls collapse onto one row through the store's uniqueness constraint.
func (uc *ConversationUseCase) FindOrCreate(ctx context.Context, participantIDs []string) (*domain.Conversation, error) {
	normalized, err := domain.NormalizeParticipants(participantIDs)
	if err != nil {
		return nil, err
	}

	conv, err := uc.convRepo.FindByParticipants(ctx, normalized)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	return uc.convRepo.Create(ctx, &domain.Conversation{
		ID:             uuid.NewString(),
		ParticipantIDs: normalized,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

// Require loads a conversation and enforces that userID is a participant.
func (uc *ConversationUseCase) Require(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := uc.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errs.Forbidden("user %s is not a participant of conversation %s", userID, conversationID)
	}
	return conv, nil
}

// ListForUser returns the user's conversations with their last message and
// unread count, ordered by updated_at descending.
func (uc *ConversationUseCase) ListForUser(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	convs, err := uc.convRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summary := domain.ConversationSummary{Conversation: conv}

		last, err := uc.msgRepo.FindLast(ctx, conv.ID)
		if err == nil {
			summary.LastMessage = last
		} else if !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}

		unread, err := uc.msgRepo.CountUnread(ctx, conv.ID, userID)
		if err != nil {
			logger.Log.Warn("count unread", zap.String("conversation_id", conv.ID), zap.Error(err))
		}
		summary.UnreadCount = unread

		summaries = append(summaries, summary)
	}
	return summaries, nil
}
