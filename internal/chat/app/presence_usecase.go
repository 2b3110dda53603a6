package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"medlink_chat_service/internal/chat/domain"
	"medlink_chat_service/internal/chat/repository"
	"medlink_chat_service/pkg/logger"
)

// PresenceUseCase owns online/offline transitions: it keeps the in-memory
// presence table and the durable is_online / last_seen columns in step and
// broadcasts the transitions. Invariant: a user reads as online exactly
// while its connection set is non-empty.
type PresenceUseCase struct {
	presence *PresenceTracker
	typing   *TypingTracker
	userRepo repository.UserRepository
	cast     Broadcaster
}

// NewPresenceUseCase init PresenceUseCase.
func NewPresenceUseCase(
	presence *PresenceTracker,
	typing *TypingTracker,
	userRepo repository.UserRepository,
	cast Broadcaster,
) *PresenceUseCase {
	return &PresenceUseCase{presence: presence, typing: typing, userRepo: userRepo, cast: cast}
}

// Connect registers a live connection. On the user's first connection the
// durable flag flips and the presence change goes out to everyone. The
// durable write is best effort: a store failure is logged, not fatal for
// the connection.
func (uc *PresenceUseCase) Connect(ctx context.Context, userID, connID string) {
	if !uc.presence.Add(userID, connID) {
		return
	}

	if err := uc.userRepo.SetOnline(ctx, userID); err != nil {
		logger.Log.Warn("persist online flag", zap.String("user_id", userID), zap.Error(err))
	}

	uc.cast.Everyone(domain.Event{Event: domain.EventUserOnline, Data: domain.UserOnlineEvent{UserID: userID}})
	uc.cast.Everyone(domain.Event{Event: domain.EventUserStatusChanged, Data: domain.UserStatusChangedEvent{
		UserID:   userID,
		IsOnline: true,
	}})
}

// Disconnect removes a live connection. On the user's last connection the
// durable last_seen is written, the presence change goes out, and the user
// is purged from every typing set it belonged to (emitting stop-typing per
// conversation).
func (uc *PresenceUseCase) Disconnect(ctx context.Context, userID, connID string) {
	if !uc.presence.Remove(userID, connID) {
		return
	}

	for _, conversationID := range uc.typing.PurgeUser(userID) {
		uc.cast.ToConversation(conversationID, domain.Event{Event: domain.EventUserStopTyping, Data: domain.TypingEvent{
			ConversationID: conversationID,
			UserID:         userID,
		}}, "")
	}

	lastSeen := time.Now().UTC()
	if err := uc.userRepo.SetOffline(ctx, userID, lastSeen); err != nil {
		logger.Log.Warn("persist last_seen", zap.String("user_id", userID), zap.Error(err))
	}

	uc.cast.Everyone(domain.Event{Event: domain.EventUserOffline, Data: domain.UserOfflineEvent{
		UserID:   userID,
		LastSeen: lastSeen,
	}})
	uc.cast.Everyone(domain.Event{Event: domain.EventUserStatusChanged, Data: domain.UserStatusChangedEvent{
		UserID:   userID,
		IsOnline: false,
		LastSeen: &lastSeen,
	}})
}

// Status answers a presence query: the in-memory table wins while the user
// is online, otherwise the durable last_seen is served.
func (uc *PresenceUseCase) Status(ctx context.Context, userID string) (*domain.PresenceStatus, error) {
	if uc.presence.IsOnline(userID) {
		return &domain.PresenceStatus{UserID: userID, IsOnline: true}, nil
	}

	user, err := uc.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.PresenceStatus{UserID: userID, IsOnline: false, LastSeen: user.LastSeen}, nil
}
