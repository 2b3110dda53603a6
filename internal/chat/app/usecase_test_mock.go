package app

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"medlink_chat_service/internal/chat/domain"
)

// MockConversationRepository Mock ConversationRepository
type MockConversationRepository struct {
	mock.Mock
}

// FindByID mock find conversation by id
func (m *MockConversationRepository) FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByParticipants mock find conversation by normalized participant set
func (m *MockConversationRepository) FindByParticipants(ctx context.Context, normalizedIDs []string) (*domain.Conversation, error) {
	args := m.Called(ctx, normalizedIDs)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// Create mock create conversation
func (m *MockConversationRepository) Create(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	args := m.Called(ctx, conv)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// Touch mock bump updated_at
func (m *MockConversationRepository) Touch(ctx context.Context, conversationID string, at time.Time) error {
	args := m.Called(ctx, conversationID, at)
	return args.Error(0)
}

// ListForUser mock list conversations of a user
func (m *MockConversationRepository) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Insert mock insert message
func (m *MockMessageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// Find mock page messages ascending
func (m *MockMessageRepository) Find(ctx context.Context, conversationID string, offset, limit int64) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID, offset, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindLast mock find newest message
func (m *MockMessageRepository) FindLast(ctx context.Context, conversationID string) (*domain.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkRead mock flip unread messages
func (m *MockMessageRepository) MarkRead(ctx context.Context, conversationID, excludeSenderID string) (int64, error) {
	args := m.Called(ctx, conversationID, excludeSenderID)
	return args.Get(0).(int64), args.Error(1)
}

// CountUnread mock count unread messages
func (m *MockMessageRepository) CountUnread(ctx context.Context, conversationID, userID string) (int64, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Get(0).(int64), args.Error(1)
}

// MockUserRepository Mock UserRepository
type MockUserRepository struct {
	mock.Mock
}

// FindByID mock find user by id
func (m *MockUserRepository) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// SetOnline mock persist online flag
func (m *MockUserRepository) SetOnline(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// SetOffline mock persist last_seen
func (m *MockUserRepository) SetOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	args := m.Called(ctx, userID, lastSeen)
	return args.Error(0)
}

// MockPubSub Mock PubSub transport
type MockPubSub struct {
	mock.Mock
}

// Publish mock publish frame
func (m *MockPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	args := m.Called(ctx, channel, payload)
	return args.Error(0)
}

// Subscribe mock subscribe channel
func (m *MockPubSub) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) {
	m.Called(ctx, channel, handler)
}

// broadcastCall is one recorded Broadcaster invocation.
type broadcastCall struct {
	Scope   string // "user", "conversation", "all"
	Target  string
	Exclude string
	Event   domain.Event
}

// recordingBroadcaster captures broadcasts so tests can assert on routing
// and payloads without real connections.
type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (r *recordingBroadcaster) ToUser(userID string, evt domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, broadcastCall{Scope: "user", Target: userID, Event: evt})
}

func (r *recordingBroadcaster) ToConversation(conversationID string, evt domain.Event, excludeConnID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, broadcastCall{Scope: "conversation", Target: conversationID, Exclude: excludeConnID, Event: evt})
}

func (r *recordingBroadcaster) Everyone(evt domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, broadcastCall{Scope: "all", Event: evt})
}

func (r *recordingBroadcaster) Calls() []broadcastCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]broadcastCall, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *recordingBroadcaster) EventsNamed(name string) []broadcastCall {
	var out []broadcastCall
	for _, c := range r.Calls() {
		if c.Event.Event == name {
			out = append(out, c)
		}
	}
	return out
}
