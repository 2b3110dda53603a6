package bdd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/google/uuid"

	"medlink_chat_service/internal/chat/app"
	"medlink_chat_service/internal/chat/domain"
	"medlink_chat_service/pkg/errs"
	"medlink_chat_service/pkg/logger"
)

func TestFeatures(t *testing.T) {
	logger.SetNewNop()
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Paths:  []string{"./featureFiles"},
			Format: "pretty",
			Output: os.Stdout,
		},
	}

	if suite.Run() != 0 {
		t.Fail()
	}
}

// InitializeScenario binds the Gherkin steps and resets the world per
// scenario.
func InitializeScenario(s *godog.ScenarioContext) {
	s.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		resetWorld()
		return ctx, nil
	})

	s.Step(`^a user "([^"]*)" exists$`, aUserExists)
	s.Step(`^"([^"]*)" is online$`, userIsOnline)
	s.Step(`^"([^"]*)" sends "([^"]*)" to user "([^"]*)"$`, sendsToUser)
	s.Step(`^a conversation between "([^"]*)" and "([^"]*)" exists$`, conversationBetweenExists)
	s.Step(`^the conversation holds (\d+) messages?$`, conversationHoldsMessages)
	s.Step(`^the last message is unread$`, lastMessageIsUnread)
	s.Step(`^the last message is read$`, lastMessageIsRead)
	s.Step(`^"([^"]*)" has (\d+) unread messages? in the conversation$`, hasUnreadMessages)
	s.Step(`^"([^"]*)" marks the conversation read$`, marksConversationRead)
	s.Step(`^marking the conversation read again affects (\d+) messages$`, markingAgainAffects)
	s.Step(`^"([^"]*)" cannot read the conversation$`, cannotReadConversation)
}

// world holds the per-scenario state: in-memory stores underneath the real
// use cases.
type world struct {
	users    *memoryUserStore
	convs    *memoryConversationStore
	msgs     *memoryMessageStore
	presence *app.PresenceTracker

	convUC    *app.ConversationUseCase
	messageUC *app.MessageUseCase

	lastMessage  *domain.Message
	lastConvID   string
	lastAffected int64
}

var w *world

func resetWorld() {
	users := &memoryUserStore{users: map[string]*domain.User{}}
	convs := &memoryConversationStore{byKey: map[string]*domain.Conversation{}}
	msgs := &memoryMessageStore{}
	presence := app.NewPresenceTracker()

	convUC := app.NewConversationUseCase(convs, msgs)
	messageUC := app.NewMessageUseCase(convUC, convs, msgs, users, presence, nopBroadcaster{})

	w = &world{
		users:     users,
		convs:     convs,
		msgs:      msgs,
		presence:  presence,
		convUC:    convUC,
		messageUC: messageUC,
	}
}

func aUserExists(name string) error {
	w.users.users[name] = &domain.User{ID: name, FirstName: name}
	return nil
}

func userIsOnline(name string) error {
	w.presence.Add(name, uuid.NewString())
	return nil
}

func sendsToUser(sender, body, receiver string) error {
	msg, err := w.messageUC.Send(context.Background(), sender, domain.TargetUser(receiver), body, domain.KindText)
	if err != nil {
		return err
	}
	w.lastMessage = msg
	w.lastConvID = msg.ConversationID
	return nil
}

func conversationBetweenExists(a, b string) error {
	ids := []string{a, b}
	sort.Strings(ids)
	conv, err := w.convs.FindByParticipants(context.Background(), ids)
	if err != nil {
		return err
	}
	w.lastConvID = conv.ID
	return nil
}

func conversationHoldsMessages(count int) error {
	msgs, err := w.msgs.Find(context.Background(), w.lastConvID, 0, 100)
	if err != nil {
		return err
	}
	if len(msgs) != count {
		return fmt.Errorf("expected %d messages, found %d", count, len(msgs))
	}
	return nil
}

func lastMessageIsUnread() error {
	return checkLastRead(false)
}

func lastMessageIsRead() error {
	return checkLastRead(true)
}

func checkLastRead(want bool) error {
	last, err := w.msgs.FindLast(context.Background(), w.lastConvID)
	if err != nil {
		return err
	}
	if last.IsRead != want {
		return fmt.Errorf("expected is_read=%v, got %v", want, last.IsRead)
	}
	return nil
}

func hasUnreadMessages(user string, count int) error {
	unread, err := w.messageUC.UnreadCount(context.Background(), w.lastConvID, user)
	if err != nil {
		return err
	}
	if unread != int64(count) {
		return fmt.Errorf("expected %d unread, got %d", count, unread)
	}
	return nil
}

func marksConversationRead(user string) error {
	affected, err := w.messageUC.MarkRead(context.Background(), w.lastConvID, user)
	if err != nil {
		return err
	}
	w.lastAffected = affected
	return nil
}

func markingAgainAffects(count int) error {
	affected, err := w.messageUC.MarkRead(context.Background(), w.lastConvID, "bob")
	if err != nil {
		return err
	}
	if affected != int64(count) {
		return fmt.Errorf("expected %d affected, got %d", count, affected)
	}
	return nil
}

func cannotReadConversation(user string) error {
	_, err := w.messageUC.Fetch(context.Background(), user, w.lastConvID, 0, 10)
	if err == nil {
		return fmt.Errorf("expected access to be denied for %q", user)
	}
	if !errors.Is(err, errs.ErrForbidden) {
		return fmt.Errorf("expected a forbidden error, got %v", err)
	}
	return nil
}

type nopBroadcaster struct{}

func (nopBroadcaster) ToUser(string, domain.Event)                 {}
func (nopBroadcaster) ToConversation(string, domain.Event, string) {}
func (nopBroadcaster) Everyone(domain.Event)                       {}

type memoryUserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func (s *memoryUserStore) FindByID(_ context.Context, userID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		return u, nil
	}
	return nil, errs.NotFound("user %s", userID)
}

func (s *memoryUserStore) SetOnline(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.IsOnline = true
	}
	return nil
}

func (s *memoryUserStore) SetOffline(_ context.Context, userID string, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.IsOnline = false
		u.LastSeen = &lastSeen
	}
	return nil
}

type memoryConversationStore struct {
	mu    sync.Mutex
	byKey map[string]*domain.Conversation
}

func (s *memoryConversationStore) FindByID(_ context.Context, conversationID string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byKey {
		if c.ID == conversationID {
			return c, nil
		}
	}
	return nil, errs.NotFound("conversation %s", conversationID)
}

func (s *memoryConversationStore) FindByParticipants(_ context.Context, normalizedIDs []string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byKey[domain.ParticipantKey(normalizedIDs)]; ok {
		return c, nil
	}
	return nil, errs.NotFound("no conversation for participants")
}

func (s *memoryConversationStore) Create(_ context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.ParticipantKey(conv.ParticipantIDs)
	if existing, ok := s.byKey[key]; ok {
		return existing, nil
	}
	s.byKey[key] = conv
	return conv, nil
}

func (s *memoryConversationStore) Touch(_ context.Context, conversationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byKey {
		if c.ID == conversationID {
			c.UpdatedAt = at
		}
	}
	return nil
}

func (s *memoryConversationStore) ListForUser(_ context.Context, userID string) ([]domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Conversation
	for _, c := range s.byKey {
		if c.HasParticipant(userID) {
			out = append(out, *c)
		}
	}
	return out, nil
}

type memoryMessageStore struct {
	mu   sync.Mutex
	msgs []*domain.Message
}

func (s *memoryMessageStore) Insert(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *msg
	s.msgs = append(s.msgs, &copied)
	return nil
}

func (s *memoryMessageStore) Find(_ context.Context, conversationID string, offset, limit int64) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, m := range s.msgs {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	if offset >= int64(len(out)) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < int64(len(out)) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryMessageStore) FindLast(_ context.Context, conversationID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if s.msgs[i].ConversationID == conversationID {
			m := *s.msgs[i]
			return &m, nil
		}
	}
	return nil, errs.NotFound("conversation %s has no messages", conversationID)
}

func (s *memoryMessageStore) MarkRead(_ context.Context, conversationID, excludeSenderID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	for _, m := range s.msgs {
		if m.ConversationID == conversationID && m.SenderID != excludeSenderID && !m.IsRead {
			m.IsRead = true
			affected++
		}
	}
	return affected, nil
}

func (s *memoryMessageStore) CountUnread(_ context.Context, conversationID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, m := range s.msgs {
		if m.ConversationID == conversationID && m.SenderID != userID && !m.IsRead {
			count++
		}
	}
	return count, nil
}
