package app

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	gws "github.com/gorilla/websocket"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"medlink_chat_service/internal/chat/domain"
	"medlink_chat_service/internal/chat/repository"
	"medlink_chat_service/pkg/database"
	"medlink_chat_service/pkg/logger"
	"medlink_chat_service/pkg/middlewares"
	testtool "medlink_chat_service/pkg/test_tool"
	"medlink_chat_service/pkg/token"
)

const integrationPort = "8091"

var (
	pgContainer         testcontainers.Container
	mongoContainer      testcontainers.Container
	integrationApp      *fiber.App
	integrationMessages *MessageUseCase
)

const integrationSchema = `
CREATE TABLE users (
    id         TEXT PRIMARY KEY,
    first_name TEXT NOT NULL DEFAULT '',
    last_name  TEXT NOT NULL DEFAULT '',
    avatar     TEXT,
    role       TEXT,
    is_online  BOOLEAN NOT NULL DEFAULT FALSE,
    last_seen  TIMESTAMPTZ
);
CREATE TABLE conversations (
    id              UUID PRIMARY KEY,
    participant_key TEXT NOT NULL UNIQUE,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);
CREATE TABLE conversation_members (
    conversation_id UUID NOT NULL REFERENCES conversations(id),
    user_id         TEXT NOT NULL,
    UNIQUE (conversation_id, user_id)
);
INSERT INTO users (id, first_name, last_name) VALUES
    ('alice', 'Alice', 'Chen'),
    ('bob', 'Bob', 'Lin');
`

func TestMain(m *testing.M) {
	flag.Parse()
	logger.SetNewNop()
	if testing.Short() {
		// Unit tests in this package need no containers.
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error

	var pgHost, pgPort string
	pgContainer, pgHost, pgPort, err = testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "chat_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	})
	if err != nil {
		log.Fatalf("failed to start PostgreSQL container: %v", err)
	}

	var mongoHost, mongoPort string
	mongoContainer, mongoHost, mongoPort, err = testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "mongo:latest",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	})
	if err != nil {
		log.Fatalf("failed to start MongoDB container: %v", err)
	}

	pgPool, err := database.NewDatabaseConnection(database.Connection{
		ConnectStr:    fmt.Sprintf("postgres://test:test@%s:%s/chat_test", pgHost, pgPort),
		RetryCount:    5,
		RetryInterval: 2,
	})
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	if err := applySchema(ctx, pgPool); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	mongo, err := database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    fmt.Sprintf("mongodb://%s:%s", mongoHost, mongoPort),
		RetryCount:    5,
		RetryInterval: 2,
	}, "chat_test")
	if err != nil {
		log.Fatalf("failed to connect to MongoDB: %v", err)
	}

	userRepo := repository.NewUserRepository(pgPool)
	convRepo := repository.NewConversationRepository(pgPool)
	msgRepo := repository.NewMongoMessageRepository(mongo.Database)

	hub := NewHub()
	presence := NewPresenceTracker()
	var cast Broadcaster = hub
	typing := NewTypingTracker(200*time.Millisecond, func(conversationID, userID string) {
		cast.ToConversation(conversationID, domain.Event{Event: domain.EventUserStopTyping, Data: domain.TypingEvent{
			ConversationID: conversationID,
			UserID:         userID,
		}}, "")
	})

	convUC := NewConversationUseCase(convRepo, msgRepo)
	messageUC := NewMessageUseCase(convUC, convRepo, msgRepo, userRepo, presence, cast)
	integrationMessages = messageUC
	presenceUC := NewPresenceUseCase(presence, typing, userRepo, cast)
	handler := NewChatWebsocketHandler(hub, cast, presenceUC, convUC, messageUC, typing)

	integrationApp = fiber.New()
	integrationApp.Use(middlewares.JWTMiddleware())
	integrationApp.Get("/ws", websocket.New(func(c *websocket.Conn) {
		handler.HandleConnection(context.Background(), c)
	}))

	go func() {
		if err := integrationApp.Listen(":" + integrationPort); err != nil {
			log.Printf("websocket server stopped: %v", err)
		}
	}()
	time.Sleep(2 * time.Second)

	code := m.Run()

	_ = integrationApp.Shutdown()
	mongo.Close(ctx)
	pgPool.Close()
	_ = pgContainer.Terminate(ctx)
	_ = mongoContainer.Terminate(ctx)

	os.Exit(code)
}

func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, integrationSchema)
	return err
}

func requireContainers(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker containers")
	}
}

func dialAs(t *testing.T, userID string) *gws.Conn {
	t.Helper()
	jwt, err := token.GenerateJWT(userID, "patient", "chat_test")
	require.NoError(t, err)

	url := fmt.Sprintf("ws://127.0.0.1:%s/ws?auth=%s", integrationPort, jwt)
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	return conn
}

// readEvent skims frames until one with the given event name arrives.
func readEvent(t *testing.T, conn *gws.Conn, name string) domain.Event {
	t.Helper()
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", name)

		var evt domain.Event
		require.NoError(t, json.Unmarshal(raw, &evt))
		if evt.Event == name {
			return evt
		}
	}
}

// waitOnline skims frames until the given user's online broadcast arrives.
func waitOnline(t *testing.T, conn *gws.Conn, userID string) {
	t.Helper()
	for {
		evt := readEvent(t, conn, domain.EventUserOnline)
		if eventData(t, evt)["user_id"] == userID {
			return
		}
	}
}

func eventData(t *testing.T, evt domain.Event) map[string]interface{} {
	t.Helper()
	data, ok := evt.Data.(map[string]interface{})
	require.True(t, ok, "event %q carries no object payload", evt.Event)
	return data
}

func TestIntegration_DirectMessageReadReceipt(t *testing.T) {
	requireContainers(t)
	alice := dialAs(t, "alice")
	defer alice.Close()
	bob := dialAs(t, "bob")
	defer bob.Close()

	// Wait until bob's presence broadcast reaches alice, so the send below
	// sees him online.
	waitOnline(t, alice, "bob")

	req := `{"action": "send_message", "receiver_id": "bob", "body": "hello bob"}`
	require.NoError(t, alice.WriteMessage(gws.TextMessage, []byte(req)))

	msg := eventData(t, readEvent(t, bob, domain.EventMessage))
	assert.Equal(t, "hello bob", msg["body"])
	assert.Equal(t, true, msg["is_read"], "receiver was online at send time")

	sender, ok := msg["sender"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "alice", sender["id"])
	assert.Equal(t, "Alice Chen", sender["name"])

	// Sender's copy arrives over the per-user channel as well.
	echo := eventData(t, readEvent(t, alice, domain.EventMessage))
	assert.Equal(t, msg["conversation_id"], echo["conversation_id"])
}

func TestIntegration_JoinAndTyping(t *testing.T) {
	requireContainers(t)
	alice := dialAs(t, "alice")
	defer alice.Close()
	bob := dialAs(t, "bob")
	defer bob.Close()

	// Establish the shared conversation first.
	require.NoError(t, alice.WriteMessage(gws.TextMessage,
		[]byte(`{"action": "send_message", "receiver_id": "bob", "body": "ping"}`)))
	msg := eventData(t, readEvent(t, alice, domain.EventMessage))
	convID := msg["conversation_id"].(string)

	joinReq := fmt.Sprintf(`{"action": "join_conversation", "conversation_id": %q}`, convID)
	require.NoError(t, alice.WriteMessage(gws.TextMessage, []byte(joinReq)))
	require.NoError(t, bob.WriteMessage(gws.TextMessage, []byte(joinReq)))
	readEvent(t, alice, domain.EventJoinedConversation)
	readEvent(t, bob, domain.EventJoinedConversation)

	typingReq := fmt.Sprintf(`{"action": "typing", "conversation_id": %q}`, convID)
	require.NoError(t, alice.WriteMessage(gws.TextMessage, []byte(typingReq)))

	typingEvt := eventData(t, readEvent(t, bob, domain.EventUserTyping))
	assert.Equal(t, "alice", typingEvt["user_id"])

	// Idle timeout (shortened for the test) self-heals the indicator.
	stopEvt := eventData(t, readEvent(t, bob, domain.EventUserStopTyping))
	assert.Equal(t, "alice", stopEvt["user_id"])
}

func TestIntegration_MessageHistoryOrdered(t *testing.T) {
	requireContainers(t)
	alice := dialAs(t, "alice")
	defer alice.Close()

	send := func(body string) string {
		req := fmt.Sprintf(`{"action": "send_message", "receiver_id": "bob", "body": %q}`, body)
		require.NoError(t, alice.WriteMessage(gws.TextMessage, []byte(req)))
		echo := eventData(t, readEvent(t, alice, domain.EventMessage))
		return echo["conversation_id"].(string)
	}

	convID := send("first")
	// Keep the timestamps apart so the order does not depend on the id
	// tie-break.
	time.Sleep(10 * time.Millisecond)
	send("second")

	history, err := integrationMessages.Fetch(context.Background(), "alice", convID, 0, 50)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(history), 2)

	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].CreatedAt.Before(history[i-1].CreatedAt),
			"history must ascend by created_at")
	}
	assert.Equal(t, "second", history[len(history)-1].Body)
	assert.Equal(t, "first", history[len(history)-2].Body)
}

func TestIntegration_JoinForeignConversationRejected(t *testing.T) {
	requireContainers(t)
	alice := dialAs(t, "alice")
	defer alice.Close()

	require.NoError(t, alice.WriteMessage(gws.TextMessage,
		[]byte(`{"action": "join_conversation", "conversation_id": "00000000-0000-0000-0000-000000000000"}`)))

	evt := readEvent(t, alice, domain.EventError)
	data := eventData(t, evt)
	assert.NotEmpty(t, data["message"])
}

func TestIntegration_MissingTokenRejected(t *testing.T) {
	requireContainers(t)
	url := fmt.Sprintf("ws://127.0.0.1:%s/ws", integrationPort)
	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}
