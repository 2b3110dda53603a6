package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"medlink_chat_service/internal/chat/api/handlers"
	"medlink_chat_service/internal/chat/app"
	"medlink_chat_service/internal/chat/domain"
	"medlink_chat_service/internal/chat/repository"
	"medlink_chat_service/internal/chat/router"
	"medlink_chat_service/pkg/config"
	"medlink_chat_service/pkg/database"
	"medlink_chat_service/pkg/logger"
	testtool "medlink_chat_service/pkg/test_tool"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)
	testtool.StartPprof()

	ctx := context.Background()

	// PostgreSQL holds user profiles and conversation membership.
	pgURI := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.PostgreSQL.User, cfg.PostgreSQL.Password,
		cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database)
	pgPool, err := database.NewDatabaseConnection(database.Connection{
		ConnectStr:    pgURI,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to postgres after retries",
			zap.String("address", fmt.Sprintf("%s:%d", cfg.PostgreSQL.Host, cfg.PostgreSQL.Port)),
			zap.Error(err),
		)
	}
	defer pgPool.Close()

	// MongoDB holds the message history.
	mongoURI := fmt.Sprintf("mongodb://%s:%s@%s:%d",
		cfg.MongoDB.User, cfg.MongoDB.Password, cfg.MongoDB.Host, cfg.MongoDB.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    mongoURI,
			RetryCount:    cfg.MongoDB.RetryCount,
			RetryInterval: time.Duration(cfg.MongoDB.RetryInterval),
		},
		cfg.MongoDB.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s]", mongoURI)),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	userRepo := repository.NewUserRepository(pgPool)
	convRepo := repository.NewConversationRepository(pgPool)
	msgRepo := repository.NewMongoMessageRepository(mongo.Database)

	hub := app.NewHub()
	presence := app.NewPresenceTracker()

	// With clustering enabled every broadcast is mirrored over redis so
	// peer processes reach connections this one does not hold.
	var cast app.Broadcaster = hub
	if cfg.Cluster.Enabled {
		redisClient, err := database.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.RedisDB)
		if err != nil {
			logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
		}
		nodeID := cfg.Cluster.NodeID
		if nodeID == "" {
			nodeID = uuid.NewString()
		}
		relay := app.NewRelayBroadcaster(hub, repository.NewRedisPubSub(redisClient), nodeID)
		relay.Start(ctx)
		cast = relay
	}

	idle := time.Duration(cfg.TypingIdleSeconds) * time.Second
	typing := app.NewTypingTracker(idle, func(conversationID, userID string) {
		cast.ToConversation(conversationID, domain.Event{Event: domain.EventUserStopTyping, Data: domain.TypingEvent{
			ConversationID: conversationID,
			UserID:         userID,
		}}, "")
	})

	convUC := app.NewConversationUseCase(convRepo, msgRepo)
	messageUC := app.NewMessageUseCase(convUC, convRepo, msgRepo, userRepo, presence, cast)
	presenceUC := app.NewPresenceUseCase(presence, typing, userRepo, cast)

	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	chatWS := app.NewChatWebsocketHandler(hub, cast, presenceUC, convUC, messageUC, typing)
	chatREST := handlers.NewChatHandler(convUC, messageUC, presenceUC)
	router.RegisterRoutes(r, chatWS, chatREST)

	port := ":" + cfg.Port
	log.Printf("Chat Service listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}
