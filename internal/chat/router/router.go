package router

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"medlink_chat_service/internal/chat/api/handlers"
	"medlink_chat_service/internal/chat/app"
	"medlink_chat_service/pkg/middlewares"
)

// RegisterRoutes wires the websocket endpoint and its REST mirror. Every
// route sits behind JWT authentication.
func RegisterRoutes(r *fiber.App, chatWebsocket *app.ChatWebsocketHandler, chatHandler *handlers.ChatHandler) {
	r.Use(middlewares.JWTMiddleware())

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleConnection(context.Background(), c)
	}))

	r.Get("/conversations", chatHandler.ListConversations)
	r.Post("/conversations", chatHandler.CreateConversation)
	r.Get("/conversations/:id/messages", chatHandler.GetMessages)
	r.Post("/conversations/:id/read", chatHandler.MarkRead)
	r.Post("/messages", chatHandler.SendMessage)
	r.Get("/users/:id/status", chatHandler.GetUserStatus)
}
