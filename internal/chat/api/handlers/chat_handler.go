package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"medlink_chat_service/internal/chat/app"
	"medlink_chat_service/internal/chat/domain"
	"medlink_chat_service/pkg/errs"
	"medlink_chat_service/pkg/middlewares"
)

// ChatHandler exposes the REST mirror of the websocket operations so
// history and conversation management work without a live socket.
type ChatHandler struct {
	ConvUC     *app.ConversationUseCase
	MessageUC  *app.MessageUseCase
	PresenceUC *app.PresenceUseCase
	validate   *validator.Validate
}

// NewChatHandler create ChatHandler.
func NewChatHandler(convUC *app.ConversationUseCase, messageUC *app.MessageUseCase, presenceUC *app.PresenceUseCase) *ChatHandler {
	return &ChatHandler{
		ConvUC:     convUC,
		MessageUC:  messageUC,
		PresenceUC: presenceUC,
		validate:   validator.New(),
	}
}

// CreateConversationRequest request body for POST /conversations.
type CreateConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=2,max=8,dive,required"`
}

// SendMessageRequest request body for POST /messages.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	ReceiverID     string `json:"receiver_id"`
	Body           string `json:"body"`
	Kind           string `json:"kind"`
}

// ListConversations returns every conversation the caller belongs to,
// newest activity first, each with its last message and unread count.
func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	userID, _ := c.Locals(middlewares.TokenUserID).(string)

	summaries, err := h.ConvUC.ListForUser(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"conversations": summaries})
}

// CreateConversation finds or creates the conversation holding exactly the
// given participants. The caller must be one of them.
func (h *ChatHandler) CreateConversation(c *fiber.Ctx) error {
	userID, _ := c.Locals(middlewares.TokenUserID).(string)

	var req CreateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errs.InvalidArgument("malformed request body"))
	}
	if err := h.validate.Struct(req); err != nil {
		return respondError(c, errs.InvalidArgument("participant_ids must hold 2 to 8 ids"))
	}

	conv, err := h.ConvUC.FindOrCreate(c.Context(), req.ParticipantIDs)
	if err != nil {
		return respondError(c, err)
	}
	if !conv.HasParticipant(userID) {
		return respondError(c, errs.Forbidden("caller is not a participant"))
	}
	return c.JSON(conv)
}

// GetMessages returns a page of messages in ascending send order.
// Query params: offset, limit.
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	userID, _ := c.Locals(middlewares.TokenUserID).(string)
	conversationID := c.Params("id")

	offset := int64(c.QueryInt("offset", 0))
	limit := int64(c.QueryInt("limit", 0))

	msgs, err := h.MessageUC.Fetch(c.Context(), userID, conversationID, offset, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

// SendMessage sends a message to a conversation or directly to a user,
// mirroring the websocket send_message action.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, _ := c.Locals(middlewares.TokenUserID).(string)

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errs.InvalidArgument("malformed request body"))
	}

	target, err := domain.NewSendTarget(req.ConversationID, req.ReceiverID)
	if err != nil {
		return respondError(c, err)
	}
	kind, err := domain.ParseMessageKind(req.Kind)
	if err != nil {
		return respondError(c, err)
	}

	msg, err := h.MessageUC.Send(c.Context(), userID, target, req.Body, kind)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(msg)
}

// MarkRead marks every unread message from other senders in the
// conversation as read by the caller.
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	userID, _ := c.Locals(middlewares.TokenUserID).(string)
	conversationID := c.Params("id")

	count, err := h.MessageUC.MarkRead(c.Context(), conversationID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"marked": count})
}

// GetUserStatus returns the presence of the given user.
func (h *ChatHandler) GetUserStatus(c *fiber.Ctx) error {
	status, err := h.PresenceUC.Status(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}

func respondError(c *fiber.Ctx, err error) error {
	return c.Status(errs.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
}
