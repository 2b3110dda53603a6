package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"medlink_chat_service/internal/chat/domain"
	"medlink_chat_service/pkg/errs"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// MessageRepository durable store for chat messages.
type MessageRepository interface {
	Insert(ctx context.Context, msg *domain.Message) error
	// Find returns messages of a conversation ascending by created_at,
	// ties broken by id, restartable by offset.
	Find(ctx context.Context, conversationID string, offset, limit int64) ([]domain.Message, error)
	FindLast(ctx context.Context, conversationID string) (*domain.Message, error)
	// MarkRead flips is_read on every unread message of the conversation
	// not sent by excludeSenderID and reports how many were affected.
	MarkRead(ctx context.Context, conversationID, excludeSenderID string) (int64, error)
	CountUnread(ctx context.Context, conversationID, userID string) (int64, error)
}

type messageRepository struct {
	coll *mongo.Collection
}

// NewMongoMessageRepository create a MessageRepository on the chat_messages collection.
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &messageRepository{coll: db.Collection("chat_messages")}
}

func (r *messageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	_, err := r.coll.InsertOne(ctx, msg)
	return err
}

func (r *messageRepository) Find(ctx context.Context, conversationID string, offset, limit int64) ([]domain.Message, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(offset).
		SetLimit(limit)

	cur, err := r.coll.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	var messages []domain.Message
	if err := cur.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) FindLast(ctx context.Context, conversationID string) (*domain.Message, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	var msg domain.Message
	err := r.coll.FindOne(ctx, bson.M{"conversation_id": conversationID}, opts).Decode(&msg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errs.NotFound("conversation %s has no messages", conversationID)
		}
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, conversationID, excludeSenderID string) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{
			"conversation_id": conversationID,
			"sender_id":       bson.M{"$ne": excludeSenderID},
			"is_read":         false,
		},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *messageRepository) CountUnread(ctx context.Context, conversationID, userID string) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{
		"conversation_id": conversationID,
		"sender_id":       bson.M{"$ne": userID},
		"is_read":         false,
	})
}
